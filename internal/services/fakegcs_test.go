package services

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeObject struct {
	data        []byte
	contentType string
	created     time.Time
}

// fakeGCS serves the subset of the GCS JSON and XML APIs the storage client uses for
// listing, stat, download and multipart upload of a single bucket.
type fakeGCS struct {
	bucket string

	mu        sync.Mutex
	objects   map[string]*fakeObject
	clock     time.Time
	downloads map[string]int
}

func newFakeGCS(t *testing.T, bucket string) (*fakeGCS, *storage.Client) {
	t.Helper()
	gcs := &fakeGCS{
		bucket:    bucket,
		objects:   make(map[string]*fakeObject),
		clock:     time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		downloads: make(map[string]int),
	}
	srv := httptest.NewServer(http.HandlerFunc(gcs.serve))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return gcs, client
}

// put stores an object; each call is created one second after the previous one.
func (g *fakeGCS) put(name, contentType string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clock = g.clock.Add(time.Second)
	g.objects[name] = &fakeObject{data: data, contentType: contentType, created: g.clock}
}

func (g *fakeGCS) get(name string) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	obj, ok := g.objects[name]
	if !ok {
		return nil, false
	}
	return obj.data, true
}

func (g *fakeGCS) downloadCount(name string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.downloads[name]
}

func (g *fakeGCS) serve(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Path
	jsonObjects := "/storage/v1/b/" + g.bucket + "/o"

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(p, "/b/"+g.bucket+"/o"):
		g.upload(w, r)
	case r.Method == http.MethodGet && p == jsonObjects:
		g.list(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(p, jsonObjects+"/"):
		name := strings.TrimPrefix(p, jsonObjects+"/")
		if r.URL.Query().Get("alt") == "media" {
			g.download(w, name)
			return
		}
		g.metadata(w, name)
	case r.Method == http.MethodGet && strings.HasPrefix(p, "/"+g.bucket+"/"):
		g.download(w, strings.TrimPrefix(p, "/"+g.bucket+"/"))
	default:
		writeAPIError(w, http.StatusNotImplemented, "unsupported request "+r.Method+" "+p)
	}
}

func (g *fakeGCS) resource(name string, obj *fakeObject) map[string]any {
	return map[string]any{
		"kind":           "storage#object",
		"bucket":         g.bucket,
		"name":           name,
		"size":           strconv.Itoa(len(obj.data)),
		"contentType":    obj.contentType,
		"generation":     "1",
		"metageneration": "1",
		"timeCreated":    obj.created.Format(time.RFC3339Nano),
		"updated":        obj.created.Format(time.RFC3339Nano),
	}
}

func (g *fakeGCS) list(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	g.mu.Lock()
	names := make([]string, 0, len(g.objects))
	for name := range g.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	items := make([]map[string]any, 0, len(names))
	for _, name := range names {
		items = append(items, g.resource(name, g.objects[name]))
	}
	g.mu.Unlock()

	writeJSONBody(w, http.StatusOK, map[string]any{"kind": "storage#objects", "items": items})
}

func (g *fakeGCS) metadata(w http.ResponseWriter, name string) {
	g.mu.Lock()
	obj, ok := g.objects[name]
	var res map[string]any
	if ok {
		res = g.resource(name, obj)
	}
	g.mu.Unlock()

	if !ok {
		writeAPIError(w, http.StatusNotFound, "No such object: "+g.bucket+"/"+name)
		return
	}
	writeJSONBody(w, http.StatusOK, res)
}

func (g *fakeGCS) download(w http.ResponseWriter, name string) {
	g.mu.Lock()
	obj, ok := g.objects[name]
	if ok {
		g.downloads[name]++
	}
	g.mu.Unlock()

	if !ok {
		writeAPIError(w, http.StatusNotFound, "No such object: "+g.bucket+"/"+name)
		return
	}
	w.Header().Set("Content-Type", obj.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(obj.data)))
	w.Header().Set("X-Goog-Generation", "1")
	w.Header().Set("X-Goog-Metageneration", "1")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(obj.data)
}

func (g *fakeGCS) upload(w http.ResponseWriter, r *http.Request) {
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "expected a multipart upload")
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])

	metaPart, err := mr.NextPart()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "missing metadata part")
		return
	}
	var meta struct {
		Name        string `json:"name"`
		ContentType string `json:"contentType"`
	}
	if err := json.NewDecoder(metaPart).Decode(&meta); err != nil {
		writeAPIError(w, http.StatusBadRequest, "bad metadata")
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "missing media part")
		return
	}
	data, err := io.ReadAll(mediaPart)
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, "unreadable media part")
		return
	}
	if meta.Name == "" {
		meta.Name = r.URL.Query().Get("name")
	}
	if meta.ContentType == "" {
		meta.ContentType = mediaPart.Header.Get("Content-Type")
	}

	g.mu.Lock()
	if _, exists := g.objects[meta.Name]; exists && r.URL.Query().Get("ifGenerationMatch") == "0" {
		g.mu.Unlock()
		writeAPIError(w, http.StatusPreconditionFailed, "At least one of the pre-conditions you specified did not hold.")
		return
	}
	g.clock = g.clock.Add(time.Second)
	obj := &fakeObject{data: data, contentType: meta.ContentType, created: g.clock}
	g.objects[meta.Name] = obj
	res := g.resource(meta.Name, obj)
	g.mu.Unlock()

	writeJSONBody(w, http.StatusOK, res)
}

func writeJSONBody(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, message string) {
	writeJSONBody(w, code, map[string]any{
		"error": map[string]any{"code": code, "message": message},
	})
}
