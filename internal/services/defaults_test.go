package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/Lllllllleong/eligibilityreview/internal/gcp"
	"github.com/Lllllllleong/eligibilityreview/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestBuiltinDefaults(t *testing.T) {
	d, err := BuiltinDefaults().Defaults(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, d.Instructions)
	assert.NotEmpty(t, d.Reference.Text)
	assert.Nil(t, d.Reference.PDF)
}

func TestLoadDefaultsFile(t *testing.T) {
	builtin, _ := BuiltinDefaults().Defaults(context.Background())

	t.Run("empty path", func(t *testing.T) {
		s, err := LoadDefaultsFile("")
		require.NoError(t, err)
		d, _ := s.Defaults(context.Background())
		assert.Equal(t, builtin, d)
	})

	t.Run("partial override keeps built-in criteria", func(t *testing.T) {
		dir := t.TempDir()
		path := writeFile(t, dir, "defaults.yaml", "prompt: |\n  Review the placard application.\n")
		s, err := LoadDefaultsFile(path)
		require.NoError(t, err)
		d, _ := s.Defaults(context.Background())
		assert.Equal(t, "Review the placard application.\n", d.Instructions)
		assert.Equal(t, builtin.Reference, d.Reference)
	})

	t.Run("criteria pdf relative to the file", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "matrix.pdf", "%PDF-1.7")
		path := writeFile(t, dir, "defaults.yaml", "criteria: ignored\ncriteriaPdf: matrix.pdf\n")
		s, err := LoadDefaultsFile(path)
		require.NoError(t, err)
		d, _ := s.Defaults(context.Background())
		assert.Equal(t, pipeline.Reference{PDF: []byte("%PDF-1.7")}, d.Reference)
		assert.Equal(t, builtin.Instructions, d.Instructions)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadDefaultsFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "bad.yaml", "prompt: [unterminated")
		_, err := LoadDefaultsFile(path)
		assert.Error(t, err)
	})

	t.Run("missing criteria pdf", func(t *testing.T) {
		path := writeFile(t, t.TempDir(), "defaults.yaml", "criteriaPdf: gone.pdf\n")
		_, err := LoadDefaultsFile(path)
		assert.Error(t, err)
	})
}

func TestNewDefaultsSource(t *testing.T) {
	s, err := NewDefaultsSource(DefaultsConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, &StaticDefaults{}, s)

	_, err = NewDefaultsSource(DefaultsConfig{Bucket: "defaults"}, nil)
	assert.Error(t, err)
}

func TestDefaultsResponse(t *testing.T) {
	resp, err := defaultsResponse(context.Background(), BuiltinDefaults())
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Prompt)
	assert.NotEmpty(t, resp.Criteria)

	pdfOnly := &StaticDefaults{defaults: pipeline.Defaults{Instructions: "p", Reference: pipeline.Reference{PDF: []byte("%PDF")}}}
	resp, err = defaultsResponse(context.Background(), pdfOnly)
	require.NoError(t, err)
	assert.Equal(t, "p", resp.Prompt)
	assert.Empty(t, resp.Criteria)
}

func TestIsPDFObject(t *testing.T) {
	assert.True(t, isPDFObject(&gcp.StoredObject{Name: "criteria.pdf"}))
	assert.True(t, isPDFObject(&gcp.StoredObject{Name: "criteria", ContentType: "application/pdf"}))
	assert.False(t, isPDFObject(&gcp.StoredObject{Name: "criteria.md", ContentType: "text/markdown"}))
	assert.False(t, isPDFObject(&gcp.StoredObject{Name: "criteria.bin"}))
}

func TestGCSDefaults(t *testing.T) {
	builtin, _ := BuiltinDefaults().Defaults(context.Background())

	newSource := func(t *testing.T, fallback pipeline.DefaultsSource) (*GCSDefaults, *fakeGCS) {
		gcs, client := newFakeGCS(t, "defaults")
		return &GCSDefaults{
			Bucket:         client.Bucket("defaults"),
			PromptObject:   "prompt.md",
			CriteriaObject: "criteria.md",
			Fallback:       fallback,
		}, gcs
	}

	t.Run("both objects present", func(t *testing.T) {
		src, gcs := newSource(t, BuiltinDefaults())
		gcs.put("prompt.md", "text/markdown", []byte("Edited prompt"))
		gcs.put("criteria.md", "text/markdown", []byte("Edited criteria"))

		d, err := src.Defaults(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Edited prompt", d.Instructions)
		assert.Equal(t, pipeline.Reference{Text: "Edited criteria"}, d.Reference)
	})

	t.Run("missing criteria falls back alone", func(t *testing.T) {
		src, gcs := newSource(t, BuiltinDefaults())
		gcs.put("prompt.md", "text/markdown", []byte("Edited prompt"))

		d, err := src.Defaults(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Edited prompt", d.Instructions)
		assert.Equal(t, builtin.Reference, d.Reference)
	})

	t.Run("missing prompt falls back alone", func(t *testing.T) {
		src, gcs := newSource(t, BuiltinDefaults())
		gcs.put("criteria.md", "text/markdown", []byte("Edited criteria"))

		d, err := src.Defaults(context.Background())
		require.NoError(t, err)
		assert.Equal(t, builtin.Instructions, d.Instructions)
		assert.Equal(t, pipeline.Reference{Text: "Edited criteria"}, d.Reference)
	})

	t.Run("pdf criteria object", func(t *testing.T) {
		src, gcs := newSource(t, BuiltinDefaults())
		src.CriteriaObject = "matrix"
		gcs.put("prompt.md", "text/markdown", []byte("Edited prompt"))
		gcs.put("matrix", "application/pdf", []byte("%PDF-1.7"))

		d, err := src.Defaults(context.Background())
		require.NoError(t, err)
		assert.Equal(t, pipeline.Reference{PDF: []byte("%PDF-1.7")}, d.Reference)
	})

	t.Run("missing objects without fallback", func(t *testing.T) {
		src, _ := newSource(t, nil)
		_, err := src.Defaults(context.Background())
		assert.ErrorContains(t, err, "prompt object prompt.md")
	})
}
