package gcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType, content string) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, strings.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == 412 {
			slog.Info("Object already exists, skipping write.", "object", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// ErrObjectTooLarge is returned by ReadObject when an object exceeds its read cap.
var ErrObjectTooLarge = errors.New("object exceeds read limit")

// StoredObject is an object read fully into memory.
type StoredObject struct {
	Name        string
	ContentType string
	Data        []byte
}

// ReadObject downloads a whole object. maxBytes > 0 caps how much is read; larger
// objects fail rather than being truncated.
func ReadObject(ctx context.Context, bucket *storage.BucketHandle, objectName string, maxBytes int64) (*StoredObject, error) {
	reader, err := bucket.Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get GCS object reader for %s: %w", objectName, err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if maxBytes > 0 {
		src = io.LimitReader(reader, maxBytes+1)
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return nil, fmt.Errorf("failed to read GCS object %s: %w", objectName, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("GCS object %s is larger than %d bytes: %w", objectName, maxBytes, ErrObjectTooLarge)
	}
	return &StoredObject{Name: objectName, ContentType: reader.Attrs.ContentType, Data: data}, nil
}

// ListObjects returns the attributes of all objects under prefix, in listing order.
// Folder placeholders are skipped.
func ListObjects(ctx context.Context, bucket *storage.BucketHandle, prefix string) ([]*storage.ObjectAttrs, error) {
	var objects []*storage.ObjectAttrs
	it := bucket.Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %s: %w", prefix, err)
		}
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		objects = append(objects, attrs)
	}
	return objects, nil
}
