package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// FetchFromGCS downloads statement bytes from a gs:// URI. This is the
// read side of the document store: the parse worker and the backfill CLI
// pull back what the API server uploaded.
func FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error) {
	bucketName, objectPath, err := splitGCSURI(gcsURI)
	if err != nil {
		return nil, err
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	defer client.Close()

	rc, err := client.Bucket(bucketName).Object(objectPath).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open object %s/%s: %w", bucketName, objectPath, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read object %s/%s: %w", bucketName, objectPath, err)
	}
	return data, nil
}

// splitGCSURI splits "gs://bucket/path/to/object" into bucket and object.
func splitGCSURI(gcsURI string) (bucket, object string, err error) {
	trimmed, ok := strings.CutPrefix(gcsURI, "gs://")
	if !ok {
		return "", "", fmt.Errorf("invalid GCS URI: %s", gcsURI)
	}
	bucket, object, ok = strings.Cut(trimmed, "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", gcsURI)
	}
	return bucket, object, nil
}
