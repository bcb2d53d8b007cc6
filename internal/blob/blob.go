// Package blob stores raw evidence bytes in a named bucket, either on the
// local filesystem or in an S3-compatible object store.
package blob

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned when an object key does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage contract used by intake and the resolver.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key builds the object key for an upload:
// <case-id|unassigned>/<upload-id>/<file name>.
func Key(caseID, uploadID, fileName string) string {
	if caseID == "" {
		caseID = "unassigned"
	}
	return caseID + "/" + uploadID + "/" + path.Base(fileName)
}

// cleanKey rejects keys that are empty, absolute, or escape the bucket.
func cleanKey(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty object key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("object key %q must be relative", key)
	}
	c := path.Clean(key)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("object key %q escapes bucket", key)
	}
	return c, nil
}
