package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// archivePrefix scopes retained copies inside the exports bucket.
const archivePrefix = "archive/"

// Archiver copies case artifacts from the documents bucket into the exports
// bucket for long-term retention. Originals stay in place; completed cases
// keep serving signed downloads from the documents bucket.
type Archiver struct {
	client        *gcs.Client
	sourceBucket  string
	archiveBucket string
}

// NewArchiver constructs an Archiver backed by the provided Cloud Storage client.
func NewArchiver(client *gcs.Client, sourceBucket, archiveBucket string) (*Archiver, error) {
	if client == nil {
		return nil, errors.New("storage archiver: client is required")
	}
	sourceBucket = strings.TrimSpace(sourceBucket)
	archiveBucket = strings.TrimSpace(archiveBucket)
	if sourceBucket == "" || archiveBucket == "" {
		return nil, errors.New("storage archiver: source and archive buckets are required")
	}
	return &Archiver{
		client:        client,
		sourceBucket:  sourceBucket,
		archiveBucket: archiveBucket,
	}, nil
}

// ArchiveObject copies one artifact under the archive prefix and returns the
// destination object path. Copying the same ref twice overwrites the earlier
// archive copy with identical content.
func (a *Archiver) ArchiveObject(ctx context.Context, objectRef string) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("storage archiver: client is not initialised")
	}
	ref := strings.TrimSpace(objectRef)
	if ref == "" {
		return "", errors.New("storage archiver: object ref is required")
	}

	dst := ArchiveObjectPath(ref)
	src := a.client.Bucket(a.sourceBucket).Object(ref)
	out := a.client.Bucket(a.archiveBucket).Object(dst)
	if _, err := out.CopierFrom(src).Run(ctx); err != nil {
		return "", fmt.Errorf("storage archiver: copy %s: %w", ref, err)
	}
	return dst, nil
}

// ArchiveObjectPath resolves where an artifact lands inside the exports
// bucket. The source ref already carries the registrations/<case> layout, so
// the archive keeps it intact under a single prefix.
func ArchiveObjectPath(objectRef string) string {
	return archivePrefix + strings.TrimPrefix(strings.TrimSpace(objectRef), "/")
}
