package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
)

// Uploader writes artifact bytes straight to Cloud Storage. It backs the
// server-side document exchange path; browser uploads go through signed URLs
// instead.
type Uploader struct {
	client *gcs.Client
	bucket string
	newID  func() string
}

// UploadInput describes one object write.
type UploadInput struct {
	Purpose     AssetPurpose
	CaseID      string
	Slot        string
	PersonID    string
	FileName    string
	ContentType string
	Content     []byte
}

// UploadOutput reports where the object landed.
type UploadOutput struct {
	Bucket    string
	ObjectRef string
	URL       string
}

// NewUploader constructs an Uploader backed by the provided Cloud Storage client.
func NewUploader(client *gcs.Client, bucket string, newID func() string) (*Uploader, error) {
	if client == nil {
		return nil, errors.New("storage uploader: client is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage uploader: bucket is required")
	}
	if newID == nil {
		return nil, errors.New("storage uploader: id generator is required")
	}
	return &Uploader{client: client, bucket: bucket, newID: newID}, nil
}

// Upload writes the content under a freshly generated upload id. Existing
// revisions of the same slot are never overwritten.
func (u *Uploader) Upload(ctx context.Context, input UploadInput) (UploadOutput, error) {
	if u == nil || u.client == nil {
		return UploadOutput{}, errors.New("storage uploader: client is not initialised")
	}
	if len(input.Content) == 0 {
		return UploadOutput{}, errors.New("storage uploader: content is empty")
	}

	object, err := BuildObjectPath(input.Purpose, PathParams{
		CaseID:   input.CaseID,
		Slot:     input.Slot,
		PersonID: input.PersonID,
		UploadID: u.newID(),
		FileName: input.FileName,
	})
	if err != nil {
		return UploadOutput{}, err
	}

	w := u.client.Bucket(u.bucket).Object(object).NewWriter(ctx)
	w.ContentType = strings.TrimSpace(input.ContentType)
	if _, err := bytes.NewReader(input.Content).WriteTo(w); err != nil {
		_ = w.Close()
		return UploadOutput{}, fmt.Errorf("storage uploader: write %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return UploadOutput{}, fmt.Errorf("storage uploader: finalize %s: %w", object, err)
	}

	return UploadOutput{
		Bucket:    u.bucket,
		ObjectRef: object,
		URL:       fmt.Sprintf("gs://%s/%s", u.bucket, object),
	}, nil
}
