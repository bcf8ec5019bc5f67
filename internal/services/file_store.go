package services

import (
	"context"
	"errors"

	"github.com/formacorp/incorporation-api/internal/platform/storage"
)

type gcsFileStore struct {
	uploader *storage.Uploader
}

// NewGCSFileStore adapts the Cloud Storage uploader to the FileStore contract.
func NewGCSFileStore(uploader *storage.Uploader) (FileStore, error) {
	if uploader == nil {
		return nil, errors.New("file store: uploader is required")
	}
	return &gcsFileStore{uploader: uploader}, nil
}

func (s *gcsFileStore) Upload(ctx context.Context, upload FileUpload) (StoredFile, error) {
	out, err := s.uploader.Upload(ctx, storage.UploadInput{
		Purpose:     storage.AssetPurpose(upload.Purpose),
		CaseID:      upload.CaseID,
		Slot:        upload.Slot,
		PersonID:    upload.PersonID,
		FileName:    upload.FileName,
		ContentType: upload.ContentType,
		Content:     upload.Content,
	})
	if err != nil {
		return StoredFile{}, err
	}
	return StoredFile{URL: out.URL, StorageRef: out.ObjectRef}, nil
}
