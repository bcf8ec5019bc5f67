package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/storage"
)

const (
	signedUploadTTL   = 15 * time.Minute
	signedDownloadTTL = 10 * time.Minute

	maxUploadSizeBytes = 25 << 20
)

var allowedDocumentContentTypes = []string{
	"application/pdf",
	"image/jpeg",
	"image/png",
}

// ErrUnknownAssetPurpose signals a purpose outside the registration layout.
var ErrUnknownAssetPurpose = errors.New("assets: unknown purpose")

// AssetServiceDeps bundles collaborators for the asset service.
type AssetServiceDeps struct {
	Storage     *storage.Client
	Bucket      string
	IDGenerator func() string
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type assetService struct {
	storage *storage.Client
	bucket  string
	newID   func() string
	logger  func(context.Context, string, map[string]any)
}

// NewAssetService wires dependencies into an AssetService implementation.
func NewAssetService(deps AssetServiceDeps) (AssetService, error) {
	if deps.Storage == nil {
		return nil, errors.New("asset service: storage client is required")
	}
	if strings.TrimSpace(deps.Bucket) == "" {
		return nil, errors.New("asset service: bucket is required")
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &assetService{
		storage: deps.Storage,
		bucket:  strings.TrimSpace(deps.Bucket),
		newID:   idGen,
		logger:  logger,
	}, nil
}

// IssueSignedUpload returns a PUT URL for one registration artifact. The
// object path encodes a fresh upload id so replacements never overwrite the
// previous revision.
func (s *assetService) IssueSignedUpload(ctx context.Context, cmd SignedUploadCommand) (SignedAssetResponse, error) {
	purpose := storage.AssetPurpose(strings.TrimSpace(cmd.Purpose))
	if purpose == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: purpose is required", ErrWorkflowInvalidInput)
	}
	if strings.TrimSpace(cmd.FileName) == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: file name is required", ErrWorkflowInvalidInput)
	}
	if cmd.SizeBytes > maxUploadSizeBytes {
		return SignedAssetResponse{}, fmt.Errorf("%w: file exceeds %d bytes", ErrWorkflowInvalidInput, maxUploadSizeBytes)
	}

	uploadID := s.newID()
	object, err := storage.BuildObjectPath(purpose, storage.PathParams{
		CaseID:   cmd.CaseID,
		Slot:     cmd.Slot,
		PersonID: cmd.PersonID,
		UploadID: uploadID,
		FileName: cmd.FileName,
	})
	if err != nil {
		if errors.Is(err, storage.ErrUnknownPurpose) {
			return SignedAssetResponse{}, fmt.Errorf("%w: %s", ErrUnknownAssetPurpose, cmd.Purpose)
		}
		return SignedAssetResponse{}, fmt.Errorf("%w: %v", ErrWorkflowInvalidInput, err)
	}

	result, err := s.storage.SignedURL(ctx, s.bucket, object, storage.SignedURLOptions{
		Upload: &storage.UploadOptions{
			Method:              "PUT",
			ContentType:         cmd.ContentType,
			AllowedContentTypes: allowedDocumentContentTypes,
			MaxSize:             maxUploadSizeBytes,
			ExpiresIn:           signedUploadTTL,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, mapStorageError(err)
	}

	s.logger(ctx, "assets.upload.signed", map[string]any{
		"case":    cmd.CaseID,
		"purpose": string(purpose),
		"object":  object,
	})

	return SignedAssetResponse{
		AssetID:   object,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Method:    result.Method,
		Headers:   result.Headers,
	}, nil
}

// IssueSignedDownload returns a short-lived GET URL for a stored artifact.
// Callers are expected to have authorised access to the owning case already.
func (s *assetService) IssueSignedDownload(ctx context.Context, cmd SignedDownloadCommand) (SignedAssetResponse, error) {
	ref := strings.TrimSpace(cmd.StorageRef)
	if ref == "" {
		return SignedAssetResponse{}, fmt.Errorf("%w: storage ref is required", ErrWorkflowInvalidInput)
	}
	caseID := strings.TrimSpace(cmd.CaseID)
	if caseID == "" || !strings.HasPrefix(ref, "registrations/"+caseID+"/") {
		return SignedAssetResponse{}, domain.ErrUnauthorizedAction
	}

	result, err := s.storage.SignedURL(ctx, s.bucket, ref, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			Method:         "GET",
			ExpiresIn:      signedDownloadTTL,
			Disposition:    "attachment",
			AllowAnonymous: true,
		},
	})
	if err != nil {
		return SignedAssetResponse{}, mapStorageError(err)
	}

	return SignedAssetResponse{
		AssetID:   ref,
		URL:       result.URL,
		ExpiresAt: result.ExpiresAt,
		Method:    result.Method,
	}, nil
}

func mapStorageError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	return fmt.Errorf("assets: sign url: %w", err)
}
