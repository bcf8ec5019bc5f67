package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/services"
)

type stubAssetService struct {
	uploadFn   func(ctx context.Context, cmd services.SignedUploadCommand) (services.SignedAssetResponse, error)
	downloadFn func(ctx context.Context, cmd services.SignedDownloadCommand) (services.SignedAssetResponse, error)
}

func (s *stubAssetService) IssueSignedUpload(ctx context.Context, cmd services.SignedUploadCommand) (services.SignedAssetResponse, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.SignedAssetResponse{}, errStubNotImplemented
}

func (s *stubAssetService) IssueSignedDownload(ctx context.Context, cmd services.SignedDownloadCommand) (services.SignedAssetResponse, error) {
	if s.downloadFn != nil {
		return s.downloadFn(ctx, cmd)
	}
	return services.SignedAssetResponse{}, errStubNotImplemented
}

func newAssetRouter(assets services.AssetService, opts ...AssetOption) *chi.Mux {
	handler := NewAssetHandlers(nil, assets, opts...)
	router := chi.NewRouter()
	router.Route("/", handler.Routes)
	return router
}

func TestIssueSignedUploadBuildsCommand(t *testing.T) {
	var captured services.SignedUploadCommand
	assets := &stubAssetService{
		uploadFn: func(_ context.Context, cmd services.SignedUploadCommand) (services.SignedAssetResponse, error) {
			captured = cmd
			return services.SignedAssetResponse{
				AssetID:   "registrations/reg_case1/staff/form1/up000001/form1.pdf",
				URL:       "https://storage.googleapis.com/bucket/signed",
				Method:    http.MethodPut,
				ExpiresAt: time.Date(2025, 3, 10, 9, 15, 0, 0, time.UTC),
				Headers: map[string]string{
					"Content-Type": "application/pdf",
				},
			}, nil
		},
	}
	router := newAssetRouter(assets)

	payload := []byte(`{"case_id": " reg_case1 ", "purpose": "staff-document", "slot": "form1", "file_name": "form1.pdf", "content_type": "application/pdf", "size_bytes": 5120}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/assets:signed-upload", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "user-1" {
		t.Fatalf("expected actor from identity, got %q", captured.ActorID)
	}
	if captured.CaseID != "reg_case1" || captured.Purpose != "staff-document" || captured.Slot != "form1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.SizeBytes != 5120 {
		t.Fatalf("unexpected size %d", captured.SizeBytes)
	}

	var resp signedUploadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.AssetID != "registrations/reg_case1/staff/form1/up000001/form1.pdf" {
		t.Fatalf("unexpected asset id %q", resp.AssetID)
	}
	if resp.Method != http.MethodPut || resp.UploadURL == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Headers["Content-Type"] != "application/pdf" {
		t.Fatalf("expected content type header, got %v", resp.Headers)
	}
	if resp.ExpiresAt == "" {
		t.Fatalf("expected expiry timestamp")
	}
}

func TestIssueSignedUploadRequiresIdentity(t *testing.T) {
	router := newAssetRouter(&stubAssetService{})

	req := httptest.NewRequest(http.MethodPost, "/assets:signed-upload", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
}

func TestIssueSignedUploadWithoutService(t *testing.T) {
	router := newAssetRouter(nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/assets:signed-upload", []byte(`{}`)))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestIssueSignedUploadMapsErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"unknown purpose", services.ErrUnknownAssetPurpose, http.StatusBadRequest, "invalid_request"},
		{"invalid input", services.ErrWorkflowInvalidInput, http.StatusBadRequest, "invalid_request"},
		{"foreign case", domain.ErrUnauthorizedAction, http.StatusForbidden, "forbidden"},
		{"signer timeout", domain.ErrUpstreamTimeout, http.StatusGatewayTimeout, "upstream_timeout"},
		{"signer failure", errStubNotImplemented, http.StatusBadGateway, "asset_service_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assets := &stubAssetService{
				uploadFn: func(context.Context, services.SignedUploadCommand) (services.SignedAssetResponse, error) {
					return services.SignedAssetResponse{}, tc.err
				},
			}
			router := newAssetRouter(assets)

			payload := []byte(`{"case_id": "reg_case1", "purpose": "staff-document", "slot": "form1", "file_name": "form1.pdf", "content_type": "application/pdf"}`)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/assets:signed-upload", payload))

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("failed to parse response: %v", err)
			}
			if body["error"] != tc.wantCode {
				t.Fatalf("expected code %q, got %v", tc.wantCode, body["error"])
			}
		})
	}
}

func TestIssueSignedDownloadBuildsCommand(t *testing.T) {
	var captured services.SignedDownloadCommand
	assets := &stubAssetService{
		downloadFn: func(_ context.Context, cmd services.SignedDownloadCommand) (services.SignedAssetResponse, error) {
			captured = cmd
			return services.SignedAssetResponse{
				URL:       "https://storage.googleapis.com/bucket/signed-download",
				Method:    http.MethodGet,
				ExpiresAt: time.Date(2025, 3, 10, 9, 10, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newAssetRouter(assets)

	payload := []byte(`{"case_id": "reg_case1", "storage_ref": " registrations/reg_case1/staff/form1/up000001/form1.pdf "}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/assets:signed-download", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ActorID != "user-1" || captured.CaseID != "reg_case1" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.StorageRef != "registrations/reg_case1/staff/form1/up000001/form1.pdf" {
		t.Fatalf("expected trimmed storage ref, got %q", captured.StorageRef)
	}

	var resp signedDownloadResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Method != http.MethodGet || resp.URL == "" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestSignedRequestsAreRateLimited(t *testing.T) {
	assets := &stubAssetService{
		downloadFn: func(context.Context, services.SignedDownloadCommand) (services.SignedAssetResponse, error) {
			return services.SignedAssetResponse{URL: "https://storage.googleapis.com/bucket/x", Method: http.MethodGet}, nil
		},
	}
	router := newAssetRouter(assets, WithAssetRateLimit(2, time.Minute))

	payload := []byte(`{"case_id": "reg_case1", "storage_ref": "registrations/reg_case1/staff/form1/up000001/form1.pdf"}`)
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/assets:signed-download", payload))
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: expected status 200, got %d", i+1, rr.Code)
		}
	}

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/assets:signed-download", payload))

	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "rate_limited" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}
