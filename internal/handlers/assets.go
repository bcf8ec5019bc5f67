package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/auth"
	"github.com/formacorp/incorporation-api/internal/platform/httpx"
	"github.com/formacorp/incorporation-api/internal/services"
)

const maxAssetRequestBody = 4 * 1024

// AssetHandlers issues signed URLs so documents move between the browser and
// the bucket directly, never through the API process.
type AssetHandlers struct {
	authn   *auth.Authenticator
	assets  services.AssetService
	limiter rateLimiter
}

// AssetOption customises asset handler construction.
type AssetOption func(*AssetHandlers)

// WithAssetRateLimit throttles signing requests per identity.
func WithAssetRateLimit(limit int, window time.Duration) AssetOption {
	return func(h *AssetHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, nil)
	}
}

// NewAssetHandlers constructs handlers enforcing Firebase authentication.
func NewAssetHandlers(authn *auth.Authenticator, assets services.AssetService, opts ...AssetOption) *AssetHandlers {
	h := &AssetHandlers{
		authn:  authn,
		assets: assets,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *AssetHandlers) allow(ctx context.Context, w http.ResponseWriter, key string) bool {
	if h.limiter == nil || h.limiter.Allow(key) {
		return true
	}
	httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many signing requests, retry later", http.StatusTooManyRequests))
	return false
}

// Routes registers the asset endpoints on the provided router.
func (h *AssetHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/assets:signed-upload", h.issueSignedUpload)
	group.Post("/assets:signed-download", h.issueSignedDownload)
}

type signedUploadRequest struct {
	CaseID      string `json:"case_id"`
	Purpose     string `json:"purpose"`
	Slot        string `json:"slot,omitempty"`
	PersonID    string `json:"person_id,omitempty"`
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
}

type signedUploadResponse struct {
	AssetID   string            `json:"asset_id"`
	UploadURL string            `json:"upload_url"`
	Method    string            `json:"method"`
	ExpiresAt string            `json:"expires_at,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (h *AssetHandlers) issueSignedUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("asset_service_unavailable", "asset service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !h.allow(ctx, w, identity.UID) {
		return
	}

	var req signedUploadRequest
	if !decodeJSONBody(ctx, w, r, maxAssetRequestBody, &req) {
		return
	}

	response, err := h.assets.IssueSignedUpload(ctx, services.SignedUploadCommand{
		ActorID:     identity.UID,
		CaseID:      strings.TrimSpace(req.CaseID),
		Purpose:     strings.TrimSpace(req.Purpose),
		Slot:        strings.TrimSpace(req.Slot),
		PersonID:    strings.TrimSpace(req.PersonID),
		FileName:    strings.TrimSpace(req.FileName),
		ContentType: strings.TrimSpace(req.ContentType),
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		writeAssetError(ctx, w, err)
		return
	}

	payload := signedUploadResponse{
		AssetID:   response.AssetID,
		UploadURL: response.URL,
		Method:    response.Method,
		Headers:   response.Headers,
	}
	if !response.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(response.ExpiresAt)
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

type signedDownloadRequest struct {
	CaseID     string `json:"case_id"`
	StorageRef string `json:"storage_ref"`
}

type signedDownloadResponse struct {
	URL       string            `json:"url"`
	Method    string            `json:"method,omitempty"`
	ExpiresAt string            `json:"expires_at,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

func (h *AssetHandlers) issueSignedDownload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.assets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("asset_service_unavailable", "asset service is unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if !h.allow(ctx, w, identity.UID) {
		return
	}

	var req signedDownloadRequest
	if !decodeJSONBody(ctx, w, r, maxAssetRequestBody, &req) {
		return
	}

	response, err := h.assets.IssueSignedDownload(ctx, services.SignedDownloadCommand{
		ActorID:    identity.UID,
		CaseID:     strings.TrimSpace(req.CaseID),
		StorageRef: strings.TrimSpace(req.StorageRef),
	})
	if err != nil {
		writeAssetError(ctx, w, err)
		return
	}

	payload := signedDownloadResponse{
		URL:    response.URL,
		Method: response.Method,
	}
	if !response.ExpiresAt.IsZero() {
		payload.ExpiresAt = formatTime(response.ExpiresAt)
	}
	if len(response.Headers) > 0 {
		payload.Headers = response.Headers
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func writeAssetError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownAssetPurpose),
		errors.Is(err, services.ErrWorkflowInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, domain.ErrUnauthorizedAction):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "insufficient permissions for asset", http.StatusForbidden))
	case errors.Is(err, domain.ErrUpstreamTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_timeout", "signing backend timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("asset_service_error", "failed to sign asset URL", http.StatusBadGateway))
	}
}
