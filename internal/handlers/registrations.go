package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/auth"
	"github.com/formacorp/incorporation-api/internal/platform/httpx"
	"github.com/formacorp/incorporation-api/internal/services"
)

const maxRegistrationBodySize = 10 << 20

// RegistrationHandlers exposes the applicant-facing registration endpoints.
type RegistrationHandlers struct {
	authn    *auth.Authenticator
	workflow services.WorkflowService
	exchange services.DocumentExchange
	catalog  services.CatalogService
}

// NewRegistrationHandlers constructs applicant registration handlers.
func NewRegistrationHandlers(authn *auth.Authenticator, workflow services.WorkflowService, exchange services.DocumentExchange, catalog services.CatalogService) *RegistrationHandlers {
	return &RegistrationHandlers{
		authn:    authn,
		workflow: workflow,
		exchange: exchange,
		catalog:  catalog,
	}
}

// Routes registers the /me endpoints.
func (h *RegistrationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/registration", h.getRegistration)
	r.Post("/registration", h.createRegistration)
	r.Post("/registration/{caseID}:resubmit-payment", h.resubmitPayment)
	r.Put("/registration/{caseID}/details", h.saveDetails)
	r.Put("/registration/{caseID}/shareholders", h.upsertShareholder)
	r.Delete("/registration/{caseID}/shareholders/{partyID}", h.removeShareholder)
	r.Put("/registration/{caseID}/directors", h.appointDirector)
	r.Delete("/registration/{caseID}/directors/{partyID}", h.removeDirector)
	r.Post("/registration/{caseID}/balance-receipt", h.attachBalanceReceipt)
	r.Post("/registration/{caseID}:acknowledge", h.acknowledgeDocuments)
	r.Post("/checkout-sessions", h.createCheckoutSession)
}

func (h *RegistrationHandlers) getRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	reg, err := h.workflow.GetRegistrationForApplicant(ctx, identity.UID)
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type createRegistrationRequest struct {
	PackageID      string          `json:"package_id"`
	Details        detailsRequest  `json:"details"`
	PaymentReceipt *bundleRequest  `json:"payment_receipt"`
	Metadata       map[string]any  `json:"metadata"`
}

func (h *RegistrationHandlers) createRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req createRegistrationRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	cmd := services.CreateRegistrationCommand{
		ApplicantID: identity.UID,
		PackageID:   strings.TrimSpace(req.PackageID),
		Details:     req.Details.toDomain(),
		Metadata:    cloneMap(req.Metadata),
	}
	if req.PaymentReceipt != nil {
		bundle := req.PaymentReceipt.toDomain()
		cmd.PaymentReceipt = &bundle
	}

	reg, err := h.workflow.CreateRegistration(ctx, cmd)
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type attachReceiptRequest struct {
	Receipt bundleRequest `json:"receipt"`
}

func (h *RegistrationHandlers) resubmitPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req attachReceiptRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	reg, err := h.workflow.ResubmitPayment(ctx, services.AttachReceiptCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleApplicant,
		Receipt: req.Receipt.toDomain(),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *RegistrationHandlers) saveDetails(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req detailsRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	reg, err := h.workflow.SaveCompanyDetails(ctx, services.SaveCompanyDetailsCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleApplicant,
		Details: req.toDomain(),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type shareholderRequest struct {
	ID         string          `json:"id"`
	FullName   string          `json:"full_name"`
	NIC        string          `json:"nic"`
	Address    string          `json:"address"`
	SharesHeld int             `json:"shares_held"`
	IsDirector bool            `json:"is_director"`
	Documents  []bundleRequest `json:"documents"`
}

func (h *RegistrationHandlers) upsertShareholder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req shareholderRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	sh := domain.Shareholder{
		ID:         strings.TrimSpace(req.ID),
		FullName:   strings.TrimSpace(req.FullName),
		NIC:        strings.TrimSpace(req.NIC),
		Address:    strings.TrimSpace(req.Address),
		SharesHeld: req.SharesHeld,
		IsDirector: req.IsDirector,
	}
	for _, doc := range req.Documents {
		sh.Documents = append(sh.Documents, doc.toDomain())
	}

	reg, err := h.workflow.UpsertShareholder(ctx, services.UpsertShareholderCommand{
		CaseID:      chi.URLParam(r, "caseID"),
		ActorID:     identity.UID,
		Role:        domain.RoleApplicant,
		Shareholder: sh,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *RegistrationHandlers) removeShareholder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	reg, err := h.workflow.RemoveShareholder(ctx, services.RemovePartyCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleApplicant,
		PartyID: chi.URLParam(r, "partyID"),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type directorRequest struct {
	ID             string          `json:"id"`
	ShareholderRef string          `json:"shareholder_ref"`
	FullName       string          `json:"full_name"`
	NIC            string          `json:"nic"`
	Address        string          `json:"address"`
	Documents      []bundleRequest `json:"documents"`
}

func (h *RegistrationHandlers) appointDirector(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req directorRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	d := domain.Director{
		ID:       strings.TrimSpace(req.ID),
		FullName: strings.TrimSpace(req.FullName),
		NIC:      strings.TrimSpace(req.NIC),
		Address:  strings.TrimSpace(req.Address),
	}
	if ref := strings.TrimSpace(req.ShareholderRef); ref != "" {
		d.ShareholderRef = &ref
	}
	for _, doc := range req.Documents {
		d.Documents = append(d.Documents, doc.toDomain())
	}

	reg, err := h.workflow.AppointDirector(ctx, services.AppointDirectorCommand{
		CaseID:   chi.URLParam(r, "caseID"),
		ActorID:  identity.UID,
		Role:     domain.RoleApplicant,
		Director: d,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *RegistrationHandlers) removeDirector(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	reg, err := h.workflow.RemoveDirector(ctx, services.RemovePartyCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleApplicant,
		PartyID: chi.URLParam(r, "partyID"),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *RegistrationHandlers) attachBalanceReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req attachReceiptRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	reg, err := h.workflow.AttachBalanceReceipt(ctx, services.AttachReceiptCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleApplicant,
		Receipt: req.Receipt.toDomain(),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type commitDocumentsRequest struct {
	Slots      []slotEntryRequest   `json:"slots"`
	Additional []titledEntryRequest `json:"additional"`
}

func (h *RegistrationHandlers) acknowledgeDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req commitDocumentsRequest
	if !decodeJSONBodyAllowEmpty(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	caseID := chi.URLParam(r, "caseID")
	batch, ok := resolveBatch(ctx, w, h.exchange, caseID, domain.RoleApplicant, req)
	if !ok {
		return
	}

	reg, err := h.workflow.AcknowledgeDocuments(ctx, services.CommitDocumentsCommand{
		CaseID:  caseID,
		ActorID: identity.UID,
		Role:    domain.RoleApplicant,
		Batch:   batch,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type checkoutSessionRequest struct {
	CaseID     string `json:"case_id"`
	PackageID  string `json:"package_id"`
	Phase      string `json:"phase"`
	SuccessURL string `json:"success_url"`
	CancelURL  string `json:"cancel_url"`
}

func (h *RegistrationHandlers) createCheckoutSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	var req checkoutSessionRequest
	if !decodeJSONBody(ctx, w, r, defaultMaxBodySize, &req) {
		return
	}

	result, err := h.catalog.CreateCheckoutSession(ctx, services.CheckoutSessionCommand{
		CaseID:         strings.TrimSpace(req.CaseID),
		PackageID:      strings.TrimSpace(req.PackageID),
		ApplicantID:    identity.UID,
		Phase:          services.CheckoutPhase(strings.ToLower(strings.TrimSpace(req.Phase))),
		SuccessURL:     strings.TrimSpace(req.SuccessURL),
		CancelURL:      strings.TrimSpace(req.CancelURL),
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutSessionResponse{
		SessionID:   result.SessionID,
		Provider:    result.Provider,
		RedirectURL: result.RedirectURL,
		Amount:      result.Amount,
		Currency:    result.Currency,
		Phase:       string(result.Phase),
		ExpiresAt:   formatTime(result.ExpiresAt),
	})
}

type checkoutSessionResponse struct {
	SessionID   string `json:"session_id"`
	Provider    string `json:"provider"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Phase       string `json:"phase"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// resolveBatch merges pre-uploaded bundle references with inline content that
// still needs to go through the exchange uploader.
func resolveBatch(ctx context.Context, w http.ResponseWriter, exchange services.DocumentExchange, caseID string, role domain.Role, req commitDocumentsRequest) (services.PendingBatch, bool) {
	batch, slotUploads, titledUploads := batchFromEntries(req.Slots, req.Additional)
	if len(slotUploads) == 0 && len(titledUploads) == 0 {
		return batch, true
	}
	if exchange == nil {
		httpx.WriteError(ctx, w, httpx.NewError("exchange_unavailable", "document exchange unavailable", http.StatusServiceUnavailable))
		return services.PendingBatch{}, false
	}

	uploaded, err := exchange.UploadBatch(ctx, services.UploadBatchCommand{
		CaseID:     caseID,
		Role:       role,
		Slots:      slotUploads,
		Additional: titledUploads,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return services.PendingBatch{}, false
	}

	for slot, bundle := range uploaded.Slots {
		if batch.Slots == nil {
			batch.Slots = make(map[string]services.DocumentBundle)
		}
		batch.Slots[slot] = bundle
	}
	batch.Additional = append(batch.Additional, uploaded.Additional...)
	return batch, true
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		case errors.Is(err, errEmptyBody):
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func decodeJSONBodyAllowEmpty(ctx context.Context, w http.ResponseWriter, r *http.Request, limit int64, dst any) bool {
	body, err := readLimitedBody(r, limit)
	if err != nil {
		switch {
		case errors.Is(err, errEmptyBody):
			return true
		case errors.Is(err, errBodyTooLarge):
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		}
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return false
	}
	return true
}

func writeRegistrationError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var guard *domain.GuardFailedError
	if errors.As(err, &guard) {
		httpx.WriteError(ctx, w, httpx.NewError("guard_failed", guard.Error(), http.StatusConflict).WithDetails(map[string]any{
			"action": guard.Action,
			"reason": guard.Reason,
		}))
		return
	}

	var incomplete *domain.IncompleteSetError
	if errors.As(err, &incomplete) {
		httpx.WriteError(ctx, w, httpx.NewError("incomplete_document_set", incomplete.Error(), http.StatusUnprocessableEntity).WithDetails(map[string]any{
			"slot": incomplete.Slot,
		}))
		return
	}

	switch {
	case errors.Is(err, services.ErrWorkflowInvalidInput),
		errors.Is(err, services.ErrUploadBatchEmpty),
		errors.Is(err, domain.ErrInvalidSlot):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutPhaseMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_phase_mismatch", err.Error(), http.StatusConflict))
	case errors.Is(err, domain.ErrUnauthorizedAction):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "action not permitted for role", http.StatusForbidden))
	case errors.Is(err, domain.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("registration_not_found", "registration not found", http.StatusNotFound))
	case errors.Is(err, domain.ErrSlotLocked):
		httpx.WriteError(ctx, w, httpx.NewError("registration_locked", "registration is completed and locked", http.StatusConflict))
	case errors.Is(err, domain.ErrStaleWrite):
		httpx.WriteError(ctx, w, httpx.NewError("stale_write", "registration was modified concurrently, reload and retry", http.StatusConflict))
	case errors.Is(err, domain.ErrUpstreamTimeout):
		httpx.WriteError(ctx, w, httpx.NewError("upstream_timeout", "upstream dependency timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("registration_error", "failed to process registration request", http.StatusInternalServerError))
	}
}
