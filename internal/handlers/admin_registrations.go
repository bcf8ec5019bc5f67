package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/auth"
	"github.com/formacorp/incorporation-api/internal/platform/httpx"
	"github.com/formacorp/incorporation-api/internal/services"
)

const (
	defaultRegistrationPageSize = 25
	maxRegistrationPageSize     = 100
)

// AdminRegistrationHandlers exposes the staff review endpoints.
type AdminRegistrationHandlers struct {
	authn    *auth.Authenticator
	workflow services.WorkflowService
	exchange services.DocumentExchange
	audit    services.AuditLogService
}

// NewAdminRegistrationHandlers constructs staff registration handlers.
func NewAdminRegistrationHandlers(authn *auth.Authenticator, workflow services.WorkflowService, exchange services.DocumentExchange, audit services.AuditLogService) *AdminRegistrationHandlers {
	return &AdminRegistrationHandlers{
		authn:    authn,
		workflow: workflow,
		exchange: exchange,
		audit:    audit,
	}
}

// Routes registers the staff endpoints.
func (h *AdminRegistrationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleStaff, auth.RoleAdmin))
	}
	r.Get("/", h.listRegistrations)
	r.Get("/{caseID}", h.getRegistration)
	r.Get("/{caseID}/audit-logs", h.listAuditLogs)
	r.Post("/{caseID}:approve-payment", h.approvePayment)
	r.Post("/{caseID}:reject-payment", h.rejectPayment)
	r.Put("/{caseID}/details", h.saveDetails)
	r.Put("/{caseID}/shareholders", h.upsertShareholder)
	r.Delete("/{caseID}/shareholders/{partyID}", h.removeShareholder)
	r.Put("/{caseID}/directors", h.appointDirector)
	r.Delete("/{caseID}/directors/{partyID}", h.removeDirector)
	r.Post("/{caseID}:approve-details", h.approveDetails)
	r.Post("/{caseID}:publish-documents", h.publishDocuments)
	r.Put("/{caseID}/documents/{slot}", h.replaceDocument)
	r.Post("/{caseID}:review-balance", h.reviewBalanceReceipt)
	r.Post("/{caseID}:continue", h.continueToIncorporation)
	r.Post("/{caseID}:submit-final", h.submitFinalDocuments)
	r.Post("/{caseID}:complete", h.completeRegistration)
}

func (h *AdminRegistrationHandlers) listRegistrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filter, err := buildRegistrationListFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.workflow.ListRegistrations(ctx, filter)
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}

	resp := registrationListResponse{
		Items:         make([]registrationSummaryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for i := range page.Items {
		resp.Items = append(resp.Items, buildRegistrationSummary(page.Items[i]))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func buildRegistrationListFilter(r *http.Request) (services.RegistrationListFilter, error) {
	query := r.URL.Query()

	filter := services.RegistrationListFilter{
		ApplicantID: strings.TrimSpace(query.Get("applicant_id")),
		PackageID:   strings.TrimSpace(query.Get("package_id")),
		Sort:        domain.SortDesc,
		Pagination: domain.Pagination{
			PageSize:  defaultRegistrationPageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}

	for _, value := range parseFilterValues(query["status"]) {
		filter.Status = append(filter.Status, domain.Status(value))
	}
	for _, value := range parseFilterValues(query["stage"]) {
		filter.Stage = append(filter.Stage, domain.Stage(value))
	}

	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return services.RegistrationListFilter{}, fmt.Errorf("page_size must be a positive integer")
		}
		if size > maxRegistrationPageSize {
			size = maxRegistrationPageSize
		}
		filter.Pagination.PageSize = size
	}

	if strings.EqualFold(strings.TrimSpace(query.Get("sort")), string(domain.SortAsc)) {
		filter.Sort = domain.SortAsc
	}

	if raw := strings.TrimSpace(query.Get("created_after")); raw != "" {
		from, err := parseTimeParam(raw)
		if err != nil {
			return services.RegistrationListFilter{}, fmt.Errorf("created_after %w", err)
		}
		filter.CreatedAt.From = &from
	}
	if raw := strings.TrimSpace(query.Get("created_before")); raw != "" {
		to, err := parseTimeParam(raw)
		if err != nil {
			return services.RegistrationListFilter{}, fmt.Errorf("created_before %w", err)
		}
		filter.CreatedAt.To = &to
	}

	return filter, nil
}

func (h *AdminRegistrationHandlers) getRegistration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	reg, err := h.workflow.GetRegistration(ctx, chi.URLParam(r, "caseID"))
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type auditLogListResponse struct {
	Entries       []auditLogEntryPayload `json:"entries"`
	NextPageToken string                 `json:"next_page_token,omitempty"`
}

type auditLogEntryPayload struct {
	ID        string         `json:"id"`
	Actor     string         `json:"actor"`
	ActorType string         `json:"actor_type"`
	Action    string         `json:"action"`
	TargetRef string         `json:"target_ref"`
	Severity  string         `json:"severity,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Diff      map[string]any `json:"diff,omitempty"`
	CreatedAt string         `json:"created_at"`
}

func (h *AdminRegistrationHandlers) listAuditLogs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.audit == nil {
		httpx.WriteError(ctx, w, httpx.NewError("audit_unavailable", "audit log service unavailable", http.StatusServiceUnavailable))
		return
	}

	caseID := strings.TrimSpace(chi.URLParam(r, "caseID"))
	page, err := h.audit.List(ctx, services.AuditLogFilter{
		TargetRef: "registrations/" + caseID,
		Pagination: domain.Pagination{
			PageSize:  defaultRegistrationPageSize,
			PageToken: strings.TrimSpace(r.URL.Query().Get("page_token")),
		},
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}

	resp := auditLogListResponse{
		Entries:       make([]auditLogEntryPayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, entry := range page.Items {
		resp.Entries = append(resp.Entries, auditLogEntryPayload{
			ID:        entry.ID,
			Actor:     entry.Actor,
			ActorType: entry.ActorType,
			Action:    entry.Action,
			TargetRef: entry.TargetRef,
			Severity:  entry.Severity,
			RequestID: entry.RequestID,
			Metadata:  cloneMap(entry.Metadata),
			Diff:      cloneMap(entry.Diff),
			CreatedAt: formatTime(entry.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type decisionRequest struct {
	Reason   string         `json:"reason"`
	Metadata map[string]any `json:"metadata"`
}

func (h *AdminRegistrationHandlers) decide(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error)) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req decisionRequest
	if !decodeJSONBodyAllowEmpty(ctx, w, r, defaultMaxBodySize, &req) {
		return
	}

	reg, err := fn(ctx, services.DecisionCommand{
		CaseID:   chi.URLParam(r, "caseID"),
		ActorID:  identity.UID,
		Role:     domain.RoleStaff,
		Reason:   strings.TrimSpace(req.Reason),
		Metadata: cloneMap(req.Metadata),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *AdminRegistrationHandlers) approvePayment(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.ApprovePayment)
}

func (h *AdminRegistrationHandlers) rejectPayment(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.RejectPayment)
}

func (h *AdminRegistrationHandlers) approveDetails(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.ApproveDetails)
}

func (h *AdminRegistrationHandlers) continueToIncorporation(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.ContinueToIncorporation)
}

func (h *AdminRegistrationHandlers) completeRegistration(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.workflow.CompleteRegistration)
}

func (h *AdminRegistrationHandlers) saveDetails(w http.ResponseWriter, r *http.Request) {
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
		Role:    domain.RoleStaff,
		Details: req.toDomain(),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *AdminRegistrationHandlers) upsertShareholder(w http.ResponseWriter, r *http.Request) {
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
		Role:        domain.RoleStaff,
		Shareholder: sh,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *AdminRegistrationHandlers) removeShareholder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	reg, err := h.workflow.RemoveShareholder(ctx, services.RemovePartyCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleStaff,
		PartyID: chi.URLParam(r, "partyID"),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *AdminRegistrationHandlers) appointDirector(w http.ResponseWriter, r *http.Request) {
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
		Role:     domain.RoleStaff,
		Director: d,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *AdminRegistrationHandlers) removeDirector(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	reg, err := h.workflow.RemoveDirector(ctx, services.RemovePartyCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleStaff,
		PartyID: chi.URLParam(r, "partyID"),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

func (h *AdminRegistrationHandlers) publishDocuments(w http.ResponseWriter, r *http.Request) {
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
	batch, ok := resolveBatch(ctx, w, h.exchange, caseID, domain.RoleStaff, req)
	if !ok {
		return
	}

	reg, err := h.workflow.PublishDocuments(ctx, services.CommitDocumentsCommand{
		CaseID:  caseID,
		ActorID: identity.UID,
		Role:    domain.RoleStaff,
		Batch:   batch,
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type replaceDocumentRequest struct {
	Bundle bundleRequest `json:"bundle"`
}

func (h *AdminRegistrationHandlers) replaceDocument(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req replaceDocumentRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	reg, err := h.workflow.ReplaceStaffDocument(ctx, services.ReplaceDocumentCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleStaff,
		Slot:    chi.URLParam(r, "slot"),
		Bundle:  req.Bundle.toDomain(),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type reviewBalanceRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

func (h *AdminRegistrationHandlers) reviewBalanceReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req reviewBalanceRequest
	if !decodeJSONBody(ctx, w, r, defaultMaxBodySize, &req) {
		return
	}

	reg, err := h.workflow.ReviewBalanceReceipt(ctx, services.ReviewBalanceReceiptCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleStaff,
		Approve: req.Approve,
		Note:    strings.TrimSpace(req.Note),
	})
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}

type submitFinalRequest struct {
	Certificate *bundleRequest       `json:"certificate"`
	Additional  []titledEntryRequest `json:"additional"`
}

func (h *AdminRegistrationHandlers) submitFinalDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	var req submitFinalRequest
	if !decodeJSONBody(ctx, w, r, maxRegistrationBodySize, &req) {
		return
	}

	cmd := services.SubmitFinalDocumentsCommand{
		CaseID:  chi.URLParam(r, "caseID"),
		ActorID: identity.UID,
		Role:    domain.RoleStaff,
	}
	if req.Certificate != nil {
		bundle := req.Certificate.toDomain()
		cmd.Certificate = &bundle
	}
	for _, entry := range req.Additional {
		cmd.Additional = append(cmd.Additional, services.TitledDocument{
			Title:  strings.TrimSpace(entry.Title),
			Bundle: entry.Bundle.toDomain(),
		})
	}

	reg, err := h.workflow.SubmitFinalDocuments(ctx, cmd)
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, registrationResponse{Registration: buildRegistrationPayload(reg)})
}
