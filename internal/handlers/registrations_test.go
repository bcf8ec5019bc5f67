package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/auth"
	"github.com/formacorp/incorporation-api/internal/services"
)

type stubWorkflowService struct {
	createFn          func(ctx context.Context, cmd services.CreateRegistrationCommand) (services.RegistrationCase, error)
	getFn             func(ctx context.Context, caseID string) (services.RegistrationCase, error)
	getForApplicantFn func(ctx context.Context, applicantID string) (services.RegistrationCase, error)
	listFn            func(ctx context.Context, filter services.RegistrationListFilter) (domain.CursorPage[services.RegistrationCase], error)

	approvePaymentFn  func(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error)
	rejectPaymentFn   func(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error)
	resubmitPaymentFn func(ctx context.Context, cmd services.AttachReceiptCommand) (services.RegistrationCase, error)

	saveDetailsFn       func(ctx context.Context, cmd services.SaveCompanyDetailsCommand) (services.RegistrationCase, error)
	upsertShareholderFn func(ctx context.Context, cmd services.UpsertShareholderCommand) (services.RegistrationCase, error)
	removeShareholderFn func(ctx context.Context, cmd services.RemovePartyCommand) (services.RegistrationCase, error)
	appointDirectorFn   func(ctx context.Context, cmd services.AppointDirectorCommand) (services.RegistrationCase, error)
	removeDirectorFn    func(ctx context.Context, cmd services.RemovePartyCommand) (services.RegistrationCase, error)
	approveDetailsFn    func(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error)

	publishDocumentsFn     func(ctx context.Context, cmd services.CommitDocumentsCommand) (services.RegistrationCase, error)
	replaceDocumentFn      func(ctx context.Context, cmd services.ReplaceDocumentCommand) (services.RegistrationCase, error)
	acknowledgeDocumentsFn func(ctx context.Context, cmd services.CommitDocumentsCommand) (services.RegistrationCase, error)

	attachBalanceReceiptFn func(ctx context.Context, cmd services.AttachReceiptCommand) (services.RegistrationCase, error)
	reviewBalanceReceiptFn func(ctx context.Context, cmd services.ReviewBalanceReceiptCommand) (services.RegistrationCase, error)

	continueFn    func(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error)
	submitFinalFn func(ctx context.Context, cmd services.SubmitFinalDocumentsCommand) (services.RegistrationCase, error)
	completeFn    func(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error)
}

var errStubNotImplemented = errors.New("not implemented")

func (s *stubWorkflowService) CreateRegistration(ctx context.Context, cmd services.CreateRegistrationCommand) (services.RegistrationCase, error) {
	if s.createFn != nil {
		return s.createFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) GetRegistration(ctx context.Context, caseID string) (services.RegistrationCase, error) {
	if s.getFn != nil {
		return s.getFn(ctx, caseID)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) GetRegistrationForApplicant(ctx context.Context, applicantID string) (services.RegistrationCase, error) {
	if s.getForApplicantFn != nil {
		return s.getForApplicantFn(ctx, applicantID)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) ListRegistrations(ctx context.Context, filter services.RegistrationListFilter) (domain.CursorPage[services.RegistrationCase], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.RegistrationCase]{}, errStubNotImplemented
}

func (s *stubWorkflowService) ApprovePayment(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error) {
	if s.approvePaymentFn != nil {
		return s.approvePaymentFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) RejectPayment(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error) {
	if s.rejectPaymentFn != nil {
		return s.rejectPaymentFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) ResubmitPayment(ctx context.Context, cmd services.AttachReceiptCommand) (services.RegistrationCase, error) {
	if s.resubmitPaymentFn != nil {
		return s.resubmitPaymentFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) SaveCompanyDetails(ctx context.Context, cmd services.SaveCompanyDetailsCommand) (services.RegistrationCase, error) {
	if s.saveDetailsFn != nil {
		return s.saveDetailsFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) UpsertShareholder(ctx context.Context, cmd services.UpsertShareholderCommand) (services.RegistrationCase, error) {
	if s.upsertShareholderFn != nil {
		return s.upsertShareholderFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) RemoveShareholder(ctx context.Context, cmd services.RemovePartyCommand) (services.RegistrationCase, error) {
	if s.removeShareholderFn != nil {
		return s.removeShareholderFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) AppointDirector(ctx context.Context, cmd services.AppointDirectorCommand) (services.RegistrationCase, error) {
	if s.appointDirectorFn != nil {
		return s.appointDirectorFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) RemoveDirector(ctx context.Context, cmd services.RemovePartyCommand) (services.RegistrationCase, error) {
	if s.removeDirectorFn != nil {
		return s.removeDirectorFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) ApproveDetails(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error) {
	if s.approveDetailsFn != nil {
		return s.approveDetailsFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) PublishDocuments(ctx context.Context, cmd services.CommitDocumentsCommand) (services.RegistrationCase, error) {
	if s.publishDocumentsFn != nil {
		return s.publishDocumentsFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) ReplaceStaffDocument(ctx context.Context, cmd services.ReplaceDocumentCommand) (services.RegistrationCase, error) {
	if s.replaceDocumentFn != nil {
		return s.replaceDocumentFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) AcknowledgeDocuments(ctx context.Context, cmd services.CommitDocumentsCommand) (services.RegistrationCase, error) {
	if s.acknowledgeDocumentsFn != nil {
		return s.acknowledgeDocumentsFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) AttachBalanceReceipt(ctx context.Context, cmd services.AttachReceiptCommand) (services.RegistrationCase, error) {
	if s.attachBalanceReceiptFn != nil {
		return s.attachBalanceReceiptFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) ReviewBalanceReceipt(ctx context.Context, cmd services.ReviewBalanceReceiptCommand) (services.RegistrationCase, error) {
	if s.reviewBalanceReceiptFn != nil {
		return s.reviewBalanceReceiptFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) ContinueToIncorporation(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error) {
	if s.continueFn != nil {
		return s.continueFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) SubmitFinalDocuments(ctx context.Context, cmd services.SubmitFinalDocumentsCommand) (services.RegistrationCase, error) {
	if s.submitFinalFn != nil {
		return s.submitFinalFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

func (s *stubWorkflowService) CompleteRegistration(ctx context.Context, cmd services.DecisionCommand) (services.RegistrationCase, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, cmd)
	}
	return services.RegistrationCase{}, errStubNotImplemented
}

type stubDocumentExchange struct {
	uploadFn func(ctx context.Context, cmd services.UploadBatchCommand) (services.PendingBatch, error)
}

func (s *stubDocumentExchange) UploadBatch(ctx context.Context, cmd services.UploadBatchCommand) (services.PendingBatch, error) {
	if s.uploadFn != nil {
		return s.uploadFn(ctx, cmd)
	}
	return services.PendingBatch{}, errStubNotImplemented
}

func (s *stubDocumentExchange) CommitStaffSet(*domain.RegistrationCase, services.PendingBatch, time.Time) error {
	return errStubNotImplemented
}

func (s *stubDocumentExchange) CommitCustomerSet(*domain.RegistrationCase, services.PendingBatch, time.Time) error {
	return errStubNotImplemented
}

type stubCatalogService struct {
	listFn     func(ctx context.Context, filter services.PackageListFilter) (domain.CursorPage[services.IncorporationPackage], error)
	getFn      func(ctx context.Context, packageID string) (services.IncorporationPackage, error)
	checkoutFn func(ctx context.Context, cmd services.CheckoutSessionCommand) (services.CheckoutSessionResult, error)
}

func (s *stubCatalogService) ListPackages(ctx context.Context, filter services.PackageListFilter) (domain.CursorPage[services.IncorporationPackage], error) {
	if s.listFn != nil {
		return s.listFn(ctx, filter)
	}
	return domain.CursorPage[services.IncorporationPackage]{}, errStubNotImplemented
}

func (s *stubCatalogService) GetPackage(ctx context.Context, packageID string) (services.IncorporationPackage, error) {
	if s.getFn != nil {
		return s.getFn(ctx, packageID)
	}
	return services.IncorporationPackage{}, errStubNotImplemented
}

func (s *stubCatalogService) CreateCheckoutSession(ctx context.Context, cmd services.CheckoutSessionCommand) (services.CheckoutSessionResult, error) {
	if s.checkoutFn != nil {
		return s.checkoutFn(ctx, cmd)
	}
	return services.CheckoutSessionResult{}, errStubNotImplemented
}

func sampleRegistrationCase() services.RegistrationCase {
	return services.RegistrationCase{
		ID:          "reg_case1",
		Number:      "FC-2025-000042",
		ApplicantID: "user-1",
		PackageID:   "pkg-standard",
		Stage:       domain.StageContactPayment,
		Status:      domain.StatusPaymentProcessing,
		Details: domain.CompanyDetails{
			ProposedName: "Acme Lanka (Pvt) Ltd",
			ContactEmail: "founder@acme.lk",
		},
		CreatedAt: time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Version:   3,
	}
}

func newRegistrationRouter(workflow services.WorkflowService, exchange services.DocumentExchange, catalog services.CatalogService) *chi.Mux {
	handler := NewRegistrationHandlers(nil, workflow, exchange, catalog)
	router := chi.NewRouter()
	router.Route("/me", handler.Routes)
	return router
}

func authenticatedRequest(method, target string, body []byte) *http.Request {
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-1"}))
}

func TestGetRegistrationRequiresIdentity(t *testing.T) {
	router := newRegistrationRouter(&stubWorkflowService{}, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/me/registration", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "unauthenticated" {
		t.Fatalf("expected unauthenticated error, got %v", body["error"])
	}
}

func TestGetRegistrationReturnsApplicantCase(t *testing.T) {
	var requested string
	workflow := &stubWorkflowService{
		getForApplicantFn: func(_ context.Context, applicantID string) (services.RegistrationCase, error) {
			requested = applicantID
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/me/registration", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if requested != "user-1" {
		t.Fatalf("expected applicant lookup for user-1, got %q", requested)
	}

	var resp registrationResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.Registration.ID != "reg_case1" {
		t.Fatalf("expected case reg_case1, got %q", resp.Registration.ID)
	}
	if resp.Registration.Status != string(domain.StatusPaymentProcessing) {
		t.Fatalf("unexpected status %q", resp.Registration.Status)
	}
	if resp.Registration.Number != "FC-2025-000042" {
		t.Fatalf("unexpected number %q", resp.Registration.Number)
	}
}

func TestGetRegistrationMapsNotFound(t *testing.T) {
	workflow := &stubWorkflowService{
		getForApplicantFn: func(context.Context, string) (services.RegistrationCase, error) {
			return services.RegistrationCase{}, domain.ErrNotFound
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodGet, "/me/registration", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "registration_not_found" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestCreateRegistrationBuildsCommand(t *testing.T) {
	var captured services.CreateRegistrationCommand
	workflow := &stubWorkflowService{
		createFn: func(_ context.Context, cmd services.CreateRegistrationCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	payload := []byte(`{
		"package_id": " pkg-standard ",
		"details": {
			"proposed_name": "Acme Lanka (Pvt) Ltd",
			"business_nature": "software",
			"business_address_line1": "12 Galle Road",
			"contact_email": "founder@acme.lk"
		},
		"payment_receipt": {
			"name": "receipt.pdf",
			"content_type": "application/pdf",
			"size_bytes": 2048,
			"storage_ref": "registrations/reg_case1/payment/up000001/receipt.pdf"
		},
		"metadata": {"channel": "web"}
	}`)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration", payload))

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ApplicantID != "user-1" {
		t.Fatalf("expected applicant user-1, got %q", captured.ApplicantID)
	}
	if captured.PackageID != "pkg-standard" {
		t.Fatalf("expected trimmed package id, got %q", captured.PackageID)
	}
	if captured.Details.ProposedName != "Acme Lanka (Pvt) Ltd" {
		t.Fatalf("unexpected proposed name %q", captured.Details.ProposedName)
	}
	if captured.PaymentReceipt == nil || captured.PaymentReceipt.StorageRef != "registrations/reg_case1/payment/up000001/receipt.pdf" {
		t.Fatalf("expected payment receipt to be forwarded, got %+v", captured.PaymentReceipt)
	}
	if captured.Metadata["channel"] != "web" {
		t.Fatalf("expected metadata to be forwarded, got %v", captured.Metadata)
	}
}

func TestCreateRegistrationRequiresBody(t *testing.T) {
	router := newRegistrationRouter(&stubWorkflowService{}, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration", nil))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCreateRegistrationMapsGuardFailure(t *testing.T) {
	workflow := &stubWorkflowService{
		createFn: func(context.Context, services.CreateRegistrationCommand) (services.RegistrationCase, error) {
			return services.RegistrationCase{}, &domain.GuardFailedError{
				Action: "create_registration",
				Reason: domain.GuardReasonPaymentReceiptMissing,
			}
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration", []byte(`{"package_id":"pkg-standard"}`)))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "guard_failed" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if body["action"] != "create_registration" {
		t.Fatalf("expected action detail, got %v", body["action"])
	}
	if body["reason"] != domain.GuardReasonPaymentReceiptMissing {
		t.Fatalf("expected reason detail, got %v", body["reason"])
	}
}

func TestResubmitPaymentUsesApplicantRole(t *testing.T) {
	var captured services.AttachReceiptCommand
	workflow := &stubWorkflowService{
		resubmitPaymentFn: func(_ context.Context, cmd services.AttachReceiptCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	payload := []byte(`{"receipt": {"name": "receipt-v2.pdf", "content_type": "application/pdf", "size_bytes": 4096, "storage_ref": "registrations/reg_case1/payment/up000002/receipt-v2.pdf"}}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration/reg_case1:resubmit-payment", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CaseID != "reg_case1" {
		t.Fatalf("expected case id from path, got %q", captured.CaseID)
	}
	if captured.Role != domain.RoleApplicant {
		t.Fatalf("expected applicant role, got %q", captured.Role)
	}
	if captured.ActorID != "user-1" {
		t.Fatalf("expected actor from identity, got %q", captured.ActorID)
	}
	if captured.Receipt.Name != "receipt-v2.pdf" {
		t.Fatalf("unexpected receipt %+v", captured.Receipt)
	}
}

func TestRemoveShareholderPassesPartyID(t *testing.T) {
	var captured services.RemovePartyCommand
	workflow := &stubWorkflowService{
		removeShareholderFn: func(_ context.Context, cmd services.RemovePartyCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodDelete, "/me/registration/reg_case1/shareholders/shr_000001", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CaseID != "reg_case1" || captured.PartyID != "shr_000001" {
		t.Fatalf("unexpected command %+v", captured)
	}
	if captured.Role != domain.RoleApplicant {
		t.Fatalf("expected applicant role, got %q", captured.Role)
	}
}

func TestUpsertShareholderForwardsDocuments(t *testing.T) {
	var captured services.UpsertShareholderCommand
	workflow := &stubWorkflowService{
		upsertShareholderFn: func(_ context.Context, cmd services.UpsertShareholderCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	payload := []byte(`{
		"full_name": " Nimal Perera ",
		"nic": "902541234V",
		"address": "7 Lake Drive, Colombo",
		"shares_held": 60,
		"is_director": true,
		"documents": [{"name": "nic-front.jpg", "content_type": "image/jpeg", "size_bytes": 120000, "storage_ref": "registrations/reg_case1/identity/shr_000001/up000003/nic-front.jpg"}]
	}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPut, "/me/registration/reg_case1/shareholders", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Shareholder.FullName != "Nimal Perera" {
		t.Fatalf("expected trimmed name, got %q", captured.Shareholder.FullName)
	}
	if !captured.Shareholder.IsDirector || captured.Shareholder.SharesHeld != 60 {
		t.Fatalf("unexpected shareholder %+v", captured.Shareholder)
	}
	if len(captured.Shareholder.Documents) != 1 || captured.Shareholder.Documents[0].Name != "nic-front.jpg" {
		t.Fatalf("expected identity document to be forwarded, got %+v", captured.Shareholder.Documents)
	}
}

func TestAppointDirectorLinksShareholderRef(t *testing.T) {
	var captured services.AppointDirectorCommand
	workflow := &stubWorkflowService{
		appointDirectorFn: func(_ context.Context, cmd services.AppointDirectorCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	payload := []byte(`{"full_name": "Nimal Perera", "nic": "902541234V", "shareholder_ref": " shr_000001 "}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPut, "/me/registration/reg_case1/directors", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Director.ShareholderRef == nil || *captured.Director.ShareholderRef != "shr_000001" {
		t.Fatalf("expected trimmed shareholder ref, got %v", captured.Director.ShareholderRef)
	}
}

func TestAcknowledgeDocumentsAllowsEmptyBody(t *testing.T) {
	var captured services.CommitDocumentsCommand
	workflow := &stubWorkflowService{
		acknowledgeDocumentsFn: func(_ context.Context, cmd services.CommitDocumentsCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration/reg_case1:acknowledge", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.CaseID != "reg_case1" || captured.Role != domain.RoleApplicant {
		t.Fatalf("unexpected command %+v", captured)
	}
	if !captured.Batch.IsEmpty() {
		t.Fatalf("expected empty batch, got %+v", captured.Batch)
	}
}

func TestAcknowledgeDocumentsUploadsInlineContent(t *testing.T) {
	uploaded := services.PendingBatch{
		Slots: map[string]services.DocumentBundle{
			domain.SlotAddressProof: {
				Name:       "utility-bill.pdf",
				StorageRef: "registrations/reg_case1/customer/addressProof/up000004/utility-bill.pdf",
			},
		},
	}
	var uploadCmd services.UploadBatchCommand
	exchange := &stubDocumentExchange{
		uploadFn: func(_ context.Context, cmd services.UploadBatchCommand) (services.PendingBatch, error) {
			uploadCmd = cmd
			return uploaded, nil
		},
	}
	var captured services.CommitDocumentsCommand
	workflow := &stubWorkflowService{
		acknowledgeDocumentsFn: func(_ context.Context, cmd services.CommitDocumentsCommand) (services.RegistrationCase, error) {
			captured = cmd
			return sampleRegistrationCase(), nil
		},
	}
	router := newRegistrationRouter(workflow, exchange, nil)

	payload := []byte(`{
		"slots": [
			{"slot": "form1", "bundle": {"name": "form1-signed.pdf", "content_type": "application/pdf", "size_bytes": 5120, "storage_ref": "registrations/reg_case1/customer/form1/up000005/form1-signed.pdf"}},
			{"slot": "addressProof", "bundle": {"name": "utility-bill.pdf", "content_type": "application/pdf"}, "content": "JVBERi0xLjQ="}
		]
	}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration/reg_case1:acknowledge", payload))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if uploadCmd.CaseID != "reg_case1" || uploadCmd.Role != domain.RoleApplicant {
		t.Fatalf("unexpected upload command %+v", uploadCmd)
	}
	if len(uploadCmd.Slots) != 1 || uploadCmd.Slots[0].Slot != domain.SlotAddressProof {
		t.Fatalf("expected only inline slot to be uploaded, got %+v", uploadCmd.Slots)
	}
	if len(captured.Batch.Slots) != 2 {
		t.Fatalf("expected merged batch with 2 slots, got %+v", captured.Batch.Slots)
	}
	if captured.Batch.Slots[domain.SlotForm1].StorageRef != "registrations/reg_case1/customer/form1/up000005/form1-signed.pdf" {
		t.Fatalf("expected pre-uploaded reference to survive merge, got %+v", captured.Batch.Slots[domain.SlotForm1])
	}
	if captured.Batch.Slots[domain.SlotAddressProof].StorageRef != uploaded.Slots[domain.SlotAddressProof].StorageRef {
		t.Fatalf("expected uploaded bundle in batch, got %+v", captured.Batch.Slots[domain.SlotAddressProof])
	}
}

func TestAcknowledgeDocumentsWithoutExchangeIsUnavailable(t *testing.T) {
	router := newRegistrationRouter(&stubWorkflowService{}, nil, nil)

	payload := []byte(`{"slots": [{"slot": "addressProof", "bundle": {"name": "bill.pdf", "content_type": "application/pdf"}, "content": "JVBERi0xLjQ="}]}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration/reg_case1:acknowledge", payload))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "exchange_unavailable" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestAcknowledgeDocumentsMapsIncompleteSet(t *testing.T) {
	workflow := &stubWorkflowService{
		acknowledgeDocumentsFn: func(context.Context, services.CommitDocumentsCommand) (services.RegistrationCase, error) {
			return services.RegistrationCase{}, &domain.IncompleteSetError{Slot: domain.SlotAddressProof}
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration/reg_case1:acknowledge", nil))

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "incomplete_document_set" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
	if body["slot"] != domain.SlotAddressProof {
		t.Fatalf("expected missing slot detail, got %v", body["slot"])
	}
}

func TestAttachBalanceReceiptMapsStaleWrite(t *testing.T) {
	workflow := &stubWorkflowService{
		attachBalanceReceiptFn: func(context.Context, services.AttachReceiptCommand) (services.RegistrationCase, error) {
			return services.RegistrationCase{}, domain.ErrStaleWrite
		},
	}
	router := newRegistrationRouter(workflow, nil, nil)

	payload := []byte(`{"receipt": {"name": "balance.pdf", "content_type": "application/pdf", "storage_ref": "registrations/reg_case1/payment/up000006/balance.pdf"}}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/registration/reg_case1/balance-receipt", payload))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "stale_write" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestCreateCheckoutSessionForwardsIdempotencyKey(t *testing.T) {
	var captured services.CheckoutSessionCommand
	catalog := &stubCatalogService{
		checkoutFn: func(_ context.Context, cmd services.CheckoutSessionCommand) (services.CheckoutSessionResult, error) {
			captured = cmd
			return services.CheckoutSessionResult{
				SessionID:   "cs_test_123",
				Provider:    "stripe",
				RedirectURL: "https://checkout.stripe.com/c/pay/cs_test_123",
				Amount:      150000,
				Currency:    "LKR",
				Phase:       services.CheckoutPhaseFull,
				ExpiresAt:   time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC),
			}, nil
		},
	}
	router := newRegistrationRouter(&stubWorkflowService{}, nil, catalog)

	payload := []byte(`{"case_id": "reg_case1", "package_id": "pkg-standard", "phase": "FULL", "success_url": "https://app.formacorp.lk/done", "cancel_url": "https://app.formacorp.lk/cancel"}`)
	req := authenticatedRequest(http.MethodPost, "/me/checkout-sessions", payload)
	req.Header.Set("Idempotency-Key", "idem-42")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.ApplicantID != "user-1" {
		t.Fatalf("expected applicant from identity, got %q", captured.ApplicantID)
	}
	if captured.Phase != services.CheckoutPhaseFull {
		t.Fatalf("expected lowercased phase, got %q", captured.Phase)
	}
	if captured.IdempotencyKey != "idem-42" {
		t.Fatalf("expected idempotency key from header, got %q", captured.IdempotencyKey)
	}

	var resp checkoutSessionResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.SessionID != "cs_test_123" || resp.Provider != "stripe" {
		t.Fatalf("unexpected session payload %+v", resp)
	}
	if resp.Amount != 150000 || resp.Currency != "LKR" || resp.Phase != "full" {
		t.Fatalf("unexpected amounts in payload %+v", resp)
	}
}

func TestCreateCheckoutSessionMapsPhaseMismatch(t *testing.T) {
	catalog := &stubCatalogService{
		checkoutFn: func(context.Context, services.CheckoutSessionCommand) (services.CheckoutSessionResult, error) {
			return services.CheckoutSessionResult{}, services.ErrCheckoutPhaseMismatch
		},
	}
	router := newRegistrationRouter(&stubWorkflowService{}, nil, catalog)

	payload := []byte(`{"case_id": "reg_case1", "package_id": "pkg-standard", "phase": "balance"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/checkout-sessions", payload))

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["error"] != "checkout_phase_mismatch" {
		t.Fatalf("unexpected error code %v", body["error"])
	}
}

func TestCreateCheckoutSessionWithoutCatalog(t *testing.T) {
	router := newRegistrationRouter(&stubWorkflowService{}, nil, nil)

	payload := []byte(`{"case_id": "reg_case1", "package_id": "pkg-standard", "phase": "full"}`)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, authenticatedRequest(http.MethodPost, "/me/checkout-sessions", payload))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
