package domain

import (
	"maps"
	"strings"
	"time"
)

// Stage is the coarse registration step shown to the applicant.
type Stage string

const (
	// StageContactPayment covers contact capture and the initial payment.
	StageContactPayment Stage = "contact_payment"
	// StageCompanyDetails covers company particulars and officer entry.
	StageCompanyDetails Stage = "company_details"
	// StageDocumentation covers the staff/applicant document exchange.
	StageDocumentation Stage = "documentation"
	// StageIncorporation covers filing and final document delivery.
	StageIncorporation Stage = "incorporation"
)

// Status is the fine-grained workflow status driving guard logic.
type Status string

const (
	// StatusPaymentProcessing indicates the initial payment awaits staff review.
	StatusPaymentProcessing Status = "payment_processing"
	// StatusPaymentRejected indicates staff rejected the payment receipt.
	StatusPaymentRejected Status = "payment_rejected"
	// StatusDocumentationProcessing indicates company details and staff documents are in flight.
	StatusDocumentationProcessing Status = "documentation_processing"
	// StatusDocumentsPublished indicates the staff document set is visible to the applicant.
	StatusDocumentsPublished Status = "documents_published"
	// StatusIncorporationProcessing indicates signed counterparts were returned and filing is underway.
	StatusIncorporationProcessing Status = "incorporation_processing"
	// StatusDocumentsSubmitted indicates final documents were staged for delivery.
	StatusDocumentsSubmitted Status = "documents_submitted"
	// StatusCompleted indicates the case is terminal.
	StatusCompleted Status = "completed"
)

// BalanceReceiptStatus tracks the balance-payment sub-machine, independent of
// the case status and stage.
type BalanceReceiptStatus string

const (
	// BalancePending indicates the balance receipt awaits staff review.
	BalancePending BalanceReceiptStatus = "pending"
	// BalanceApproved unlocks the incorporation guard for advance+balance packages.
	BalanceApproved BalanceReceiptStatus = "approved"
	// BalanceRejected indicates staff rejected the receipt; the applicant may re-upload.
	BalanceRejected BalanceReceiptStatus = "rejected"
)

// StageForStatus derives the stage from the status and the approval gates.
// The gates disambiguate the statuses shared across stage boundaries so the
// applicant can never be shown a stage whose gate is still false.
func StageForStatus(status Status, detailsApproved, documentsApproved bool) Stage {
	switch status {
	case StatusPaymentProcessing, StatusPaymentRejected:
		return StageContactPayment
	case StatusDocumentationProcessing:
		if detailsApproved {
			return StageDocumentation
		}
		return StageCompanyDetails
	case StatusDocumentsPublished:
		return StageDocumentation
	case StatusIncorporationProcessing:
		if documentsApproved {
			return StageIncorporation
		}
		return StageDocumentation
	case StatusDocumentsSubmitted, StatusCompleted:
		return StageIncorporation
	}
	return StageContactPayment
}

// BalanceReceipt pairs the uploaded balance payment proof with its own
// review sub-status and reviewer metadata.
type BalanceReceipt struct {
	Bundle     DocumentBundle
	Status     BalanceReceiptStatus
	ReviewedBy *string
	ReviewedAt *time.Time
	Note       string
}

// CompanyDetails holds the particulars captured during the CompanyDetails stage.
type CompanyDetails struct {
	ProposedName          string
	BusinessNature        string
	BusinessAddressLine1  string
	BusinessAddressLine2  string
	BusinessAddressCity   string
	BusinessAddressNumber string
	PostalCode            string
	ContactEmail          string
	ContactPhone          string
}

// Complete reports whether every field required for the details approval
// guard is present. Director presence is checked separately by the engine.
func (d CompanyDetails) Complete() bool {
	return strings.TrimSpace(d.ProposedName) != "" &&
		strings.TrimSpace(d.BusinessNature) != "" &&
		strings.TrimSpace(d.BusinessAddressLine1) != "" &&
		strings.TrimSpace(d.ContactEmail) != ""
}

// Shareholder captures an owner's identity and their identity-proof documents.
type Shareholder struct {
	ID          string
	FullName    string
	NIC         string
	Address     string
	SharesHeld  int
	IsDirector  bool
	Documents   []DocumentBundle
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Director captures an appointed director. Directors carry a stable ID
// assigned at creation; form18 slots are keyed by that ID.
type Director struct {
	ID             string
	ShareholderRef *string
	FullName       string
	NIC            string
	Address        string
	Documents      []DocumentBundle
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// CaseAudit records the actors responsible for creating/updating the case.
type CaseAudit struct {
	CreatedBy *string
	UpdatedBy *string
}

// RegistrationCase is the aggregate root for one incorporation case. All
// mutation goes through the role-guarded methods below or the workflow
// engine; the persistence layer treats it as an opaque versioned document.
type RegistrationCase struct {
	ID          string
	Number      string
	ApplicantID string

	Stage  Stage
	Status Status

	PaymentApproved   bool
	DetailsApproved   bool
	DocumentsApproved bool

	PackageID string

	PaymentReceipt      *DocumentBundle
	PaymentReviewedBy   *string
	PaymentReviewedAt   *time.Time
	PaymentRejectReason *string

	BalanceReceipt *BalanceReceipt

	Details      CompanyDetails
	Shareholders []Shareholder
	Directors    []Director

	StaffDocuments           map[string]DocumentSlot
	AdditionalStaffDocuments []TitledDocument
	DocumentsPublished       bool
	DocumentsPublishedAt     *time.Time

	CustomerDocuments       map[string]DocumentSlot
	DocumentsAcknowledged   bool
	DocumentsAcknowledgedAt *time.Time

	IncorporationCertificate *DocumentBundle
	AdditionalDocuments      []TitledDocument

	DocumentsSubmittedAt *time.Time
	CompletedAt          *time.Time

	Audit     CaseAudit
	Metadata  map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time

	// Version backs optimistic concurrency at the persistence boundary.
	Version int64
}

// Terminal reports whether the case reached its terminal status.
func (r *RegistrationCase) Terminal() bool {
	return r.Status == StatusCompleted
}

// SyncStage recomputes the derived stage from status and gates.
func (r *RegistrationCase) SyncStage() {
	r.Stage = StageForStatus(r.Status, r.DetailsApproved, r.DocumentsApproved)
}

// Clone returns a deep copy of the case so the engine can apply transitions
// without mutating the caller's instance on guard failure.
func (r *RegistrationCase) Clone() RegistrationCase {
	cloned := *r
	cloned.PaymentReceipt = cloneBundlePtr(r.PaymentReceipt)
	cloned.PaymentReviewedBy = cloneStrPtr(r.PaymentReviewedBy)
	cloned.PaymentReviewedAt = cloneTimePtr(r.PaymentReviewedAt)
	cloned.PaymentRejectReason = cloneStrPtr(r.PaymentRejectReason)
	if r.BalanceReceipt != nil {
		br := *r.BalanceReceipt
		br.ReviewedBy = cloneStrPtr(r.BalanceReceipt.ReviewedBy)
		br.ReviewedAt = cloneTimePtr(r.BalanceReceipt.ReviewedAt)
		cloned.BalanceReceipt = &br
	}
	cloned.Shareholders = cloneShareholders(r.Shareholders)
	cloned.Directors = cloneDirectors(r.Directors)
	cloned.StaffDocuments = cloneSlots(r.StaffDocuments)
	cloned.CustomerDocuments = cloneSlots(r.CustomerDocuments)
	cloned.AdditionalStaffDocuments = append([]TitledDocument(nil), r.AdditionalStaffDocuments...)
	cloned.AdditionalDocuments = append([]TitledDocument(nil), r.AdditionalDocuments...)
	cloned.DocumentsPublishedAt = cloneTimePtr(r.DocumentsPublishedAt)
	cloned.DocumentsAcknowledgedAt = cloneTimePtr(r.DocumentsAcknowledgedAt)
	cloned.IncorporationCertificate = cloneBundlePtr(r.IncorporationCertificate)
	cloned.DocumentsSubmittedAt = cloneTimePtr(r.DocumentsSubmittedAt)
	cloned.CompletedAt = cloneTimePtr(r.CompletedAt)
	cloned.Audit = CaseAudit{CreatedBy: cloneStrPtr(r.Audit.CreatedBy), UpdatedBy: cloneStrPtr(r.Audit.UpdatedBy)}
	if r.Metadata != nil {
		cloned.Metadata = maps.Clone(r.Metadata)
	}
	return cloned
}

// Mutators ------------------------------------------------------------------
//
// Each mutator takes the acting role and fails with ErrUnauthorizedAction if
// the role is not permitted, ErrInvalidSlot for unknown slot names, and
// ErrSlotLocked once the case is terminal. Mutators return the previous
// value for audit and event payloads.

// AttachPaymentReceipt records the applicant's initial payment proof.
func (r *RegistrationCase) AttachPaymentReceipt(role Role, bundle DocumentBundle, now time.Time) (*DocumentBundle, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleApplicant {
		return nil, ErrUnauthorizedAction
	}
	prev := r.PaymentReceipt
	r.PaymentReceipt = &bundle
	r.touch(now)
	return prev, nil
}

// AttachBalanceReceipt records (or replaces) the balance payment proof. A
// rejected receipt never blocks re-upload; resubmission returns the
// sub-status to pending without touching the case status or stage.
func (r *RegistrationCase) AttachBalanceReceipt(role Role, bundle DocumentBundle, now time.Time) (*BalanceReceipt, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleApplicant {
		return nil, ErrUnauthorizedAction
	}
	prev := r.BalanceReceipt
	r.BalanceReceipt = &BalanceReceipt{Bundle: bundle, Status: BalancePending}
	r.touch(now)
	return prev, nil
}

// ReviewBalanceReceipt applies the staff decision on the balance payment.
// Only the sub-status and reviewer metadata change; stage and status are
// never affected by a balance review.
func (r *RegistrationCase) ReviewBalanceReceipt(role Role, approved bool, reviewer string, note string, now time.Time) (BalanceReceiptStatus, error) {
	if err := r.mutable(); err != nil {
		return "", err
	}
	if role != RoleStaff {
		return "", ErrUnauthorizedAction
	}
	if r.BalanceReceipt == nil || r.BalanceReceipt.Bundle.IsZero() {
		return "", NewGuardFailed("review_balance_receipt", GuardReasonBalancePaymentNotApproved)
	}
	prev := r.BalanceReceipt.Status
	if approved {
		r.BalanceReceipt.Status = BalanceApproved
	} else {
		r.BalanceReceipt.Status = BalanceRejected
	}
	r.BalanceReceipt.ReviewedBy = optional(reviewer)
	r.BalanceReceipt.ReviewedAt = &now
	r.BalanceReceipt.Note = strings.TrimSpace(note)
	r.touch(now)
	return prev, nil
}

// SetStaffDocument places a bundle into a staff slot. Replacing a slot after
// publication marks it dirty; the dirty flag is consumed only by the explicit
// re-publish action.
func (r *RegistrationCase) SetStaffDocument(role Role, slot string, bundle DocumentBundle, now time.Time) (*DocumentBundle, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleStaff {
		return nil, ErrUnauthorizedAction
	}
	if !ValidSlot(slot, r.Directors) {
		return nil, ErrInvalidSlot
	}
	if r.StaffDocuments == nil {
		r.StaffDocuments = map[string]DocumentSlot{}
	}
	prev := r.StaffDocuments[slot].Bundle
	r.StaffDocuments[slot] = DocumentSlot{
		Bundle:    &bundle,
		Dirty:     r.DocumentsPublished,
		UpdatedAt: now,
	}
	r.touch(now)
	return prev, nil
}

// SetCustomerDocument places a signed counterpart into a customer slot.
// Replacing a slot after acknowledgement marks it dirty; the dirty flag is
// consumed only by the explicit re-acknowledge action.
func (r *RegistrationCase) SetCustomerDocument(role Role, slot string, bundle DocumentBundle, now time.Time) (*DocumentBundle, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleApplicant {
		return nil, ErrUnauthorizedAction
	}
	if !ValidSlot(slot, r.Directors) {
		return nil, ErrInvalidSlot
	}
	if r.CustomerDocuments == nil {
		r.CustomerDocuments = map[string]DocumentSlot{}
	}
	prev := r.CustomerDocuments[slot].Bundle
	r.CustomerDocuments[slot] = DocumentSlot{
		Bundle:    &bundle,
		Dirty:     r.DocumentsAcknowledged,
		UpdatedAt: now,
	}
	r.touch(now)
	return prev, nil
}

// AppendAdditionalStaffDocument attaches an ad hoc titled document to the
// published set. Duplicate titles are appended as distinct entries.
func (r *RegistrationCase) AppendAdditionalStaffDocument(role Role, title string, bundle DocumentBundle, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if role != RoleStaff {
		return ErrUnauthorizedAction
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidSlot
	}
	r.AdditionalStaffDocuments = append(r.AdditionalStaffDocuments, TitledDocument{Title: title, Bundle: bundle})
	r.touch(now)
	return nil
}

// SetIncorporationCertificate stages the final certificate.
func (r *RegistrationCase) SetIncorporationCertificate(role Role, bundle DocumentBundle, now time.Time) (*DocumentBundle, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleStaff {
		return nil, ErrUnauthorizedAction
	}
	prev := r.IncorporationCertificate
	r.IncorporationCertificate = &bundle
	r.touch(now)
	return prev, nil
}

// AppendFinalDocument stages an additional final-stage artifact.
func (r *RegistrationCase) AppendFinalDocument(role Role, title string, bundle DocumentBundle, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if role != RoleStaff {
		return ErrUnauthorizedAction
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidSlot
	}
	r.AdditionalDocuments = append(r.AdditionalDocuments, TitledDocument{Title: title, Bundle: bundle})
	r.touch(now)
	return nil
}

// SetCompanyDetails replaces the company particulars. Both roles may edit
// while the case is not terminal; approval remains a staff-only gate.
func (r *RegistrationCase) SetCompanyDetails(role Role, details CompanyDetails, now time.Time) (CompanyDetails, error) {
	if err := r.mutable(); err != nil {
		return CompanyDetails{}, err
	}
	if role != RoleApplicant && role != RoleStaff {
		return CompanyDetails{}, ErrUnauthorizedAction
	}
	prev := r.Details
	r.Details = details
	r.touch(now)
	return prev, nil
}

// UpsertShareholder inserts or replaces a shareholder by ID.
func (r *RegistrationCase) UpsertShareholder(role Role, sh Shareholder, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if role != RoleApplicant && role != RoleStaff {
		return ErrUnauthorizedAction
	}
	for i := range r.Shareholders {
		if r.Shareholders[i].ID == sh.ID {
			sh.CreatedAt = r.Shareholders[i].CreatedAt
			sh.UpdatedAt = now
			r.Shareholders[i] = sh
			r.touch(now)
			return nil
		}
	}
	sh.CreatedAt = now
	sh.UpdatedAt = now
	r.Shareholders = append(r.Shareholders, sh)
	r.touch(now)
	return nil
}

// RemoveShareholder removes a shareholder. If the shareholder is also an
// appointed director the director entry and its form18 slots are removed as
// well; see RemoveDirector for the documented data loss.
func (r *RegistrationCase) RemoveShareholder(role Role, shareholderID string, now time.Time) ([]DocumentBundle, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleApplicant && role != RoleStaff {
		return nil, ErrUnauthorizedAction
	}
	idx := -1
	for i := range r.Shareholders {
		if r.Shareholders[i].ID == shareholderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	r.Shareholders = append(r.Shareholders[:idx], r.Shareholders[idx+1:]...)

	var discarded []DocumentBundle
	for _, d := range r.Directors {
		if d.ShareholderRef != nil && *d.ShareholderRef == shareholderID {
			dropped, err := r.RemoveDirector(role, d.ID, now)
			if err != nil {
				return nil, err
			}
			discarded = append(discarded, dropped...)
			break
		}
	}
	r.touch(now)
	return discarded, nil
}

// AppointDirector adds a director with a stable ID, creating an empty
// required form18 slot in both document collections.
func (r *RegistrationCase) AppointDirector(role Role, d Director, now time.Time) error {
	if err := r.mutable(); err != nil {
		return err
	}
	if role != RoleApplicant && role != RoleStaff {
		return ErrUnauthorizedAction
	}
	for i := range r.Directors {
		if r.Directors[i].ID == d.ID {
			d.CreatedAt = r.Directors[i].CreatedAt
			d.UpdatedAt = now
			r.Directors[i] = d
			r.touch(now)
			return nil
		}
	}
	d.CreatedAt = now
	d.UpdatedAt = now
	r.Directors = append(r.Directors, d)
	r.touch(now)
	return nil
}

// RemoveDirector removes a director and discards any staff or customer
// documents uploaded for the director's form18 slot. The discarded bundles
// are returned so callers can record the data loss; it is deliberate, not
// silent.
func (r *RegistrationCase) RemoveDirector(role Role, directorID string, now time.Time) ([]DocumentBundle, error) {
	if err := r.mutable(); err != nil {
		return nil, err
	}
	if role != RoleApplicant && role != RoleStaff {
		return nil, ErrUnauthorizedAction
	}
	idx := -1
	for i := range r.Directors {
		if r.Directors[i].ID == directorID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrNotFound
	}
	r.Directors = append(r.Directors[:idx], r.Directors[idx+1:]...)

	slot := Form18Slot(directorID)
	var discarded []DocumentBundle
	if s, ok := r.StaffDocuments[slot]; ok {
		if s.Filled() {
			discarded = append(discarded, *s.Bundle)
		}
		delete(r.StaffDocuments, slot)
	}
	if s, ok := r.CustomerDocuments[slot]; ok {
		if s.Filled() {
			discarded = append(discarded, *s.Bundle)
		}
		delete(r.CustomerDocuments, slot)
	}
	r.touch(now)
	return discarded, nil
}

func (r *RegistrationCase) mutable() error {
	if r.Terminal() {
		return ErrSlotLocked
	}
	return nil
}

func (r *RegistrationCase) touch(now time.Time) {
	r.UpdatedAt = now
}

func cloneBundlePtr(b *DocumentBundle) *DocumentBundle {
	if b == nil {
		return nil
	}
	cloned := *b
	return &cloned
}

func cloneStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	cloned := *s
	return &cloned
}

func cloneTimePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	cloned := *t
	return &cloned
}

func cloneSlots(src map[string]DocumentSlot) map[string]DocumentSlot {
	if src == nil {
		return nil
	}
	out := make(map[string]DocumentSlot, len(src))
	for k, v := range src {
		v.Bundle = cloneBundlePtr(v.Bundle)
		out[k] = v
	}
	return out
}

func cloneShareholders(src []Shareholder) []Shareholder {
	if src == nil {
		return nil
	}
	out := make([]Shareholder, len(src))
	for i, s := range src {
		s.Documents = append([]DocumentBundle(nil), s.Documents...)
		out[i] = s
	}
	return out
}

func cloneDirectors(src []Director) []Director {
	if src == nil {
		return nil
	}
	out := make([]Director, len(src))
	for i, d := range src {
		d.ShareholderRef = cloneStrPtr(d.ShareholderRef)
		d.Documents = append([]DocumentBundle(nil), d.Documents...)
		out[i] = d
	}
	return out
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
