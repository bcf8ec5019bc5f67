package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	pfirestore "github.com/formacorp/incorporation-api/internal/platform/firestore"
	"github.com/formacorp/incorporation-api/internal/platform/pagination"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

const registrationsCollection = "registrations"

// RegistrationRepository implements repositories.RegistrationRepository backed
// by Firestore. Updates run inside a transaction that re-reads the stored
// version so concurrent writers observe exactly one success per version.
type RegistrationRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[registrationDocument]
}

// NewRegistrationRepository constructs a Firestore-backed registration repository.
func NewRegistrationRepository(provider *pfirestore.Provider) (*RegistrationRepository, error) {
	if provider == nil {
		return nil, errors.New("registration repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[registrationDocument](provider, registrationsCollection, nil, nil)
	return &RegistrationRepository{provider: provider, base: base}, nil
}

// Insert creates the case document, failing on duplicate IDs.
func (r *RegistrationRepository) Insert(ctx context.Context, reg domain.RegistrationCase) error {
	if r == nil || r.base == nil {
		return errors.New("registration repository not initialised")
	}
	caseID := strings.TrimSpace(reg.ID)
	if caseID == "" {
		return errors.New("registration repository: case id is required")
	}
	docRef, err := r.base.DocumentRef(ctx, caseID)
	if err != nil {
		return err
	}
	doc := encodeRegistrationDocument(reg)
	if _, err := docRef.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("registrations.insert", err)
	}
	return nil
}

// FindByID fetches a single case.
func (r *RegistrationRepository) FindByID(ctx context.Context, caseID string) (domain.RegistrationCase, error) {
	if r == nil || r.base == nil {
		return domain.RegistrationCase{}, errors.New("registration repository not initialised")
	}
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return domain.RegistrationCase{}, errors.New("registration repository: case id is required")
	}
	doc, err := r.base.Get(ctx, caseID)
	if err != nil {
		return domain.RegistrationCase{}, err
	}
	return decodeRegistrationDocument(caseID, doc.Data), nil
}

// FindByApplicant returns the newest case owned by the applicant.
func (r *RegistrationRepository) FindByApplicant(ctx context.Context, applicantID string) (domain.RegistrationCase, error) {
	if r == nil || r.base == nil {
		return domain.RegistrationCase{}, errors.New("registration repository not initialised")
	}
	applicantID = strings.TrimSpace(applicantID)
	if applicantID == "" {
		return domain.RegistrationCase{}, errors.New("registration repository: applicant id is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("applicantId", "==", applicantID).
			OrderBy("createdAt", firestore.Desc).
			Limit(1)
	})
	if err != nil {
		return domain.RegistrationCase{}, err
	}
	if len(docs) == 0 {
		return domain.RegistrationCase{}, pfirestore.WrapError("registrations.find_by_applicant", status.Error(codes.NotFound, "registration not found"))
	}
	return decodeRegistrationDocument(docs[0].ID, docs[0].Data), nil
}

// Update persists the case when the stored version matches expectedVersion,
// incrementing the version. A mismatch returns a conflict error.
func (r *RegistrationRepository) Update(ctx context.Context, reg domain.RegistrationCase, expectedVersion int64) (domain.RegistrationCase, error) {
	if r == nil || r.provider == nil {
		return domain.RegistrationCase{}, errors.New("registration repository not initialised")
	}
	caseID := strings.TrimSpace(reg.ID)
	if caseID == "" {
		return domain.RegistrationCase{}, errors.New("registration repository: case id is required")
	}

	reg.Version = expectedVersion + 1
	doc := encodeRegistrationDocument(reg)

	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, caseID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		stored, err := snapshot.DataAt("version")
		if err != nil {
			return fmt.Errorf("registrations read version: %w", err)
		}
		version, ok := stored.(int64)
		if !ok || version != expectedVersion {
			return status.Errorf(codes.FailedPrecondition, "registrations version mismatch: have %v want %d", stored, expectedVersion)
		}
		return tx.Set(ref, doc)
	})
	if err != nil {
		return domain.RegistrationCase{}, pfirestore.WrapError("registrations.update", err)
	}
	return reg, nil
}

// List returns cases matching the filter, newest first, with a cursor token.
func (r *RegistrationRepository) List(ctx context.Context, filter repositories.RegistrationListFilter) (domain.CursorPage[domain.RegistrationCase], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.RegistrationCase]{}, errors.New("registration repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeRegistrationListToken(token)
		if err != nil {
			return domain.CursorPage[domain.RegistrationCase]{}, fmt.Errorf("registration repository: invalid page token: %w", err)
		}
		startAfter = []any{tokenTime, tokenID}
	}

	statusFilters := make([]string, 0, len(filter.Status))
	for _, s := range filter.Status {
		if trimmed := strings.TrimSpace(string(s)); trimmed != "" {
			statusFilters = append(statusFilters, trimmed)
		}
	}
	stageFilters := make([]string, 0, len(filter.Stage))
	for _, s := range filter.Stage {
		if trimmed := strings.TrimSpace(string(s)); trimmed != "" {
			stageFilters = append(stageFilters, trimmed)
		}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if applicant := strings.TrimSpace(filter.ApplicantID); applicant != "" {
			q = q.Where("applicantId", "==", applicant)
		}
		if pkg := strings.TrimSpace(filter.PackageID); pkg != "" {
			q = q.Where("packageId", "==", pkg)
		}
		if len(statusFilters) == 1 {
			q = q.Where("status", "==", statusFilters[0])
		} else if len(statusFilters) > 1 {
			// Firestore in clause supports up to 10 values.
			if len(statusFilters) > 10 {
				statusFilters = statusFilters[:10]
			}
			q = q.Where("status", "in", statusFilters)
		}
		if len(stageFilters) == 1 {
			q = q.Where("stage", "==", stageFilters[0])
		} else if len(stageFilters) > 1 {
			if len(stageFilters) > 10 {
				stageFilters = stageFilters[:10]
			}
			q = q.Where("stage", "in", stageFilters)
		}
		if filter.CreatedAt.From != nil {
			q = q.Where("createdAt", ">=", filter.CreatedAt.From.UTC())
		}
		if filter.CreatedAt.To != nil {
			q = q.Where("createdAt", "<=", filter.CreatedAt.To.UTC())
		}

		direction := firestore.Desc
		if filter.Sort == domain.SortAsc {
			direction = firestore.Asc
		}
		q = q.OrderBy("createdAt", direction).OrderBy(firestore.DocumentID, direction)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.RegistrationCase]{}, err
	}

	valueDocs := docs
	nextToken := ""
	if limit > 0 && len(valueDocs) == fetchLimit {
		last := valueDocs[len(valueDocs)-1]
		nextToken = encodeRegistrationListToken(last.Data.CreatedAt, last.ID)
		valueDocs = valueDocs[:len(valueDocs)-1]
	}

	items := make([]domain.RegistrationCase, 0, len(valueDocs))
	for _, doc := range valueDocs {
		items = append(items, decodeRegistrationDocument(doc.ID, doc.Data))
	}

	return domain.CursorPage[domain.RegistrationCase]{
		Items:         items,
		NextPageToken: nextToken,
	}, nil
}

// Document encoding -----------------------------------------------------------

type bundleDocument struct {
	Name        string    `firestore:"name"`
	ContentType string    `firestore:"contentType"`
	SizeBytes   int64     `firestore:"sizeBytes"`
	StorageRef  string    `firestore:"storageRef"`
	URL         string    `firestore:"url,omitempty"`
	Signer      bool      `firestore:"signer"`
	UploadedAt  time.Time `firestore:"uploadedAt"`
}

type slotDocument struct {
	Bundle    *bundleDocument `firestore:"bundle,omitempty"`
	Dirty     bool            `firestore:"dirty"`
	UpdatedAt time.Time       `firestore:"updatedAt"`
}

type titledDocument struct {
	Title  string         `firestore:"title"`
	Bundle bundleDocument `firestore:"bundle"`
}

type balanceReceiptDocument struct {
	Bundle     bundleDocument `firestore:"bundle"`
	Status     string         `firestore:"status"`
	ReviewedBy *string        `firestore:"reviewedBy,omitempty"`
	ReviewedAt *time.Time     `firestore:"reviewedAt,omitempty"`
	Note       string         `firestore:"note,omitempty"`
}

type shareholderDocument struct {
	ID         string           `firestore:"id"`
	FullName   string           `firestore:"fullName"`
	NIC        string           `firestore:"nic"`
	Address    string           `firestore:"address"`
	SharesHeld int              `firestore:"sharesHeld"`
	IsDirector bool             `firestore:"isDirector"`
	Documents  []bundleDocument `firestore:"documents,omitempty"`
	CreatedAt  time.Time        `firestore:"createdAt"`
	UpdatedAt  time.Time        `firestore:"updatedAt"`
}

type directorDocument struct {
	ID             string           `firestore:"id"`
	ShareholderRef *string          `firestore:"shareholderRef,omitempty"`
	FullName       string           `firestore:"fullName"`
	NIC            string           `firestore:"nic"`
	Address        string           `firestore:"address"`
	Documents      []bundleDocument `firestore:"documents,omitempty"`
	CreatedAt      time.Time        `firestore:"createdAt"`
	UpdatedAt      time.Time        `firestore:"updatedAt"`
}

type companyDetailsDocument struct {
	ProposedName          string `firestore:"proposedName"`
	BusinessNature        string `firestore:"businessNature"`
	BusinessAddressLine1  string `firestore:"businessAddressLine1"`
	BusinessAddressLine2  string `firestore:"businessAddressLine2,omitempty"`
	BusinessAddressCity   string `firestore:"businessAddressCity,omitempty"`
	BusinessAddressNumber string `firestore:"businessAddressNumber,omitempty"`
	PostalCode            string `firestore:"postalCode,omitempty"`
	ContactEmail          string `firestore:"contactEmail"`
	ContactPhone          string `firestore:"contactPhone,omitempty"`
}

type registrationDocument struct {
	Number      string `firestore:"number"`
	ApplicantID string `firestore:"applicantId"`
	Stage       string `firestore:"stage"`
	Status      string `firestore:"status"`

	PaymentApproved   bool `firestore:"paymentApproved"`
	DetailsApproved   bool `firestore:"detailsApproved"`
	DocumentsApproved bool `firestore:"documentsApproved"`

	PackageID string `firestore:"packageId"`

	PaymentReceipt      *bundleDocument `firestore:"paymentReceipt,omitempty"`
	PaymentReviewedBy   *string         `firestore:"paymentReviewedBy,omitempty"`
	PaymentReviewedAt   *time.Time      `firestore:"paymentReviewedAt,omitempty"`
	PaymentRejectReason *string         `firestore:"paymentRejectReason,omitempty"`

	BalanceReceipt *balanceReceiptDocument `firestore:"balanceReceipt,omitempty"`

	Details      companyDetailsDocument `firestore:"details"`
	Shareholders []shareholderDocument  `firestore:"shareholders,omitempty"`
	Directors    []directorDocument     `firestore:"directors,omitempty"`

	StaffDocuments           map[string]slotDocument `firestore:"staffDocuments,omitempty"`
	AdditionalStaffDocuments []titledDocument        `firestore:"additionalStaffDocuments,omitempty"`
	DocumentsPublished       bool                    `firestore:"documentsPublished"`
	DocumentsPublishedAt     *time.Time              `firestore:"documentsPublishedAt,omitempty"`

	CustomerDocuments       map[string]slotDocument `firestore:"customerDocuments,omitempty"`
	DocumentsAcknowledged   bool                    `firestore:"documentsAcknowledged"`
	DocumentsAcknowledgedAt *time.Time              `firestore:"documentsAcknowledgedAt,omitempty"`

	IncorporationCertificate *bundleDocument  `firestore:"incorporationCertificate,omitempty"`
	AdditionalDocuments      []titledDocument `firestore:"additionalDocuments,omitempty"`

	DocumentsSubmittedAt *time.Time `firestore:"documentsSubmittedAt,omitempty"`
	CompletedAt          *time.Time `firestore:"completedAt,omitempty"`

	CreatedBy *string        `firestore:"createdBy,omitempty"`
	UpdatedBy *string        `firestore:"updatedBy,omitempty"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`

	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
	Version   int64     `firestore:"version"`
}

func encodeBundle(b domain.DocumentBundle) bundleDocument {
	return bundleDocument{
		Name:        b.Name,
		ContentType: b.ContentType,
		SizeBytes:   b.SizeBytes,
		StorageRef:  b.StorageRef,
		URL:         b.URL,
		Signer:      b.Signer,
		UploadedAt:  b.UploadedAt.UTC(),
	}
}

func encodeBundlePtr(b *domain.DocumentBundle) *bundleDocument {
	if b == nil {
		return nil
	}
	doc := encodeBundle(*b)
	return &doc
}

func decodeBundle(doc bundleDocument) domain.DocumentBundle {
	return domain.DocumentBundle{
		Name:        doc.Name,
		ContentType: doc.ContentType,
		SizeBytes:   doc.SizeBytes,
		StorageRef:  doc.StorageRef,
		URL:         doc.URL,
		Signer:      doc.Signer,
		UploadedAt:  doc.UploadedAt,
	}
}

func decodeBundlePtr(doc *bundleDocument) *domain.DocumentBundle {
	if doc == nil {
		return nil
	}
	b := decodeBundle(*doc)
	return &b
}

func encodeSlots(slots map[string]domain.DocumentSlot) map[string]slotDocument {
	if len(slots) == 0 {
		return nil
	}
	out := make(map[string]slotDocument, len(slots))
	for name, slot := range slots {
		out[name] = slotDocument{
			Bundle:    encodeBundlePtr(slot.Bundle),
			Dirty:     slot.Dirty,
			UpdatedAt: slot.UpdatedAt.UTC(),
		}
	}
	return out
}

func decodeSlots(docs map[string]slotDocument) map[string]domain.DocumentSlot {
	if len(docs) == 0 {
		return nil
	}
	out := make(map[string]domain.DocumentSlot, len(docs))
	for name, doc := range docs {
		out[name] = domain.DocumentSlot{
			Bundle:    decodeBundlePtr(doc.Bundle),
			Dirty:     doc.Dirty,
			UpdatedAt: doc.UpdatedAt,
		}
	}
	return out
}

func encodeTitled(docs []domain.TitledDocument) []titledDocument {
	if len(docs) == 0 {
		return nil
	}
	out := make([]titledDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, titledDocument{Title: d.Title, Bundle: encodeBundle(d.Bundle)})
	}
	return out
}

func decodeTitled(docs []titledDocument) []domain.TitledDocument {
	if len(docs) == 0 {
		return nil
	}
	out := make([]domain.TitledDocument, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.TitledDocument{Title: d.Title, Bundle: decodeBundle(d.Bundle)})
	}
	return out
}

func encodeRegistrationDocument(reg domain.RegistrationCase) registrationDocument {
	doc := registrationDocument{
		Number:                   reg.Number,
		ApplicantID:              reg.ApplicantID,
		Stage:                    string(reg.Stage),
		Status:                   string(reg.Status),
		PaymentApproved:          reg.PaymentApproved,
		DetailsApproved:          reg.DetailsApproved,
		DocumentsApproved:        reg.DocumentsApproved,
		PackageID:                reg.PackageID,
		PaymentReceipt:           encodeBundlePtr(reg.PaymentReceipt),
		PaymentReviewedBy:        reg.PaymentReviewedBy,
		PaymentReviewedAt:        reg.PaymentReviewedAt,
		PaymentRejectReason:      reg.PaymentRejectReason,
		Details:                  encodeCompanyDetails(reg.Details),
		Shareholders:             encodeShareholders(reg.Shareholders),
		Directors:                encodeDirectors(reg.Directors),
		StaffDocuments:           encodeSlots(reg.StaffDocuments),
		AdditionalStaffDocuments: encodeTitled(reg.AdditionalStaffDocuments),
		DocumentsPublished:       reg.DocumentsPublished,
		DocumentsPublishedAt:     reg.DocumentsPublishedAt,
		CustomerDocuments:        encodeSlots(reg.CustomerDocuments),
		DocumentsAcknowledged:    reg.DocumentsAcknowledged,
		DocumentsAcknowledgedAt:  reg.DocumentsAcknowledgedAt,
		IncorporationCertificate: encodeBundlePtr(reg.IncorporationCertificate),
		AdditionalDocuments:      encodeTitled(reg.AdditionalDocuments),
		DocumentsSubmittedAt:     reg.DocumentsSubmittedAt,
		CompletedAt:              reg.CompletedAt,
		CreatedBy:                reg.Audit.CreatedBy,
		UpdatedBy:                reg.Audit.UpdatedBy,
		Metadata:                 reg.Metadata,
		CreatedAt:                reg.CreatedAt.UTC(),
		UpdatedAt:                reg.UpdatedAt.UTC(),
		Version:                  reg.Version,
	}
	if reg.BalanceReceipt != nil {
		doc.BalanceReceipt = &balanceReceiptDocument{
			Bundle:     encodeBundle(reg.BalanceReceipt.Bundle),
			Status:     string(reg.BalanceReceipt.Status),
			ReviewedBy: reg.BalanceReceipt.ReviewedBy,
			ReviewedAt: reg.BalanceReceipt.ReviewedAt,
			Note:       reg.BalanceReceipt.Note,
		}
	}
	return doc
}

func decodeRegistrationDocument(id string, doc registrationDocument) domain.RegistrationCase {
	reg := domain.RegistrationCase{
		ID:                       id,
		Number:                   doc.Number,
		ApplicantID:              doc.ApplicantID,
		Stage:                    domain.Stage(doc.Stage),
		Status:                   domain.Status(doc.Status),
		PaymentApproved:          doc.PaymentApproved,
		DetailsApproved:          doc.DetailsApproved,
		DocumentsApproved:        doc.DocumentsApproved,
		PackageID:                doc.PackageID,
		PaymentReceipt:           decodeBundlePtr(doc.PaymentReceipt),
		PaymentReviewedBy:        doc.PaymentReviewedBy,
		PaymentReviewedAt:        doc.PaymentReviewedAt,
		PaymentRejectReason:      doc.PaymentRejectReason,
		Details:                  decodeCompanyDetails(doc.Details),
		Shareholders:             decodeShareholders(doc.Shareholders),
		Directors:                decodeDirectors(doc.Directors),
		StaffDocuments:           decodeSlots(doc.StaffDocuments),
		AdditionalStaffDocuments: decodeTitled(doc.AdditionalStaffDocuments),
		DocumentsPublished:       doc.DocumentsPublished,
		DocumentsPublishedAt:     doc.DocumentsPublishedAt,
		CustomerDocuments:        decodeSlots(doc.CustomerDocuments),
		DocumentsAcknowledged:    doc.DocumentsAcknowledged,
		DocumentsAcknowledgedAt:  doc.DocumentsAcknowledgedAt,
		IncorporationCertificate: decodeBundlePtr(doc.IncorporationCertificate),
		AdditionalDocuments:      decodeTitled(doc.AdditionalDocuments),
		DocumentsSubmittedAt:     doc.DocumentsSubmittedAt,
		CompletedAt:              doc.CompletedAt,
		Audit:                    domain.CaseAudit{CreatedBy: doc.CreatedBy, UpdatedBy: doc.UpdatedBy},
		Metadata:                 doc.Metadata,
		CreatedAt:                doc.CreatedAt,
		UpdatedAt:                doc.UpdatedAt,
		Version:                  doc.Version,
	}
	if doc.BalanceReceipt != nil {
		reg.BalanceReceipt = &domain.BalanceReceipt{
			Bundle:     decodeBundle(doc.BalanceReceipt.Bundle),
			Status:     domain.BalanceReceiptStatus(doc.BalanceReceipt.Status),
			ReviewedBy: doc.BalanceReceipt.ReviewedBy,
			ReviewedAt: doc.BalanceReceipt.ReviewedAt,
			Note:       doc.BalanceReceipt.Note,
		}
	}
	return reg
}

func encodeCompanyDetails(d domain.CompanyDetails) companyDetailsDocument {
	return companyDetailsDocument(d)
}

func decodeCompanyDetails(doc companyDetailsDocument) domain.CompanyDetails {
	return domain.CompanyDetails(doc)
}

func encodeShareholders(src []domain.Shareholder) []shareholderDocument {
	if len(src) == 0 {
		return nil
	}
	out := make([]shareholderDocument, 0, len(src))
	for _, s := range src {
		out = append(out, shareholderDocument{
			ID:         s.ID,
			FullName:   s.FullName,
			NIC:        s.NIC,
			Address:    s.Address,
			SharesHeld: s.SharesHeld,
			IsDirector: s.IsDirector,
			Documents:  encodeBundleList(s.Documents),
			CreatedAt:  s.CreatedAt.UTC(),
			UpdatedAt:  s.UpdatedAt.UTC(),
		})
	}
	return out
}

func decodeShareholders(src []shareholderDocument) []domain.Shareholder {
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.Shareholder, 0, len(src))
	for _, s := range src {
		out = append(out, domain.Shareholder{
			ID:         s.ID,
			FullName:   s.FullName,
			NIC:        s.NIC,
			Address:    s.Address,
			SharesHeld: s.SharesHeld,
			IsDirector: s.IsDirector,
			Documents:  decodeBundleList(s.Documents),
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	return out
}

func encodeDirectors(src []domain.Director) []directorDocument {
	if len(src) == 0 {
		return nil
	}
	out := make([]directorDocument, 0, len(src))
	for _, d := range src {
		out = append(out, directorDocument{
			ID:             d.ID,
			ShareholderRef: d.ShareholderRef,
			FullName:       d.FullName,
			NIC:            d.NIC,
			Address:        d.Address,
			Documents:      encodeBundleList(d.Documents),
			CreatedAt:      d.CreatedAt.UTC(),
			UpdatedAt:      d.UpdatedAt.UTC(),
		})
	}
	return out
}

func decodeDirectors(src []directorDocument) []domain.Director {
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.Director, 0, len(src))
	for _, d := range src {
		out = append(out, domain.Director{
			ID:             d.ID,
			ShareholderRef: d.ShareholderRef,
			FullName:       d.FullName,
			NIC:            d.NIC,
			Address:        d.Address,
			Documents:      decodeBundleList(d.Documents),
			CreatedAt:      d.CreatedAt,
			UpdatedAt:      d.UpdatedAt,
		})
	}
	return out
}

func encodeBundleList(src []domain.DocumentBundle) []bundleDocument {
	if len(src) == 0 {
		return nil
	}
	out := make([]bundleDocument, 0, len(src))
	for _, b := range src {
		out = append(out, encodeBundle(b))
	}
	return out
}

func decodeBundleList(src []bundleDocument) []domain.DocumentBundle {
	if len(src) == 0 {
		return nil
	}
	out := make([]domain.DocumentBundle, 0, len(src))
	for _, b := range src {
		out = append(out, decodeBundle(b))
	}
	return out
}

func encodeRegistrationListToken(createdAt time.Time, id string) string {
	token, err := pagination.EncodeToken(pagination.Cursor{
		StartAfter: []any{createdAt.UTC().Format(time.RFC3339Nano), id},
	})
	if err != nil {
		return ""
	}
	return token
}

func decodeRegistrationListToken(token string) (time.Time, string, error) {
	cursor, err := pagination.DecodeToken(token)
	if err != nil {
		return time.Time{}, "", err
	}
	if len(cursor.StartAfter) != 2 {
		return time.Time{}, "", errors.New("registration list token incomplete")
	}
	rawTime, timeOK := cursor.StartAfter[0].(string)
	id, idOK := cursor.StartAfter[1].(string)
	if !timeOK || !idOK || id == "" {
		return time.Time{}, "", errors.New("registration list token incomplete")
	}
	createdAt, err := time.Parse(time.RFC3339Nano, rawTime)
	if err != nil {
		return time.Time{}, "", err
	}
	return createdAt, id, nil
}
