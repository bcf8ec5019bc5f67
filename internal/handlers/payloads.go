package handlers

import (
	"strings"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/services"
)

type registrationListResponse struct {
	Items         []registrationSummaryPayload `json:"items"`
	NextPageToken string                       `json:"next_page_token,omitempty"`
}

type registrationSummaryPayload struct {
	ID          string `json:"id"`
	Number      string `json:"number,omitempty"`
	ApplicantID string `json:"applicant_id"`
	PackageID   string `json:"package_id"`
	Stage       string `json:"stage"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

type registrationResponse struct {
	Registration registrationPayload `json:"registration"`
}

type registrationPayload struct {
	ID          string `json:"id"`
	Number      string `json:"number,omitempty"`
	ApplicantID string `json:"applicant_id"`
	PackageID   string `json:"package_id"`
	Stage       string `json:"stage"`
	Status      string `json:"status"`

	PaymentApproved   bool `json:"payment_approved"`
	DetailsApproved   bool `json:"details_approved"`
	DocumentsApproved bool `json:"documents_approved"`

	PaymentReceipt      *bundlePayload `json:"payment_receipt,omitempty"`
	PaymentReviewedBy   *string        `json:"payment_reviewed_by,omitempty"`
	PaymentReviewedAt   string         `json:"payment_reviewed_at,omitempty"`
	PaymentRejectReason *string        `json:"payment_reject_reason,omitempty"`

	BalanceReceipt *balanceReceiptPayload `json:"balance_receipt,omitempty"`

	Details      detailsPayload       `json:"details"`
	Shareholders []shareholderPayload `json:"shareholders"`
	Directors    []directorPayload    `json:"directors"`

	StaffDocuments           map[string]slotPayload `json:"staff_documents,omitempty"`
	AdditionalStaffDocuments []titledPayload        `json:"additional_staff_documents,omitempty"`
	DocumentsPublished       bool                   `json:"documents_published"`
	DocumentsPublishedAt     string                 `json:"documents_published_at,omitempty"`

	CustomerDocuments       map[string]slotPayload `json:"customer_documents,omitempty"`
	DocumentsAcknowledged   bool                   `json:"documents_acknowledged"`
	DocumentsAcknowledgedAt string                 `json:"documents_acknowledged_at,omitempty"`

	IncorporationCertificate *bundlePayload  `json:"incorporation_certificate,omitempty"`
	AdditionalDocuments      []titledPayload `json:"additional_documents,omitempty"`

	DocumentsSubmittedAt string `json:"documents_submitted_at,omitempty"`
	CompletedAt          string `json:"completed_at,omitempty"`

	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"created_at"`
	UpdatedAt string         `json:"updated_at,omitempty"`
	Version   int64          `json:"version"`
}

type bundlePayload struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	StorageRef  string `json:"storage_ref,omitempty"`
	URL         string `json:"url,omitempty"`
	UploadedAt  string `json:"uploaded_at,omitempty"`
}

type slotPayload struct {
	Bundle    *bundlePayload `json:"bundle,omitempty"`
	Dirty     bool           `json:"dirty,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

type titledPayload struct {
	Title  string        `json:"title"`
	Bundle bundlePayload `json:"bundle"`
}

type balanceReceiptPayload struct {
	Bundle     bundlePayload `json:"bundle"`
	Status     string        `json:"status"`
	ReviewedBy *string       `json:"reviewed_by,omitempty"`
	ReviewedAt string        `json:"reviewed_at,omitempty"`
	Note       string        `json:"note,omitempty"`
}

type detailsPayload struct {
	ProposedName          string `json:"proposed_name,omitempty"`
	BusinessNature        string `json:"business_nature,omitempty"`
	BusinessAddressLine1  string `json:"business_address_line1,omitempty"`
	BusinessAddressLine2  string `json:"business_address_line2,omitempty"`
	BusinessAddressCity   string `json:"business_address_city,omitempty"`
	BusinessAddressNumber string `json:"business_address_number,omitempty"`
	PostalCode            string `json:"postal_code,omitempty"`
	ContactEmail          string `json:"contact_email,omitempty"`
	ContactPhone          string `json:"contact_phone,omitempty"`
}

type shareholderPayload struct {
	ID         string          `json:"id"`
	FullName   string          `json:"full_name"`
	NIC        string          `json:"nic,omitempty"`
	Address    string          `json:"address,omitempty"`
	SharesHeld int             `json:"shares_held,omitempty"`
	IsDirector bool            `json:"is_director"`
	Documents  []bundlePayload `json:"documents,omitempty"`
	CreatedAt  string          `json:"created_at,omitempty"`
	UpdatedAt  string          `json:"updated_at,omitempty"`
}

type directorPayload struct {
	ID             string          `json:"id"`
	ShareholderRef *string         `json:"shareholder_ref,omitempty"`
	FullName       string          `json:"full_name"`
	NIC            string          `json:"nic,omitempty"`
	Address        string          `json:"address,omitempty"`
	Documents      []bundlePayload `json:"documents,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

type packageListResponse struct {
	Items         []packagePayload `json:"items"`
	NextPageToken string           `json:"next_page_token,omitempty"`
}

type packageResponse struct {
	Package packagePayload `json:"package"`
}

type packagePayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description,omitempty"`
	Type          string `json:"type"`
	Currency      string `json:"currency"`
	Price         int64  `json:"price"`
	AdvanceAmount int64  `json:"advance_amount,omitempty"`
	BalanceAmount int64  `json:"balance_amount,omitempty"`
	IsPublished   bool   `json:"is_published"`
}

func buildRegistrationSummary(reg domain.RegistrationCase) registrationSummaryPayload {
	return registrationSummaryPayload{
		ID:          reg.ID,
		Number:      reg.Number,
		ApplicantID: reg.ApplicantID,
		PackageID:   reg.PackageID,
		Stage:       string(reg.Stage),
		Status:      string(reg.Status),
		CreatedAt:   formatTime(reg.CreatedAt),
		UpdatedAt:   formatTime(reg.UpdatedAt),
	}
}

func buildRegistrationPayload(reg domain.RegistrationCase) registrationPayload {
	payload := registrationPayload{
		ID:                  reg.ID,
		Number:              reg.Number,
		ApplicantID:         reg.ApplicantID,
		PackageID:           reg.PackageID,
		Stage:               string(reg.Stage),
		Status:              string(reg.Status),
		PaymentApproved:     reg.PaymentApproved,
		DetailsApproved:     reg.DetailsApproved,
		DocumentsApproved:   reg.DocumentsApproved,
		PaymentReceipt:      buildBundlePointer(reg.PaymentReceipt),
		PaymentReviewedBy:   cloneStringPointer(reg.PaymentReviewedBy),
		PaymentReviewedAt:   formatTime(pointerTime(reg.PaymentReviewedAt)),
		PaymentRejectReason: cloneStringPointer(reg.PaymentRejectReason),
		Details:             buildDetailsPayload(reg.Details),
		Shareholders:        make([]shareholderPayload, 0, len(reg.Shareholders)),
		Directors:           make([]directorPayload, 0, len(reg.Directors)),

		StaffDocuments:           buildSlotPayloads(reg.StaffDocuments),
		AdditionalStaffDocuments: buildTitledPayloads(reg.AdditionalStaffDocuments),
		DocumentsPublished:       reg.DocumentsPublished,
		DocumentsPublishedAt:     formatTime(pointerTime(reg.DocumentsPublishedAt)),

		CustomerDocuments:       buildSlotPayloads(reg.CustomerDocuments),
		DocumentsAcknowledged:   reg.DocumentsAcknowledged,
		DocumentsAcknowledgedAt: formatTime(pointerTime(reg.DocumentsAcknowledgedAt)),

		IncorporationCertificate: buildBundlePointer(reg.IncorporationCertificate),
		AdditionalDocuments:      buildTitledPayloads(reg.AdditionalDocuments),

		DocumentsSubmittedAt: formatTime(pointerTime(reg.DocumentsSubmittedAt)),
		CompletedAt:          formatTime(pointerTime(reg.CompletedAt)),

		Metadata:  cloneMap(reg.Metadata),
		CreatedAt: formatTime(reg.CreatedAt),
		UpdatedAt: formatTime(reg.UpdatedAt),
		Version:   reg.Version,
	}

	if reg.BalanceReceipt != nil {
		payload.BalanceReceipt = &balanceReceiptPayload{
			Bundle:     buildBundlePayload(reg.BalanceReceipt.Bundle),
			Status:     string(reg.BalanceReceipt.Status),
			ReviewedBy: cloneStringPointer(reg.BalanceReceipt.ReviewedBy),
			ReviewedAt: formatTime(pointerTime(reg.BalanceReceipt.ReviewedAt)),
			Note:       reg.BalanceReceipt.Note,
		}
	}

	for _, sh := range reg.Shareholders {
		payload.Shareholders = append(payload.Shareholders, shareholderPayload{
			ID:         sh.ID,
			FullName:   sh.FullName,
			NIC:        sh.NIC,
			Address:    sh.Address,
			SharesHeld: sh.SharesHeld,
			IsDirector: sh.IsDirector,
			Documents:  buildBundlePayloads(sh.Documents),
			CreatedAt:  formatTime(sh.CreatedAt),
			UpdatedAt:  formatTime(sh.UpdatedAt),
		})
	}

	for _, d := range reg.Directors {
		payload.Directors = append(payload.Directors, directorPayload{
			ID:             d.ID,
			ShareholderRef: cloneStringPointer(d.ShareholderRef),
			FullName:       d.FullName,
			NIC:            d.NIC,
			Address:        d.Address,
			Documents:      buildBundlePayloads(d.Documents),
			CreatedAt:      formatTime(d.CreatedAt),
			UpdatedAt:      formatTime(d.UpdatedAt),
		})
	}

	return payload
}

func buildDetailsPayload(d domain.CompanyDetails) detailsPayload {
	return detailsPayload{
		ProposedName:          d.ProposedName,
		BusinessNature:        d.BusinessNature,
		BusinessAddressLine1:  d.BusinessAddressLine1,
		BusinessAddressLine2:  d.BusinessAddressLine2,
		BusinessAddressCity:   d.BusinessAddressCity,
		BusinessAddressNumber: d.BusinessAddressNumber,
		PostalCode:            d.PostalCode,
		ContactEmail:          d.ContactEmail,
		ContactPhone:          d.ContactPhone,
	}
}

func buildBundlePayload(b domain.DocumentBundle) bundlePayload {
	return bundlePayload{
		Name:        b.Name,
		ContentType: b.ContentType,
		SizeBytes:   b.SizeBytes,
		StorageRef:  b.StorageRef,
		URL:         b.URL,
		UploadedAt:  formatTime(b.UploadedAt),
	}
}

func buildBundlePointer(b *domain.DocumentBundle) *bundlePayload {
	if b == nil || b.IsZero() {
		return nil
	}
	payload := buildBundlePayload(*b)
	return &payload
}

func buildBundlePayloads(bundles []domain.DocumentBundle) []bundlePayload {
	if len(bundles) == 0 {
		return nil
	}
	out := make([]bundlePayload, 0, len(bundles))
	for _, b := range bundles {
		out = append(out, buildBundlePayload(b))
	}
	return out
}

func buildSlotPayloads(slots map[string]domain.DocumentSlot) map[string]slotPayload {
	if len(slots) == 0 {
		return nil
	}
	out := make(map[string]slotPayload, len(slots))
	for key, slot := range slots {
		out[key] = slotPayload{
			Bundle:    buildBundlePointer(slot.Bundle),
			Dirty:     slot.Dirty,
			UpdatedAt: formatTime(slot.UpdatedAt),
		}
	}
	return out
}

func buildTitledPayloads(docs []domain.TitledDocument) []titledPayload {
	if len(docs) == 0 {
		return nil
	}
	out := make([]titledPayload, 0, len(docs))
	for _, doc := range docs {
		out = append(out, titledPayload{
			Title:  doc.Title,
			Bundle: buildBundlePayload(doc.Bundle),
		})
	}
	return out
}

func buildPackagePayload(pkg domain.IncorporationPackage) packagePayload {
	return packagePayload{
		ID:            pkg.ID,
		Name:          pkg.Name,
		Description:   pkg.Description,
		Type:          string(pkg.Type),
		Currency:      strings.ToUpper(pkg.Currency),
		Price:         pkg.Price,
		AdvanceAmount: pkg.AdvanceAmount,
		BalanceAmount: pkg.BalanceAmount,
		IsPublished:   pkg.IsPublished,
	}
}

type bundleRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StorageRef  string `json:"storage_ref"`
	URL         string `json:"url"`
}

func (b bundleRequest) toDomain() domain.DocumentBundle {
	return domain.DocumentBundle{
		Name:        strings.TrimSpace(b.Name),
		ContentType: strings.TrimSpace(b.ContentType),
		SizeBytes:   b.SizeBytes,
		StorageRef:  strings.TrimSpace(b.StorageRef),
		URL:         strings.TrimSpace(b.URL),
	}
}

type slotEntryRequest struct {
	Slot    string        `json:"slot"`
	Bundle  bundleRequest `json:"bundle"`
	Content []byte        `json:"content,omitempty"`
}

type titledEntryRequest struct {
	Title   string        `json:"title"`
	Bundle  bundleRequest `json:"bundle"`
	Content []byte        `json:"content,omitempty"`
}

type detailsRequest struct {
	ProposedName          string `json:"proposed_name"`
	BusinessNature        string `json:"business_nature"`
	BusinessAddressLine1  string `json:"business_address_line1"`
	BusinessAddressLine2  string `json:"business_address_line2"`
	BusinessAddressCity   string `json:"business_address_city"`
	BusinessAddressNumber string `json:"business_address_number"`
	PostalCode            string `json:"postal_code"`
	ContactEmail          string `json:"contact_email"`
	ContactPhone          string `json:"contact_phone"`
}

func (d detailsRequest) toDomain() domain.CompanyDetails {
	return domain.CompanyDetails{
		ProposedName:          strings.TrimSpace(d.ProposedName),
		BusinessNature:        strings.TrimSpace(d.BusinessNature),
		BusinessAddressLine1:  strings.TrimSpace(d.BusinessAddressLine1),
		BusinessAddressLine2:  strings.TrimSpace(d.BusinessAddressLine2),
		BusinessAddressCity:   strings.TrimSpace(d.BusinessAddressCity),
		BusinessAddressNumber: strings.TrimSpace(d.BusinessAddressNumber),
		PostalCode:            strings.TrimSpace(d.PostalCode),
		ContactEmail:          strings.TrimSpace(d.ContactEmail),
		ContactPhone:          strings.TrimSpace(d.ContactPhone),
	}
}

// batchFromEntries splits slot entries into pre-uploaded bundles and inline
// content destined for the exchange uploader.
func batchFromEntries(slots []slotEntryRequest, additional []titledEntryRequest) (services.PendingBatch, []services.SlotUpload, []services.TitledUpload) {
	batch := services.PendingBatch{}
	var slotUploads []services.SlotUpload
	var titledUploads []services.TitledUpload

	for _, entry := range slots {
		slot := strings.TrimSpace(entry.Slot)
		if len(entry.Content) > 0 {
			slotUploads = append(slotUploads, services.SlotUpload{
				Slot:        slot,
				FileName:    strings.TrimSpace(entry.Bundle.Name),
				ContentType: strings.TrimSpace(entry.Bundle.ContentType),
				Content:     entry.Content,
			})
			continue
		}
		if batch.Slots == nil {
			batch.Slots = make(map[string]services.DocumentBundle)
		}
		batch.Slots[slot] = entry.Bundle.toDomain()
	}

	for _, entry := range additional {
		if len(entry.Content) > 0 {
			titledUploads = append(titledUploads, services.TitledUpload{
				Title:       strings.TrimSpace(entry.Title),
				FileName:    strings.TrimSpace(entry.Bundle.Name),
				ContentType: strings.TrimSpace(entry.Bundle.ContentType),
				Content:     entry.Content,
			})
			continue
		}
		batch.Additional = append(batch.Additional, services.TitledDocument{
			Title:  strings.TrimSpace(entry.Title),
			Bundle: entry.Bundle.toDomain(),
		})
	}

	return batch, slotUploads, titledUploads
}
