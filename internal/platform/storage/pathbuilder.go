package storage

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnknownPurpose signals a purpose with no registered path builder.
var ErrUnknownPurpose = errors.New("storage: unsupported asset purpose")

// AssetPurpose captures high-level intent for storage layout decisions.
type AssetPurpose string

const (
	PurposePaymentReceipt AssetPurpose = "payment-receipt"
	PurposeBalanceReceipt AssetPurpose = "balance-receipt"
	PurposeStaffDocument  AssetPurpose = "staff-document"
	PurposeCustomerDoc    AssetPurpose = "customer-document"
	PurposeIdentityProof  AssetPurpose = "identity-proof"
	PurposeCertificate    AssetPurpose = "certificate"
	PurposeFinalDocument  AssetPurpose = "final-document"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	CaseID   string
	Slot     string
	PersonID string
	UploadID string
	FileName string
}

// PathBuilder composes the object path for a given asset purpose.
type PathBuilder func(PathParams) (string, error)

var (
	pathBuilders = map[AssetPurpose]PathBuilder{
		PurposePaymentReceipt: buildCaseScopedPath("payment"),
		PurposeBalanceReceipt: buildCaseScopedPath("balance"),
		PurposeStaffDocument:  buildSlotScopedPath("staff"),
		PurposeCustomerDoc:    buildSlotScopedPath("customer"),
		PurposeIdentityProof:  buildIdentityProofPath,
		PurposeCertificate:    buildCaseScopedPath("certificate"),
		PurposeFinalDocument:  buildCaseScopedPath("final"),
	}
	pathBuildersMu sync.RWMutex
)

// RegisterPathBuilder overrides or registers a builder for a specific purpose.
func RegisterPathBuilder(purpose AssetPurpose, builder PathBuilder) {
	pathBuildersMu.Lock()
	defer pathBuildersMu.Unlock()
	if builder == nil {
		delete(pathBuilders, purpose)
		return
	}
	pathBuilders[purpose] = builder
}

// BuildObjectPath resolves the storage object path for the given purpose.
func BuildObjectPath(purpose AssetPurpose, params PathParams) (string, error) {
	pathBuildersMu.RLock()
	builder, ok := pathBuilders[purpose]
	pathBuildersMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPurpose, purpose)
	}
	return builder(params)
}

func buildCaseScopedPath(category string) PathBuilder {
	return func(params PathParams) (string, error) {
		caseID, err := validateSegment("caseID", params.CaseID)
		if err != nil {
			return "", err
		}
		uploadID, err := validateSegment("uploadID", params.UploadID)
		if err != nil {
			return "", err
		}
		fileName, err := validateFileName(params.FileName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("registrations/%s/%s/%s/%s", caseID, category, uploadID, fileName), nil
	}
}

func buildSlotScopedPath(category string) PathBuilder {
	return func(params PathParams) (string, error) {
		caseID, err := validateSegment("caseID", params.CaseID)
		if err != nil {
			return "", err
		}
		slot, err := validateSegment("slot", params.Slot)
		if err != nil {
			return "", err
		}
		uploadID, err := validateSegment("uploadID", params.UploadID)
		if err != nil {
			return "", err
		}
		fileName, err := validateFileName(params.FileName)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("registrations/%s/%s/%s/%s/%s", caseID, category, slot, uploadID, fileName), nil
	}
}

func buildIdentityProofPath(params PathParams) (string, error) {
	caseID, err := validateSegment("caseID", params.CaseID)
	if err != nil {
		return "", err
	}
	personID, err := validateSegment("personID", params.PersonID)
	if err != nil {
		return "", err
	}
	uploadID, err := validateSegment("uploadID", params.UploadID)
	if err != nil {
		return "", err
	}
	fileName, err := validateFileName(params.FileName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("registrations/%s/identity/%s/%s/%s", caseID, personID, uploadID, fileName), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func validateFileName(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: fileName is required")
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: fileName contains invalid path characters")
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: fileName contains invalid traversal sequence")
	}
	return value, nil
}
