package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrGuardFailed signals a business-rule gate was not satisfied. Recoverable by the user.
	ErrGuardFailed = errors.New("registration: guard failed")
	// ErrUnauthorizedAction signals the acting role may not perform the mutation.
	ErrUnauthorizedAction = errors.New("registration: action not permitted for role")
	// ErrInvalidSlot signals an unrecognised document slot name.
	ErrInvalidSlot = errors.New("registration: unknown document slot")
	// ErrIncompleteSet signals a document batch is missing a required slot.
	ErrIncompleteSet = errors.New("registration: incomplete document set")
	// ErrSlotLocked signals the case is terminal and no longer mutable.
	ErrSlotLocked = errors.New("registration: case is completed and locked")
	// ErrStaleWrite signals an optimistic concurrency conflict; reload and retry.
	ErrStaleWrite = errors.New("registration: stale write")
	// ErrUpstreamTimeout signals a persistence or storage call exceeded its deadline.
	ErrUpstreamTimeout = errors.New("registration: upstream timeout")
	// ErrNotFound signals the registration case could not be located.
	ErrNotFound = errors.New("registration: not found")
)

// Guard reasons, ordered by the fixed reporting priority
// (payment, details, documents, balance payment). When multiple guards
// are unmet the engine reports the first in this order.
const (
	GuardReasonPaymentReceiptMissing     = "payment-receipt-missing"
	GuardReasonPaymentNotApproved        = "payment-not-approved"
	GuardReasonDetailsIncomplete         = "company-details-incomplete"
	GuardReasonDetailsNotApproved        = "details-not-approved"
	GuardReasonStaffDocumentsIncomplete  = "staff-documents-incomplete"
	GuardReasonDocumentsNotPublished     = "documents-not-published"
	GuardReasonCustomerDocumentsMissing  = "customer-documents-incomplete"
	GuardReasonDocumentsNotApproved      = "documents-not-approved"
	GuardReasonFinalDocumentsMissing     = "final-documents-missing"
	GuardReasonNotReadyForCompletion     = "documents-not-submitted"
	GuardReasonBalancePaymentNotApproved = "balance-payment-not-approved"
	GuardReasonActionNotAllowed          = "action-not-allowed-in-status"
)

// GuardFailedError carries the first unmet guard condition so callers can
// surface one actionable message instead of a list.
type GuardFailedError struct {
	Action string
	Reason string
}

func (e *GuardFailedError) Error() string {
	return fmt.Sprintf("registration: guard failed for %s: %s", e.Action, e.Reason)
}

// Unwrap ties the error to the ErrGuardFailed sentinel.
func (e *GuardFailedError) Unwrap() error {
	return ErrGuardFailed
}

// NewGuardFailed constructs a GuardFailedError for the given action and reason.
func NewGuardFailed(action, reason string) error {
	return &GuardFailedError{Action: action, Reason: reason}
}

// IncompleteSetError identifies the first required slot missing from a batch.
type IncompleteSetError struct {
	Slot string
}

func (e *IncompleteSetError) Error() string {
	return fmt.Sprintf("registration: incomplete document set: slot %q is empty", e.Slot)
}

// Unwrap ties the error to the ErrIncompleteSet sentinel.
func (e *IncompleteSetError) Unwrap() error {
	return ErrIncompleteSet
}

// NewIncompleteSet constructs an IncompleteSetError for the given slot.
func NewIncompleteSet(slot string) error {
	return &IncompleteSetError{Slot: slot}
}
