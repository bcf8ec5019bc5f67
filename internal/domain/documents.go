package domain

import (
	"strings"
	"time"
)

// Fixed document slot names shared by the staff and customer collections.
// Director counterpart slots are derived with Form18Slot.
const (
	SlotForm1                 = "form1"
	SlotLetterOfEngagement    = "letterOfEngagement"
	SlotArticlesOfAssociation = "aoa"
	SlotAddressProof          = "addressProof"
	form18SlotPrefix          = "form18:"
)

// DocumentBundle models one uploaded artifact. It has no behaviour; every
// higher layer passes bundles around by value.
type DocumentBundle struct {
	Name        string
	ContentType string
	SizeBytes   int64
	StorageRef  string
	URL         string
	Signer      bool
	UploadedAt  time.Time
}

// IsZero reports whether the bundle carries no stored artifact.
func (b DocumentBundle) IsZero() bool {
	return b.StorageRef == "" && b.URL == ""
}

// DocumentSlot holds zero or one bundle for a fixed named position.
// Dirty marks a replacement made after the collection was published or
// acknowledged; it is cleared only by the explicit re-publish / re-submit
// action so partial edits cannot silently bypass the approval gates.
type DocumentSlot struct {
	Bundle    *DocumentBundle
	Dirty     bool
	UpdatedAt time.Time
}

// Filled reports whether the slot holds an artifact.
func (s DocumentSlot) Filled() bool {
	return s.Bundle != nil && !s.Bundle.IsZero()
}

// TitledDocument is an ad hoc document keyed by a free-form title.
// Duplicate titles are permitted and appended as distinct entries.
type TitledDocument struct {
	Title  string
	Bundle DocumentBundle
}

// Form18Slot derives the director counterpart slot name from the director's
// stable identifier. Slots are keyed by ID, not array position, so
// reordering directors never changes a slot's meaning.
func Form18Slot(directorID string) string {
	return form18SlotPrefix + strings.TrimSpace(directorID)
}

// IsForm18Slot reports whether the slot name is a director counterpart slot
// and returns the director ID when it is.
func IsForm18Slot(slot string) (string, bool) {
	if !strings.HasPrefix(slot, form18SlotPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(slot, form18SlotPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}

// RequiredStaffSlots returns the slots staff must fill before publication, in
// the deterministic order used for incomplete-set reporting: the three fixed
// incorporation forms followed by one form18 per director in list order.
func RequiredStaffSlots(directors []Director) []string {
	slots := []string{SlotForm1, SlotLetterOfEngagement, SlotArticlesOfAssociation}
	for _, d := range directors {
		slots = append(slots, Form18Slot(d.ID))
	}
	return slots
}

// RequiredCustomerSlots returns the signed counterpart slots the applicant
// must return. Address proof is excluded when the business address is
// registered under an official street number.
func RequiredCustomerSlots(directors []Director, businessAddressNumber string) []string {
	slots := RequiredStaffSlots(directors)
	if strings.TrimSpace(businessAddressNumber) == "" {
		slots = append(slots, SlotAddressProof)
	}
	return slots
}

// ValidSlot reports whether the slot name belongs to the known slot set for
// the given directors.
func ValidSlot(slot string, directors []Director) bool {
	switch slot {
	case SlotForm1, SlotLetterOfEngagement, SlotArticlesOfAssociation, SlotAddressProof:
		return true
	}
	if id, ok := IsForm18Slot(slot); ok {
		for _, d := range directors {
			if d.ID == id {
				return true
			}
		}
	}
	return false
}

// FirstMissingSlot returns the first required slot without an artifact, in
// reporting order, or "" when the set is complete.
func FirstMissingSlot(required []string, slots map[string]DocumentSlot) string {
	for _, name := range required {
		if !slots[name].Filled() {
			return name
		}
	}
	return ""
}
