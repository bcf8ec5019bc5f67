package domain

import "time"

// PackageType distinguishes the two supported payment shapes.
type PackageType string

const (
	// PackageOneTime requires a single payment at the ContactPayment stage.
	PackageOneTime PackageType = "one_time"
	// PackageAdvanceBalance splits payment into an advance collected at the
	// ContactPayment stage and a balance settled before incorporation.
	PackageAdvanceBalance PackageType = "advance_balance"
)

// IncorporationPackage describes a purchasable incorporation plan resolved
// from the package catalog. Amounts are in the smallest currency unit.
type IncorporationPackage struct {
	ID            string
	Name          string
	Description   string
	Type          PackageType
	Currency      string
	Price         int64
	AdvanceAmount int64
	BalanceAmount int64
	IsPublished   bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// RequiresBalancePayment reports whether the package carries a second,
// independently approvable payment gate.
func (p IncorporationPackage) RequiresBalancePayment() bool {
	return p.Type == PackageAdvanceBalance
}
