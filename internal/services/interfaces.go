package services

import (
	"context"
	"time"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination           = domain.Pagination
	SortOrder            = domain.SortOrder
	Role                 = domain.Role
	Stage                = domain.Stage
	Status               = domain.Status
	RegistrationCase     = domain.RegistrationCase
	CompanyDetails       = domain.CompanyDetails
	Shareholder          = domain.Shareholder
	Director             = domain.Director
	DocumentBundle       = domain.DocumentBundle
	DocumentSlot         = domain.DocumentSlot
	TitledDocument       = domain.TitledDocument
	BalanceReceipt       = domain.BalanceReceipt
	BalanceReceiptStatus = domain.BalanceReceiptStatus
	IncorporationPackage = domain.IncorporationPackage
	SystemHealthReport   = domain.SystemHealthReport
	AuditLogEntry        = domain.AuditLogEntry
	SignedAssetResponse  = domain.SignedAssetResponse
)

// RegistrationListFilter mirrors the repository filter for admin listings.
type RegistrationListFilter = repositories.RegistrationListFilter

// WorkflowService is the registration lifecycle engine. Every operation loads
// the case, applies the transition on a clone, persists with a version check,
// and publishes an event; guard failures leave the persisted case untouched.
type WorkflowService interface {
	CreateRegistration(ctx context.Context, cmd CreateRegistrationCommand) (RegistrationCase, error)
	GetRegistration(ctx context.Context, caseID string) (RegistrationCase, error)
	GetRegistrationForApplicant(ctx context.Context, applicantID string) (RegistrationCase, error)
	ListRegistrations(ctx context.Context, filter RegistrationListFilter) (domain.CursorPage[RegistrationCase], error)

	ApprovePayment(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error)
	RejectPayment(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error)
	ResubmitPayment(ctx context.Context, cmd AttachReceiptCommand) (RegistrationCase, error)

	SaveCompanyDetails(ctx context.Context, cmd SaveCompanyDetailsCommand) (RegistrationCase, error)
	UpsertShareholder(ctx context.Context, cmd UpsertShareholderCommand) (RegistrationCase, error)
	RemoveShareholder(ctx context.Context, cmd RemovePartyCommand) (RegistrationCase, error)
	AppointDirector(ctx context.Context, cmd AppointDirectorCommand) (RegistrationCase, error)
	RemoveDirector(ctx context.Context, cmd RemovePartyCommand) (RegistrationCase, error)
	ApproveDetails(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error)

	PublishDocuments(ctx context.Context, cmd CommitDocumentsCommand) (RegistrationCase, error)
	ReplaceStaffDocument(ctx context.Context, cmd ReplaceDocumentCommand) (RegistrationCase, error)
	AcknowledgeDocuments(ctx context.Context, cmd CommitDocumentsCommand) (RegistrationCase, error)

	AttachBalanceReceipt(ctx context.Context, cmd AttachReceiptCommand) (RegistrationCase, error)
	ReviewBalanceReceipt(ctx context.Context, cmd ReviewBalanceReceiptCommand) (RegistrationCase, error)

	ContinueToIncorporation(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error)
	SubmitFinalDocuments(ctx context.Context, cmd SubmitFinalDocumentsCommand) (RegistrationCase, error)
	CompleteRegistration(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error)
}

// DocumentExchange manages the two parallel named-slot collections. Batches
// are staged in request scope, uploaded with bounded parallelism, and merged
// into the case only by an all-or-nothing commit.
type DocumentExchange interface {
	UploadBatch(ctx context.Context, cmd UploadBatchCommand) (PendingBatch, error)
	CommitStaffSet(reg *domain.RegistrationCase, batch PendingBatch, now time.Time) error
	CommitCustomerSet(reg *domain.RegistrationCase, batch PendingBatch, now time.Time) error
}

// FileStore uploads one artifact and returns its stored location. Replacement
// is upload-new-and-swap-reference; no delete semantics are assumed.
type FileStore interface {
	Upload(ctx context.Context, upload FileUpload) (StoredFile, error)
}

// DocumentArchiver copies one stored artifact into the long-term archive and
// returns the destination object path. Best effort; the originals remain the
// system of record.
type DocumentArchiver interface {
	ArchiveObject(ctx context.Context, objectRef string) (string, error)
}

// CatalogService resolves incorporation packages and creates PSP checkout
// sessions for their advance/balance amounts.
type CatalogService interface {
	ListPackages(ctx context.Context, filter PackageListFilter) (domain.CursorPage[IncorporationPackage], error)
	GetPackage(ctx context.Context, packageID string) (IncorporationPackage, error)
	CreateCheckoutSession(ctx context.Context, cmd CheckoutSessionCommand) (CheckoutSessionResult, error)
}

// AssetService issues signed upload/download URLs for registration artifacts.
type AssetService interface {
	IssueSignedUpload(ctx context.Context, cmd SignedUploadCommand) (SignedAssetResponse, error)
	IssueSignedDownload(ctx context.Context, cmd SignedDownloadCommand) (SignedAssetResponse, error)
}

// SystemService aggregates utility endpoints (health checks, audit logs, counters).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
	ListAuditLogs(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
	NextCounterValue(ctx context.Context, cmd CounterCommand) (int64, error)
}

// AuditLogService centralizes immutable audit log persistence and retrieval.
type AuditLogService interface {
	Record(ctx context.Context, record AuditLogRecord)
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[AuditLogEntry], error)
}

// CounterService produces sequence numbers with optional formatting, backed
// by the transactional counter repository.
type CounterService interface {
	Next(ctx context.Context, scope, name string, opts CounterGenerationOptions) (CounterValue, error)
	NextRegistrationNumber(ctx context.Context) (string, error)
}

// RegistrationEventPublisher broadcasts advisory state-change notifications.
// Best effort only; subscribers resync by re-fetching the case.
type RegistrationEventPublisher interface {
	PublishRegistrationEvent(ctx context.Context, event RegistrationEvent) error
}

// Command and DTO definitions ------------------------------------------------

type CreateRegistrationCommand struct {
	ApplicantID    string
	PackageID      string
	Details        CompanyDetails
	PaymentReceipt *DocumentBundle
	Metadata       map[string]any
}

// DecisionCommand covers staff transitions that carry no payload beyond the
// actor and an optional reason (approvals, rejections, completion).
type DecisionCommand struct {
	CaseID   string
	ActorID  string
	Role     Role
	Reason   string
	Metadata map[string]any
}

type AttachReceiptCommand struct {
	CaseID  string
	ActorID string
	Role    Role
	Receipt DocumentBundle
}

type ReviewBalanceReceiptCommand struct {
	CaseID  string
	ActorID string
	Role    Role
	Approve bool
	Note    string
}

type SaveCompanyDetailsCommand struct {
	CaseID  string
	ActorID string
	Role    Role
	Details CompanyDetails
}

type UpsertShareholderCommand struct {
	CaseID      string
	ActorID     string
	Role        Role
	Shareholder Shareholder
}

type AppointDirectorCommand struct {
	CaseID   string
	ActorID  string
	Role     Role
	Director Director
}

// RemovePartyCommand removes a shareholder or director by ID. Removing a
// director discards any uploaded form18 documents for it; the engine records
// the loss in the audit trail.
type RemovePartyCommand struct {
	CaseID  string
	ActorID string
	Role    Role
	PartyID string
}

// CommitDocumentsCommand carries a staged batch into a publish or acknowledge
// transition.
type CommitDocumentsCommand struct {
	CaseID  string
	ActorID string
	Role    Role
	Batch   PendingBatch
}

// ReplaceDocumentCommand swaps one staff slot's artifact outside a batch
// commit. After publication the slot stays dirty until the next explicit
// publish refreshes the applicant-visible set.
type ReplaceDocumentCommand struct {
	CaseID  string
	ActorID string
	Role    Role
	Slot    string
	Bundle  DocumentBundle
}

type SubmitFinalDocumentsCommand struct {
	CaseID      string
	ActorID     string
	Role        Role
	Certificate *DocumentBundle
	Additional  []TitledDocument
}

// PendingBatch is the short-lived accumulate-then-commit set for one publish
// or acknowledge call. It is never persisted; an uncommitted batch is simply
// discarded with the request.
type PendingBatch struct {
	Slots      map[string]DocumentBundle
	Additional []TitledDocument
}

// IsEmpty reports whether the batch stages nothing.
func (b PendingBatch) IsEmpty() bool {
	return len(b.Slots) == 0 && len(b.Additional) == 0
}

// UploadBatchCommand stages raw artifacts for one publish/acknowledge call.
type UploadBatchCommand struct {
	CaseID     string
	Role       Role
	Slots      []SlotUpload
	Additional []TitledUpload
	Timeout    time.Duration
}

type SlotUpload struct {
	Slot        string
	FileName    string
	ContentType string
	Content     []byte
}

type TitledUpload struct {
	Title       string
	FileName    string
	ContentType string
	Content     []byte
}

// FileUpload is the input to the FileStore contract.
type FileUpload struct {
	CaseID      string
	Purpose     string
	Slot        string
	PersonID    string
	FileName    string
	ContentType string
	Content     []byte
}

// StoredFile is the stored location returned by the FileStore.
type StoredFile struct {
	URL        string
	StorageRef string
}

type PackageListFilter struct {
	OnlyPublished bool
	Pagination    Pagination
}

// CheckoutPhase selects which portion of a package the session collects.
type CheckoutPhase string

const (
	// CheckoutPhaseFull collects a one-time package's full price.
	CheckoutPhaseFull CheckoutPhase = "full"
	// CheckoutPhaseAdvance collects the advance of an advance+balance package.
	CheckoutPhaseAdvance CheckoutPhase = "advance"
	// CheckoutPhaseBalance collects the balance of an advance+balance package.
	CheckoutPhaseBalance CheckoutPhase = "balance"
)

type CheckoutSessionCommand struct {
	CaseID         string
	PackageID      string
	ApplicantID    string
	Phase          CheckoutPhase
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSessionResult struct {
	SessionID   string
	Provider    string
	RedirectURL string
	Amount      int64
	Currency    string
	Phase       CheckoutPhase
	ExpiresAt   time.Time
}

type SignedUploadCommand struct {
	ActorID     string
	CaseID      string
	Purpose     string
	Slot        string
	PersonID    string
	FileName    string
	ContentType string
	SizeBytes   int64
}

type SignedDownloadCommand struct {
	ActorID    string
	CaseID     string
	StorageRef string
}

// RegistrationEvent captures metadata for emitted registration domain events.
type RegistrationEvent struct {
	Type           string         `json:"type"`
	CaseID         string         `json:"caseId"`
	CaseNumber     string         `json:"caseNumber,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus"`
	Stage          string         `json:"stage"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// AuditLogRecord defines the payload accepted by the audit writer service.
type AuditLogRecord struct {
	Actor                 string
	ActorType             string
	Action                string
	TargetRef             string
	Severity              string
	RequestID             string
	OccurredAt            time.Time
	Metadata              map[string]any
	Diff                  map[string]AuditLogDiff
	SensitiveMetadataKeys []string
	SensitiveDiffKeys     []string
	IPAddress             string
	UserAgent             string
}

// AuditLogDiff captures before/after values for tracked fields.
type AuditLogDiff struct {
	Before any
	After  any
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

type CounterCommand struct {
	CounterID string
	Step      int64
}

// CounterGenerationOptions controls how counter values are incremented and formatted.
type CounterGenerationOptions struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
	Prefix       string
	Suffix       string
	PadLength    int
	Formatter    func(now time.Time, seq int64) string
}

// CounterValue pairs a raw sequence value with its formatted representation.
type CounterValue struct {
	Value     int64
	Formatted string
}
