package repositories

import (
	"context"
	"time"

	domain "github.com/formacorp/incorporation-api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Registrations() RegistrationRepository
	Packages() PackageRepository
	AuditLogs() AuditLogRepository
	Counters() CounterRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RegistrationRepository persists registration cases with optimistic
// concurrency. Update writes the case only when the stored version equals
// expectedVersion, bumping the version on success; a mismatch surfaces as a
// conflict RepositoryError.
type RegistrationRepository interface {
	Insert(ctx context.Context, reg domain.RegistrationCase) error
	FindByID(ctx context.Context, caseID string) (domain.RegistrationCase, error)
	FindByApplicant(ctx context.Context, applicantID string) (domain.RegistrationCase, error)
	Update(ctx context.Context, reg domain.RegistrationCase, expectedVersion int64) (domain.RegistrationCase, error)
	List(ctx context.Context, filter RegistrationListFilter) (domain.CursorPage[domain.RegistrationCase], error)
}

// PackageRepository resolves incorporation packages from the catalog.
type PackageRepository interface {
	Resolve(ctx context.Context, packageID string) (domain.IncorporationPackage, error)
	List(ctx context.Context, filter PackageListFilter) (domain.CursorPage[domain.IncorporationPackage], error)
}

// AuditLogRepository stores immutable audit entries for staff decisions.
type AuditLogRepository interface {
	Append(ctx context.Context, entry domain.AuditLogEntry) error
	List(ctx context.Context, filter AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error)
}

// CounterRepository provides transaction-safe sequence numbers for
// registration case numbering.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// Filter DTOs shared across repositories ------------------------------------

type RegistrationListFilter struct {
	ApplicantID string
	Status      []domain.Status
	Stage       []domain.Stage
	PackageID   string
	CreatedAt   domain.RangeQuery[time.Time]
	Sort        domain.SortOrder
	Pagination  domain.Pagination
}

type PackageListFilter struct {
	OnlyPublished bool
	Pagination    domain.Pagination
}

type AuditLogFilter struct {
	TargetRef  string
	Actor      string
	ActorType  string
	Action     string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
