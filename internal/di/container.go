package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/formacorp/incorporation-api/internal/payments"
	"github.com/formacorp/incorporation-api/internal/platform/config"
	pfirestore "github.com/formacorp/incorporation-api/internal/platform/firestore"
	platformstorage "github.com/formacorp/incorporation-api/internal/platform/storage"
	"github.com/formacorp/incorporation-api/internal/repositories"
	firestoreRepo "github.com/formacorp/incorporation-api/internal/repositories/firestore"
	"github.com/formacorp/incorporation-api/internal/services"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Workflow services.WorkflowService
	Exchange services.DocumentExchange
	Catalog  services.CatalogService
	Assets   services.AssetService
	Counters services.CounterService
	Audit    services.AuditLogService
	System   services.SystemService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
}

// ContainerDeps collects externally constructed collaborators. Registry is
// required; the rest degrade the relevant service when absent.
type ContainerDeps struct {
	Registry    repositories.Registry
	Files       services.FileStore
	Events      services.RegistrationEventPublisher
	Archiver    services.DocumentArchiver
	Payments    *payments.Manager
	AssetSigner *platformstorage.Client
	Logger      func(ctx context.Context, event string, fields map[string]any)
	IDGenerator func() string
}

// NewContainer assembles the runtime dependency graph on top of the supplied
// repository registry.
func NewContainer(ctx context.Context, cfg config.Config, deps ContainerDeps) (*Container, error) {
	if deps.Registry == nil {
		return nil, errors.New("repositories registry is required")
	}

	svc, err := buildServices(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}

	return &Container{
		Config:       cfg,
		Repositories: deps.Registry,
		Services:     svc,
	}, nil
}

// Close releases repository clients.
func (c *Container) Close(ctx context.Context) error {
	if c == nil || c.Repositories == nil {
		return nil
	}
	return c.Repositories.Close(ctx)
}

func buildServices(_ context.Context, cfg config.Config, deps ContainerDeps) (Services, error) {
	var svc Services
	reg := deps.Registry

	if auditRepo := reg.AuditLogs(); auditRepo != nil {
		auditSvc, err := services.NewAuditLogService(services.AuditLogServiceDeps{
			Repository: auditRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build audit log service: %w", err)
		}
		svc.Audit = auditSvc
	}

	if counterRepo := reg.Counters(); counterRepo != nil {
		counterSvc, err := services.NewCounterService(services.CounterServiceDeps{
			Repository: counterRepo,
			Clock:      time.Now,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build counter service: %w", err)
		}
		svc.Counters = counterSvc
	}

	if healthRepo := reg.Health(); healthRepo != nil {
		systemSvc, err := services.NewSystemService(services.SystemServiceDeps{
			HealthRepository: healthRepo,
			Clock:            time.Now,
			Build: services.BuildInfo{
				Environment: cfg.Security.Environment,
				StartedAt:   time.Now().UTC(),
			},
			Audit:    svc.Audit,
			Counters: svc.Counters,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build system service: %w", err)
		}
		svc.System = systemSvc
	}

	if packageRepo := reg.Packages(); packageRepo != nil {
		catalogSvc, err := services.NewCatalogService(services.CatalogServiceDeps{
			Packages: packageRepo,
			Payments: deps.Payments,
			Clock:    time.Now,
			Logger:   deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build catalog service: %w", err)
		}
		svc.Catalog = catalogSvc
	}

	if deps.Files != nil {
		exchangeSvc, err := services.NewDocumentExchange(services.DocumentExchangeDeps{
			Files:  deps.Files,
			Logger: deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build document exchange: %w", err)
		}
		svc.Exchange = exchangeSvc
	}

	if deps.AssetSigner != nil && cfg.Storage.DocumentsBucket != "" {
		assetSvc, err := services.NewAssetService(services.AssetServiceDeps{
			Storage:     deps.AssetSigner,
			Bucket:      cfg.Storage.DocumentsBucket,
			IDGenerator: deps.IDGenerator,
			Logger:      deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build asset service: %w", err)
		}
		svc.Assets = assetSvc
	}

	registrationRepo := reg.Registrations()
	if registrationRepo != nil && reg.Packages() != nil {
		workflowSvc, err := services.NewWorkflowService(services.WorkflowServiceDeps{
			Registrations: registrationRepo,
			Packages:      reg.Packages(),
			Numbers:       svc.Counters,
			Exchange:      svc.Exchange,
			Audit:         svc.Audit,
			UnitOfWork:    reg,
			Clock:         time.Now,
			IDGenerator:   deps.IDGenerator,
			Events:        deps.Events,
			Archiver:      deps.Archiver,
			Logger:        deps.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build workflow service: %w", err)
		}
		svc.Workflow = workflowSvc
	}

	return svc, nil
}

// FirestoreRegistryDeps enumerates collaborators for the production registry.
type FirestoreRegistryDeps struct {
	Provider *pfirestore.Provider
	Health   repositories.HealthRepository
}

type firestoreRegistry struct {
	provider      *pfirestore.Provider
	registrations repositories.RegistrationRepository
	packages      repositories.PackageRepository
	auditLogs     repositories.AuditLogRepository
	counters      repositories.CounterRepository
	health        repositories.HealthRepository
}

// NewFirestoreRegistry constructs the Firestore-backed repository registry.
func NewFirestoreRegistry(deps FirestoreRegistryDeps) (repositories.Registry, error) {
	if deps.Provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}

	registrations, err := firestoreRepo.NewRegistrationRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: registrations: %w", err)
	}
	packages, err := firestoreRepo.NewPackageRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: packages: %w", err)
	}
	auditLogs, err := firestoreRepo.NewAuditLogRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: audit logs: %w", err)
	}
	counters, err := firestoreRepo.NewCounterRepository(deps.Provider)
	if err != nil {
		return nil, fmt.Errorf("firestore registry: counters: %w", err)
	}

	return &firestoreRegistry{
		provider:      deps.Provider,
		registrations: registrations,
		packages:      packages,
		auditLogs:     auditLogs,
		counters:      counters,
		health:        deps.Health,
	}, nil
}

func (r *firestoreRegistry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

func (r *firestoreRegistry) Registrations() repositories.RegistrationRepository { return r.registrations }
func (r *firestoreRegistry) Packages() repositories.PackageRepository           { return r.packages }
func (r *firestoreRegistry) AuditLogs() repositories.AuditLogRepository         { return r.auditLogs }
func (r *firestoreRegistry) Counters() repositories.CounterRepository           { return r.counters }
func (r *firestoreRegistry) Health() repositories.HealthRepository              { return r.health }

// RunInTx executes fn directly. Repository mutations already run their own
// Firestore transactions with version preconditions, so grouping at this
// level would nest transactions.
func (r *firestoreRegistry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}
