package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/payments"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

// ErrCheckoutPhaseMismatch signals a phase that the package's type does not support.
var ErrCheckoutPhaseMismatch = errors.New("catalog: checkout phase not supported by package")

// CatalogServiceDeps bundles collaborators for the catalog service.
type CatalogServiceDeps struct {
	Packages repositories.PackageRepository
	Payments *payments.Manager
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type catalogService struct {
	packages repositories.PackageRepository
	payments *payments.Manager
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewCatalogService wires dependencies into a CatalogService implementation.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Packages == nil {
		return nil, errors.New("catalog service: package repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &catalogService{
		packages: deps.Packages,
		payments: deps.Payments,
		clock:    clock,
		logger:   logger,
	}, nil
}

func (s *catalogService) ListPackages(ctx context.Context, filter PackageListFilter) (domain.CursorPage[IncorporationPackage], error) {
	page, err := s.packages.List(ctx, repositories.PackageListFilter{
		OnlyPublished: filter.OnlyPublished,
		Pagination:    filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[IncorporationPackage]{}, mapCatalogError(err)
	}
	return page, nil
}

func (s *catalogService) GetPackage(ctx context.Context, packageID string) (IncorporationPackage, error) {
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return IncorporationPackage{}, fmt.Errorf("%w: package id is required", ErrWorkflowInvalidInput)
	}
	pkg, err := s.packages.Resolve(ctx, packageID)
	if err != nil {
		return IncorporationPackage{}, mapCatalogError(err)
	}
	return pkg, nil
}

// CreateCheckoutSession opens a PSP session for the selected portion of the
// package price. One-time packages accept only the full phase; advance+balance
// packages accept advance and balance.
func (s *catalogService) CreateCheckoutSession(ctx context.Context, cmd CheckoutSessionCommand) (CheckoutSessionResult, error) {
	if s.payments == nil {
		return CheckoutSessionResult{}, errors.New("catalog: payments manager not configured")
	}
	pkg, err := s.GetPackage(ctx, cmd.PackageID)
	if err != nil {
		return CheckoutSessionResult{}, err
	}

	amount, err := checkoutAmount(pkg, cmd.Phase)
	if err != nil {
		return CheckoutSessionResult{}, err
	}

	metadata := map[string]string{
		"caseId":    strings.TrimSpace(cmd.CaseID),
		"packageId": pkg.ID,
		"phase":     string(cmd.Phase),
	}
	session, err := s.payments.CreateCheckoutSession(ctx, payments.PaymentContext{
		Currency: pkg.Currency,
		Metadata: metadata,
	}, payments.CheckoutSessionRequest{
		Amount:         amount,
		Currency:       pkg.Currency,
		CustomerID:     strings.TrimSpace(cmd.ApplicantID),
		SuccessURL:     cmd.SuccessURL,
		CancelURL:      cmd.CancelURL,
		Metadata:       metadata,
		IdempotencyKey: cmd.IdempotencyKey,
	})
	if err != nil {
		return CheckoutSessionResult{}, fmt.Errorf("catalog: create checkout session: %w", err)
	}

	s.logger(ctx, "catalog.checkout.created", map[string]any{
		"package": pkg.ID,
		"phase":   string(cmd.Phase),
		"amount":  amount,
	})

	return CheckoutSessionResult{
		SessionID:   session.ID,
		Provider:    session.Provider,
		RedirectURL: session.RedirectURL,
		Amount:      amount,
		Currency:    pkg.Currency,
		Phase:       cmd.Phase,
		ExpiresAt:   session.ExpiresAt,
	}, nil
}

func checkoutAmount(pkg IncorporationPackage, phase CheckoutPhase) (int64, error) {
	switch phase {
	case CheckoutPhaseFull:
		if pkg.RequiresBalancePayment() {
			return 0, fmt.Errorf("%w: package %s is paid in advance and balance", ErrCheckoutPhaseMismatch, pkg.ID)
		}
		return pkg.Price, nil
	case CheckoutPhaseAdvance:
		if !pkg.RequiresBalancePayment() {
			return 0, fmt.Errorf("%w: package %s has no advance amount", ErrCheckoutPhaseMismatch, pkg.ID)
		}
		return pkg.AdvanceAmount, nil
	case CheckoutPhaseBalance:
		if !pkg.RequiresBalancePayment() {
			return 0, fmt.Errorf("%w: package %s has no balance amount", ErrCheckoutPhaseMismatch, pkg.ID)
		}
		return pkg.BalanceAmount, nil
	default:
		return 0, fmt.Errorf("%w: unknown phase %q", ErrWorkflowInvalidInput, phase)
	}
}

func mapCatalogError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
	}
	return err
}
