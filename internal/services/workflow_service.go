package services

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

const (
	registrationEventCreated      = "registration.created"
	registrationEventStatusChange = "registration.status.changed"
	registrationEventDocsPub      = "registration.documents.published"
	registrationEventDocsAck      = "registration.documents.acknowledged"
	registrationEventBalance      = "registration.balance.reviewed"
	registrationEventCompleted    = "registration.completed"

	registrationIDPrefix = "reg_"
	shareholderIDPrefix  = "shr_"
	directorIDPrefix     = "dir_"
)

var (
	// ErrWorkflowInvalidInput signals the caller provided invalid data.
	ErrWorkflowInvalidInput = errors.New("workflow: invalid input")

	errWorkflowExchangeUnavailable = errors.New("workflow: document exchange not configured")
)

// WorkflowServiceDeps bundles collaborators required to construct the workflow service.
type WorkflowServiceDeps struct {
	Registrations repositories.RegistrationRepository
	Packages      repositories.PackageRepository
	Numbers       CounterService
	Exchange      DocumentExchange
	Audit         AuditLogService
	UnitOfWork    repositories.UnitOfWork
	Clock         func() time.Time
	IDGenerator   func() string
	Events        RegistrationEventPublisher
	Archiver      DocumentArchiver
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

type workflowService struct {
	registrations repositories.RegistrationRepository
	packages      repositories.PackageRepository
	numbers       CounterService
	exchange      DocumentExchange
	audit         AuditLogService
	unitOfWork    repositories.UnitOfWork
	clock         func() time.Time
	newID         func() string
	events        RegistrationEventPublisher
	archiver      DocumentArchiver
	logger        func(context.Context, string, map[string]any)
}

// NewWorkflowService wires dependencies into a concrete WorkflowService implementation.
func NewWorkflowService(deps WorkflowServiceDeps) (WorkflowService, error) {
	if deps.Registrations == nil {
		return nil, errors.New("workflow service: registration repository is required")
	}
	if deps.Packages == nil {
		return nil, errors.New("workflow service: package repository is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &workflowService{
		registrations: deps.Registrations,
		packages:      deps.Packages,
		numbers:       deps.Numbers,
		exchange:      deps.Exchange,
		audit:         deps.Audit,
		unitOfWork:    unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:    idGen,
		events:   deps.Events,
		archiver: deps.Archiver,
		logger:   logger,
	}, nil
}

func (s *workflowService) CreateRegistration(ctx context.Context, cmd CreateRegistrationCommand) (RegistrationCase, error) {
	applicantID := strings.TrimSpace(cmd.ApplicantID)
	if applicantID == "" {
		return RegistrationCase{}, fmt.Errorf("%w: applicant id is required", ErrWorkflowInvalidInput)
	}
	packageID := strings.TrimSpace(cmd.PackageID)
	if packageID == "" {
		return RegistrationCase{}, fmt.Errorf("%w: package id is required", ErrWorkflowInvalidInput)
	}

	if _, err := s.packages.Resolve(ctx, packageID); err != nil {
		if mapped := s.mapRepositoryError(err); errors.Is(mapped, domain.ErrNotFound) {
			return RegistrationCase{}, fmt.Errorf("%w: unknown package %q", ErrWorkflowInvalidInput, packageID)
		}
		return RegistrationCase{}, s.mapRepositoryError(err)
	}

	now := s.now()
	reg := domain.RegistrationCase{
		ID:          registrationIDPrefix + s.newID(),
		ApplicantID: applicantID,
		Status:      domain.StatusPaymentProcessing,
		PackageID:   packageID,
		Details:     cmd.Details,
		Metadata:    cloneMap(cmd.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	reg.SyncStage()
	reg.Audit.CreatedBy = optionalString(applicantID)

	if cmd.PaymentReceipt != nil && !cmd.PaymentReceipt.IsZero() {
		if _, err := reg.AttachPaymentReceipt(domain.RoleApplicant, *cmd.PaymentReceipt, now); err != nil {
			return RegistrationCase{}, err
		}
	}

	if s.numbers != nil {
		number, err := s.numbers.NextRegistrationNumber(ctx)
		if err != nil {
			return RegistrationCase{}, s.mapRepositoryError(err)
		}
		reg.Number = number
	}

	err := s.runInTx(ctx, func(txCtx context.Context) error {
		if err := s.registrations.Insert(txCtx, reg); err != nil {
			return s.mapRepositoryError(err)
		}
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.publishEvent(ctx, RegistrationEvent{
		Type:          registrationEventCreated,
		CaseID:        reg.ID,
		CaseNumber:    reg.Number,
		CurrentStatus: string(reg.Status),
		Stage:         string(reg.Stage),
		ActorID:       applicantID,
		OccurredAt:    now,
		Metadata:      cloneMap(reg.Metadata),
	})

	return reg, nil
}

func (s *workflowService) GetRegistration(ctx context.Context, caseID string) (RegistrationCase, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return RegistrationCase{}, fmt.Errorf("%w: case id is required", ErrWorkflowInvalidInput)
	}
	reg, err := s.registrations.FindByID(ctx, caseID)
	if err != nil {
		return RegistrationCase{}, s.mapRepositoryError(err)
	}
	return reg, nil
}

func (s *workflowService) GetRegistrationForApplicant(ctx context.Context, applicantID string) (RegistrationCase, error) {
	applicantID = strings.TrimSpace(applicantID)
	if applicantID == "" {
		return RegistrationCase{}, fmt.Errorf("%w: applicant id is required", ErrWorkflowInvalidInput)
	}
	reg, err := s.registrations.FindByApplicant(ctx, applicantID)
	if err != nil {
		return RegistrationCase{}, s.mapRepositoryError(err)
	}
	return reg, nil
}

func (s *workflowService) ListRegistrations(ctx context.Context, filter RegistrationListFilter) (domain.CursorPage[RegistrationCase], error) {
	page, err := s.registrations.List(ctx, filter)
	if err != nil {
		return domain.CursorPage[RegistrationCase]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *workflowService) ApprovePayment(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error) {
	const action = "approve_payment"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusPaymentProcessing {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
		if reg.PaymentReceipt == nil || reg.PaymentReceipt.IsZero() {
			return domain.NewGuardFailed(action, domain.GuardReasonPaymentReceiptMissing)
		}
		reg.PaymentApproved = true
		reg.Status = domain.StatusDocumentationProcessing
		reg.PaymentReviewedBy = optionalString(cmd.ActorID)
		reg.PaymentReviewedAt = &now
		reg.PaymentRejectReason = nil
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, cmd, action, reg, prev, nil)
	s.publishStatusChange(ctx, reg, prev, cmd.ActorID, now, cmd.Metadata)
	return reg, nil
}

func (s *workflowService) RejectPayment(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error) {
	const action = "reject_payment"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusPaymentProcessing {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
		reg.Status = domain.StatusPaymentRejected
		reg.PaymentReviewedBy = optionalString(cmd.ActorID)
		reg.PaymentReviewedAt = &now
		reg.PaymentRejectReason = optionalString(cmd.Reason)
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, cmd, action, reg, prev, map[string]any{"reason": strings.TrimSpace(cmd.Reason)})
	s.publishStatusChange(ctx, reg, prev, cmd.ActorID, now, cmd.Metadata)
	return reg, nil
}

func (s *workflowService) ResubmitPayment(ctx context.Context, cmd AttachReceiptCommand) (RegistrationCase, error) {
	const action = "resubmit_payment"
	if cmd.Role != domain.RoleApplicant {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusPaymentRejected {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
		if cmd.Receipt.IsZero() {
			return domain.NewGuardFailed(action, domain.GuardReasonPaymentReceiptMissing)
		}
		if _, err := reg.AttachPaymentReceipt(cmd.Role, cmd.Receipt, now); err != nil {
			return err
		}
		reg.Status = domain.StatusPaymentProcessing
		reg.PaymentRejectReason = nil
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.publishStatusChange(ctx, reg, prev, cmd.ActorID, now, nil)
	return reg, nil
}

func (s *workflowService) SaveCompanyDetails(ctx context.Context, cmd SaveCompanyDetailsCommand) (RegistrationCase, error) {
	reg, _, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if _, err := reg.SetCompanyDetails(cmd.Role, cmd.Details, now); err != nil {
			return err
		}
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}
	return reg, nil
}

func (s *workflowService) UpsertShareholder(ctx context.Context, cmd UpsertShareholderCommand) (RegistrationCase, error) {
	sh := cmd.Shareholder
	if strings.TrimSpace(sh.ID) == "" {
		sh.ID = shareholderIDPrefix + s.newID()
	}
	if strings.TrimSpace(sh.FullName) == "" {
		return RegistrationCase{}, fmt.Errorf("%w: shareholder full name is required", ErrWorkflowInvalidInput)
	}

	reg, _, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if err := reg.UpsertShareholder(cmd.Role, sh, now); err != nil {
			return err
		}
		if sh.IsDirector && !hasDirectorForShareholder(reg, sh.ID) {
			return reg.AppointDirector(cmd.Role, domain.Director{
				ID:             directorIDPrefix + s.newID(),
				ShareholderRef: optionalString(sh.ID),
				FullName:       sh.FullName,
				NIC:            sh.NIC,
				Address:        sh.Address,
			}, now)
		}
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}
	return reg, nil
}

func (s *workflowService) RemoveShareholder(ctx context.Context, cmd RemovePartyCommand) (RegistrationCase, error) {
	partyID := strings.TrimSpace(cmd.PartyID)
	if partyID == "" {
		return RegistrationCase{}, fmt.Errorf("%w: shareholder id is required", ErrWorkflowInvalidInput)
	}

	var discarded []domain.DocumentBundle
	reg, _, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		dropped, err := reg.RemoveShareholder(cmd.Role, partyID, now)
		if err != nil {
			return err
		}
		discarded = dropped
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDiscardedDocuments(ctx, cmd.ActorID, reg.ID, "remove_shareholder", discarded)
	return reg, nil
}

func (s *workflowService) AppointDirector(ctx context.Context, cmd AppointDirectorCommand) (RegistrationCase, error) {
	d := cmd.Director
	if strings.TrimSpace(d.ID) == "" {
		d.ID = directorIDPrefix + s.newID()
	}
	if strings.TrimSpace(d.FullName) == "" {
		return RegistrationCase{}, fmt.Errorf("%w: director full name is required", ErrWorkflowInvalidInput)
	}

	reg, _, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		return reg.AppointDirector(cmd.Role, d, now)
	})
	if err != nil {
		return RegistrationCase{}, err
	}
	return reg, nil
}

func (s *workflowService) RemoveDirector(ctx context.Context, cmd RemovePartyCommand) (RegistrationCase, error) {
	partyID := strings.TrimSpace(cmd.PartyID)
	if partyID == "" {
		return RegistrationCase{}, fmt.Errorf("%w: director id is required", ErrWorkflowInvalidInput)
	}

	var discarded []domain.DocumentBundle
	reg, _, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		dropped, err := reg.RemoveDirector(cmd.Role, partyID, now)
		if err != nil {
			return err
		}
		discarded = dropped
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDiscardedDocuments(ctx, cmd.ActorID, reg.ID, "remove_director", discarded)
	return reg, nil
}

func (s *workflowService) ApproveDetails(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error) {
	const action = "approve_details"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if err := guardDetailsApproval(reg, action); err != nil {
			return err
		}
		reg.DetailsApproved = true
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, cmd, action, reg, prev, nil)
	s.publishStatusChange(ctx, reg, prev, cmd.ActorID, now, cmd.Metadata)
	return reg, nil
}

func (s *workflowService) PublishDocuments(ctx context.Context, cmd CommitDocumentsCommand) (RegistrationCase, error) {
	const action = "publish_documents"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	if s.exchange == nil {
		return RegistrationCase{}, errWorkflowExchangeUnavailable
	}

	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if err := guardPublish(reg, action); err != nil {
			return err
		}
		if err := s.exchange.CommitStaffSet(reg, cmd.Batch, now); err != nil {
			return err
		}
		// Republishing revokes a prior acknowledgement: the applicant must
		// sign off on the refreshed set.
		if reg.DocumentsAcknowledged {
			reg.DocumentsAcknowledged = false
			reg.DocumentsAcknowledgedAt = nil
		}
		reg.DocumentsPublished = true
		reg.DocumentsPublishedAt = &now
		reg.Status = domain.StatusDocumentsPublished
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, DecisionCommand{CaseID: cmd.CaseID, ActorID: cmd.ActorID, Role: cmd.Role}, action, reg, prev, map[string]any{
		"slots": len(cmd.Batch.Slots),
	})
	s.publishEvent(ctx, RegistrationEvent{
		Type:           registrationEventDocsPub,
		CaseID:         reg.ID,
		CaseNumber:     reg.Number,
		PreviousStatus: string(prev),
		CurrentStatus:  string(reg.Status),
		Stage:          string(reg.Stage),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return reg, nil
}

func (s *workflowService) ReplaceStaffDocument(ctx context.Context, cmd ReplaceDocumentCommand) (RegistrationCase, error) {
	const action = "replace_staff_document"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	slot := strings.TrimSpace(cmd.Slot)
	if slot == "" {
		return RegistrationCase{}, fmt.Errorf("%w: slot is required", ErrWorkflowInvalidInput)
	}
	if cmd.Bundle.IsZero() {
		return RegistrationCase{}, fmt.Errorf("%w: document bundle is required", ErrWorkflowInvalidInput)
	}

	reg, prev, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if err := guardStaffReplace(reg, action); err != nil {
			return err
		}
		if _, err := reg.SetStaffDocument(cmd.Role, slot, cmd.Bundle, now); err != nil {
			return err
		}
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, DecisionCommand{CaseID: cmd.CaseID, ActorID: cmd.ActorID, Role: cmd.Role}, action, reg, prev, map[string]any{
		"slot": slot,
	})
	return reg, nil
}

func (s *workflowService) AcknowledgeDocuments(ctx context.Context, cmd CommitDocumentsCommand) (RegistrationCase, error) {
	const action = "acknowledge_documents"
	if cmd.Role != domain.RoleApplicant {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	if s.exchange == nil {
		return RegistrationCase{}, errWorkflowExchangeUnavailable
	}

	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusDocumentsPublished {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
		if err := s.exchange.CommitCustomerSet(reg, cmd.Batch, now); err != nil {
			return err
		}
		pkg, err := s.packages.Resolve(ctx, reg.PackageID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := guardBalanceApproval(reg, pkg, action); err != nil {
			return err
		}
		reg.DocumentsAcknowledged = true
		reg.DocumentsAcknowledgedAt = &now
		reg.Status = domain.StatusIncorporationProcessing
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.publishEvent(ctx, RegistrationEvent{
		Type:           registrationEventDocsAck,
		CaseID:         reg.ID,
		CaseNumber:     reg.Number,
		PreviousStatus: string(prev),
		CurrentStatus:  string(reg.Status),
		Stage:          string(reg.Stage),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return reg, nil
}

func (s *workflowService) AttachBalanceReceipt(ctx context.Context, cmd AttachReceiptCommand) (RegistrationCase, error) {
	if cmd.Receipt.IsZero() {
		return RegistrationCase{}, fmt.Errorf("%w: balance receipt is required", ErrWorkflowInvalidInput)
	}

	reg, _, _, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		_, err := reg.AttachBalanceReceipt(cmd.Role, cmd.Receipt, now)
		return err
	})
	if err != nil {
		return RegistrationCase{}, err
	}
	return reg, nil
}

func (s *workflowService) ReviewBalanceReceipt(ctx context.Context, cmd ReviewBalanceReceiptCommand) (RegistrationCase, error) {
	const action = "review_balance_receipt"
	var previous domain.BalanceReceiptStatus
	reg, _, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		prev, err := reg.ReviewBalanceReceipt(cmd.Role, cmd.Approve, cmd.ActorID, cmd.Note, now)
		if err != nil {
			return err
		}
		previous = prev
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	current := domain.BalanceReceiptStatus("")
	if reg.BalanceReceipt != nil {
		current = reg.BalanceReceipt.Status
	}
	if s.audit != nil {
		s.audit.Record(ctx, AuditLogRecord{
			Actor:     cmd.ActorID,
			ActorType: "staff",
			Action:    action,
			TargetRef: "registrations/" + reg.ID,
			Diff: map[string]AuditLogDiff{
				"balanceReceiptStatus": {Before: string(previous), After: string(current)},
			},
		})
	}
	s.publishEvent(ctx, RegistrationEvent{
		Type:          registrationEventBalance,
		CaseID:        reg.ID,
		CaseNumber:    reg.Number,
		CurrentStatus: string(reg.Status),
		Stage:         string(reg.Stage),
		ActorID:       cmd.ActorID,
		OccurredAt:    now,
		Metadata:      map[string]any{"balanceReceiptStatus": string(current)},
	})
	return reg, nil
}

func (s *workflowService) ContinueToIncorporation(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error) {
	const action = "continue_to_incorporation"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusIncorporationProcessing {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
		required := domain.RequiredCustomerSlots(reg.Directors, reg.Details.BusinessAddressNumber)
		if missing := domain.FirstMissingSlot(required, reg.CustomerDocuments); missing != "" {
			return domain.NewGuardFailed(action, domain.GuardReasonCustomerDocumentsMissing)
		}
		pkg, err := s.packages.Resolve(ctx, reg.PackageID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if err := guardBalanceApproval(reg, pkg, action); err != nil {
			return err
		}
		reg.DocumentsApproved = true
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, cmd, action, reg, prev, nil)
	s.publishStatusChange(ctx, reg, prev, cmd.ActorID, now, cmd.Metadata)
	return reg, nil
}

func (s *workflowService) SubmitFinalDocuments(ctx context.Context, cmd SubmitFinalDocumentsCommand) (RegistrationCase, error) {
	const action = "submit_final_documents"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusIncorporationProcessing {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
		if !reg.DocumentsApproved {
			return domain.NewGuardFailed(action, domain.GuardReasonDocumentsNotApproved)
		}
		if cmd.Certificate != nil && !cmd.Certificate.IsZero() {
			if _, err := reg.SetIncorporationCertificate(cmd.Role, *cmd.Certificate, now); err != nil {
				return err
			}
		}
		for _, doc := range cmd.Additional {
			if err := reg.AppendFinalDocument(cmd.Role, doc.Title, doc.Bundle, now); err != nil {
				return err
			}
		}
		hasCertificate := reg.IncorporationCertificate != nil && !reg.IncorporationCertificate.IsZero()
		if !hasCertificate && len(reg.AdditionalDocuments) == 0 {
			return domain.NewGuardFailed(action, domain.GuardReasonFinalDocumentsMissing)
		}
		reg.Status = domain.StatusDocumentsSubmitted
		reg.DocumentsSubmittedAt = &now
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, DecisionCommand{CaseID: cmd.CaseID, ActorID: cmd.ActorID, Role: cmd.Role}, action, reg, prev, nil)
	s.publishStatusChange(ctx, reg, prev, cmd.ActorID, now, nil)
	return reg, nil
}

func (s *workflowService) CompleteRegistration(ctx context.Context, cmd DecisionCommand) (RegistrationCase, error) {
	const action = "complete_registration"
	if cmd.Role != domain.RoleStaff {
		return RegistrationCase{}, domain.ErrUnauthorizedAction
	}
	reg, prev, now, err := s.transition(ctx, cmd.CaseID, func(reg *domain.RegistrationCase, now time.Time) error {
		if reg.Status != domain.StatusDocumentsSubmitted {
			return domain.NewGuardFailed(action, domain.GuardReasonNotReadyForCompletion)
		}
		reg.Status = domain.StatusCompleted
		reg.CompletedAt = &now
		reg.Audit.UpdatedBy = optionalString(cmd.ActorID)
		return nil
	})
	if err != nil {
		return RegistrationCase{}, err
	}

	s.recordDecision(ctx, cmd, action, reg, prev, nil)
	s.archiveCaseDocuments(ctx, reg)
	s.publishEvent(ctx, RegistrationEvent{
		Type:           registrationEventCompleted,
		CaseID:         reg.ID,
		CaseNumber:     reg.Number,
		PreviousStatus: string(prev),
		CurrentStatus:  string(reg.Status),
		Stage:          string(reg.Stage),
		ActorID:        cmd.ActorID,
		OccurredAt:     now,
	})
	return reg, nil
}

// transition loads the case, applies fn on a clone, recomputes the stage, and
// persists with a version check. Guard failures abort before the write so the
// persisted case is untouched; a version mismatch surfaces as ErrStaleWrite.
func (s *workflowService) transition(ctx context.Context, caseID string, fn func(reg *domain.RegistrationCase, now time.Time) error) (RegistrationCase, domain.Status, time.Time, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return RegistrationCase{}, "", time.Time{}, fmt.Errorf("%w: case id is required", ErrWorkflowInvalidInput)
	}

	stored, err := s.registrations.FindByID(ctx, caseID)
	if err != nil {
		return RegistrationCase{}, "", time.Time{}, s.mapRepositoryError(err)
	}

	now := s.now()
	prev := stored.Status
	next := stored.Clone()
	if err := fn(&next, now); err != nil {
		return RegistrationCase{}, "", time.Time{}, err
	}
	next.SyncStage()
	next.UpdatedAt = now

	var updated domain.RegistrationCase
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		var updateErr error
		updated, updateErr = s.registrations.Update(txCtx, next, stored.Version)
		if updateErr != nil {
			return s.mapRepositoryError(updateErr)
		}
		return nil
	})
	if err != nil {
		return RegistrationCase{}, "", time.Time{}, err
	}

	return updated, prev, now, nil
}

func hasDirectorForShareholder(reg *domain.RegistrationCase, shareholderID string) bool {
	for _, d := range reg.Directors {
		if d.ShareholderRef != nil && *d.ShareholderRef == shareholderID {
			return true
		}
	}
	return false
}

// Guard helpers, evaluated in the fixed priority order
// payment, details, documents, balance payment.

func guardDetailsApproval(reg *domain.RegistrationCase, action string) error {
	if reg.Status != domain.StatusDocumentationProcessing {
		return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
	}
	if !reg.PaymentApproved {
		return domain.NewGuardFailed(action, domain.GuardReasonPaymentNotApproved)
	}
	if !reg.Details.Complete() || len(reg.Directors) == 0 {
		return domain.NewGuardFailed(action, domain.GuardReasonDetailsIncomplete)
	}
	return nil
}

func guardPublish(reg *domain.RegistrationCase, action string) error {
	switch reg.Status {
	case domain.StatusDocumentationProcessing, domain.StatusDocumentsPublished:
	case domain.StatusIncorporationProcessing:
		// Re-publish stays open until staff continues; afterwards the
		// staff set is frozen.
		if reg.DocumentsApproved {
			return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
		}
	default:
		return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
	}
	if !reg.PaymentApproved {
		return domain.NewGuardFailed(action, domain.GuardReasonPaymentNotApproved)
	}
	if !reg.DetailsApproved {
		return domain.NewGuardFailed(action, domain.GuardReasonDetailsNotApproved)
	}
	return nil
}

// guardStaffReplace admits a single-slot staff replacement while the exchange
// is still open, from details approval up to the continue decision.
func guardStaffReplace(reg *domain.RegistrationCase, action string) error {
	switch reg.Status {
	case domain.StatusDocumentationProcessing, domain.StatusDocumentsPublished, domain.StatusIncorporationProcessing:
	default:
		return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
	}
	if reg.DocumentsApproved {
		return domain.NewGuardFailed(action, domain.GuardReasonActionNotAllowed)
	}
	if !reg.PaymentApproved {
		return domain.NewGuardFailed(action, domain.GuardReasonPaymentNotApproved)
	}
	return nil
}

func guardBalanceApproval(reg *domain.RegistrationCase, pkg domain.IncorporationPackage, action string) error {
	if !pkg.RequiresBalancePayment() {
		return nil
	}
	if reg.BalanceReceipt == nil || reg.BalanceReceipt.Status != domain.BalanceApproved {
		return domain.NewGuardFailed(action, domain.GuardReasonBalancePaymentNotApproved)
	}
	return nil
}

func (s *workflowService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", domain.ErrNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", domain.ErrStaleWrite, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("workflow: repository unavailable: %w", err)
		}
	}

	return err
}

func (s *workflowService) recordDecision(ctx context.Context, cmd DecisionCommand, action string, reg RegistrationCase, prev domain.Status, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     cmd.ActorID,
		ActorType: "staff",
		Action:    action,
		TargetRef: "registrations/" + reg.ID,
		Metadata:  metadata,
		Diff: map[string]AuditLogDiff{
			"status": {Before: string(prev), After: string(reg.Status)},
		},
	})
}

func (s *workflowService) recordDiscardedDocuments(ctx context.Context, actorID, caseID, action string, discarded []domain.DocumentBundle) {
	if s.audit == nil || len(discarded) == 0 {
		return
	}
	names := make([]string, 0, len(discarded))
	for _, b := range discarded {
		names = append(names, b.Name)
	}
	s.audit.Record(ctx, AuditLogRecord{
		Actor:     actorID,
		Action:    action,
		TargetRef: "registrations/" + caseID,
		Severity:  "warn",
		Metadata: map[string]any{
			"discardedDocuments": names,
		},
	})
}

func (s *workflowService) publishStatusChange(ctx context.Context, reg RegistrationCase, prev domain.Status, actorID string, now time.Time, metadata map[string]any) {
	s.publishEvent(ctx, RegistrationEvent{
		Type:           registrationEventStatusChange,
		CaseID:         reg.ID,
		CaseNumber:     reg.Number,
		PreviousStatus: string(prev),
		CurrentStatus:  string(reg.Status),
		Stage:          string(reg.Stage),
		ActorID:        actorID,
		OccurredAt:     now,
		Metadata:       metadata,
	})
}

func (s *workflowService) publishEvent(ctx context.Context, event RegistrationEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishRegistrationEvent(ctx, event); err != nil {
		s.logger(ctx, "registration.event.publish.failed", map[string]any{
			"type":   event.Type,
			"case":   event.CaseID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

// archiveCaseDocuments copies every stored artifact of a completed case into
// the retention archive. Failures are logged and never roll the completion
// back; the documents bucket remains the system of record.
func (s *workflowService) archiveCaseDocuments(ctx context.Context, reg RegistrationCase) {
	if s.archiver == nil {
		return
	}
	for _, ref := range caseArtifactRefs(reg) {
		if _, err := s.archiver.ArchiveObject(ctx, ref); err != nil {
			s.logger(ctx, "registration.archive.failed", map[string]any{
				"case":   reg.ID,
				"object": ref,
				"error":  err.Error(),
			})
		}
	}
}

func caseArtifactRefs(reg RegistrationCase) []string {
	var refs []string
	seen := map[string]struct{}{}
	add := func(ref string) {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			return
		}
		if _, ok := seen[ref]; ok {
			return
		}
		seen[ref] = struct{}{}
		refs = append(refs, ref)
	}
	addBundle := func(b *domain.DocumentBundle) {
		if b != nil {
			add(b.StorageRef)
		}
	}

	addBundle(reg.PaymentReceipt)
	if reg.BalanceReceipt != nil {
		add(reg.BalanceReceipt.Bundle.StorageRef)
	}
	for _, slot := range reg.StaffDocuments {
		addBundle(slot.Bundle)
	}
	for _, slot := range reg.CustomerDocuments {
		addBundle(slot.Bundle)
	}
	for _, doc := range reg.AdditionalStaffDocuments {
		add(doc.Bundle.StorageRef)
	}
	addBundle(reg.IncorporationCertificate)
	for _, doc := range reg.AdditionalDocuments {
		add(doc.Bundle.StorageRef)
	}
	for _, sh := range reg.Shareholders {
		for _, doc := range sh.Documents {
			add(doc.StorageRef)
		}
	}
	for _, d := range reg.Directors {
		for _, doc := range d.Documents {
			add(doc.StorageRef)
		}
	}
	return refs
}

func (s *workflowService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unitOfWork == nil {
		return fn(ctx)
	}
	return s.unitOfWork.RunInTx(ctx, fn)
}

func (s *workflowService) now() time.Time {
	return s.clock()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

func cloneMap(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
