package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/storage"
)

const (
	defaultUploadTimeout     = 2 * time.Minute
	defaultUploadConcurrency = 4
)

// ErrUploadBatchEmpty signals an upload call that stages no artifacts.
var ErrUploadBatchEmpty = errors.New("exchange: upload batch is empty")

// DocumentExchangeDeps bundles collaborators for the exchange service.
type DocumentExchangeDeps struct {
	Files       FileStore
	Concurrency int
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type exchangeService struct {
	files       FileStore
	concurrency int
	logger      func(context.Context, string, map[string]any)
}

// NewDocumentExchange wires dependencies into a DocumentExchange implementation.
func NewDocumentExchange(deps DocumentExchangeDeps) (DocumentExchange, error) {
	if deps.Files == nil {
		return nil, errors.New("document exchange: file store is required")
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultUploadConcurrency
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &exchangeService{files: deps.Files, concurrency: concurrency, logger: logger}, nil
}

// UploadBatch pushes every staged artifact to the file store and returns the
// accumulated batch. The batch is all-or-nothing: the first failed upload
// aborts the whole call and nothing is handed to the caller.
func (s *exchangeService) UploadBatch(ctx context.Context, cmd UploadBatchCommand) (PendingBatch, error) {
	caseID := strings.TrimSpace(cmd.CaseID)
	if caseID == "" {
		return PendingBatch{}, fmt.Errorf("%w: case id is required", ErrWorkflowInvalidInput)
	}
	if len(cmd.Slots) == 0 && len(cmd.Additional) == 0 {
		return PendingBatch{}, ErrUploadBatchEmpty
	}

	purpose := string(storage.PurposeStaffDocument)
	if cmd.Role == domain.RoleApplicant {
		purpose = string(storage.PurposeCustomerDoc)
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultUploadTimeout
	}
	uploadCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type slotResult struct {
		slot   string
		bundle domain.DocumentBundle
	}
	type titledResult struct {
		index  int
		titled domain.TitledDocument
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		slots    []slotResult
		titled   = make([]titledResult, 0, len(cmd.Additional))
	)
	sem := make(chan struct{}, s.concurrency)

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for _, up := range cmd.Slots {
		up := up
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			stored, err := s.files.Upload(uploadCtx, FileUpload{
				CaseID:      caseID,
				Purpose:     purpose,
				Slot:        up.Slot,
				FileName:    up.FileName,
				ContentType: up.ContentType,
				Content:     up.Content,
			})
			if err != nil {
				fail(fmt.Errorf("exchange: upload slot %s: %w", up.Slot, err))
				return
			}
			mu.Lock()
			slots = append(slots, slotResult{slot: up.Slot, bundle: domain.DocumentBundle{
				Name:        up.FileName,
				URL:         stored.URL,
				StorageRef:  stored.StorageRef,
				ContentType: up.ContentType,
				SizeBytes:   int64(len(up.Content)),
			}})
			mu.Unlock()
		}()
	}

	for i, up := range cmd.Additional {
		i, up := i, up
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			stored, err := s.files.Upload(uploadCtx, FileUpload{
				CaseID:      caseID,
				Purpose:     purpose,
				FileName:    up.FileName,
				ContentType: up.ContentType,
				Content:     up.Content,
			})
			if err != nil {
				fail(fmt.Errorf("exchange: upload %s: %w", up.FileName, err))
				return
			}
			mu.Lock()
			titled = append(titled, titledResult{index: i, titled: domain.TitledDocument{
				Title: up.Title,
				Bundle: domain.DocumentBundle{
					Name:        up.FileName,
					URL:         stored.URL,
					StorageRef:  stored.StorageRef,
					ContentType: up.ContentType,
					SizeBytes:   int64(len(up.Content)),
				},
			}})
			mu.Unlock()
		}()
	}

	wg.Wait()

	if firstErr != nil {
		if errors.Is(firstErr, context.DeadlineExceeded) || errors.Is(uploadCtx.Err(), context.DeadlineExceeded) {
			return PendingBatch{}, fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, firstErr)
		}
		return PendingBatch{}, firstErr
	}

	batch := PendingBatch{}
	if len(slots) > 0 {
		batch.Slots = make(map[string]domain.DocumentBundle, len(slots))
		for _, r := range slots {
			batch.Slots[r.slot] = r.bundle
		}
	}
	if len(titled) > 0 {
		ordered := make([]domain.TitledDocument, len(cmd.Additional))
		for _, r := range titled {
			ordered[r.index] = r.titled
		}
		batch.Additional = ordered
	}

	s.logger(ctx, "exchange.batch.uploaded", map[string]any{
		"case":       caseID,
		"slots":      len(batch.Slots),
		"additional": len(batch.Additional),
	})
	return batch, nil
}

// CommitStaffSet merges a staged batch into the staff collection and verifies
// the required set is complete. Validation happens before any merge so a bad
// batch leaves the case untouched.
func (s *exchangeService) CommitStaffSet(reg *domain.RegistrationCase, batch PendingBatch, now time.Time) error {
	for slot := range batch.Slots {
		if !domain.ValidSlot(slot, reg.Directors) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidSlot, slot)
		}
	}

	for slot, bundle := range batch.Slots {
		if _, err := reg.SetStaffDocument(domain.RoleStaff, slot, bundle, now); err != nil {
			return err
		}
	}
	for _, doc := range batch.Additional {
		if err := reg.AppendAdditionalStaffDocument(domain.RoleStaff, doc.Title, doc.Bundle, now); err != nil {
			return err
		}
	}

	required := domain.RequiredStaffSlots(reg.Directors)
	if missing := domain.FirstMissingSlot(required, reg.StaffDocuments); missing != "" {
		return domain.NewIncompleteSet(missing)
	}

	clearDirty(reg.StaffDocuments)
	return nil
}

// CommitCustomerSet merges signed counterparts into the customer collection
// and verifies every required slot is filled.
func (s *exchangeService) CommitCustomerSet(reg *domain.RegistrationCase, batch PendingBatch, now time.Time) error {
	for slot := range batch.Slots {
		if !domain.ValidSlot(slot, reg.Directors) {
			return fmt.Errorf("%w: %s", domain.ErrInvalidSlot, slot)
		}
	}

	for slot, bundle := range batch.Slots {
		if _, err := reg.SetCustomerDocument(domain.RoleApplicant, slot, bundle, now); err != nil {
			return err
		}
	}

	required := domain.RequiredCustomerSlots(reg.Directors, reg.Details.BusinessAddressNumber)
	if missing := domain.FirstMissingSlot(required, reg.CustomerDocuments); missing != "" {
		return domain.NewIncompleteSet(missing)
	}

	clearDirty(reg.CustomerDocuments)
	return nil
}

func clearDirty(slots map[string]domain.DocumentSlot) {
	for key, slot := range slots {
		if slot.Dirty {
			slot.Dirty = false
			slots[key] = slot
		}
	}
}
