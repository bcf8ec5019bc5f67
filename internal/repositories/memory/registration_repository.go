package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

// RegistrationRepository keeps registration cases in a mutex-guarded map.
type RegistrationRepository struct {
	mu    sync.RWMutex
	cases map[string]domain.RegistrationCase
}

// NewRegistrationRepository constructs an empty in-memory registration store.
func NewRegistrationRepository() *RegistrationRepository {
	return &RegistrationRepository{cases: make(map[string]domain.RegistrationCase)}
}

// Insert creates the case, failing on duplicate IDs.
func (r *RegistrationRepository) Insert(_ context.Context, reg domain.RegistrationCase) error {
	caseID := strings.TrimSpace(reg.ID)
	if caseID == "" {
		return errors.New("registration repository: case id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cases[caseID]; exists {
		return conflictError("registrations.insert", "case already exists")
	}
	r.cases[caseID] = reg.Clone()
	return nil
}

// FindByID fetches a single case.
func (r *RegistrationRepository) FindByID(_ context.Context, caseID string) (domain.RegistrationCase, error) {
	caseID = strings.TrimSpace(caseID)
	if caseID == "" {
		return domain.RegistrationCase{}, errors.New("registration repository: case id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	stored, ok := r.cases[caseID]
	if !ok {
		return domain.RegistrationCase{}, notFoundError("registrations.find", "registration not found")
	}
	return stored.Clone(), nil
}

// FindByApplicant returns the newest case owned by the applicant.
func (r *RegistrationRepository) FindByApplicant(_ context.Context, applicantID string) (domain.RegistrationCase, error) {
	applicantID = strings.TrimSpace(applicantID)
	if applicantID == "" {
		return domain.RegistrationCase{}, errors.New("registration repository: applicant id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found  bool
		newest domain.RegistrationCase
	)
	for _, stored := range r.cases {
		if stored.ApplicantID != applicantID {
			continue
		}
		if !found || stored.CreatedAt.After(newest.CreatedAt) {
			newest = stored
			found = true
		}
	}
	if !found {
		return domain.RegistrationCase{}, notFoundError("registrations.find_by_applicant", "registration not found")
	}
	return newest.Clone(), nil
}

// Update persists the case when the stored version matches expectedVersion,
// incrementing the version. A mismatch returns a conflict error.
func (r *RegistrationRepository) Update(_ context.Context, reg domain.RegistrationCase, expectedVersion int64) (domain.RegistrationCase, error) {
	caseID := strings.TrimSpace(reg.ID)
	if caseID == "" {
		return domain.RegistrationCase{}, errors.New("registration repository: case id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.cases[caseID]
	if !ok {
		return domain.RegistrationCase{}, notFoundError("registrations.update", "registration not found")
	}
	if stored.Version != expectedVersion {
		return domain.RegistrationCase{}, conflictError("registrations.update", "version mismatch")
	}
	reg.Version = expectedVersion + 1
	r.cases[caseID] = reg.Clone()
	return reg, nil
}

// List returns cases matching the filter, newest first by default, with a
// positional cursor token.
func (r *RegistrationRepository) List(_ context.Context, filter repositories.RegistrationListFilter) (domain.CursorPage[domain.RegistrationCase], error) {
	r.mu.RLock()
	matched := make([]domain.RegistrationCase, 0, len(r.cases))
	for _, stored := range r.cases {
		if matchesRegistrationFilter(stored, filter) {
			matched = append(matched, stored.Clone())
		}
	}
	r.mu.RUnlock()

	asc := filter.Sort == domain.SortAsc
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			if asc {
				return matched[i].ID < matched[j].ID
			}
			return matched[i].ID > matched[j].ID
		}
		if asc {
			return matched[i].CreatedAt.Before(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	start := 0
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		for i := range matched {
			if matched[i].ID == token {
				start = i + 1
				break
			}
		}
	}
	if start > len(matched) {
		start = len(matched)
	}
	matched = matched[start:]

	nextToken := ""
	if size := filter.Pagination.PageSize; size > 0 && len(matched) > size {
		nextToken = matched[size-1].ID
		matched = matched[:size]
	}
	return domain.CursorPage[domain.RegistrationCase]{Items: matched, NextPageToken: nextToken}, nil
}

func matchesRegistrationFilter(reg domain.RegistrationCase, filter repositories.RegistrationListFilter) bool {
	if applicant := strings.TrimSpace(filter.ApplicantID); applicant != "" && reg.ApplicantID != applicant {
		return false
	}
	if pkg := strings.TrimSpace(filter.PackageID); pkg != "" && reg.PackageID != pkg {
		return false
	}
	if len(filter.Status) > 0 && !containsStatus(filter.Status, reg.Status) {
		return false
	}
	if len(filter.Stage) > 0 && !containsStage(filter.Stage, reg.Stage) {
		return false
	}
	if filter.CreatedAt.From != nil && reg.CreatedAt.Before(*filter.CreatedAt.From) {
		return false
	}
	if filter.CreatedAt.To != nil && reg.CreatedAt.After(*filter.CreatedAt.To) {
		return false
	}
	return true
}

func containsStatus(values []domain.Status, value domain.Status) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

func containsStage(values []domain.Stage, value domain.Stage) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
