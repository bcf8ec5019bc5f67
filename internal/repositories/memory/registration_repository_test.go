package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

func seedCase(t *testing.T, repo *RegistrationRepository) domain.RegistrationCase {
	t.Helper()
	reg := domain.RegistrationCase{
		ID:          "reg_case1",
		Number:      "FC-2025-000001",
		ApplicantID: "user-1",
		Status:      domain.StatusPaymentProcessing,
		PackageID:   "pkg-standard",
		CreatedAt:   time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC),
		Version:     1,
	}
	if err := repo.Insert(context.Background(), reg); err != nil {
		t.Fatalf("insert: %v", err)
	}
	return reg
}

func TestRegistrationUpdateRejectsStaleVersion(t *testing.T) {
	repo := NewRegistrationRepository()
	reg := seedCase(t, repo)

	if _, err := repo.Update(context.Background(), reg, reg.Version); err != nil {
		t.Fatalf("update: %v", err)
	}

	_, err := repo.Update(context.Background(), reg, reg.Version)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRegistrationUpdateConcurrentWritersSingleWinner(t *testing.T) {
	repo := NewRegistrationRepository()
	reg := seedCase(t, repo)

	statuses := []domain.Status{domain.StatusDocumentationProcessing, domain.StatusPaymentRejected}
	results := make([]error, len(statuses))

	var wg sync.WaitGroup
	for i, status := range statuses {
		wg.Add(1)
		go func(i int, status domain.Status) {
			defer wg.Done()
			next := reg.Clone()
			next.Status = status
			_, results[i] = repo.Update(context.Background(), next, reg.Version)
		}(i, status)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		default:
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) || !repoErr.IsConflict() {
				t.Fatalf("expected conflict, got %v", err)
			}
			conflicts++
		}
	}
	if wins != 1 || conflicts != 1 {
		t.Fatalf("expected one winner and one conflict, got %d wins and %d conflicts", wins, conflicts)
	}

	stored, err := repo.FindByID(context.Background(), reg.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.Version != reg.Version+1 {
		t.Fatalf("expected version %d, got %d", reg.Version+1, stored.Version)
	}
}
