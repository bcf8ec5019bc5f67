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

// AuditLogRepository appends immutable audit entries to an in-process slice.
type AuditLogRepository struct {
	mu      sync.RWMutex
	entries []domain.AuditLogEntry
}

// NewAuditLogRepository constructs an empty in-memory audit log.
func NewAuditLogRepository() *AuditLogRepository {
	return &AuditLogRepository{}
}

// Append stores one entry.
func (r *AuditLogRepository) Append(_ context.Context, entry domain.AuditLogEntry) error {
	if strings.TrimSpace(entry.Action) == "" {
		return errors.New("audit log repository: action is required")
	}
	r.mu.Lock()
	r.entries = append(r.entries, entry)
	r.mu.Unlock()
	return nil
}

// List returns matching entries, newest first.
func (r *AuditLogRepository) List(_ context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	r.mu.RLock()
	matched := make([]domain.AuditLogEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		if matchesAuditFilter(entry, filter) {
			matched = append(matched, entry)
		}
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
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
	matched = matched[start:]

	nextToken := ""
	if size := filter.Pagination.PageSize; size > 0 && len(matched) > size {
		nextToken = matched[size-1].ID
		matched = matched[:size]
	}
	return domain.CursorPage[domain.AuditLogEntry]{Items: matched, NextPageToken: nextToken}, nil
}

func matchesAuditFilter(entry domain.AuditLogEntry, filter repositories.AuditLogFilter) bool {
	if ref := strings.TrimSpace(filter.TargetRef); ref != "" && entry.TargetRef != ref {
		return false
	}
	if actor := strings.TrimSpace(filter.Actor); actor != "" && entry.Actor != actor {
		return false
	}
	if actorType := strings.TrimSpace(filter.ActorType); actorType != "" && entry.ActorType != actorType {
		return false
	}
	if action := strings.TrimSpace(filter.Action); action != "" && entry.Action != action {
		return false
	}
	if filter.DateRange.From != nil && entry.CreatedAt.Before(*filter.DateRange.From) {
		return false
	}
	if filter.DateRange.To != nil && entry.CreatedAt.After(*filter.DateRange.To) {
		return false
	}
	return true
}
