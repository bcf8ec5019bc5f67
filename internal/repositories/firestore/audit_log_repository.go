package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	pfirestore "github.com/formacorp/incorporation-api/internal/platform/firestore"
	"github.com/formacorp/incorporation-api/internal/repositories"
)

const auditLogsCollection = "auditLogs"

type auditLogDocument struct {
	Actor     string         `firestore:"actor"`
	ActorType string         `firestore:"actorType"`
	Action    string         `firestore:"action"`
	TargetRef string         `firestore:"targetRef"`
	Metadata  map[string]any `firestore:"metadata,omitempty"`
	Diff      map[string]any `firestore:"diff,omitempty"`
	IPHash    string         `firestore:"ipHash,omitempty"`
	UserAgent string         `firestore:"userAgent,omitempty"`
	Severity  string         `firestore:"severity,omitempty"`
	RequestID string         `firestore:"requestId,omitempty"`
	CreatedAt time.Time      `firestore:"createdAt"`
}

// AuditLogRepository stores append-only audit entries in Firestore.
type AuditLogRepository struct {
	base *pfirestore.BaseRepository[auditLogDocument]
}

// NewAuditLogRepository constructs a Firestore-backed audit log repository.
func NewAuditLogRepository(provider *pfirestore.Provider) (*AuditLogRepository, error) {
	if provider == nil {
		return nil, errors.New("audit log repository requires firestore provider")
	}
	return &AuditLogRepository{
		base: pfirestore.NewBaseRepository[auditLogDocument](provider, auditLogsCollection, nil, nil),
	}, nil
}

// Append writes a new audit entry. Entries are never updated afterwards.
func (r *AuditLogRepository) Append(ctx context.Context, entry domain.AuditLogEntry) error {
	if r == nil || r.base == nil {
		return errors.New("audit log repository not initialised")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return errors.New("audit log repository: entry id is required")
	}
	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	doc := auditLogDocument{
		Actor:     entry.Actor,
		ActorType: entry.ActorType,
		Action:    entry.Action,
		TargetRef: entry.TargetRef,
		Metadata:  entry.Metadata,
		Diff:      entry.Diff,
		IPHash:    entry.IPHash,
		UserAgent: entry.UserAgent,
		Severity:  entry.Severity,
		RequestID: entry.RequestID,
		CreatedAt: entry.CreatedAt.UTC(),
	}
	if _, err := ref.Create(ctx, doc); err != nil {
		return pfirestore.WrapError("auditLogs.append", err)
	}
	return nil
}

// List returns audit entries matching the filter, newest first.
func (r *AuditLogRepository) List(ctx context.Context, filter repositories.AuditLogFilter) (domain.CursorPage[domain.AuditLogEntry], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	var startAfter []any
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		tokenTime, tokenID, err := decodeRegistrationListToken(token)
		if err != nil {
			return domain.CursorPage[domain.AuditLogEntry]{}, errors.New("audit log repository: invalid page token")
		}
		startAfter = []any{tokenTime, tokenID}
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if target := strings.TrimSpace(filter.TargetRef); target != "" {
			q = q.Where("targetRef", "==", target)
		}
		if actor := strings.TrimSpace(filter.Actor); actor != "" {
			q = q.Where("actor", "==", actor)
		}
		if actorType := strings.TrimSpace(filter.ActorType); actorType != "" {
			q = q.Where("actorType", "==", actorType)
		}
		if action := strings.TrimSpace(filter.Action); action != "" {
			q = q.Where("action", "==", action)
		}
		if filter.DateRange.From != nil {
			q = q.Where("createdAt", ">=", filter.DateRange.From.UTC())
		}
		if filter.DateRange.To != nil {
			q = q.Where("createdAt", "<=", filter.DateRange.To.UTC())
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if len(startAfter) == 2 {
			q = q.StartAfter(startAfter...)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.AuditLogEntry]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		last := docs[len(docs)-1]
		nextToken = encodeRegistrationListToken(last.Data.CreatedAt, last.ID)
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.AuditLogEntry, 0, len(docs))
	for _, doc := range docs {
		items = append(items, domain.AuditLogEntry{
			ID:        doc.ID,
			Actor:     doc.Data.Actor,
			ActorType: doc.Data.ActorType,
			Action:    doc.Data.Action,
			TargetRef: doc.Data.TargetRef,
			Metadata:  doc.Data.Metadata,
			Diff:      doc.Data.Diff,
			IPHash:    doc.Data.IPHash,
			UserAgent: doc.Data.UserAgent,
			Severity:  doc.Data.Severity,
			RequestID: doc.Data.RequestID,
			CreatedAt: doc.Data.CreatedAt,
		})
	}
	return domain.CursorPage[domain.AuditLogEntry]{Items: items, NextPageToken: nextToken}, nil
}
