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

const packagesCollection = "packages"

type packageDocument struct {
	Name          string    `firestore:"name"`
	Description   string    `firestore:"description,omitempty"`
	Type          string    `firestore:"type"`
	Currency      string    `firestore:"currency"`
	Price         int64     `firestore:"price"`
	AdvanceAmount int64     `firestore:"advanceAmount,omitempty"`
	BalanceAmount int64     `firestore:"balanceAmount,omitempty"`
	IsPublished   bool      `firestore:"isPublished"`
	CreatedAt     time.Time `firestore:"createdAt"`
	UpdatedAt     time.Time `firestore:"updatedAt"`
}

// PackageRepository reads the incorporation package catalog from Firestore.
type PackageRepository struct {
	base *pfirestore.BaseRepository[packageDocument]
}

// NewPackageRepository constructs a Firestore-backed package repository.
func NewPackageRepository(provider *pfirestore.Provider) (*PackageRepository, error) {
	if provider == nil {
		return nil, errors.New("package repository requires firestore provider")
	}
	return &PackageRepository{
		base: pfirestore.NewBaseRepository[packageDocument](provider, packagesCollection, nil, nil),
	}, nil
}

// Resolve fetches a single package by ID.
func (r *PackageRepository) Resolve(ctx context.Context, packageID string) (domain.IncorporationPackage, error) {
	if r == nil || r.base == nil {
		return domain.IncorporationPackage{}, errors.New("package repository not initialised")
	}
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return domain.IncorporationPackage{}, errors.New("package repository: package id is required")
	}
	doc, err := r.base.Get(ctx, packageID)
	if err != nil {
		return domain.IncorporationPackage{}, err
	}
	return decodePackageDocument(doc.ID, doc.Data), nil
}

// List returns catalog packages ordered by name.
func (r *PackageRepository) List(ctx context.Context, filter repositories.PackageListFilter) (domain.CursorPage[domain.IncorporationPackage], error) {
	if r == nil || r.base == nil {
		return domain.CursorPage[domain.IncorporationPackage]{}, errors.New("package repository not initialised")
	}

	limit := filter.Pagination.PageSize
	if limit < 0 {
		limit = 0
	}
	fetchLimit := limit
	if limit > 0 {
		fetchLimit = limit + 1
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.OnlyPublished {
			q = q.Where("isPublished", "==", true)
		}
		q = q.OrderBy("name", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)
		if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
			q = q.StartAfter(token)
		}
		if fetchLimit > 0 {
			q = q.Limit(fetchLimit)
		}
		return q
	})
	if err != nil {
		return domain.CursorPage[domain.IncorporationPackage]{}, err
	}

	nextToken := ""
	if limit > 0 && len(docs) == fetchLimit {
		nextToken = docs[len(docs)-1].Data.Name
		docs = docs[:len(docs)-1]
	}

	items := make([]domain.IncorporationPackage, 0, len(docs))
	for _, doc := range docs {
		items = append(items, decodePackageDocument(doc.ID, doc.Data))
	}
	return domain.CursorPage[domain.IncorporationPackage]{Items: items, NextPageToken: nextToken}, nil
}

func decodePackageDocument(id string, doc packageDocument) domain.IncorporationPackage {
	return domain.IncorporationPackage{
		ID:            id,
		Name:          doc.Name,
		Description:   doc.Description,
		Type:          domain.PackageType(doc.Type),
		Currency:      doc.Currency,
		Price:         doc.Price,
		AdvanceAmount: doc.AdvanceAmount,
		BalanceAmount: doc.BalanceAmount,
		IsPublished:   doc.IsPublished,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
