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

// PackageRepository serves the incorporation package catalog from memory.
type PackageRepository struct {
	mu       sync.RWMutex
	packages map[string]domain.IncorporationPackage
}

// NewPackageRepository seeds the catalog with the provided packages.
func NewPackageRepository(packages ...domain.IncorporationPackage) *PackageRepository {
	repo := &PackageRepository{packages: make(map[string]domain.IncorporationPackage, len(packages))}
	for _, pkg := range packages {
		if id := strings.TrimSpace(pkg.ID); id != "" {
			repo.packages[id] = pkg
		}
	}
	return repo
}

// Put inserts or replaces a catalog entry.
func (r *PackageRepository) Put(pkg domain.IncorporationPackage) {
	id := strings.TrimSpace(pkg.ID)
	if id == "" {
		return
	}
	r.mu.Lock()
	r.packages[id] = pkg
	r.mu.Unlock()
}

// Resolve fetches a single package by ID.
func (r *PackageRepository) Resolve(_ context.Context, packageID string) (domain.IncorporationPackage, error) {
	packageID = strings.TrimSpace(packageID)
	if packageID == "" {
		return domain.IncorporationPackage{}, errors.New("package repository: package id is required")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	pkg, ok := r.packages[packageID]
	if !ok {
		return domain.IncorporationPackage{}, notFoundError("packages.resolve", "package not found")
	}
	return pkg, nil
}

// List returns catalog entries ordered by name.
func (r *PackageRepository) List(_ context.Context, filter repositories.PackageListFilter) (domain.CursorPage[domain.IncorporationPackage], error) {
	r.mu.RLock()
	items := make([]domain.IncorporationPackage, 0, len(r.packages))
	for _, pkg := range r.packages {
		if filter.OnlyPublished && !pkg.IsPublished {
			continue
		}
		items = append(items, pkg)
	}
	r.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })

	start := 0
	if token := strings.TrimSpace(filter.Pagination.PageToken); token != "" {
		for i := range items {
			if items[i].Name == token {
				start = i + 1
				break
			}
		}
	}
	items = items[start:]

	nextToken := ""
	if size := filter.Pagination.PageSize; size > 0 && len(items) > size {
		nextToken = items[size-1].Name
		items = items[:size]
	}
	return domain.CursorPage[domain.IncorporationPackage]{Items: items, NextPageToken: nextToken}, nil
}
