package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/platform/httpx"
	"github.com/formacorp/incorporation-api/internal/services"
)

const (
	defaultPackagePageSize = 50
	maxPackagePageSize     = 100
)

// PackageHandlers serves the public incorporation package catalog. No
// authentication is required; unpublished packages stay hidden.
type PackageHandlers struct {
	catalog services.CatalogService
}

// NewPackageHandlers constructs public catalog handlers.
func NewPackageHandlers(catalog services.CatalogService) *PackageHandlers {
	return &PackageHandlers{catalog: catalog}
}

// Routes registers the catalog endpoints.
func (h *PackageHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/packages", h.listPackages)
	r.Get("/packages/{packageID}", h.getPackage)
}

func (h *PackageHandlers) listPackages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	filter := services.PackageListFilter{
		OnlyPublished: true,
		Pagination: domain.Pagination{
			PageSize:  defaultPackagePageSize,
			PageToken: strings.TrimSpace(query.Get("page_token")),
		},
	}
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be a positive integer", http.StatusBadRequest))
			return
		}
		if size > maxPackagePageSize {
			size = maxPackagePageSize
		}
		filter.Pagination.PageSize = size
	}

	page, err := h.catalog.ListPackages(ctx, filter)
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}

	resp := packageListResponse{
		Items:         make([]packagePayload, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for i := range page.Items {
		resp.Items = append(resp.Items, buildPackagePayload(page.Items[i]))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *PackageHandlers) getPackage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	packageID := strings.TrimSpace(chi.URLParam(r, "packageID"))
	if packageID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "package id is required", http.StatusBadRequest))
		return
	}

	pkg, err := h.catalog.GetPackage(ctx, packageID)
	if err != nil {
		writeRegistrationError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, packageResponse{Package: buildPackagePayload(pkg)})
}
