package handlers

import (
	"net/http"
	"time"

	domain "github.com/formacorp/incorporation-api/internal/domain"
	"github.com/formacorp/incorporation-api/internal/services"
)

// HealthHandlers serves liveness and readiness probes. Healthz reports the
// process itself; Readyz consults the system service for dependency status.
type HealthHandlers struct {
	system services.SystemService
	build  services.BuildInfo
	clock  func() time.Time
}

// HealthOption customises health handler construction.
type HealthOption func(*HealthHandlers)

// WithHealthSystemService wires the dependency-probing system service.
func WithHealthSystemService(svc services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = svc
	}
}

// WithHealthBuildInfo embeds build metadata in probe responses.
func WithHealthBuildInfo(build services.BuildInfo) HealthOption {
	return func(h *HealthHandlers) {
		h.build = build
	}
}

// WithHealthClock overrides the time source.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs the probe handlers.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type healthzResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version,omitempty"`
	CommitSHA   string `json:"commitSha,omitempty"`
	Environment string `json:"environment,omitempty"`
	Uptime      string `json:"uptime,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// Healthz reports process liveness without touching dependencies.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.clock().UTC()
	resp := healthzResponse{
		Status:      domain.HealthStatusOK,
		Version:     h.build.Version,
		CommitSHA:   h.build.CommitSHA,
		Environment: h.build.Environment,
		Timestamp:   now.Format(time.RFC3339),
	}
	if !h.build.StartedAt.IsZero() {
		resp.Uptime = now.Sub(h.build.StartedAt).String()
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

type readyzCheck struct {
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
	LatencyMS int64  `json:"latencyMs,omitempty"`
	CheckedAt string `json:"checkedAt,omitempty"`
}

type readyzResponse struct {
	Status      string                 `json:"status"`
	Version     string                 `json:"version,omitempty"`
	CommitSHA   string                 `json:"commitSha,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Uptime      string                 `json:"uptime,omitempty"`
	GeneratedAt string                 `json:"generatedAt,omitempty"`
	Checks      map[string]readyzCheck `json:"checks,omitempty"`
	Details     []string               `json:"details"`
}

// Readyz aggregates dependency probes; any non-ok check flips the response
// to 503 so the platform stops routing traffic here.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, readyzResponse{
			Status:  domain.HealthStatusOK,
			Details: []string{},
		})
		return
	}

	report, err := h.system.HealthReport(r.Context())
	if err != nil {
		writeJSONResponse(w, http.StatusServiceUnavailable, readyzResponse{
			Status:  domain.HealthStatusError,
			Details: []string{err.Error()},
		})
		return
	}

	resp := readyzResponse{
		Status:      report.Status,
		Version:     report.Version,
		CommitSHA:   report.CommitSHA,
		Environment: report.Environment,
		Details:     []string{},
	}
	if report.Uptime > 0 {
		resp.Uptime = report.Uptime.String()
	}
	if !report.GeneratedAt.IsZero() {
		resp.GeneratedAt = report.GeneratedAt.UTC().Format(time.RFC3339)
	}
	if len(report.Checks) > 0 {
		resp.Checks = make(map[string]readyzCheck, len(report.Checks))
		for name, check := range report.Checks {
			entry := readyzCheck{
				Status: check.Status,
				Detail: check.Detail,
				Error:  check.Error,
			}
			if check.Latency > 0 {
				entry.LatencyMS = check.Latency.Milliseconds()
			}
			if !check.CheckedAt.IsZero() {
				entry.CheckedAt = check.CheckedAt.UTC().Format(time.RFC3339)
			}
			resp.Checks[name] = entry
			if check.Status != domain.HealthStatusOK {
				detail := name
				if check.Error != "" {
					detail += ": " + check.Error
				} else if check.Detail != "" {
					detail += ": " + check.Detail
				}
				resp.Details = append(resp.Details, detail)
			}
		}
	}

	status := http.StatusOK
	if report.Status != domain.HealthStatusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, resp)
}
