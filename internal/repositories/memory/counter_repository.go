package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/formacorp/incorporation-api/internal/repositories"
)

// CounterRepository provides sequence numbers from in-process state.
type CounterRepository struct {
	mu       sync.Mutex
	values   map[string]int64
	configs  map[string]repositories.CounterConfig
	starting map[string]int64
}

// NewCounterRepository constructs an empty counter store.
func NewCounterRepository() *CounterRepository {
	return &CounterRepository{
		values:   make(map[string]int64),
		configs:  make(map[string]repositories.CounterConfig),
		starting: make(map[string]int64),
	}
}

// Configure records increment behaviour for a counter.
func (r *CounterRepository) Configure(_ context.Context, counterID string, cfg repositories.CounterConfig) error {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[counterID] = cfg
	if cfg.InitialValue != nil {
		r.starting[counterID] = *cfg.InitialValue
	}
	return nil
}

// Next atomically advances and returns the counter value.
func (r *CounterRepository) Next(_ context.Context, counterID string, step int64) (int64, error) {
	counterID = strings.TrimSpace(counterID)
	if counterID == "" {
		return 0, repositories.NewCounterError(repositories.CounterErrorInvalidInput, "counter id is required", nil)
	}
	if step <= 0 {
		step = 1
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.values[counterID]
	if !ok {
		if initial, seeded := r.starting[counterID]; seeded {
			current = initial
		}
	}
	next := current + step
	if cfg, configured := r.configs[counterID]; configured && cfg.MaxValue != nil && next > *cfg.MaxValue {
		return 0, repositories.NewCounterError(repositories.CounterErrorExhausted, "counter exhausted", nil)
	}
	r.values[counterID] = next
	return next, nil
}
