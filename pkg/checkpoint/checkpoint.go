// Package checkpoint stores run headers and concentration snapshots so a run
// can be restarted from its last written step.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dd0wney/cluso-cd/pkg/logging"
	"github.com/dd0wney/cluso-cd/pkg/metrics"
)

var (
	ErrNoHeader       = errors.New("checkpoint header not found")
	ErrStepNotFound   = errors.New("checkpoint step not found")
	ErrCorrupt        = errors.New("checkpoint data corrupt")
	ErrPointOutOfGrid = errors.New("grid point outside checkpoint")
)

// Header describes the run a checkpoint belongs to.
type Header struct {
	RunID   string            `json:"run_id"`
	Created time.Time         `json:"created"`
	Nx      int               `json:"nx"`
	Hx      float64           `json:"hx"`
	Grid    []float64         `json:"grid,omitempty"`
	DOF     int               `json:"dof"`
	Network map[string]string `json:"network,omitempty"`
}

// Entry is one non-zero concentration of a grid point. DOF is zero based.
type Entry struct {
	DOF   int
	Value float64
}

// Step is one snapshot. Points is indexed by grid point; only non-zero
// concentrations are stored.
type Step struct {
	Index     int
	Time      float64
	DeltaTime float64
	Surface   int
	Points    [][]Entry
}

// Concentrations expands point xi into dst, which must hold every DOF.
func (s *Step) Concentrations(xi int, dst []float64) error {
	if xi < 0 || xi >= len(s.Points) {
		return fmt.Errorf("%w: %d of %d", ErrPointOutOfGrid, xi, len(s.Points))
	}
	return Expand(s.Points[xi], dst)
}

// Expand writes entries into a dense DOF vector, zeroing everything else.
func Expand(entries []Entry, dst []float64) error {
	clear(dst)
	for _, e := range entries {
		if e.DOF < 0 || e.DOF >= len(dst) {
			return fmt.Errorf("%w: dof %d of %d", ErrCorrupt, e.DOF, len(dst))
		}
		dst[e.DOF] = e.Value
	}
	return nil
}

// Compact keeps the non-zero values of a dense DOF vector.
func Compact(values []float64) []Entry {
	var entries []Entry
	for k, v := range values {
		if v != 0 {
			entries = append(entries, Entry{DOF: k, Value: v})
		}
	}
	return entries
}

// Store persists checkpoints. LastStep returns ErrStepNotFound when nothing
// was written yet, which callers treat as a cold start.
type Store interface {
	Header(ctx context.Context) (Header, error)
	WriteHeader(ctx context.Context, h Header) error
	LastStep(ctx context.Context) (int, error)
	Step(ctx context.Context, index int) (*Step, error)
	Surface(ctx context.Context, step int) (int, error)
	GridPoint(ctx context.Context, step, xi int) ([]Entry, error)
	WriteStep(ctx context.Context, s *Step) error
}

// Option configures a store.
type Option func(*observer)

func WithLogger(logger logging.Logger) Option {
	return func(o *observer) { o.logger = logger }
}

func WithMetrics(m *metrics.Registry) Option {
	return func(o *observer) { o.metrics = m }
}

// observer logs and counts store operations.
type observer struct {
	store   string
	logger  logging.Logger
	metrics *metrics.Registry
}

func newObserver(store string, opts []Option) observer {
	o := observer{store: store}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrDefault(o.logger).With(logging.Component("checkpoint"), logging.String("store", store))
	return o
}

func (o observer) done(op string, start time.Time, err error) {
	if o.metrics != nil {
		o.metrics.RecordCheckpointOperation(o.store, op, err, time.Since(start))
	}
	if err != nil && !errors.Is(err, ErrStepNotFound) && !errors.Is(err, ErrNoHeader) {
		o.logger.Error("checkpoint operation failed", logging.Operation(op), logging.Error(err))
	}
}

func (o observer) bytes(direction string, n int) {
	if o.metrics != nil {
		o.metrics.RecordCheckpointBytes(o.store, direction, n)
	}
}

// stepCache keeps the most recently read step so per-point restores decode
// each step once.
type stepCache struct {
	mu   sync.Mutex
	step *Step
}

func (c *stepCache) get(ctx context.Context, index int, load func(context.Context, int) (*Step, error)) (*Step, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != nil && c.step.Index == index {
		return c.step, nil
	}
	s, err := load(ctx, index)
	if err != nil {
		return nil, err
	}
	c.step = s
	return s, nil
}

func (c *stepCache) forget(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step != nil && c.step.Index == index {
		c.step = nil
	}
}

func gridPoint(s *Step, xi int) ([]Entry, error) {
	if xi < 0 || xi >= len(s.Points) {
		return nil, fmt.Errorf("%w: %d of %d", ErrPointOutOfGrid, xi, len(s.Points))
	}
	return s.Points[xi], nil
}
