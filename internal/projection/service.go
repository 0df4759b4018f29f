package projection

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aevon-lab/matview/internal/core/aggregation"
	"github.com/aevon-lab/matview/internal/core/storage"
	"github.com/aevon-lab/matview/internal/pipeline"
)

const (
	defaultDeadLetterLimit = 50
	maxListLimit           = 1000
)

var (
	// ErrInvalidQuery marks request validation errors that should return HTTP 400.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnknownView is returned for a view name no definition declares.
	ErrUnknownView = errors.New("unknown view")
)

// PipelineControl is the coordinator surface exposed over HTTP.
// *pipeline.Runner satisfies it.
type PipelineControl interface {
	Status() []pipeline.PartitionStatus
	Running() bool

	// Start launches a run and reports false when one is already active.
	Start() bool

	// Stop asks the active run to drain and reports false when none is active.
	Stop() bool
}

// Service implements the query and control layer.
type Service struct {
	views       storage.ViewStore
	checkpoints storage.CheckpointStore
	deadLetters storage.DeadLetterStore
	migrated    storage.MigrationStore // optional
	control     PipelineControl        // optional
	defs        map[string]aggregation.ViewDefinition
	nowFn       func() time.Time
}

// Stores groups the read dependencies of the service.
type Stores struct {
	Views       storage.ViewStore
	Checkpoints storage.CheckpointStore
	DeadLetters storage.DeadLetterStore
	Migrated    storage.MigrationStore
}

// NewService creates a new projection service.
func NewService(stores Stores, defs []aggregation.ViewDefinition, control PipelineControl) *Service {
	defMap := make(map[string]aggregation.ViewDefinition, len(defs))
	for _, d := range defs {
		defMap[d.Name] = d
	}
	return &Service{
		views:       stores.Views,
		checkpoints: stores.Checkpoints,
		deadLetters: stores.DeadLetters,
		migrated:    stores.Migrated,
		control:     control,
		defs:        defMap,
		nowFn: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// ListView returns every row of a view with its roll-up.
func (s *Service) ListView(ctx context.Context, name string) (*ViewResponse, error) {
	def, ok := s.defs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}

	rows, err := s.views.ListRows(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("list rows of %s: %w", name, err)
	}
	if rows == nil {
		rows = []aggregation.ViewRow{}
	}

	entries, err := s.checkpoints.ListCheckpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}

	return &ViewResponse{
		View:        def.Name,
		KeyField:    def.KeyField,
		ValueField:  def.ValueField,
		Actions:     def.Actions,
		Rows:        rows,
		Total:       rollupTotal(rows),
		DataThrough: dataThrough(entries),
		Fingerprint: def.Fingerprint,
	}, nil
}

// GetRow returns one row. A key never written yields storage.ErrNotFound.
func (s *Service) GetRow(ctx context.Context, name, key string) (aggregation.ViewRow, error) {
	if _, ok := s.defs[name]; !ok {
		return aggregation.ViewRow{}, fmt.Errorf("%w: %s", ErrUnknownView, name)
	}
	if key == "" {
		return aggregation.ViewRow{}, invalidQueryf("key is required")
	}
	return s.views.GetRow(ctx, aggregation.AggregationKey{View: name, Key: key})
}

// Status reports the coordinator state and stored checkpoints.
func (s *Service) Status(ctx context.Context) (*StatusResponse, error) {
	entries, err := s.checkpoints.ListCheckpoints(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	if entries == nil {
		entries = []aggregation.CheckpointEntry{}
	}

	resp := &StatusResponse{
		Partitions:  []pipeline.PartitionStatus{},
		Checkpoints: entries,
		GeneratedAt: s.nowFn(),
	}
	if s.control != nil {
		resp.Running = s.control.Running()
		resp.Partitions = s.control.Status()
	}
	return resp, nil
}

// Start launches the pipeline. It reports false when it is already running or
// there is no pipeline to control.
func (s *Service) Start() bool {
	if s.control == nil {
		return false
	}
	return s.control.Start()
}

// Stop asks the pipeline to drain. It reports false when nothing is running.
func (s *Service) Stop() bool {
	if s.control == nil {
		return false
	}
	return s.control.Stop()
}

// DeadLetters returns the most recent dead letters.
func (s *Service) DeadLetters(ctx context.Context, limit int) (*DeadLetterResponse, error) {
	limit, err := normalizeLimit(limit, defaultDeadLetterLimit)
	if err != nil {
		return nil, err
	}
	dls, err := s.deadLetters.ListDeadLetters(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	if dls == nil {
		dls = []storage.DeadLetter{}
	}
	return &DeadLetterResponse{Limit: limit, DeadLetters: dls}, nil
}

// Migrated returns the records copied under partitionKey.
func (s *Service) Migrated(ctx context.Context, partitionKey string, limit int) (*MigratedResponse, error) {
	if s.migrated == nil {
		return nil, invalidQueryf("migration is disabled")
	}
	limit, err := normalizeLimit(limit, maxListLimit)
	if err != nil {
		return nil, err
	}
	recs, err := s.migrated.ListByKey(ctx, partitionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("list migrated records: %w", err)
	}
	if recs == nil {
		recs = []storage.RekeyedRecord{}
	}
	return &MigratedResponse{PartitionKey: partitionKey, Records: recs}, nil
}

func normalizeLimit(limit, def int) (int, error) {
	switch {
	case limit == 0:
		return def, nil
	case limit < 0 || limit > maxListLimit:
		return 0, invalidQueryf("limit must be between 1 and %d", maxListLimit)
	default:
		return limit, nil
	}
}

func invalidQueryf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidQuery, fmt.Sprintf(format, args...))
}
