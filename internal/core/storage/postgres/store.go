package postgres

import (
	"database/sql"

	"github.com/aevon-lab/matview/internal/core/storage"
)

// Store bundles the postgres adapters into a storage.Store sharing one pool.
type Store struct {
	*Adapter
	*ViewAdapter
	*CheckpointAdapter
	*DeadLetterAdapter
	*MigrationAdapter
}

var _ storage.Store = (*Store)(nil)

// NewStore builds every adapter on db. Close on the returned store closes db.
func NewStore(db *sql.DB) (*Store, error) {
	records, err := NewAdapter(db)
	if err != nil {
		return nil, err
	}
	return &Store{
		Adapter:           records,
		ViewAdapter:       NewViewAdapter(db),
		CheckpointAdapter: NewCheckpointAdapter(db),
		DeadLetterAdapter: NewDeadLetterAdapter(db),
		MigrationAdapter:  NewMigrationAdapter(db),
	}, nil
}
