package postgres

// SQL for the change source and the pipeline's durable state.

const (
	// queryLockPartition serializes appends to one partition until commit, so
	// BIGSERIAL tokens become visible in allocation order within a partition.
	queryLockPartition = `SELECT pg_advisory_xact_lock($1, $2)`

	// queryAppendRecord inserts a change record.
	// ON CONFLICT DO NOTHING returns no rows (sql.ErrNoRows) for duplicates.
	queryAppendRecord = `
		INSERT INTO change_records (source_key, partition_id, occurred_at, ingested_at, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (source_key) DO NOTHING
		RETURNING sequence_token
	`

	// queryPullRecords fetches records of one partition after a token in strict order.
	queryPullRecords = `
		SELECT source_key, partition_id, sequence_token, occurred_at, ingested_at, payload
		FROM change_records
		WHERE partition_id = $1
		  AND sequence_token > $2
		ORDER BY sequence_token ASC
		LIMIT $3
	`

	queryGetViewRow = `
		SELECT view_name, row_key, count, total_sum, watermarks, concurrency_token, updated_at
		FROM view_rows
		WHERE view_name = $1 AND row_key = $2
	`

	queryListViewRows = `
		SELECT view_name, row_key, count, total_sum, watermarks, concurrency_token, updated_at
		FROM view_rows
		WHERE view_name = $1
		ORDER BY row_key ASC
	`

	// queryInsertViewRow creates a row only if no writer created it first.
	queryInsertViewRow = `
		INSERT INTO view_rows (view_name, row_key, count, total_sum, watermarks, concurrency_token, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (view_name, row_key) DO NOTHING
	`

	// queryUpdateViewRow is the compare-and-swap: it matches only the token the writer read.
	queryUpdateViewRow = `
		UPDATE view_rows
		SET count = $3, total_sum = $4, watermarks = $5, concurrency_token = $6, updated_at = $7
		WHERE view_name = $1 AND row_key = $2 AND concurrency_token = $8
	`

	queryGetCheckpoint = `SELECT sequence_token FROM checkpoints WHERE partition_id = $1`

	// queryAdvanceCheckpoint only ever moves a partition forward.
	queryAdvanceCheckpoint = `
		INSERT INTO checkpoints (partition_id, sequence_token, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (partition_id) DO UPDATE
		SET sequence_token = EXCLUDED.sequence_token, updated_at = EXCLUDED.updated_at
		WHERE checkpoints.sequence_token < EXCLUDED.sequence_token
	`

	queryListCheckpoints = `
		SELECT partition_id, sequence_token, updated_at
		FROM checkpoints
		ORDER BY partition_id ASC
	`

	queryInsertDeadLetter = `
		INSERT INTO dead_letters (
			id, kind, partition_id, first_token, last_token,
			source_key, view_name, row_key, reason, details, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO NOTHING
	`

	queryListDeadLetters = `
		SELECT id, kind, partition_id, first_token, last_token,
			source_key, view_name, row_key, reason, details, created_at
		FROM dead_letters
		ORDER BY created_at DESC
		LIMIT $1
	`

	queryCopyRecord = `
		INSERT INTO records_by_key (partition_key, source_key, record, copied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (partition_key, source_key) DO NOTHING
	`

	queryListByKey = `
		SELECT partition_key, source_key, record
		FROM records_by_key
		WHERE partition_key = $1
		ORDER BY source_key ASC
		LIMIT $2
	`
)
