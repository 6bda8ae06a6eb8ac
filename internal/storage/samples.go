package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/inspector"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var sampleColumns = []string{"session_id", "entry_id", "name", "bank", "value", "sampled_at"}

func sampleRows(samples []inspector.Sample) [][]any {
	rows := make([][]any, len(samples))
	for i, s := range samples {
		rows[i] = []any{s.Session, s.EntryID, s.Name, s.Bank.String(), s.Value, s.Time}
	}
	return rows
}

// SaveSamples stores the decoded values of one refresh.
func (p *PostgresClient) SaveSamples(ctx context.Context, samples []inspector.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	_, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{"inspect_samples"},
		sampleColumns,
		pgx.CopyFromRows(sampleRows(samples)),
	)
	if err != nil {
		return fmt.Errorf("failed to save samples: %w", err)
	}
	return nil
}

// RecentSamples returns the newest samples of an entry, newest first.
func (p *PostgresClient) RecentSamples(ctx context.Context, session uuid.UUID, entryID string, limit int) ([]inspector.Sample, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := p.pool.Query(ctx, `
		SELECT session_id, entry_id, name, bank, value, sampled_at
		FROM inspect_samples
		WHERE session_id = $1 AND entry_id = $2
		ORDER BY sampled_at DESC
		LIMIT $3
	`, session, entryID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var samples []inspector.Sample
	for rows.Next() {
		var (
			s    inspector.Sample
			bank string
			ts   time.Time
		)
		if err := rows.Scan(&s.Session, &s.EntryID, &s.Name, &bank, &s.Value, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if s.Bank, err = shm.ParseBank(bank); err != nil {
			return nil, err
		}
		s.Time = ts
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// PruneSamples deletes samples older than the given age.
func (p *PostgresClient) PruneSamples(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := p.pool.Exec(ctx, `
		DELETE FROM inspect_samples WHERE sampled_at < $1
	`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to prune samples: %w", err)
	}
	return tag.RowsAffected(), nil
}
