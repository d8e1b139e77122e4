// Package query runs SQL over exported Parquet files with an in-memory
// DuckDB instance.
package query

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/beamstore/internal/storage/export"
	"github.com/xtxerr/beamstore/internal/storage/types"
)

// Options configures the query service.
type Options struct {
	// ExportDir is the directory holding exported Parquet files.
	ExportDir string

	// MemoryLimit caps DuckDB memory, e.g. "512MB". Empty means no cap.
	MemoryLimit string
}

// Service provides SQL query capabilities over exported batch data.
type Service struct {
	mu sync.RWMutex

	opts Options
	db   *sql.DB

	stats Stats
}

// Stats holds query statistics.
type Stats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// SampleQuery selects exported power samples of one object.
type SampleQuery struct {
	Format   types.Format
	ObjectID int

	// StartTs and EndTs bound the sample timestamps; zero values leave the
	// corresponding side unbounded.
	StartTs float64
	EndTs   float64

	Limit int
}

// New creates the query service over the given export directory.
func New(opts Options) (*Service, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	if opts.MemoryLimit != "" {
		if _, err := db.Exec(fmt.Sprintf("SET memory_limit='%s'", opts.MemoryLimit)); err != nil {
			db.Close()
			return nil, fmt.Errorf("set memory limit: %w", err)
		}
	}

	return &Service{opts: opts, db: db}, nil
}

// Close closes the service.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Service) pattern() string {
	return filepath.Join(s.opts.ExportDir, "*.parquet")
}

// QuerySamples returns the exported power samples matching the query, in
// timestamp order.
func (s *Service) QuerySamples(ctx context.Context, q SampleQuery) ([]export.SampleRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT
			format, object_id, partition, dataset,
			sample, timestamp, power
		FROM read_parquet($1)
		WHERE format = $2
		  AND object_id = $3
		  AND ($4 = 0 OR timestamp >= $4)
		  AND ($5 = 0 OR timestamp <= $5)
		ORDER BY timestamp, dataset, sample
	`

	rows, err := s.db.QueryContext(ctx, query,
		s.pattern(),
		q.Format.String(),
		q.ObjectID,
		q.StartTs,
		q.EndTs,
	)
	if err != nil {
		// No exported files yet.
		return nil, nil
	}
	defer rows.Close()

	var results []export.SampleRow
	for rows.Next() {
		var r export.SampleRow
		if err := rows.Scan(&r.Format, &r.ObjectID, &r.Partition, &r.Dataset,
			&r.Sample, &r.Timestamp, &r.Power); err != nil {
			s.stats.Errors++
			return nil, fmt.Errorf("scan row: %w", err)
		}
		results = append(results, r)
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		s.stats.Errors++
		return nil, err
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, nil
}

// ExecuteSQL runs a raw SQL query. The export directory's Parquet files
// are reachable via read_parquet. Useful for ad-hoc inspection.
func (s *Service) ExecuteSQL(ctx context.Context, query string) ([]map[string]any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		s.stats.Errors++
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.stats.QueriesExecuted++
	s.stats.RowsReturned += int64(len(results))
	return results, rows.Err()
}

// Pattern returns the read_parquet glob for the export directory, for use
// in ad-hoc SQL.
func (s *Service) Pattern() string { return s.pattern() }

// Stats returns query statistics.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}
