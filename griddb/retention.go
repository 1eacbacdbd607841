package griddb

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log/level"
)

// EnforceRetention drops monthly partitions whose entire range is older
// than the horizon. Detach first (concurrently, so writers are never
// blocked), then drop: constant-time removal with no row-by-row deletes
// and no WAL inflation. The default partition is never touched.
func (s *Store) EnforceRetention(ctx context.Context, now time.Time, horizon time.Duration) error {
	cutoff := monthStart(now.Add(-horizon))

	for _, table := range readingTables {
		names, err := s.listPartitions(ctx, table)
		if err != nil {
			return err
		}
		for _, name := range expiredPartitions(table, names, cutoff) {
			// DETACH CONCURRENTLY cannot run inside a transaction; each
			// statement goes out on its own.
			if _, err := s.pool.Exec(ctx, fmt.Sprintf(`ALTER TABLE %s DETACH PARTITION %s CONCURRENTLY`, table, name)); err != nil {
				return fmt.Errorf("detaching partition %s: %w", name, err)
			}
			if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, name)); err != nil {
				return fmt.Errorf("dropping partition %s: %w", name, err)
			}
			level.Info(s.logger).Log("msg", "dropped expired partition", "partition", name)
		}
	}
	return nil
}

func (s *Store) listPartitions(ctx context.Context, table string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT c.relname
		 FROM pg_inherits i
		 JOIN pg_class c ON c.oid = i.inhrelid
		 JOIN pg_class p ON p.oid = i.inhparent
		 WHERE p.relname = $1`,
		table,
	)
	if err != nil {
		return nil, fmt.Errorf("listing partitions of %s: %w", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scanning partition name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// expiredPartitions selects partitions whose month ends on or before the
// cutoff. Names that do not follow the <table>_YYYY_MM contract (the
// default partition included) are skipped.
func expiredPartitions(table string, names []string, cutoff time.Time) []string {
	var out []string
	for _, name := range names {
		month, ok := parsePartitionMonth(table, name)
		if !ok {
			continue
		}
		if !month.AddDate(0, 1, 0).After(cutoff) {
			out = append(out, name)
		}
	}
	return out
}
