package store

import "context"

// StorageStats is an aggregate view over everything the engine holds.
type StorageStats struct {
	Buckets    int64 `json:"buckets"`
	Objects    int64 `json:"objects"`
	TotalBytes int64 `json:"total_bytes"`
}

// Stats reports bucket, object, and byte totals across the whole store.
func (s *Store) Stats(ctx context.Context) (StorageStats, error) {
	var stats StorageStats

	err := s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM buckets),
			(SELECT COUNT(*) FROM objects),
			(SELECT COALESCE(SUM(size), 0) FROM objects)`,
	).Scan(&stats.Buckets, &stats.Objects, &stats.TotalBytes)
	if err != nil {
		return StorageStats{}, backendError("collect stats", err)
	}

	return stats, nil
}
