package pipeline

import (
	"context"

	"github.com/vortexdata/ferry/pkg/pool"
)

// FieldMapperTransform renames fields according to mapping. Fields not in
// the mapping pass through unchanged.
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if record.Data == nil || len(mapping) == 0 {
			return record, nil
		}
		for from, to := range mapping {
			if v, ok := record.Data[from]; ok {
				delete(record.Data, from)
				record.Data[to] = v
			}
		}
		return record, nil
	}
}

// FilterTransform drops records for which the predicate returns false.
func FilterTransform(predicate func(*pool.Record) bool) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if predicate(record) {
			return record, nil
		}
		return nil, nil
	}
}
