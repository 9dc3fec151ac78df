package quality

import (
	"context"
	"fmt"

	"github.com/pgEdge/retail-dw/internal/db"
)

// SampleRows reads up to limit rows of a monitored table as generic column
// maps for rule evaluation. Only tables with registered rules can be
// sampled. A batch ID narrows fact_sales to one load.
func SampleRows(ctx context.Context, q db.Querier, table, batchID string, limit int) ([]Row, error) {
	if _, ok := DefaultRegistry()[table]; !ok {
		return nil, fmt.Errorf("no quality rules defined for table %s", table)
	}
	if limit < 1 {
		limit = 1000
	}

	sql := "SELECT * FROM " + table
	var args []any
	if batchID != "" && table == "fact_sales" {
		sql += " WHERE batch_id = $1"
		args = append(args, batchID)
	}
	sql += fmt.Sprintf(" LIMIT %d", limit)

	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to sample %s: %w", table, err)
	}
	defer rows.Close()

	var sample []Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		fields := rows.FieldDescriptions()
		row := make(Row, len(fields))
		for i, fd := range fields {
			row[fd.Name] = values[i]
		}
		sample = append(sample, row)
	}
	return sample, rows.Err()
}
