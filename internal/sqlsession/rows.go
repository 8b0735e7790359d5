package sqlsession

import (
	"database/sql"
)

// Rows is an ordered result set: Values[i] aligns with Columns by index,
// preserving column order the way spec §4.4 requires ("ordered records").
type Rows struct {
	Columns []string
	Values  [][]any
}

// Len returns the number of rows.
func (r *Rows) Len() int { return len(r.Values) }

// AsObjects maps each row onto a map[string]any keyed by column name, used
// by the SQL runner (C5) when return_type is object or an array of objects.
func (r *Rows) AsObjects() []map[string]any {
	out := make([]map[string]any, len(r.Values))
	for i, row := range r.Values {
		obj := make(map[string]any, len(r.Columns))
		for j, col := range r.Columns {
			obj[col] = row[j]
		}
		out[i] = obj
	}
	return out
}

func collect(rows *sql.Rows) (*Rows, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &Rows{Columns: cols}
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		values := make([]any, len(cols))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		result.Values = append(result.Values, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
