package table

import "strings"

// StateSuffix marks a shadow column holding the digital state of the
// numeric column named by the prefix.
const StateSuffix = "__state"

// MergeDigitalStates folds every `<base>__state` column into `<base>`.
//
// Rows where `<base>` is missing (nil or NaN) take the state value; rows
// with a numeric `<base>` keep it. All state columns are dropped afterwards.
// A state column without a base column becomes the base column.
// Running it on a table with no state columns is a no-op.
func MergeDigitalStates(t *Table) *Table {
	if t == nil {
		return nil
	}

	var stateCols []string
	for _, c := range t.Columns {
		if strings.HasSuffix(c, StateSuffix) && len(c) > len(StateSuffix) {
			stateCols = append(stateCols, c)
		}
	}
	if len(stateCols) == 0 {
		return t
	}

	for _, sc := range stateCols {
		base := strings.TrimSuffix(sc, StateSuffix)
		if !t.HasColumn(base) {
			// Insert the base column where its shadow was.
			for i, c := range t.Columns {
				if c == sc {
					t.Columns[i] = base
					break
				}
			}
			for _, row := range t.Rows {
				if v, ok := row[sc]; ok {
					row[base] = v
				}
				delete(row, sc)
			}
			continue
		}
		for _, row := range t.Rows {
			state, ok := row[sc]
			if ok && Missing(row[base]) && !Missing(state) {
				row[base] = state
			}
		}
	}

	t.DropColumns(stateCols...)
	return t
}
