// Package queryfmt renders validation query templates.
// A template is a sequence of string fragments that may name a query macro
// or contain the {TABLE_NAME} placeholder.
package queryfmt

import (
	"fmt"
	"strings"
)

// tableNameVar is the only substitution variable a template may reference.
const tableNameVar = "TABLE_NAME"

// macros maps macro names to their canonical query text. Lookup is an
// exact, case-sensitive match against the concatenated template.
var macros = map[string]string{
	"NUM_ROWS_QUERY":  "SELECT COUNT(0) AS num_rows FROM {TABLE_NAME}",
	"SUM_START_QUERY": "SELECT SUM(start_position) AS sum_start FROM {TABLE_NAME}",
	"SUM_END_QUERY":   "SELECT SUM(end_position) AS sum_end FROM {TABLE_NAME}",
}

// Formatter renders query templates against a fixed output table.
type Formatter struct {
	tableID string
}

// NewFormatter creates a formatter bound to a fully-qualified table
// identifier (dataset.table).
func NewFormatter(tableID string) *Formatter {
	return &Formatter{tableID: tableID}
}

// Format joins the template fragments with single spaces, expands a macro
// if the joined string names one, and substitutes {TABLE_NAME} with the
// bound table identifier. Referencing any other variable is an error.
func (f *Formatter) Format(fragments []string) (string, error) {
	query := strings.Join(fragments, " ")

	if canonical, ok := macros[query]; ok {
		query = canonical
	}

	return f.replaceVariables(query)
}

func (f *Formatter) replaceVariables(query string) (string, error) {
	var out strings.Builder

	for {
		open := strings.IndexByte(query, '{')
		if open < 0 {
			out.WriteString(query)
			return out.String(), nil
		}

		closing := strings.IndexByte(query[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated variable reference in query %q", query) //nolint:err113 // Dynamic error with query context
		}

		name := query[open+1 : open+closing]
		if name != tableNameVar {
			return "", fmt.Errorf("unsupported query variable %q (only %s is available)", name, tableNameVar) //nolint:err113 // Dynamic error with variable name
		}

		out.WriteString(query[:open])
		out.WriteString(f.tableID)
		query = query[open+closing+1:]
	}
}
