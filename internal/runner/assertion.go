package runner

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/varianttools/vt-itest/internal/backend"
)

// queryAssertion runs one rendered validation query and compares the
// single returned row against the expected column values.
type queryAssertion struct {
	client   backend.Client
	query    string
	expected map[string]any
	timeout  time.Duration
}

// run executes the query with a bounded timeout and checks the result.
// The query must return exactly one row, the row must have exactly the
// expected columns, and every expected value must match. All mismatched
// columns are reported in one diagnostic.
func (a *queryAssertion) run(ctx context.Context) error {
	queryCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	rows, err := a.client.Query(queryCtx, a.query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return failuref("query did not complete within %s: %s", a.timeout, a.query)
		}

		return fmt.Errorf("executing query: %w", err)
	}

	if len(rows) != 1 {
		return failuref("expected one row in query result, got %d", len(rows))
	}

	row := rows[0]
	if len(a.expected) != len(row) {
		return failuref("expected %d columns in the query result, got %d", len(a.expected), len(row))
	}

	var mismatches []string

	for _, key := range sortedKeys(a.expected) {
		actual, ok := row[key]
		if !ok {
			mismatches = append(mismatches, fmt.Sprintf("column %s missing from query result", key))
			continue
		}

		if !valuesEqual(a.expected[key], actual) {
			mismatches = append(mismatches, fmt.Sprintf(
				"column %s mismatch: expected %v, got %v", key, a.expected[key], actual))
		}
	}

	if len(mismatches) > 0 {
		return &Failure{msg: strings.Join(mismatches, "; ")}
	}

	return nil
}

// valuesEqual compares an expected scalar from a test definition with the
// value the backend returned. Backends and config decoders disagree on
// numeric types (int64 vs float64 vs decoded JSON numbers), so numeric
// values compare by magnitude and everything else falls back to string
// form, then deep equality.
func valuesEqual(expected, actual any) bool {
	expectedFloat, expectedNumeric := toFloat64(expected)
	actualFloat, actualNumeric := toFloat64(actual)

	if expectedNumeric && actualNumeric {
		return expectedFloat == actualFloat
	}

	if fmt.Sprintf("%v", expected) == fmt.Sprintf("%v", actual) {
		return true
	}

	return reflect.DeepEqual(expected, actual)
}

func toFloat64(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
