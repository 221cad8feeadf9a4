package runner

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestPrintResults(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	t.Run("all passed", func(t *testing.T) {
		var buf bytes.Buffer

		exitCode := printResults(&buf, []Result{
			{Name: "alpha"},
			{Name: "beta"},
		})

		assert.Equal(t, 0, exitCode)
		assert.Equal(t, "alpha ... ok\nbeta ... ok\n", buf.String())
	})

	t.Run("failure block after status lines", func(t *testing.T) {
		var buf bytes.Buffer

		exitCode := printResults(&buf, []Result{
			{Name: "alpha"},
			{Name: "beta", Err: errors.New("column num_rows mismatch: expected 5, got 4")},
		})

		assert.Equal(t, 1, exitCode)

		output := buf.String()
		assert.Contains(t, output, "alpha ... ok\nbeta ... FAIL\n")
		assert.Contains(t, output, strings.Repeat("=", 70)+"\nFAIL: beta\n"+strings.Repeat("-", 70))
		assert.Contains(t, output, "column num_rows mismatch: expected 5, got 4")
	})

	t.Run("embedded traceback is isolated", func(t *testing.T) {
		var buf bytes.Buffer

		err := errors.New("worker log noise\nTraceback (most recent call last):\n  boom")
		printResults(&buf, []Result{{Name: "alpha", Err: err}})

		output := buf.String()
		assert.Contains(t, output, "Traceback (most recent call last):")
		assert.NotContains(t, output, "worker log noise")
	})
}

func TestExtractTraceback(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "no traceback here", extractTraceback("no traceback here"))
	assert.Equal(t, "Traceback: x", extractTraceback("prefix Traceback: x"))
}
