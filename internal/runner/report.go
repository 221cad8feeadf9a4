package runner

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// printResults writes one status line per test in input order, followed
// by a detailed block for each failure, and returns the exit code.
func printResults(w io.Writer, results []Result) int {
	var (
		green = color.New(color.FgGreen)
		red   = color.New(color.FgRed)
	)

	var failures []Result

	for _, result := range results {
		if result.Err == nil {
			fmt.Fprintf(w, "%s ... %s\n", result.Name, green.Sprint("ok"))
			continue
		}

		fmt.Fprintf(w, "%s ... %s\n", result.Name, red.Sprint("FAIL"))
		failures = append(failures, result)
	}

	for _, failure := range failures {
		fmt.Fprint(w, failureMessage(failure.Name, extractTraceback(failure.Err.Error())))
	}

	if len(failures) > 0 {
		return 1
	}

	return 0
}

// extractTraceback isolates the backend traceback embedded in an error
// message. Messages without one are shown whole for context.
func extractTraceback(message string) string {
	index := strings.Index(message, "Traceback")
	if index == -1 {
		return message
	}

	return message[index:]
}

func failureMessage(testName, message string) string {
	lines := []string{
		strings.Repeat("=", 70),
		fmt.Sprintf("FAIL: %s", testName),
		strings.Repeat("-", 70),
		message,
	}

	return "\n" + strings.Join(lines, "\n") + "\n"
}
