package cmd

import (
	"fmt"

	"github.com/AlecAivazis/survey/v2"
)

const (
	suiteSmall     = "small presubmit tests (default)"
	suitePresubmit = "all presubmit tests"
	suiteAll       = "all integration tests"
)

// selectSuite prompts for the test suite to run and sets the selection
// flags accordingly.
func selectSuite(runPresubmit, runAll *bool) error {
	var selected string

	prompt := &survey.Select{
		Message: "Which test suite should run?",
		Options: []string{suiteSmall, suitePresubmit, suiteAll},
	}

	if err := survey.AskOne(prompt, &selected); err != nil {
		return fmt.Errorf("selecting test suite: %w", err)
	}

	*runPresubmit = selected == suitePresubmit
	*runAll = selected == suiteAll

	return nil
}
