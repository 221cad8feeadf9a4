// vt-itest is the integration-test orchestrator for the variant
// transforms pipeline.
package main

import (
	"github.com/varianttools/vt-itest/cmd"
)

func main() {
	cmd.Execute()
}
