// The main package for the wikicrawler executable.
package main

import (
	"github.com/JakeFAU/wikicrawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
