// The main package for the areacrawl executable.
package main

import (
	"github.com/souqdata/areacrawl/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
