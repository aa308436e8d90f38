// The main package for the archiveocr executable.
package main

import (
	"github.com/JakeFAU/archive-ocr-pipeline/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
