package terminal

import (
	"io"

	"github.com/mattn/go-colorable"
)

// getColorableWriter returns a writer that translates the ANSI escapes
// used to highlight the output into console calls.
func getColorableWriter() io.Writer {
	return colorable.NewColorableStdout()
}
