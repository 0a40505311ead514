//go:build !windows

package terminal

import (
	"io"
	"os"
)

// getColorableWriter returns stdout, terminals other than the windows
// console understand ANSI escapes.
func getColorableWriter() io.Writer {
	return os.Stdout
}
