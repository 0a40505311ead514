package main

import (
	"os"

	"github.com/go-delve/nativeview/cmd/nview/cmds"
	"github.com/go-delve/nativeview/pkg/version"
)

// Build is the git sha of this binaries build.
var Build string

func main() {
	if Build != "" {
		version.NviewVersion.Build = Build
	}
	if err := cmds.New(false).Execute(); err != nil {
		os.Exit(1)
	}
}
