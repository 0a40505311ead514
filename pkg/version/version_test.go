package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fakeBuildInfo() (*debug.BuildInfo, bool) {
	return &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/go-delve/nativeview", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "go.starlark.net", Version: "v0.0.0", Sum: "h1:x"},
			{Path: "github.com/sirupsen/logrus", Version: "v1.9.3", Replace: &debug.Module{Path: "../logrus"}},
		},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "abc123"}},
	}, true
}

func noBuildInfo() (*debug.BuildInfo, bool) { return nil, false }

func TestRevision(t *testing.T) {
	assert.Equal(t, "abc123", revision("$Id$", fakeBuildInfo))
	assert.Equal(t, "release", revision("release", fakeBuildInfo))
	assert.Equal(t, "$Id$", revision("$Id$", noBuildInfo))
}

func TestModuleBuildInfo(t *testing.T) {
	assert.Equal(t, "not built in module mode", moduleBuildInfo(noBuildInfo))
	assert.Equal(t,
		" mod\tgithub.com/go-delve/nativeview\t(devel)\t\n"+
			" dep\tgo.starlark.net\tv0.0.0\th1:x\n"+
			" dep\tgithub.com/sirupsen/logrus\tv1.9.3\t\t=> ../logrus\t\t\n",
		moduleBuildInfo(fakeBuildInfo))
}

func TestString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "deadbeef"}
	assert.Equal(t, "Version: 1.2.3-rc1\nBuild: deadbeef", v.String())
}
