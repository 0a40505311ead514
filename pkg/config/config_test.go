package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigWritesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	conf, err := LoadConfig()
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, configDir, configFile))
	require.NoError(t, err, "default config file not created")

	assert.True(t, conf.VariableCaching())
	assert.True(t, conf.UserCastedVariableCaching())
	assert.Equal(t, DefaultTypeMatchCacheSize, conf.TypeMatchCacheEntries())
	assert.Equal(t, DefaultMaxStringLen, conf.StringLen())
	assert.Empty(t, conf.SymbolSearchPaths)
}

func TestSaveAndLoadConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	require.NoError(t, createConfigPath())

	off := false
	n := 16
	in := &Config{
		Aliases:               map[string][]string{"print": {"pp"}},
		MaxStringLen:          &n,
		EnableVariableCaching: &off,
		TypeMatchCacheSize:    8,
	}
	require.NoError(t, SaveConfig(in))

	out, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, out.VariableCaching())
	assert.True(t, out.UserCastedVariableCaching())
	assert.Equal(t, 8, out.TypeMatchCacheEntries())
	assert.Equal(t, 16, out.StringLen())
	assert.Equal(t, []string{"pp"}, out.Aliases["print"])
}

func TestNilConfigDefaults(t *testing.T) {
	var c *Config
	assert.True(t, c.VariableCaching())
	assert.True(t, c.UserCastedVariableCaching())
	assert.Equal(t, DefaultTypeMatchCacheSize, c.TypeMatchCacheEntries())
}
