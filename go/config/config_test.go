package config

import (
	"testing"

	"github.com/jessevdk/go-flags"
	"github.com/stretchr/testify/require"
)

func TestDefaultsParseFromEmptyArgs(t *testing.T) {
	var cfg Config
	var parser = flags.NewParser(&cfg, flags.Default)
	var _, err = parser.ParseArgs([]string{})
	require.NoError(t, err)

	require.Equal(t, uint64(33554432), cfg.MemoryWarningBytes)
	require.Equal(t, 4, cfg.Workers)
	require.Equal(t, "./lualib/loader.lua", cfg.LuaLoader)
}

func TestGetResolvesKnownKeysOnly(t *testing.T) {
	var cfg = Config{LuaPath: "a;b", Preload: ""}

	var v, ok = cfg.Get("lua_path")
	require.True(t, ok)
	require.Equal(t, "a;b", v)

	_, ok = cfg.Get("preload")
	require.False(t, ok, "empty preload must report unset")

	_, ok = cfg.Get("unknown")
	require.False(t, ok)
}

func TestHarborFlagOverridesDefault(t *testing.T) {
	var cfg Config
	var parser = flags.NewParser(&cfg, flags.Default)
	var _, err = parser.ParseArgs([]string{"--harbor", "7"})
	require.NoError(t, err)
	require.EqualValues(t, 7, cfg.Harbor)
}
