// Package config declares the process-level configuration surface,
// parsed from flags and environment variables via go-flags.
package config

// Config holds the settings a harbor process needs to stand up a
// handle.Registry, a dispatch.Harbor, and the ScriptServiceHost
// instances it spawns.
type Config struct {
	Harbor uint8 `short:"b" long:"harbor" env:"HARBOR_ID" description:"harbor (node) id, 0-255" default:"0"`

	LuaPath    string `long:"lua-path" env:"LUA_PATH" description:"package.path given to every spawned interpreter" default:"./lualib/?.lua;./lualib/?/init.lua"`
	LuaCPath   string `long:"lua-cpath" env:"LUA_CPATH" description:"package.cpath given to every spawned interpreter" default:"./luaclib/?.so"`
	LuaService string `long:"luaservice" env:"LUA_SERVICE" description:"search path for service scripts" default:"./service/?.lua"`
	Preload    string `long:"preload" env:"LUA_PRELOAD" description:"optional script run before the service's own entry point"`
	LuaLoader  string `long:"lualoader" env:"LUA_LOADER" description:"bootstrap loader script every interpreter runs first" default:"./lualib/loader.lua"`

	MemoryWarningBytes uint64 `long:"memory-warning-bytes" description:"report threshold before it starts doubling" default:"33554432"`
	Workers            int    `long:"workers" description:"size of the harbor's dispatch worker pool" default:"4"`
}

// knownKeys enumerates the GETENV keys Get recognizes, mirroring the
// set of C.lua_setglobal calls the original snlua_init performs before
// handing control to the bootstrap loader.
var knownKeys = map[string]func(*Config) (string, bool){
	"lua_path":   func(c *Config) (string, bool) { return c.LuaPath, true },
	"lua_cpath":  func(c *Config) (string, bool) { return c.LuaCPath, true },
	"luaservice": func(c *Config) (string, bool) { return c.LuaService, true },
	"lualoader":  func(c *Config) (string, bool) { return c.LuaLoader, true },
	"preload": func(c *Config) (string, bool) {
		if c.Preload == "" {
			return "", false
		}
		return c.Preload, true
	},
}

// Get resolves a GETENV key against the config, reporting false for an
// unset or unrecognized key.
func (c *Config) Get(key string) (string, bool) {
	if fn, ok := knownKeys[key]; ok {
		return fn(c)
	}
	return "", false
}
