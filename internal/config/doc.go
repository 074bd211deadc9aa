// Package config handles configuration loading for mcp-console.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file with environment variable
// expansion, then overridden by MCP_CONSOLE_* variables. A missing file is
// not an error unless it was named explicitly; defaults are used instead.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from MCP_CONSOLE_CONFIG environment variable
//  2. ./mcp-console.yaml (current directory)
//  3. ~/.config/mcp-console/config.yaml
//
// Files ending in .toml are decoded as TOML.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	storage:
//	  persistent:
//	    redis_addr: "${REDIS_ADDR}"
//
// # Environment Overrides
//
//	MCP_CONSOLE_URL             server.base_url
//	MCP_CONSOLE_TIMEOUT         server.timeout
//	MCP_CONSOLE_LOG_LEVEL       logging.level
//	MCP_CONSOLE_LOG_FORMAT      logging.format
//	MCP_CONSOLE_STORAGE_DRIVER  storage.persistent.driver
//	MCP_CONSOLE_STORAGE_PATH    storage.persistent.path
//	MCP_CONSOLE_REDIS_ADDR      storage.persistent.redis_addr
//
// # Configuration Sections
//
//	server:
//	  base_url: "http://localhost:5000"
//	  timeout: "30s"
//
//	storage:
//	  persistent:                      # survives restarts ("remember me")
//	    driver: "sqlite"               # sqlite, redis, memory
//	    path: "~/.config/mcp-console/session.db"
//	  transient:                       # cleared with the OS session
//	    driver: "sqlite"
//	    path: "/run/user/1000/mcp-console/session.db"
//
//	logging:
//	  level: "info"   # debug, info, warn, error
//	  format: "text"  # text, json
//
// # Validation
//
// Load() validates:
//
//   - server.base_url is an http or https URL
//   - each storage driver is known and has its required fields
//   - logging level and format are recognized
package config
