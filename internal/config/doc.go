// Package config loads, normalizes, and validates clipforge configuration.
//
// Configuration lives in TOML (default ~/.config/clipforge/config.toml). Load
// applies defaults, expands ~ in paths, fills secrets and the queue URL from
// the environment when the file leaves them empty, and validates timing and
// grouping limits before any worker starts.
package config
