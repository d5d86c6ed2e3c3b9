// Package config loads the feedmap TOML configuration.
//
// Loading happens in four steps: start from Default, decode the file over it,
// apply environment overrides, then normalize (trim, lower-case enums, expand
// "~" paths) and Validate.
package config
