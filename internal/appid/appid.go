// Package appid holds the fixed application identity used for help text,
// XDG paths, and environment variable prefixes.
package appid

import "strings"

const (
	BinaryName  = "karmalens"
	ConfigName  = "karmalens"
	EnvPrefix   = "KARMALENS"
	Description = "Track Reddit karma for a set of users over time"
)

// Identity mirrors the fields the CLI and config layers read.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Description string
}

// Get returns the application identity.
func Get() Identity {
	return Identity{
		BinaryName:  BinaryName,
		ConfigName:  ConfigName,
		EnvPrefix:   EnvPrefix,
		Description: Description,
	}
}

// EnvKey returns the prefixed environment variable name for suffix.
func EnvKey(suffix string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.TrimPrefix(suffix, "_"))
}
