// Package version reports the loom release version.
package version

import (
	_ "embed"
	"strings"
)

//go:embed VERSION
var versionContent string

// override replaces the embedded version when set at link time:
//
//	go build -ldflags "-X github.com/ShayCichocki/loom/internal/version.override=1.2.3"
var override string

// Get returns the current version, with whitespace trimmed
func Get() string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	return strings.TrimSpace(versionContent)
}
