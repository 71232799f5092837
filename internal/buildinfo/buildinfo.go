// Package buildinfo exposes the version stamped in at link time, e.g.
//
//	go build -ldflags "-X flagroutes/internal/buildinfo.Version=v1.2.0"
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	BuiltAt = ""
)

// Info returns the build metadata. Commit falls back to the VCS revision
// recorded by the toolchain when it was not stamped.
func Info() map[string]string {
	return map[string]string{
		"version":   Version,
		"commit":    commit(),
		"builtAt":   BuiltAt,
		"goVersion": runtime.Version(),
	}
}

// String renders the metadata for the version command.
func String() string {
	c := commit()
	if c == "" {
		c = "unknown"
	}
	return fmt.Sprintf("flagroutes %s (commit %s, built %s, %s)", Version, c, orUnknown(BuiltAt), runtime.Version())
}

func commit() string {
	if Commit != "" {
		return Commit
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, s := range bi.Settings {
		if s.Key == "vcs.revision" {
			return s.Value
		}
	}
	return ""
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
