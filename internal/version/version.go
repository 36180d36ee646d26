// Package version provides the build version, set at link time with
//
//	-ldflags "-X github.com/effective-security/pivcsr/internal/version.version=v1.2.3
//	          -X github.com/effective-security/pivcsr/internal/version.commit=abcdef"
package version

import (
	"fmt"
	"runtime/debug"
)

var (
	version = ""
	commit  = ""
)

// Info describes the build
type Info struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit,omitempty" yaml:"commit,omitempty"`
}

// String returns the version, followed by commit if known
func (v Info) String() string {
	if v.Commit == "" {
		return v.Version
	}
	return fmt.Sprintf("%s (%s)", v.Version, v.Commit)
}

// Current returns the version of the build
func Current() Info {
	v := Info{Version: version, Commit: commit}
	if v.Version == "" {
		v.Version = "devel"
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			v.Version = bi.Main.Version
		}
	}
	return v
}
