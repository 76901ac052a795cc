// Copyright 2026 The Substrate Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of the substrate binary.
package version

import "runtime/debug"

// Version is overridden at release time via -ldflags. Development
// builds fall back to module build info.
var Version = ""

// String returns the version to display: the release version when set,
// the VCS revision from build info otherwise, "devel" as a last resort.
func String() string {
	if Version != "" {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && len(s.Value) >= 12 {
				return s.Value[:12]
			}
		}
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return "devel"
}
