// Package version derives the build identity reported by /health and the
// startup logs. An -ldflags override wins, then the VCS revision stamped by
// the Go toolchain, then "dev" for test binaries and non-git builds.
package version

import "runtime/debug"

// AppName prefixes version strings and log lines.
const AppName = "vodrag"

// gitCommitOverride is stamped with -ldflags in container builds, where the
// .git directory is not part of the build context.
var gitCommitOverride string

// GitCommit is the short revision this binary was built from, or "dev".
var GitCommit = resolveCommit()

func resolveCommit() string {
	rev := gitCommitOverride
	if rev == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" {
					rev = s.Value
					break
				}
			}
		}
	}
	if rev == "" {
		return "dev"
	}
	if len(rev) > 8 {
		rev = rev[:8]
	}
	return rev
}

// Full renders "vodrag/<commit>" for user agents and log banners.
func Full() string {
	return AppName + "/" + GitCommit
}
