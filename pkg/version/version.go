// Package version exposes the application version derived from build metadata.
//
// Priority: -ldflags override > VCS info from debug.BuildInfo > "dev" fallback.
//
//	version.GitCommit  // "a3f8c2d1" or "dev"
//	version.Full()     // "equityresearch/a3f8c2d1"
package version

import "runtime/debug"

// AppName is used in version strings, the MCP client handshake and health output.
const AppName = "equityresearch"

// gitCommitOverride is set via -ldflags for container builds where .git is unavailable.
var gitCommitOverride string

// GitCommit is the short git commit hash (8 chars), or "dev".
var GitCommit = resolveCommit(gitCommitOverride, readBuildInfo)

func readBuildInfo() (*debug.BuildInfo, bool) {
	return debug.ReadBuildInfo()
}

func resolveCommit(override string, read func() (*debug.BuildInfo, bool)) string {
	if override != "" {
		return shorten(override)
	}
	info, ok := read()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			return shorten(s.Value)
		}
	}
	return "dev"
}

func shorten(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "equityresearch/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
