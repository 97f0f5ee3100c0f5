package version

import "fmt"

// Version, Commit and Date are set at build time with -ldflags "-X".
// Version、Commit 和 Date 在构建时通过 -ldflags "-X" 设置。
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// String returns the one-line version banner.
// String 返回单行版本信息。
func String() string {
	return fmt.Sprintf("dxwatch %s (commit %s, built %s)", Version, Commit, Date)
}
