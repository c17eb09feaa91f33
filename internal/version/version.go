package version

import "runtime/debug"

// Version is set at build time with -ldflags; binaries installed with
// go install fall back to the embedded module version.
var Version = "dev"

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}
