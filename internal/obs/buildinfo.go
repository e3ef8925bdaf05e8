package obs

import (
	"runtime/debug"
	"sync"
)

var (
	buildOnce sync.Once
	revision  string
)

// Revision returns the VCS revision compiled into the binary, if available.
func Revision() string {
	buildOnce.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				revision = setting.Value
				return
			}
		}
	})
	return revision
}
