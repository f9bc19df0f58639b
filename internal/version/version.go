// Package version reports build information.
//
// The values are set at build time, e.g.
//
//	go build -ldflags "-X github.com/information-sharing-networks/nfce-downloader/internal/version.version=v1.2.0 \
//	  -X github.com/information-sharing-networks/nfce-downloader/internal/version.buildDate=$(date -u +%FT%TZ) \
//	  -X github.com/information-sharing-networks/nfce-downloader/internal/version.gitCommit=$(git rev-parse --short HEAD)"
//
// Without ldflags the module version and vcs settings embedded by the go tool are used.
package version

import (
	"runtime/debug"
)

var (
	version   = ""
	buildDate = ""
	gitCommit = ""
)

type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"buildDate"`
	GitCommit string `json:"gitCommit"`
}

func Get() Info {
	info := Info{
		Version:   version,
		BuildDate: buildDate,
		GitCommit: gitCommit,
	}

	if bi, ok := debug.ReadBuildInfo(); ok {
		if info.Version == "" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			info.Version = bi.Main.Version
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.GitCommit == "" {
					info.GitCommit = s.Value
					if len(info.GitCommit) > 7 {
						info.GitCommit = info.GitCommit[:7]
					}
				}
			case "vcs.time":
				if info.BuildDate == "" {
					info.BuildDate = s.Value
				}
			}
		}
	}

	if info.Version == "" {
		info.Version = "dev"
	}
	if info.BuildDate == "" {
		info.BuildDate = "unknown"
	}
	if info.GitCommit == "" {
		info.GitCommit = "unknown"
	}
	return info
}
