package handlers

import (
	"net/http"
	"runtime/debug"
	"sync"

	"curator/utils"
)

// Version is set at build time with -ldflags "-X curator/handlers.Version=...".
var Version string

var versionOnce sync.Once

type VersionResponse struct {
	Version   string `json:"version"`
	GoVersion string `json:"goVersion,omitempty"`
}

// BackendVersion returns the linked version, falling back to the module build info.
func BackendVersion() string {
	versionOnce.Do(func() {
		if Version != "" {
			return
		}
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
			Version = info.Main.Version
			return
		}
		Version = "dev"
	})
	return Version
}

func GetVersion(w http.ResponseWriter, r *http.Request) {
	resp := VersionResponse{Version: BackendVersion()}
	if info, ok := debug.ReadBuildInfo(); ok {
		resp.GoVersion = info.GoVersion
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}
