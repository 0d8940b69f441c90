package handlers

import (
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"
)

var (
	versionMu    sync.RWMutex
	appVersion   = "dev"
	appCommit    = "unknown"
	appBuildDate = "unknown"
	appIdentity  *appidentity.Identity
	appFeatures  map[string]bool
	appStore     string
)

// SetVersionInfo is called from main with the linker-injected build info.
func SetVersionInfo(version, commit, buildDate string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	appVersion, appCommit, appBuildDate = version, commit, buildDate
}

// SetAppIdentity sets the app identity for the handler
func SetAppIdentity(identity *appidentity.Identity) {
	versionMu.Lock()
	defer versionMu.Unlock()
	appIdentity = identity
}

// SetRuntimeFeatures records which optional integrations are active and the
// store driver in use, so operators can tell deployments apart.
func SetRuntimeFeatures(storeDriver string, features map[string]bool) {
	versionMu.Lock()
	defer versionMu.Unlock()
	appStore = storeDriver
	appFeatures = make(map[string]bool, len(features))
	for name, enabled := range features {
		appFeatures[name] = enabled
	}
}

// VersionResponse represents the version information response
type VersionResponse struct {
	App          AppInfo     `json:"app"`
	Dependencies DepInfo     `json:"dependencies"`
	Runtime      RuntimeInfo `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Commit      string          `json:"git_commit"`
	BuildDate   string          `json:"build_date"`
	GoVersion   string          `json:"go_version,omitempty"`
	StoreDriver string          `json:"store_driver,omitempty"`
	Features    map[string]bool `json:"features,omitempty"`
}

// DepInfo contains dependency version information
type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

// RuntimeInfo contains runtime environment information
type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler handles version information requests
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentVersion())
}

func currentVersion() VersionResponse {
	versionMu.RLock()
	defer versionMu.RUnlock()

	name := "unknown"
	switch {
	case appIdentity != nil && appIdentity.BinaryName != "":
		name = appIdentity.BinaryName
	case len(os.Args) > 0 && os.Args[0] != "":
		name = filepath.Base(os.Args[0])
	}

	deps := crucible.GetVersion()
	return VersionResponse{
		App: AppInfo{
			Name:        name,
			Version:     appVersion,
			Commit:      appCommit,
			BuildDate:   appBuildDate,
			GoVersion:   runtime.Version(),
			StoreDriver: appStore,
			Features:    appFeatures,
		},
		Dependencies: DepInfo{
			Gofulmen: deps.Gofulmen,
			Crucible: deps.Crucible,
		},
		Runtime: RuntimeInfo{
			Platform:      runtime.GOOS + "/" + runtime.GOARCH,
			NumCPU:        runtime.NumCPU(),
			NumGoroutines: runtime.NumGoroutine(),
		},
	}
}
