package handlers

import (
	"encoding/json"
	"net/http"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/karmalens/karmalens/internal/appid"
)

// Build metadata injected from main via SetVersionInfo.
var (
	AppVersion   = "dev"
	AppCommit    = "unknown"
	AppBuildDate = "unknown"
)

var (
	versionMu   sync.RWMutex
	appIdentity = appid.Get()
	components  ComponentInfo
)

// SetVersionInfo records the build metadata reported by /version.
func SetVersionInfo(version, commit, buildDate string) {
	AppVersion = version
	AppCommit = commit
	AppBuildDate = buildDate
}

// SetAppIdentity overrides the reported app identity
func SetAppIdentity(identity appid.Identity) {
	versionMu.Lock()
	defer versionMu.Unlock()
	appIdentity = identity
}

// SetComponents records how the running server collects and stores data.
func SetComponents(info ComponentInfo) {
	versionMu.Lock()
	defer versionMu.Unlock()
	components = info
}

// VersionResponse is the /version body.
type VersionResponse struct {
	App          AppInfo       `json:"app"`
	Components   ComponentInfo `json:"components"`
	Dependencies DepInfo       `json:"dependencies"`
	Runtime      RuntimeInfo   `json:"runtime"`
}

// AppInfo contains application version details
type AppInfo struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`
	Commit      string `json:"git_commit"`
	BuildDate   string `json:"build_date"`
	GoVersion   string `json:"go_version,omitempty"`
}

// ComponentInfo describes the configured Reddit client and store.
type ComponentInfo struct {
	RedditMode         string `json:"reddit_mode,omitempty"`
	StoreDriver        string `json:"store_driver,omitempty"`
	CollectionInterval string `json:"collection_interval,omitempty"`
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

// VersionHandler serves build, component and runtime details.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	versionMu.RLock()
	identity, comps := appIdentity, components
	versionMu.RUnlock()

	deps := crucible.GetVersion()
	response := VersionResponse{
		App: AppInfo{
			Name:        identity.BinaryName,
			Description: identity.Description,
			Version:     AppVersion,
			Commit:      AppCommit,
			BuildDate:   AppBuildDate,
			GoVersion:   runtime.Version(),
		},
		Components: comps,
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

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(response)
}
