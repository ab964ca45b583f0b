package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/storelens/storelens/internal/core"
)

var (
	buildMu     sync.RWMutex
	buildInfo   = AppInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
	appIdentity *appidentity.Identity
	pipeline    PipelineInfo
)

// SetVersionInfo records the build stamp from main.
func SetVersionInfo(version, commit, buildDate string) {
	buildMu.Lock()
	defer buildMu.Unlock()
	buildInfo.Version = version
	buildInfo.Commit = commit
	buildInfo.BuildDate = buildDate
}

// BuildVersion returns the version recorded by SetVersionInfo.
func BuildVersion() string {
	buildMu.RLock()
	defer buildMu.RUnlock()
	return buildInfo.Version
}

// SetAppIdentity names the service in version responses.
func SetAppIdentity(identity *appidentity.Identity) {
	buildMu.Lock()
	defer buildMu.Unlock()
	appIdentity = identity
}

// SetPipelineInfo describes how this instance grades audits.
func SetPipelineInfo(info PipelineInfo) {
	buildMu.Lock()
	defer buildMu.Unlock()
	pipeline = info
}

type VersionResponse struct {
	App          AppInfo      `json:"app"`
	Pipeline     PipelineInfo `json:"pipeline"`
	Dependencies DepInfo      `json:"dependencies"`
	Runtime      RuntimeInfo  `json:"runtime"`
}

type AppInfo struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// PipelineInfo lets clients tell which grader and scoring setup produced a
// result.
type PipelineInfo struct {
	Grader        string          `json:"grader"`
	PromptSlug    string          `json:"prompt_slug,omitempty"`
	HybridDamping float64         `json:"hybrid_damping"`
	Categories    []core.Category `json:"categories"`
}

type DepInfo struct {
	Gofulmen string `json:"gofulmen"`
	Crucible string `json:"crucible"`
}

type RuntimeInfo struct {
	Platform      string `json:"platform"`
	NumCPU        int    `json:"num_cpu"`
	NumGoroutines int    `json:"num_goroutines"`
}

// VersionHandler serves GET /version.
func VersionHandler(w http.ResponseWriter, r *http.Request) {
	versions := crucible.GetVersion()

	buildMu.RLock()
	app := buildInfo
	identity := appIdentity
	info := pipeline
	buildMu.RUnlock()

	app.Name = serviceName(identity)
	app.GoVersion = runtime.Version()
	if len(info.Categories) == 0 {
		info.Categories = core.Categories()
	}

	response := VersionResponse{
		App:      app,
		Pipeline: info,
		Dependencies: DepInfo{
			Gofulmen: versions.Gofulmen,
			Crucible: versions.Crucible,
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

func serviceName(identity *appidentity.Identity) string {
	if identity != nil && identity.BinaryName != "" {
		return identity.BinaryName
	}
	if len(os.Args) > 0 && os.Args[0] != "" {
		return filepath.Base(os.Args[0])
	}
	return "storelens"
}
