package blockchain

// Listing is one entry of the gateway's app store index.
type Listing struct {
	Namespace   string `json:"namespace"`
	Name        string `json:"name"`
	Description string `json:"description"`
	IconURL     string `json:"iconUrl"`
	BannerURL   string `json:"bannerUrl"`
	Category    string `json:"category"`
	Publisher   string `json:"publisher"`
}

// AppDetails is the per-namespace detail record.
type AppDetails struct {
	Namespace     string   `json:"namespace,omitempty"`
	LatestVersion *Version `json:"latestVersion,omitempty"`
}

// Version describes one published release of an app.
type Version struct {
	Status        string     `json:"status"`
	VersionString string     `json:"versionString"`
	WasmID        string     `json:"wasmId"`
	SecurityTier  string     `json:"securityTier"`
	ServerURL     string     `json:"serverUrl"`
	BuildInfo     *BuildInfo `json:"buildInfo,omitempty"`
}

// BuildInfo points at the source a release was built from.
type BuildInfo struct {
	RepoURL string `json:"repoUrl"`
}

// Entry is a listing joined with its detail record.
type Entry struct {
	Listing
	Details *AppDetails
}

// StatusVerified is the only release status that maps to an active server.
const StatusVerified = "Verified"
