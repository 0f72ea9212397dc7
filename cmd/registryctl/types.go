package main

import "encoding/json"

// Wire types of the registry server API, as the CLI consumes them.

type syncResult struct {
	Success          bool   `json:"success"`
	Message          string `json:"message"`
	ServersProcessed int    `json:"serversProcessed"`
}

type manualSyncResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	JobID   string `json:"jobId"`
	Created bool   `json:"created"`
}

type lastSynced struct {
	Name      string `json:"name"`
	UpdatedAt string `json:"updatedAt"`
}

type sourceStatus struct {
	Source           string `json:"source"`
	State            string `json:"state"`
	LastRunAt        string `json:"lastRunAt"`
	LastState        string `json:"lastState,omitempty"`
	Summary          string `json:"summary,omitempty"`
	LastError        string `json:"lastError,omitempty"`
	ServersProcessed int    `json:"serversProcessed"`
	ServersRetired   int    `json:"serversRetired"`
	DurationMs       int64  `json:"durationMs"`
}

type syncStatus struct {
	Status            string            `json:"status"`
	TotalServers      int64             `json:"totalServers"`
	OfficialServers   int64             `json:"officialServers"`
	BlockchainServers int64             `json:"blockchainServers"`
	LastSyncedServer  *lastSynced       `json:"lastSyncedServer"`
	SystemTime        string            `json:"systemTime"`
	CronSchedules     map[string]string `json:"cronSchedules"`
	Sources           []sourceStatus    `json:"sources"`
}

type mcpServer struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Status        string          `json:"status"`
	LatestVersion string          `json:"latest_version"`
	WebsiteURL    *string         `json:"website_url"`
	Repository    json.RawMessage `json:"repository"`
	Packages      json.RawMessage `json:"packages"`
	Remotes       json.RawMessage `json:"remotes"`
	Meta          json.RawMessage `json:"meta"`
	PublishedAt   string          `json:"published_at"`
	UpdatedAt     string          `json:"updated_at"`
}

type serverList struct {
	Servers  []mcpServer `json:"servers"`
	Metadata struct {
		Count      int     `json:"count"`
		NextCursor *string `json:"next_cursor"`
	} `json:"metadata"`
}

type serverListParams struct {
	Limit        int    `url:"limit,omitempty"`
	Cursor       string `url:"cursor,omitempty"`
	Search       string `url:"search,omitempty"`
	UpdatedSince string `url:"updated_since,omitempty"`
}

type job struct {
	ID               string `json:"id"`
	Source           string `json:"source"`
	Trigger          string `json:"trigger"`
	RequestedBy      string `json:"requestedBy"`
	RequestedAt      string `json:"requestedAt"`
	State            string `json:"state"`
	Message          string `json:"message,omitempty"`
	StartedAt        string `json:"startedAt,omitempty"`
	FinishedAt       string `json:"finishedAt,omitempty"`
	AttemptCount     int    `json:"attemptCount"`
	LastError        string `json:"lastError,omitempty"`
	ServersProcessed int    `json:"serversProcessed"`
	DurationMs       int64  `json:"durationMs,omitempty"`
}

type jobList struct {
	Jobs          []job  `json:"jobs"`
	NextPageToken string `json:"nextPageToken"`
	TotalSize     int    `json:"totalSize"`
}

type jobListParams struct {
	Source    string `url:"source,omitempty"`
	State     string `url:"state,omitempty"`
	Trigger   string `url:"trigger,omitempty"`
	PageSize  int    `url:"pageSize,omitempty"`
	PageToken string `url:"pageToken,omitempty"`
}
