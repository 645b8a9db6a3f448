package main

import (
	"time"
)

// Settings is persisted to config/settings.json and editable over the API.
type Settings struct {
	RefreshIntervalSeconds int    `json:"refresh_interval_seconds"`
	AutoDownload           bool   `json:"auto_download"`
	DownloadDir            string `json:"download_dir"`
	Overwrite              bool   `json:"overwrite"`
	SnapshotRetention      int    `json:"snapshot_retention"`
}

// SettingsUpdateRequest is the payload for PATCH /api/settings. Nil fields
// are left unchanged.
type SettingsUpdateRequest struct {
	RefreshIntervalSeconds *int    `json:"refresh_interval_seconds"`
	AutoDownload           *bool   `json:"auto_download"`
	DownloadDir            *string `json:"download_dir"`
	Overwrite              *bool   `json:"overwrite"`
	SnapshotRetention      *int    `json:"snapshot_retention"`
}

// DownloadRequest is the optional payload for POST /api/archives/:filename/download
type DownloadRequest struct {
	Overwrite *bool `json:"overwrite"`
}

// RegisterSystemRequest is the payload for POST /api/systems
type RegisterSystemRequest struct {
	Name            string  `json:"name" binding:"required"`
	HostName        *string `json:"hostname"`
	IPAddress       *string `json:"ip_address"`
	DestinationPort *int    `json:"destination_port"`
	DestinationID   *int    `json:"destination_id"`
	Description     *string `json:"description"`
	AutoDelete      *bool   `json:"auto_delete"`
}

// UpdateSystemRequest is the payload for PUT /api/systems/:id
type UpdateSystemRequest struct {
	Name        *string `json:"name"`
	IPAddress   *string `json:"ip_address"`
	HostName    *string `json:"hostname"`
	Description *string `json:"description"`
	AutoDelete  *bool   `json:"auto_delete"`
}

// CreateGroupRequest is the payload for POST /api/groups
type CreateGroupRequest struct {
	Name           string `json:"name" binding:"required"`
	SystemWildcard string `json:"system_wildcard"`
	SystemIDs      []int  `json:"system_ids"`
}

// UpdateGroupRequest is the payload for PUT /api/groups/:id
type UpdateGroupRequest struct {
	Name           *string `json:"name"`
	SystemWildcard *string `json:"system_wildcard"`
}

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Loaded             bool       `json:"loaded"`
	ArchivesFetched    *time.Time `json:"archives_fetched"`
	SystemsFetched     *time.Time `json:"systems_fetched"`
	GroupsFetched      *time.Time `json:"groups_fetched"`
	UsageFetched       *time.Time `json:"usage_fetched"`
	LatestSnapshotAt   *time.Time `json:"latest_snapshot_at"`
	PendingDownloads   int        `json:"pending_downloads"`
	DownloadedArchives int64      `json:"downloaded_archives"`
}

// ArchiveView is an archive plus its local download state.
type ArchiveView struct {
	FileName           string    `json:"file_name"`
	StartTime          time.Time `json:"start_time"`
	EndTime            time.Time `json:"end_time"`
	FormattedStartTime string    `json:"formatted_start_time"`
	FormattedDuration  string    `json:"formatted_duration"`
	FileSize           int64     `json:"file_size"`
	Downloaded         bool      `json:"downloaded"`
	DownloadPath       string    `json:"download_path,omitempty"`
}
