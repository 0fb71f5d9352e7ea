package models

import "time"

// BackupType identifies what a backup artifact contains.
type BackupType string

const (
	// BackupNetwork covers network application settings only.
	BackupNetwork BackupType = "network"
	// BackupSystem covers the full controller state.
	BackupSystem BackupType = "system"
)

// Valid reports whether t is a known backup type.
func (t BackupType) Valid() bool {
	return t == BackupNetwork || t == BackupSystem
}

// RetentionIndefinite marks an artifact the controller never expires.
const RetentionIndefinite = -1

// BackupArtifact is one backup on the controller, or downloaded locally.
// After creation only IsValid changes, flipped by a validation pass.
type BackupArtifact struct {
	Filename      string     `json:"filename"`
	SiteID        string     `json:"siteId,omitempty"`
	Type          BackupType `json:"type"`
	SizeBytes     int64      `json:"sizeBytes"`
	CreatedAt     time.Time  `json:"createdAt"`
	RetentionDays int        `json:"retentionDays"`
	CloudSynced   bool       `json:"cloudSynced,omitempty"`
	IsValid       bool       `json:"isValid"`
	Checksum      string     `json:"checksum,omitempty"` // sha256 hex, set after download
	DryRun        bool       `json:"dryRun,omitempty"`
}

// DownloadResult records a completed artifact download.
type DownloadResult struct {
	Filename   string    `json:"filename"`
	OutputPath string    `json:"outputPath"`
	SizeBytes  int64     `json:"sizeBytes"`
	Checksum   string    `json:"checksum"`
	Verified   bool      `json:"verified"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// ValidationResult is a composite artifact validation outcome.
type ValidationResult struct {
	Filename          string   `json:"filename"`
	IsValid           bool     `json:"isValid"`
	ChecksumOK        bool     `json:"checksumOk"`
	FormatOK          bool     `json:"formatOk"`
	VersionCompatible bool     `json:"versionCompatible"`
	Warnings          []string `json:"warnings,omitempty"`
	Errors            []string `json:"errors,omitempty"`
}

// RestoreState is one stage in the restore lifecycle.
type RestoreState string

const (
	RestoreRequested        RestoreState = "requested"
	RestoreValidating       RestoreState = "validating"
	RestoreValidated        RestoreState = "validated"
	RestoreRejected         RestoreState = "rejected"
	RestorePreBackup        RestoreState = "pre_backup_in_progress"
	RestoreRestoring        RestoreState = "restoring"
	RestoreCompleted        RestoreState = "completed"
	RestoreFailed           RestoreState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s RestoreState) Terminal() bool {
	return s == RestoreRejected || s == RestoreCompleted || s == RestoreFailed
}

// Active reports whether the operation holds the controller at risk. Only
// one active restore is permitted per site.
func (s RestoreState) Active() bool {
	return s == RestorePreBackup || s == RestoreRestoring
}

// RestoreOperation is the record of one restore attempt. It is terminal
// once the controller completes or rejects the restore.
type RestoreOperation struct {
	ID                 string       `json:"id"`
	SiteID             string       `json:"siteId"`
	TargetFilename     string       `json:"targetFilename"`
	State              RestoreState `json:"state"`
	PreBackupRequested bool         `json:"preBackupRequested"`
	PreBackupFilename  string       `json:"preBackupFilename,omitempty"`
	CanRollback        bool         `json:"canRollback"`
	DryRun             bool         `json:"dryRun,omitempty"`
	Error              string       `json:"error,omitempty"`
	StartedAt          time.Time    `json:"startedAt"`
	FinishedAt         *time.Time   `json:"finishedAt,omitempty"`
}
