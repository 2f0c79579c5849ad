package backup

import "time"

type DatabaseInfo struct {
	Name   string
	Engine string
	Tables int
}

type CaptureOptions struct {
	// OutputPath defaults to backup/<database>_<timestamp>.sql.
	OutputPath string
	// IgnoreTables are left out besides the internal ".inner" tables,
	// typically the migration and metadata bookkeeping tables.
	IgnoreTables []string
}

type ReplayOptions struct {
	SourcePath   string
	ShowProgress bool
}

type BackupMetadata struct {
	BackupSize  int64
	Checksum    string
	Location    string
	Statements  int
	StartedAt   time.Time
	CompletedAt time.Time
}
