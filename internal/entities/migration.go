package entities

import (
	"time"
)

// PostStatus tracks a single post through the migration pipeline.
type PostStatus string

const (
	PostStatusPending    PostStatus = "pending"
	PostStatusConverting PostStatus = "converting"
	PostStatusUploading  PostStatus = "uploading"
	PostStatusPublishing PostStatus = "publishing"
	PostStatusSucceeded  PostStatus = "succeeded"
	PostStatusFailed     PostStatus = "failed"
)

// Terminal reports whether the status is a terminal state.
// Only succeeded and failed posts are never re-attempted on resume.
func (s PostStatus) Terminal() bool {
	return s == PostStatusSucceeded || s == PostStatusFailed
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusAborted   RunStatus = "aborted"
)

// MigrationRun is the run-level ledger for one source blog. There is at
// most one row per blog; re-invocations load and resume it.
type MigrationRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Blog       string    `gorm:"uniqueIndex;size:256" json:"blog"`
	Status     RunStatus `gorm:"size:20" json:"status"`
	Cursor     int       `json:"cursor"`      // Offset into the source feed, in source order
	TotalPosts int       `json:"total_posts"` // As reported by the source on the last fetch
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Error      string    `gorm:"type:text" json:"error,omitempty"` // Run-level abort/pause reason

	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (MigrationRun) TableName() string {
	return "migration_runs"
}

// MigrationPost is the per-post progress row. SourceID is the origin
// platform's post identifier; RecordKey is the deterministic destination
// write key, stored once and never regenerated mid-run.
type MigrationPost struct {
	ID    uint `gorm:"primaryKey" json:"id"`
	RunID uint `gorm:"index" json:"run_id"`

	SourceID    string    `gorm:"index;size:64" json:"source_id"`
	SourceURL   string    `gorm:"size:2048" json:"source_url"`
	Title       string    `gorm:"size:512" json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Position    int       `gorm:"index" json:"position"` // Source feed order, preserved for deterministic resume

	Status   PostStatus `gorm:"size:20;default:'pending'" json:"status"`
	Reason   string     `gorm:"type:text" json:"reason,omitempty"` // Human-readable failure reason
	Attempts int        `json:"attempts"`

	RecordKey string `gorm:"index;size:32" json:"record_key,omitempty"`
	RecordURI string `gorm:"size:512" json:"record_uri,omitempty"`

	BlockCount     int    `json:"block_count,omitempty"`
	DegradedImages string `gorm:"type:text" json:"degraded_images,omitempty"` // Newline-separated notes, one per downgraded image block

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (MigrationPost) TableName() string {
	return "migration_posts"
}
