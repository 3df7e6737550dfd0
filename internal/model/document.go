// Package model provides data models for docmind.
package model

import (
	"time"
)

// JobStatus is the lifecycle state of a DocumentJob.
type JobStatus string

// Job statuses. done and failed are terminal.
const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether s is done or failed.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// DefaultEntity is used when a request carries no entity.
const DefaultEntity = "anonyme"

// MaxFilenameLen is the column width of every stored filename.
const MaxFilenameLen = 255

// Job is a document submitted for summarization. It lives in the job store.
type Job struct {
	ID          string    `json:"job_id"`
	EntityID    string    `json:"entity_id"`
	Priority    int       `json:"priority"`
	SourceURI   string    `json:"source_uri"`
	LocalPath   string    `json:"local_path"`
	DocIdentity string    `json:"doc_identity"`
	Status      JobStatus `json:"status"`
	Error       string    `json:"error,omitempty"`
	Summary     string    `json:"summary,omitempty"`
	Score       float64   `json:"score,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Unit is a contiguous span of pages summarized and scored independently.
type Unit struct {
	ID            int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	EntityID      string    `json:"entity_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_unit_key,priority:1"`
	JobID         string    `json:"job_id" gorm:"type:varchar(64);not null;uniqueIndex:idx_unit_key,priority:2"`
	Sequence      int       `json:"sequence" gorm:"not null;uniqueIndex:idx_unit_key,priority:3"`
	DocumentID    string    `json:"document_id" gorm:"type:varchar(255);index"` // 来源文档文件名
	FirstPage     int       `json:"first_page"`
	LastPage      int       `json:"last_page"`
	RawText       string    `json:"raw_text,omitempty" gorm:"type:text"`
	SummaryText   string    `json:"summary_text" gorm:"type:text"`
	QualityScore  float64   `json:"quality_score"`
	WasTranslated bool      `json:"was_translated"`
	Embedding     Vector    `json:"embedding,omitempty" gorm:"type:text"` // 所有尝试失败时为空
	CreatedAt     time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for Unit.
func (Unit) TableName() string {
	return "docmind_units"
}

// IntermediateSummary merges one batch of unit summaries. Kept for audit only.
type IntermediateSummary struct {
	ID          int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	EntityID    string    `json:"entity_id" gorm:"type:varchar(128);not null;index:idx_intermediate_job,priority:1"`
	JobID       string    `json:"job_id" gorm:"type:varchar(64);not null;index:idx_intermediate_job,priority:2"`
	Sequence    int       `json:"sequence"`
	UnitRange   string    `json:"unit_range" gorm:"type:varchar(32)"` // "i-j"
	SummaryText string    `json:"summary_text" gorm:"type:text"`
	CreatedAt   time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for IntermediateSummary.
func (IntermediateSummary) TableName() string {
	return "docmind_intermediate_summaries"
}

// DocumentSummary is the final merge result for (entity, document identity).
type DocumentSummary struct {
	ID           int64     `json:"-" gorm:"primaryKey;autoIncrement"`
	EntityID     string    `json:"entity_id" gorm:"type:varchar(128);not null;uniqueIndex:idx_summary_key,priority:1"`
	DocIdentity  string    `json:"doc_identity" gorm:"type:varchar(32);not null;uniqueIndex:idx_summary_key,priority:2"`
	JobID        string    `json:"job_id" gorm:"type:varchar(64)"`
	SourceURI    string    `json:"source_uri" gorm:"type:varchar(1024)"`
	Filename     string    `json:"filename" gorm:"type:varchar(255)"`
	SummaryText  string    `json:"summary" gorm:"type:text"`
	QualityScore float64   `json:"score"`
	UnitCount    int       `json:"unit_count"`
	ModelUsed    string    `json:"model_used" gorm:"type:varchar(128)"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for DocumentSummary.
func (DocumentSummary) TableName() string {
	return "docmind_document_summaries"
}

// DocumentMetadata is the per-document record searched by question answering.
type DocumentMetadata struct {
	ID        int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	EntityID  string     `json:"entity_id" gorm:"type:varchar(128);not null;index:idx_metadata_job,priority:1"`
	JobID     string     `json:"job_id" gorm:"type:varchar(64);not null;index:idx_metadata_job,priority:2"`
	Filename  string     `json:"filename" gorm:"type:varchar(255);not null"`
	PageCount int        `json:"page_count"`
	UnitCount int        `json:"unit_count"`
	Resume    string     `json:"resume" gorm:"type:text"`
	Keywords  StringList `json:"keywords" gorm:"type:text"`
	Themes    StringList `json:"themes" gorm:"type:text"`
	Embedding Vector     `json:"embedding,omitempty" gorm:"type:text"`
	CreatedAt time.Time  `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for DocumentMetadata.
func (DocumentMetadata) TableName() string {
	return "docmind_document_metadata"
}

// Interaction is one question/answer exchange of a session.
type Interaction struct {
	ID           int64      `json:"id" gorm:"primaryKey;autoIncrement"`
	SessionID    string     `json:"session_id" gorm:"type:varchar(64);not null;index"`
	Question     string     `json:"question" gorm:"type:text"`
	Answer       string     `json:"answer" gorm:"type:text"`
	EvidenceRefs StringList `json:"evidence_refs" gorm:"type:text"`
	JobID        string     `json:"job_id" gorm:"type:varchar(64)"`
	UserID       string     `json:"user_id" gorm:"type:varchar(128)"`
	Timestamp    time.Time  `json:"timestamp" gorm:"index"`
}

// TableName specifies the table name for Interaction.
func (Interaction) TableName() string {
	return "docmind_interactions"
}

// JobHistoryEntry is appended once per processed job, grouped by entity and day.
type JobHistoryEntry struct {
	ID         int64     `json:"id" gorm:"primaryKey;autoIncrement"`
	EntityID   string    `json:"entity_id" gorm:"type:varchar(128);not null;index:idx_history_day,priority:1"`
	Day        string    `json:"day" gorm:"type:varchar(10);not null;index:idx_history_day,priority:2"` // 2006-01-02
	JobID      string    `json:"job_id" gorm:"type:varchar(64)"`
	SourceURI  string    `json:"source_uri" gorm:"type:varchar(1024)"`
	Status     JobStatus `json:"status" gorm:"type:varchar(16)"`
	ModelUsed  string    `json:"model_used" gorm:"type:varchar(128)"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for JobHistoryEntry.
func (JobHistoryEntry) TableName() string {
	return "docmind_job_history"
}

// All returns every gorm model for auto migration.
func All() []any {
	return []any{
		&Unit{},
		&IntermediateSummary{},
		&DocumentSummary{},
		&DocumentMetadata{},
		&Interaction{},
		&JobHistoryEntry{},
	}
}
