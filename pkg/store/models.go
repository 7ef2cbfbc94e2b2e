package store

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// InterviewStatus is the transcription lifecycle state.
type InterviewStatus string

const (
	InterviewPending    InterviewStatus = "pending"
	InterviewProcessing InterviewStatus = "processing"
	InterviewRetrying   InterviewStatus = "retrying"
	InterviewCompleted  InterviewStatus = "completed"
	InterviewFailed     InterviewStatus = "failed"
)

// LinkSource records who applied a code to a fragment.
type LinkSource string

const (
	SourceAI     LinkSource = "ai"
	SourceHuman  LinkSource = "human"
	SourceHybrid LinkSource = "hybrid"
)

// TheoryStatus is the theory lifecycle state.
type TheoryStatus string

const (
	TheoryDraft     TheoryStatus = "draft"
	TheoryCompleted TheoryStatus = "completed"
)

// Project is the tenancy root. It owns every other entity by composition.
type Project struct {
	ID             uuid.UUID
	TenantID       string
	OwnerID        string
	DomainTemplate string
	Language       string
	CreatedAt      time.Time
}

// Interview belongs to one project. Only completed interviews feed the
// pipeline.
type Interview struct {
	ID        uuid.UUID
	ProjectID uuid.UUID
	Status    InterviewStatus
	FullText  string
	WordCount int
	Language  string
}

// Fragment is a contiguous, addressable slice of a transcript.
type Fragment struct {
	ID              uuid.UUID
	InterviewID     uuid.UUID
	Text            string
	StartOffset     int
	EndOffset       int
	ParagraphIndex  *int
	StartMS         *int64
	EndMS           *int64
	SpeakerID       *string
	EmbeddingSynced bool
}

// Code is a labelled conceptual tag. Labels are unique per project under
// case-insensitive trimmed comparison.
type Code struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Label      string
	Definition string
	CategoryID *uuid.UUID
	CreatedBy  string
}

// CodeFragmentLink ties a code to a fragment with provenance.
type CodeFragmentLink struct {
	CodeID     uuid.UUID
	FragmentID uuid.UUID
	Confidence float64
	Source     LinkSource
	CharStart  *int
	CharEnd    *int
	LinkedAt   time.Time
}

// Category aggregates codes around a shared concept.
type Category struct {
	ID         uuid.UUID
	ProjectID  uuid.UUID
	Name       string
	Definition string
	IsCentral  bool
}

// Theory is a versioned grounded-theory result with full provenance. It is
// the one model served over the API as-is, hence the json tags.
type Theory struct {
	ID              uuid.UUID       `json:"theory_id"`
	ProjectID       uuid.UUID       `json:"project_id"`
	Version         int             `json:"version"`
	ModelJSON       json.RawMessage `json:"model,omitempty"`
	Propositions    json.RawMessage `json:"propositions,omitempty"`
	Validation      json.RawMessage `json:"validation,omitempty"`
	Gaps            json.RawMessage `json:"gaps,omitempty"`
	ConfidenceScore float64         `json:"confidence_score"`
	Status          TheoryStatus    `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Scope is the tenancy contract every read composes: project plus either
// owner identity or tenant-admin role.
type Scope struct {
	OwnerID  string
	TenantID string
	Admin    bool
}
