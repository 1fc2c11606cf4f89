package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ObjectID is a remote identifier. The API emits ids as numbers in some
// payloads and as strings in others; both decode to the same value.
type ObjectID string

// UnmarshalJSON accepts a JSON string or number.
func (id *ObjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ObjectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("object id: %w", err)
	}
	*id = ObjectID(n.String())
	return nil
}

// Person is a project owner or collaborator as reported by the remote API.
type Person struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ProcessingMeta describes the analysis pipeline progress of a project.
type ProcessingMeta struct {
	Processed bool      `json:"processed"`
	Failed    bool      `json:"failed"`
	StartedAt time.Time `json:"processing_begun"`
	Documents int       `json:"document_count"`
	LastError string    `json:"last_error,omitempty"`
}

// Project is the record listed by the projects collection view.
type Project struct {
	ID           ObjectID       `json:"id"`
	Title        string         `json:"title"`
	PendingTitle string         `json:"pending_title,omitempty"`
	Owner        Person         `json:"owner"`
	IsOwner      bool           `json:"is_owner"`
	Tags         []string       `json:"tags"`
	CreatedAt    time.Time      `json:"created"`
	Meta         ProcessingMeta `json:"meta"`
}

// RecordID returns the stable identifier used for selection and dedup.
func (p Project) RecordID() string {
	return string(p.ID)
}

// SearchText is the text free-text search runs against: the display title
// plus the pending revision so edits in progress stay searchable.
func (p Project) SearchText() string {
	if p.PendingTitle == "" {
		return p.Title
	}
	return p.Title + "\n" + p.PendingTitle
}

// DisplayTitle prefers the committed title and falls back to the pending one.
func (p Project) DisplayTitle() string {
	if strings.TrimSpace(p.Title) != "" {
		return p.Title
	}
	return p.PendingTitle
}

// DocumentSummary is one document inside a project detail.
type DocumentSummary struct {
	ID     ObjectID `json:"id"`
	Title  string   `json:"title"`
	Status string   `json:"status"`
}

// ProjectDetail is the lazily loaded per-row payload.
type ProjectDetail struct {
	Project
	Description   string            `json:"description"`
	Documents     []DocumentSummary `json:"documents"`
	Collaborators []Person          `json:"collaborators"`
}
