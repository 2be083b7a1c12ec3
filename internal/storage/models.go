package storage

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidEntry is returned when an entry fails validation before a write.
var ErrInvalidEntry = errors.New("invalid entry")

// DefaultCategory is assigned to entries saved without a category.
const DefaultCategory = "general"

// SourceType tags where an entry's text came from.
type SourceType string

const (
	SourceWeb     SourceType = "web"
	SourceYouTube SourceType = "youtube"
	SourcePaste   SourceType = "paste"
	SourceOCR     SourceType = "ocr"
	SourceFile    SourceType = "file"
	SourceCrawl   SourceType = "crawl"
)

// SourceTypes lists every accepted source type.
var SourceTypes = []SourceType{SourceWeb, SourceYouTube, SourcePaste, SourceOCR, SourceFile, SourceCrawl}

// Valid reports whether s is one of SourceTypes.
func (s SourceType) Valid() bool {
	for _, t := range SourceTypes {
		if s == t {
			return true
		}
	}
	return false
}

// ParseSourceType validates a user-supplied source type.
func ParseSourceType(s string) (SourceType, error) {
	st := SourceType(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: unknown source type %q", ErrInvalidEntry, s)
	}
	return st, nil
}

// Entry is one collected unit of text.
type Entry struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	SourceType   SourceType `json:"source_type"`
	SourceURL    string     `json:"source_url,omitempty"`
	Tags         []string   `json:"tags"`
	Category     string     `json:"category"`
	WordCount    int        `json:"word_count"`
	QualityScore *int       `json:"quality_score"` // nil when unscored
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// EntryUpdate carries a partial edit. Nil fields are left untouched.
type EntryUpdate struct {
	Title    *string   `json:"title,omitempty"`
	Content  *string   `json:"content,omitempty"`
	Tags     *[]string `json:"tags,omitempty"`
	Category *string   `json:"category,omitempty"`
}

// EntryFilter narrows ListEntries. Zero values mean "no constraint".
type EntryFilter struct {
	SourceType SourceType
	Category   string
	Search     string
	MinScore   int
	Limit      int
	Offset     int
}

type ExportRecord struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Format      string    `json:"format"`
	EntryCount  int       `json:"entry_count"`
	RecordCount int       `json:"record_count"`
	Skipped     int       `json:"skipped"`
	CreatedAt   time.Time `json:"created_at"`
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // one of the Job* status constants
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}

// Stats summarises the library for dashboards and `loratk stats`.
type Stats struct {
	TotalEntries int            `json:"total_entries"`
	TotalWords   int            `json:"total_words"`
	Scored       int            `json:"scored"`
	ByType       map[string]int `json:"by_type"`
	TotalExports int            `json:"total_exports"`
}
