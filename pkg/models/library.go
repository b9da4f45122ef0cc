package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

type ReadStatus string

const (
	StatusUnread  ReadStatus = "unread"
	StatusReading ReadStatus = "reading"
	StatusPaused  ReadStatus = "paused"
	StatusRead    ReadStatus = "read"
)

// LibraryEntry is one owned book in a user's library. The recommendation
// pipeline only reads these rows; the storage layer owns their lifecycle.
type LibraryEntry struct {
	ID          int64      `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	Identifier  string     `json:"identifier" db:"identifier"` // ISBN-10/13 or similar
	Title       string     `json:"title" db:"title" validate:"required,min=1,max=512"`
	Authors     string     `json:"authors" db:"authors"` // comma-joined
	Status      ReadStatus `json:"status" db:"status" validate:"required,oneof=unread reading paused read"`
	Rating      *int       `json:"rating,omitempty" db:"rating" validate:"omitempty,min=1,max=10"`
	Subjects    string     `json:"subjects" db:"subjects"` // JSON array or comma-joined free text
	Notes       string     `json:"notes" db:"notes"`
	Description string     `json:"description" db:"description"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// SubjectList decodes the subjects field. It accepts a JSON string array or
// a comma/semicolon-joined list; an unparseable field yields no subjects
// rather than an error.
func (e *LibraryEntry) SubjectList() []string {
	raw := strings.TrimSpace(e.Subjects)
	if raw == "" {
		return nil
	}

	if strings.HasPrefix(raw, "[") {
		var parsed []string
		if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
			return cleanSubjects(parsed)
		}
		// Malformed JSON: skip this field's contribution.
		return nil
	}

	split := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';'
	})
	return cleanSubjects(split)
}

func cleanSubjects(subjects []string) []string {
	out := make([]string, 0, len(subjects))
	for _, s := range subjects {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// RatingValue returns the entry's rating and whether one is present.
func (e *LibraryEntry) RatingValue() (int, bool) {
	if e.Rating == nil {
		return 0, false
	}
	return *e.Rating, true
}

type LibraryEntryRequest struct {
	Identifier  string     `json:"identifier" validate:"omitempty,max=32"`
	Title       string     `json:"title" validate:"required,min=1,max=512"`
	Authors     string     `json:"authors" validate:"max=512"`
	Status      ReadStatus `json:"status" validate:"required,oneof=unread reading paused read"`
	Rating      *int       `json:"rating,omitempty" validate:"omitempty,min=1,max=10"`
	Subjects    string     `json:"subjects"`
	Notes       string     `json:"notes"`
	Description string     `json:"description"`
}

type LibraryImportRequest struct {
	Entries []LibraryEntryRequest `json:"entries" validate:"required,min=1,max=1000"`
}

type LibraryImportResult struct {
	ImportID uuid.UUID `json:"import_id"`
	Imported int       `json:"imported"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Errors   []string  `json:"errors,omitempty"`
}
