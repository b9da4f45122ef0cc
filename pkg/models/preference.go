package models

import (
	"time"

	"github.com/google/uuid"
)

type PreferenceAction string

const (
	PreferenceLike    PreferenceAction = "like"
	PreferenceDislike PreferenceAction = "dislike"
)

// PreferenceSignal is a prior explicit like/dislike against a work, keyed
// by the best canonical key resolvable when it was recorded.
type PreferenceSignal struct {
	UserID     uuid.UUID        `json:"user_id"`
	Key        string           `json:"key"`
	Action     PreferenceAction `json:"action"`
	Title      string           `json:"title,omitempty"`
	Authors    string           `json:"authors,omitempty"`
	Identifier string           `json:"identifier,omitempty"`
	RecordedAt time.Time        `json:"recorded_at"`
}

type PreferenceRequest struct {
	Action     PreferenceAction `json:"action" validate:"required,oneof=like dislike"`
	Title      string           `json:"title" validate:"required,min=1,max=512"`
	Authors    string           `json:"authors" validate:"max=512"`
	Identifier string           `json:"identifier" validate:"omitempty,max=32"`
	WorkKey    string           `json:"work_key" validate:"omitempty,max=64"`
}

// PreferenceSignals are the stored like/dislike key sets for one user.
type PreferenceSignals struct {
	LikedKeys    map[string]struct{}
	DislikedKeys map[string]struct{}
}

// AnyKey reports whether any of keys appears in set.
func AnyKey(set map[string]struct{}, keys []string) bool {
	for _, k := range keys {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}
