package models

import "time"

type SeedMode string

const (
	SeedLiked   SeedMode = "liked"    // read entries with rating >= min_rating
	SeedAllRead SeedMode = "all_read" // every read entry regardless of rating
)

type SubjectWeight struct {
	Subject string  `json:"subject"`
	Weight  float64 `json:"weight"`
	Generic bool    `json:"generic,omitempty"`
}

type AuthorWeight struct {
	Author string  `json:"author"`
	Weight float64 `json:"weight"`
}

// StoryProfile is the lexical fingerprint of what a user's liked books are
// about: weighted terms, weighted motif categories, and the denominator
// used to scale a candidate's raw story score into [0,1].
type StoryProfile struct {
	Terms  map[string]float64 `json:"terms"`
	Motifs map[string]float64 `json:"motifs"`
	Norm   float64            `json:"norm"`
}

// Profile is derived per request from the caller's library and never stored.
type Profile struct {
	LikedCount  int             `json:"liked_count"`
	TopSubjects []SubjectWeight `json:"top_subjects"`
	TopAuthors  []AuthorWeight  `json:"top_authors"`
	Story       StoryProfile    `json:"-"`
}

// IsEmpty reports whether no library entry qualified for the seed set.
func (p *Profile) IsEmpty() bool {
	return p.LikedCount == 0
}

// Candidate is one catalog search-result document under consideration.
type Candidate struct {
	Identifier    string   `json:"identifier"`
	Title         string   `json:"title"`
	Authors       []string `json:"authors"`
	CoverURL      string   `json:"cover_url,omitempty"`
	Subjects      []string `json:"subjects,omitempty"`
	Description   string   `json:"description,omitempty"`
	WorkKey       string   `json:"work_key,omitempty"`
	Language      string   `json:"language,omitempty"`
	FirstSentence string   `json:"first_sentence,omitempty"`
}

// Reason is one human-readable justification for a recommendation. Every
// score component that contributed must be expressible as a Reason.
type Reason struct {
	Label  string `json:"label"`
	Detail string `json:"detail"`
}

type Recommendation struct {
	RecID       string   `json:"rec_id"` // canonical work key
	WorkKey     string   `json:"work_key,omitempty"`
	Identifier  string   `json:"identifier,omitempty"`
	Title       string   `json:"title"`
	Authors     []string `json:"authors"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Description string   `json:"description,omitempty"`
	Score       float64  `json:"score"`
	Reasons     []Reason `json:"reasons"`
	Subjects    []string `json:"subjects,omitempty"`
}

type RecommendRequest struct {
	MinRating int      `json:"min_rating" validate:"min=1,max=10"`
	SeedMode  SeedMode `json:"seed_mode" validate:"required,oneof=liked all_read"`
	Limit     int      `json:"limit" validate:"min=1,max=50"`
	SeedIDs   []int64  `json:"seed_ids,omitempty"`
	Language  string   `json:"language,omitempty"`
	Debug     bool     `json:"debug"`
}

// DebugStats carries per-stage pipeline counters. It is observability only
// and never required for correct operation.
type DebugStats struct {
	SeedEntries          int `json:"seed_entries"`
	QueriesIssued        int `json:"queries_issued"`
	CandidatesFetched    int `json:"candidates_fetched"`
	DroppedByIdentifier  int `json:"dropped_by_identifier"`
	DroppedByTitlePair   int `json:"dropped_by_title_pair"`
	DroppedNearDuplicate int `json:"dropped_near_duplicate"`
	DroppedByWorkKey     int `json:"dropped_by_work_key"`
	DroppedByCanonical   int `json:"dropped_by_canonical"`
	DroppedByDislike     int `json:"dropped_by_dislike"`
	DroppedInResponse    int `json:"dropped_in_response"`
	DroppedByAuthorCap   int `json:"dropped_by_author_cap"`
	DroppedZeroScore     int `json:"dropped_zero_score"`
	LikedBoosts          int `json:"liked_boosts"`
	CatalogCacheHits     int `json:"catalog_cache_hits"`
}

type ProfileSummary struct {
	LikedCount  int             `json:"liked_count"`
	TopSubjects []SubjectWeight `json:"top_subjects"`
	TopAuthors  []AuthorWeight  `json:"top_authors"`
}

type RecommendResponse struct {
	Profile         ProfileSummary   `json:"profile"`
	Recommendations []Recommendation `json:"recommendations"`
	GeneratedAt     time.Time        `json:"generated_at"`
	Debug           *DebugStats      `json:"debug,omitempty"`
}
