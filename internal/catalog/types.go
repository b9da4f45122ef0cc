package catalog

import (
	"encoding/json"
	"fmt"
)

// Document is one search-result record from the bibliographic catalog.
type Document struct {
	Title         string   `json:"title"`
	Authors       []string `json:"author_name"`
	ISBNs         []string `json:"isbn"`
	Subjects      []string `json:"subject"`
	WorkKey       string   `json:"key"` // e.g. /works/OL123W
	FirstSentence []string `json:"first_sentence"`
	Languages     []string `json:"language"`
	CoverID       int64    `json:"cover_i"`
}

// PrimaryISBN returns the first listed identifier, if any.
func (d *Document) PrimaryISBN() string {
	if len(d.ISBNs) == 0 {
		return ""
	}
	return d.ISBNs[0]
}

// CoverURL builds the catalog's cover image URL for this document.
func (d *Document) CoverURL() string {
	if d.CoverID == 0 {
		return ""
	}
	return fmt.Sprintf("https://covers.openlibrary.org/b/id/%d-M.jpg", d.CoverID)
}

type searchResponse struct {
	NumFound int        `json:"numFound"`
	Docs     []Document `json:"docs"`
}

// Edition is the identifier-lookup record (one physical/printed edition).
type Edition struct {
	WorkKeys    []workRef    `json:"works"`
	Description flexibleText `json:"description"`
	Subjects    []string     `json:"subjects"`
}

// WorkKey returns the edition's first work reference, if any.
func (e *Edition) WorkKey() string {
	if len(e.WorkKeys) == 0 {
		return ""
	}
	return e.WorkKeys[0].Key
}

type workRef struct {
	Key string `json:"key"`
}

// Work is the work-level record shared by all editions and translations.
type Work struct {
	Key         string            `json:"key"`
	Title       string            `json:"title"`
	Description flexibleText      `json:"description"`
	Subjects    []string          `json:"subjects"`
	Identifiers map[string]string `json:"identifiers"`
}

// ExternalCanonicalID returns the work's cross-catalog identifier (a
// knowledge-base entity ID) when the catalog carries one.
func (w *Work) ExternalCanonicalID() string {
	if w.Identifiers == nil {
		return ""
	}
	return w.Identifiers["wikidata"]
}

// flexibleText handles the catalog's habit of encoding text fields either
// as a bare string or as {"type": ..., "value": ...}.
type flexibleText string

func (t *flexibleText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = flexibleText(s)
		return nil
	}

	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		// Unexpected shape: drop the field rather than failing the record.
		*t = ""
		return nil
	}
	*t = flexibleText(wrapped.Value)
	return nil
}

func (t flexibleText) String() string { return string(t) }
