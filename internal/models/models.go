// internal/models/models.go
package models

import "strings"

// Image is one gallery row. JSON names follow the column names.
type Image struct {
	ID           int64  `json:"id" db:"id"`
	Title        string `json:"title" db:"title"`
	Description  string `json:"description" db:"description"`
	Category     string `json:"category" db:"category"`
	Location     string `json:"location" db:"location"`
	Photographer string `json:"photographer" db:"photographer"`
	S3URL        string `json:"s3_url" db:"s3_url"`
	S3Key        string `json:"s3_key" db:"s3_key"`
}

// Metadata is the descriptive data attached to an uploaded object and
// carried through to its gallery row.
type Metadata struct {
	Title        string
	Description  string
	Category     string
	Location     string
	Photographer string
}

const (
	DefaultTitle        = "Untitled"
	DefaultDescription  = ""
	DefaultCategory     = "Uncategorized"
	DefaultLocation     = "Unknown"
	DefaultPhotographer = "Anonymous"
)

// WithDefaults fills empty fields with the placeholder values.
func (m Metadata) WithDefaults() Metadata {
	return Metadata{
		Title:        orDefault(m.Title, DefaultTitle),
		Description:  orDefault(m.Description, DefaultDescription),
		Category:     orDefault(m.Category, DefaultCategory),
		Location:     orDefault(m.Location, DefaultLocation),
		Photographer: orDefault(m.Photographer, DefaultPhotographer),
	}
}

// Map returns the object-store representation.
func (m Metadata) Map() map[string]string {
	return map[string]string{
		"title":        m.Title,
		"description":  m.Description,
		"category":     m.Category,
		"location":     m.Location,
		"photographer": m.Photographer,
	}
}

// MetadataFromMap reads the object-store representation. Key lookup is
// case-insensitive.
func MetadataFromMap(src map[string]string) Metadata {
	lower := make(map[string]string, len(src))
	for k, v := range src {
		lower[strings.ToLower(k)] = v
	}
	return Metadata{
		Title:        lower["title"],
		Description:  lower["description"],
		Category:     lower["category"],
		Location:     lower["location"],
		Photographer: lower["photographer"],
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
