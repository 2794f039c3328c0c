// Package document defines the resume and cover-letter rows this layer
// caches and fetches. The editor, AI prompting and PDF rendering live
// elsewhere; to this layer a document is an opaque serializable value.
package document

import (
	"time"
)

// Kind distinguishes the two document types the editor produces.
type Kind string

const (
	KindResume      Kind = "resume"
	KindCoverLetter Kind = "cover_letter"
)

// Resume is a single resume or cover-letter row in the backing store.
// JSON tags match the PostgREST column names.
type Resume struct {
	ID       string         `json:"id"`
	UserID   string         `json:"user_id"`
	Kind     Kind           `json:"kind"`
	Title    string         `json:"title"`
	Template string         `json:"template"`
	Sections map[string]any `json:"sections"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Clone returns a deep copy of the document. Sections is the only
// reference-typed field; its values come from JSON decoding, so maps,
// slices and scalars are the full shape.
func (r Resume) Clone() Resume {
	out := r
	out.Sections = cloneSections(r.Sections)
	return out
}

func cloneSections(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = cloneSectionValue(v)
	}
	return out
}

func cloneSectionValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneSections(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneSectionValue(item)
		}
		return out
	default:
		return t
	}
}

// Template is rarely-changing reference data describing a layout preset.
type Template struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	PageSize    string `json:"page_size"`
}

// CreateInput carries the fields a caller may set when creating a document.
type CreateInput struct {
	UserID   string         `json:"user_id" validate:"required"`
	Kind     Kind           `json:"kind" validate:"required,oneof=resume cover_letter"`
	Title    string         `json:"title" validate:"required,max=200"`
	Template string         `json:"template" validate:"omitempty,max=64"`
	Sections map[string]any `json:"sections"`
}

// UpdateInput carries the mutable fields of a document. Nil pointers mean
// "leave unchanged" and are omitted from the PATCH body.
type UpdateInput struct {
	Title    *string         `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Template *string         `json:"template,omitempty" validate:"omitempty,max=64"`
	Sections *map[string]any `json:"sections,omitempty"`
}
