// Package actions stores test actions and the categories derived from them.
package actions

import (
	"strings"

	"github.com/google/uuid"
)

const (
	// DefaultCategory is assigned to actions created or loaded without one
	DefaultCategory = "Uncategorized"

	// AllCategories matches every action in ListByCategory
	AllCategories = "all"
)

// Action is a named snippet of test code with an optional generated variant.
// ID is the identity; Name is for display and search and may repeat.
type Action struct {
	ID            string `json:"id"`
	Name          string `json:"name" validate:"required,max=200"`
	Description   string `json:"description"`
	Code          string `json:"code"`
	Category      string `json:"category" validate:"required,max=100"`
	GeneratedCode string `json:"generated_code"`
}

// Fields holds an edit to an existing action. Nil fields are left alone.
type Fields struct {
	Name          *string
	Description   *string
	Code          *string
	Category      *string
	GeneratedCode *string
}

func (f Fields) apply(a *Action) {
	if f.Name != nil {
		a.Name = *f.Name
	}
	if f.Description != nil {
		a.Description = *f.Description
	}
	if f.Code != nil {
		a.Code = *f.Code
	}
	if f.Category != nil {
		a.Category = *f.Category
	}
	if f.GeneratedCode != nil {
		a.GeneratedCode = *f.GeneratedCode
	}
}

// normalize trims the display fields and fills in defaults
func (a *Action) normalize() {
	a.Name = strings.TrimSpace(a.Name)
	a.Category = strings.TrimSpace(a.Category)
	if a.Category == "" {
		a.Category = DefaultCategory
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
}

// matches reports whether the lower-cased query occurs in name, description or code
func (a Action) matches(lowerQuery string) bool {
	if lowerQuery == "" {
		return true
	}
	return strings.Contains(strings.ToLower(a.Name), lowerQuery) ||
		strings.Contains(strings.ToLower(a.Description), lowerQuery) ||
		strings.Contains(strings.ToLower(a.Code), lowerQuery)
}

// ShortID returns the first block of the id, enough to tell actions apart in listings
func (a Action) ShortID() string {
	if i := strings.IndexByte(a.ID, '-'); i > 0 {
		return a.ID[:i]
	}
	return a.ID
}
