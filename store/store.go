// Package store is the tree catalog: versioned, immutable storage for
// tree definitions. Every save creates a new version; old versions stay
// readable until explicitly deleted, so running executions can always
// resolve the definition they were built from.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bramble-labs/bramble/tree"
)

// ErrTreeNotFound is returned for unknown tree ids and versions.
var ErrTreeNotFound = errors.New("tree not found")

// TreeStatus is a catalog record's lifecycle state.
type TreeStatus string

const (
	// StatusDraft marks a version saved but not yet promoted.
	StatusDraft TreeStatus = "draft"

	// StatusActive marks the version the catalog currently serves as the
	// tree. Saving a new version activates it and archives the rest.
	StatusActive TreeStatus = "active"

	// StatusArchived marks superseded versions.
	StatusArchived TreeStatus = "archived"
)

// Valid reports whether s is one of the defined statuses.
func (s TreeStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusActive, StatusArchived:
		return true
	}
	return false
}

// TreeRecord is one stored version of a tree definition. CreatedAt is
// when the tree id first appeared in the catalog; UpdatedAt is when this
// version was saved.
type TreeRecord struct {
	ID          string               `json:"id"`
	Name        string               `json:"name,omitempty"`
	Description string               `json:"description,omitempty"`
	Version     int                  `json:"version"`
	Tags        []string             `json:"tags,omitempty"`
	Status      TreeStatus           `json:"status"`
	Definition  *tree.TreeDefinition `json:"definition,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	// Tags keeps records carrying every listed tag.
	Tags []string

	// Status keeps records in exactly this state.
	Status TreeStatus
}

// Store is the versioned tree catalog.
type Store interface {
	// List returns the latest version of every tree matching the filter,
	// ordered by tree id.
	List(ctx context.Context, filter Filter) ([]TreeRecord, error)

	// Get returns one version of a tree. Version <= 0 means the latest.
	Get(ctx context.Context, id string, version int) (*TreeRecord, error)

	// Save stores def as a new immutable version, activates it, and
	// archives the tree's earlier versions.
	Save(ctx context.Context, def *tree.TreeDefinition) (*TreeRecord, error)

	// Delete removes one version, or every version when version <= 0.
	Delete(ctx context.Context, id string, version int) error

	// ListVersions returns every stored version of a tree in ascending
	// version order.
	ListVersions(ctx context.Context, id string) ([]TreeRecord, error)

	// Search returns the latest versions whose name, description, or tags
	// contain the query, case-insensitively. An empty query matches all.
	Search(ctx context.Context, query string) ([]TreeRecord, error)
}

// matchesFilter applies Filter semantics shared by the implementations.
func matchesFilter(rec *TreeRecord, filter Filter) bool {
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	for _, want := range filter.Tags {
		if !hasTag(rec.Tags, want) {
			return false
		}
	}
	return true
}

// matchesQuery applies Search semantics shared by the implementations.
func matchesQuery(rec *TreeRecord, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Name), q) {
		return true
	}
	if strings.Contains(strings.ToLower(rec.Description), q) {
		return true
	}
	for _, tag := range rec.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func hasTag(tags []string, want string) bool {
	for _, tag := range tags {
		if strings.EqualFold(tag, want) {
			return true
		}
	}
	return false
}

// recordFromDefinition builds the stored fields shared by Save
// implementations. The definition is cloned so later caller mutations do
// not leak into the catalog.
func recordFromDefinition(def *tree.TreeDefinition) (TreeRecord, error) {
	if def == nil {
		return TreeRecord{}, errors.New("store: tree definition is nil")
	}
	if def.ID == "" {
		return TreeRecord{}, errors.New("store: tree definition has no tree_id")
	}
	clone := def.Clone()
	return TreeRecord{
		ID:          def.ID,
		Name:        def.Metadata.Name,
		Description: def.Metadata.Description,
		Tags:        append([]string(nil), def.Metadata.Tags...),
		Status:      StatusActive,
		Definition:  &clone,
	}, nil
}
