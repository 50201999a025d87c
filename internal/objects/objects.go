// Package objects defines the saved-object data model and the Store contract
// that every persistence backend and every policy wrapper implements.
package objects

import "context"

// Reference points at another saved object.
type Reference struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Object is a typed, identified, attribute-bearing persisted entity. An empty
// Workspaces slice means the object is global, not workspace-scoped. Error is
// only populated on entries of bulk responses.
type Object struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Workspaces []string       `json:"workspaces,omitempty"`
	References []Reference    `json:"references,omitempty"`
	Error      *Error         `json:"error,omitempty"`
}

// CreateOptions carries the optional knobs of a single create.
type CreateOptions struct {
	ID         string      `json:"id,omitempty"`
	Overwrite  bool        `json:"overwrite,omitempty"`
	Workspaces []string    `json:"workspaces,omitempty"`
	References []Reference `json:"references,omitempty"`
}

// BulkCreateItem is one object of a bulkCreate payload. Workspaces, when set,
// overrides the call-level BulkCreateOptions.Workspaces for this item and is
// subject to the same workspace policy checks as the call-level set.
type BulkCreateItem struct {
	Type       string         `json:"type"`
	ID         string         `json:"id,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	References []Reference    `json:"references,omitempty"`
	Workspaces []string       `json:"workspaces,omitempty"`
}

type BulkCreateOptions struct {
	Overwrite  bool     `json:"overwrite,omitempty"`
	Workspaces []string `json:"workspaces,omitempty"`
}

// UpdateOptions carries the optional knobs of a single update. Workspaces,
// when supplied, replaces the object's workspace assignment.
type UpdateOptions struct {
	Workspaces []string `json:"workspaces,omitempty"`
}

// BulkUpdateItem is one partial update of a bulkUpdate payload.
type BulkUpdateItem struct {
	Type       string         `json:"type"`
	ID         string         `json:"id"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

type BulkUpdateOptions struct{}

type DeleteOptions struct {
	Force bool `json:"force,omitempty"`
}

// BulkResponse is the shared result shape of bulkCreate, bulkUpdate and
// bulkGet. Entries that failed carry a per-item Error instead of attributes.
type BulkResponse struct {
	SavedObjects []Object `json:"saved_objects"`
}

// FindOptions selects and pages objects. Filter is an optional JMESPath
// expression evaluated against each object's attributes.
type FindOptions struct {
	Type       string   `json:"type,omitempty"`
	Search     string   `json:"search,omitempty"`
	Filter     string   `json:"filter,omitempty"`
	Workspaces []string `json:"workspaces,omitempty"`
	Page       int      `json:"page,omitempty"`
	PerPage    int      `json:"per_page,omitempty"`
}

type FindResponse struct {
	SavedObjects []Object `json:"saved_objects"`
	Total        int      `json:"total"`
	Page         int      `json:"page"`
	PerPage      int      `json:"per_page"`
}

type CheckConflictsOptions struct {
	Workspaces []string `json:"workspaces,omitempty"`
}

// CheckConflictError reports one object that cannot be created as requested.
type CheckConflictError struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Error *Error `json:"error"`
}

type CheckConflictsResponse struct {
	Errors []CheckConflictError `json:"errors"`
}

// Store is the CRUD/bulk-CRUD contract of the document store. Backends
// implement it directly; policy wrappers implement it by decorating another
// Store. Single-item mutations fail by returning an error and never reach the
// backend; bulk mutations report per-item failures inside the response while
// the permitted subset still completes in the same call.
type Store interface {
	Create(ctx context.Context, typ string, attributes map[string]any, opts CreateOptions) (*Object, error)
	BulkCreate(ctx context.Context, objs []BulkCreateItem, opts BulkCreateOptions) (*BulkResponse, error)
	Update(ctx context.Context, typ, id string, attributes map[string]any, opts UpdateOptions) (*Object, error)
	BulkUpdate(ctx context.Context, objs []BulkUpdateItem, opts BulkUpdateOptions) (*BulkResponse, error)
	Delete(ctx context.Context, typ, id string, opts DeleteOptions) error
	Get(ctx context.Context, typ, id string) (*Object, error)
	BulkGet(ctx context.Context, refs []Reference) (*BulkResponse, error)
	Find(ctx context.Context, opts FindOptions) (*FindResponse, error)
	CheckConflicts(ctx context.Context, refs []Reference, opts CheckConflictsOptions) (*CheckConflictsResponse, error)
}
