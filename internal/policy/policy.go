// Package policy implements the persistence policy pipeline: composable
// decorators placed in front of an objects.Store that enforce credential
// encryption, role- and mode-based authorization, and workspace conflict and
// scope rules while preserving the store's CRUD/bulk-CRUD contract.
package policy

import "dashvault/internal/objects"

// Saved-object types with dedicated policy handling.
const (
	TypeCredential = "credential"
	TypeDataSource = "data-source"
	TypeWorkspace  = "workspace"
	TypeConfig     = "config"
)

// MessageNoPermission is the caller-visible denial text. It deliberately does
// not leak which policy produced the denial.
const MessageNoPermission = "You have no permission to perform this operation"

// CallerContext is the per-request identity the wrappers decide on. The admin
// flags are tri-state: a nil pointer means the signal was absent from the
// request. Absence is interpreted per wrapper (fail-open in the
// ManageableBy=DashboardAdmin branch, fail-closed elsewhere) and that
// asymmetry is kept on purpose.
type CallerContext struct {
	IsPrivilegedAdmin *bool
	IsResourceAdmin   *bool
	ActiveWorkspaceID string
}

// InsideWorkspace reports whether the caller is operating within a workspace
// context.
func (c CallerContext) InsideWorkspace() bool { return c.ActiveWorkspaceID != "" }

func isTrue(p *bool) bool { return p != nil && *p }

// trueOrUnset treats an absent flag as granted. Only the
// ManageableBy=DashboardAdmin branch uses it.
func trueOrUnset(p *bool) bool { return p == nil || *p }

// cloneAttributes makes a shallow copy so wrappers never mutate caller-owned
// maps.
func cloneAttributes(attrs map[string]any) map[string]any {
	out := make(map[string]any, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

func forbiddenEntry(typ, id string) objects.Object {
	return objects.Object{
		Type:  typ,
		ID:    id,
		Error: objects.NewForbidden(MessageNoPermission).NotOverwritable(),
	}
}

func emptyBulkResponse() *objects.BulkResponse {
	return &objects.BulkResponse{SavedObjects: []objects.Object{}}
}
