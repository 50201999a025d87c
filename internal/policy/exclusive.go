package policy

import (
	"context"

	"dashvault/internal/objects"
)

// workspaceExclusive guards the "workspace" type itself while the caller is
// operating inside a workspace context. The only mutations that survive are
// admin-mediated workspace (re)assignments; everything else is rejected
// outright, and bulk calls abort as a whole when even one workspace object is
// present. Outside a workspace context the wrapper is inert.
type workspaceExclusive struct {
	objects.Store
	caller CallerContext
}

// NewWorkspaceExclusive wraps next with in-workspace gating of workspace
// objects.
func NewWorkspaceExclusive(next objects.Store, caller CallerContext) objects.Store {
	return &workspaceExclusive{Store: next, caller: caller}
}

func (w *workspaceExclusive) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	if typ == TypeWorkspace && w.caller.InsideWorkspace() {
		// An admin overwriting an existing workspace object is how a record
		// is unassigned from a workspace; anything else is off limits here.
		if !isTrue(w.caller.IsPrivilegedAdmin) || !opts.Overwrite {
			return nil, objects.NewForbidden(MessageNoPermission)
		}
	}
	return w.Store.Create(ctx, typ, attrs, opts)
}

func (w *workspaceExclusive) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	if typ == TypeWorkspace && w.caller.InsideWorkspace() {
		if len(opts.Workspaces) == 0 || !isTrue(w.caller.IsPrivilegedAdmin) {
			return nil, objects.NewForbidden(MessageNoPermission)
		}
	}
	return w.Store.Update(ctx, typ, id, attrs, opts)
}

func (w *workspaceExclusive) Delete(ctx context.Context, typ, id string, opts objects.DeleteOptions) error {
	if typ == TypeWorkspace && w.caller.InsideWorkspace() {
		return objects.NewForbidden(MessageNoPermission)
	}
	return w.Store.Delete(ctx, typ, id, opts)
}

func (w *workspaceExclusive) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	// No partial success: one workspace object aborts the whole batch before
	// the store is touched.
	if w.caller.InsideWorkspace() {
		for _, o := range objs {
			if o.Type == TypeWorkspace {
				return nil, objects.NewForbidden(MessageNoPermission)
			}
		}
	}
	return w.Store.BulkCreate(ctx, objs, opts)
}

func (w *workspaceExclusive) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, opts objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	if w.caller.InsideWorkspace() {
		for _, o := range objs {
			if o.Type == TypeWorkspace {
				return nil, objects.NewForbidden(MessageNoPermission)
			}
		}
	}
	return w.Store.BulkUpdate(ctx, objs, opts)
}
