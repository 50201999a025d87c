package policy

import (
	"context"

	"dashvault/internal/objects"
)

// DefaultDeniedWorkspaceTypes lists the saved-object types that may never be
// scoped to a workspace: connections are shared platform resources and the
// global configuration singleton is global by definition.
var DefaultDeniedWorkspaceTypes = []string{TypeDataSource, TypeConfig}

// workspaceScope enforces the two workspace concerns on writes: the type
// deny-list, and additive membership conflict detection on overwriting
// creates. A no-conflict overwrite proceeds with the object's existing
// workspace set; membership is never shrunk by an overwrite.
type workspaceScope struct {
	objects.Store
	denied map[string]struct{}
}

// NewWorkspaceScope wraps next with workspace conflict and scope enforcement.
// A nil deniedTypes applies DefaultDeniedWorkspaceTypes.
func NewWorkspaceScope(next objects.Store, deniedTypes []string) objects.Store {
	if deniedTypes == nil {
		deniedTypes = DefaultDeniedWorkspaceTypes
	}
	denied := make(map[string]struct{}, len(deniedTypes))
	for _, t := range deniedTypes {
		denied[t] = struct{}{}
	}
	return &workspaceScope{Store: next, denied: denied}
}

func (w *workspaceScope) isDenied(typ string) bool {
	_, ok := w.denied[typ]
	return ok
}

func deniedEntry(typ string) *objects.Error {
	return objects.NewBadRequest("Saved object type '%s' is not allowed to be scoped to a workspace", typ)
}

// workspaceDiff returns the requested workspaces not already present on the
// stored object.
func workspaceDiff(requested, existing []string) []string {
	have := make(map[string]struct{}, len(existing))
	for _, ws := range existing {
		have[ws] = struct{}{}
	}
	var missing []string
	for _, ws := range requested {
		if _, ok := have[ws]; !ok {
			missing = append(missing, ws)
		}
	}
	return missing
}

func conflictEntry(typ, id string) *objects.Error {
	return objects.NewConflict("Saved object [%s/%s] already exists in other workspaces", typ, id).NotOverwritable()
}

func (w *workspaceScope) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	if len(opts.Workspaces) == 0 {
		return w.Store.Create(ctx, typ, attrs, opts)
	}
	if w.isDenied(typ) {
		return nil, deniedEntry(typ)
	}
	if opts.ID == "" || !opts.Overwrite {
		return w.Store.Create(ctx, typ, attrs, opts)
	}
	current, err := w.Store.Get(ctx, typ, opts.ID)
	if err != nil {
		if objects.IsNotFound(err) {
			// No prior state; the requested workspace set stands.
			return w.Store.Create(ctx, typ, attrs, opts)
		}
		return nil, err
	}
	if len(workspaceDiff(opts.Workspaces, current.Workspaces)) > 0 {
		return nil, conflictEntry(typ, opts.ID)
	}
	opts.Workspaces = current.Workspaces
	return w.Store.Create(ctx, typ, attrs, opts)
}

// requestedWorkspaces resolves the workspace set a bulkCreate item targets:
// an item-level set overrides the call-level one, matching the override the
// store backends apply on write.
func requestedWorkspaces(item objects.BulkCreateItem, opts objects.BulkCreateOptions) []string {
	if len(item.Workspaces) > 0 {
		return item.Workspaces
	}
	return opts.Workspaces
}

func (w *workspaceScope) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	scoped := len(opts.Workspaces) > 0
	for _, o := range objs {
		if len(o.Workspaces) > 0 {
			scoped = true
			break
		}
	}
	if !scoped {
		return w.Store.BulkCreate(ctx, objs, opts)
	}

	var errored []objects.Object
	var remaining []objects.BulkCreateItem
	for _, o := range objs {
		if len(requestedWorkspaces(o, opts)) > 0 && w.isDenied(o.Type) {
			errored = append(errored, objects.Object{Type: o.Type, ID: o.ID, Error: deniedEntry(o.Type)})
			continue
		}
		remaining = append(remaining, o)
	}

	if opts.Overwrite {
		var toCheck []objects.BulkCreateItem
		for _, o := range remaining {
			if len(requestedWorkspaces(o, opts)) > 0 {
				toCheck = append(toCheck, o)
			}
		}
		existing, err := w.lookupExisting(ctx, bulkCreateRefs(toCheck))
		if err != nil {
			return nil, err
		}
		var forwarded []objects.BulkCreateItem
		for _, o := range remaining {
			requested := requestedWorkspaces(o, opts)
			if len(requested) == 0 {
				forwarded = append(forwarded, o)
				continue
			}
			cur, found := existing[refKey(o.Type, o.ID)]
			if !found {
				forwarded = append(forwarded, o)
				continue
			}
			if len(workspaceDiff(requested, cur.Workspaces)) > 0 {
				errored = append(errored, objects.Object{Type: o.Type, ID: o.ID, Error: conflictEntry(o.Type, o.ID)})
				continue
			}
			o.Workspaces = cur.Workspaces
			forwarded = append(forwarded, o)
		}
		remaining = forwarded
	}

	// Errored entries lead, delegated results follow. Note this is the
	// opposite convention from the authorization wrappers.
	resp := emptyBulkResponse()
	if len(remaining) > 0 {
		var err error
		resp, err = w.Store.BulkCreate(ctx, remaining, opts)
		if err != nil {
			return nil, err
		}
	}
	resp.SavedObjects = append(errored, resp.SavedObjects...)
	return resp, nil
}

func (w *workspaceScope) CheckConflicts(ctx context.Context, refs []objects.Reference, opts objects.CheckConflictsOptions) (*objects.CheckConflictsResponse, error) {
	if len(opts.Workspaces) == 0 {
		return w.Store.CheckConflicts(ctx, refs, opts)
	}

	var errored []objects.CheckConflictError
	var remaining []objects.Reference
	for _, r := range refs {
		if w.isDenied(r.Type) {
			errored = append(errored, objects.CheckConflictError{Type: r.Type, ID: r.ID, Error: deniedEntry(r.Type)})
			continue
		}
		remaining = append(remaining, r)
	}

	existing, err := w.lookupExisting(ctx, remaining)
	if err != nil {
		return nil, err
	}
	var forwarded []objects.Reference
	for _, r := range remaining {
		if cur, found := existing[refKey(r.Type, r.ID)]; found {
			if len(workspaceDiff(opts.Workspaces, cur.Workspaces)) > 0 {
				errored = append(errored, objects.CheckConflictError{Type: r.Type, ID: r.ID, Error: conflictEntry(r.Type, r.ID)})
				continue
			}
		}
		forwarded = append(forwarded, r)
	}

	resp := &objects.CheckConflictsResponse{Errors: []objects.CheckConflictError{}}
	if len(forwarded) > 0 {
		resp, err = w.Store.CheckConflicts(ctx, forwarded, opts)
		if err != nil {
			return nil, err
		}
	}
	resp.Errors = append(errored, resp.Errors...)
	return resp, nil
}

// lookupExisting resolves the current workspace membership of every ref with
// an id in one batched bulkGet. Per-entry 404s mean "no prior state" and are
// simply absent from the result.
func (w *workspaceScope) lookupExisting(ctx context.Context, refs []objects.Reference) (map[string]*objects.Object, error) {
	withID := make([]objects.Reference, 0, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			withID = append(withID, r)
		}
	}
	out := map[string]*objects.Object{}
	if len(withID) == 0 {
		return out, nil
	}
	resp, err := w.Store.BulkGet(ctx, withID)
	if err != nil {
		return nil, err
	}
	for i := range resp.SavedObjects {
		o := &resp.SavedObjects[i]
		if o.Error != nil {
			continue
		}
		out[refKey(o.Type, o.ID)] = o
	}
	return out, nil
}

func bulkCreateRefs(objs []objects.BulkCreateItem) []objects.Reference {
	refs := make([]objects.Reference, 0, len(objs))
	for _, o := range objs {
		refs = append(refs, objects.Reference{Type: o.Type, ID: o.ID})
	}
	return refs
}

func refKey(typ, id string) string { return typ + ":" + id }
