package policy

import (
	"context"
	"reflect"

	"dashvault/internal/objects"
)

// EditMode is the binary deployment policy controlling who may mutate
// data-source objects.
type EditMode string

const (
	EditModeAdminOnly EditMode = "admin_only"
	EditModeReadOnly  EditMode = "read_only"
)

// ManageableBy is the tri-state deployment policy controlling who may manage
// data-source objects.
type ManageableBy string

const (
	ManageableByAll            ManageableBy = "all"
	ManageableByNone           ManageableBy = "none"
	ManageableByDashboardAdmin ManageableBy = "dashboard_admin"
)

// Attributes a read-only deployment still lets an admin-mediated workspace
// reassignment carry, provided they are unchanged.
var dataSourceMutableAttributes = []string{"title", "description", "auth"}

// dataSourcePermission is the EditMode variant of the authorization wrapper.
// Reads always pass through; mutations of the protected type are gated by the
// mode and the caller identity.
type dataSourcePermission struct {
	objects.Store
	mode   EditMode
	caller CallerContext
}

// NewDataSourcePermission wraps next with EditMode-based authorization over
// data-source objects.
func NewDataSourcePermission(next objects.Store, mode EditMode, caller CallerContext) objects.Store {
	return &dataSourcePermission{Store: next, mode: mode, caller: caller}
}

// allowed reports whether this caller may mutate the protected type at all.
// An absent privileged-admin flag does not count as admin here.
func (w *dataSourcePermission) allowed() bool {
	return w.mode == EditModeAdminOnly && isTrue(w.caller.IsPrivilegedAdmin)
}

func (w *dataSourcePermission) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	if typ == TypeDataSource && !w.allowed() {
		return nil, objects.NewForbidden(MessageNoPermission)
	}
	return w.Store.Create(ctx, typ, attrs, opts)
}

func (w *dataSourcePermission) Delete(ctx context.Context, typ, id string, opts objects.DeleteOptions) error {
	if typ == TypeDataSource && !w.allowed() {
		return objects.NewForbidden(MessageNoPermission)
	}
	return w.Store.Delete(ctx, typ, id, opts)
}

func (w *dataSourcePermission) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	if typ != TypeDataSource || w.allowed() {
		return w.Store.Update(ctx, typ, id, attrs, opts)
	}
	// Read-only deployments still permit workspace (re)assignment: an update
	// that supplies workspaces and leaves the content attributes untouched
	// relative to the stored object.
	if w.mode == EditModeReadOnly && len(opts.Workspaces) > 0 {
		current, err := w.Store.Get(ctx, typ, id)
		if err != nil {
			return nil, err
		}
		if !attributesChanged(attrs, current.Attributes, dataSourceMutableAttributes) {
			return w.Store.Update(ctx, typ, id, attrs, opts)
		}
	}
	return nil, objects.NewForbidden(MessageNoPermission)
}

func (w *dataSourcePermission) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	if w.allowed() {
		return w.Store.BulkCreate(ctx, objs, opts)
	}
	// Delegated results come first, rejected entries after. That ordering is
	// part of the contract: callers distinguish processed from rejected by
	// position.
	forwarded, rejected := partitionCreates(objs, TypeDataSource)
	resp := emptyBulkResponse()
	if len(forwarded) > 0 {
		var err error
		resp, err = w.Store.BulkCreate(ctx, forwarded, opts)
		if err != nil {
			return nil, err
		}
	}
	resp.SavedObjects = append(resp.SavedObjects, rejected...)
	return resp, nil
}

func (w *dataSourcePermission) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, opts objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	if w.allowed() {
		return w.Store.BulkUpdate(ctx, objs, opts)
	}
	forwarded, rejected := partitionUpdates(objs, TypeDataSource)
	resp := emptyBulkResponse()
	if len(forwarded) > 0 {
		var err error
		resp, err = w.Store.BulkUpdate(ctx, forwarded, opts)
		if err != nil {
			return nil, err
		}
	}
	resp.SavedObjects = append(resp.SavedObjects, rejected...)
	return resp, nil
}

func partitionCreates(objs []objects.BulkCreateItem, protected string) ([]objects.BulkCreateItem, []objects.Object) {
	var forwarded []objects.BulkCreateItem
	var rejected []objects.Object
	for _, o := range objs {
		if o.Type == protected {
			rejected = append(rejected, forbiddenEntry(o.Type, o.ID))
			continue
		}
		forwarded = append(forwarded, o)
	}
	return forwarded, rejected
}

func partitionUpdates(objs []objects.BulkUpdateItem, protected string) ([]objects.BulkUpdateItem, []objects.Object) {
	var forwarded []objects.BulkUpdateItem
	var rejected []objects.Object
	for _, o := range objs {
		if o.Type == protected {
			rejected = append(rejected, forbiddenEntry(o.Type, o.ID))
			continue
		}
		forwarded = append(forwarded, o)
	}
	return forwarded, rejected
}

// attributesChanged reports whether any of the listed keys present in the
// update differ from the stored value. Keys absent from the update are
// unchanged by definition.
func attributesChanged(update, stored map[string]any, keys []string) bool {
	for _, k := range keys {
		v, present := update[k]
		if !present {
			continue
		}
		if !reflect.DeepEqual(v, stored[k]) {
			return true
		}
	}
	return false
}

// dataSourceManageability is the ManageableBy variant. Construction decides
// everything: a caller the policy admits gets the underlying store back with
// no wrapper layer at all; everyone else gets every data-source mutation
// rejected with the same single/bulk semantics as the EditMode variant.
type dataSourceManageability struct {
	objects.Store
}

// NewDataSourceManageability applies the ManageableBy policy for this caller.
// Note the asymmetry with EditMode: in the DashboardAdmin branch an absent
// privileged-admin flag counts as admin.
func NewDataSourceManageability(next objects.Store, policy ManageableBy, caller CallerContext) objects.Store {
	if isTrue(caller.IsResourceAdmin) ||
		policy == ManageableByAll ||
		(policy == ManageableByDashboardAdmin && trueOrUnset(caller.IsPrivilegedAdmin)) {
		return next
	}
	return &dataSourceManageability{Store: next}
}

func (w *dataSourceManageability) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	if typ == TypeDataSource {
		return nil, objects.NewForbidden(MessageNoPermission)
	}
	return w.Store.Create(ctx, typ, attrs, opts)
}

func (w *dataSourceManageability) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	if typ == TypeDataSource {
		return nil, objects.NewForbidden(MessageNoPermission)
	}
	return w.Store.Update(ctx, typ, id, attrs, opts)
}

func (w *dataSourceManageability) Delete(ctx context.Context, typ, id string, opts objects.DeleteOptions) error {
	if typ == TypeDataSource {
		return objects.NewForbidden(MessageNoPermission)
	}
	return w.Store.Delete(ctx, typ, id, opts)
}

func (w *dataSourceManageability) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	forwarded, rejected := partitionCreates(objs, TypeDataSource)
	resp := emptyBulkResponse()
	if len(forwarded) > 0 {
		var err error
		resp, err = w.Store.BulkCreate(ctx, forwarded, opts)
		if err != nil {
			return nil, err
		}
	}
	resp.SavedObjects = append(resp.SavedObjects, rejected...)
	return resp, nil
}

func (w *dataSourceManageability) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, opts objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	forwarded, rejected := partitionUpdates(objs, TypeDataSource)
	resp := emptyBulkResponse()
	if len(forwarded) > 0 {
		var err error
		resp, err = w.Store.BulkUpdate(ctx, forwarded, opts)
		if err != nil {
			return nil, err
		}
	}
	resp.SavedObjects = append(resp.SavedObjects, rejected...)
	return resp, nil
}
