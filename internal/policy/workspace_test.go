package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashvault/internal/objects"
)

func TestWorkspaceScopeDeniedTypeCreate(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, nil)

	_, err := w.Create(context.Background(), TypeDataSource, map[string]any{}, objects.CreateOptions{Workspaces: []string{"ws-1"}})
	assert.True(t, objects.IsBadRequest(err))
	assert.Equal(t, 0, store.createCalls)

	// Without target workspaces the deny-list does not apply.
	_, err = w.Create(context.Background(), TypeDataSource, map[string]any{}, objects.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, store.createCalls)
}

func TestWorkspaceScopeCreateOverwriteSubsetKeepsExistingSet(t *testing.T) {
	stored := &objects.Object{Type: "dashboard", ID: "d1", Workspaces: []string{"ws-1", "ws-2"}}
	store := newMockStore(stored)
	w := NewWorkspaceScope(store, nil)

	_, err := w.Create(context.Background(), "dashboard", map[string]any{}, objects.CreateOptions{
		ID: "d1", Overwrite: true, Workspaces: []string{"ws-1"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.createCalls)
	// Membership is additive: the persisted set wins over the requested one.
	assert.Equal(t, []string{"ws-1", "ws-2"}, store.lastCreateOpts.Workspaces)
}

func TestWorkspaceScopeCreateOverwriteConflict(t *testing.T) {
	stored := &objects.Object{Type: "dashboard", ID: "d1", Workspaces: []string{"ws-2"}}
	store := newMockStore(stored)
	w := NewWorkspaceScope(store, nil)

	_, err := w.Create(context.Background(), "dashboard", map[string]any{}, objects.CreateOptions{
		ID: "d1", Overwrite: true, Workspaces: []string{"ws-1"},
	})
	require.Error(t, err)
	assert.True(t, objects.IsConflict(err))
	se := objects.AsError(err)
	require.NotNil(t, se.Metadata)
	assert.True(t, se.Metadata.IsNotOverwritable)
	assert.Equal(t, 0, store.createCalls, "store create never invoked on conflict")
}

func TestWorkspaceScopeCreateMissingObjectUsesRequestedSet(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, nil)

	_, err := w.Create(context.Background(), "dashboard", map[string]any{}, objects.CreateOptions{
		ID: "new", Overwrite: true, Workspaces: []string{"ws-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-1"}, store.lastCreateOpts.Workspaces)
}

func TestWorkspaceScopeCreateNoOverwriteSkipsLookup(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, nil)

	_, err := w.Create(context.Background(), "dashboard", map[string]any{}, objects.CreateOptions{
		ID: "d1", Workspaces: []string{"ws-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, store.getCalls)
}

func TestWorkspaceScopeBulkCreateOrdering(t *testing.T) {
	stored := &objects.Object{Type: "dashboard", ID: "conflicting", Workspaces: []string{"ws-other"}}
	kept := &objects.Object{Type: "dashboard", ID: "kept", Workspaces: []string{"ws-1", "ws-extra"}}
	store := newMockStore(stored, kept)
	w := NewWorkspaceScope(store, nil)

	objs := []objects.BulkCreateItem{
		{Type: "dashboard", ID: "fresh"},
		{Type: TypeDataSource, ID: "ds1"},
		{Type: "dashboard", ID: "conflicting"},
		{Type: "dashboard", ID: "kept"},
	}
	resp, err := w.BulkCreate(context.Background(), objs, objects.BulkCreateOptions{
		Overwrite: true, Workspaces: []string{"ws-1"},
	})
	require.NoError(t, err)
	require.Len(t, resp.SavedObjects, 4)

	// Errored entries lead (denied type, then conflict, in input order),
	// delegated results follow.
	assert.Equal(t, "ds1", resp.SavedObjects[0].ID)
	require.NotNil(t, resp.SavedObjects[0].Error)
	assert.Equal(t, 400, resp.SavedObjects[0].Error.StatusCode)

	assert.Equal(t, "conflicting", resp.SavedObjects[1].ID)
	require.NotNil(t, resp.SavedObjects[1].Error)
	assert.Equal(t, 409, resp.SavedObjects[1].Error.StatusCode)
	assert.True(t, resp.SavedObjects[1].Error.Metadata.IsNotOverwritable)

	assert.Equal(t, "fresh", resp.SavedObjects[2].ID)
	assert.Equal(t, "kept", resp.SavedObjects[3].ID)

	// One batched lookup, one delegated bulk call.
	assert.Equal(t, 1, store.bulkGetCalls)
	require.Equal(t, 1, store.bulkCreateCalls)
	require.Len(t, store.lastBulkCreate, 2)
	// The surviving existing object is pinned to its persisted set.
	assert.Equal(t, []string{"ws-1", "ws-extra"}, store.lastBulkCreate[1].Workspaces)
	assert.Nil(t, store.lastBulkCreate[0].Workspaces)
}

func TestWorkspaceScopeBulkCreateItemWorkspacesDeniedType(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, nil)

	// Item-level workspaces trigger the deny-list even without a
	// call-level set.
	objs := []objects.BulkCreateItem{
		{Type: TypeDataSource, ID: "ds1", Workspaces: []string{"ws-1"}},
		{Type: "dashboard", ID: "d1"},
	}
	resp, err := w.BulkCreate(context.Background(), objs, objects.BulkCreateOptions{})
	require.NoError(t, err)
	require.Len(t, resp.SavedObjects, 2)

	assert.Equal(t, "ds1", resp.SavedObjects[0].ID)
	require.NotNil(t, resp.SavedObjects[0].Error)
	assert.Equal(t, 400, resp.SavedObjects[0].Error.StatusCode)

	assert.Equal(t, "d1", resp.SavedObjects[1].ID)
	require.Len(t, store.lastBulkCreate, 1)
	assert.Equal(t, "d1", store.lastBulkCreate[0].ID)
}

func TestWorkspaceScopeBulkCreateItemWorkspacesOverwriteConflict(t *testing.T) {
	stored := &objects.Object{Type: "dashboard", ID: "d1", Workspaces: []string{"ws-a", "ws-b"}}
	store := newMockStore(stored)
	w := NewWorkspaceScope(store, nil)

	objs := []objects.BulkCreateItem{
		{Type: "dashboard", ID: "d1", Workspaces: []string{"ws-new"}},
	}
	resp, err := w.BulkCreate(context.Background(), objs, objects.BulkCreateOptions{Overwrite: true})
	require.NoError(t, err)
	require.Len(t, resp.SavedObjects, 1)
	require.NotNil(t, resp.SavedObjects[0].Error)
	assert.Equal(t, 409, resp.SavedObjects[0].Error.StatusCode)
	assert.True(t, resp.SavedObjects[0].Error.Metadata.IsNotOverwritable)
	assert.Equal(t, 0, store.bulkCreateCalls, "conflicting overwrite never reaches the store")
}

func TestWorkspaceScopeBulkCreateItemWorkspacesSubsetKeepsExistingSet(t *testing.T) {
	stored := &objects.Object{Type: "dashboard", ID: "d1", Workspaces: []string{"ws-a", "ws-b"}}
	store := newMockStore(stored)
	w := NewWorkspaceScope(store, nil)

	objs := []objects.BulkCreateItem{
		{Type: "dashboard", ID: "d1", Workspaces: []string{"ws-a"}},
	}
	_, err := w.BulkCreate(context.Background(), objs, objects.BulkCreateOptions{Overwrite: true})
	require.NoError(t, err)
	require.Len(t, store.lastBulkCreate, 1)
	assert.Equal(t, []string{"ws-a", "ws-b"}, store.lastBulkCreate[0].Workspaces)
}

func TestWorkspaceScopeBulkCreateNoWorkspacesPassesThrough(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, nil)

	objs := []objects.BulkCreateItem{{Type: TypeDataSource, ID: "ds1"}}
	resp, err := w.BulkCreate(context.Background(), objs, objects.BulkCreateOptions{Overwrite: true})
	require.NoError(t, err)
	assert.Nil(t, resp.SavedObjects[0].Error)
	assert.Equal(t, 0, store.bulkGetCalls)
}

func TestWorkspaceScopeCheckConflicts(t *testing.T) {
	stored := &objects.Object{Type: "dashboard", ID: "baz", Workspaces: []string{"baz"}}
	store := newMockStore(stored)
	w := NewWorkspaceScope(store, nil)

	refs := []objects.Reference{
		{Type: "dashboard", ID: "baz"},
		{Type: "dashboard", ID: "fresh"},
	}
	resp, err := w.CheckConflicts(context.Background(), refs, objects.CheckConflictsOptions{Workspaces: []string{"foo"}})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "baz", resp.Errors[0].ID)
	assert.Equal(t, 409, resp.Errors[0].Error.StatusCode)
	assert.True(t, resp.Errors[0].Error.Metadata.IsNotOverwritable)

	// The conflicted ref is excluded from the delegated check's input.
	require.Equal(t, 1, store.checkConflictsCalls)
	require.Len(t, store.lastCheckConflicts, 1)
	assert.Equal(t, "fresh", store.lastCheckConflicts[0].ID)
}

func TestWorkspaceScopeCheckConflictsDeniedType(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, nil)

	refs := []objects.Reference{
		{Type: TypeConfig, ID: "global"},
		{Type: "dashboard", ID: "d1"},
	}
	resp, err := w.CheckConflicts(context.Background(), refs, objects.CheckConflictsOptions{Workspaces: []string{"ws-1"}})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, TypeConfig, resp.Errors[0].Type)
	assert.Equal(t, 400, resp.Errors[0].Error.StatusCode)
	require.Len(t, store.lastCheckConflicts, 1)
	assert.Equal(t, "d1", store.lastCheckConflicts[0].ID)
}

func TestWorkspaceScopeCustomDenyList(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceScope(store, []string{"secret-type"})

	// data-source is allowed under a custom deny-list.
	_, err := w.Create(context.Background(), TypeDataSource, map[string]any{}, objects.CreateOptions{Workspaces: []string{"ws-1"}})
	require.NoError(t, err)

	_, err = w.Create(context.Background(), "secret-type", map[string]any{}, objects.CreateOptions{Workspaces: []string{"ws-1"}})
	assert.True(t, objects.IsBadRequest(err))
}
