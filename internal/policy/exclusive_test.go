package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashvault/internal/objects"
)

func TestWorkspaceExclusiveOutsideWorkspacePassesThrough(t *testing.T) {
	store := newMockStore()
	w := NewWorkspaceExclusive(store, CallerContext{})

	_, err := w.Create(context.Background(), TypeWorkspace, map[string]any{"name": "team-a"}, objects.CreateOptions{})
	require.NoError(t, err)
	err = w.Delete(context.Background(), TypeWorkspace, "ws-1", objects.DeleteOptions{})
	require.NoError(t, err)
}

func TestWorkspaceExclusiveInsideWorkspace(t *testing.T) {
	admin := CallerContext{ActiveWorkspaceID: "ws-1", IsPrivilegedAdmin: boolPtr(true)}
	user := CallerContext{ActiveWorkspaceID: "ws-1", IsPrivilegedAdmin: boolPtr(false)}

	t.Run("create requires admin and overwrite", func(t *testing.T) {
		store := newMockStore()
		w := NewWorkspaceExclusive(store, admin)
		_, err := w.Create(context.Background(), TypeWorkspace, nil, objects.CreateOptions{ID: "ws-1", Overwrite: true})
		require.NoError(t, err)

		_, err = w.Create(context.Background(), TypeWorkspace, nil, objects.CreateOptions{ID: "ws-1"})
		assert.True(t, objects.IsForbidden(err))

		wUser := NewWorkspaceExclusive(store, user)
		_, err = wUser.Create(context.Background(), TypeWorkspace, nil, objects.CreateOptions{ID: "ws-1", Overwrite: true})
		assert.True(t, objects.IsForbidden(err))
	})

	t.Run("update requires admin and workspaces option", func(t *testing.T) {
		store := newMockStore()
		w := NewWorkspaceExclusive(store, admin)
		_, err := w.Update(context.Background(), TypeWorkspace, "ws-1", nil, objects.UpdateOptions{Workspaces: []string{"ws-2"}})
		require.NoError(t, err)

		_, err = w.Update(context.Background(), TypeWorkspace, "ws-1", nil, objects.UpdateOptions{})
		assert.True(t, objects.IsForbidden(err))

		wUser := NewWorkspaceExclusive(store, user)
		_, err = wUser.Update(context.Background(), TypeWorkspace, "ws-1", nil, objects.UpdateOptions{Workspaces: []string{"ws-2"}})
		assert.True(t, objects.IsForbidden(err))
	})

	t.Run("delete always forbidden", func(t *testing.T) {
		store := newMockStore()
		w := NewWorkspaceExclusive(store, admin)
		err := w.Delete(context.Background(), TypeWorkspace, "ws-1", objects.DeleteOptions{})
		assert.True(t, objects.IsForbidden(err))
		assert.Equal(t, 0, store.deleteCalls)
	})

	t.Run("bulk aborts whole call", func(t *testing.T) {
		store := newMockStore()
		w := NewWorkspaceExclusive(store, admin)
		_, err := w.BulkCreate(context.Background(), []objects.BulkCreateItem{
			{Type: "dashboard", ID: "d1"},
			{Type: TypeWorkspace, ID: "ws-2"},
		}, objects.BulkCreateOptions{})
		assert.True(t, objects.IsForbidden(err))
		assert.Equal(t, 0, store.bulkCreateCalls, "no partial success")

		_, err = w.BulkUpdate(context.Background(), []objects.BulkUpdateItem{
			{Type: TypeWorkspace, ID: "ws-2"},
		}, objects.BulkUpdateOptions{})
		assert.True(t, objects.IsForbidden(err))
		assert.Equal(t, 0, store.bulkUpdateCalls)
	})

	t.Run("other types unaffected", func(t *testing.T) {
		store := newMockStore()
		w := NewWorkspaceExclusive(store, user)
		_, err := w.Create(context.Background(), "dashboard", nil, objects.CreateOptions{})
		require.NoError(t, err)
	})
}
