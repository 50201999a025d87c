package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dashvault/internal/objects"
)

func TestCreateGetDelete(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.Create(ctx, "dashboard", map[string]any{"title": "Traffic"}, objects.CreateOptions{
		ID: "d1", Workspaces: []string{"ws-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, "d1", created.ID)

	got, err := s.Get(ctx, "dashboard", "d1")
	require.NoError(t, err)
	assert.Equal(t, "Traffic", got.Attributes["title"])
	assert.Equal(t, []string{"ws-1"}, got.Workspaces)

	require.NoError(t, s.Delete(ctx, "dashboard", "d1", objects.DeleteOptions{}))
	_, err = s.Get(ctx, "dashboard", "d1")
	assert.True(t, objects.IsNotFound(err))
	assert.True(t, objects.IsNotFound(s.Delete(ctx, "dashboard", "d1", objects.DeleteOptions{})))
}

func TestCreateGeneratesID(t *testing.T) {
	s := New()
	created, err := s.Create(context.Background(), "dashboard", nil, objects.CreateOptions{})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
}

func TestCreateConflictAndOverwrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, "dashboard", map[string]any{"v": 1}, objects.CreateOptions{ID: "d1"})
	require.NoError(t, err)

	_, err = s.Create(ctx, "dashboard", map[string]any{"v": 2}, objects.CreateOptions{ID: "d1"})
	assert.True(t, objects.IsConflict(err))

	_, err = s.Create(ctx, "dashboard", map[string]any{"v": 2}, objects.CreateOptions{ID: "d1", Overwrite: true})
	require.NoError(t, err)
	got, err := s.Get(ctx, "dashboard", "d1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Attributes["v"])
}

func TestUpdateShallowMerge(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, "dashboard", map[string]any{"title": "Old", "color": "red"}, objects.CreateOptions{
		ID: "d1", Workspaces: []string{"ws-1"},
	})
	require.NoError(t, err)

	updated, err := s.Update(ctx, "dashboard", "d1", map[string]any{"title": "New"}, objects.UpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "New", updated.Attributes["title"])
	assert.Equal(t, "red", updated.Attributes["color"])
	assert.Equal(t, []string{"ws-1"}, updated.Workspaces, "workspaces untouched without the option")

	updated, err = s.Update(ctx, "dashboard", "d1", nil, objects.UpdateOptions{Workspaces: []string{"ws-2"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ws-2"}, updated.Workspaces)

	_, err = s.Update(ctx, "dashboard", "missing", map[string]any{}, objects.UpdateOptions{})
	assert.True(t, objects.IsNotFound(err))
}

func TestBulkCreatePerItemWorkspacesOverride(t *testing.T) {
	s := New()
	ctx := context.Background()
	resp, err := s.BulkCreate(ctx, []objects.BulkCreateItem{
		{Type: "dashboard", ID: "a"},
		{Type: "dashboard", ID: "b", Workspaces: []string{"ws-pinned"}},
	}, objects.BulkCreateOptions{Workspaces: []string{"ws-1"}})
	require.NoError(t, err)
	require.Len(t, resp.SavedObjects, 2)
	assert.Equal(t, []string{"ws-1"}, resp.SavedObjects[0].Workspaces)
	assert.Equal(t, []string{"ws-pinned"}, resp.SavedObjects[1].Workspaces)
}

func TestBulkCreatePartialConflict(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, "dashboard", nil, objects.CreateOptions{ID: "taken"})
	require.NoError(t, err)

	resp, err := s.BulkCreate(ctx, []objects.BulkCreateItem{
		{Type: "dashboard", ID: "taken"},
		{Type: "dashboard", ID: "free"},
	}, objects.BulkCreateOptions{})
	require.NoError(t, err)
	require.Len(t, resp.SavedObjects, 2)
	require.NotNil(t, resp.SavedObjects[0].Error)
	assert.Equal(t, 409, resp.SavedObjects[0].Error.StatusCode)
	assert.Nil(t, resp.SavedObjects[1].Error)
}

func TestBulkUpdatePartialNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, "dashboard", map[string]any{"title": "Old"}, objects.CreateOptions{ID: "d1"})
	require.NoError(t, err)

	resp, err := s.BulkUpdate(ctx, []objects.BulkUpdateItem{
		{Type: "dashboard", ID: "d1", Attributes: map[string]any{"title": "New"}},
		{Type: "dashboard", ID: "missing", Attributes: map[string]any{"title": "X"}},
	}, objects.BulkUpdateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "New", resp.SavedObjects[0].Attributes["title"])
	require.NotNil(t, resp.SavedObjects[1].Error)
	assert.Equal(t, 404, resp.SavedObjects[1].Error.StatusCode)
}

func TestBulkGetMixed(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, "dashboard", nil, objects.CreateOptions{ID: "d1"})
	require.NoError(t, err)

	resp, err := s.BulkGet(ctx, []objects.Reference{
		{Type: "dashboard", ID: "d1"},
		{Type: "dashboard", ID: "nope"},
	})
	require.NoError(t, err)
	assert.Nil(t, resp.SavedObjects[0].Error)
	require.NotNil(t, resp.SavedObjects[1].Error)
	assert.Equal(t, 404, resp.SavedObjects[1].Error.StatusCode)
}

func TestFind(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed := []struct {
		typ, id string
		attrs   map[string]any
		ws      []string
	}{
		{"dashboard", "d1", map[string]any{"title": "Sales Overview", "stars": 3.0}, []string{"ws-1"}},
		{"dashboard", "d2", map[string]any{"title": "Traffic", "stars": 5.0}, []string{"ws-2"}},
		{"visualization", "v1", map[string]any{"title": "Sales chart"}, []string{"ws-1"}},
	}
	for _, o := range seed {
		_, err := s.Create(ctx, o.typ, o.attrs, objects.CreateOptions{ID: o.id, Workspaces: o.ws})
		require.NoError(t, err)
	}

	t.Run("by type", func(t *testing.T) {
		resp, err := s.Find(ctx, objects.FindOptions{Type: "dashboard"})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("by workspace", func(t *testing.T) {
		resp, err := s.Find(ctx, objects.FindOptions{Workspaces: []string{"ws-1"}})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("search is case-insensitive substring", func(t *testing.T) {
		resp, err := s.Find(ctx, objects.FindOptions{Search: "sales"})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Total)
	})

	t.Run("jmespath filter", func(t *testing.T) {
		resp, err := s.Find(ctx, objects.FindOptions{Type: "dashboard", Filter: "stars > `4`"})
		require.NoError(t, err)
		require.Equal(t, 1, resp.Total)
		assert.Equal(t, "d2", resp.SavedObjects[0].ID)
	})

	t.Run("invalid filter", func(t *testing.T) {
		_, err := s.Find(ctx, objects.FindOptions{Filter: "stars >"})
		assert.True(t, objects.IsBadRequest(err))
	})

	t.Run("pagination", func(t *testing.T) {
		resp, err := s.Find(ctx, objects.FindOptions{Page: 1, PerPage: 2})
		require.NoError(t, err)
		assert.Equal(t, 3, resp.Total)
		assert.Len(t, resp.SavedObjects, 2)

		resp, err = s.Find(ctx, objects.FindOptions{Page: 2, PerPage: 2})
		require.NoError(t, err)
		assert.Len(t, resp.SavedObjects, 1)
	})
}

func TestCheckConflicts(t *testing.T) {
	s := New()
	ctx := context.Background()
	_, err := s.Create(ctx, "dashboard", nil, objects.CreateOptions{ID: "taken"})
	require.NoError(t, err)

	resp, err := s.CheckConflicts(ctx, []objects.Reference{
		{Type: "dashboard", ID: "taken"},
		{Type: "dashboard", ID: "free"},
	}, objects.CheckConflictsOptions{})
	require.NoError(t, err)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "taken", resp.Errors[0].ID)
	assert.Equal(t, 409, resp.Errors[0].Error.StatusCode)
}

func TestStoredStateIsolatedFromCaller(t *testing.T) {
	s := New()
	ctx := context.Background()
	attrs := map[string]any{"title": "Original"}
	_, err := s.Create(ctx, "dashboard", attrs, objects.CreateOptions{ID: "d1"})
	require.NoError(t, err)

	attrs["title"] = "Mutated"
	got, err := s.Get(ctx, "dashboard", "d1")
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Attributes["title"])

	got.Attributes["title"] = "MutatedAgain"
	again, err := s.Get(ctx, "dashboard", "d1")
	require.NoError(t, err)
	assert.Equal(t, "Original", again.Attributes["title"])
}
