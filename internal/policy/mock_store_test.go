package policy

import (
	"context"

	"dashvault/internal/objects"
)

// mockStore is a recording fake of the document store. Reads are served from
// fixtures keyed by "type:id"; writes echo their input back and count calls
// so tests can assert a denied operation never reached the store.
type mockStore struct {
	fixtures map[string]*objects.Object

	createCalls     int
	lastCreateType  string
	lastCreateAttrs map[string]any
	lastCreateOpts  objects.CreateOptions

	bulkCreateCalls    int
	lastBulkCreate     []objects.BulkCreateItem
	lastBulkCreateOpts objects.BulkCreateOptions

	updateCalls     int
	lastUpdateAttrs map[string]any
	lastUpdateOpts  objects.UpdateOptions

	bulkUpdateCalls int
	lastBulkUpdate  []objects.BulkUpdateItem

	deleteCalls int

	getCalls     int
	bulkGetCalls int
	lastBulkGet  []objects.Reference

	findCalls int

	checkConflictsCalls int
	lastCheckConflicts  []objects.Reference
	checkConflictsResp  *objects.CheckConflictsResponse
}

var _ objects.Store = (*mockStore)(nil)

func newMockStore(fixtures ...*objects.Object) *mockStore {
	m := &mockStore{fixtures: map[string]*objects.Object{}}
	for _, f := range fixtures {
		m.fixtures[f.Type+":"+f.ID] = f
	}
	return m
}

func (m *mockStore) Create(_ context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	m.createCalls++
	m.lastCreateType = typ
	m.lastCreateAttrs = attrs
	m.lastCreateOpts = opts
	return &objects.Object{Type: typ, ID: opts.ID, Attributes: attrs, Workspaces: opts.Workspaces}, nil
}

func (m *mockStore) BulkCreate(_ context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	m.bulkCreateCalls++
	m.lastBulkCreate = objs
	m.lastBulkCreateOpts = opts
	resp := &objects.BulkResponse{}
	for _, o := range objs {
		ws := o.Workspaces
		if ws == nil {
			ws = opts.Workspaces
		}
		resp.SavedObjects = append(resp.SavedObjects, objects.Object{Type: o.Type, ID: o.ID, Attributes: o.Attributes, Workspaces: ws})
	}
	return resp, nil
}

func (m *mockStore) Update(_ context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	m.updateCalls++
	m.lastUpdateAttrs = attrs
	m.lastUpdateOpts = opts
	return &objects.Object{Type: typ, ID: id, Attributes: attrs, Workspaces: opts.Workspaces}, nil
}

func (m *mockStore) BulkUpdate(_ context.Context, objs []objects.BulkUpdateItem, _ objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	m.bulkUpdateCalls++
	m.lastBulkUpdate = objs
	resp := &objects.BulkResponse{}
	for _, o := range objs {
		resp.SavedObjects = append(resp.SavedObjects, objects.Object{Type: o.Type, ID: o.ID, Attributes: o.Attributes})
	}
	return resp, nil
}

func (m *mockStore) Delete(_ context.Context, _, _ string, _ objects.DeleteOptions) error {
	m.deleteCalls++
	return nil
}

func (m *mockStore) Get(_ context.Context, typ, id string) (*objects.Object, error) {
	m.getCalls++
	if o, ok := m.fixtures[typ+":"+id]; ok {
		return o, nil
	}
	return nil, objects.NewNotFound(typ, id)
}

func (m *mockStore) BulkGet(_ context.Context, refs []objects.Reference) (*objects.BulkResponse, error) {
	m.bulkGetCalls++
	m.lastBulkGet = refs
	resp := &objects.BulkResponse{}
	for _, r := range refs {
		if o, ok := m.fixtures[r.Type+":"+r.ID]; ok {
			resp.SavedObjects = append(resp.SavedObjects, *o)
			continue
		}
		resp.SavedObjects = append(resp.SavedObjects, objects.Object{Type: r.Type, ID: r.ID, Error: objects.NewNotFound(r.Type, r.ID)})
	}
	return resp, nil
}

func (m *mockStore) Find(_ context.Context, opts objects.FindOptions) (*objects.FindResponse, error) {
	m.findCalls++
	return &objects.FindResponse{SavedObjects: []objects.Object{}, Page: opts.Page, PerPage: opts.PerPage}, nil
}

func (m *mockStore) CheckConflicts(_ context.Context, refs []objects.Reference, _ objects.CheckConflictsOptions) (*objects.CheckConflictsResponse, error) {
	m.checkConflictsCalls++
	m.lastCheckConflicts = refs
	if m.checkConflictsResp != nil {
		return m.checkConflictsResp, nil
	}
	return &objects.CheckConflictsResponse{Errors: []objects.CheckConflictError{}}, nil
}

// fakeEncrypter makes ciphertext assertions deterministic.
type fakeEncrypter struct {
	calls []string
}

func (f *fakeEncrypter) EncryptAndEncode(_ context.Context, plaintext string) (string, error) {
	f.calls = append(f.calls, plaintext)
	return "enc(" + plaintext + ")", nil
}

func boolPtr(v bool) *bool { return &v }
