// Package memory provides a map-backed Store for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jmespath/go-jmespath"

	"dashvault/internal/objects"
)

type Store struct {
	mu   sync.RWMutex
	data map[string]*objects.Object // key: type:id
}

func New() *Store {
	return &Store{data: map[string]*objects.Object{}}
}

var _ objects.Store = (*Store)(nil)

func key(typ, id string) string { return typ + ":" + id }

// clone keeps stored state isolated from caller-held maps and slices.
func clone(o *objects.Object) *objects.Object {
	c := &objects.Object{Type: o.Type, ID: o.ID}
	if o.Attributes != nil {
		c.Attributes = make(map[string]any, len(o.Attributes))
		for k, v := range o.Attributes {
			c.Attributes[k] = v
		}
	}
	c.Workspaces = append([]string(nil), o.Workspaces...)
	c.References = append([]objects.Reference(nil), o.References...)
	return c
}

func (s *Store) Create(_ context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key(typ, id)]; exists && !opts.Overwrite {
		return nil, objects.NewConflict("Saved object [%s/%s] already exists", typ, id)
	}
	o := clone(&objects.Object{
		Type:       typ,
		ID:         id,
		Attributes: attrs,
		Workspaces: opts.Workspaces,
		References: opts.References,
	})
	s.data[key(typ, id)] = o
	return clone(o), nil
}

func (s *Store) BulkCreate(_ context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(objs))}
	for _, item := range objs {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		if _, exists := s.data[key(item.Type, id)]; exists && !opts.Overwrite {
			resp.SavedObjects = append(resp.SavedObjects, objects.Object{
				Type:  item.Type,
				ID:    id,
				Error: objects.NewConflict("Saved object [%s/%s] already exists", item.Type, id),
			})
			continue
		}
		workspaces := opts.Workspaces
		if item.Workspaces != nil {
			workspaces = item.Workspaces
		}
		o := clone(&objects.Object{
			Type:       item.Type,
			ID:         id,
			Attributes: item.Attributes,
			Workspaces: workspaces,
			References: item.References,
		})
		s.data[key(item.Type, id)] = o
		resp.SavedObjects = append(resp.SavedObjects, *clone(o))
	}
	return resp, nil
}

func (s *Store) Update(_ context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.data[key(typ, id)]
	if !ok {
		return nil, objects.NewNotFound(typ, id)
	}
	merged := clone(cur)
	if merged.Attributes == nil && len(attrs) > 0 {
		merged.Attributes = map[string]any{}
	}
	for k, v := range attrs {
		merged.Attributes[k] = v
	}
	if len(opts.Workspaces) > 0 {
		merged.Workspaces = append([]string(nil), opts.Workspaces...)
	}
	s.data[key(typ, id)] = merged
	return clone(merged), nil
}

func (s *Store) BulkUpdate(_ context.Context, objs []objects.BulkUpdateItem, _ objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(objs))}
	for _, item := range objs {
		cur, ok := s.data[key(item.Type, item.ID)]
		if !ok {
			resp.SavedObjects = append(resp.SavedObjects, objects.Object{
				Type:  item.Type,
				ID:    item.ID,
				Error: objects.NewNotFound(item.Type, item.ID),
			})
			continue
		}
		merged := clone(cur)
		if merged.Attributes == nil && len(item.Attributes) > 0 {
			merged.Attributes = map[string]any{}
		}
		for k, v := range item.Attributes {
			merged.Attributes[k] = v
		}
		s.data[key(item.Type, item.ID)] = merged
		resp.SavedObjects = append(resp.SavedObjects, *clone(merged))
	}
	return resp, nil
}

func (s *Store) Delete(_ context.Context, typ, id string, _ objects.DeleteOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key(typ, id)]; !ok {
		return objects.NewNotFound(typ, id)
	}
	delete(s.data, key(typ, id))
	return nil
}

func (s *Store) Get(_ context.Context, typ, id string) (*objects.Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.data[key(typ, id)]
	if !ok {
		return nil, objects.NewNotFound(typ, id)
	}
	return clone(o), nil
}

func (s *Store) BulkGet(_ context.Context, refs []objects.Reference) (*objects.BulkResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(refs))}
	for _, r := range refs {
		o, ok := s.data[key(r.Type, r.ID)]
		if !ok {
			resp.SavedObjects = append(resp.SavedObjects, objects.Object{
				Type:  r.Type,
				ID:    r.ID,
				Error: objects.NewNotFound(r.Type, r.ID),
			})
			continue
		}
		resp.SavedObjects = append(resp.SavedObjects, *clone(o))
	}
	return resp, nil
}

func (s *Store) Find(_ context.Context, opts objects.FindOptions) (*objects.FindResponse, error) {
	var filter *jmespath.JMESPath
	if opts.Filter != "" {
		var err error
		filter, err = jmespath.Compile(opts.Filter)
		if err != nil {
			return nil, objects.NewBadRequest("Invalid filter expression: %v", err)
		}
	}

	s.mu.RLock()
	var matched []*objects.Object
	for _, o := range s.data {
		if opts.Type != "" && o.Type != opts.Type {
			continue
		}
		if len(opts.Workspaces) > 0 && !intersects(o.Workspaces, opts.Workspaces) {
			continue
		}
		if opts.Search != "" && !matchesSearch(o.Attributes, opts.Search) {
			continue
		}
		if filter != nil {
			v, err := filter.Search(o.Attributes)
			if err != nil || !truthy(v) {
				continue
			}
		}
		matched = append(matched, o)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Type != matched[j].Type {
			return matched[i].Type < matched[j].Type
		}
		return matched[i].ID < matched[j].ID
	})

	page, perPage := opts.Page, opts.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	start := (page - 1) * perPage
	end := start + perPage
	if start > len(matched) {
		start = len(matched)
	}
	if end > len(matched) {
		end = len(matched)
	}

	resp := &objects.FindResponse{
		SavedObjects: make([]objects.Object, 0, end-start),
		Total:        len(matched),
		Page:         page,
		PerPage:      perPage,
	}
	for _, o := range matched[start:end] {
		resp.SavedObjects = append(resp.SavedObjects, *clone(o))
	}
	return resp, nil
}

func (s *Store) CheckConflicts(_ context.Context, refs []objects.Reference, _ objects.CheckConflictsOptions) (*objects.CheckConflictsResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp := &objects.CheckConflictsResponse{Errors: []objects.CheckConflictError{}}
	for _, r := range refs {
		if _, ok := s.data[key(r.Type, r.ID)]; ok {
			resp.Errors = append(resp.Errors, objects.CheckConflictError{
				Type:  r.Type,
				ID:    r.ID,
				Error: objects.NewConflict("Saved object [%s/%s] already exists", r.Type, r.ID),
			})
		}
	}
	return resp, nil
}

func intersects(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// matchesSearch does a case-insensitive substring scan over string attribute
// values, one level deep.
func matchesSearch(attrs map[string]any, term string) bool {
	term = strings.ToLower(term)
	for _, v := range attrs {
		if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), term) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	default:
		return true
	}
}
