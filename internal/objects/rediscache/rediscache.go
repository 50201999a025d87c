// Package rediscache decorates a Store with a Redis read-through cache for
// single and bulk gets. Cache failures degrade to the backing store and are
// logged, never surfaced.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"dashvault/internal/objects"
)

const keyPrefix = "dashvault:so:"

type Store struct {
	objects.Store
	rdb *redis.Client
	ttl time.Duration
	log *zap.SugaredLogger
}

func New(next objects.Store, rdb *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *Store {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Store{Store: next, rdb: rdb, ttl: ttl, log: log}
}

var _ objects.Store = (*Store)(nil)

func cacheKey(typ, id string) string { return keyPrefix + typ + ":" + id }

func (s *Store) cachePut(ctx context.Context, o *objects.Object) {
	b, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey(o.Type, o.ID), b, s.ttl).Err(); err != nil {
		s.log.Warnw("cache set failed", "type", o.Type, "id", o.ID, "err", err)
	}
}

func (s *Store) cacheDrop(ctx context.Context, typ, id string) {
	if err := s.rdb.Del(ctx, cacheKey(typ, id)).Err(); err != nil {
		s.log.Warnw("cache invalidation failed", "type", typ, "id", id, "err", err)
	}
}

func (s *Store) Get(ctx context.Context, typ, id string) (*objects.Object, error) {
	b, err := s.rdb.Get(ctx, cacheKey(typ, id)).Bytes()
	if err == nil {
		var o objects.Object
		if json.Unmarshal(b, &o) == nil {
			return &o, nil
		}
	} else if err != redis.Nil {
		s.log.Warnw("cache get failed", "type", typ, "id", id, "err", err)
	}
	o, err := s.Store.Get(ctx, typ, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, o)
	return o, nil
}

// BulkGet serves what it can from one MGET and fetches the remainder from the
// backing store in a single delegated call.
func (s *Store) BulkGet(ctx context.Context, refs []objects.Reference) (*objects.BulkResponse, error) {
	keys := make([]string, len(refs))
	for i, r := range refs {
		keys[i] = cacheKey(r.Type, r.ID)
	}
	cached := make([]*objects.Object, len(refs))
	if vals, err := s.rdb.MGet(ctx, keys...).Result(); err == nil {
		for i, v := range vals {
			raw, ok := v.(string)
			if !ok {
				continue
			}
			var o objects.Object
			if json.Unmarshal([]byte(raw), &o) == nil {
				cached[i] = &o
			}
		}
	} else {
		s.log.Warnw("cache mget failed", "err", err)
	}

	var missing []objects.Reference
	for i, r := range refs {
		if cached[i] == nil {
			missing = append(missing, r)
		}
	}
	fetched := map[string]*objects.Object{}
	if len(missing) > 0 {
		resp, err := s.Store.BulkGet(ctx, missing)
		if err != nil {
			return nil, err
		}
		for i := range resp.SavedObjects {
			o := &resp.SavedObjects[i]
			fetched[o.Type+":"+o.ID] = o
			if o.Error == nil {
				s.cachePut(ctx, o)
			}
		}
	}

	out := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(refs))}
	for i, r := range refs {
		if cached[i] != nil {
			out.SavedObjects = append(out.SavedObjects, *cached[i])
			continue
		}
		if o, ok := fetched[r.Type+":"+r.ID]; ok {
			out.SavedObjects = append(out.SavedObjects, *o)
			continue
		}
		out.SavedObjects = append(out.SavedObjects, objects.Object{Type: r.Type, ID: r.ID, Error: objects.NewNotFound(r.Type, r.ID)})
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	o, err := s.Store.Create(ctx, typ, attrs, opts)
	if err != nil {
		return nil, err
	}
	s.cacheDrop(ctx, typ, o.ID)
	return o, nil
}

func (s *Store) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	resp, err := s.Store.BulkCreate(ctx, objs, opts)
	if err != nil {
		return nil, err
	}
	for _, o := range resp.SavedObjects {
		if o.Error == nil {
			s.cacheDrop(ctx, o.Type, o.ID)
		}
	}
	return resp, nil
}

func (s *Store) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	o, err := s.Store.Update(ctx, typ, id, attrs, opts)
	if err != nil {
		return nil, err
	}
	s.cacheDrop(ctx, typ, id)
	return o, nil
}

func (s *Store) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, opts objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	resp, err := s.Store.BulkUpdate(ctx, objs, opts)
	if err != nil {
		return nil, err
	}
	for _, o := range resp.SavedObjects {
		if o.Error == nil {
			s.cacheDrop(ctx, o.Type, o.ID)
		}
	}
	return resp, nil
}

func (s *Store) Delete(ctx context.Context, typ, id string, opts objects.DeleteOptions) error {
	if err := s.Store.Delete(ctx, typ, id, opts); err != nil {
		return err
	}
	s.cacheDrop(ctx, typ, id)
	return nil
}
