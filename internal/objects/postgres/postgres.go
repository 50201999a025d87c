// Package postgres provides the PostgreSQL-backed Store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmespath/go-jmespath"
	"go.uber.org/zap"

	"dashvault/internal/objects"
)

type Store struct {
	dbPool *pgxpool.Pool
	log    *zap.SugaredLogger
}

func New(dbPool *pgxpool.Pool, log *zap.SugaredLogger) *Store {
	return &Store{dbPool: dbPool, log: log}
}

var _ objects.Store = (*Store)(nil)

// EnsureSchema creates the saved_objects table if it does not already exist.
// Safe to call repeatedly (idempotent).
func EnsureSchema(ctx context.Context, dbPool *pgxpool.Pool) error {
	_, err := dbPool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS saved_objects (
  type text NOT NULL,
  id text NOT NULL,
  attributes jsonb NOT NULL DEFAULT '{}'::jsonb,
  refs jsonb NOT NULL DEFAULT '[]'::jsonb,
  workspaces text[] NOT NULL DEFAULT '{}',
  created_at timestamptz NOT NULL DEFAULT NOW(),
  updated_at timestamptz NOT NULL DEFAULT NOW(),
  PRIMARY KEY (type, id)
);
CREATE INDEX IF NOT EXISTS saved_objects_workspaces_idx ON saved_objects USING GIN (workspaces);
`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func toJSONB(v any) []byte {
	if v == nil {
		return []byte("null")
	}
	b, _ := json.Marshal(v)
	return b
}

func scanObject(typ, id string, attrsJSON, refsJSON []byte, workspaces []string) objects.Object {
	o := objects.Object{Type: typ, ID: id, Workspaces: workspaces}
	_ = json.Unmarshal(attrsJSON, &o.Attributes)
	_ = json.Unmarshal(refsJSON, &o.References)
	return o
}

func (s *Store) Create(ctx context.Context, typ string, attrs map[string]any, opts objects.CreateOptions) (*objects.Object, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	workspaces := opts.Workspaces
	if workspaces == nil {
		workspaces = []string{}
	}
	q := `INSERT INTO saved_objects(type, id, attributes, refs, workspaces) VALUES ($1,$2,$3,$4,$5)`
	if opts.Overwrite {
		q += ` ON CONFLICT (type, id) DO UPDATE SET attributes=EXCLUDED.attributes, refs=EXCLUDED.refs, workspaces=EXCLUDED.workspaces, updated_at=NOW()`
	}
	refs := opts.References
	if refs == nil {
		refs = []objects.Reference{}
	}
	if _, err := s.dbPool.Exec(ctx, q, typ, id, toJSONB(attrs), toJSONB(refs), workspaces); err != nil {
		if isUniqueViolation(err) {
			return nil, objects.NewConflict("Saved object [%s/%s] already exists", typ, id)
		}
		return nil, err
	}
	return &objects.Object{Type: typ, ID: id, Attributes: attrs, Workspaces: opts.Workspaces, References: opts.References}, nil
}

func (s *Store) BulkCreate(ctx context.Context, objs []objects.BulkCreateItem, opts objects.BulkCreateOptions) (*objects.BulkResponse, error) {
	resp := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(objs))}
	for _, item := range objs {
		workspaces := opts.Workspaces
		if item.Workspaces != nil {
			workspaces = item.Workspaces
		}
		created, err := s.Create(ctx, item.Type, item.Attributes, objects.CreateOptions{
			ID:         item.ID,
			Overwrite:  opts.Overwrite,
			Workspaces: workspaces,
			References: item.References,
		})
		if err != nil {
			resp.SavedObjects = append(resp.SavedObjects, objects.Object{
				Type:  item.Type,
				ID:    item.ID,
				Error: objects.AsError(err),
			})
			continue
		}
		resp.SavedObjects = append(resp.SavedObjects, *created)
	}
	return resp, nil
}

func (s *Store) Update(ctx context.Context, typ, id string, attrs map[string]any, opts objects.UpdateOptions) (*objects.Object, error) {
	// jsonb || merges top-level keys; workspaces are replaced only when the
	// option carries a new assignment.
	row := s.dbPool.QueryRow(ctx, `UPDATE saved_objects
		SET attributes = attributes || $3,
		    workspaces = CASE WHEN $4::boolean THEN $5::text[] ELSE workspaces END,
		    updated_at = NOW()
		WHERE type=$1 AND id=$2
		RETURNING attributes, refs, workspaces`,
		typ, id, toJSONB(attrs), len(opts.Workspaces) > 0, opts.Workspaces)
	var attrsJSON, refsJSON []byte
	var workspaces []string
	if err := row.Scan(&attrsJSON, &refsJSON, &workspaces); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, objects.NewNotFound(typ, id)
		}
		return nil, err
	}
	o := scanObject(typ, id, attrsJSON, refsJSON, workspaces)
	return &o, nil
}

func (s *Store) BulkUpdate(ctx context.Context, objs []objects.BulkUpdateItem, _ objects.BulkUpdateOptions) (*objects.BulkResponse, error) {
	resp := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(objs))}
	for _, item := range objs {
		updated, err := s.Update(ctx, item.Type, item.ID, item.Attributes, objects.UpdateOptions{})
		if err != nil {
			resp.SavedObjects = append(resp.SavedObjects, objects.Object{
				Type:  item.Type,
				ID:    item.ID,
				Error: objects.AsError(err),
			})
			continue
		}
		resp.SavedObjects = append(resp.SavedObjects, *updated)
	}
	return resp, nil
}

func (s *Store) Delete(ctx context.Context, typ, id string, _ objects.DeleteOptions) error {
	tag, err := s.dbPool.Exec(ctx, `DELETE FROM saved_objects WHERE type=$1 AND id=$2`, typ, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return objects.NewNotFound(typ, id)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, typ, id string) (*objects.Object, error) {
	row := s.dbPool.QueryRow(ctx, `SELECT attributes, refs, workspaces FROM saved_objects WHERE type=$1 AND id=$2`, typ, id)
	var attrsJSON, refsJSON []byte
	var workspaces []string
	if err := row.Scan(&attrsJSON, &refsJSON, &workspaces); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, objects.NewNotFound(typ, id)
		}
		return nil, err
	}
	o := scanObject(typ, id, attrsJSON, refsJSON, workspaces)
	return &o, nil
}

// BulkGet resolves all refs in one round trip, preserving request order and
// reporting per-ref 404s inline.
func (s *Store) BulkGet(ctx context.Context, refs []objects.Reference) (*objects.BulkResponse, error) {
	types := make([]string, len(refs))
	ids := make([]string, len(refs))
	for i, r := range refs {
		types[i] = r.Type
		ids[i] = r.ID
	}
	rows, err := s.dbPool.Query(ctx, `SELECT r.typ, r.id, s.attributes, s.refs, s.workspaces
		FROM unnest($1::text[], $2::text[]) WITH ORDINALITY AS r(typ, id, ord)
		LEFT JOIN saved_objects s ON s.type = r.typ AND s.id = r.id
		ORDER BY r.ord`, types, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	resp := &objects.BulkResponse{SavedObjects: make([]objects.Object, 0, len(refs))}
	for rows.Next() {
		var typ, id string
		var attrsJSON, refsJSON []byte
		var workspaces []string
		if err := rows.Scan(&typ, &id, &attrsJSON, &refsJSON, &workspaces); err != nil {
			return nil, err
		}
		if attrsJSON == nil {
			resp.SavedObjects = append(resp.SavedObjects, objects.Object{
				Type:  typ,
				ID:    id,
				Error: objects.NewNotFound(typ, id),
			})
			continue
		}
		resp.SavedObjects = append(resp.SavedObjects, scanObject(typ, id, attrsJSON, refsJSON, workspaces))
	}
	return resp, rows.Err()
}

func (s *Store) Find(ctx context.Context, opts objects.FindOptions) (*objects.FindResponse, error) {
	var filter *jmespath.JMESPath
	if opts.Filter != "" {
		var err error
		filter, err = jmespath.Compile(opts.Filter)
		if err != nil {
			return nil, objects.NewBadRequest("Invalid filter expression: %v", err)
		}
	}

	page, perPage := opts.Page, opts.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}

	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if opts.Type != "" {
		where = append(where, "type = "+arg(opts.Type))
	}
	if len(opts.Workspaces) > 0 {
		where = append(where, "workspaces && "+arg(opts.Workspaces)+"::text[]")
	}
	if opts.Search != "" {
		where = append(where, "attributes::text ILIKE "+arg("%"+opts.Search+"%"))
	}
	q := `SELECT type, id, attributes, refs, workspaces FROM saved_objects`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY type, id"
	// The JMESPath filter cannot run in SQL, so paging happens in-process
	// whenever a filter is set.
	if filter == nil {
		q += fmt.Sprintf(" LIMIT %s OFFSET %s", arg(perPage), arg((page-1)*perPage))
	}

	rows, err := s.dbPool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matched []objects.Object
	for rows.Next() {
		var typ, id string
		var attrsJSON, refsJSON []byte
		var workspaces []string
		if err := rows.Scan(&typ, &id, &attrsJSON, &refsJSON, &workspaces); err != nil {
			return nil, err
		}
		o := scanObject(typ, id, attrsJSON, refsJSON, workspaces)
		if filter != nil {
			v, err := filter.Search(o.Attributes)
			if err != nil || !truthy(v) {
				continue
			}
		}
		matched = append(matched, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	resp := &objects.FindResponse{Page: page, PerPage: perPage}
	if filter != nil {
		resp.Total = len(matched)
		start := (page - 1) * perPage
		end := start + perPage
		if start > len(matched) {
			start = len(matched)
		}
		if end > len(matched) {
			end = len(matched)
		}
		resp.SavedObjects = matched[start:end]
		return resp, nil
	}

	resp.SavedObjects = matched
	countQ := `SELECT COUNT(*) FROM saved_objects`
	countArgs := args[:len(args)-2]
	if len(where) > 0 {
		countQ += " WHERE " + strings.Join(where, " AND ")
	}
	if err := s.dbPool.QueryRow(ctx, countQ, countArgs...).Scan(&resp.Total); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *Store) CheckConflicts(ctx context.Context, refs []objects.Reference, _ objects.CheckConflictsOptions) (*objects.CheckConflictsResponse, error) {
	types := make([]string, len(refs))
	ids := make([]string, len(refs))
	for i, r := range refs {
		types[i] = r.Type
		ids[i] = r.ID
	}
	rows, err := s.dbPool.Query(ctx, `SELECT r.typ, r.id
		FROM unnest($1::text[], $2::text[]) WITH ORDINALITY AS r(typ, id, ord)
		JOIN saved_objects s ON s.type = r.typ AND s.id = r.id
		ORDER BY r.ord`, types, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	resp := &objects.CheckConflictsResponse{Errors: []objects.CheckConflictError{}}
	for rows.Next() {
		var typ, id string
		if err := rows.Scan(&typ, &id); err != nil {
			return nil, err
		}
		resp.Errors = append(resp.Errors, objects.CheckConflictError{
			Type:  typ,
			ID:    id,
			Error: objects.NewConflict("Saved object [%s/%s] already exists", typ, id),
		})
	}
	return resp, rows.Err()
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
