package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Postgres keeps every collection in one JSONB table (see store migrations).
type Postgres struct {
	db     *sql.DB
	notify Notifier
}

// NewPostgres wraps an open database. Change signals go through notify so
// that watchers on other instances re-read after a write.
func NewPostgres(db *sql.DB, notify Notifier) *Postgres {
	if notify == nil {
		notify = NewLocalNotifier()
	}
	return &Postgres{db: db, notify: notify}
}

func (p *Postgres) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := p.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return Document{ID: id, Data: raw}, nil
}

func (p *Postgres) Find(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	query := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{collection}
	var clauses []string
	for _, f := range filters {
		v, err := normalize(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		if v == nil {
			clauses = append(clauses, fmt.Sprintf("data->>$%d IS NULL", len(args)+1))
			args = append(args, f.Field)
			continue
		}
		clauses = append(clauses, fmt.Sprintf("data->>$%d = $%d", len(args)+1, len(args)+2))
		args = append(args, f.Field, textOf(v))
	}
	if len(clauses) > 0 {
		query += " AND " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id"

	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Document{}
	for rows.Next() {
		var d Document
		var raw []byte
		if err := rows.Scan(&d.ID, &raw); err != nil {
			return nil, err
		}
		d.Data = raw
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) Create(ctx context.Context, collection, id string, v any) (string, error) {
	id = newID(id)
	body, err := marshalDoc(id, v)
	if err != nil {
		return "", err
	}
	res, err := p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO NOTHING
	`, collection, id, body)
	if err != nil {
		return "", err
	}
	if n, err := res.RowsAffected(); err != nil {
		return "", err
	} else if n == 0 {
		return "", ErrAlreadyExists
	}
	_ = p.notify.Notify(ctx, collection)
	return id, nil
}

func (p *Postgres) Set(ctx context.Context, collection, id string, v any) error {
	body, err := marshalDoc(id, v)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3::jsonb)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()
	`, collection, id, body)
	if err != nil {
		return err
	}
	return p.notify.Notify(ctx, collection)
}

func (p *Postgres) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	norm, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	patch, err := json.Marshal(norm)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		WHERE collection = $1 AND id = $2
	`, collection, id, string(patch))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return p.notify.Notify(ctx, collection)
}

func (p *Postgres) Delete(ctx context.Context, collection, id string) error {
	res, err := p.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`, collection, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return ErrNotFound
	}
	return p.notify.Notify(ctx, collection)
}

func (p *Postgres) Watch(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error) {
	return watchByRequery(ctx, p, p.notify, collection, filters)
}

// Close is a no-op: the *sql.DB belongs to the caller.
func (p *Postgres) Close() error { return nil }

func marshalDoc(id string, v any) (string, error) {
	doc, err := encode(id, v)
	if err != nil {
		return "", err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
