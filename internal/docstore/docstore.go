package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
)

// Collection names shared by every backend.
const (
	Events          = "events"
	Registrations   = "registrations"
	Users           = "users"
	Organizers      = "organizers"
	Admins          = "admin"
	Feedback        = "feedback"
	Scores          = "hackathonScores"
	QuizSubmissions = "quizSubmissions"
	Reports         = "reports"
)

var (
	ErrNotFound      = errors.New("docstore: document not found")
	ErrAlreadyExists = errors.New("docstore: document already exists")
)

// Filter is an equality condition on a top-level field.
type Filter struct {
	Field string
	Value any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Document is a stored JSON object together with its id.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into v.
func (d Document) Decode(v any) error {
	return json.Unmarshal(d.Data, v)
}

// Snapshot is the full result set of a watched query at one point in time.
// Seq increases by one for every snapshot delivered on the same watch.
type Snapshot struct {
	Seq  uint64
	Docs []Document
}

// Store is the document database used by every service.
//
// Documents are JSON objects; the id is also written into the "id" field.
// Find returns documents ordered by id. Watch delivers an initial snapshot
// followed by a fresh one after every change to the collection; the channel
// is closed when ctx ends.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Find(ctx context.Context, collection string, filters ...Filter) ([]Document, error)
	// Create inserts v under id (a new uuid when empty) and fails with
	// ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, collection, id string, v any) (string, error)
	Set(ctx context.Context, collection, id string, v any) error
	// Update merges fields into an existing document. A nil value stores null.
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Watch(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error)
	Close() error
}

// Load fetches one document and decodes it into T.
func Load[T any](ctx context.Context, s Store, collection, id string) (T, error) {
	var out T
	doc, err := s.Get(ctx, collection, id)
	if err != nil {
		return out, err
	}
	if err := doc.Decode(&out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return out, nil
}

// FindAll runs a filtered query and decodes every match into T.
func FindAll[T any](ctx context.Context, s Store, collection string, filters ...Filter) ([]T, error) {
	docs, err := s.Find(ctx, collection, filters...)
	if err != nil {
		return nil, err
	}
	return DecodeAll[T](docs)
}

// DecodeAll decodes a document slice, typically taken from a Snapshot.
func DecodeAll[T any](docs []Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, d := range docs {
		var v T
		if err := d.Decode(&v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", d.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func newID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

// encode turns any JSON-serialisable value into a generic object and stamps the id.
func encode(id string, v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	m := map[string]any{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("document must be a JSON object: %w", err)
	}
	m["id"] = id
	return m, nil
}

// normalize runs a value through JSON so typed strings, times and structs
// compare the same way they are stored.
func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func normalizeFields(fields map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if k == "id" {
			continue
		}
		n, err := normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", k, err)
		}
		out[k] = n
	}
	return out, nil
}

// textOf renders a normalized scalar the way Postgres' ->> operator does.
func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		raw, _ := json.Marshal(t)
		return string(raw)
	}
}

func matches(doc map[string]any, filters []Filter) (bool, error) {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		got, ok := doc[f.Field]
		if !ok || got == nil {
			if want != nil {
				return false, nil
			}
			continue
		}
		if textOf(got) != textOf(want) {
			return false, nil
		}
	}
	return true, nil
}
