package docstore

import (
	"context"
	"encoding/json"
	"errors"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore is the managed backend. Watches use native snapshot listeners.
// Set FIRESTORE_EMULATOR_HOST to run against the local emulator.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore opens a client for projectID. credentialsFile may be empty to
// use application default credentials.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, err
	}
	return &Firestore{client: client}, nil
}

func (f *Firestore) Get(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return Document{}, mapFirestoreErr(err)
	}
	return snapshotDocument(snap)
}

func (f *Firestore) Find(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	q, err := f.query(collection, filters)
	if err != nil {
		return nil, err
	}
	iter := q.Documents(ctx)
	defer iter.Stop()
	out := []Document{}
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		d, err := snapshotDocument(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *Firestore) Create(ctx context.Context, collection, id string, v any) (string, error) {
	id = newID(id)
	doc, err := encode(id, v)
	if err != nil {
		return "", err
	}
	if _, err := f.client.Collection(collection).Doc(id).Create(ctx, doc); err != nil {
		return "", mapFirestoreErr(err)
	}
	return id, nil
}

func (f *Firestore) Set(ctx context.Context, collection, id string, v any) error {
	doc, err := encode(id, v)
	if err != nil {
		return err
	}
	_, err = f.client.Collection(collection).Doc(id).Set(ctx, doc)
	return mapFirestoreErr(err)
}

func (f *Firestore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	norm, err := normalizeFields(fields)
	if err != nil {
		return err
	}
	updates := make([]firestore.Update, 0, len(norm))
	for k, v := range norm {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err = f.client.Collection(collection).Doc(id).Update(ctx, updates)
	return mapFirestoreErr(err)
}

func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	_, err := f.client.Collection(collection).Doc(id).Delete(ctx, firestore.Exists)
	return mapFirestoreErr(err)
}

func (f *Firestore) Watch(ctx context.Context, collection string, filters ...Filter) (<-chan Snapshot, error) {
	q, err := f.query(collection, filters)
	if err != nil {
		return nil, err
	}
	it := q.Snapshots(ctx)
	out := make(chan Snapshot, 1)
	go func() {
		defer close(out)
		defer it.Stop()
		var seq uint64 = 1
		for {
			qs, err := it.Next()
			if err != nil {
				// cancellation or a broken listener both end the watch;
				// callers resubscribe
				return
			}
			snaps, err := qs.Documents.GetAll()
			if err != nil {
				return
			}
			docs := make([]Document, 0, len(snaps))
			for _, s := range snaps {
				d, err := snapshotDocument(s)
				if err != nil {
					return
				}
				docs = append(docs, d)
			}
			select {
			case out <- Snapshot{Seq: seq, Docs: docs}:
				seq++
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}

func (f *Firestore) query(collection string, filters []Filter) (firestore.Query, error) {
	q := f.client.Collection(collection).Query
	for _, flt := range filters {
		v, err := normalize(flt.Value)
		if err != nil {
			return q, err
		}
		q = q.Where(flt.Field, "==", v)
	}
	return q, nil
}

func snapshotDocument(snap *firestore.DocumentSnapshot) (Document, error) {
	raw, err := json.Marshal(snap.Data())
	if err != nil {
		return Document{}, err
	}
	return Document{ID: snap.Ref.ID, Data: raw}, nil
}

func mapFirestoreErr(err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return ErrNotFound
	case codes.AlreadyExists:
		return ErrAlreadyExists
	}
	return err
}
