package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
)

// Snapshot is a decoded document together with its ID and last write time.
type Snapshot[T any] struct {
	ID         string
	Data       T
	UpdateTime time.Time
}

// Collection is a typed view over one Firestore collection. Documents are decoded into T with
// DocumentSnapshot.DataTo, so T carries the firestore struct tags.
type Collection[T any] struct {
	provider *Provider
	name     string
}

// NewCollection binds a typed collection to the provider.
func NewCollection[T any](provider *Provider, name string) *Collection[T] {
	return &Collection[T]{provider: provider, name: strings.TrimSpace(name)}
}

// Doc resolves the reference for id. Transactions use it to read and write the document.
func (c *Collection[T]) Doc(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(c.name+".doc", errors.New("document id is required"))
	}
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(c.name).Doc(id), nil
}

// Get reads and decodes a single document.
func (c *Collection[T]) Get(ctx context.Context, id string) (Snapshot[T], error) {
	ref, err := c.Doc(ctx, id)
	if err != nil {
		return Snapshot[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Snapshot[T]{}, WrapError(c.name+".get", err)
	}
	return c.decode(snap)
}

// Query runs the query produced by build and decodes every result.
func (c *Collection[T]) Query(ctx context.Context, build func(firestore.Query) firestore.Query) ([]Snapshot[T], error) {
	client, err := c.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	query := client.Collection(c.name).Query
	if build != nil {
		query = build(query)
	}
	snaps, err := query.Documents(ctx).GetAll()
	if err != nil {
		return nil, WrapError(c.name+".query", err)
	}
	out := make([]Snapshot[T], 0, len(snaps))
	for _, snap := range snaps {
		decoded, err := c.decode(snap)
		if err != nil {
			return nil, err
		}
		out = append(out, decoded)
	}
	return out, nil
}

func (c *Collection[T]) decode(snap *firestore.DocumentSnapshot) (Snapshot[T], error) {
	var data T
	if err := snap.DataTo(&data); err != nil {
		return Snapshot[T]{}, fmt.Errorf("firestore: decode %s/%s: %w", c.name, snap.Ref.ID, err)
	}
	return Snapshot[T]{ID: snap.Ref.ID, Data: data, UpdateTime: snap.UpdateTime}, nil
}
