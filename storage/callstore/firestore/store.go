package fsstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/marquesl99/chamada-visual/core"
	"github.com/marquesl99/chamada-visual/core/call"
)

// Store is the Firestore-backed call.Store. One document per call; the
// Firestore client library owns reconnection of the snapshot listener.
type Store struct {
	client *firestore.Client
	coll   string
	logger core.Logger
}

var _ call.Store = (*Store)(nil)

func Open(ctx context.Context, conf *core.Config, logger core.Logger) (*Store, error) {
	client, err := firestore.NewClient(ctx, conf.Firestore.Project)
	if err != nil {
		return nil, errors.Wrap(err, "opening firestore client")
	}
	return &Store{client: client, coll: conf.Firestore.Collection, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) CreateCall(ctx context.Context, c call.Call) (call.Call, error) {
	if _, err := s.client.Collection(s.coll).Doc(c.ID).Create(ctx, c); err != nil {
		return call.Call{}, errors.Wrapf(err, "creating call document %s", c.ID)
	}
	return c, nil
}

func (s *Store) DeleteCall(ctx context.Context, id string) error {
	doc := s.client.Collection(s.coll).Doc(id)
	if _, err := doc.Get(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return call.ErrNotFound
		}
		return errors.Wrapf(err, "getting call document %s", id)
	}
	if _, err := doc.Delete(ctx); err != nil {
		return errors.Wrapf(err, "deleting call document %s", id)
	}
	return nil
}

func (s *Store) QueryCalls(ctx context.Context) ([]call.Call, error) {
	iter := s.query().Documents(ctx)
	defer iter.Stop()

	var calls []call.Call
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "iterating call documents")
		}
		c, err := decode(doc)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, nil
}

func (s *Store) Subscribe(ctx context.Context) (<-chan []call.Call, error) {
	snaps := s.query().Snapshots(ctx)
	ch := make(chan []call.Call, 1)

	go func() {
		defer close(ch)
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err != nil {
				// ctx cancellation ends the subscription quietly.
				if status.Code(err) == codes.Canceled {
					return
				}
				s.logger.Error(fmt.Sprintf("call snapshot listener: %v", err), err)
				return
			}

			calls, err := decodeAll(snap.Documents)
			if err != nil {
				s.logger.Error(fmt.Sprintf("decoding call snapshot: %v", err), err)
				continue
			}

			select {
			case ch <- calls:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *Store) query() firestore.Query {
	return s.client.Collection(s.coll).OrderBy("chamadoEm", firestore.Desc)
}

func decodeAll(iter *firestore.DocumentIterator) ([]call.Call, error) {
	defer iter.Stop()
	var calls []call.Call
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			return calls, nil
		}
		if err != nil {
			return nil, errors.Wrap(err, "iterating snapshot documents")
		}
		c, err := decode(doc)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
}

func decode(doc *firestore.DocumentSnapshot) (call.Call, error) {
	var c call.Call
	if err := doc.DataTo(&c); err != nil {
		return call.Call{}, errors.Wrapf(err, "decoding call document %s", doc.Ref.ID)
	}
	c.ID = doc.Ref.ID
	return c, nil
}
