// Package natsobj implements the document store port on a NATS JetStream
// object store bucket. Calls go through a circuit breaker so an unavailable
// NATS server fails fast instead of stalling request handlers.
//
// Object stores can only list a whole bucket, so the documents of each
// prescription are also recorded in a KV index keyed by prescription. Listing
// reads one index entry; the index is updated with compare-and-set.
package natsobj

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CareForge/internal/domain"
	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/resilience"
)

const (
	metaID             = "document-id"
	metaPrescriptionID = "prescription-id"
	metaName           = "name"
	metaContentType    = "content-type"

	// indexRetries bounds compare-and-set attempts on a contended index entry.
	indexRetries = 5
)

var errIndexContended = errors.New("document index contended")

// Store implements document.Store on a jetstream.ObjectStore.
type Store struct {
	obj      jetstream.ObjectStore
	index    jetstream.KeyValue
	breaker  *resilience.Breaker
	bulkhead *resilience.Bulkhead
}

// New wraps obj, keeping the per-prescription listing in index. Not-found
// lookups do not count against the breaker.
func New(obj jetstream.ObjectStore, index jetstream.KeyValue, breaker *resilience.Breaker) *Store {
	breaker.IgnoreErrors(func(err error) bool {
		return errors.Is(err, domain.ErrNotFound)
	})
	return &Store{obj: obj, index: index, breaker: breaker}
}

// WithBulkhead bounds the number of concurrent uploads and downloads.
func (s *Store) WithBulkhead(b *resilience.Bulkhead) *Store {
	s.bulkhead = b
	return s
}

// Put stores doc under its prescription and returns the stored metadata.
func (s *Store) Put(ctx context.Context, doc document.Document) (document.Info, error) {
	meta := jetstream.ObjectMeta{
		Name:        document.Key(doc.PrescriptionID, doc.ID),
		Description: doc.Name,
		Metadata: map[string]string{
			metaID:             doc.ID,
			metaPrescriptionID: doc.PrescriptionID,
			metaName:           doc.Name,
			metaContentType:    doc.ContentType,
		},
	}

	var stored document.Info
	err := s.bulkhead.Run(ctx, func() error {
		return s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
			info, err := s.obj.Put(ctx, meta, bytes.NewReader(doc.Data))
			if err != nil {
				return err
			}
			stored = toInfo(info)
			return s.updateIndex(ctx, doc.PrescriptionID, func(infos []document.Info) []document.Info {
				infos = slices.DeleteFunc(infos, func(i document.Info) bool { return i.ID == stored.ID })
				return append(infos, stored)
			})
		})
	})
	if err != nil {
		return document.Info{}, fmt.Errorf("put document %s: %w", meta.Name, err)
	}
	return stored, nil
}

// Get loads a document and its content.
func (s *Store) Get(ctx context.Context, prescriptionID, documentID string) (*document.Document, error) {
	key := document.Key(prescriptionID, documentID)

	var (
		info *jetstream.ObjectInfo
		data []byte
	)
	err := s.bulkhead.Run(ctx, func() error {
		return s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
			var err error
			info, err = s.obj.GetInfo(ctx, key)
			if err != nil {
				return notFound(err, key)
			}
			data, err = s.obj.GetBytes(ctx, key)
			return notFound(err, key)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", key, err)
	}
	return &document.Document{Info: toInfo(info), Data: data}, nil
}

// List returns the metadata of all documents attached to a prescription,
// oldest first.
func (s *Store) List(ctx context.Context, prescriptionID string) ([]document.Info, error) {
	var infos []document.Info
	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		var err error
		infos, _, err = s.readIndex(ctx, prescriptionID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list documents %s: %w", prescriptionID, err)
	}
	if infos == nil {
		infos = []document.Info{}
	}
	return infos, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, prescriptionID, documentID string) error {
	key := document.Key(prescriptionID, documentID)
	err := s.breaker.ExecuteContext(ctx, func(ctx context.Context) error {
		if err := notFound(s.obj.Delete(ctx, key), key); err != nil {
			return err
		}
		return s.updateIndex(ctx, prescriptionID, func(infos []document.Info) []document.Info {
			return slices.DeleteFunc(infos, func(i document.Info) bool { return i.ID == documentID })
		})
	})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", key, err)
	}
	return nil
}

// readIndex returns the indexed documents of a prescription and the
// revision of the index entry (0 when there is none).
func (s *Store) readIndex(ctx context.Context, prescriptionID string) ([]document.Info, uint64, error) {
	entry, err := s.index.Get(ctx, indexKey(prescriptionID))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, err
	}
	var infos []document.Info
	if err := json.Unmarshal(entry.Value(), &infos); err != nil {
		return nil, 0, fmt.Errorf("decode document index: %w", err)
	}
	return infos, entry.Revision(), nil
}

// updateIndex applies change to the index entry of a prescription, retrying
// when a concurrent writer updated it first.
func (s *Store) updateIndex(ctx context.Context, prescriptionID string, change func([]document.Info) []document.Info) error {
	key := indexKey(prescriptionID)
	for range indexRetries {
		infos, rev, err := s.readIndex(ctx, prescriptionID)
		if err != nil {
			return err
		}
		data, err := json.Marshal(change(infos))
		if err != nil {
			return err
		}
		if rev == 0 {
			_, err = s.index.Create(ctx, key, data)
		} else {
			_, err = s.index.Update(ctx, key, data, rev)
		}
		if err == nil {
			return nil
		}
		if !errors.Is(err, jetstream.ErrKeyExists) {
			return fmt.Errorf("update document index: %w", err)
		}
	}
	return fmt.Errorf("update document index %s: %w", prescriptionID, errIndexContended)
}

func indexKey(prescriptionID string) string { return "rx." + prescriptionID }

func notFound(err error, key string) error {
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return fmt.Errorf("document %s: %w", key, domain.ErrNotFound)
	}
	return err
}

func toInfo(info *jetstream.ObjectInfo) document.Info {
	return document.Info{
		ID:             info.Metadata[metaID],
		PrescriptionID: info.Metadata[metaPrescriptionID],
		Name:           info.Metadata[metaName],
		ContentType:    info.Metadata[metaContentType],
		Size:           int64(info.Size), //nolint:gosec // object sizes are bounded by documents.max_size_bytes
		Digest:         info.Digest,
		CreatedAt:      info.ModTime,
	}
}
