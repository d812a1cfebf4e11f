package natsobj_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Strob0t/CareForge/internal/adapter/natsobj"
	"github.com/Strob0t/CareForge/internal/domain"
	"github.com/Strob0t/CareForge/internal/domain/document"
	"github.com/Strob0t/CareForge/internal/resilience"
)

// memObjects implements the object store methods the Store uses. List
// counts calls so tests can assert the bucket is never enumerated.
type memObjects struct {
	jetstream.ObjectStore
	mu        sync.Mutex
	objects   map[string]*jetstream.ObjectInfo
	data      map[string][]byte
	listCalls int
}

func newMemObjects() *memObjects {
	return &memObjects{objects: map[string]*jetstream.ObjectInfo{}, data: map[string][]byte{}}
}

func (m *memObjects) Put(_ context.Context, meta jetstream.ObjectMeta, r io.Reader) (*jetstream.ObjectInfo, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	info := &jetstream.ObjectInfo{ObjectMeta: meta, Size: uint64(len(b)), ModTime: time.Now()}
	m.objects[meta.Name], m.data[meta.Name] = info, b
	return info, nil
}

func (m *memObjects) GetInfo(_ context.Context, name string, _ ...jetstream.GetObjectInfoOpt) (*jetstream.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	info, ok := m.objects[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return info, nil
}

func (m *memObjects) GetBytes(_ context.Context, name string, _ ...jetstream.GetObjectOpt) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[name]
	if !ok {
		return nil, jetstream.ErrObjectNotFound
	}
	return b, nil
}

func (m *memObjects) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return jetstream.ErrObjectNotFound
	}
	delete(m.objects, name)
	delete(m.data, name)
	return nil
}

func (m *memObjects) List(context.Context, ...jetstream.ListObjectsOpt) ([]*jetstream.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return nil, errors.New("bucket enumeration not expected")
}

// memIndex implements the compare-and-set subset of jetstream.KeyValue.
// The first conflicts writes fail as if another writer got there first.
type memIndex struct {
	jetstream.KeyValue
	mu        sync.Mutex
	entries   map[string]indexEntry
	rev       uint64
	conflicts int
}

type indexEntry struct {
	jetstream.KeyValueEntry
	value    []byte
	revision uint64
}

func (e indexEntry) Value() []byte    { return e.value }
func (e indexEntry) Revision() uint64 { return e.revision }

func newMemIndex() *memIndex { return &memIndex{entries: map[string]indexEntry{}} }

func (m *memIndex) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return e, nil
}

func (m *memIndex) Create(ctx context.Context, key string, value []byte, _ ...jetstream.KVCreateOpt) (uint64, error) {
	return m.Update(ctx, key, value, 0)
}

func (m *memIndex) Update(_ context.Context, key string, value []byte, last uint64) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return 0, jetstream.ErrKeyExists
	}
	if m.entries[key].revision != last {
		return 0, jetstream.ErrKeyExists
	}
	m.rev++
	m.entries[key] = indexEntry{value: value, revision: m.rev}
	return m.rev, nil
}

func newIndexedStore() (*natsobj.Store, *memObjects, *memIndex) {
	objects, index := newMemObjects(), newMemIndex()
	return natsobj.New(objects, index, resilience.NewBreaker(5, time.Minute)), objects, index
}

func putScan(t *testing.T, s *natsobj.Store, rxID, docID, name string) {
	t.Helper()
	_, err := s.Put(context.Background(), document.Document{
		Info: document.Info{ID: docID, PrescriptionID: rxID, Name: name, ContentType: "application/pdf"},
		Data: []byte("%PDF-1.7 " + name),
	})
	if err != nil {
		t.Fatalf("Put %s: %v", name, err)
	}
}

func TestStore_ListReadsIndexNotBucket(t *testing.T) {
	s, objects, _ := newIndexedStore()
	ctx := context.Background()

	putScan(t, s, "rx-1", "d-1", "script.pdf")
	putScan(t, s, "rx-1", "d-2", "prior-auth.pdf")
	putScan(t, s, "rx-2", "d-3", "other.pdf")

	list, err := s.List(ctx, "rx-1")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "d-1" || list[1].ID != "d-2" {
		t.Fatalf("list = %+v, want d-1 then d-2", list)
	}
	if list[0].Size != int64(len("%PDF-1.7 script.pdf")) || list[0].Name != "script.pdf" {
		t.Errorf("indexed info = %+v", list[0])
	}
	if objects.listCalls != 0 {
		t.Errorf("bucket enumerated %d times", objects.listCalls)
	}
}

func TestStore_ListUnknownPrescriptionIsEmpty(t *testing.T) {
	s, _, _ := newIndexedStore()
	list, err := s.List(context.Background(), "rx-none")
	if err != nil || list == nil || len(list) != 0 {
		t.Fatalf("List = %#v, %v; want empty non-nil", list, err)
	}
}

func TestStore_DeleteUpdatesIndex(t *testing.T) {
	s, _, _ := newIndexedStore()
	ctx := context.Background()
	putScan(t, s, "rx-1", "d-1", "script.pdf")
	putScan(t, s, "rx-1", "d-2", "prior-auth.pdf")

	if err := s.Delete(ctx, "rx-1", "d-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	list, err := s.List(ctx, "rx-1")
	if err != nil || len(list) != 1 || list[0].ID != "d-2" {
		t.Fatalf("List after delete = %+v, %v", list, err)
	}
	if err := s.Delete(ctx, "rx-1", "d-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestStore_IndexRetriesConcurrentWriters(t *testing.T) {
	s, _, index := newIndexedStore()
	index.conflicts = 2
	putScan(t, s, "rx-1", "d-1", "script.pdf")

	list, err := s.List(context.Background(), "rx-1")
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}
}

func TestStore_IndexContentionGivesUp(t *testing.T) {
	s, _, index := newIndexedStore()
	index.conflicts = 100

	_, err := s.Put(context.Background(), document.Document{
		Info: document.Info{ID: "d-1", PrescriptionID: "rx-1", Name: "script.pdf"},
		Data: []byte("x"),
	})
	if err == nil {
		t.Fatal("expected an error when the index never settles")
	}
}

func TestStore_ConcurrentAttachesAllIndexed(t *testing.T) {
	s, _, _ := newIndexedStore()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Put(context.Background(), document.Document{
				Info: document.Info{ID: string(rune('a' + i)), PrescriptionID: "rx-1", Name: "page.pdf"},
				Data: []byte("page"),
			})
			if err != nil {
				t.Errorf("Put: %v", err)
			}
		}()
	}
	wg.Wait()

	list, err := s.List(context.Background(), "rx-1")
	if err != nil || len(list) != 4 {
		t.Fatalf("List = %d entries, %v; want 4", len(list), err)
	}
}
