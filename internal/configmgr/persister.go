package configmgr

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Record is one persisted change. Encrypted values carry their ciphertext.
type Record struct {
	Key            string
	Value          any
	Version        int
	Encrypted      bool
	Deleted        bool
	RolledBackFrom int
	Timestamp      time.Time
}

// Persister stores config changes durably. Append is called with the
// manager's lock held, so implementations must not call back into it.
type Persister interface {
	Append(ctx context.Context, rec Record) error
	Load(ctx context.Context) ([]Record, error)
}

// MemoryPersister is an in-process Persister, used by tests and when no
// database is configured.
type MemoryPersister struct {
	mu      sync.Mutex
	records []Record
}

// NewMemoryPersister creates an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// Append stores rec.
func (p *MemoryPersister) Append(_ context.Context, rec Record) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = append(p.records, rec)
	return nil
}

// Load returns all records ordered by key then version.
func (p *MemoryPersister) Load(_ context.Context) ([]Record, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.records))
	copy(out, p.records)
	sortRecords(out)
	return out, nil
}

func sortRecords(recs []Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Key != recs[j].Key {
			return recs[i].Key < recs[j].Key
		}
		return recs[i].Version < recs[j].Version
	})
}
