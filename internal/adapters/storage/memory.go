package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alejandrodnm/derby/internal/domain"
	"github.com/alejandrodnm/derby/internal/ports"
)

// errReadOnly se devuelve al escribir desde View.
var errReadOnly = errors.New("storage: write in read-only transaction")

// memState es el ledger completo. Race y Wager son valores sin slices,
// así que copiar los mapas basta para aislar una transacción.
type memState struct {
	ledger  domain.Ledger
	races   map[uint64]domain.Race
	wagers  map[domain.WagerKey]domain.Wager
	history map[common.Address][]uint64
	cursors map[common.Address]int
	queues  domain.Queues
}

func newMemState() memState {
	return memState{
		races:   make(map[uint64]domain.Race),
		wagers:  make(map[domain.WagerKey]domain.Wager),
		history: make(map[common.Address][]uint64),
		cursors: make(map[common.Address]int),
	}
}

func (s memState) clone() memState {
	c := newMemState()
	c.ledger = s.ledger
	for k, v := range s.races {
		c.races[k] = v
	}
	for k, v := range s.wagers {
		c.wagers[k] = v
	}
	for k, v := range s.history {
		c.history[k] = append([]uint64(nil), v...)
	}
	for k, v := range s.cursors {
		c.cursors[k] = v
	}
	c.queues = s.queues.Clone()
	return c
}

// MemoryStore implementa ports.Store en memoria. Update trabaja sobre una
// copia del estado y la instala solo si fn no devuelve error.
type MemoryStore struct {
	mu    sync.Mutex
	state memState
}

// NewMemoryStore crea un store vacío.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

// Update implementa ports.Store.
func (s *MemoryStore) Update(_ context.Context, fn func(tx ports.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&memTx{st: &work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

// View implementa ports.Store.
func (s *MemoryStore) View(_ context.Context, fn func(tx ports.LedgerTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(&memTx{st: &s.state, readOnly: true})
}

// Close implementa ports.Store.
func (s *MemoryStore) Close() error { return nil }

type memTx struct {
	st       *memState
	readOnly bool
}

func (t *memTx) Ledger(context.Context) (domain.Ledger, error) { return t.st.ledger, nil }

func (t *memTx) SaveLedger(_ context.Context, l domain.Ledger) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.ledger = l
	return nil
}

func (t *memTx) Race(_ context.Context, id uint64) (domain.Race, error) {
	r, ok := t.st.races[id]
	if !ok {
		return domain.Race{}, domain.ErrRaceNotFound
	}
	return r, nil
}

func (t *memTx) SaveRace(_ context.Context, r domain.Race) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.races[r.ID] = r
	return nil
}

func (t *memTx) Wager(_ context.Context, key domain.WagerKey) (domain.Wager, bool, error) {
	w, ok := t.st.wagers[key]
	return w, ok, nil
}

func (t *memTx) SaveWager(_ context.Context, w domain.Wager) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.wagers[w.Key()] = w
	return nil
}

func (t *memTx) RaceHistory(_ context.Context, p common.Address) ([]uint64, error) {
	return append([]uint64(nil), t.st.history[p]...), nil
}

func (t *memTx) AppendRaceHistory(_ context.Context, p common.Address, raceID uint64) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.history[p] = append(t.st.history[p], raceID)
	return nil
}

func (t *memTx) Cursor(_ context.Context, p common.Address) (int, error) {
	return t.st.cursors[p], nil
}

func (t *memTx) SaveCursor(_ context.Context, p common.Address, next int) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.cursors[p] = next
	return nil
}

func (t *memTx) Queues(context.Context) (domain.Queues, error) {
	return t.st.queues.Clone(), nil
}

func (t *memTx) SaveQueues(_ context.Context, q domain.Queues) error {
	if t.readOnly {
		return errReadOnly
	}
	t.st.queues = q.Clone()
	return nil
}
