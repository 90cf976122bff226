package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

type ticketKey struct {
	pool string
	seq  uint64
}

// FileStore keeps pools and tickets in memory and rewrites
// dataDir/pools.json and dataDir/tickets.json after every commit.
type FileStore struct {
	mu      sync.Mutex
	pools   map[string]*pool.Pool
	tickets map[ticketKey]*pool.Ticket
	locks   map[string]*sync.Mutex
	dataDir string
}

func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	s := &FileStore{
		pools:   make(map[string]*pool.Pool),
		tickets: make(map[ticketKey]*pool.Ticket),
		locks:   make(map[string]*sync.Mutex),
		dataDir: dataDir,
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) poolsPath() string {
	return filepath.Join(s.dataDir, "pools.json")
}

func (s *FileStore) ticketsPath() string {
	return filepath.Join(s.dataDir, "tickets.json")
}

func (s *FileStore) ensureDir() error {
	return os.MkdirAll(s.dataDir, 0755)
}

func (s *FileStore) load() error {
	var pools []*pool.Pool
	if err := readJSON(s.poolsPath(), &pools); err != nil {
		return err
	}
	for _, p := range pools {
		if p != nil && p.ID != "" {
			s.pools[p.ID] = p
		}
	}
	var tickets []*pool.Ticket
	if err := readJSON(s.ticketsPath(), &tickets); err != nil {
		return err
	}
	for _, t := range tickets {
		if t != nil {
			s.tickets[ticketKey{t.PoolID, t.Sequence}] = t
		}
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("store: parse %s: %w", path, err)
	}
	return nil
}

// saveLocked writes both files. Caller must hold s.mu.
func (s *FileStore) saveLocked() error {
	pools := make([]*pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		pools = append(pools, p)
	}
	sort.Slice(pools, func(i, j int) bool { return pools[i].ID < pools[j].ID })
	tickets := make([]*pool.Ticket, 0, len(s.tickets))
	for _, t := range s.tickets {
		tickets = append(tickets, t)
	}
	sortTickets(tickets)

	if err := s.ensureDir(); err != nil {
		return err
	}
	for path, v := range map[string]any{s.poolsPath(): pools, s.ticketsPath(): tickets} {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return err
		}
	}
	return nil
}

func sortTickets(ts []*pool.Ticket) {
	sort.Slice(ts, func(i, j int) bool {
		if ts[i].PoolID != ts[j].PoolID {
			return ts[i].PoolID < ts[j].PoolID
		}
		return ts[i].Sequence < ts[j].Sequence
	})
}

func (s *FileStore) CreatePool(_ context.Context, p *pool.Pool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[p.ID]; ok {
		return ErrPoolExists
	}
	s.pools[p.ID] = p.Clone()
	if err := s.saveLocked(); err != nil {
		delete(s.pools, p.ID)
		return err
	}
	return nil
}

func (s *FileStore) GetPool(_ context.Context, id string) (*pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[id]
	if !ok {
		return nil, ErrPoolNotFound
	}
	return p.Clone(), nil
}

func (s *FileStore) ListPools(_ context.Context) ([]*pool.Pool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*pool.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) GetTicket(_ context.Context, poolID string, seq uint64) (*pool.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[ticketKey{poolID, seq}]
	if !ok {
		return nil, ErrTicketNotFound
	}
	return t.Clone(), nil
}

func (s *FileStore) ListTickets(_ context.Context, poolID string, owner pool.Identity) ([]*pool.Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[poolID]; !ok {
		return nil, ErrPoolNotFound
	}
	out := []*pool.Ticket{}
	for k, t := range s.tickets {
		if k.pool == poolID && (owner == "" || t.Owner == owner) {
			out = append(out, t.Clone())
		}
	}
	sortTickets(out)
	return out, nil
}

func (s *FileStore) poolLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *FileStore) Atomically(ctx context.Context, poolID string, fn func(tx Tx) error) error {
	l := s.poolLock(poolID)
	l.Lock()
	defer l.Unlock()

	p, err := s.GetPool(ctx, poolID)
	if err != nil {
		return err
	}
	tx := &fileTx{s: s, pool: p, tickets: make(map[uint64]*pool.Ticket)}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *FileStore) commit(tx *fileTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevPool := s.pools[tx.pool.ID]
	prevTickets := make(map[uint64]*pool.Ticket, len(tx.tickets))
	for seq, t := range tx.tickets {
		k := ticketKey{t.PoolID, seq}
		prevTickets[seq] = s.tickets[k]
		s.tickets[k] = t
	}
	if tx.saved != nil {
		s.pools[tx.pool.ID] = tx.saved
	}
	if err := s.saveLocked(); err != nil {
		s.pools[tx.pool.ID] = prevPool
		for seq, prev := range prevTickets {
			k := ticketKey{tx.pool.ID, seq}
			if prev == nil {
				delete(s.tickets, k)
			} else {
				s.tickets[k] = prev
			}
		}
		return fmt.Errorf("store: commit pool %s: %w", tx.pool.ID, err)
	}
	return nil
}

type fileTx struct {
	s       *FileStore
	pool    *pool.Pool
	saved   *pool.Pool
	tickets map[uint64]*pool.Ticket
}

func (tx *fileTx) Pool() *pool.Pool { return tx.pool }

func (tx *fileTx) SavePool(p *pool.Pool) error {
	if p.ID != tx.pool.ID {
		return fmt.Errorf("store: pool %s saved in transaction for %s", p.ID, tx.pool.ID)
	}
	tx.saved = p.Clone()
	return nil
}

func (tx *fileTx) Ticket(seq uint64) (*pool.Ticket, error) {
	if t, ok := tx.tickets[seq]; ok {
		return t.Clone(), nil
	}
	return tx.s.GetTicket(context.Background(), tx.pool.ID, seq)
}

func (tx *fileTx) CreateTicket(t *pool.Ticket) error {
	if t.PoolID != tx.pool.ID {
		return fmt.Errorf("store: ticket for pool %s created in transaction for %s", t.PoolID, tx.pool.ID)
	}
	if _, err := tx.Ticket(t.Sequence); err == nil {
		return ErrTicketExists
	}
	tx.tickets[t.Sequence] = t.Clone()
	return nil
}

func (tx *fileTx) SaveTicket(t *pool.Ticket) error {
	if t.PoolID != tx.pool.ID {
		return fmt.Errorf("store: ticket for pool %s saved in transaction for %s", t.PoolID, tx.pool.ID)
	}
	if _, err := tx.Ticket(t.Sequence); err != nil {
		return err
	}
	tx.tickets[t.Sequence] = t.Clone()
	return nil
}
