// Package ledger is an in-process funds collaborator: account balances and a
// transfer journal, optionally persisted to dataDir/ledger.json. It backs
// development deployments and tests where no operator wallet is configured.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Ashenafi-pixel/prize-wheel-engine/checked"
	"github.com/Ashenafi-pixel/prize-wheel-engine/pool"
)

var (
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")
	ErrInvalidTransfer   = errors.New("ledger: invalid transfer")
	ErrUnknownTransfer   = errors.New("ledger: unknown transfer")
	ErrAlreadyReversed   = errors.New("ledger: transfer already reversed")
)

// Entry is one journaled transfer.
type Entry struct {
	pool.Transfer
	At       time.Time `json:"at"`
	Reversed bool      `json:"reversed,omitempty"`
}

type Ledger struct {
	mu       sync.Mutex
	balances map[string]uint64
	journal  []*Entry
	byID     map[string]*Entry
	dataDir  string
}

// New returns a memory-only ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[string]uint64), byID: make(map[string]*Entry)}
}

// NewFile returns a ledger persisted under dataDir.
func NewFile(dataDir string) (*Ledger, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	l := New()
	l.dataDir = dataDir
	if err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

type snapshot struct {
	Balances map[string]uint64 `json:"balances"`
	Journal  []*Entry          `json:"journal"`
}

func (l *Ledger) path() string {
	return filepath.Join(l.dataDir, "ledger.json")
}

func (l *Ledger) load() error {
	data, err := os.ReadFile(l.path())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("ledger: parse %s: %w", l.path(), err)
	}
	for k, v := range snap.Balances {
		l.balances[k] = v
	}
	for _, e := range snap.Journal {
		l.journal = append(l.journal, e)
		l.byID[e.ID] = e
	}
	return nil
}

// saveLocked writes the ledger to disk. Caller must hold l.mu.
func (l *Ledger) saveLocked() error {
	if l.dataDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(snapshot{Balances: l.balances, Journal: l.journal}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.dataDir, 0755); err != nil {
		return err
	}
	return os.WriteFile(l.path(), data, 0644)
}

// Deposit credits account from outside the system.
func (l *Ledger) Deposit(account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, err := checked.Add(l.balances[account], amount)
	if err != nil {
		return err
	}
	undo := l.captureLocked(account)
	l.balances[account] = bal
	if err := l.saveLocked(); err != nil {
		undo()
		return err
	}
	return nil
}

func (l *Ledger) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account], nil
}

// Transfer moves funds atomically. A transfer ID seen before is a no-op.
func (l *Ledger) Transfer(_ context.Context, t pool.Transfer) error {
	if t.Amount == 0 || t.From == "" || t.To == "" || t.From == t.To {
		return ErrInvalidTransfer
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if t.ID != "" {
		if _, seen := l.byID[t.ID]; seen {
			return nil
		}
	}
	undo := l.captureLocked(t.From, t.To)
	if err := l.moveLocked(t.From, t.To, t.Amount); err != nil {
		return err
	}
	e := &Entry{Transfer: t, At: time.Now().UTC()}
	l.journal = append(l.journal, e)
	if t.ID != "" {
		l.byID[t.ID] = e
	}
	if err := l.saveLocked(); err != nil {
		undo()
		return err
	}
	return nil
}

// Reverse moves a journaled transfer's amount back to its payer.
func (l *Ledger) Reverse(_ context.Context, t pool.Transfer) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.byID[t.ID]
	if !ok {
		return ErrUnknownTransfer
	}
	if e.Reversed {
		return ErrAlreadyReversed
	}
	undo := l.captureLocked(e.To, e.From)
	if err := l.moveLocked(e.To, e.From, e.Amount); err != nil {
		return err
	}
	e.Reversed = true
	if err := l.saveLocked(); err != nil {
		undo()
		e.Reversed = false
		return err
	}
	return nil
}

// captureLocked returns a func restoring the named balances and the journal
// as they are now. Caller must hold l.mu.
func (l *Ledger) captureLocked(accounts ...string) func() {
	type balance struct {
		v   uint64
		had bool
	}
	saved := make(map[string]balance, len(accounts))
	for _, a := range accounts {
		v, had := l.balances[a]
		saved[a] = balance{v, had}
	}
	n := len(l.journal)
	return func() {
		for a, b := range saved {
			if b.had {
				l.balances[a] = b.v
			} else {
				delete(l.balances, a)
			}
		}
		for _, e := range l.journal[n:] {
			if e.ID != "" && l.byID[e.ID] == e {
				delete(l.byID, e.ID)
			}
		}
		l.journal = l.journal[:n]
	}
}

func (l *Ledger) moveLocked(from, to string, amount uint64) error {
	src, err := checked.Sub(l.balances[from], amount)
	if err != nil {
		return fmt.Errorf("%w: %s holds %d, needs %d", ErrInsufficientFunds, from, l.balances[from], amount)
	}
	dst, err := checked.Add(l.balances[to], amount)
	if err != nil {
		return err
	}
	l.balances[from] = src
	l.balances[to] = dst
	return nil
}

// Journal returns a copy of every transfer in order.
func (l *Ledger) Journal() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.journal))
	for i, e := range l.journal {
		out[i] = *e
	}
	return out
}
