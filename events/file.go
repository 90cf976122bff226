package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one entry of the audit ledger.
type Record struct {
	Type    Type            `json:"type"`
	PoolID  string          `json:"pool_id"`
	At      time.Time       `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// FileSink appends events to dataDir/pool_events.jsonl, one record per line.
type FileSink struct {
	mu      sync.Mutex
	dataDir string
}

func NewFileSink(dataDir string) *FileSink {
	if dataDir == "" {
		dataDir = "data"
	}
	return &FileSink{dataDir: dataDir}
}

func (fs *FileSink) path() string {
	return filepath.Join(fs.dataDir, "pool_events.jsonl")
}

func (fs *FileSink) ensureDir() error {
	return os.MkdirAll(fs.dataDir, 0755)
}

func (fs *FileSink) Publish(_ context.Context, e Event) {
	if err := fs.Append(e); err != nil {
		zap.L().Error("events: audit append failed",
			zap.String("type", string(e.EventType())),
			zap.String("pool_id", e.EventPool()),
			zap.Error(err),
		)
	}
}

// Append writes e as a single line at the end of the ledger file.
func (fs *FileSink) Append(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line, err := json.Marshal(Record{Type: e.EventType(), PoolID: e.EventPool(), At: e.OccurredAt(), Payload: payload})
	if err != nil {
		return err
	}
	line = append(line, '\n')

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if err := fs.ensureDir(); err != nil {
		return err
	}
	f, err := os.OpenFile(fs.path(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ByPool returns the pool's records in the order they were written.
func (fs *FileSink) ByPool(poolID string) ([]Record, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	out := []Record{}
	f, err := os.Open(fs.path())
	if os.IsNotExist(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	for n := 1; ; n++ {
		var r Record
		err := dec.Decode(&r)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("events: %s record %d: %w", fs.path(), n, err)
		}
		if r.PoolID == poolID {
			out = append(out, r)
		}
	}
	return out, nil
}
