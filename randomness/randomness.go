// Package randomness supplies spin draws in [0, 10000).
package randomness

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// Range is the exclusive upper bound of every draw.
const Range = 10000

const nonceSize = 16

var ErrNoSecret = errors.New("randomness: secret is required")

// Request identifies the spin a draw is for.
type Request struct {
	PoolID   string
	Sequence uint64
	Spinner  string
}

func (r Request) info() []byte {
	return []byte("prize-wheel-spin|" + r.PoolID + "|" + strconv.FormatUint(r.Sequence, 10) + "|" + r.Spinner)
}

// Draw is a value plus what is needed to audit it.
type Draw struct {
	Value      uint32 `json:"value"`
	Nonce      string `json:"nonce,omitempty"`
	Commitment string `json:"commitment,omitempty"`
}

type Source interface {
	Draw(ctx context.Context, req Request) (Draw, error)
}

// HKDFSource derives each draw from a server secret, a fresh nonce and the
// spin's identity, so a draw cannot be precomputed without the secret and
// cannot be replayed onto another ticket.
type HKDFSource struct {
	secret []byte
	nonces io.Reader
}

func NewHKDFSource(secret []byte) (*HKDFSource, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	return &HKDFSource{secret: secret, nonces: rand.Reader}, nil
}

// Commitment is the published fingerprint of the secret.
func (s *HKDFSource) Commitment() string {
	return Commit(s.secret)
}

func (s *HKDFSource) Draw(_ context.Context, req Request) (Draw, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(s.nonces, nonce); err != nil {
		return Draw{}, fmt.Errorf("randomness: nonce: %w", err)
	}
	v, err := derive(s.secret, nonce, req)
	if err != nil {
		return Draw{}, err
	}
	return Draw{Value: v, Nonce: hex.EncodeToString(nonce), Commitment: s.Commitment()}, nil
}

// Verify recomputes a draw from its inputs.
func Verify(secret []byte, req Request, nonceHex string, value uint32) (bool, error) {
	nonce, err := hex.DecodeString(nonceHex)
	if err != nil {
		return false, fmt.Errorf("randomness: nonce: %w", err)
	}
	v, err := derive(secret, nonce, req)
	if err != nil {
		return false, err
	}
	return v == value, nil
}

func Commit(secret []byte) string {
	sum := sha256.Sum256(secret)
	return hex.EncodeToString(sum[:])
}

// derive reads 32-bit words from the HKDF stream and rejects those that
// would bias the reduction modulo Range.
func derive(secret, nonce []byte, req Request) (uint32, error) {
	const limit = (1 << 32) / Range * Range
	r := hkdf.New(sha256.New, secret, nonce, req.info())
	var word [4]byte
	for {
		if _, err := io.ReadFull(r, word[:]); err != nil {
			return 0, fmt.Errorf("randomness: derive: %w", err)
		}
		v := binary.BigEndian.Uint32(word[:])
		if uint64(v) < limit {
			return v % Range, nil
		}
	}
}

// Fixed replays a scripted sequence of values, cycling when exhausted.
type Fixed struct {
	mu     sync.Mutex
	values []uint32
	next   int
}

func NewFixed(values ...uint32) *Fixed {
	return &Fixed{values: values}
}

func (f *Fixed) Draw(context.Context, Request) (Draw, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.values) == 0 {
		return Draw{}, errors.New("randomness: fixed source is empty")
	}
	v := f.values[f.next%len(f.values)]
	f.next++
	return Draw{Value: v}, nil
}
