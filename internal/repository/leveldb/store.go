// Package leveldb persists the local keypair log and the session token.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dtroode/zklogin-recovery/internal/keypair"
	"github.com/dtroode/zklogin-recovery/internal/model"
)

var (
	keypairPrefix = []byte("kp/")
	tokenKey      = []byte("session/token")
)

var (
	_ model.KeypairStore = (*Store)(nil)
	_ model.TokenStore   = (*Store)(nil)
)

// Store is an append-only keypair log plus the cached id token.
// Keypairs are keyed by a big-endian sequence number so iteration order is
// insertion order. LevelDB handles its own synchronization; mu only guards
// sequence allocation.
type Store struct {
	db *leveldb.DB

	mu sync.Mutex
}

// Open opens or creates a store at path. An empty path uses memory.
func Open(path string) (*Store, error) {
	var (
		db  *leveldb.DB
		err error
	)
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open store at %q: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenMemory opens an in-memory store for tests.
func OpenMemory() (*Store, error) {
	return Open("")
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type keypairRecord struct {
	PrivateKey string    `json:"private_key"`
	Randomness string    `json:"randomness"`
	CreatedAt  time.Time `json:"created_at"`
}

// Append stores kp after every existing entry.
func (s *Store) Append(_ context.Context, kp model.EphemeralKeypair) error {
	if kp.PrivateKey == nil {
		return fmt.Errorf("%w: keypair has no private key", model.ErrValidation)
	}

	value, err := json.Marshal(keypairRecord{
		PrivateKey: fmt.Sprintf("%x", crypto.FromECDSA(kp.PrivateKey)),
		Randomness: kp.RandomnessHex(),
		CreatedAt:  kp.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal keypair: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeq()
	if err != nil {
		return err
	}
	if err := s.db.Put(seqKey(seq), value, nil); err != nil {
		return fmt.Errorf("failed to store keypair: %w", err)
	}
	return nil
}

// Latest returns the newest keypair, ErrNotFound when the log is empty.
func (s *Store) Latest(_ context.Context) (model.EphemeralKeypair, error) {
	iter := s.db.NewIterator(util.BytesPrefix(keypairPrefix), nil)
	defer iter.Release()

	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return model.EphemeralKeypair{}, fmt.Errorf("failed to read keypair log: %w", err)
		}
		return model.EphemeralKeypair{}, fmt.Errorf("keypair: %w", model.ErrNotFound)
	}
	return decodeKeypair(iter.Value())
}

// All returns every keypair in insertion order.
func (s *Store) All(_ context.Context) ([]model.EphemeralKeypair, error) {
	iter := s.db.NewIterator(util.BytesPrefix(keypairPrefix), nil)
	defer iter.Release()

	var out []model.EphemeralKeypair
	for iter.Next() {
		kp, err := decodeKeypair(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, kp)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to read keypair log: %w", err)
	}
	return out, nil
}

// Clear removes every keypair and the cached token in one batch.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix(keypairPrefix), nil)
	for iter.Next() {
		key := make([]byte, len(iter.Key()))
		copy(key, iter.Key())
		batch.Delete(key)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("failed to read keypair log: %w", err)
	}
	batch.Delete(tokenKey)

	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("failed to clear store: %w", err)
	}
	return nil
}

// SaveToken caches the raw id token.
func (s *Store) SaveToken(_ context.Context, raw string) error {
	if err := s.db.Put(tokenKey, []byte(raw), nil); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// LoadToken returns the cached id token, ErrNotFound when none is.
func (s *Store) LoadToken(_ context.Context) (string, error) {
	raw, err := s.db.Get(tokenKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return "", fmt.Errorf("token: %w", model.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to load token: %w", err)
	}
	return string(raw), nil
}

// ClearToken drops the cached id token.
func (s *Store) ClearToken(_ context.Context) error {
	if err := s.db.Delete(tokenKey, nil); err != nil {
		return fmt.Errorf("failed to clear token: %w", err)
	}
	return nil
}

func (s *Store) nextSeq() (uint64, error) {
	iter := s.db.NewIterator(util.BytesPrefix(keypairPrefix), nil)
	defer iter.Release()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	if len(key) != len(keypairPrefix)+8 {
		return 0, fmt.Errorf("corrupt keypair key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(keypairPrefix):]) + 1, nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, len(keypairPrefix)+8)
	copy(key, keypairPrefix)
	binary.BigEndian.PutUint64(key[len(keypairPrefix):], seq)
	return key
}

func decodeKeypair(value []byte) (model.EphemeralKeypair, error) {
	var rec keypairRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return model.EphemeralKeypair{}, fmt.Errorf("failed to decode keypair: %w", err)
	}

	key, err := crypto.HexToECDSA(rec.PrivateKey)
	if err != nil {
		return model.EphemeralKeypair{}, fmt.Errorf("failed to decode private key: %w", err)
	}
	rnd, err := keypair.ParseRandomness(rec.Randomness)
	if err != nil {
		return model.EphemeralKeypair{}, fmt.Errorf("failed to decode randomness: %w", err)
	}

	kp := keypair.FromParts(key, rnd)
	kp.CreatedAt = rec.CreatedAt
	return kp, nil
}
