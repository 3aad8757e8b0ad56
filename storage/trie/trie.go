package trie

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"metaverse/storage"
)

// Trie is the ledger's state layer: a write journal held in memory on top of
// the committed state in the backing Database. Mutations stay in the journal
// until Commit flushes them; Reset discards the journal. This is the
// all-or-nothing boundary every state-mutating ledger operation runs inside.
//
// Keys passed into Get/Update are expected to be fully hashed (keccak256)
// before insertion.
//
// The root hash is a commitment chain, not a Merkle root: each commit hashes
// the previous root together with the sorted journal entries. It identifies a
// state lineage and guards against opening a database with the wrong root,
// which is all the ledger needs.
//
// Trie is not safe for concurrent use.
type Trie struct {
	store storage.Database
	dirty map[string][]byte
	root  common.Hash
}

var (
	valuePrefix = []byte("state:")
	rootKey     = []byte("state-root")
)

// ErrStaleRoot is returned when a caller supplies a root that does not match
// the committed state in the backing database.
var ErrStaleRoot = errors.New("trie: root does not match committed state")

// NewTrie opens the state layer over the provided storage. A nil or empty
// root adopts whatever root the database holds; a non-empty root must match
// the committed one.
func NewTrie(store storage.Database, root []byte) (*Trie, error) {
	committed := common.Hash{}
	stored, err := store.Get(rootKey)
	switch {
	case err == nil:
		committed = common.BytesToHash(stored)
	case errors.Is(err, storage.ErrKeyNotFound):
		// Fresh database, empty root.
	default:
		return nil, err
	}
	if len(root) > 0 && common.BytesToHash(root) != committed {
		return nil, fmt.Errorf("%w: have %x, want %x", ErrStaleRoot, committed, root)
	}
	return &Trie{
		store: store,
		dirty: make(map[string][]byte),
		root:  committed,
	}, nil
}

// Get retrieves a value for the provided key, consulting the journal before
// the committed state. Missing keys yield an empty value, not an error.
func (t *Trie) Get(key []byte) ([]byte, error) {
	if value, ok := t.dirty[string(key)]; ok {
		return append([]byte(nil), value...), nil
	}
	value, err := t.store.Get(valueKey(key))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return nil, nil
	}
	return value, err
}

// Update records a value for the provided key in the journal.
func (t *Trie) Update(key, value []byte) error {
	t.dirty[string(key)] = append([]byte(nil), value...)
	return nil
}

// Hash returns the root the trie would have if the journal were committed now.
func (t *Trie) Hash() common.Hash {
	if len(t.dirty) == 0 {
		return t.root
	}
	return t.fold()
}

// Root returns the last committed root hash.
func (t *Trie) Root() common.Hash {
	return t.root
}

// Reset discards all journaled changes, rolling the trie back to the provided
// committed root. Only the current committed root can be restored.
func (t *Trie) Reset(root common.Hash) error {
	if root != t.root {
		return fmt.Errorf("%w: have %x, want %x", ErrStaleRoot, t.root, root)
	}
	t.dirty = make(map[string][]byte)
	return nil
}

// Copy creates a trie sharing the same backing database with an independent
// journal.
func (t *Trie) Copy() (*Trie, error) {
	dirty := make(map[string][]byte, len(t.dirty))
	for k, v := range t.dirty {
		dirty[k] = append([]byte(nil), v...)
	}
	return &Trie{store: t.store, dirty: dirty, root: t.root}, nil
}

// Commit flushes the journal to the backing database and returns the new
// committed root.
func (t *Trie) Commit() (common.Hash, error) {
	if len(t.dirty) == 0 {
		return t.root, nil
	}
	newRoot := t.fold()
	for key, value := range t.dirty {
		if err := t.store.Put(valueKey([]byte(key)), value); err != nil {
			return common.Hash{}, err
		}
	}
	if err := t.store.Put(rootKey, newRoot.Bytes()); err != nil {
		return common.Hash{}, err
	}
	t.dirty = make(map[string][]byte)
	t.root = newRoot
	return newRoot, nil
}

// Store exposes the backing storage in case callers need to access it
// directly.
func (t *Trie) Store() storage.Database {
	return t.store
}

func (t *Trie) fold() common.Hash {
	keys := make([]string, 0, len(t.dirty))
	for k := range t.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf bytes.Buffer
	buf.Write(t.root.Bytes())
	for _, k := range keys {
		buf.Write(ethcrypto.Keccak256([]byte(k), t.dirty[k]))
	}
	return common.BytesToHash(ethcrypto.Keccak256(buf.Bytes()))
}

func valueKey(key []byte) []byte {
	out := make([]byte, len(valuePrefix)+len(key))
	copy(out, valuePrefix)
	copy(out[len(valuePrefix):], key)
	return out
}
