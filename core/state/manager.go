package state

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"metaverse/storage/trie"
	"metaverse/token"
)

// Manager provides the ledger's state schema on top of the trie: the type
// resolver map, the NFT instance-type map, the allocation cursors, the plugin
// set, the two-level permission table and the used-delegation-hash set.
//
// Nothing here is ever deleted. Resolver and instance entries are written at
// most once, cursors only move forward and consumed delegation hashes stay
// consumed; mirroring chain storage keeps replay and reuse impossible.
type Manager struct {
	trie *trie.Trie
}

// NewManager creates a state manager operating on the provided trie.
func NewManager(tr *trie.Trie) *Manager {
	return &Manager{trie: tr}
}

var (
	ownerKey           = ethcrypto.Keccak256([]byte("metaverse-owner"))
	nextNFTTypeKey     = ethcrypto.Keccak256([]byte("cursor:nft-type"))
	nextNFTInstanceKey = ethcrypto.Keccak256([]byte("cursor:nft-instance"))
	pluginListKey      = ethcrypto.Keccak256([]byte("plugin-list"))

	resolverPrefix     = []byte("resolver:")
	instanceTypePrefix = []byte("instance-type:")
	ftCursorPrefix     = []byte("cursor:ft:")
	pluginPrefix       = []byte("plugin:")
	permNamedPrefix    = []byte("perm:")
	permSuperPrefix    = []byte("perm-super:")
	usedHashPrefix     = []byte("delegation-used:")
)

func prefixedKey(prefix []byte, parts ...[]byte) []byte {
	size := len(prefix)
	for _, p := range parts {
		size += len(p) + 1
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, p := range parts {
		buf = append(buf, p...)
		buf = append(buf, ':')
	}
	return ethcrypto.Keccak256(buf)
}

func idBytes(id *uint256.Int) []byte {
	buf := id.Bytes32()
	return buf[:]
}

func kvKey(key []byte) []byte {
	return ethcrypto.Keccak256(key)
}

// --- Ownership ---

// SetOwner records the metaverse owner account. The owner is implicitly a
// superuser in the system scope.
func (m *Manager) SetOwner(owner [20]byte) error {
	return m.putRLP(ownerKey, owner[:])
}

// Owner returns the metaverse owner account.
func (m *Manager) Owner() ([20]byte, error) {
	var out [20]byte
	data, ok, err := m.getRLPBytes(ownerKey)
	if err != nil || !ok {
		return out, err
	}
	copy(out[:], data)
	return out, nil
}

// --- Type resolver map ---

// SetResolver records the module responsible for a token type. Callers must
// check Resolver first; the entry is write-once by contract.
func (m *Manager) SetResolver(typeID *uint256.Int, module [20]byte) error {
	return m.putRLP(prefixedKey(resolverPrefix, idBytes(typeID)), module[:])
}

// Resolver returns the module registered for the given token type.
func (m *Manager) Resolver(typeID *uint256.Int) ([20]byte, bool, error) {
	var out [20]byte
	data, ok, err := m.getRLPBytes(prefixedKey(resolverPrefix, idBytes(typeID)))
	if err != nil || !ok {
		return out, false, err
	}
	copy(out[:], data)
	return out, true, nil
}

// --- NFT instance-type map ---

// SetInstanceType records the type of a freshly minted NFT instance.
func (m *Manager) SetInstanceType(instance, typeID *uint256.Int) error {
	return m.putRLP(prefixedKey(instanceTypePrefix, idBytes(instance)), idBytes(typeID))
}

// InstanceType returns the type of an NFT instance, or token.TypeInvalid when
// the instance has never been minted.
func (m *Manager) InstanceType(instance *uint256.Int) (*uint256.Int, error) {
	data, ok, err := m.getRLPBytes(prefixedKey(instanceTypePrefix, idBytes(instance)))
	if err != nil {
		return nil, err
	}
	if !ok {
		return uint256.NewInt(token.TypeInvalid), nil
	}
	return new(uint256.Int).SetBytes(data), nil
}

// --- Allocation cursors ---

// NextNFTType returns the NFT type allocation cursor, starting at
// token.FirstNFTType for a fresh ledger.
func (m *Manager) NextNFTType() (*uint256.Int, error) {
	data, ok, err := m.getRLPBytes(nextNFTTypeKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return uint256.NewInt(token.FirstNFTType), nil
	}
	return new(uint256.Int).SetBytes(data), nil
}

// SetNextNFTType advances the NFT type allocation cursor.
func (m *Manager) SetNextNFTType(cursor *uint256.Int) error {
	return m.putRLP(nextNFTTypeKey, idBytes(cursor))
}

// NextNFTInstance returns the NFT instance allocation cursor, starting at
// token.FirstNFTInstance for a fresh ledger.
func (m *Manager) NextNFTInstance() (*uint256.Int, error) {
	data, ok, err := m.getRLPBytes(nextNFTInstanceKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return new(uint256.Int).Set(token.FirstNFTInstance), nil
	}
	return new(uint256.Int).SetBytes(data), nil
}

// SetNextNFTInstance advances the NFT instance allocation cursor.
func (m *Manager) SetNextNFTInstance(cursor *uint256.Int) error {
	return m.putRLP(nextNFTInstanceKey, idBytes(cursor))
}

// FTCursor returns the per-scope fungible type index cursor.
func (m *Manager) FTCursor(scope [20]byte) (uint64, error) {
	var cursor uint64
	found, err := m.KVGet(rawFTCursorKey(scope), &cursor)
	if err != nil || !found {
		return 0, err
	}
	return cursor, nil
}

// SetFTCursor advances the per-scope fungible type index cursor.
func (m *Manager) SetFTCursor(scope [20]byte, cursor uint64) error {
	return m.KVPut(rawFTCursorKey(scope), cursor)
}

func rawFTCursorKey(scope [20]byte) []byte {
	buf := make([]byte, len(ftCursorPrefix)+len(scope))
	copy(buf, ftCursorPrefix)
	copy(buf[len(ftCursorPrefix):], scope[:])
	return buf
}

// --- Plugin registry ---

// AddPlugin records a module identity in the append-only plugin set.
func (m *Manager) AddPlugin(module [20]byte) error {
	if err := m.putRLP(prefixedKey(pluginPrefix, module[:]), true); err != nil {
		return err
	}
	return m.KVAppend([]byte("plugin-index"), module[:])
}

// PluginRegistered reports whether the module identity has been registered.
func (m *Manager) PluginRegistered(module [20]byte) bool {
	var registered bool
	data, err := m.trie.Get(prefixedKey(pluginPrefix, module[:]))
	if err != nil || len(data) == 0 {
		return false
	}
	if err := rlp.DecodeBytes(data, &registered); err != nil {
		return false
	}
	return registered
}

// Plugins returns every registered module identity in insertion order.
func (m *Manager) Plugins() ([][20]byte, error) {
	var raw [][]byte
	if err := m.KVGetList([]byte("plugin-index"), &raw); err != nil {
		return nil, err
	}
	out := make([][20]byte, 0, len(raw))
	for _, entry := range raw {
		var module [20]byte
		copy(module[:], entry)
		out = append(out, module)
	}
	return out, nil
}

// --- Permission table ---

// SetPermission flips a named permission bit. The zero brand denotes the
// system scope.
func (m *Manager) SetPermission(brand [20]byte, key string, account [20]byte, allowed bool) error {
	return m.putRLP(prefixedKey(permNamedPrefix, brand[:], []byte(key), account[:]), allowed)
}

// HasPermission reports whether the named permission bit is set. Errors while
// reading the underlying state result in a false return, matching the
// best-effort semantics required by the permission predicate.
func (m *Manager) HasPermission(brand [20]byte, key string, account [20]byte) bool {
	return m.boolAt(prefixedKey(permNamedPrefix, brand[:], []byte(key), account[:]))
}

// SetSuperuser flips the superuser bit for an account within a scope.
func (m *Manager) SetSuperuser(brand [20]byte, account [20]byte, allowed bool) error {
	return m.putRLP(prefixedKey(permSuperPrefix, brand[:], account[:]), allowed)
}

// HasSuperuser reports whether the superuser bit is set for an account within
// a scope.
func (m *Manager) HasSuperuser(brand [20]byte, account [20]byte) bool {
	return m.boolAt(prefixedKey(permSuperPrefix, brand[:], account[:]))
}

func (m *Manager) boolAt(key []byte) bool {
	data, err := m.trie.Get(key)
	if err != nil || len(data) == 0 {
		return false
	}
	var allowed bool
	if err := rlp.DecodeBytes(data, &allowed); err != nil {
		return false
	}
	return allowed
}

// --- Delegation replay protection ---

// MarkDelegationHash records a consumed delegation hash. Entries are never
// removed.
func (m *Manager) MarkDelegationHash(hash [32]byte) error {
	return m.putRLP(prefixedKey(usedHashPrefix, hash[:]), true)
}

// DelegationHashUsed reports whether a delegation hash has been consumed.
func (m *Manager) DelegationHashUsed(hash [32]byte) bool {
	return m.boolAt(prefixedKey(usedHashPrefix, hash[:]))
}

// --- Commit boundary ---

// CurrentRoot returns the last committed state root.
func (m *Manager) CurrentRoot() common.Hash {
	return m.trie.Root()
}

// Commit flushes all pending writes and returns the new state root.
func (m *Manager) Commit() (common.Hash, error) {
	return m.trie.Commit()
}

// Revert discards all writes since the last commit.
func (m *Manager) Revert() error {
	return m.trie.Reset(m.trie.Root())
}

// --- Generic KV helpers ---

// KVPut stores the provided value under the supplied key using RLP encoding.
// The key is hashed with keccak256 before insertion.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(kvKey(key), encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return reports whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.trie.Get(kvKey(key))
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// KVAppend appends the provided value to the RLP-encoded byte slice list
// stored under the supplied key. Duplicate values are ignored to keep the
// index deterministic.
func (m *Manager) KVAppend(key []byte, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.trie.Get(hashed)
	if err != nil {
		return err
	}
	var list [][]byte
	if len(data) > 0 {
		if err := rlp.DecodeBytes(data, &list); err != nil {
			return err
		}
	}
	for _, existing := range list {
		if bytes.Equal(existing, value) {
			return nil
		}
	}
	list = append(list, append([]byte(nil), value...))
	encoded, err := rlp.EncodeToBytes(list)
	if err != nil {
		return err
	}
	return m.trie.Update(hashed, encoded)
}

// KVGetList retrieves an RLP-encoded slice stored under the provided key and
// decodes it into the supplied destination slice pointer. When no value is
// present the destination is initialised with an empty slice to avoid nil
// surprises for callers.
func (m *Manager) KVGetList(key []byte, out interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	hashed := kvKey(key)
	data, err := m.trie.Get(hashed)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		val := reflect.ValueOf(out)
		if val.Kind() != reflect.Ptr || val.IsNil() {
			return fmt.Errorf("kv: destination must be a non-nil pointer")
		}
		elem := val.Elem()
		if elem.Kind() != reflect.Slice {
			return fmt.Errorf("kv: destination must point to a slice")
		}
		elem.Set(reflect.MakeSlice(elem.Type(), 0, 0))
		return nil
	}
	return rlp.DecodeBytes(data, out)
}

func (m *Manager) putRLP(hashedKey []byte, value interface{}) error {
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.trie.Update(hashedKey, encoded)
}

func (m *Manager) getRLPBytes(hashedKey []byte) ([]byte, bool, error) {
	data, err := m.trie.Get(hashedKey)
	if err != nil {
		return nil, false, err
	}
	if len(data) == 0 {
		return nil, false, nil
	}
	var out []byte
	if err := rlp.DecodeBytes(data, &out); err != nil {
		return nil, false, err
	}
	return out, true, nil
}
