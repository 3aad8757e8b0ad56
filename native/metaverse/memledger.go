package metaverse

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

// MemLedger is an in-memory reference implementation of the external balance
// ledger, used in tests and when the daemon runs standalone. It keeps plain
// balances and operator approvals; transfer mechanics beyond mint and burn
// are out of the core's scope.
type MemLedger struct {
	mu        sync.RWMutex
	balances  map[[20]byte]map[string]*big.Int
	operators map[[20]byte]map[[20]byte]bool
}

func NewMemLedger() *MemLedger {
	return &MemLedger{
		balances:  make(map[[20]byte]map[string]*big.Int),
		operators: make(map[[20]byte]map[[20]byte]bool),
	}
}

func balanceKey(id *uint256.Int) string {
	buf := id.Bytes32()
	return string(buf[:])
}

func (l *MemLedger) Mint(to [20]byte, id *uint256.Int, amount *big.Int, data []byte) error {
	if amount == nil || amount.Sign() <= 0 {
		return errors.New("memledger: amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	account := l.balances[to]
	if account == nil {
		account = make(map[string]*big.Int)
		l.balances[to] = account
	}
	key := balanceKey(id)
	current := account[key]
	if current == nil {
		current = new(big.Int)
	}
	account[key] = new(big.Int).Add(current, amount)
	return nil
}

func (l *MemLedger) Burn(from [20]byte, id *uint256.Int, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("memledger: negative amount")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.burnLocked(from, id, amount)
}

func (l *MemLedger) BurnBatch(from [20]byte, ids []*uint256.Int, amounts []*big.Int) error {
	if len(ids) != len(amounts) {
		return errors.New("memledger: ids and amounts differ in length")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range ids {
		if err := l.burnLocked(from, ids[i], amounts[i]); err != nil {
			return err
		}
	}
	return nil
}

func (l *MemLedger) burnLocked(from [20]byte, id *uint256.Int, amount *big.Int) error {
	account := l.balances[from]
	key := balanceKey(id)
	current := account[key]
	if current == nil || current.Cmp(amount) < 0 {
		return errors.New("memledger: insufficient balance")
	}
	account[key] = new(big.Int).Sub(current, amount)
	return nil
}

func (l *MemLedger) IsApprovedOperator(owner, operator [20]byte) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.operators[owner][operator]
}

// SetApproval records or clears an operator approval for owner.
func (l *MemLedger) SetApproval(owner, operator [20]byte, approved bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ops := l.operators[owner]
	if ops == nil {
		ops = make(map[[20]byte]bool)
		l.operators[owner] = ops
	}
	ops[operator] = approved
}

// BalanceOf returns the current balance of id held by account.
func (l *MemLedger) BalanceOf(account [20]byte, id *uint256.Int) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	current := l.balances[account][balanceKey(id)]
	if current == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(current)
}

// MemBrandRegistry is an in-memory reference implementation of the brand
// registry collaborator.
type MemBrandRegistry struct {
	mu     sync.RWMutex
	owners map[[20]byte][20]byte
	uris   map[[20]byte][]byte
}

func NewMemBrandRegistry() *MemBrandRegistry {
	return &MemBrandRegistry{
		owners: make(map[[20]byte][20]byte),
		uris:   make(map[[20]byte][]byte),
	}
}

func (r *MemBrandRegistry) BrandExists(brand [20]byte) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.owners[brand]
	return ok
}

func (r *MemBrandRegistry) Owner(brand [20]byte) ([20]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	owner, ok := r.owners[brand]
	return owner, ok
}

func (r *MemBrandRegistry) MetadataURI(brand [20]byte) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]byte(nil), r.uris[brand]...), nil
}

// SetMetadataURI stores the metadata document for a brand.
func (r *MemBrandRegistry) SetMetadataURI(brand [20]byte, uri []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uris[brand] = append([]byte(nil), uri...)
}

func (r *MemBrandRegistry) OnOwnerChanged(brand [20]byte, newOwner [20]byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[brand] = newOwner
	return nil
}
