package metaverse

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/holiman/uint256"

	"metaverse/core/events"
	nativecommon "metaverse/native/common"
	"metaverse/token"
)

const moduleName = "metaverse"

// Engine is the ledger core: it owns the identifier allocators, the type
// resolver registry, the permission table and the delegation gate, and
// composes them to service mint, burn and transfer-hook requests from the
// external balance ledger.
//
// Every mutating operation runs under the engine lock and commits or reverts
// the state journal as a whole; a failed operation leaves no partial writes
// behind. Independent engine instances are fully independent.
type Engine struct {
	mu sync.Mutex

	id       [20]byte
	st       ledgerState
	ledger   Ledger
	brands   BrandRegistry
	verifier Verifier

	emitter    events.Emitter
	pauses     nativecommon.PauseView
	reentrancy *nativecommon.Reentrancy

	plugins map[[20]byte]Plugin
	pending []events.Event
}

// NewEngine creates the ledger core for the metaverse identified by id,
// operating on the provided state and collaborators.
func NewEngine(id [20]byte, st ledgerState, ledger Ledger, brands BrandRegistry) *Engine {
	return &Engine{
		id:         id,
		st:         st,
		ledger:     ledger,
		brands:     brands,
		verifier:   recoverVerifier{},
		emitter:    events.NoopEmitter{},
		reentrancy: nativecommon.NewReentrancy(),
		plugins:    make(map[[20]byte]Plugin),
	}
}

// SetEmitter configures the event emitter used to broadcast ledger changes.
// Passing nil resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetPauses configures the pause view consulted before every mutation.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	e.pauses = p
}

// SetVerifier overrides the delegation signature verifier. Passing nil
// restores the default recoverable-secp256k1 verifier.
func (e *Engine) SetVerifier(v Verifier) {
	if v == nil {
		e.verifier = recoverVerifier{}
		return
	}
	e.verifier = v
}

// ID returns the identity of this metaverse instance.
func (e *Engine) ID() [20]byte {
	return e.id
}

// Bootstrap records the metaverse owner on a fresh ledger. It refuses to
// overwrite an existing owner.
func (e *Engine) Bootstrap(owner [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withCommit(func() error {
		existing, err := e.st.Owner()
		if err != nil {
			return err
		}
		if existing != ([20]byte{}) {
			return fmt.Errorf("%w: owner", ErrAlreadyRegistered)
		}
		return e.st.SetOwner(owner)
	})
}

// MintFT forwards a fungible mint to the external ledger after re-validating
// that the calling module resolves the token type. The resolver is always
// re-checked at mint time, never trusted from an earlier allocation.
func (e *Engine) MintFT(caller, to [20]byte, ftID *uint256.Int, amount *big.Int, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if !token.IsFT(ftID) {
			return fmt.Errorf("%w: %s is not a fungible token id", ErrInvalidRange, ftID.Hex())
		}
		if err := e.requireResolver(caller, ftID); err != nil {
			return err
		}
		if err := e.ledger.Mint(to, ftID, amount, data); err != nil {
			return err
		}
		e.queue(events.TokenMinted{To: to, ID: ftID.ToBig(), Amount: new(big.Int).Set(amount), Minter: caller})
		return nil
	})
}

// MintNFT allocates the next instance of the given type and forwards the mint
// to the external ledger. Only the module resolving the type may mint.
func (e *Engine) MintNFT(caller, to [20]byte, typeID *uint256.Int, data []byte) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var instance *uint256.Int
	err := e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		var err error
		instance, err = e.allocateNFTInstance(caller, typeID)
		if err != nil {
			return err
		}
		if err := e.ledger.Mint(to, instance, big.NewInt(1), data); err != nil {
			return err
		}
		e.queue(events.TokenMinted{To: to, ID: instance.ToBig(), Amount: big.NewInt(1), Minter: caller})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

// MintBrand mints the brand token for the given account. The brand id equals
// the account address; an account can hold at most one brand.
func (e *Engine) MintBrand(caller, to [20]byte, data []byte) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var id *uint256.Int
	err := e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if !e.isAllowed(SystemScope(), Named(PermMintBrand), caller) {
			return fmt.Errorf("%w: %s required", ErrUnauthorized, PermMintBrand)
		}
		if e.brands.BrandExists(to) {
			return fmt.Errorf("%w: brand %x", ErrAlreadyRegistered, to)
		}
		id = token.BrandID(to)
		if err := e.ledger.Mint(to, id, big.NewInt(1), data); err != nil {
			return err
		}
		if err := e.brands.OnOwnerChanged(to, to); err != nil {
			return err
		}
		e.queue(events.TokenMinted{To: to, ID: id.ToBig(), Amount: big.NewInt(1), Minter: caller})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return id, nil
}

// BurnToken burns an amount of a single token owned by owner and notifies the
// resolving module. Brands can never be burned.
func (e *Engine) BurnToken(caller, owner [20]byte, id *uint256.Int, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	release, err := e.reentrancy.Enter("burn")
	if err != nil {
		return err
	}
	defer release()
	return e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if err := e.burnOne(caller, owner, id, amount); err != nil {
			return err
		}
		return nil
	})
}

// BurnTokens burns a batch of tokens owned by owner with a single external
// ledger call, then notifies each resolving module.
func (e *Engine) BurnTokens(caller, owner [20]byte, ids []*uint256.Int, amounts []*big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	release, err := e.reentrancy.Enter("burn")
	if err != nil {
		return err
	}
	defer release()
	return e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if len(ids) != len(amounts) {
			return fmt.Errorf("%w: %d ids, %d amounts", ErrInvalidOperation, len(ids), len(amounts))
		}
		for _, id := range ids {
			if token.IsBrand(id) {
				return fmt.Errorf("%w: brands cannot be burned", ErrInvalidOperation)
			}
		}
		if err := e.requireOwnerOrOperator(caller, owner); err != nil {
			return err
		}
		if err := e.ledger.BurnBatch(owner, ids, amounts); err != nil {
			return err
		}
		for i, id := range ids {
			if err := e.notifyBurned(caller, owner, id, amounts[i]); err != nil {
				return err
			}
			e.queue(events.TokenBurned{Owner: owner, ID: id.ToBig(), Amount: new(big.Int).Set(amounts[i]), Operator: caller})
		}
		return nil
	})
}

func (e *Engine) burnOne(caller, owner [20]byte, id *uint256.Int, amount *big.Int) error {
	if token.IsBrand(id) {
		return fmt.Errorf("%w: brands cannot be burned", ErrInvalidOperation)
	}
	if err := e.requireOwnerOrOperator(caller, owner); err != nil {
		return err
	}
	if err := e.ledger.Burn(owner, id, amount); err != nil {
		return err
	}
	if err := e.notifyBurned(caller, owner, id, amount); err != nil {
		return err
	}
	e.queue(events.TokenBurned{Owner: owner, ID: id.ToBig(), Amount: new(big.Int).Set(amount), Operator: caller})
	return nil
}

func (e *Engine) requireOwnerOrOperator(caller, owner [20]byte) error {
	if caller == owner || e.ledger.IsApprovedOperator(owner, caller) {
		return nil
	}
	return fmt.Errorf("%w: not the owner or an approved operator", ErrUnauthorized)
}

func (e *Engine) requireResolver(caller [20]byte, typeID *uint256.Int) error {
	resolver, ok, err := e.st.Resolver(typeID)
	if err != nil {
		return err
	}
	if !ok || resolver != caller {
		return fmt.Errorf("%w: caller does not resolve type %s", ErrUnauthorized, typeID.Hex())
	}
	return nil
}

// OnOwnershipChanged is the transfer-hook callback from the external ledger.
// Brand transfers are routed to the brand registry, NFT instance transfers to
// the resolving module when it observes ownership. Fungible transfers carry
// no single owner and are ignored.
func (e *Engine) OnOwnershipChanged(id *uint256.Int, newOwner [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withCommit(func() error {
		switch {
		case token.IsBrand(id):
			brand, err := token.BrandAddress(id)
			if err != nil {
				return err
			}
			if err := e.brands.OnOwnerChanged(brand, newOwner); err != nil {
				return err
			}
		case token.IsNFT(id):
			typeID, err := e.st.InstanceType(id)
			if err != nil {
				return err
			}
			if typeID.IsZero() {
				return nil
			}
			resolver, ok, err := e.st.Resolver(typeID)
			if err != nil || !ok {
				return err
			}
			if observer, ok := e.plugins[resolver].(OwnershipObserver); ok {
				if err := observer.OnOwnershipChanged(id, newOwner); err != nil {
					return err
				}
			}
		default:
			return nil
		}
		e.queue(events.OwnershipChanged{ID: id.ToBig(), NewOwner: newOwner})
		return nil
	})
}

// withCommit runs fn inside the state journal: on any error every pending
// write is discarded, otherwise the journal is committed and queued events
// are emitted. Callers hold the engine lock.
func (e *Engine) withCommit(fn func() error) error {
	e.pending = e.pending[:0]
	if err := fn(); err != nil {
		e.pending = e.pending[:0]
		if revertErr := e.st.Revert(); revertErr != nil {
			return fmt.Errorf("%w (revert failed: %v)", err, revertErr)
		}
		return err
	}
	if _, err := e.st.Commit(); err != nil {
		e.pending = e.pending[:0]
		_ = e.st.Revert()
		return err
	}
	for _, ev := range e.pending {
		e.emitter.Emit(ev)
	}
	e.pending = e.pending[:0]
	return nil
}

func (e *Engine) queue(ev events.Event) {
	e.pending = append(e.pending, ev)
}
