package metaverse

import (
	"fmt"
	"math"

	"github.com/holiman/uint256"

	"metaverse/core/events"
	nativecommon "metaverse/native/common"
	"metaverse/token"
)

// maxNFTSlot is 2^255-1, the exclusive upper bound for both NFT type and NFT
// instance scans.
var maxNFTSlot = new(uint256.Int).SubUint64(token.NFTBound, 1)

// AllocateNFTType hands out the next free NFT type number to a registered
// plug-in and records the plug-in as its resolver.
//
// Probing always proceeds upward; slots skipped because of a collision stay
// unavailable forever. Ids are never reused, which keeps every historic id
// unambiguous.
func (e *Engine) AllocateNFTType(caller [20]byte) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var allocated *uint256.Int
	err := e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if !e.st.PluginRegistered(caller) {
			return fmt.Errorf("%w: %x is not a registered plug-in", ErrUnauthorized, caller)
		}
		cursor, err := e.st.NextNFTType()
		if err != nil {
			return err
		}
		for {
			if !cursor.Lt(maxNFTSlot) {
				return fmt.Errorf("%w: NFT type space", ErrExhausted)
			}
			if _, taken, err := e.st.Resolver(cursor); err != nil {
				return err
			} else if !taken {
				break
			}
			cursor = new(uint256.Int).AddUint64(cursor, 1)
		}
		if err := e.registerType(cursor, caller); err != nil {
			return err
		}
		if err := e.st.SetNextNFTType(new(uint256.Int).AddUint64(cursor, 1)); err != nil {
			return err
		}
		allocated = cursor
		e.queue(events.TypeAllocated{TypeID: cursor.ToBig(), Resolver: caller})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocated, nil
}

// AllocateFTType hands out the next free fungible token id within the given
// brand scope (zero scope = system wide) to a registered plug-in. The id
// doubles as the type and carries the scope and a 64-bit sequential index.
func (e *Engine) AllocateFTType(caller [20]byte, scope [20]byte) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var allocated *uint256.Int
	err := e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if !e.st.PluginRegistered(caller) {
			return fmt.Errorf("%w: %x is not a registered plug-in", ErrUnauthorized, caller)
		}
		index, err := e.st.FTCursor(scope)
		if err != nil {
			return err
		}
		var candidate *uint256.Int
		for {
			candidate = token.NewFTID(scope, index)
			_, taken, err := e.st.Resolver(candidate)
			if err != nil {
				return err
			}
			if !taken {
				break
			}
			if index == math.MaxUint64 {
				return fmt.Errorf("%w: FT index space for scope %x", ErrExhausted, scope)
			}
			index++
		}
		if err := e.registerType(candidate, caller); err != nil {
			return err
		}
		next := index
		if index < math.MaxUint64 {
			next = index + 1
		}
		if err := e.st.SetFTCursor(scope, next); err != nil {
			return err
		}
		allocated = candidate
		e.queue(events.TypeAllocated{TypeID: candidate.ToBig(), Resolver: caller, Fungible: true, Scope: scope})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocated, nil
}

// allocateNFTInstance picks the next free instance id for typeID and records
// its type. Only the module resolving the type may mint instances of it; the
// check runs here, on every mint, regardless of earlier authorizations.
func (e *Engine) allocateNFTInstance(caller [20]byte, typeID *uint256.Int) (*uint256.Int, error) {
	if !token.IsNFTType(typeID) {
		return nil, fmt.Errorf("%w: %s is not an allocatable NFT type", ErrInvalidRange, typeID.Hex())
	}
	if err := e.requireResolver(caller, typeID); err != nil {
		return nil, err
	}
	cursor, err := e.st.NextNFTInstance()
	if err != nil {
		return nil, err
	}
	for {
		if !cursor.Lt(maxNFTSlot) {
			return nil, fmt.Errorf("%w: NFT instance space", ErrExhausted)
		}
		existing, err := e.st.InstanceType(cursor)
		if err != nil {
			return nil, err
		}
		if existing.IsZero() {
			break
		}
		cursor = new(uint256.Int).AddUint64(cursor, 1)
	}
	if err := e.st.SetInstanceType(cursor, typeID); err != nil {
		return nil, err
	}
	if err := e.st.SetNextNFTInstance(new(uint256.Int).AddUint64(cursor, 1)); err != nil {
		return nil, err
	}
	return cursor, nil
}

// AllocateNFTInstance is the standalone allocation entry point for modules
// that mint through the external ledger themselves.
func (e *Engine) AllocateNFTInstance(caller [20]byte, typeID *uint256.Int) (*uint256.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var instance *uint256.Int
	err := e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		var err error
		instance, err = e.allocateNFTInstance(caller, typeID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}
