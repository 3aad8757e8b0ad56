package metaverse

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	nativecommon "metaverse/native/common"
	"metaverse/token"
)

// registerType binds a token type to the single module responsible for its
// metadata and burn notifications. The binding is write-once; there is no
// update or removal.
func (e *Engine) registerType(typeID *uint256.Int, module [20]byte) error {
	if _, taken, err := e.st.Resolver(typeID); err != nil {
		return err
	} else if taken {
		return fmt.Errorf("%w: type %s", ErrAlreadyRegistered, typeID.Hex())
	}
	return e.st.SetResolver(typeID, module)
}

// RegisterType binds an explicit type id to a registered plug-in. The normal
// path is sequential allocation; this entry point exists for administrative
// rebinding of ids carried over from another ledger and is gated on the
// deploy permission.
func (e *Engine) RegisterType(caller [20]byte, typeID *uint256.Int, module [20]byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.withCommit(func() error {
		if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
			return err
		}
		if !e.isAllowed(SystemScope(), Named(PermDeploy), caller) {
			return fmt.Errorf("%w: %s required", ErrUnauthorized, PermDeploy)
		}
		if !e.st.PluginRegistered(module) {
			return fmt.Errorf("%w: %x is not a registered plug-in", ErrUnauthorized, module)
		}
		if !token.IsNFTType(typeID) && !token.IsFT(typeID) {
			return fmt.Errorf("%w: %s is not a token type", ErrInvalidRange, typeID.Hex())
		}
		return e.registerType(typeID, module)
	})
}

// ResolverOf returns the module responsible for a token type, if any.
func (e *Engine) ResolverOf(typeID *uint256.Int) ([20]byte, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.st.Resolver(typeID)
}

// MetadataOf resolves the metadata bytes for any token id. Brand ids are
// answered by the brand registry, NFT instances by the resolver of their
// type and fungible ids by their own resolver. Ids that resolve to nothing
// yield an empty result, not an error; absence of metadata is a valid state
// for unknown ids.
func (e *Engine) MetadataOf(id *uint256.Int) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case token.IsBrand(id):
		brand, err := token.BrandAddress(id)
		if err != nil {
			return nil, err
		}
		if !e.brands.BrandExists(brand) {
			return nil, nil
		}
		return e.brands.MetadataURI(brand)
	case token.IsNFT(id):
		typeID, err := e.st.InstanceType(id)
		if err != nil {
			return nil, err
		}
		if typeID.IsZero() {
			return nil, nil
		}
		return e.moduleMetadata(typeID, id)
	case token.IsFT(id):
		return e.moduleMetadata(id, id)
	default:
		return nil, nil
	}
}

func (e *Engine) moduleMetadata(typeID, id *uint256.Int) ([]byte, error) {
	resolver, ok, err := e.st.Resolver(typeID)
	if err != nil || !ok {
		return nil, err
	}
	module, ok := e.plugins[resolver]
	if !ok {
		return nil, nil
	}
	return module.Metadata(id)
}

// notifyBurned forwards a burn to the resolving module. A zero amount or a
// type without a resolver completes silently; the burn itself has already
// happened on the external ledger and must not be failed retroactively.
// Brand ids are rejected before this point.
func (e *Engine) notifyBurned(operator, owner [20]byte, id *uint256.Int, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	typeID := id
	if token.IsNFT(id) {
		instanceType, err := e.st.InstanceType(id)
		if err != nil {
			return err
		}
		if instanceType.IsZero() {
			return nil
		}
		typeID = instanceType
	} else if !token.IsFT(id) {
		return nil
	}
	resolver, ok, err := e.st.Resolver(typeID)
	if err != nil || !ok {
		return err
	}
	module, ok := e.plugins[resolver]
	if !ok {
		return nil
	}
	return module.OnBurned(operator, owner, id, amount)
}
