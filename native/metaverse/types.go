package metaverse

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Permission keys guarded by the system scope.
const (
	// PermDeploy allows registering new plug-in modules.
	PermDeploy = "metaverse.deploy"
	// PermMintBrand allows minting brand tokens.
	PermMintBrand = "metaverse.mint-brand"
)

// Scope selects the permission namespace: the system scope or a single brand.
// The zero brand address denotes the system, matching the fungible token
// scope encoding.
type Scope struct {
	brand [20]byte
}

// SystemScope returns the metaverse-wide scope.
func SystemScope() Scope {
	return Scope{}
}

// BrandScope returns the scope of a single brand.
func BrandScope(brand [20]byte) Scope {
	return Scope{brand: brand}
}

// IsSystem reports whether the scope is the metaverse-wide one.
func (s Scope) IsSystem() bool {
	return s.brand == [20]byte{}
}

// Brand returns the brand address the scope is bound to.
func (s Scope) Brand() [20]byte {
	return s.brand
}

// Permission is either a named permission bit or the superuser bit. The
// superuser bit satisfies every named check in its scope but can only be
// granted by the literal scope owner.
type Permission struct {
	key       string
	superuser bool
}

// Named returns the permission for a specific key.
func Named(key string) Permission {
	return Permission{key: key}
}

// Superuser is the scope-wide superuser permission.
var Superuser = Permission{superuser: true}

// IsSuperuser reports whether the permission is the superuser bit.
func (p Permission) IsSuperuser() bool {
	return p.superuser
}

// Key returns the permission key for named permissions.
func (p Permission) Key() string {
	return p.key
}

// TypeModule is the capability interface every type resolver implements: it
// produces metadata for ids it owns and is notified when they burn.
type TypeModule interface {
	Metadata(id *uint256.Int) ([]byte, error)
	OnBurned(operator, owner [20]byte, id *uint256.Int, amount *big.Int) error
}

// Plugin is the full capability surface of a registered extension module.
type Plugin interface {
	TypeModule
	// Address is the module's stable identity within the ledger.
	Address() [20]byte
	// Metaverse reports the ledger instance the module was built for.
	// Registration is rejected when it does not match.
	Metaverse() [20]byte
	// Initialize is invoked exactly once, during registration, before the
	// ledger accepts any allocator calls from the module.
	Initialize() error
}

// OwnershipObserver may be implemented by plugins that want transfer
// callbacks for instances of their types.
type OwnershipObserver interface {
	OnOwnershipChanged(id *uint256.Int, newOwner [20]byte) error
}

// Ledger is the external multi-asset balance ledger. The core never touches
// balances itself; it forwards mints and burns and asks about operator
// approvals.
//
// Transfer hooks (Engine.OnOwnershipChanged) must be delivered after the
// triggering ledger call has returned, never from inside it; the engine
// serializes operations per instance.
type Ledger interface {
	Mint(to [20]byte, id *uint256.Int, amount *big.Int, data []byte) error
	Burn(from [20]byte, id *uint256.Int, amount *big.Int) error
	BurnBatch(from [20]byte, ids []*uint256.Int, amounts []*big.Int) error
	IsApprovedOperator(owner, operator [20]byte) bool
}

// BrandRegistry is the external collaborator owning brand metadata and brand
// ownership records.
type BrandRegistry interface {
	BrandExists(brand [20]byte) bool
	Owner(brand [20]byte) ([20]byte, bool)
	MetadataURI(brand [20]byte) ([]byte, error)
	OnOwnerChanged(brand [20]byte, newOwner [20]byte) error
}

// Verifier recovers the signer of a delegation hash. Implementations are
// pluggable; the default uses recoverable secp256k1 signatures.
type Verifier interface {
	Verify(hash [32]byte, signature []byte) ([20]byte, bool)
}

// ledgerState is the slice of the state manager the engine depends on.
type ledgerState interface {
	Owner() ([20]byte, error)
	SetOwner(owner [20]byte) error

	Resolver(typeID *uint256.Int) ([20]byte, bool, error)
	SetResolver(typeID *uint256.Int, module [20]byte) error

	InstanceType(instance *uint256.Int) (*uint256.Int, error)
	SetInstanceType(instance, typeID *uint256.Int) error

	NextNFTType() (*uint256.Int, error)
	SetNextNFTType(cursor *uint256.Int) error
	NextNFTInstance() (*uint256.Int, error)
	SetNextNFTInstance(cursor *uint256.Int) error
	FTCursor(scope [20]byte) (uint64, error)
	SetFTCursor(scope [20]byte, cursor uint64) error

	AddPlugin(module [20]byte) error
	PluginRegistered(module [20]byte) bool

	SetPermission(brand [20]byte, key string, account [20]byte, allowed bool) error
	HasPermission(brand [20]byte, key string, account [20]byte) bool
	SetSuperuser(brand [20]byte, account [20]byte, allowed bool) error
	HasSuperuser(brand [20]byte, account [20]byte) bool

	MarkDelegationHash(hash [32]byte) error
	DelegationHashUsed(hash [32]byte) bool

	Commit() (common.Hash, error)
	Revert() error
}
