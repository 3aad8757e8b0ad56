package events

import "math/big"

const (
	// TypePluginRegistered is emitted when a plug-in module joins the ledger.
	TypePluginRegistered = "metaverse.plugin.registered"
	// TypeTypeAllocated is emitted for every NFT or FT type allocation.
	TypeTypeAllocated = "metaverse.type.allocated"
	// TypePermissionChanged is emitted when a permission bit flips.
	TypePermissionChanged = "metaverse.permission.changed"
	// TypeDelegationConsumed is emitted when a signed delegation is used up.
	TypeDelegationConsumed = "metaverse.delegation.consumed"
	// TypeTokenMinted is emitted for FT, NFT instance and brand mints.
	TypeTokenMinted = "metaverse.token.minted"
	// TypeTokenBurned is emitted after the external ledger burns a token.
	TypeTokenBurned = "metaverse.token.burned"
	// TypeOwnershipChanged is emitted when the external ledger reports a
	// transfer of a brand or NFT instance.
	TypeOwnershipChanged = "metaverse.ownership.changed"
)

// PluginRegistered records a successful plug-in registration.
type PluginRegistered struct {
	Module    [20]byte
	Registrar [20]byte
}

func (PluginRegistered) EventType() string { return TypePluginRegistered }

// TypeAllocated records a freshly allocated token type and its resolver.
type TypeAllocated struct {
	TypeID   *big.Int
	Resolver [20]byte
	Fungible bool
	Scope    [20]byte
}

func (TypeAllocated) EventType() string { return TypeTypeAllocated }

// PermissionChanged is the auditable record of a Grant call.
type PermissionChanged struct {
	Brand     [20]byte
	Key       string
	Superuser bool
	Account   [20]byte
	Allowed   bool
	Granter   [20]byte
}

func (PermissionChanged) EventType() string { return TypePermissionChanged }

// DelegationConsumed records the one-time use of a signed delegation hash.
type DelegationConsumed struct {
	Hash   [32]byte
	Signer [20]byte
}

func (DelegationConsumed) EventType() string { return TypeDelegationConsumed }

// TokenMinted records a mint forwarded to the external balance ledger.
type TokenMinted struct {
	To     [20]byte
	ID     *big.Int
	Amount *big.Int
	Minter [20]byte
}

func (TokenMinted) EventType() string { return TypeTokenMinted }

// TokenBurned records a burn forwarded to the external balance ledger.
type TokenBurned struct {
	Owner    [20]byte
	ID       *big.Int
	Amount   *big.Int
	Operator [20]byte
}

func (TokenBurned) EventType() string { return TypeTokenBurned }

// OwnershipChanged records a transfer callback from the external ledger.
type OwnershipChanged struct {
	ID       *big.Int
	NewOwner [20]byte
}

func (OwnershipChanged) EventType() string { return TypeOwnershipChanged }
