package metaverse_test

import (
	"bytes"
	"errors"
	"math/big"
	"testing"

	"github.com/holiman/uint256"

	metaverse "metaverse/native/metaverse"
	"metaverse/token"
)

func TestMintNFTThroughLedger(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)
	typeID, err := env.engine.AllocateNFTType(plugin.Address())
	if err != nil {
		t.Fatalf("allocate type: %v", err)
	}

	holder := addr(0x90)
	instance, err := env.engine.MintNFT(plugin.Address(), holder, typeID, nil)
	if err != nil {
		t.Fatalf("mint nft: %v", err)
	}
	if !instance.Eq(token.FirstNFTInstance) {
		t.Fatalf("instance %s, want 2^160", instance.Hex())
	}
	if got := env.ledger.BalanceOf(holder, instance); got.Cmp(big.NewInt(1)) != 0 {
		t.Fatalf("holder balance %s, want 1", got)
	}
}

func TestMintNFTRejectsForeignModule(t *testing.T) {
	env := newTestEnv(t)
	owner := env.registerPlugin(t, 0x10)
	intruder := env.registerPlugin(t, 0x11)
	typeID, err := env.engine.AllocateNFTType(owner.Address())
	if err != nil {
		t.Fatalf("allocate type: %v", err)
	}

	if _, err := env.engine.MintNFT(intruder.Address(), addr(0x90), typeID, nil); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestMintFTRevalidatesResolver(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)
	other := env.registerPlugin(t, 0x11)
	ftID, err := env.engine.AllocateFTType(plugin.Address(), [20]byte{})
	if err != nil {
		t.Fatalf("allocate ft: %v", err)
	}

	holder := addr(0x90)
	if err := env.engine.MintFT(plugin.Address(), holder, ftID, big.NewInt(500), nil); err != nil {
		t.Fatalf("mint ft: %v", err)
	}
	if got := env.ledger.BalanceOf(holder, ftID); got.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("holder balance %s, want 500", got)
	}

	if err := env.engine.MintFT(other.Address(), holder, ftID, big.NewInt(1), nil); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-resolver, got %v", err)
	}
}

func TestMintFTRejectsNonFTIds(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)
	if err := env.engine.MintFT(plugin.Address(), addr(0x90), uint256.NewInt(42), big.NewInt(1), nil); !errors.Is(err, metaverse.ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestMintBrand(t *testing.T) {
	env := newTestEnv(t)
	brandHolder := addr(0xB0)

	id, err := env.engine.MintBrand(env.owner, brandHolder, nil)
	if err != nil {
		t.Fatalf("mint brand: %v", err)
	}
	if !id.Eq(token.BrandID(brandHolder)) {
		t.Fatalf("brand id %s, want the holder address", id.Hex())
	}
	if !env.brands.BrandExists(brandHolder) {
		t.Fatalf("brand registry not notified")
	}
	if owner, ok := env.brands.Owner(brandHolder); !ok || owner != brandHolder {
		t.Fatalf("brand owner %x, want %x", owner, brandHolder)
	}

	if _, err := env.engine.MintBrand(env.owner, brandHolder, nil); !errors.Is(err, metaverse.ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered for duplicate brand, got %v", err)
	}
}

func TestMintBrandRequiresPermission(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.engine.MintBrand(addr(0x33), addr(0xB0), nil); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestBurnBrandIsRejected(t *testing.T) {
	env := newTestEnv(t)
	brandHolder := addr(0xB0)
	if _, err := env.engine.MintBrand(env.owner, brandHolder, nil); err != nil {
		t.Fatalf("mint brand: %v", err)
	}

	id := token.BrandID(brandHolder)
	if err := env.engine.BurnToken(brandHolder, brandHolder, id, big.NewInt(1)); !errors.Is(err, metaverse.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation, got %v", err)
	}
}

func TestBurnNotifiesResolver(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)
	ftID, err := env.engine.AllocateFTType(plugin.Address(), [20]byte{})
	if err != nil {
		t.Fatalf("allocate ft: %v", err)
	}
	holder := addr(0x90)
	if err := env.engine.MintFT(plugin.Address(), holder, ftID, big.NewInt(100), nil); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := env.engine.BurnToken(holder, holder, ftID, big.NewInt(30)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	if got := env.ledger.BalanceOf(holder, ftID); got.Cmp(big.NewInt(70)) != 0 {
		t.Fatalf("balance after burn %s, want 70", got)
	}
	if len(plugin.burns) != 1 {
		t.Fatalf("resolver notified %d times, want 1", len(plugin.burns))
	}
	record := plugin.burns[0]
	if record.owner != holder || record.amount.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected burn record %+v", record)
	}
}

func TestBurnRequiresOwnerOrOperator(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)
	ftID, err := env.engine.AllocateFTType(plugin.Address(), [20]byte{})
	if err != nil {
		t.Fatalf("allocate ft: %v", err)
	}
	holder := addr(0x90)
	operator := addr(0x91)
	if err := env.engine.MintFT(plugin.Address(), holder, ftID, big.NewInt(10), nil); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := env.engine.BurnToken(operator, holder, ftID, big.NewInt(1)); !errors.Is(err, metaverse.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	env.ledger.SetApproval(holder, operator, true)
	if err := env.engine.BurnToken(operator, holder, ftID, big.NewInt(1)); err != nil {
		t.Fatalf("approved operator burn: %v", err)
	}
}

func TestBurnWithoutResolverCompletesSilently(t *testing.T) {
	env := newTestEnv(t)
	holder := addr(0x90)
	orphan := token.NewFTID([20]byte{}, 99)
	if err := env.ledger.Mint(holder, orphan, big.NewInt(5), nil); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	if err := env.engine.BurnToken(holder, holder, orphan, big.NewInt(5)); err != nil {
		t.Fatalf("burn of unresolved id must complete: %v", err)
	}
}

func TestBurnTokensBatch(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)
	first, err := env.engine.AllocateFTType(plugin.Address(), [20]byte{})
	if err != nil {
		t.Fatalf("allocate ft: %v", err)
	}
	second, err := env.engine.AllocateFTType(plugin.Address(), [20]byte{})
	if err != nil {
		t.Fatalf("allocate ft: %v", err)
	}
	holder := addr(0x90)
	for _, id := range []*uint256.Int{first, second} {
		if err := env.engine.MintFT(plugin.Address(), holder, id, big.NewInt(10), nil); err != nil {
			t.Fatalf("mint: %v", err)
		}
	}

	ids := []*uint256.Int{first, second}
	amounts := []*big.Int{big.NewInt(4), big.NewInt(6)}
	if err := env.engine.BurnTokens(holder, holder, ids, amounts); err != nil {
		t.Fatalf("burn batch: %v", err)
	}
	if got := env.ledger.BalanceOf(holder, first); got.Cmp(big.NewInt(6)) != 0 {
		t.Fatalf("first balance %s, want 6", got)
	}
	if len(plugin.burns) != 2 {
		t.Fatalf("resolver notified %d times, want 2", len(plugin.burns))
	}

	if err := env.engine.BurnTokens(holder, holder, ids, amounts[:1]); !errors.Is(err, metaverse.ErrInvalidOperation) {
		t.Fatalf("expected ErrInvalidOperation for mismatched batch, got %v", err)
	}
}

func TestMetadataRouting(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)

	// Brand metadata comes from the brand registry.
	brandHolder := addr(0xB0)
	if _, err := env.engine.MintBrand(env.owner, brandHolder, nil); err != nil {
		t.Fatalf("mint brand: %v", err)
	}
	env.brands.SetMetadataURI(brandHolder, []byte(`{"name":"acme"}`))
	got, err := env.engine.MetadataOf(token.BrandID(brandHolder))
	if err != nil {
		t.Fatalf("brand metadata: %v", err)
	}
	if !bytes.Contains(got, []byte("acme")) {
		t.Fatalf("unexpected brand metadata %q", got)
	}

	// NFT instance metadata comes from the resolver of its type.
	typeID, err := env.engine.AllocateNFTType(plugin.Address())
	if err != nil {
		t.Fatalf("allocate type: %v", err)
	}
	instance, err := env.engine.MintNFT(plugin.Address(), addr(0x90), typeID, nil)
	if err != nil {
		t.Fatalf("mint nft: %v", err)
	}
	plugin.metadata[instance.Hex()] = []byte(`{"name":"sword"}`)
	got, err = env.engine.MetadataOf(instance)
	if err != nil {
		t.Fatalf("instance metadata: %v", err)
	}
	if !bytes.Contains(got, []byte("sword")) {
		t.Fatalf("unexpected instance metadata %q", got)
	}

	// FT metadata comes from the id's own resolver.
	ftID, err := env.engine.AllocateFTType(plugin.Address(), [20]byte{})
	if err != nil {
		t.Fatalf("allocate ft: %v", err)
	}
	plugin.metadata[ftID.Hex()] = []byte(`{"name":"gold"}`)
	got, err = env.engine.MetadataOf(ftID)
	if err != nil {
		t.Fatalf("ft metadata: %v", err)
	}
	if !bytes.Contains(got, []byte("gold")) {
		t.Fatalf("unexpected ft metadata %q", got)
	}

	// Unknown ids resolve to empty metadata, not an error.
	got, err = env.engine.MetadataOf(new(uint256.Int).AddUint64(token.FirstNFTInstance, 999))
	if err != nil {
		t.Fatalf("unknown id metadata: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty metadata for unknown id, got %q", got)
	}
}

func TestOwnershipChangeRouting(t *testing.T) {
	env := newTestEnv(t)
	plugin := env.registerPlugin(t, 0x10)

	brandHolder := addr(0xB0)
	if _, err := env.engine.MintBrand(env.owner, brandHolder, nil); err != nil {
		t.Fatalf("mint brand: %v", err)
	}
	next := addr(0xB1)
	if err := env.engine.OnOwnershipChanged(token.BrandID(brandHolder), next); err != nil {
		t.Fatalf("brand ownership change: %v", err)
	}
	if owner, _ := env.brands.Owner(brandHolder); owner != next {
		t.Fatalf("brand owner %x, want %x", owner, next)
	}

	typeID, err := env.engine.AllocateNFTType(plugin.Address())
	if err != nil {
		t.Fatalf("allocate type: %v", err)
	}
	instance, err := env.engine.MintNFT(plugin.Address(), addr(0x90), typeID, nil)
	if err != nil {
		t.Fatalf("mint nft: %v", err)
	}
	if err := env.engine.OnOwnershipChanged(instance, next); err != nil {
		t.Fatalf("instance ownership change: %v", err)
	}
	if got := plugin.transfers[instance.Hex()]; got != next {
		t.Fatalf("plugin observed owner %x, want %x", got, next)
	}
}
