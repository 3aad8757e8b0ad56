package crypto

import (
	"bytes"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode address: %v", err)
	}
	if decoded.Prefix() != MVPrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
	if !bytes.Equal(decoded.Bytes(), addr.Bytes()) {
		t.Fatalf("address bytes changed across encode/decode")
	}
}

func TestNewAddressRejectsBadLength(t *testing.T) {
	if _, err := NewAddress(MVPrefix, make([]byte, 19)); err == nil {
		t.Fatalf("expected error for short address")
	}
}

func TestSignAndRecover(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := ethcrypto.Keccak256([]byte("metaverse delegation"))
	sig, err := key.Sign(digest)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if len(sig) != SignatureLength {
		t.Fatalf("unexpected signature length %d", len(sig))
	}
	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if recovered != key.PubKey().Address().Array() {
		t.Fatalf("recovered %x, want signer address", recovered)
	}
}

func TestRecoverAddressRejectsMalformedInput(t *testing.T) {
	if _, err := RecoverAddress(make([]byte, 31), make([]byte, SignatureLength)); err == nil {
		t.Fatalf("expected error for short digest")
	}
	if _, err := RecoverAddress(make([]byte, 32), make([]byte, 64)); err == nil {
		t.Fatalf("expected error for short signature")
	}
}
