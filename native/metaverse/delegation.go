package metaverse

import (
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"metaverse/core/events"
	"metaverse/crypto"
)

// Delegation is a signed, time-boxed, single-use authorization letting a
// third party submit a call on behalf of Signer. The hash binds whatever
// payload the signer approved; the core only enforces signer, window and
// single use.
type Delegation struct {
	Signer    [20]byte
	Timestamp uint64
	Hash      [32]byte
	Signature []byte
}

// Encode serialises the delegation for transport.
func (d *Delegation) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(d)
}

// DecodeDelegation parses a transported delegation payload.
func DecodeDelegation(payload []byte) (*Delegation, error) {
	d := new(Delegation)
	if err := rlp.DecodeBytes(payload, d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOperation, err)
	}
	return d, nil
}

// recoverVerifier is the default Verifier, backed by recoverable secp256k1
// signatures.
type recoverVerifier struct{}

func (recoverVerifier) Verify(hash [32]byte, signature []byte) ([20]byte, bool) {
	signer, err := crypto.RecoverAddress(hash[:], signature)
	if err != nil {
		return [20]byte{}, false
	}
	return signer, true
}

// CheckSignature validates a delegation and consumes its hash. The recovered
// signer must match the expected one, now must fall inside
// [timestamp-timeout, timestamp+timeout] and the hash must never have been
// consumed before. On success the hash is marked used and the signer is
// returned as the effective caller for exactly this operation; the
// substitution is an explicit return value, never ambient state.
func (e *Engine) CheckSignature(payload []byte, timeout time.Duration, now time.Time) ([32]byte, [20]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var (
		hash   [32]byte
		signer [20]byte
	)
	err := e.withCommit(func() error {
		d, err := DecodeDelegation(payload)
		if err != nil {
			return err
		}
		recovered, ok := e.verifier.Verify(d.Hash, d.Signature)
		if !ok || recovered != d.Signer {
			return ErrSignatureMismatch
		}
		if d.Timestamp > math.MaxInt64 {
			return fmt.Errorf("%w: timestamp %d out of range", ErrInvalidOperation, d.Timestamp)
		}
		issued := time.Unix(int64(d.Timestamp), 0)
		if now.After(issued.Add(timeout)) {
			return fmt.Errorf("%w: issued at %d", ErrExpired, d.Timestamp)
		}
		if now.Before(issued.Add(-timeout)) {
			return fmt.Errorf("%w: issued at %d", ErrNotYetValid, d.Timestamp)
		}
		if e.st.DelegationHashUsed(d.Hash) {
			return ErrReplayed
		}
		if err := e.st.MarkDelegationHash(d.Hash); err != nil {
			return err
		}
		hash = d.Hash
		signer = d.Signer
		e.queue(events.DelegationConsumed{Hash: d.Hash, Signer: d.Signer})
		return nil
	})
	if err != nil {
		return [32]byte{}, [20]byte{}, err
	}
	return hash, signer, nil
}

// EffectiveCaller resolves who an operation should run as: the delegation
// signer when a payload is supplied, otherwise the direct submitter.
func (e *Engine) EffectiveCaller(submitter [20]byte, payload []byte, timeout time.Duration, now time.Time) ([20]byte, error) {
	if len(payload) == 0 {
		return submitter, nil
	}
	_, signer, err := e.CheckSignature(payload, timeout, now)
	if err != nil {
		return [20]byte{}, err
	}
	return signer, nil
}
