package token

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

// The 256-bit identifier space is split into three disjoint partitions:
//
//	brand ids:     id < 2^160 (the id equals a 20-byte account address)
//	NFT ids:       2^160 <= id < 2^255 (instances and type numbers)
//	FT ids:        bit 255 set, scope brand in bits 64..223, index in bits 0..63
//
// FT ids are their own type; NFT type numbers share the NFT range with
// instance ids and are distinguished by caller context.
var ErrInvalidRange = errors.New("token: identifier out of range")

const (
	// TypeInvalid marks the absence of a type.
	TypeInvalid = 0
	// TypeBrand is the implicit type of every brand token.
	TypeBrand = 1
	// FirstNFTType is the lowest allocatable NFT type number.
	FirstNFTType = 2

	ftScopeShift = 64
	ftScopeBits  = 160
)

var (
	// BrandBound is 2^160, the exclusive upper bound of the brand partition.
	BrandBound = new(uint256.Int).Lsh(uint256.NewInt(1), 160)
	// NFTBound is 2^255, the exclusive upper bound of the NFT partition.
	NFTBound = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	// FirstNFTInstance is 2^160, where instance allocation starts.
	FirstNFTInstance = new(uint256.Int).Lsh(uint256.NewInt(1), 160)

	ftFlag = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	// ftMask keeps bit 255 plus the low 224 bits. Any FT candidate with
	// stray bits between the scope field and the flag is rejected.
	ftMask = func() *uint256.Int {
		low := new(uint256.Int).Lsh(uint256.NewInt(1), ftScopeShift+ftScopeBits)
		low.SubUint64(low, 1)
		return new(uint256.Int).Or(low, new(uint256.Int).Lsh(uint256.NewInt(1), 255))
	}()
)

// IsBrand reports whether id sits in the brand partition.
func IsBrand(id *uint256.Int) bool {
	return id.Lt(BrandBound)
}

// IsNFT reports whether id sits in the NFT partition. The range covers both
// instance ids and type numbers above the brand bound.
func IsNFT(id *uint256.Int) bool {
	return !id.Lt(BrandBound) && id.Lt(NFTBound)
}

// IsFT reports whether id is a well-formed fungible token id: the high bit is
// set and no bits outside the scope and index fields are used.
func IsFT(id *uint256.Int) bool {
	if new(uint256.Int).And(id, ftFlag).IsZero() {
		return false
	}
	return new(uint256.Int).And(id, ftMask).Eq(id)
}

// IsNFTType reports whether id is usable as an allocated NFT type number,
// i.e. at least FirstNFTType and below the NFT bound.
func IsNFTType(id *uint256.Int) bool {
	return !id.LtUint64(FirstNFTType) && id.Lt(NFTBound)
}

// FTScope extracts the owning brand address from a fungible token id. The
// zero address denotes the system scope.
func FTScope(id *uint256.Int) ([20]byte, error) {
	var scope [20]byte
	if !IsFT(id) {
		return scope, fmt.Errorf("%w: %s is not a fungible token id", ErrInvalidRange, id.Hex())
	}
	shifted := new(uint256.Int).Rsh(id, ftScopeShift)
	buf := shifted.Bytes32()
	// After the shift the scope occupies the low 20 bytes; the FT flag has
	// moved into bits above them and is masked off by the copy.
	copy(scope[:], buf[12:])
	return scope, nil
}

// FTIndex extracts the 64-bit sequential index from a fungible token id.
func FTIndex(id *uint256.Int) (uint64, error) {
	if !IsFT(id) {
		return 0, fmt.Errorf("%w: %s is not a fungible token id", ErrInvalidRange, id.Hex())
	}
	return id.Uint64(), nil
}

// NewFTID packs a scope brand and sequential index into a fungible token id.
func NewFTID(scope [20]byte, index uint64) *uint256.Int {
	id := new(uint256.Int).SetBytes(scope[:])
	id.Lsh(id, ftScopeShift)
	id.Or(id, uint256.NewInt(index))
	return id.Or(id, ftFlag)
}

// BrandID converts a brand account address into its token identifier.
func BrandID(brand [20]byte) *uint256.Int {
	return new(uint256.Int).SetBytes(brand[:])
}

// BrandAddress converts a brand identifier back to its account address.
func BrandAddress(id *uint256.Int) ([20]byte, error) {
	var brand [20]byte
	if !IsBrand(id) {
		return brand, fmt.Errorf("%w: %s is not a brand id", ErrInvalidRange, id.Hex())
	}
	buf := id.Bytes32()
	copy(brand[:], buf[12:])
	return brand, nil
}

// CheckNFTInstance asserts that id sits in the NFT instance range.
func CheckNFTInstance(id *uint256.Int) error {
	if !IsNFT(id) {
		return fmt.Errorf("%w: %s is not an NFT instance id", ErrInvalidRange, id.Hex())
	}
	return nil
}

// CheckNFTType asserts that id is an allocatable NFT type number.
func CheckNFTType(id *uint256.Int) error {
	if !IsNFTType(id) {
		return fmt.Errorf("%w: %s is not an NFT type", ErrInvalidRange, id.Hex())
	}
	return nil
}
