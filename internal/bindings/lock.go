package bindings

import (
	"crypto/sha256"
	"fmt"

	"github.com/mr-tron/base58"
)

func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }

// Lock is an owner policy: anything exposing script()+domain() in the
// language runtime this kernel replays. CommonLock is the built-in P2PKH
// implementation; custom locks arrive from user code through the same
// interface.
type Lock interface {
	Script() []byte
	Domain() int
}

// commonLockDomain is the max unlocking-script size budgeted for a P2PKH
// spend (signature + pubkey push), mirroring the HD wallet signing path in
// core/wallet.go.
const commonLockDomain = 108

// CommonLock is the built-in P2PKH lock: scriptPubKey = OP_DUP OP_HASH160
// <addr> OP_EQUALVERIFY OP_CHECKSIG.
type CommonLock struct {
	Addr Address
}

func NewCommonLock(addr Address) *CommonLock { return &CommonLock{Addr: addr} }

// NewCommonLockFromPubKeyHex accepts the hex public-key shorthand allowed
// for `owner` and derives the corresponding address.
func NewCommonLockFromPubKeyHex(pubHex string) (*CommonLock, error) {
	addr, err := AddressFromPubKeyHex(pubHex)
	if err != nil {
		return nil, err
	}
	return &CommonLock{Addr: addr}, nil
}

func (c *CommonLock) Script() []byte {
	s := make([]byte, 0, 25)
	s = append(s, 0x76, 0xa9, 0x14) // OP_DUP OP_HASH160 <push 20>
	s = append(s, c.Addr[:]...)
	s = append(s, 0x88, 0xac) // OP_EQUALVERIFY OP_CHECKSIG
	return s
}

func (c *CommonLock) Domain() int { return commonLockDomain }

// ParseOwner accepts a P2PKH address string, a public-key hex string
// (converted to a CommonLock over its address), or any value already
// satisfying Lock. nil is only legal when destroyed is true.
func ParseOwner(v interface{}, destroyed bool) (Lock, error) {
	if v == nil {
		if destroyed {
			return nil, nil
		}
		return nil, fmt.Errorf("bad owner: owner is null outside destroyed context")
	}
	switch t := v.(type) {
	case Lock:
		return t, nil
	case Address:
		return NewCommonLock(t), nil
	case string:
		// Accept a hex public key, a 20-byte address hex, or a base58check
		// P2PKH address string.
		if lock, err := NewCommonLockFromPubKeyHex(t); err == nil {
			return lock, nil
		}
		var a Address
		if raw, err := decodeHexMaybe0x(t); err == nil && len(raw) == len(a) {
			copy(a[:], raw)
			return NewCommonLock(a), nil
		}
		if raw, err := base58.Decode(t); err == nil && len(raw) == 25 {
			first := sha256Sum(raw[:21])
			if check := sha256Sum(first[:]); string(check[:4]) == string(raw[21:]) {
				copy(a[:], raw[1:21])
				return NewCommonLock(a), nil
			}
		}
		return nil, fmt.Errorf("bad owner: %q is neither an address nor a public key", t)
	default:
		return nil, fmt.Errorf("bad owner: unsupported owner value %T", v)
	}
}

const maxSatoshis = 100_000_000

// ValidateSatoshis enforces that satoshis is a finite non-negative integer
// not exceeding 100,000,000.
func ValidateSatoshis(n int64) error {
	if n < 0 {
		return fmt.Errorf("bad satoshis: negative value %d", n)
	}
	if n > maxSatoshis {
		return fmt.Errorf("bad satoshis: %d exceeds maximum of %d", n, maxSatoshis)
	}
	return nil
}
