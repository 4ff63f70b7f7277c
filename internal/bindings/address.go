// Package bindings parses and compiles the five identity fields every jig
// carries (origin, location, nonce, owner, satoshis) plus the location URL
// grammar and the owner lock interface. It mirrors the low-tier, dependency-
// light packages of core/wallet.go and core/common_structs.go: bindings
// imports only crypto and encoding primitives, never the record engine, the
// sandbox, or the chain adapter.
package bindings

import (
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	ethcommon "github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/ripemd160"
)

// Address is the 20-byte hash identifying a CommonLock owner, matching the
// width of core.Address.
type Address [20]byte

func (a Address) Hex() string { return ethcommon.Encode(a[:]) }

// Base58Check renders the address the way a P2PKH string is usually shown.
func (a Address) Base58Check(version byte) string {
	payload := append([]byte{version}, a[:]...)
	first := sha256Sum(payload)
	check := sha256Sum(first[:])
	return base58.Encode(append(payload, check[:4]...))
}

// AddressZero is the sentinel used by the destroyed-jig invariant checks.
var AddressZero = Address{}

// AddressFromPubKey hashes a secp256k1 public key down to a 20-byte address
// using SHA-256 then RIPEMD-160, the standard P2PKH pipeline.
func AddressFromPubKey(pub *btcec.PublicKey) (Address, error) {
	compressed := pub.SerializeCompressed()
	return addressFromPubKeyBytes(compressed)
}

func addressFromPubKeyBytes(pub []byte) (Address, error) {
	sha := sha256Sum(pub)
	r := ripemd160.New()
	if _, err := r.Write(sha[:]); err != nil {
		return Address{}, fmt.Errorf("ripemd160: %w", err)
	}
	var out Address
	copy(out[:], r.Sum(nil))
	return out, nil
}

// decodeHexMaybe0x accepts either bare hex (the grammar's usual owner
// encoding) or a 0x-prefixed string, the way go-ethereum's hexutil callers
// normally tolerate both.
func decodeHexMaybe0x(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return ethcommon.Decode(s)
	}
	return hex.DecodeString(s)
}

// AddressFromPubKeyHex accepts a hex-encoded compressed or uncompressed
// secp256k1 public key, as the spec's owner grammar allows for `owner`.
func AddressFromPubKeyHex(pubHex string) (Address, error) {
	raw, err := decodeHexMaybe0x(pubHex)
	if err != nil {
		return Address{}, fmt.Errorf("bad owner: invalid public key hex: %w", err)
	}
	pub, err := btcec.ParsePubKey(raw)
	if err != nil {
		return Address{}, fmt.Errorf("bad owner: invalid public key: %w", err)
	}
	return AddressFromPubKey(pub)
}
