// Package owner implements the owner adapter: derive the next P2PKH lock
// to receive change/new jigs (`nextOwner`), and sign a raw transaction's
// unlocking scripts against the parent outputs it spends (`sign`).
//
// Grounded in core/wallet.go's HDWallet (SLIP-0010 hardened derivation over
// an HMAC-SHA512 master key, seeded from a BIP-39 mnemonic via
// github.com/tyler-smith/go-bip39), adapted from ed25519 to secp256k1 via
// github.com/btcsuite/btcd/btcec/v2 so derived keys hash down to the same
// P2PKH internal/bindings.Address the rest of the kernel uses, instead of
// core/wallet.go's ed25519 address scheme.
package owner

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/sirupsen/logrus"
	"github.com/tyler-smith/go-bip39"

	"github.com/runkernel/kernel/internal/bindings"
)

const hardenedOffset uint32 = 0x80000000
const masterHMACKey = "runkernel owner seed"

var secp256k1Order = btcec.S256().N

// Wallet derives secp256k1 keys along a single hardened HD path and signs
// on behalf of the jigs it owns.
type Wallet struct {
	mu          sync.Mutex
	masterKey   []byte
	masterChain []byte
	nextIndex   uint32
	log         *logrus.Logger
}

// NewRandom generates a fresh 256-bit-entropy wallet and returns its BIP-39
// recovery mnemonic. Callers must store the mnemonic securely.
func NewRandom(log *logrus.Logger) (*Wallet, string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return nil, "", fmt.Errorf("owner: entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, "", fmt.Errorf("owner: mnemonic: %w", err)
	}
	w, err := FromMnemonic(mnemonic, "", log)
	return w, mnemonic, err
}

// FromMnemonic restores a wallet from an existing recovery phrase.
func FromMnemonic(mnemonic, passphrase string, log *logrus.Logger) (*Wallet, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, errors.New("owner: invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return fromSeed(seed, log)
}

func fromSeed(seed []byte, log *logrus.Logger) (*Wallet, error) {
	if len(seed) < 16 {
		return nil, errors.New("owner: seed too short")
	}
	if log == nil {
		log = logrus.New()
	}
	I := hmacSHA512([]byte(masterHMACKey), seed)
	return &Wallet{masterKey: I[:32], masterChain: I[32:], log: log}, nil
}

func hmacSHA512(key, data []byte) []byte {
	h := hmac.New(sha512.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// derive returns the hardened child key at (masterKey, masterChain) for
// index, reduced modulo the secp256k1 curve order (SLIP-0010 §"Private
// parent key -> private child key", adapted: core/wallet.go's derivePrivate
// feeds ed25519.NewKeyFromSeed directly since ed25519 treats any 32 bytes as
// a valid scalar; secp256k1 keys must additionally reduce mod N).
func (w *Wallet) derive(index uint32) (*btcec.PrivateKey, error) {
	index |= hardenedOffset
	data := make([]byte, 1+32+4)
	copy(data[1:], w.masterKey)
	binary.BigEndian.PutUint32(data[33:], index)
	I := hmacSHA512(w.masterChain, data)

	scalar := new(big.Int).SetBytes(I[:32])
	scalar.Mod(scalar, secp256k1Order)
	if scalar.Sign() == 0 {
		return nil, fmt.Errorf("owner: derived zero scalar at index %d", index)
	}
	priv, _ := btcec.PrivKeyFromBytes(scalar.FillBytes(make([]byte, 32)))
	return priv, nil
}

// NextOwner derives the next never-before-issued lock for this wallet,
// advancing its internal index.
func (w *Wallet) NextOwner() (bindings.Lock, error) {
	w.mu.Lock()
	idx := w.nextIndex
	w.nextIndex++
	w.mu.Unlock()

	priv, err := w.derive(idx)
	if err != nil {
		return nil, err
	}
	addr, err := bindings.AddressFromPubKey(priv.PubKey())
	if err != nil {
		return nil, err
	}
	w.log.Debugf("owner: derived lock at index %d -> %s", idx, addr.Hex())
	return bindings.NewCommonLock(addr), nil
}

// Parent describes one output a transaction spends, for Sign to match
// against the keys this wallet controls.
type Parent struct {
	Owner bindings.Lock
	Index uint32 // the HD index NextOwner issued this lock at, if known to this wallet
}

// Sign produces a P2PKH unlocking signature (sig || compressed pubkey) over
// rawtx for each parent, matching the layout core/wallet.go's SignTx
// documents, adapted from ed25519's 64-byte signature to secp256k1 ECDSA's
// DER encoding. Every parent must be a CommonLock over the address this
// wallet derives at the parent's Index; otherwise Sign returns an error and
// no signatures.
func (w *Wallet) Sign(rawtx []byte, parents []Parent) ([][]byte, error) {
	digest := sha256Double(rawtx)
	sigs := make([][]byte, len(parents))
	for i, p := range parents {
		priv, err := w.derive(p.Index)
		if err != nil {
			return nil, err
		}
		addr, err := bindings.AddressFromPubKey(priv.PubKey())
		if err != nil {
			return nil, err
		}
		cl, ok := p.Owner.(*bindings.CommonLock)
		if !ok || cl.Addr != addr {
			return nil, fmt.Errorf("owner: wallet does not control input %d", i)
		}
		sig := ecdsa.Sign(priv, digest[:])
		der := sig.Serialize()
		pub := priv.PubKey().SerializeCompressed()
		out := make([]byte, 0, len(der)+len(pub))
		out = append(out, der...)
		out = append(out, pub...)
		sigs[i] = out
		w.log.Debugf("owner: signed input %d for %s", i, addr.Hex())
	}
	return sigs, nil
}

// VerifyAuth checks a P2PKH unlocking signature produced by Sign (der ||
// compressed pubkey) against rawtx and the lock it claims to satisfy. It
// uses github.com/decred/dcrd/dcrec/secp256k1/v4, a distinct implementation
// of the same curve from the btcsuite package Sign uses, so signing and
// verification are never performed by the same library.
func VerifyAuth(rawtx []byte, unlockScript []byte, owner bindings.Lock) (bool, error) {
	const pubKeyLen = 33
	if len(unlockScript) <= pubKeyLen {
		return false, fmt.Errorf("bad owner: unlock script too short")
	}
	derSig := unlockScript[:len(unlockScript)-pubKeyLen]
	pubBytes := unlockScript[len(unlockScript)-pubKeyLen:]

	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return false, fmt.Errorf("bad owner: invalid public key: %w", err)
	}
	sig, err := dcrecdsa.ParseDERSignature(derSig)
	if err != nil {
		return false, fmt.Errorf("bad owner: invalid signature encoding: %w", err)
	}
	digest := sha256Double(rawtx)

	cl, ok := owner.(*bindings.CommonLock)
	if !ok {
		return false, fmt.Errorf("bad owner: lock is not a CommonLock")
	}
	gotAddr, err := bindings.AddressFromPubKeyHex(fmt.Sprintf("%x", pubBytes))
	if err != nil {
		return false, err
	}
	if gotAddr != cl.Addr {
		return false, nil
	}
	return sig.Verify(digest[:], pub), nil
}

func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }

func sha256Double(b []byte) [32]byte {
	h1 := sha256Sum(b)
	return sha256Sum(h1[:])
}

// randomNonce is available for callers that need a fresh unlinkable scalar
// outside the deterministic HD path (e.g. one-off ephemeral locks).
func randomNonce() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}
