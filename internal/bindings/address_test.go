package bindings

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec/v2"
)

func testPubKey() (*btcec.PublicKey, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return priv.PubKey(), nil
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
