package bindings

import "testing"

func TestParseLocationDeployedRoundTrips(t *testing.T) {
	txid := "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9"
	s := txid + "_o3"
	loc, err := ParseLocation(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if loc.Kind != LocationDeployed || loc.TxID != txid || loc.Index != 3 || loc.IsDelete {
		t.Fatalf("unexpected parse result: %+v", loc)
	}
	out, err := loc.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if out != s {
		t.Fatalf("got %q, want %q", out, s)
	}
}

func TestParseLocationDeleteFlag(t *testing.T) {
	txid := "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9"
	loc, err := ParseLocation(txid + "_d0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !loc.IsDelete {
		t.Fatal("expected IsDelete")
	}
}

func TestParseLocationNativeAndError(t *testing.T) {
	loc, err := ParseLocation("native://BlockHeight")
	if err != nil || loc.Kind != LocationNative || loc.Name != "BlockHeight" {
		t.Fatalf("native: loc=%+v err=%v", loc, err)
	}
	loc, err = ParseLocation("error://Execution: boom")
	if err != nil || loc.Kind != LocationError || loc.Message != "Execution: boom" {
		t.Fatalf("error: loc=%+v err=%v", loc, err)
	}
}

func TestParseLocationRejectsGarbage(t *testing.T) {
	if _, err := ParseLocation("not-a-location-at-all"); err == nil {
		t.Fatal("expected an error for unrecognized grammar")
	}
}

func TestParseLocationBerryQuery(t *testing.T) {
	txid := "a1b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9"
	hash := "b2c3d4e5f60718293a4b5c6d7e8f90a1b2c3d4e5f60718293a4b5c6d7e8f9a1"
	s := txid + "_o0?berry=" + "foo%2Fbar" + "&hash=" + hash + "&version=2"
	loc, err := ParseLocation(s)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if loc.Berry == nil || loc.Berry.Berry != "foo/bar" || loc.Berry.Hash != hash || loc.Berry.Version != 2 {
		t.Fatalf("unexpected berry query: %+v", loc.Berry)
	}
}

func TestCompileRejectsBadTxID(t *testing.T) {
	loc := &Location{Kind: LocationDeployed, TxID: "too-short", Index: 0}
	if _, err := loc.Compile(); err == nil {
		t.Fatal("expected an error compiling a non-hex txid")
	}
}

func TestAddressHexRoundTripThroughPubKeyHex(t *testing.T) {
	pub, err := testPubKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	addr, err := AddressFromPubKey(pub)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	pubHex := hexEncode(pub.SerializeCompressed())
	roundTripped, err := AddressFromPubKeyHex(pubHex)
	if err != nil {
		t.Fatalf("from hex: %v", err)
	}
	if roundTripped != addr {
		t.Fatal("expected the same address from the raw key and its hex-encoded form")
	}
	if addr.Hex() == "" {
		t.Fatal("expected a non-empty hex rendering")
	}
}

func TestAddressFromPubKeyHexAccepts0xPrefix(t *testing.T) {
	pub, err := testPubKey()
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	addr, err := AddressFromPubKey(pub)
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	withPrefix := "0x" + hexEncode(pub.SerializeCompressed())
	got, err := AddressFromPubKeyHex(withPrefix)
	if err != nil {
		t.Fatalf("from 0x-prefixed hex: %v", err)
	}
	if got != addr {
		t.Fatal("expected 0x-prefixed and bare hex to produce the same address")
	}
}
