package config

import "testing"

func TestDefaultsAreUsable(t *testing.T) {
	c := Defaults()
	if c.Chain.ListenAddr == "" {
		t.Fatal("expected a default chain listen address")
	}
	if !c.Chain.Memory {
		t.Fatal("expected the default dev setup to use the in-memory chain")
	}
	if c.Cache.MaxEntries <= 0 {
		t.Fatal("expected a positive default cache size")
	}
	if c.Purse.FeeratePerByte <= 0 {
		t.Fatal("expected a positive default feerate")
	}
}

func TestLoadWithMissingConfigFileFallsBackToDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Cache.MaxEntries <= 0 {
		t.Fatal("expected defaults to survive an absent config file")
	}
}
