package main

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/runkernel/kernel/internal/sandbox"
)

type fakeThis struct{ fields map[string]sandbox.Value }

func (f *fakeThis) Get(name string) (sandbox.Value, bool) { v, ok := f.fields[name]; return v, ok }
func (f *fakeThis) Set(name string, v sandbox.Value) error { f.fields[name] = v; return nil }

func TestCounterDemoClassIncrementsCount(t *testing.T) {
	factory, ok := demoClasses["counter"]
	require.True(t, ok, "expected a built-in \"counter\" demo class")

	src := factory()
	require.Equal(t, "Counter", src.Name)

	this := &fakeThis{fields: map[string]sandbox.Value{"count": float64(0)}}
	inc, ok := src.Methods["increment"]
	require.True(t, ok, "expected the counter class to expose increment")

	_, err := inc(this, nil, nil)
	require.NoError(t, err)
	_, err = inc(this, nil, nil)
	require.NoError(t, err)

	got, _ := this.Get("count")
	require.Equal(t, float64(2), got)
}

func TestDeployCmdRejectsUnknownClass(t *testing.T) {
	_, ok := demoClasses["not-a-real-class"]
	require.False(t, ok)
}
