//go:build linux

package modlist

import (
	"reflect"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelf(t *testing.T) {
	l, err := Self(zerolog.Nop())
	require.NoError(t, err)

	mods := l.Modules()
	require.NotEmpty(t, mods)

	for _, m := range mods {
		assert.Less(t, m.Start, m.End)
		assert.NotEmpty(t, m.Path)
	}
}

func TestFindOwnCode(t *testing.T) {
	l, err := Self(zerolog.Nop())
	require.NoError(t, err)

	pc := uint64(reflect.ValueOf(TestFindOwnCode).Pointer())
	m, ok := l.Find(pc)
	require.True(t, ok, "test function address must be inside a mapped module")
	assert.True(t, m.Contains(pc))
	assert.True(t, m.Executable())
	assert.NotEmpty(t, m.Path)

	// Offsets are file-relative and must stay within the mapping's extent.
	off := m.OffsetOf(pc)
	assert.Less(t, off-m.FileOffset, m.End-m.Start)
}

func TestFindMiss(t *testing.T) {
	l, err := Self(zerolog.Nop())
	require.NoError(t, err)

	_, ok := l.Find(1) // page zero is never mapped
	assert.False(t, ok)
}

func TestRefresh(t *testing.T) {
	l, err := Self(zerolog.Nop())
	require.NoError(t, err)

	before := len(l.Modules())
	require.NoError(t, l.Refresh())
	assert.NotZero(t, before)
	assert.NotEmpty(t, l.Modules())
}
