package subxact

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTopParent_FlattensChain(t *testing.T) {
	m := NewMap()
	m.SetParent(30, 20)
	m.SetParent(20, 10)

	require.Equal(t, uint32(10), uint32(m.TopParent(30)))
	require.Equal(t, uint32(10), uint32(m.TopParent(20)))
	require.Equal(t, uint32(10), uint32(m.TopParent(10)))
}

func TestForget(t *testing.T) {
	m := NewMap()
	m.SetParent(2, 1)
	_, ok := m.ParentOf(2)
	require.True(t, ok)

	m.Forget(2)
	_, ok = m.ParentOf(2)
	require.False(t, ok)
}
