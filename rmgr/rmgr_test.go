package rmgr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDispatch(t *testing.T) {
	r := NewRegistry()
	var gotRecover, gotCommit, gotAbort []byte

	r.Register(1,
		func(info uint16, data []byte) error { gotRecover = data; return nil },
		func(info uint16, data []byte) error { gotCommit = data; return nil },
		func(info uint16, data []byte) error { gotAbort = data; return nil },
	)

	require.NoError(t, r.Recover(1, 0, []byte("r")))
	require.NoError(t, r.PostCommit(1, 0, []byte("c")))
	require.NoError(t, r.PostAbort(1, 0, []byte("a")))

	require.Equal(t, []byte("r"), gotRecover)
	require.Equal(t, []byte("c"), gotCommit)
	require.Equal(t, []byte("a"), gotAbort)
}

func TestDispatch_UnregisteredRMIDIsNoop(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Recover(99, 0, nil))
	require.NoError(t, r.PostCommit(99, 0, nil))
	require.NoError(t, r.PostAbort(99, 0, nil))
}

func TestDispatch_PropagatesError(t *testing.T) {
	r := NewRegistry()
	boom := errors.New("boom")
	r.Register(1, func(info uint16, data []byte) error { return boom }, nil, nil)
	require.ErrorIs(t, r.Recover(1, 0, nil), boom)
}

func TestRegister_PartialUpdateLeavesOthersUntouched(t *testing.T) {
	r := NewRegistry()
	r.Register(1, func(uint16, []byte) error { return nil }, func(uint16, []byte) error { return nil }, nil)
	r.Register(1, nil, nil, func(uint16, []byte) error { return nil })

	require.NoError(t, r.Recover(1, 0, nil))
	require.NoError(t, r.PostCommit(1, 0, nil))
	require.NoError(t, r.PostAbort(1, 0, nil))
}
