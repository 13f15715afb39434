package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/definite-protocol/dne/internal/types"
)

func TestNewOwnableRejectsEmptyAddress(t *testing.T) {
	_, err := NewOwnable("")
	assert.ErrorIs(t, err, types.ErrInvalidParameter)
}

func TestAssertOwner(t *testing.T) {
	ownable, err := NewOwnable("alice")
	require.NoError(t, err)

	assert.NoError(t, ownable.AssertOwner("alice"))
	assert.ErrorIs(t, ownable.AssertOwner("mallory"), types.ErrNotOwner)
	assert.ErrorIs(t, ownable.AssertOwner(""), types.ErrNotOwner)
}

func TestTransferOwnership(t *testing.T) {
	ownable, err := NewOwnable("alice")
	require.NoError(t, err)

	assert.ErrorIs(t, ownable.TransferOwnership("mallory", "mallory"), types.ErrNotOwner)
	assert.ErrorIs(t, ownable.TransferOwnership("alice", ""), types.ErrInvalidParameter)
	assert.Equal(t, types.Address("alice"), ownable.Owner())

	require.NoError(t, ownable.TransferOwnership("alice", "bob"))
	assert.Equal(t, types.Address("bob"), ownable.Owner())

	// The previous owner loses the capability with the transfer.
	assert.ErrorIs(t, ownable.AssertOwner("alice"), types.ErrNotOwner)
	assert.NoError(t, ownable.AssertOwner("bob"))
}
