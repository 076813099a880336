package peer

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
	"go.dedis.ch/smpcreg/types"
)

func member(t *testing.T, addr string) Member {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return Member{Address: addr, Public: &key.PublicKey}
}

func Test_directory_lookup(t *testing.T) {
	a, b, p := member(t, "a:1"), member(t, "b:1"), member(t, "p:1")

	d, err := NewDirectory([]Member{a, b}, p)
	require.NoError(t, err)
	require.Equal(t, 2, d.Parties())
	require.Equal(t, []string{"a:1", "b:1"}, d.Addresses())
	require.Equal(t, "p:1", d.Provider())

	i, ok := d.Index("b:1")
	require.True(t, ok)
	require.Equal(t, 1, i)

	i, ok = d.Index("p:1")
	require.True(t, ok)
	require.Equal(t, ProviderIndex, i)

	_, ok = d.Index("c:1")
	require.False(t, ok)

	pub, ok := d.PublicKey("p:1")
	require.True(t, ok)
	require.Equal(t, p.Public, pub)
}

func Test_directory_authorize(t *testing.T) {
	a, b, p := member(t, "a:1"), member(t, "b:1"), member(t, "p:1")
	d, err := NewDirectory([]Member{a, b}, p)
	require.NoError(t, err)

	require.NoError(t, d.Authorize("a:1", crypto.PubkeyToAddress(*a.Public)))
	require.Error(t, d.Authorize("a:1", crypto.PubkeyToAddress(*b.Public)))
	require.Error(t, d.Authorize("c:1", crypto.PubkeyToAddress(*a.Public)))
}

func Test_directory_invalid(t *testing.T) {
	a, p := member(t, "a:1"), member(t, "p:1")

	_, err := NewDirectory([]Member{a}, p)
	require.True(t, errors.Is(err, types.ErrInvalidPartyCount))

	_, err = NewDirectory([]Member{a, a}, p)
	require.Error(t, err)

	_, err = NewDirectory([]Member{a, {Address: "x:1"}}, p)
	require.Error(t, err)
}
