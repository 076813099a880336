package peer

import (
	"crypto/ecdsa"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.dedis.ch/smpcreg/types"
	"golang.org/x/xerrors"
)

// ProviderIndex is the index of the crypto provider in a directory.
const ProviderIndex = -1

// Member is a node of the computation.
type Member struct {
	Address string
	Public  *ecdsa.PublicKey
}

// Directory lists the compute parties, in party index order, and the crypto
// provider. It is read-only once built.
type Directory struct {
	parties  []Member
	provider Member
	byAddr   map[string]int
}

// NewDirectory returns the directory of the given parties and provider. At
// least two compute parties are needed.
func NewDirectory(parties []Member, provider Member) (*Directory, error) {
	if len(parties) < 2 {
		return nil, xerrors.Errorf("directory with %d parties: %w", len(parties), types.ErrInvalidPartyCount)
	}

	d := &Directory{
		parties:  append([]Member(nil), parties...),
		provider: provider,
		byAddr:   make(map[string]int, len(parties)+1),
	}
	all := append(append([]Member(nil), parties...), provider)
	for i, m := range all {
		if m.Address == "" || m.Public == nil {
			return nil, xerrors.Errorf("member %d has no address or key", i)
		}
		if _, dup := d.byAddr[m.Address]; dup {
			return nil, xerrors.Errorf("address %s listed twice", m.Address)
		}
		if i == len(parties) {
			d.byAddr[m.Address] = ProviderIndex
		} else {
			d.byAddr[m.Address] = i
		}
	}
	return d, nil
}

// Parties returns the number of compute parties.
func (d *Directory) Parties() int {
	return len(d.parties)
}

// Addresses returns the addresses of the compute parties in index order.
func (d *Directory) Addresses() []string {
	res := make([]string, len(d.parties))
	for i, m := range d.parties {
		res[i] = m.Address
	}
	return res
}

// Address returns the address of compute party i.
func (d *Directory) Address(i int) string {
	return d.parties[i].Address
}

// Provider returns the address of the crypto provider.
func (d *Directory) Provider() string {
	return d.provider.Address
}

// Index returns the party index of addr, ProviderIndex for the provider.
func (d *Directory) Index(addr string) (int, bool) {
	i, ok := d.byAddr[addr]
	return i, ok
}

// PublicKey returns the key registered for addr.
func (d *Directory) PublicKey(addr string) (*ecdsa.PublicKey, bool) {
	i, ok := d.byAddr[addr]
	if !ok {
		return nil, false
	}
	if i == ProviderIndex {
		return d.provider.Public, true
	}
	return d.parties[i].Public, true
}

// Authorize checks that signer is the key registered for addr.
func (d *Directory) Authorize(addr string, signer common.Address) error {
	pub, ok := d.PublicKey(addr)
	if !ok {
		return xerrors.Errorf("unknown node %s", addr)
	}
	if crypto.PubkeyToAddress(*pub) != signer {
		return xerrors.Errorf("packet from %s signed by %s", addr, signer.Hex())
	}
	return nil
}
