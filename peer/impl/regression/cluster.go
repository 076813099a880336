package regression

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/xid"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/config"
	"go.dedis.ch/smpcreg/peer"
	"go.dedis.ch/smpcreg/peer/impl/matrix"
	"go.dedis.ch/smpcreg/peer/impl/party"
	"go.dedis.ch/smpcreg/peer/impl/provider"
	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/peer/impl/summary"
	"go.dedis.ch/smpcreg/registry"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/transport/channel"
	"go.dedis.ch/smpcreg/transport/udp"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"
)

var _ Engine = (*party.Session)(nil)

// Cluster runs the parties of a fit in one process: one node per data
// holder, one auxiliary node and the crypto provider. Every node has its own
// socket, key and message registry, and they only talk through the
// transport.
type Cluster struct {
	conf      config.Config
	field     *zp.Field
	precision secretshare.Precision

	parties  []*party.Node
	provider *provider.Node
}

// NewCluster creates and starts the nodes described by conf.
func NewCluster(conf config.Config) (*Cluster, error) {
	err := conf.Validate()
	if err != nil {
		return nil, err
	}

	var tr transport.Transport
	switch conf.Network.Transport {
	case config.TransportUDP:
		tr = udp.NewUDP()
	default:
		tr = channel.NewTransport()
	}

	c := &Cluster{
		conf:  conf,
		field: zp.DefaultField(),
		precision: secretshare.Precision{
			FracBits: conf.FixedPoint.FracBits,
			Bound:    conf.FixedPoint.Bound,
			Sigma:    conf.FixedPoint.Sigma,
		},
	}
	err = c.precision.Validate(c.field)
	if err != nil {
		return nil, err
	}

	// holders, then the auxiliary party, then the provider
	n := conf.Session.Holders + 1
	confs := make([]peer.Configuration, n+1)
	members := make([]peer.Member, n+1)
	sockets := make([]transport.ClosableSocket, 0, n+1)
	cleanup := func() {
		for _, s := range sockets {
			s.Close()
		}
	}

	for i := range confs {
		sock, err := tr.CreateSocket(net.JoinHostPort(conf.Network.Host, "0"))
		if err != nil {
			cleanup()
			return nil, xerrors.Errorf("failed to create socket: %v", err)
		}
		sockets = append(sockets, sock)

		key, err := crypto.GenerateKey()
		if err != nil {
			cleanup()
			return nil, xerrors.Errorf("failed to generate key: %v", err)
		}

		confs[i] = peer.Configuration{
			Socket:          sock,
			MessageRegistry: registry.NewRegistry(),
			Key:             key,
			PartyTimeout:    conf.Network.PartyTimeout,
		}
		members[i] = peer.Member{Address: sock.GetAddress(), Public: &key.PublicKey}
	}

	dir, err := peer.NewDirectory(members[:n], members[n])
	if err != nil {
		cleanup()
		return nil, err
	}

	for i := 0; i < n; i++ {
		confs[i].Directory = dir
		node, err := party.NewNode(confs[i], c.field, c.precision)
		if err != nil {
			c.Close()
			cleanup()
			return nil, err
		}
		err = node.Start()
		if err != nil {
			c.Close()
			cleanup()
			return nil, err
		}
		c.parties = append(c.parties, node)
	}

	confs[n].Directory = dir
	dealer, err := provider.NewDealer(c.field, n, c.precision, conf.Provider.TripleBudget, nil)
	if err == nil {
		c.provider, err = provider.NewNode(confs[n], dealer)
	}
	if err == nil {
		err = c.provider.Start()
	}
	if err != nil {
		c.Close()
		cleanup()
		return nil, err
	}

	log.Info().Int("holders", conf.Session.Holders).Str("transport", conf.Network.Transport).
		Str("provider", dir.Provider()).Msg("cluster started")

	return c, nil
}

// Parties returns the compute parties, data holders first.
func (c *Cluster) Parties() []*party.Node {
	return c.parties
}

// Provider returns the crypto provider.
func (c *Cluster) Provider() *provider.Node {
	return c.provider
}

// Close stops every node.
func (c *Cluster) Close() error {
	var first error
	for _, p := range c.parties {
		err := p.Stop()
		if err != nil && first == nil {
			first = err
		}
	}
	if c.provider != nil {
		err := c.provider.Stop()
		if err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Options returns the regression options of a fit on shards.
func (c *Cluster) Options(features []string) Options {
	return Options{
		Holders:   c.conf.Session.Holders,
		Features:  features,
		Intercept: c.conf.Session.Intercept,
		Inverse: matrix.InverseOptions{
			Iterations: c.conf.Inverse.Iterations,
			CheckEvery: c.conf.Inverse.CheckEvery,
			Tolerance:  c.conf.Inverse.Tolerance,
			Bound:      c.conf.Inverse.MagnitudeBound,
		},
	}
}

// Fit runs a fresh fit session on every compute party, holder i getting
// shards[i]. The shards must already be scaled into the magnitude bound.
func (c *Cluster) Fit(ctx context.Context, shards []*types.Shard) (*Handle, error) {
	if len(shards) != c.conf.Session.Holders {
		return nil, xerrors.Errorf("%d shards for %d holders: %w", len(shards), c.conf.Session.Holders,
			types.ErrInvalidPartyCount)
	}
	if shards[0] == nil {
		return nil, xerrors.Errorf("shard 0 missing: %w", types.ErrShapeMismatch)
	}

	features := shards[0].Features
	if len(features) == 0 {
		features = make([]string, shards[0].Cols())
		for j := range features {
			features[j] = fmt.Sprintf("x%d", j+1)
		}
	}

	h := &Handle{id: xid.New().String()}
	for _, node := range c.parties {
		s, err := node.NewSession(h.id)
		if err != nil {
			h.Close()
			return nil, err
		}
		h.sessions = append(h.sessions, s)

		m, err := NewModel(s, c.Options(features))
		if err != nil {
			h.Close()
			return nil, err
		}
		h.models = append(h.models, m)
	}

	log.Info().Str("session", h.id).Int("parties", len(h.models)).Msg("fit started")

	errs := make([]error, len(h.models))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range h.models {
		var shard *types.Shard
		if i < len(shards) {
			shard = shards[i]
		}
		g.Go(func() error {
			errs[i] = m.Fit(gctx, shard)
			return errs[i]
		})
	}
	if g.Wait() != nil {
		h.Close()
		return nil, rootCause(errs)
	}

	log.Info().Str("session", h.id).Int("iterations", h.models[0].Iterations()).Msg("fit solved")
	return h, nil
}

// Handle is a solved fit.
type Handle struct {
	id       string
	sessions []*party.Session
	models   []*Model
}

// ID returns the session id of the fit.
func (h *Handle) ID() string {
	return h.id
}

// Models returns the model of every compute party.
func (h *Handle) Models() []*Model {
	return h.models
}

// Summarize reveals the summary on every party and checks that they agree.
func (h *Handle) Summarize(ctx context.Context) (*summary.Summary, error) {
	results := make([]*summary.Summary, len(h.models))
	errs := make([]error, len(h.models))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range h.models {
		g.Go(func() error {
			results[i], errs[i] = m.Summarize(gctx)
			return errs[i]
		})
	}
	if g.Wait() != nil {
		return nil, rootCause(errs)
	}

	want := results[0].Values()
	for i, s := range results[1:] {
		got := s.Values()
		for j := range want {
			if got[j] != want[j] {
				return nil, xerrors.Errorf("party %d revealed %v for term %d, party 0 %v",
					i+1, got[j], j, want[j])
			}
		}
	}
	return results[0], nil
}

// Close releases the sessions of the fit.
func (h *Handle) Close() {
	for _, s := range h.sessions {
		s.Close()
	}
}

// rootCause picks the most telling error of the parties: a party that saw
// the actual failure reports it, the others only see that a party left.
func rootCause(errs []error) error {
	var unavailable, canceled error
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, context.Canceled):
			if canceled == nil {
				canceled = err
			}
		case errors.Is(err, types.ErrPartyUnavailable):
			if unavailable == nil {
				unavailable = err
			}
		default:
			return err
		}
	}
	if unavailable != nil {
		return unavailable
	}
	return canceled
}
