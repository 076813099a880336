package provider

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/peer"
	"go.dedis.ch/smpcreg/peer/impl/message"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// NewNode returns the crypto provider node of the computation. The dealer
// must split for as many parties as the directory lists.
func NewNode(conf peer.Configuration, dealer *Dealer) (*Node, error) {
	if conf.Directory.Provider() != conf.Socket.GetAddress() {
		return nil, xerrors.Errorf("%s is not the provider of the directory", conf.Socket.GetAddress())
	}
	if dealer.Parties() != conf.Directory.Parties() {
		return nil, xerrors.Errorf("dealer for %d parties, directory lists %d: %w",
			dealer.Parties(), conf.Directory.Parties(), types.ErrInvalidPartyCount)
	}

	n := &Node{
		conf:    conf,
		dealer:  dealer,
		pending: make(map[string]*correlation),
		dropped: make(map[string]struct{}),
	}
	n.MessageModule = message.NewMessageModule(&n.conf)

	n.conf.MessageRegistry.RegisterMessageCallback(types.CorrelationRequestMessage{}, n.ProcessCorrelationRequest)
	n.conf.MessageRegistry.RegisterMessageCallback(types.AbortMessage{}, n.ProcessAbort)

	return n, nil
}

// Node answers the correlation requests of the compute parties. The first
// request for a (session, tag) deals the correlation; every party then gets
// its own share, encrypted to its key.
//
// - implements peer.Service
type Node struct {
	*message.MessageModule
	conf   peer.Configuration
	dealer *Dealer

	sync.Mutex
	pending map[string]*correlation
	dropped map[string]struct{}

	stop context.CancelFunc
}

// correlation is a dealt correlation waiting for every party to fetch it.
type correlation struct {
	kind   types.CorrelationKind
	dims   []int
	parts  [][]*zp.Matrix
	err    error
	served map[int]struct{}
}

// Start implements peer.Service
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.stop = cancel
	n.MessagingDaemon(ctx)

	log.Info().Str("node", n.conf.Socket.GetAddress()).Msg("crypto provider started")
	return nil
}

// Stop implements peer.Service. Parties waiting on the provider then time
// out.
func (n *Node) Stop() error {
	if n.stop != nil {
		n.stop()
	}
	if s, ok := n.conf.Socket.(transport.ClosableSocket); ok {
		return s.Close()
	}
	return nil
}

// Dealer returns the dealer of the node.
func (n *Node) Dealer() *Dealer {
	return n.dealer
}

// Pending returns the number of correlations not yet fetched by every party.
func (n *Node) Pending() int {
	n.Lock()
	defer n.Unlock()
	return len(n.pending)
}

/** Message Handler **/

// ProcessCorrelationRequest deals or looks up the requested correlation and
// sends the sender its share.
func (n *Node) ProcessCorrelationRequest(msg types.Message, pkt transport.Packet) error {
	req, ok := msg.(*types.CorrelationRequestMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	idx, ok := n.conf.Directory.Index(pkt.Header.Source)
	if !ok || idx == peer.ProviderIndex || idx != req.From {
		return xerrors.Errorf("request from %s claims party %d", pkt.Header.Source, req.From)
	}

	reply := types.CorrelationMessage{SessionID: req.SessionID, Tag: req.Tag, Kind: req.Kind}

	parts, err := n.serve(req, idx)
	if err != nil {
		reply.Code = types.ErrorCode(err)
		reply.Error = err.Error()
		log.Warn().Str("session", req.SessionID).Str("tag", req.Tag).Int("party", idx).
			Err(err).Msg("correlation refused")
	} else {
		reply.Parts = make([]types.MatrixPayload, len(parts))
		for i, p := range parts {
			reply.Parts[i] = p.Payload()
		}
	}

	return n.SendEncrypted(pkt.Header.Source, reply)
}

// ProcessAbort drops the correlations of an aborted session.
func (n *Node) ProcessAbort(msg types.Message, pkt transport.Packet) error {
	abort, ok := msg.(*types.AbortMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}

	n.Lock()
	defer n.Unlock()

	prefix := abort.SessionID + "/"
	for key := range n.pending {
		if strings.HasPrefix(key, prefix) {
			delete(n.pending, key)
		}
	}
	n.dropped[abort.SessionID] = struct{}{}

	log.Info().Str("session", abort.SessionID).Int("party", abort.From).
		Msgf("session aborted: %s", abort.Reason)
	return nil
}

/** Private Helpfer Functions **/

// serve returns the share of party idx, dealing the correlation on the
// first request.
func (n *Node) serve(req *types.CorrelationRequestMessage, idx int) ([]*zp.Matrix, error) {
	n.Lock()
	defer n.Unlock()

	if _, ok := n.dropped[req.SessionID]; ok {
		return nil, xerrors.Errorf("session %s aborted: %w", req.SessionID, types.ErrPartyUnavailable)
	}

	key := req.SessionID + "/" + req.Tag
	c, ok := n.pending[key]
	if !ok {
		c = &correlation{
			kind:   req.Kind,
			dims:   append([]int(nil), req.Dims...),
			served: make(map[int]struct{}),
		}
		c.parts, c.err = n.dealer.Deal(req.Kind, req.Dims)
		n.pending[key] = c

		log.Debug().Str("session", req.SessionID).Str("tag", req.Tag).
			Msgf("dealt %s %v", req.Kind, req.Dims)
	}

	if c.kind != req.Kind || !sameDims(c.dims, req.Dims) {
		return nil, xerrors.Errorf("party %d asked %s %v for %s, first request was %s %v: %w",
			idx, req.Kind, req.Dims, req.Tag, c.kind, c.dims, types.ErrShapeMismatch)
	}
	if _, dup := c.served[idx]; dup {
		return nil, xerrors.Errorf("party %d already fetched %s", idx, req.Tag)
	}

	c.served[idx] = struct{}{}
	if len(c.served) == n.dealer.Parties() {
		delete(n.pending, key)
	}

	if c.err != nil {
		return nil, c.err
	}
	return c.parts[idx], nil
}

func sameDims(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
