// Package party implements a compute party: a data holder or the auxiliary
// party. A party holds one share of every secret value of a session and
// exchanges masked values with the other parties.
package party

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/peer"
	"go.dedis.ch/smpcreg/peer/impl/message"
	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/storage"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// NewNode returns the compute party listening on the configuration socket.
// The socket address must be listed among the parties of the directory.
func NewNode(conf peer.Configuration, f *zp.Field, precision secretshare.Precision) (*Node, error) {
	idx, ok := conf.Directory.Index(conf.Socket.GetAddress())
	if !ok || idx == peer.ProviderIndex {
		return nil, xerrors.Errorf("%s is not a compute party of the directory", conf.Socket.GetAddress())
	}
	err := precision.Validate(f)
	if err != nil {
		return nil, err
	}

	n := &Node{
		conf:      conf,
		index:     idx,
		field:     f,
		precision: precision,
		boxes:     make(map[string]*storage.Mailbox),
		closed:    make(map[string]struct{}),
	}
	n.MessageModule = message.NewMessageModule(&n.conf)

	// message registery
	n.conf.MessageRegistry.RegisterMessageCallback(types.MPCShareMessage{}, n.ProcessShareMsg)
	n.conf.MessageRegistry.RegisterMessageCallback(types.MPCOpenMessage{}, n.ProcessOpenMsg)
	n.conf.MessageRegistry.RegisterMessageCallback(types.CorrelationMessage{}, n.ProcessCorrelationMsg)
	n.conf.MessageRegistry.RegisterMessageCallback(types.AbortMessage{}, n.ProcessAbortMsg)
	n.RequireEncrypted(types.MPCShareMessage{}, types.CorrelationMessage{})

	return n, nil
}

// Node is a compute party.
//
// - implements peer.Service
type Node struct {
	*message.MessageModule
	conf      peer.Configuration
	index     int
	field     *zp.Field
	precision secretshare.Precision

	sync.Mutex
	boxes  map[string]*storage.Mailbox
	closed map[string]struct{}

	stop context.CancelFunc
}

// Start implements peer.Service
func (n *Node) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	n.stop = cancel
	n.MessagingDaemon(ctx)

	log.Info().Str("node", n.conf.Socket.GetAddress()).Int("party", n.index).Msg("party started")
	return nil
}

// Stop implements peer.Service. The open sessions are aborted.
func (n *Node) Stop() error {
	if n.stop != nil {
		n.stop()
	}

	n.Lock()
	for id, box := range n.boxes {
		box.Close(xerrors.Errorf("party %d stopped: %w", n.index, types.ErrPartyUnavailable))
		delete(n.boxes, id)
		n.closed[id] = struct{}{}
	}
	n.Unlock()

	if s, ok := n.conf.Socket.(transport.ClosableSocket); ok {
		return s.Close()
	}
	return nil
}

// Index returns the party index.
func (n *Node) Index() int {
	return n.index
}

// Address returns the party address.
func (n *Node) Address() string {
	return n.conf.Socket.GetAddress()
}

// Socket returns the socket of the party.
func (n *Node) Socket() transport.Socket {
	return n.conf.Socket
}

// NewSession joins the session id. Every party of a fit joins the same id
// and then runs the same sequence of operations.
func (n *Node) NewSession(id string) (*Session, error) {
	box, ok := n.mailbox(id)
	if !ok {
		return nil, xerrors.Errorf("session %s already closed", id)
	}
	return &Session{
		node:    n,
		id:      id,
		box:     box,
		timeout: n.conf.Timeout(),
	}, nil
}

/** Message Handler **/

// ProcessShareMsg stores the share of an input received from its owner.
// Shares are only accepted once decrypted.
func (n *Node) ProcessShareMsg(msg types.Message, pkt transport.Packet) error {
	share, ok := msg.(*types.MPCShareMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}
	err := n.checkSender(pkt, share.From)
	if err != nil {
		return err
	}
	value, err := n.field.FromPayload(share.Value)
	if err != nil {
		return err
	}
	return n.deliver(share.SessionID, inputKey(share.Tag, share.From), value)
}

// ProcessOpenMsg stores a share broadcast by another party for an opening.
func (n *Node) ProcessOpenMsg(msg types.Message, pkt transport.Packet) error {
	open, ok := msg.(*types.MPCOpenMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}
	err := n.checkSender(pkt, open.From)
	if err != nil {
		return err
	}
	value, err := n.field.FromPayload(open.Value)
	if err != nil {
		return err
	}
	return n.deliver(open.SessionID, openKey(open.Tag, open.From), value)
}

// ProcessCorrelationMsg stores the answer of the crypto provider.
func (n *Node) ProcessCorrelationMsg(msg types.Message, pkt transport.Packet) error {
	corr, ok := msg.(*types.CorrelationMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}
	if pkt.Header.Source != n.conf.Directory.Provider() {
		return xerrors.Errorf("correlation from %s, not the provider", pkt.Header.Source)
	}
	return n.deliver(corr.SessionID, correlationKey(corr.Tag), corr)
}

// ProcessAbortMsg fails the session the sender gave up on.
func (n *Node) ProcessAbortMsg(msg types.Message, pkt transport.Packet) error {
	abort, ok := msg.(*types.AbortMessage)
	if !ok {
		return xerrors.Errorf("wrong type: %T", msg)
	}
	err := n.checkSender(pkt, abort.From)
	if err != nil {
		return err
	}

	box, ok := n.mailbox(abort.SessionID)
	if !ok {
		return nil
	}
	box.Close(xerrors.Errorf("party %d aborted session %s: %s: %w",
		abort.From, abort.SessionID, abort.Reason, types.ErrPartyUnavailable))

	log.Info().Str("session", abort.SessionID).Int("party", n.index).Int("from", abort.From).
		Msgf("session aborted: %s", abort.Reason)
	return nil
}

/** Private Helpfer Functions **/

// checkSender checks that pkt comes from compute party from.
func (n *Node) checkSender(pkt transport.Packet, from int) error {
	idx, ok := n.conf.Directory.Index(pkt.Header.Source)
	if !ok || idx == peer.ProviderIndex || idx != from {
		return xerrors.Errorf("message from %s claims party %d", pkt.Header.Source, from)
	}
	return nil
}

// deliver stores value in the session mailbox. Values for closed sessions
// are dropped.
func (n *Node) deliver(session, key string, value interface{}) error {
	box, ok := n.mailbox(session)
	if !ok {
		return nil
	}
	err := box.Put(key, value)
	if err != nil {
		return xerrors.Errorf("session %s: %v", session, err)
	}
	return nil
}

// mailbox returns the mailbox of a session, creating it on first use since
// messages may arrive before the party joins. It fails for closed sessions.
func (n *Node) mailbox(session string) (*storage.Mailbox, bool) {
	n.Lock()
	defer n.Unlock()

	if _, done := n.closed[session]; done {
		return nil, false
	}
	box, ok := n.boxes[session]
	if !ok {
		box = storage.NewMailbox()
		n.boxes[session] = box
	}
	return box, true
}

// closeSession releases the mailbox of a session.
func (n *Node) closeSession(session string, err error) {
	n.Lock()
	defer n.Unlock()

	box, ok := n.boxes[session]
	if ok {
		box.Close(err)
		delete(n.boxes, session)
	}
	n.closed[session] = struct{}{}
}

func inputKey(tag string, from int) string {
	return "input/" + tag + "/" + strconv.Itoa(from)
}

func openKey(tag string, from int) string {
	return "open/" + tag + "/" + strconv.Itoa(from)
}

func correlationKey(tag string) string {
	return "correlation/" + tag
}
