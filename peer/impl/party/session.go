package party

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/smpcreg/peer/impl/secretshare"
	"go.dedis.ch/smpcreg/storage"
	"go.dedis.ch/smpcreg/transport"
	"go.dedis.ch/smpcreg/types"
	"go.dedis.ch/smpcreg/zp"
	"golang.org/x/xerrors"
)

// Session is one party's view of a fit. Every step of the protocol gets the
// next tag of a per-session counter; since all parties run the same sequence
// of steps, a tag names the same step everywhere.
//
// A Session is used by a single goroutine.
type Session struct {
	node    *Node
	id      string
	box     *storage.Mailbox
	step    int
	timeout time.Duration
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.id
}

// Index returns the index of the party running the session.
func (s *Session) Index() int {
	return s.node.index
}

// Parties returns the number of compute parties.
func (s *Session) Parties() int {
	return s.node.conf.Directory.Parties()
}

// Field returns the field shares live in.
func (s *Session) Field() *zp.Field {
	return s.node.field
}

// Precision returns the fixed-point layout of the session.
func (s *Session) Precision() secretshare.Precision {
	return s.node.precision
}

// Steps returns the number of protocol steps run so far.
func (s *Session) Steps() int {
	return s.step
}

// Input secret-shares value, owned by party owner, among all parties and
// returns this party's share. Only the owner passes a value; the owner sends
// each other party its share encrypted to that party's key.
func (s *Session) Input(ctx context.Context, owner int, value *zp.Matrix) (*zp.Matrix, error) {
	tag := s.nextTag()

	if owner < 0 || owner >= s.Parties() {
		return nil, xerrors.Errorf("input owner %d of %d parties: %w", owner, s.Parties(), types.ErrInvalidPartyCount)
	}
	if owner != s.Index() {
		return s.waitMatrix(ctx, inputKey(tag, owner))
	}
	if value == nil {
		return nil, xerrors.Errorf("party %d owns input %s but has no value", owner, tag)
	}

	set, err := secretshare.ShareMatrix(nil, s.Field(), value, s.Parties())
	if err != nil {
		return nil, err
	}
	for j, addr := range s.node.conf.Directory.Addresses() {
		if j == s.Index() {
			continue
		}
		err = s.node.SendEncrypted(addr, types.MPCShareMessage{
			SessionID: s.id,
			Tag:       tag,
			From:      s.Index(),
			Value:     set.Shares[j].Payload(),
		})
		if err != nil {
			return nil, unavailable(err)
		}
	}
	return set.Shares[s.Index()], nil
}

// Open reconstructs a shared value: every party broadcasts its share and sums
// the shares of all.
func (s *Session) Open(ctx context.Context, share *zp.Matrix) (*zp.Matrix, error) {
	tag := s.nextTag()

	err := share.Validate()
	if err != nil {
		return nil, err
	}

	err = s.node.Broadcast(s.node.conf.Directory.Addresses(), types.MPCOpenMessage{
		SessionID: s.id,
		Tag:       tag,
		From:      s.Index(),
		Value:     share.Payload(),
	})
	if err != nil {
		return nil, unavailable(err)
	}

	shares := make([]*zp.Matrix, s.Parties())
	shares[s.Index()] = share
	for j := range shares {
		if j == s.Index() {
			continue
		}
		m, err := s.waitMatrix(ctx, openKey(tag, j))
		if err != nil {
			return nil, err
		}
		if !m.SameShape(share) {
			return nil, xerrors.Errorf("party %d opened %dx%d at %s, party %d %dx%d: %w",
				j, m.Rows, m.Cols, tag, s.Index(), share.Rows, share.Cols, types.ErrShapeMismatch)
		}
		shares[j] = m
	}

	return secretshare.Reconstruct(&secretshare.ShareSet{Field: s.Field(), Shares: shares})
}

// Triple fetches this party's share of a multiplication triple from the
// crypto provider.
func (s *Session) Triple(ctx context.Context, kind types.CorrelationKind, dims []int) (secretshare.Triple, error) {
	if kind != types.CorrelationElementwise && kind != types.CorrelationMatMul {
		return secretshare.Triple{}, xerrors.Errorf("%s is not a triple", kind)
	}
	parts, err := s.correlation(ctx, kind, dims)
	if err != nil {
		return secretshare.Triple{}, err
	}
	return secretshare.Triple{U: parts[0], V: parts[1], W: parts[2]}, nil
}

// TruncPair fetches this party's share of a truncation pair.
func (s *Session) TruncPair(ctx context.Context, rows, cols int) (secretshare.TruncPair, error) {
	parts, err := s.correlation(ctx, types.CorrelationTruncation, []int{rows, cols})
	if err != nil {
		return secretshare.TruncPair{}, err
	}
	return secretshare.TruncPair{R: parts[0], RHigh: parts[1]}, nil
}

// Abort tells every other node that this party gives up on the session and
// fails the pending waits.
func (s *Session) Abort(cause error) {
	reason := "aborted"
	if cause != nil {
		reason = cause.Error()
	}

	dests := append(s.node.conf.Directory.Addresses(), s.node.conf.Directory.Provider())
	err := s.node.Broadcast(dests, types.AbortMessage{SessionID: s.id, From: s.Index(), Reason: reason})
	if err != nil {
		log.Warn().Str("session", s.id).Int("party", s.Index()).Err(err).Msg("abort not delivered to all")
	}

	s.box.Close(xerrors.Errorf("party %d aborted: %s: %w", s.Index(), reason, types.ErrPartyUnavailable))
}

// Close releases the session. Late messages for it are dropped.
func (s *Session) Close() {
	s.node.closeSession(s.id, xerrors.Errorf("session %s closed", s.id))
}

/** Private Helpfer Functions **/

func (s *Session) nextTag() string {
	s.step++
	return strconv.Itoa(s.step)
}

// correlation requests the share of a correlation and checks its shapes.
func (s *Session) correlation(ctx context.Context, kind types.CorrelationKind, dims []int) ([]*zp.Matrix, error) {
	tag := s.nextTag()

	shapes, err := correlationShapes(kind, dims)
	if err != nil {
		return nil, err
	}

	err = s.node.Unicast(s.node.conf.Directory.Provider(), types.CorrelationRequestMessage{
		SessionID: s.id,
		Tag:       tag,
		From:      s.Index(),
		Kind:      kind,
		Dims:      dims,
	})
	if err != nil {
		return nil, unavailable(err)
	}

	v, err := s.wait(ctx, correlationKey(tag))
	if err != nil {
		return nil, err
	}
	reply, ok := v.(*types.CorrelationMessage)
	if !ok {
		return nil, xerrors.Errorf("unexpected %T for %s", v, tag)
	}
	if reply.Code != "" {
		return nil, types.ErrorFromCode(reply.Code, reply.Error)
	}
	if reply.Kind != kind || len(reply.Parts) != len(shapes) {
		return nil, xerrors.Errorf("provider sent %d parts of %s for %s: %w",
			len(reply.Parts), reply.Kind, kind, types.ErrShapeMismatch)
	}

	parts := make([]*zp.Matrix, len(shapes))
	for i, p := range reply.Parts {
		m, err := s.Field().FromPayload(p)
		if err != nil {
			return nil, err
		}
		if m.Rows != shapes[i][0] || m.Cols != shapes[i][1] {
			return nil, xerrors.Errorf("part %d of %s is %dx%d, expected %v: %w",
				i, tag, m.Rows, m.Cols, shapes[i], types.ErrShapeMismatch)
		}
		parts[i] = m
	}
	return parts, nil
}

func (s *Session) waitMatrix(ctx context.Context, key string) (*zp.Matrix, error) {
	v, err := s.wait(ctx, key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(*zp.Matrix)
	if !ok {
		return nil, xerrors.Errorf("unexpected %T for %s", v, key)
	}
	return m, nil
}

// wait blocks until key is delivered. Running out of the party timeout means
// a party is gone.
func (s *Session) wait(ctx context.Context, key string) (interface{}, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	v, err := s.box.Wait(waitCtx, key)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return nil, xerrors.Errorf("party %d waited %s for %s: %w", s.Index(), s.timeout, key,
			types.ErrPartyUnavailable)
	}
	return nil, err
}

// correlationShapes returns the shapes of the parts of a correlation.
func correlationShapes(kind types.CorrelationKind, dims []int) ([][2]int, error) {
	for _, d := range dims {
		if d <= 0 {
			return nil, xerrors.Errorf("%s correlation with dims %v: %w", kind, dims, types.ErrShapeMismatch)
		}
	}

	switch {
	case kind == types.CorrelationElementwise && len(dims) == 2:
		s := [2]int{dims[0], dims[1]}
		return [][2]int{s, s, s}, nil
	case kind == types.CorrelationMatMul && len(dims) == 3:
		return [][2]int{{dims[0], dims[1]}, {dims[1], dims[2]}, {dims[0], dims[2]}}, nil
	case kind == types.CorrelationTruncation && len(dims) == 2:
		s := [2]int{dims[0], dims[1]}
		return [][2]int{s, s}, nil
	default:
		return nil, xerrors.Errorf("%s correlation with dims %v: %w", kind, dims, types.ErrShapeMismatch)
	}
}

// unavailable classifies a failed send. A packet the transport cannot carry
// is a shape problem of the fit; any other failure means a party is gone.
func unavailable(err error) error {
	if errors.Is(err, transport.ErrPacketTooLarge) {
		return xerrors.Errorf("%v: %w", err, types.ErrShapeMismatch)
	}
	return xerrors.Errorf("%v: %w", err, types.ErrPartyUnavailable)
}
