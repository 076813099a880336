package types

import "golang.org/x/xerrors"

// Error kinds of an encrypted fit. All of them are terminal for the fit in
// progress: the caller restarts from a fresh model with fresh shares.
var (
	// ErrInvalidPartyCount is returned when fewer than two parties would hold
	// shares of a value.
	ErrInvalidPartyCount = xerrors.New("invalid party count")

	// ErrIncompleteShares is returned when a reconstruction misses at least
	// one party's share.
	ErrIncompleteShares = xerrors.New("incomplete shares")

	// ErrTripleExhausted is returned when the crypto provider cannot supply
	// fresh multiplication triples.
	ErrTripleExhausted = xerrors.New("multiplication triples exhausted")

	// ErrShapeMismatch is returned on incompatible matrix dimensions.
	ErrShapeMismatch = xerrors.New("shape mismatch")

	// ErrNonConvergent is returned when the encrypted inverse does not reach
	// its tolerance within the iteration budget.
	ErrNonConvergent = xerrors.New("inverse did not converge")

	// ErrNotSolved is returned when a summary is requested before the model
	// was solved.
	ErrNotSolved = xerrors.New("model not solved")

	// ErrPartyUnavailable is returned when a party (data holder, auxiliary
	// party or crypto provider) stops answering or aborts.
	ErrPartyUnavailable = xerrors.New("party unavailable")

	// ErrAlreadyFitted is returned when Fit is called on a model that left
	// the Created state.
	ErrAlreadyFitted = xerrors.New("model already fitted")
)

var errorCodes = map[string]error{
	"invalid-party-count": ErrInvalidPartyCount,
	"incomplete-shares":   ErrIncompleteShares,
	"triple-exhausted":    ErrTripleExhausted,
	"shape-mismatch":      ErrShapeMismatch,
	"non-convergent":      ErrNonConvergent,
	"not-solved":          ErrNotSolved,
	"party-unavailable":   ErrPartyUnavailable,
	"already-fitted":      ErrAlreadyFitted,
}

// ErrorCode returns the wire code of the error kind wrapped by err, or
// "internal" when err wraps none of them.
func ErrorCode(err error) string {
	for code, kind := range errorCodes {
		if xerrors.Is(err, kind) {
			return code
		}
	}
	return "internal"
}

// ErrorFromCode rebuilds an error received over the wire so that errors.Is
// still recognizes its kind.
func ErrorFromCode(code, msg string) error {
	kind, ok := errorCodes[code]
	if !ok {
		return xerrors.Errorf("remote error: %s", msg)
	}
	return xerrors.Errorf("remote error: %s: %w", msg, kind)
}
