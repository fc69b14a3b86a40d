package avlreg

import "errors"

// Kind is the error taxonomy from spec §4.8. Every public operation either
// returns nil or wraps exactly one of these.
type Kind int

const (
	KindOK Kind = iota
	KindParam
	KindMismatch
	KindNoMem
	KindNotFound
	KindExists
	KindIOError
	KindCorrupt
	KindInvOper
	KindInternal
	KindAbort
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindParam:
		return "PARAM"
	case KindMismatch:
		return "MISMATCH"
	case KindNoMem:
		return "NOMEM"
	case KindNotFound:
		return "NOTFOUND"
	case KindExists:
		return "EXISTS"
	case KindIOError:
		return "IOERR"
	case KindCorrupt:
		return "CORRUPT"
	case KindInvOper:
		return "INVOPER"
	case KindInternal:
		return "INTERNAL"
	case KindAbort:
		return "ABORT"
	default:
		return "UNKNOWN"
	}
}

// storeError is the concrete error type carrying a Kind, matching errors.Is
// via a sentinel per kind (below) and errors.As for callers that want the
// Kind programmatically.
type storeError struct {
	kind Kind
	msg  string
	err  error
}

func (e *storeError) Error() string {
	if e.err != nil {
		return e.kind.String() + ": " + e.msg + ": " + e.err.Error()
	}
	return e.kind.String() + ": " + e.msg
}

func (e *storeError) Unwrap() error { return e.err }

func (e *storeError) Is(target error) bool {
	var se *storeError
	if errors.As(target, &se) {
		return se.kind == e.kind
	}
	return false
}

func newErr(kind Kind, msg string) error {
	return &storeError{kind: kind, msg: msg}
}

func wrapErr(kind Kind, msg string, err error) error {
	return &storeError{kind: kind, msg: msg, err: err}
}

// KindOf extracts the Kind from an error produced by this package, or
// KindInternal if err did not originate here.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var se *storeError
	if errors.As(err, &se) {
		return se.kind
	}
	return KindInternal
}

// Sentinels usable with errors.Is(err, ErrNotFound) etc.
var (
	ErrParam    = &storeError{kind: KindParam, msg: "invalid parameter"}
	ErrMismatch = &storeError{kind: KindMismatch, msg: "node type mismatch"}
	ErrNoMem    = &storeError{kind: KindNoMem, msg: "out of memory"}
	ErrNotFound = &storeError{kind: KindNotFound, msg: "not found"}
	ErrExists   = &storeError{kind: KindExists, msg: "already exists"}
	ErrIOError  = &storeError{kind: KindIOError, msg: "I/O error"}
	ErrCorrupt  = &storeError{kind: KindCorrupt, msg: "corrupt page"}
	ErrInvOper  = &storeError{kind: KindInvOper, msg: "invalid operation"}
	ErrInternal = &storeError{kind: KindInternal, msg: "internal invariant broken"}
	ErrAbort    = &storeError{kind: KindAbort, msg: "must flush but autosave off"}
)

// lastErr is a per-goroutine-agnostic, per-Registry diagnostic pointer (spec
// §7 "thread-local last error message pointer"). Go doesn't expose
// thread-locals, so this is scoped per Registry instead and guarded by its
// own mutex, lastErrMu; it's diagnostic only, never consulted for control
// flow.
func (r *Registry) setLastErr(err error) {
	r.lastErrMu.Lock()
	r.lastErr = err
	r.lastErrMu.Unlock()
}

// LastError returns the most recent error recorded by any operation on this
// Registry, for diagnostic display (spec §7).
func (r *Registry) LastError() error {
	r.lastErrMu.Lock()
	defer r.lastErrMu.Unlock()
	return r.lastErr
}
