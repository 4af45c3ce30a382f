package ninep

import "errors"

// ProtocolError reports malformed wire data: a short message, a bad
// length prefix, an unrecognized message type. Transport and codec
// callers use it to distinguish "close this connection" from an
// ordinary Rerror returned by a well-formed exchange.
type ProtocolError string

func (e ProtocolError) Error() string { return string(e) }

// Well-known error strings. These must match the original server and
// client engine verbatim: 9P clients commonly pattern-match on Ename
// text, so a paraphrase that reads the same to a human is still a wire
// break.
var (
	ErrDupTag      = errors.New("tag in use")
	ErrDupFid      = errors.New("fid in use")
	ErrUnknownFid  = errors.New("fid does not exist")
	ErrNoTag       = errors.New("tag does not exist")
	ErrNoFunc      = errors.New("function not implemented")
	ErrBadAttach   = errors.New("unknown specifier in attach")
	ErrNotFound    = errors.New("file does not exist")
	ErrNotDir      = errors.New("not a directory")
	ErrCloneOpen   = errors.New("cannot walk from an open fid")
	ErrIsDir       = errors.New("cannot perform operation on a directory")
	ErrPerm        = errors.New("permission denied")
	ErrInterrupted = errors.New("interrupted")

	ErrBadOffset = errors.New("bad offset")
	ErrBadCount  = errors.New("bad count")

	ErrWstatType = errors.New("wstat of type")
	ErrWstatDev  = errors.New("wstat of dev")
	ErrWstatQid  = errors.New("wstat of qid")
	ErrWstatMuid = errors.New("wstat of muid")
	ErrWstatDir  = errors.New("wstat on DMDIR bit")

	ErrNotOpenRead   = errors.New("file not open for reading")
	ErrNotOpenWrite  = errors.New("write on fid not opened for writing")
	ErrDuplicateOpen = errors.New("fid is already open")
	ErrCreateNonDir  = errors.New("create in non-directory")
	ErrUnexpectedEOF = errors.New("unexpected eof")
)
