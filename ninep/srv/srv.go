// Package srv implements the server half of a 9P2000 connection: it
// decodes incoming Fcalls, maintains a connection's fid and outstanding
// tag tables, enforces the message-type preconditions a handler should
// never have to check itself, and dispatches to a small vtable of
// handler funcs. On hangup every outstanding request's context is
// cancelled and every open fid is released, invoking Server.Clunk
// exactly once per fid, so handler cleanup runs exactly once regardless
// of whether a client closed cleanly.
package srv

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/synctab"
)

// Server bundles the handler funcs a connection dispatches to. A nil
// Walk, Open, Create, Read, Write, Remove, Stat, Wstat or Flush handler
// means the corresponding operation is unsupported and the dispatcher
// answers "function not implemented" without calling anything. A nil
// Attach answers every Tattach with "unknown specifier in attach", a nil
// Auth behaves as described on its field, and a nil Clunk is skipped.
type Server struct {
	// Aux is available to handlers via no particular mechanism beyond
	// closing over it; it exists so a single Server value can carry
	// application state without a global.
	Aux any

	// Msize bounds negotiated at Tversion; 0 selects a default.
	Msize uint32

	// Model supplies the Mutex/RWLock/Rendez backend; the zero value
	// selects synctab.Std.
	Model synctab.Model

	// Log receives structured diagnostics: connection accept and close
	// (with the read or decode error that ended it) and reply write
	// failures. Precondition rejections are not logged. A nil Log
	// discards them.
	Log *zap.Logger

	// Trace, if non-nil, receives one line per Fcall sent or received,
	// in Fcall.String's format. Structured events go through Log;
	// Trace is a plain wire-level dump for humans and golden-file
	// tests.
	Trace io.Writer

	// Auth authenticates afid for the given uname/aname; nil means the
	// server never requires or supports auth, so any Tattach must carry
	// Afid == ninep.NOFID.
	Auth func(ctx context.Context, afid *Fid, uname, aname string) (ninep.Qid, error)

	// Attach binds fid to the requested tree.
	Attach func(ctx context.Context, fid *Fid, afid *Fid, uname, aname string) (ninep.Qid, error)

	// Walk resolves as many of names as it can starting from fid,
	// filling in newfid's state for the qids it manages to walk. A
	// zero-length names walk (fid clone) always succeeds.
	Walk func(ctx context.Context, fid, newfid *Fid, names []string) ([]ninep.Qid, error)

	Open   func(ctx context.Context, fid *Fid, mode uint8) error
	Create func(ctx context.Context, fid *Fid, name string, perm ninep.Perm, mode uint8) (ninep.Qid, error)
	Read   func(ctx context.Context, fid *Fid, data []byte, offset int64) (int, error)
	Write  func(ctx context.Context, fid *Fid, data []byte, offset int64) (int, error)
	Remove func(ctx context.Context, fid *Fid) error
	Stat   func(ctx context.Context, fid *Fid) (ninep.Stat, error)
	Wstat  func(ctx context.Context, fid *Fid, stat ninep.Stat) error

	// Flush is notified that old is being interrupted by a Tflush before
	// old is forcibly answered with "interrupted". A nil Flush means the
	// server does not support Tflush: the dispatcher answers a Tflush
	// whose oldtag is outstanding with "function not implemented" and old
	// runs to completion on its own. A Tflush naming an unknown oldtag is
	// answered "tag does not exist" whether or not Flush is set.
	Flush func(ctx context.Context, old *Req) error

	// Clunk is called once a Fid's reference count reaches zero,
	// whether via a real Tclunk, an Rerror'd request that never
	// finished attaching a fid, or hangup cleanup. It is the "free
	// fid" hook.
	Clunk func(fid *Fid)
}

func (s *Server) model() synctab.Model {
	if s.Model.NewMutex == nil {
		return synctab.Std
	}
	return s.Model
}

func (s *Server) msize() uint32 {
	if s.Msize == 0 {
		return ninep.IOHDRSZ + 8192
	}
	return s.Msize
}

func (s *Server) log() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// Well-known dispatcher errors, matching the strings a 9P client expects
// to see verbatim in Rerror.
var (
	ErrUnknownFid    = ninep.ErrUnknownFid
	ErrDuplicateFid  = ninep.ErrDupFid
	ErrDuplicateTag  = ninep.ErrDupTag
	ErrNoTag         = ninep.ErrNoTag
	ErrDuplicateOpen = ninep.ErrDuplicateOpen
	ErrIsDir         = ninep.ErrIsDir
	ErrNotDir        = ninep.ErrNotDir
	ErrPerm          = ninep.ErrPerm
	ErrNotOpenRead   = ninep.ErrNotOpenRead
	ErrNotOpenWrite  = ninep.ErrNotOpenWrite
	ErrNoAuth        = errors.New("authentication not required")
	ErrBadAttach     = ninep.ErrBadAttach
	ErrCloneOpen     = ninep.ErrCloneOpen
	ErrNoFunc        = ninep.ErrNoFunc
	ErrInterrupted   = ninep.ErrInterrupted
)
