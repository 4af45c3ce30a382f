package srv

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ninep/ninep/ninep"
)

// Req is one in-flight request: a decoded Fcall the dispatcher has
// already run precondition checks on, and the reply the dispatcher fills
// in from the handler's return values (or from a precondition error).
// Handlers other than Flush never see a Req, and no handler calls
// Respond: the dispatcher calls it once the handler returns, and
// doFlush calls it early on a flushed request. Only the first call
// sends a reply.
type Req struct {
	conn *Conn

	Ctx    context.Context
	cancel context.CancelFunc

	Ifcall *ninep.Fcall
	Ofcall *ninep.Fcall
	// Fid and Newfid are not filled in by the dispatcher, which passes
	// the resolved fids to handlers as arguments instead; they stay nil.
	Fid    *Fid
	Newfid *Fid

	err error

	mu        sync.Mutex
	responded atomic.Bool
}

// SetError marks this request as failing with err; Respond will send
// Rerror with err's message instead of the handler's success reply.
func (r *Req) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func newReq(c *Conn, f *ninep.Fcall) *Req {
	ctx, cancel := context.WithCancel(context.Background())
	return &Req{
		conn:   c,
		Ctx:    ctx,
		cancel: cancel,
		Ifcall: f,
		Ofcall: &ninep.Fcall{Type: f.Type + 1, Tag: f.Tag},
	}
}

func (r *Req) incRef() {}
func (r *Req) decRef() {}

// Respond finalizes r: it copies r.err into Ename if set, fills in the
// default iounit on a successful Ropen/Rcreate, drops r from the
// connection's tag table, sends the reply, and runs the cancel func. A
// request whose context was cancelled by a Tflush or by hangup cleanup
// still sends its reply here; hangup itself never calls Respond. A
// second call, racing a Tflush that forced an "interrupted" reply
// against the handler's own completion, is a no-op.
func (r *Req) Respond() {
	if !r.responded.CompareAndSwap(false, true) {
		return
	}
	defer r.cancel()

	r.mu.Lock()
	err := r.err
	r.mu.Unlock()
	if err != nil {
		r.Ofcall.Type = ninep.Rerror
		r.Ofcall.Ename = err.Error()
	} else if (r.Ofcall.Type == ninep.Ropen || r.Ofcall.Type == ninep.Rcreate) && r.Ofcall.Iounit == 0 {
		r.Ofcall.Iounit = r.conn.msize - ninep.IOHDRSZ
	}
	r.Ofcall.Tag = r.Ifcall.Tag

	// A request rejected as a duplicate tag was never in the table; the
	// entry under its tag belongs to the original request.
	if cur, ok := r.conn.reqs.lookup(r.Ifcall.Tag); ok && cur == r {
		r.conn.reqs.drop(r.Ifcall.Tag)
	}
	r.conn.send(r.Ofcall)
}
