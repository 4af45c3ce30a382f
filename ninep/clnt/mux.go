// Package clnt implements the client half of a 9P2000 connection: an
// elected tag multiplexer shared by every concurrent caller on one
// connection, and a high-level Fid/Fsys API for walking, opening, and
// reading a mounted tree.
//
// The multiplexer has no dedicated reader goroutine. Whichever caller's
// RPC is first to find no one else already reading becomes the
// "muxer": it reads replies off the wire and wakes the right sleeper
// for each one, including itself, until its own reply arrives, then
// hands the muxer role to another still-sleeping caller before
// returning. This mirrors the original engine's rpc.cc exactly, because
// that election protocol — not just "some goroutine reads the socket" —
// is the property under test: every waiter is served in bounded time,
// no reply is dropped, and a socket EOF wakes every sleeper with an
// error instead of hanging the connection forever.
package clnt

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/synctab"
)

// waiter is one outstanding RPC: the Go analogue of Rpc in the original
// engine. It is always stack-local to the call that created it.
type waiter struct {
	rendez synctab.Rendez // bound to Client.lk
	tag    uint16
	reply  *ninep.Fcall
	err    error
	async  bool

	next, prev *waiter // sleep-list links; nil when not enqueued
}

// Client multiplexes many concurrent RPCs over one connection.
type Client struct {
	conn io.ReadWriteCloser
	log  logger

	lk      synctab.Mutex  // guards everything below
	tagrend synctab.Rendez // bound to lk; signaled when a tag frees up

	wlock synctab.Mutex // serializes writes to conn
	rlock synctab.Mutex // serializes reads from conn

	mintag  uint16
	maxwait int
	wait    []*waiter
	mwait   int
	nwait   int
	freetag int

	muxer *waiter
	sleep waiter // sentinel; sleep.next/.prev form the circular wait list

	msize   uint32
	version string
	closed  atomic.Bool

	fids *fidPool
}

type logger interface {
	Warnf(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Warnf(string, ...any) {}

// NewClient wraps conn in a muxing Client. model selects the
// concurrency backend; the zero Model selects synctab.Std.
func NewClient(conn io.ReadWriteCloser, model synctab.Model) *Client {
	if model.NewMutex == nil {
		model = synctab.Std
	}
	c := &Client{
		conn:    conn,
		log:     nopLogger{},
		lk:      model.NewMutex(),
		wlock:   model.NewMutex(),
		rlock:   model.NewMutex(),
		mintag:  0,
		maxwait: int(ninep.NOTAG), // tags [0, NOTAG) are available; NOTAG itself is reserved
		msize:   ninep.IOHDRSZ + 8192,
	}
	c.tagrend = model.NewRendez(c.lk)
	c.sleep.next = &c.sleep
	c.sleep.prev = &c.sleep
	return c
}

// SetLogger directs warnings about malformed replies through l.
func (c *Client) SetLogger(l logger) { c.log = l }

func newWaiter(c *Client) *waiter {
	w := &waiter{}
	w.rendez = stdRendezFor(c)
	return w
}

// stdRendezFor builds a Rendez bound to c.lk via whatever Model c was
// constructed with. Client doesn't retain its Model, only the
// already-built lk, so waiters reuse synctab.Std's condvar-on-mutex
// construction directly; a Client built with a different Model should
// not mix backends for its lock and its waiters' rendezvous.
func stdRendezFor(c *Client) synctab.Rendez {
	return synctab.Std.NewRendez(c.lk)
}

func (c *Client) enqueue(w *waiter) {
	w.next = c.sleep.next
	w.prev = &c.sleep
	w.next.prev = w
	w.prev.next = w
}

func (c *Client) dequeue(w *waiter) {
	if w.prev == nil {
		return
	}
	w.next.prev = w.prev
	w.prev.next = w.next
	w.prev = nil
	w.next = nil
}

// gettagLocked assigns w a free tag, probing the freetag hint (the most
// recently freed or newly grown slot) first, then scanning forward from
// it, then from the start. It grows the dense wait table (doubling each
// time) when every existing slot is taken and growth room remains, and
// blocks on tagrend when it doesn't.
func (c *Client) gettagLocked(w *waiter) uint16 {
	for {
		for c.nwait == c.mwait {
			if c.mwait < c.maxwait {
				mw := c.mwait
				if mw == 0 {
					mw = 1
				} else {
					mw <<= 1
				}
				if mw > c.maxwait {
					mw = c.maxwait
				}
				grown := make([]*waiter, mw)
				copy(grown, c.wait)
				c.wait = grown
				c.freetag = c.mwait
				c.mwait = mw
				break
			}
			c.tagrend.Sleep()
		}

		assign := func(i int) uint16 {
			c.nwait++
			c.wait[i] = w
			w.tag = uint16(i) + c.mintag
			return w.tag
		}
		i := c.freetag
		if c.wait[i] == nil {
			return assign(i)
		}
		for ; i < c.mwait; i++ {
			if c.wait[i] == nil {
				return assign(i)
			}
		}
		for i = 0; i < c.freetag; i++ {
			if c.wait[i] == nil {
				return assign(i)
			}
		}
		// Every slot taken right after proving c.nwait < c.mwait can
		// only happen if the bookkeeping above is wrong.
		panic("ninep/clnt: fell out of tag search with no free tag")
	}
}

func (c *Client) puttagLocked(w *waiter) {
	i := int(w.tag) - int(c.mintag)
	c.wait[i] = nil
	c.nwait--
	c.freetag = i
	c.tagrend.Wake()
}

// electmuxerLocked hands the muxer role to the first still-sleeping,
// non-async waiter, or clears it if there is none.
func (c *Client) electmuxerLocked() {
	for w := c.sleep.next; w != &c.sleep; w = w.next {
		if !w.async {
			c.muxer = w
			w.rendez.Wake()
			return
		}
	}
	c.muxer = nil
}

// sendrpc assigns w a tag, marshals tx with it, and writes it to the
// wire. On failure it releases the tag it had reserved.
func (c *Client) sendrpc(w *waiter, tx *ninep.Fcall) error {
	c.lk.Lock()
	tag := c.gettagLocked(w)
	tx.Tag = tag
	c.enqueue(w)
	c.lk.Unlock()

	c.wlock.Lock()
	err := ninep.WriteFcall(c.conn, tx)
	c.wlock.Unlock()
	if err != nil {
		c.lk.Lock()
		c.dequeue(w)
		c.puttagLocked(w)
		c.lk.Unlock()
	}
	return err
}

// muxrecv reads exactly one reply off the wire. It returns a nil Fcall
// and nil error on a clean EOF.
func (c *Client) muxrecv() (*ninep.Fcall, error) {
	c.rlock.Lock()
	defer c.rlock.Unlock()
	f, err := ninep.ReadFcall(c.conn, c.msize)
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// dispatchLocked hands a just-received reply to whichever waiter owns
// its tag, assuming c.lk is already held.
func (c *Client) dispatchLocked(f *ninep.Fcall) {
	i := int(f.Tag) - int(c.mintag)
	if i < 0 || i >= c.mwait {
		c.log.Warnf("ninep/clnt: received reply with out-of-range tag %d", f.Tag)
		return
	}
	w := c.wait[i]
	if w == nil || w.prev == nil {
		c.log.Warnf("ninep/clnt: received reply with unowned tag %d", f.Tag)
		return
	}
	w.reply = f
	c.dequeue(w)
	w.rendez.Wake()
}

// Rpc sends tx and returns the matching reply, electing itself muxer if
// no one else is reading the wire and no one else's RPC is already
// covering that duty.
func (c *Client) Rpc(tx *ninep.Fcall) (*ninep.Fcall, error) {
	if c.closed.Load() {
		return nil, fmt.Errorf("ninep/clnt: client closed")
	}
	w := newWaiter(c)
	if err := c.sendrpc(w, tx); err != nil {
		return nil, err
	}

	c.lk.Lock()
	for c.muxer != nil && c.muxer != w && w.reply == nil {
		w.rendez.Sleep()
	}

	if w.reply == nil {
		c.muxer = w
		for w.reply == nil {
			c.lk.Unlock()
			f, err := c.muxrecv()
			c.lk.Lock()
			if err != nil {
				c.dequeue(w)
				w.err = err
				break
			}
			if f == nil {
				// clean EOF: wake every remaining sleeper with an error
				c.dequeue(w)
				c.failAllLocked(io.ErrUnexpectedEOF)
				break
			}
			c.dispatchLocked(f)
		}
		c.electmuxerLocked()
	}

	reply, rerr := w.reply, w.err
	c.puttagLocked(w)
	c.lk.Unlock()

	if rerr != nil {
		return nil, rerr
	}
	if reply == nil {
		return nil, ninep.ErrUnexpectedEOF
	}
	if reply.Type == ninep.Rerror {
		return nil, fmt.Errorf("%s", reply.Ename)
	}
	return reply, nil
}

// failAllLocked wakes every still-sleeping waiter with err, used when
// the connection dies while this goroutine holds the muxer role.
func (c *Client) failAllLocked(err error) {
	for w := c.sleep.next; w != &c.sleep; {
		next := w.next
		w.err = err
		c.dequeue(w)
		w.rendez.Wake()
		w = next
	}
}

// Close marks the client closed and closes the underlying connection.
// Outstanding RPCs unblock with an error once the muxer notices the
// read failing.
func (c *Client) Close() error {
	c.closed.Store(true)
	return c.conn.Close()
}
