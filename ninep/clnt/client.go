package clnt

import (
	"fmt"
	"io"
	"sync"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/synctab"
)

// fidPool hands out client-chosen fid numbers, reusing clunked ones
// before minting new ones — the client-side mirror of a server's fid
// table, except the client owns the numbers it hands the server.
type fidPool struct {
	mu   sync.Mutex
	next uint32
	free []uint32
}

func (p *fidPool) get() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		f := p.free[n-1]
		p.free = p.free[:n-1]
		return f
	}
	f := p.next
	p.next++
	return f
}

func (p *fidPool) put(fid uint32) {
	p.mu.Lock()
	p.free = append(p.free, fid)
	p.mu.Unlock()
}

// Dial opens a Client over conn: it negotiates the protocol version
// immediately, the way a Tversion handshake always precedes any other
// traffic on a fresh connection.
func Dial(conn io.ReadWriteCloser, model synctab.Model) (*Client, error) {
	c := NewClient(conn, model)
	c.fids = &fidPool{}

	// Tversion goes out under NOTAG, outside the muxer's tag table: no
	// other RPC can be in flight on a fresh connection.
	tx := &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: c.msize, Version: ninep.DefaultVersion}
	if err := ninep.WriteFcall(conn, tx); err != nil {
		return nil, fmt.Errorf("ninep/clnt: version handshake: %w", err)
	}
	rx, err := ninep.ReadFcall(conn, c.msize)
	if err != nil {
		return nil, fmt.Errorf("ninep/clnt: version handshake: %w", err)
	}
	if rx.Type != ninep.Rversion {
		return nil, ninep.ProtocolError("unexpected reply to Tversion")
	}
	if rx.Version != ninep.DefaultVersion {
		return nil, ninep.ProtocolError("server does not speak " + ninep.DefaultVersion)
	}
	c.lk.Lock()
	c.msize = rx.Msize
	c.version = rx.Version
	c.lk.Unlock()
	return c, nil
}

// Msize is the negotiated maximum message size.
func (c *Client) Msize() uint32 { return c.msize }

// Auth starts authentication for uname/aname, returning an Fid the
// caller reads/writes to complete whatever auth protocol the server
// expects, then passes to Attach.
func (c *Client) Auth(uname, aname string) (*Fid, error) {
	afid := c.fids.get()
	rx, err := c.Rpc(&ninep.Fcall{Type: ninep.Tauth, Afid: afid, Uname: uname, Aname: aname})
	if err != nil {
		c.fids.put(afid)
		return nil, err
	}
	return &Fid{c: c, num: afid, qid: rx.Aqid}, nil
}

// Attach attaches to aname as uname, optionally presenting a completed
// auth Fid, and returns the root Fid of the resulting tree.
func (c *Client) Attach(auth *Fid, uname, aname string) (*Fid, error) {
	fid := c.fids.get()
	afidNum := ninep.NOFID
	if auth != nil {
		afidNum = auth.num
	}
	rx, err := c.Rpc(&ninep.Fcall{Type: ninep.Tattach, Fid: fid, Afid: afidNum, Uname: uname, Aname: aname})
	if err != nil {
		c.fids.put(fid)
		return nil, err
	}
	return &Fid{c: c, num: fid, qid: rx.Qid}, nil
}
