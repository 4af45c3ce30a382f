package srv

import (
	"sync/atomic"

	"github.com/ninep/ninep/ninep"
)

// Fid is the server-side handle a client's Fid number is bound to for
// the life of one connection. Its fields are safe for concurrent access
// from the connection's dispatch goroutines; a handler only ever sees a
// Fid whose relevant preconditions the dispatcher has already checked.
type Fid struct {
	conn *Conn
	num  uint32

	ref atomic.Int32

	uid   atomic.Value // string
	aname atomic.Value // string
	qid   atomic.Value // ninep.Qid
	omode atomic.Int32 // -1 while unopened
	aux   atomic.Value // auxBox, handler-owned

	dirOffset atomic.Int64
	dirIndex  atomic.Int64
}

// Num is the client-chosen fid number this handle answers to.
func (f *Fid) Num() uint32 { return f.num }

// Uid is the user name that walked or attached this fid.
func (f *Fid) Uid() string {
	v, _ := f.uid.Load().(string)
	return v
}

func (f *Fid) setUid(u string) { f.uid.Store(u) }

// Aname is the attach name (Tattach.Aname) of the tree this fid was
// walked from.
func (f *Fid) Aname() string {
	v, _ := f.aname.Load().(string)
	return v
}

func (f *Fid) setAname(a string) { f.aname.Store(a) }

// Qid is this fid's current identity.
func (f *Fid) Qid() ninep.Qid {
	v, _ := f.qid.Load().(ninep.Qid)
	return v
}

// SetQid updates this fid's identity; handlers call it after Walk,
// Create, and anywhere else the qid can change.
func (f *Fid) SetQid(q ninep.Qid) { f.qid.Store(q) }

// Opened reports whether Open/Create has succeeded on this fid.
func (f *Fid) Opened() bool { return f.omode.Load() >= 0 }

// Omode is the mode this fid was opened with; only meaningful once
// Opened reports true.
func (f *Fid) Omode() uint8 { return uint8(f.omode.Load()) }

func (f *Fid) setOmode(m uint8) { f.omode.Store(int32(m)) }

// Aux is a handler-owned value, analogous to the original engine's void*
// aux field: srv never inspects it.
func (f *Fid) Aux() any {
	b, _ := f.aux.Load().(auxBox)
	return b.v
}

// SetAux stores a handler-owned value on this fid.
func (f *Fid) SetAux(v any) { f.aux.Store(auxBox{v}) }

// auxBox wraps the aux value so successive SetAux calls may store values
// of different concrete types, or nil, in the same atomic.Value.
type auxBox struct{ v any }

// dirState returns, and setDirState updates, the (offset, index) pair a
// directory-read helper needs to resume a Tread sequence; see ReadDir.
func (f *Fid) dirState() (offset, index int64) {
	return f.dirOffset.Load(), f.dirIndex.Load()
}

func (f *Fid) setDirState(offset, index int64) {
	f.dirOffset.Store(offset)
	f.dirIndex.Store(index)
}

func newFid(c *Conn, num uint32) *Fid {
	f := &Fid{conn: c, num: num}
	f.omode.Store(-1)
	f.ref.Store(1)
	return f
}

func (f *Fid) incRef() { f.ref.Add(1) }

func (f *Fid) decRef() {
	if f.ref.Add(-1) != 0 {
		return
	}
	if f.conn.srv.Clunk != nil {
		f.conn.srv.Clunk(f)
	}
}
