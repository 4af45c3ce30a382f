package srv

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/synctab"
)

// Conn is one accepted connection: its fid table, its outstanding-tag
// table, and the negotiated msize.
type Conn struct {
	srv *Server
	id  string
	rwc io.ReadWriteCloser

	fids *refMap[uint32, *Fid]
	reqs *refMap[uint16, *Req]

	msize   uint32
	outLock synctab.Mutex
	log     *zap.Logger
}

// Serve reads and dispatches Fcalls from rwc until it hits a read error
// (including a clean EOF), then runs hangup cleanup and returns that
// error. It does not close rwc.
func Serve(srv *Server, rwc io.ReadWriteCloser) error {
	c := &Conn{
		srv:     srv,
		id:      uuid.NewString(),
		rwc:     rwc,
		fids:    newRefMap[uint32, *Fid](),
		reqs:    newRefMap[uint16, *Req](),
		msize:   srv.msize(),
		outLock: srv.model().NewMutex(),
	}
	c.log = srv.log().With(zap.String("conn", c.id))
	c.log.Info("connection accepted")

	var retErr error
	for {
		f, err := ninep.ReadFcall(rwc, c.msize)
		if err != nil {
			retErr = err
			break
		}
		c.trace(f)
		r := newReq(c, f)
		if !c.reqs.tryInsert(f.Tag, r) {
			r.SetError(ErrDuplicateTag)
			r.Respond()
			continue
		}
		go c.serveRequest(r)
	}
	c.log.Info("connection closed", zap.Error(retErr))
	c.hangup()
	return retErr
}

func (c *Conn) trace(f *ninep.Fcall) {
	if c.srv.Trace != nil {
		fmt.Fprintln(c.srv.Trace, f.String())
	}
}

func (c *Conn) send(f *ninep.Fcall) {
	c.outLock.Lock()
	defer c.outLock.Unlock()
	c.trace(f)
	if err := ninep.WriteFcall(c.rwc, f); err != nil {
		c.log.Info("write failed", zap.Error(err))
	}
}

// hangup runs when the read loop exits: every request still outstanding
// is interrupted via its context (the idiomatic stand-in for a
// synthesized Tflush a blocked handler can observe via ctx.Done()), and
// every fid still open is released, invoking Server.Clunk exactly once
// per fid, exactly as a real Tclunk would.
func (c *Conn) hangup() {
	for _, r := range c.reqs.clear() {
		r.cancel()
	}
	c.fids.clear()
}

func (c *Conn) serveRequest(r *Req) {
	ctx := r.Ctx
	f := r.Ifcall

	switch f.Type {
	case ninep.Tversion:
		c.doVersion(r)
	case ninep.Tauth:
		c.doAuth(ctx, r)
	case ninep.Tattach:
		c.doAttach(ctx, r)
	case ninep.Tflush:
		c.doFlush(r)
		return // doFlush controls its own Respond timing
	case ninep.Twalk:
		c.doWalk(ctx, r)
	case ninep.Topen:
		c.doOpen(ctx, r)
	case ninep.Tcreate:
		c.doCreate(ctx, r)
	case ninep.Tread:
		c.doRead(ctx, r)
	case ninep.Twrite:
		c.doWrite(ctx, r)
	case ninep.Tclunk:
		c.doClunk(r)
	case ninep.Tremove:
		c.doRemove(ctx, r)
	case ninep.Tstat:
		c.doStat(ctx, r)
	case ninep.Twstat:
		c.doWstat(ctx, r)
	default:
		r.SetError(fmt.Errorf("unknown message type %d", f.Type))
	}
	r.Respond()
}

func (c *Conn) lookupFid(num uint32) (*Fid, bool) {
	return c.fids.lookup(num)
}

func (c *Conn) doVersion(r *Req) {
	f := r.Ifcall
	if f.Msize < c.msize {
		c.msize = f.Msize
	}
	version := ninep.DefaultVersion
	if len(f.Version) < len(ninep.DefaultVersion) || f.Version[:len(ninep.DefaultVersion)] != ninep.DefaultVersion {
		version = "unknown"
	}
	// Tversion resets connection state: any outstanding requests and
	// fids from a previous session are gone.
	for _, old := range c.reqs.clear() {
		old.cancel()
	}
	c.fids.clear()
	r.Ofcall.Msize = c.msize
	r.Ofcall.Version = version
}

func (c *Conn) doAuth(ctx context.Context, r *Req) {
	f := r.Ifcall
	if c.srv.Auth == nil {
		r.SetError(ErrNoAuth)
		return
	}
	afid := newFid(c, f.Afid)
	if !c.fids.tryInsert(f.Afid, afid) {
		r.SetError(ErrDuplicateFid)
		return
	}
	afid.setUid(f.Uname)
	afid.setAname(f.Aname)
	qid, err := c.srv.Auth(ctx, afid, f.Uname, f.Aname)
	if err != nil {
		c.fids.drop(f.Afid)
		r.SetError(err)
		return
	}
	afid.SetQid(qid)
	r.Ofcall.Aqid = qid
}

func (c *Conn) doAttach(ctx context.Context, r *Req) {
	f := r.Ifcall
	if c.srv.Attach == nil {
		r.SetError(ErrBadAttach)
		return
	}
	var afid *Fid
	if f.Afid != ninep.NOFID {
		var ok bool
		afid, ok = c.lookupFid(f.Afid)
		if !ok {
			r.SetError(ErrUnknownFid)
			return
		}
		defer afid.decRef()
	} else if c.srv.Auth != nil {
		r.SetError(ErrBadAttach)
		return
	}
	fid := newFid(c, f.Fid)
	if !c.fids.tryInsert(f.Fid, fid) {
		r.SetError(ErrDuplicateFid)
		return
	}
	fid.setUid(f.Uname)
	fid.setAname(f.Aname)
	qid, err := c.srv.Attach(ctx, fid, afid, f.Uname, f.Aname)
	if err != nil {
		c.fids.drop(f.Fid)
		r.SetError(err)
		return
	}
	fid.SetQid(qid)
	r.Ofcall.Qid = qid
}

// doFlush interrupts the request tagged Oldtag: it cancels old's context
// and forces old to respond with "interrupted" before r itself answers
// Rflush, so a Tflush against a stalled handler never hangs. An unknown
// oldtag (already answered, or never issued) answers r with "tag does
// not exist" instead.
func (c *Conn) doFlush(r *Req) {
	old, ok := c.reqs.lookup(r.Ifcall.Oldtag)
	if !ok {
		r.SetError(ErrNoTag)
		r.Respond()
		return
	}
	defer old.decRef()
	if c.srv.Flush == nil {
		r.SetError(ErrNoFunc)
		r.Respond()
		return
	}
	if err := c.srv.Flush(r.Ctx, old); err != nil {
		r.SetError(err)
	}
	old.cancel()
	old.SetError(ErrInterrupted)
	old.Respond()
	r.Respond()
}

func (c *Conn) doWalk(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.lookupFid(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()

	if len(f.Wname) > ninep.MAXWELEM {
		r.SetError(fmt.Errorf("too many walk elements"))
		return
	}
	if fid.Opened() {
		r.SetError(ErrCloneOpen)
		return
	}

	newfid := newFid(c, f.Newfid)
	newfid.setUid(fid.Uid())
	newfid.setAname(fid.Aname())
	newfid.SetQid(fid.Qid())

	if c.srv.Walk == nil {
		r.SetError(ErrNoFunc)
		return
	}
	qids, err := c.srv.Walk(ctx, fid, newfid, f.Wname)
	if len(f.Wname) > 0 && len(qids) == 0 {
		if err == nil {
			err = ninep.ErrNotFound
		}
		r.SetError(err)
		return
	}
	if f.Fid != f.Newfid {
		if !c.fids.tryInsert(f.Newfid, newfid) {
			r.SetError(ErrDuplicateFid)
			return
		}
	} else {
		// cloned in place: replace the map entry, dropping the old ref.
		c.fids.drop(f.Fid)
		if !c.fids.tryInsert(f.Fid, newfid) {
			r.SetError(ErrDuplicateFid)
			return
		}
	}
	if len(qids) > 0 {
		newfid.SetQid(qids[len(qids)-1])
	}
	r.Ofcall.Wqid = qids
}

func (c *Conn) doOpen(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.lookupFid(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()
	if fid.Opened() {
		r.SetError(ErrDuplicateOpen)
		return
	}
	if fid.Qid().Type&ninep.QTDIR != 0 {
		if f.Mode&3 != ninep.OREAD || f.Mode&(ninep.OTRUNC|ninep.ORCLOSE) != 0 {
			r.SetError(ErrIsDir)
			return
		}
	}
	if c.srv.Open == nil {
		r.SetError(ErrNoFunc)
		return
	}
	if err := c.srv.Open(ctx, fid, f.Mode); err != nil {
		r.SetError(err)
		return
	}
	fid.setOmode(f.Mode)
	r.Ofcall.Qid = fid.Qid()
}

func (c *Conn) doCreate(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.lookupFid(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()
	if fid.Opened() {
		r.SetError(ErrDuplicateOpen)
		return
	}
	if fid.Qid().Type&ninep.QTDIR == 0 {
		r.SetError(ninep.ErrCreateNonDir)
		return
	}
	if c.srv.Create == nil {
		r.SetError(ErrNoFunc)
		return
	}
	qid, err := c.srv.Create(ctx, fid, f.Name, f.Perm, f.Mode)
	if err != nil {
		r.SetError(err)
		return
	}
	fid.SetQid(qid)
	fid.setOmode(f.Mode)
	r.Ofcall.Qid = qid
}

func (c *Conn) doRead(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.lookupFid(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()
	if !fid.Opened() {
		r.SetError(ErrNotOpenRead)
		return
	}
	if fid.Qid().Type&ninep.QTDIR == 0 && fid.Omode()&3 == ninep.OWRITE {
		r.SetError(ErrNotOpenRead)
		return
	}
	if c.srv.Read == nil {
		r.SetError(ErrNoFunc)
		return
	}
	buf := make([]byte, f.Count)
	n, err := c.srv.Read(ctx, fid, buf, int64(f.Offset))
	if err != nil {
		r.SetError(err)
		return
	}
	r.Ofcall.Data = buf[:n]
}

func (c *Conn) doWrite(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.lookupFid(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()
	if !fid.Opened() || fid.Omode()&3 == ninep.OREAD {
		r.SetError(ErrNotOpenWrite)
		return
	}
	if c.srv.Write == nil {
		r.SetError(ErrNoFunc)
		return
	}
	n, err := c.srv.Write(ctx, fid, f.Data, int64(f.Offset))
	if err != nil {
		r.SetError(err)
		return
	}
	r.Ofcall.Count = uint32(n)
}

func (c *Conn) doClunk(r *Req) {
	fid, ok := c.fids.delete(r.Ifcall.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	fid.decRef()
}

func (c *Conn) doRemove(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.fids.delete(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	var err error
	if c.srv.Remove != nil {
		err = c.srv.Remove(ctx, fid)
	} else {
		err = ErrNoFunc
	}
	fid.decRef()
	if err != nil {
		r.SetError(err)
	}
}

func (c *Conn) doStat(ctx context.Context, r *Req) {
	fid, ok := c.lookupFid(r.Ifcall.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()
	if c.srv.Stat == nil {
		r.SetError(ErrNoFunc)
		return
	}
	st, err := c.srv.Stat(ctx, fid)
	if err != nil {
		r.SetError(err)
		return
	}
	b, err := st.Bytes()
	if err != nil {
		r.SetError(err)
		return
	}
	r.Ofcall.Stat = b
}

func (c *Conn) doWstat(ctx context.Context, r *Req) {
	f := r.Ifcall
	fid, ok := c.lookupFid(f.Fid)
	if !ok {
		r.SetError(ErrUnknownFid)
		return
	}
	defer fid.decRef()
	st, err := ninep.UnmarshalStat(f.Stat)
	if err != nil {
		r.SetError(err)
		return
	}
	q := fid.Qid()
	nullQid := ninep.Qid{Path: ^uint64(0), Vers: ^uint32(0), Type: ^uint8(0)}
	if st.Type != ^uint16(0) {
		r.SetError(ninep.ErrWstatType)
		return
	}
	if st.Dev != ^uint32(0) {
		r.SetError(ninep.ErrWstatDev)
		return
	}
	if st.Qid != nullQid {
		r.SetError(ninep.ErrWstatQid)
		return
	}
	if st.Muid != "" {
		r.SetError(ninep.ErrWstatMuid)
		return
	}
	if st.Mode != ^ninep.Perm(0) && (uint32(st.Mode)&ninep.DMDIR != 0) != (q.Type&ninep.QTDIR != 0) {
		r.SetError(ninep.ErrWstatDir)
		return
	}
	if c.srv.Wstat == nil {
		r.SetError(ErrNoFunc)
		return
	}
	if err := c.srv.Wstat(ctx, fid, *st); err != nil {
		r.SetError(err)
	}
}
