package srv

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/ninep/ninep/ninep"
)

// ramFile is the per-fid storage for the tiny in-memory file tree the
// tests below serve: one root directory holding one file, "scratch".
type ramFile struct {
	mu   sync.Mutex
	data []byte
	dir  bool
	name string
	qid  ninep.Qid
}

func ramfsServer() (*Server, *ramFile) {
	root := &ramFile{dir: true, name: "/", qid: ninep.Qid{Path: 0, Type: ninep.QTDIR}}
	scratch := &ramFile{name: "scratch", qid: ninep.Qid{Path: 1}}

	srv := &Server{
		Attach: func(ctx context.Context, fid, afid *Fid, uname, aname string) (ninep.Qid, error) {
			fid.SetAux(root)
			return root.qid, nil
		},
		Walk: func(ctx context.Context, fid, newfid *Fid, names []string) ([]ninep.Qid, error) {
			cur := fid.Aux()
			qids := make([]ninep.Qid, 0, len(names))
			for _, name := range names {
				rf, ok := cur.(*ramFile)
				if !ok || !rf.dir || name != "scratch" {
					break
				}
				cur = scratch
				qids = append(qids, scratch.qid)
			}
			newfid.SetAux(cur)
			return qids, nil
		},
		Open: func(ctx context.Context, fid *Fid, mode uint8) error {
			return nil
		},
		Create: func(ctx context.Context, fid *Fid, name string, perm ninep.Perm, mode uint8) (ninep.Qid, error) {
			return ninep.Qid{}, ninep.ErrPerm
		},
		Read: func(ctx context.Context, fid *Fid, data []byte, offset int64) (int, error) {
			rf := fid.Aux().(*ramFile)
			rf.mu.Lock()
			defer rf.mu.Unlock()
			return fid.ReadBytes(data, offset, rf.data)
		},
		Write: func(ctx context.Context, fid *Fid, data []byte, offset int64) (int, error) {
			rf := fid.Aux().(*ramFile)
			rf.mu.Lock()
			defer rf.mu.Unlock()
			end := int(offset) + len(data)
			if len(rf.data) < end {
				grown := make([]byte, end)
				copy(grown, rf.data)
				rf.data = grown
			}
			copy(rf.data[offset:], data)
			return len(data), nil
		},
		Clunk: func(fid *Fid) {},
	}
	return srv, scratch
}

func runServer(t *testing.T, srv *Server) (client io.ReadWriteCloser, done chan error) {
	t.Helper()
	sr, cw := io.Pipe()
	cr, sw := io.Pipe()
	done = make(chan error, 1)
	go func() {
		done <- Serve(srv, pipeConn{sr, sw})
	}()
	return pipeConn{cr, cw}, done
}

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

func (p pipeConn) Close() error { return p.WriteCloser.Close() }

func rpc(t *testing.T, rw io.ReadWriteCloser, tx *ninep.Fcall) *ninep.Fcall {
	t.Helper()
	if err := ninep.WriteFcall(rw, tx); err != nil {
		t.Fatalf("write %v: %v", tx, err)
	}
	rx, err := ninep.ReadFcall(rw, 0)
	if err != nil {
		t.Fatalf("read reply to %v: %v", tx, err)
	}
	return rx
}

func TestAttachWalkOpenReadWrite(t *testing.T) {
	srv, _ := ramfsServer()
	c, done := runServer(t, srv)
	defer c.Close()

	rv := rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})
	if rv.Type != ninep.Rversion || rv.Version != "9P2000" {
		t.Fatalf("Tversion: got %v", rv)
	}

	ra := rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 1, Fid: 1, Afid: ninep.NOFID, Uname: "glenda", Aname: ""})
	if ra.Type != ninep.Rattach {
		t.Fatalf("Tattach: got %v", ra)
	}

	rw := rpc(t, c, &ninep.Fcall{Type: ninep.Twalk, Tag: 2, Fid: 1, Newfid: 2, Wname: []string{"scratch"}})
	if rw.Type != ninep.Rwalk || len(rw.Wqid) != 1 {
		t.Fatalf("Twalk: got %v", rw)
	}

	ro := rpc(t, c, &ninep.Fcall{Type: ninep.Topen, Tag: 3, Fid: 2, Mode: ninep.ORDWR})
	if ro.Type != ninep.Ropen {
		t.Fatalf("Topen: got %v", ro)
	}

	wwrite := rpc(t, c, &ninep.Fcall{Type: ninep.Twrite, Tag: 4, Fid: 2, Offset: 0, Data: []byte("hello")})
	if wwrite.Type != ninep.Rwrite || wwrite.Count != 5 {
		t.Fatalf("Twrite: got %v", wwrite)
	}

	rr := rpc(t, c, &ninep.Fcall{Type: ninep.Tread, Tag: 5, Fid: 2, Offset: 0, Count: 100})
	if rr.Type != ninep.Rread || string(rr.Data) != "hello" {
		t.Fatalf("Tread: got %v", rr)
	}

	rc := rpc(t, c, &ninep.Fcall{Type: ninep.Tclunk, Tag: 6, Fid: 2})
	if rc.Type != ninep.Rclunk {
		t.Fatalf("Tclunk: got %v", rc)
	}

	c.Close()
	if err := <-done; err == nil {
		t.Fatalf("expected Serve to return an error on client close")
	}
}

func TestUnknownFid(t *testing.T) {
	srv, _ := ramfsServer()
	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})

	ro := rpc(t, c, &ninep.Fcall{Type: ninep.Topen, Tag: 1, Fid: 99, Mode: ninep.OREAD})
	if ro.Type != ninep.Rerror || ro.Ename != "fid does not exist" {
		t.Fatalf("Topen on unknown fid: got %v", ro)
	}
}

func TestDuplicateFid(t *testing.T) {
	srv, _ := ramfsServer()
	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 1, Fid: 1, Afid: ninep.NOFID, Uname: "glenda"})

	ra2 := rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 2, Fid: 1, Afid: ninep.NOFID, Uname: "glenda"})
	if ra2.Type != ninep.Rerror || ra2.Ename != "fid in use" {
		t.Fatalf("duplicate attach fid: got %v", ra2)
	}
}

func TestWalkMissingName(t *testing.T) {
	srv, _ := ramfsServer()
	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 1, Fid: 1, Afid: ninep.NOFID, Uname: "glenda"})

	rw := rpc(t, c, &ninep.Fcall{Type: ninep.Twalk, Tag: 2, Fid: 1, Newfid: 2, Wname: []string{"nonesuch"}})
	if rw.Type != ninep.Rerror || rw.Ename != "file does not exist" {
		t.Fatalf("Twalk on missing name: got %v", rw)
	}
}

func TestOpenDirForWrite(t *testing.T) {
	srv, _ := ramfsServer()
	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 1, Fid: 1, Afid: ninep.NOFID, Uname: "glenda"})

	ro := rpc(t, c, &ninep.Fcall{Type: ninep.Topen, Tag: 2, Fid: 1, Mode: ninep.OWRITE})
	if ro.Type != ninep.Rerror || ro.Ename != "cannot perform operation on a directory" {
		t.Fatalf("Topen on dir for write: got %v", ro)
	}
}

func TestReadUnopenedFid(t *testing.T) {
	srv, _ := ramfsServer()
	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 1, Fid: 1, Afid: ninep.NOFID, Uname: "glenda"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Twalk, Tag: 2, Fid: 1, Newfid: 2, Wname: []string{"scratch"}})

	rr := rpc(t, c, &ninep.Fcall{Type: ninep.Tread, Tag: 3, Fid: 2, Offset: 0, Count: 100})
	if rr.Type != ninep.Rerror || rr.Ename != "file not open for reading" {
		t.Fatalf("Tread on unopened fid: got %v", rr)
	}
}

// TestFlushInterruptsStalledRequest stalls a Tread forever (its handler
// never observes ctx.Done or returns on its own) and checks that Tflush
// still forces the stalled request to answer "interrupted", and answers
// Rflush itself only afterward.
func TestFlushInterruptsStalledRequest(t *testing.T) {
	block := make(chan struct{})
	srv, _ := ramfsServer()
	srv.Read = func(ctx context.Context, fid *Fid, data []byte, offset int64) (int, error) {
		close(block)
		select {} // never returns; only a forced Tflush can end this request
	}
	srv.Flush = func(ctx context.Context, old *Req) error { return nil }

	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Tattach, Tag: 1, Fid: 1, Afid: ninep.NOFID, Uname: "glenda"})
	rpc(t, c, &ninep.Fcall{Type: ninep.Twalk, Tag: 2, Fid: 1, Newfid: 2, Wname: []string{"scratch"}})
	rpc(t, c, &ninep.Fcall{Type: ninep.Topen, Tag: 3, Fid: 2, Mode: ninep.OREAD})

	if err := ninep.WriteFcall(c, &ninep.Fcall{Type: ninep.Tread, Tag: 4, Fid: 2, Offset: 0, Count: 100}); err != nil {
		t.Fatalf("write Tread: %v", err)
	}
	<-block

	if err := ninep.WriteFcall(c, &ninep.Fcall{Type: ninep.Tflush, Tag: 5, Oldtag: 4}); err != nil {
		t.Fatalf("write Tflush: %v", err)
	}

	first, err := ninep.ReadFcall(c, 0)
	if err != nil {
		t.Fatalf("read first reply: %v", err)
	}
	if first.Tag != 4 || first.Type != ninep.Rerror || first.Ename != "interrupted" {
		t.Fatalf("expected interrupted Rerror for the stalled read first, got %v", first)
	}

	second, err := ninep.ReadFcall(c, 0)
	if err != nil {
		t.Fatalf("read second reply: %v", err)
	}
	if second.Tag != 5 || second.Type != ninep.Rflush {
		t.Fatalf("expected Rflush for the flush request second, got %v", second)
	}
}

func TestFlushUnknownTag(t *testing.T) {
	srv, _ := ramfsServer()
	srv.Flush = func(ctx context.Context, old *Req) error { return nil }
	c, _ := runServer(t, srv)
	defer c.Close()

	rpc(t, c, &ninep.Fcall{Type: ninep.Tversion, Tag: ninep.NOTAG, Msize: 8192, Version: "9P2000"})

	rf := rpc(t, c, &ninep.Fcall{Type: ninep.Tflush, Tag: 1, Oldtag: 42})
	if rf.Type != ninep.Rerror || rf.Ename != "tag does not exist" {
		t.Fatalf("Tflush on unknown oldtag: got %v", rf)
	}
}
