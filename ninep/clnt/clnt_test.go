package clnt

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/srv"
	"github.com/ninep/ninep/ninep/synctab"
)

type pipeConn struct {
	io.Reader
	io.WriteCloser
}

func (p pipeConn) Close() error { return p.WriteCloser.Close() }

type ramFile struct {
	mu   sync.Mutex
	data []byte
}

func ramServer() *srv.Server {
	root := &struct{}{}
	files := map[string]*ramFile{}
	var mu sync.Mutex

	return &srv.Server{
		Attach: func(ctx context.Context, fid, afid *srv.Fid, uname, aname string) (ninep.Qid, error) {
			fid.SetAux(root)
			return ninep.Qid{Type: ninep.QTDIR}, nil
		},
		Walk: func(ctx context.Context, fid, newfid *srv.Fid, names []string) ([]ninep.Qid, error) {
			if len(names) == 0 {
				newfid.SetAux(fid.Aux())
				return nil, nil
			}
			name := names[0]
			mu.Lock()
			rf, ok := files[name]
			if !ok {
				rf = &ramFile{}
				files[name] = rf
			}
			mu.Unlock()
			newfid.SetAux(rf)
			return []ninep.Qid{{Path: 1}}, nil
		},
		Create: func(ctx context.Context, fid *srv.Fid, name string, perm ninep.Perm, mode uint8) (ninep.Qid, error) {
			mu.Lock()
			rf := &ramFile{}
			files[name] = rf
			mu.Unlock()
			fid.SetAux(rf)
			return ninep.Qid{Path: 1}, nil
		},
		Open: func(ctx context.Context, fid *srv.Fid, mode uint8) error { return nil },
		Read: func(ctx context.Context, fid *srv.Fid, data []byte, offset int64) (int, error) {
			rf := fid.Aux().(*ramFile)
			rf.mu.Lock()
			defer rf.mu.Unlock()
			return fid.ReadBytes(data, offset, rf.data)
		},
		Write: func(ctx context.Context, fid *srv.Fid, data []byte, offset int64) (int, error) {
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
		Stat: func(ctx context.Context, fid *srv.Fid) (ninep.Stat, error) {
			return ninep.Stat{Qid: fid.Qid(), Name: "scratch"}, nil
		},
		Clunk: func(fid *srv.Fid) {},
	}
}

func dialedPair(t *testing.T) (*Client, chan error) {
	t.Helper()
	sr, cw := io.Pipe()
	cr, sw := io.Pipe()
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ramServer(), pipeConn{sr, sw}) }()

	c, err := Dial(pipeConn{cr, cw}, synctab.Std)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	return c, done
}

func TestRoundTrip(t *testing.T) {
	c, _ := dialedPair(t)
	defer c.Close()

	root, err := c.Attach(nil, "glenda", "")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	fsys := &Fsys{root: root}

	fid, err := fsys.Create("", "scratch", 0o666, ninep.ORDWR)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := fid.Write([]byte("hello, 9p")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	buf := make([]byte, 64)
	n, err := fid.ReadAt(buf, 0)
	if err != nil {
		t.Fatalf("ReadAt: %v", err)
	}
	if string(buf[:n]) != "hello, 9p" {
		t.Fatalf("got %q", buf[:n])
	}
	if err := fid.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestConcurrentCallersShareTheMuxer(t *testing.T) {
	c, _ := dialedPair(t)
	defer c.Close()

	root, err := c.Attach(nil, "glenda", "")
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := root.Stat(); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Stat failed: %v", err)
	}
}
