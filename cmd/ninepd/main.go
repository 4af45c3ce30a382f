// Command ninepd serves a single in-memory read/write scratch file over
// tcp or unix, the portable replacement for the teacher's Plan-9-only
// ramfs example.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/srv"
	"github.com/ninep/ninep/ninep/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ninepd [-a addr] [-v]\n")
	flag.PrintDefaults()
	os.Exit(1)
}

var (
	addr    = flag.String("a", "tcp!*!5640", "announce on `addr` (scheme!host!port or unix!path)")
	verbose = flag.Bool("v", false, "print protocol trace on standard error")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 0 {
		usage()
	}

	log, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepd: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	l, err := transport.Announce(*addr)
	if err != nil {
		log.Fatal("announce failed", zap.Error(err))
	}
	log.Info("listening", zap.String("addr", *addr))

	server := scratchServer(log)
	if *verbose {
		server.Trace = os.Stderr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// g supervises the accept loop and every accepted connection's
	// serve goroutine together, so a listener error or a signal brings
	// the whole fleet down instead of leaking goroutines.
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		return l.Close()
	})
	g.Go(func() error {
		for {
			conn, err := l.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			g.Go(func() error {
				// Closing conn on cancellation ends its Serve loop.
				stop := context.AfterFunc(ctx, func() { conn.Close() })
				defer stop()
				return serveOne(server, conn, log)
			})
		}
	})

	if err := g.Wait(); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func serveOne(server *srv.Server, conn net.Conn, log *zap.Logger) error {
	defer conn.Close()
	if err := srv.Serve(server, conn); err != nil {
		log.Info("connection ended", zap.Error(err))
	}
	return nil
}

// scratchFile is the storage for the one file this server exposes; the
// single instance is saved in the Aux field of every Fid walked to it,
// the way the teacher's ramFile is.
type scratchFile struct {
	mu   sync.Mutex
	data []byte
}

func scratchServer(log *zap.Logger) *srv.Server {
	root := &struct{}{}
	scratch := &scratchFile{}

	return &srv.Server{
		Log: log,
		Attach: func(ctx context.Context, fid, afid *srv.Fid, uname, aname string) (ninep.Qid, error) {
			fid.SetAux(root)
			return ninep.Qid{Type: ninep.QTDIR}, nil
		},
		Walk: func(ctx context.Context, fid, newfid *srv.Fid, names []string) ([]ninep.Qid, error) {
			if len(names) == 0 {
				newfid.SetAux(fid.Aux())
				return nil, nil
			}
			if len(names) != 1 || names[0] != "scratch" {
				return nil, ninep.ErrNotFound
			}
			newfid.SetAux(scratch)
			return []ninep.Qid{{Path: 1}}, nil
		},
		Open: func(ctx context.Context, fid *srv.Fid, mode uint8) error {
			if mode&ninep.OTRUNC != 0 {
				if rf, ok := fid.Aux().(*scratchFile); ok {
					rf.mu.Lock()
					rf.data = nil
					rf.mu.Unlock()
				}
			}
			return nil
		},
		Read: func(ctx context.Context, fid *srv.Fid, data []byte, offset int64) (int, error) {
			rf, ok := fid.Aux().(*scratchFile)
			if !ok {
				return 0, ninep.ErrIsDir
			}
			rf.mu.Lock()
			defer rf.mu.Unlock()
			return fid.ReadBytes(data, offset, rf.data)
		},
		Write: func(ctx context.Context, fid *srv.Fid, data []byte, offset int64) (int, error) {
			rf, ok := fid.Aux().(*scratchFile)
			if !ok {
				return 0, ninep.ErrIsDir
			}
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
			name := "/"
			perm := ninep.Perm(ninep.DMDIR | 0555)
			if _, ok := fid.Aux().(*scratchFile); ok {
				name = "scratch"
				perm = 0666
			}
			return ninep.Stat{Qid: fid.Qid(), Name: name, Mode: perm}, nil
		},
		Clunk: func(fid *srv.Fid) {},
	}
}
