package clnt

import (
	"fmt"
	"io"
	"sync"

	"github.com/ninep/ninep/ninep"
)

// Fid is a client-side handle on a file: a fid number, the tree it
// belongs to, and (for I/O) an offset cursor serialized by mu, the way
// the original engine's CFid serializes pread/pwrite through a single
// per-fid lock.
type Fid struct {
	c   *Client
	num uint32

	mu     sync.Mutex
	qid    ninep.Qid
	mode   uint8
	opened bool
	offset int64
}

// Qid is this fid's most recently known identity.
func (f *Fid) Qid() ninep.Qid {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.qid
}

// Walk resolves path (slash-separated, "." and empty elements ignored)
// relative to f and returns a new Fid for it, walking at most
// ninep.MAXWELEM elements per Twalk the way the wire format requires.
func (f *Fid) Walk(path string) (*Fid, error) {
	names := splitPath(path)
	fid := f.c.fids.get()
	newfid := &Fid{c: f.c, num: fid, qid: f.Qid()}

	from := f.num
	for i := 0; i == 0 || len(names) > 0; i++ {
		chunk := names
		if len(chunk) > ninep.MAXWELEM {
			chunk = chunk[:ninep.MAXWELEM]
		}
		rx, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Twalk, Fid: from, Newfid: fid, Wname: chunk})
		if err != nil {
			f.c.fids.put(fid)
			return nil, err
		}
		if len(rx.Wqid) != len(chunk) {
			f.c.fids.put(fid)
			return nil, ninep.ErrNotFound
		}
		if len(rx.Wqid) > 0 {
			newfid.qid = rx.Wqid[len(rx.Wqid)-1]
		}
		names = names[len(chunk):]
		from = fid // further chunks step newfid from itself
	}
	return newfid, nil
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			elem := path[start:i]
			start = i + 1
			if elem != "" && elem != "." {
				out = append(out, elem)
			}
		}
	}
	return out
}

// Open opens f with the given mode.
func (f *Fid) Open(mode uint8) error {
	rx, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Topen, Fid: f.num, Mode: mode})
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.qid = rx.Qid
	f.mode = mode
	f.opened = true
	f.offset = 0
	f.mu.Unlock()
	return nil
}

// Create creates name in the directory f, opens it with mode, and
// rebinds f to the new file — matching the wire protocol, where Tcreate
// both creates and opens in one call and the fid it's sent on becomes
// the new file's fid.
func (f *Fid) Create(name string, perm ninep.Perm, mode uint8) error {
	rx, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Tcreate, Fid: f.num, Name: name, Perm: perm, Mode: mode})
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.qid = rx.Qid
	f.mode = mode
	f.opened = true
	f.offset = 0
	f.mu.Unlock()
	return nil
}

// ReadAt reads len(p) bytes starting at offset, clamped to the
// connection's negotiated msize, the way a single Tread must be.
func (f *Fid) ReadAt(p []byte, offset int64) (int, error) {
	max := f.c.Msize() - ninep.IOHDRSZ
	if uint32(len(p)) > max {
		p = p[:max]
	}
	rx, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Tread, Fid: f.num, Offset: uint64(offset), Count: uint32(len(p))})
	if err != nil {
		return 0, err
	}
	n := copy(p, rx.Data)
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Read reads from f's current offset and advances it.
func (f *Fid) Read(p []byte) (int, error) {
	f.mu.Lock()
	off := f.offset
	f.mu.Unlock()
	n, err := f.ReadAt(p, off)
	f.mu.Lock()
	f.offset += int64(n)
	f.mu.Unlock()
	return n, err
}

// WriteAt writes p at offset, clamped to the connection's negotiated
// msize, chunking longer writes into multiple Twrites.
func (f *Fid) WriteAt(p []byte, offset int64) (int, error) {
	max := int(f.c.Msize() - ninep.IOHDRSZ)
	total := 0
	for len(p) > 0 {
		chunk := p
		if len(chunk) > max {
			chunk = chunk[:max]
		}
		rx, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Twrite, Fid: f.num, Offset: uint64(offset), Data: chunk})
		if err != nil {
			return total, err
		}
		if int(rx.Count) == 0 {
			return total, fmt.Errorf("ninep/clnt: short write")
		}
		total += int(rx.Count)
		offset += int64(rx.Count)
		p = p[rx.Count:]
	}
	return total, nil
}

// Write writes to f's current offset and advances it.
func (f *Fid) Write(p []byte) (int, error) {
	f.mu.Lock()
	off := f.offset
	f.mu.Unlock()
	n, err := f.WriteAt(p, off)
	f.mu.Lock()
	f.offset += int64(n)
	f.mu.Unlock()
	return n, err
}

// Stat fetches f's current Stat.
func (f *Fid) Stat() (*ninep.Stat, error) {
	rx, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Tstat, Fid: f.num})
	if err != nil {
		return nil, err
	}
	return ninep.UnmarshalStat(rx.Stat)
}

// Wstat applies st to f; fields left at their null-sentinel value are
// unchanged.
func (f *Fid) Wstat(st *ninep.Stat) error {
	b, err := st.Bytes()
	if err != nil {
		return err
	}
	_, err = f.c.Rpc(&ninep.Fcall{Type: ninep.Twstat, Fid: f.num, Stat: b})
	return err
}

// Remove removes f's file and clunks f regardless of whether the remove
// succeeded, matching Tremove's wire semantics.
func (f *Fid) Remove() error {
	_, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Tremove, Fid: f.num})
	f.c.fids.put(f.num)
	return err
}

// Close clunks f.
func (f *Fid) Close() error {
	_, err := f.c.Rpc(&ninep.Fcall{Type: ninep.Tclunk, Fid: f.num})
	f.c.fids.put(f.num)
	return err
}
