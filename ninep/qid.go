package ninep

import "fmt"

// Qid is the server's compact, opaque identity for a file: a client
// should treat two Qids as the same file if and only if they are equal.
type Qid struct {
	Path uint64
	Vers uint32
	Type uint8
}

func (q Qid) String() string {
	s := fmt.Sprintf("(%.16x %d ", q.Path, q.Vers)
	if q.Type&QTDIR != 0 {
		s += "d"
	}
	if q.Type&QTAPPEND != 0 {
		s += "a"
	}
	if q.Type&QTEXCL != 0 {
		s += "l"
	}
	if q.Type&QTAUTH != 0 {
		s += "A"
	}
	return s + ")"
}

// packUnpack threads Qid through m in whichever direction m.Mode selects.
func (q *Qid) packUnpack(m *Msg) {
	m.U8(&q.Type)
	m.U32(&q.Vers)
	m.U64(&q.Path)
}

// Perm is a file's permission and type bits, Plan 9 style: the top bits
// carry the Qid.Type-equivalent file type, the low nine bits carry Unix
// rwxrwxrwx permissions.
type Perm uint32

func (p Perm) String() string {
	var b [13]byte
	for i := range b {
		b[i] = '-'
	}
	set := func(i int, c byte, bit Perm) {
		if p&bit != 0 {
			b[i] = c
		}
	}
	set(0, 'd', DMDIR)
	set(1, 'a', DMAPPEND)
	set(2, 'l', DMEXCL)
	set(3, 'A', DMAUTH)
	bits := "rwxrwxrwx"
	for i := 0; i < 9; i++ {
		if p&(1<<(8-i)) != 0 {
			b[4+i] = bits[i]
		}
	}
	return string(b[:])
}
