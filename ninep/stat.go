package ninep

import "fmt"

// STATMAX is the largest encoded size of a single Stat, per the wire
// protocol's 16-bit stat length prefix.
const STATMAX = 65535

// Stat describes one directory entry, as carried in Twstat/Rstat and in
// directory-read payloads. It is a distinct wire structure from Fcall,
// with its own two-byte length prefix, so it gets its own packUnpack.
type Stat struct {
	Type   uint16
	Dev    uint32
	Qid    Qid
	Mode   Perm
	Atime  uint32
	Mtime  uint32
	Length uint64
	Name   string
	Uid    string
	Gid    string
	Muid   string
}

// nullStat is the Twstat sentinel meaning "leave this field unchanged".
var nullStat = Stat{
	Type:   ^uint16(0),
	Dev:    ^uint32(0),
	Qid:    Qid{Path: ^uint64(0), Vers: ^uint32(0), Type: ^uint8(0)},
	Mode:   ^Perm(0),
	Atime:  ^uint32(0),
	Mtime:  ^uint32(0),
	Length: ^uint64(0),
}

// IsNull reports whether every field of s is the Twstat "don't touch"
// sentinel.
func (s *Stat) IsNull() bool {
	return *s == nullStat
}

// Null sets s to the Twstat "don't touch any field" sentinel.
func (s *Stat) Null() {
	*s = nullStat
}

func (s Stat) String() string {
	return fmt.Sprintf("'%s' '%s' '%s' '%s' q %v m %v at %d mt %d l %d",
		s.Name, s.Uid, s.Gid, s.Muid, s.Qid, s.Mode, s.Atime, s.Mtime, s.Length)
}

// packUnpack threads s through m, including its own 2-byte length
// prefix, so a Stat nested in a Twstat or read-directory payload packs
// and unpacks identically to a standalone Stat.Bytes()/UnmarshalStat pair.
func (s *Stat) packUnpack(m *Msg) {
	start := m.pos
	var size uint16
	if m.Mode == Pack {
		m.skip(2) // filled in below
	} else {
		m.U16(&size)
	}
	m.U16(&s.Type)
	m.U32(&s.Dev)
	s.Qid.packUnpack(m)
	m.Perm(&s.Mode)
	m.U32(&s.Atime)
	m.U32(&s.Mtime)
	m.U64(&s.Length)
	m.Str(&s.Name)
	m.Str(&s.Uid)
	m.Str(&s.Gid)
	m.Str(&s.Muid)
	if m.Mode == Pack {
		n := uint16(m.pos - start - 2)
		putU16(m.buf[start:], n)
	}
}

func (m *Msg) Perm(p *Perm) {
	m.U32((*uint32)(p))
}

// Bytes encodes s the way it is carried inside a Twstat/Rstat's Stat
// field.
func (s *Stat) Bytes() ([]byte, error) {
	m := NewPackMsg()
	s.packUnpack(m)
	if m.overflow {
		return nil, ProtocolError("invalid stat")
	}
	return m.Bytes(), nil
}

// UnmarshalStat decodes a Twstat/Rstat Stat field.
func UnmarshalStat(b []byte) (*Stat, error) {
	s := new(Stat)
	m := NewUnpackMsg(b)
	s.packUnpack(m)
	if m.overflow {
		return nil, ProtocolError("invalid stat")
	}
	return s, nil
}
