package ninep

import "fmt"

// Fcall is the tagged union of every 9P2000 message. Only the fields
// relevant to Type are meaningful; packUnpack below is the single
// traversal that both marshals and unmarshals it, dispatching on Type
// exactly once per call.
type Fcall struct {
	Type  uint8
	Fid   uint32
	Tag   uint16
	Msize uint32
	Version string // Tversion, Rversion

	Oldtag uint16 // Tflush

	Ename string // Rerror

	Qid    Qid    // Rattach, Ropen, Rcreate
	Iounit uint32 // Ropen, Rcreate

	Aqid Qid // Rauth

	Afid  uint32 // Tauth, Tattach
	Uname string // Tauth, Tattach
	Aname string // Tauth, Tattach

	Perm Perm   // Tcreate
	Name string // Tcreate
	Mode uint8  // Tcreate, Topen

	Newfid uint32   // Twalk
	Wname  []string // Twalk
	Wqid   []Qid    // Rwalk

	Offset uint64 // Tread, Twrite
	Count  uint32 // Tread, Rwrite
	Data   []byte // Twrite, Rread

	Stat []byte // Twstat, Rstat
}

// packUnpack threads f's header and the fields relevant to f.Type
// through m, in the direction m.Mode selects. This single method
// replaces the original engine's separate marshal/unmarshal functions:
// the field list for a given Type is written once and used for both
// directions.
func (f *Fcall) packUnpack(m *Msg) {
	m.U8(&f.Type)
	m.U16(&f.Tag)

	switch f.Type {
	case Tversion, Rversion:
		m.U32(&f.Msize)
		m.Str(&f.Version)

	case Tauth:
		m.U32(&f.Afid)
		m.Str(&f.Uname)
		m.Str(&f.Aname)
	case Rauth:
		f.Aqid.packUnpack(m)

	case Tattach:
		m.U32(&f.Fid)
		m.U32(&f.Afid)
		m.Str(&f.Uname)
		m.Str(&f.Aname)
	case Rattach:
		f.Qid.packUnpack(m)

	case Rerror:
		m.Str(&f.Ename)

	case Tflush:
		m.U16(&f.Oldtag)
	case Rflush:
		// no body

	case Twalk:
		m.U32(&f.Fid)
		m.U32(&f.Newfid)
		m.Strs(&f.Wname)
	case Rwalk:
		m.Qids(&f.Wqid)

	case Topen:
		m.U32(&f.Fid)
		m.U8(&f.Mode)
	case Ropen, Rcreate:
		f.Qid.packUnpack(m)
		m.U32(&f.Iounit)

	case Tcreate:
		m.U32(&f.Fid)
		m.Str(&f.Name)
		m.Perm(&f.Perm)
		m.U8(&f.Mode)

	case Tread:
		m.U32(&f.Fid)
		m.U64(&f.Offset)
		m.U32(&f.Count)
	case Rread:
		m.Data(&f.Data)

	case Twrite:
		m.U32(&f.Fid)
		m.U64(&f.Offset)
		m.Data(&f.Data)
	case Rwrite:
		m.U32(&f.Count)

	case Tclunk, Tremove, Tstat:
		m.U32(&f.Fid)
	case Rclunk, Rremove:
		// no body
	case Rstat:
		statBytes(m, &f.Stat)

	case Twstat:
		m.U32(&f.Fid)
		statBytes(m, &f.Stat)
	case Rwstat:
		// no body

	default:
		m.overflow = true
	}
}

// statBytes packs or unpacks a pre-encoded Stat blob (Twstat/Rstat carry
// the 2-byte-length-prefixed Stat as an opaque counted string whose
// length prefix is itself prefixed by another 2-byte count on the wire,
// matching the original protocol's doubly-counted stat field).
func statBytes(m *Msg, b *[]byte) {
	var n uint16
	if m.Mode == Pack {
		n = uint16(len(*b))
	}
	m.U16(&n)
	if m.Mode == Pack {
		m.buf = append(m.buf, (*b)...)
		m.pos += len(*b)
		return
	}
	if !m.need(int(n)) {
		return
	}
	*b = m.buf[m.pos : m.pos+int(n)]
	m.pos += int(n)
}

// fcall2msg marshals f into a fresh, length-prefixed wire message: the
// 4-byte size field, then f's header and type-specific body. It returns
// an error if f.Type is not recognized.
func fcall2msg(f *Fcall) ([]byte, error) {
	m := NewPackMsg()
	m.skip(4) // size, filled in below
	f.packUnpack(m)
	if m.overflow {
		return nil, ProtocolError("invalid message type")
	}
	putU32(m.buf, uint32(len(m.buf)))
	return m.buf, nil
}

// msg2fcall unmarshals one length-prefixed wire message (with the
// 4-byte size field already consumed by the caller, via ReadFcall) into
// f. It returns ProtocolError if the buffer is malformed or f.Type is
// not recognized.
func msg2fcall(buf []byte, f *Fcall) error {
	m := NewUnpackMsg(buf)
	f.packUnpack(m)
	if m.overflow {
		return ProtocolError("malformed message")
	}
	return nil
}

func (f *Fcall) String() string {
	switch f.Type {
	case Tversion:
		return fmt.Sprintf("Tversion tag %d msize %d version %q", f.Tag, f.Msize, f.Version)
	case Rversion:
		return fmt.Sprintf("Rversion tag %d msize %d version %q", f.Tag, f.Msize, f.Version)
	case Tauth:
		return fmt.Sprintf("Tauth tag %d afid %d uname %q aname %q", f.Tag, f.Afid, f.Uname, f.Aname)
	case Rauth:
		return fmt.Sprintf("Rauth tag %d aqid %v", f.Tag, f.Aqid)
	case Tattach:
		return fmt.Sprintf("Tattach tag %d fid %d afid %d uname %q aname %q", f.Tag, f.Fid, f.Afid, f.Uname, f.Aname)
	case Rattach:
		return fmt.Sprintf("Rattach tag %d qid %v", f.Tag, f.Qid)
	case Rerror:
		return fmt.Sprintf("Rerror tag %d ename %q", f.Tag, f.Ename)
	case Tflush:
		return fmt.Sprintf("Tflush tag %d oldtag %d", f.Tag, f.Oldtag)
	case Rflush:
		return fmt.Sprintf("Rflush tag %d", f.Tag)
	case Twalk:
		return fmt.Sprintf("Twalk tag %d fid %d newfid %d wname %v", f.Tag, f.Fid, f.Newfid, f.Wname)
	case Rwalk:
		return fmt.Sprintf("Rwalk tag %d wqid %v", f.Tag, f.Wqid)
	case Topen:
		return fmt.Sprintf("Topen tag %d fid %d mode %d", f.Tag, f.Fid, f.Mode)
	case Ropen:
		return fmt.Sprintf("Ropen tag %d qid %v iounit %d", f.Tag, f.Qid, f.Iounit)
	case Tcreate:
		return fmt.Sprintf("Tcreate tag %d fid %d name %q perm %v mode %d", f.Tag, f.Fid, f.Name, f.Perm, f.Mode)
	case Rcreate:
		return fmt.Sprintf("Rcreate tag %d qid %v iounit %d", f.Tag, f.Qid, f.Iounit)
	case Tread:
		return fmt.Sprintf("Tread tag %d fid %d offset %d count %d", f.Tag, f.Fid, f.Offset, f.Count)
	case Rread:
		return fmt.Sprintf("Rread tag %d count %d", f.Tag, len(f.Data))
	case Twrite:
		return fmt.Sprintf("Twrite tag %d fid %d offset %d count %d", f.Tag, f.Fid, f.Offset, len(f.Data))
	case Rwrite:
		return fmt.Sprintf("Rwrite tag %d count %d", f.Tag, f.Count)
	case Tclunk:
		return fmt.Sprintf("Tclunk tag %d fid %d", f.Tag, f.Fid)
	case Rclunk:
		return fmt.Sprintf("Rclunk tag %d", f.Tag)
	case Tremove:
		return fmt.Sprintf("Tremove tag %d fid %d", f.Tag, f.Fid)
	case Rremove:
		return fmt.Sprintf("Rremove tag %d", f.Tag)
	case Tstat:
		return fmt.Sprintf("Tstat tag %d fid %d", f.Tag, f.Fid)
	case Rstat:
		return fmt.Sprintf("Rstat tag %d", f.Tag)
	case Twstat:
		return fmt.Sprintf("Twstat tag %d fid %d", f.Tag, f.Fid)
	case Rwstat:
		return fmt.Sprintf("Rwstat tag %d", f.Tag)
	default:
		return fmt.Sprintf("unknown type %d tag %d", f.Type, f.Tag)
	}
}
