package ninep

import "encoding/binary"

// Mode selects which direction a Msg's cursor methods move data: Pack
// writes the Go value into the buffer, Unpack reads the buffer into the
// Go value. Every packUnpack method is written once and does either,
// depending on the Msg's current Mode — this is the single traversal
// that both marshals and unmarshals a value.
type Mode int

const (
	Pack Mode = iota
	Unpack
)

// Msg is a cursor over a byte buffer shared by every Fcall/Stat/Qid
// packUnpack call in one marshal or unmarshal pass. Pack grows buf as
// needed; Unpack reads from buf and advances pos, never growing buf.
type Msg struct {
	buf  []byte
	pos  int
	Mode Mode

	// overflow is set once an Unpack read would run past the end of
	// buf, or a Fcall traversal meets a message type it does not know.
	// Pack does not check string or array lengths against their 16-bit
	// count fields. The flag is checked once at the end of a top-level
	// traversal rather than on every field access.
	overflow bool
}

// packUnpacker is implemented by every wire type with its own framing
// (Fcall, Stat, Qid): one method serves both pack and unpack.
type packUnpacker interface {
	packUnpack(m *Msg)
}

// NewPackMsg returns a Msg that marshals values appended to an initially
// empty buffer.
func NewPackMsg() *Msg {
	return &Msg{Mode: Pack}
}

// NewUnpackMsg returns a Msg that unmarshals values out of buf, which it
// does not copy: byte payloads unpacked from it (Data, Stat blobs) alias
// buf.
func NewUnpackMsg(buf []byte) *Msg {
	return &Msg{buf: buf, Mode: Unpack}
}

// Bytes returns the buffer accumulated by Pack calls.
func (m *Msg) Bytes() []byte { return m.buf }

// Preserve runs fn with m temporarily forced into mode, then restores
// m's previous mode — the Go equivalent of the original codec's
// RAII mode preserver, for a field that must be packed or unpacked
// regardless of the enclosing traversal's direction.
func (m *Msg) Preserve(mode Mode, fn func()) {
	old := m.Mode
	if old != mode {
		m.Mode = mode
		defer func() { m.Mode = old }()
	}
	fn()
}

// PackUnpack dispatches a single value through m according to m.Mode.
// It is the Go analogue of the templated Msg::packUnpack<T>: primitive
// widths are handled directly, anything else must implement
// packUnpacker.
func (m *Msg) PackUnpack(v any) {
	switch p := v.(type) {
	case *uint8:
		m.U8(p)
	case *uint16:
		m.U16(p)
	case *uint32:
		m.U32(p)
	case *uint64:
		m.U64(p)
	case packUnpacker:
		p.packUnpack(m)
	default:
		panic("ninep: PackUnpack: unsupported type")
	}
}

func (m *Msg) need(n int) bool {
	if m.Mode == Unpack {
		if m.pos+n > len(m.buf) {
			m.overflow = true
			return false
		}
	}
	return true
}

func (m *Msg) skip(n int) {
	if m.Mode == Pack {
		m.buf = append(m.buf, make([]byte, n)...)
	}
	m.pos += n
}

// U8 packs or unpacks a single byte.
func (m *Msg) U8(v *uint8) {
	if m.Mode == Pack {
		m.buf = append(m.buf, *v)
		m.pos++
		return
	}
	if !m.need(1) {
		return
	}
	*v = m.buf[m.pos]
	m.pos++
}

// U16 packs or unpacks a little-endian uint16.
func (m *Msg) U16(v *uint16) {
	if m.Mode == Pack {
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], *v)
		m.buf = append(m.buf, b[:]...)
		m.pos += 2
		return
	}
	if !m.need(2) {
		return
	}
	*v = binary.LittleEndian.Uint16(m.buf[m.pos:])
	m.pos += 2
}

// U32 packs or unpacks a little-endian uint32.
func (m *Msg) U32(v *uint32) {
	if m.Mode == Pack {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], *v)
		m.buf = append(m.buf, b[:]...)
		m.pos += 4
		return
	}
	if !m.need(4) {
		return
	}
	*v = binary.LittleEndian.Uint32(m.buf[m.pos:])
	m.pos += 4
}

// U64 packs or unpacks a little-endian uint64.
func (m *Msg) U64(v *uint64) {
	if m.Mode == Pack {
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], *v)
		m.buf = append(m.buf, b[:]...)
		m.pos += 8
		return
	}
	if !m.need(8) {
		return
	}
	*v = binary.LittleEndian.Uint64(m.buf[m.pos:])
	m.pos += 8
}

// Data packs or unpacks a 4-byte-length-prefixed byte string, used for
// Twrite/Rread payloads.
func (m *Msg) Data(v *[]byte) {
	n := uint32(len(*v))
	m.U32(&n)
	if m.Mode == Pack {
		m.buf = append(m.buf, (*v)...)
		m.pos += len(*v)
		return
	}
	if !m.need(int(n)) {
		return
	}
	*v = m.buf[m.pos : m.pos+int(n)]
	m.pos += int(n)
}

// Str packs or unpacks a 2-byte-length-prefixed UTF-8 string.
func (m *Msg) Str(v *string) {
	n := uint16(len(*v))
	m.U16(&n)
	if m.Mode == Pack {
		m.buf = append(m.buf, (*v)...)
		m.pos += len(*v)
		return
	}
	if !m.need(int(n)) {
		return
	}
	*v = string(m.buf[m.pos : m.pos+int(n)])
	m.pos += int(n)
}

// Strs packs or unpacks a count-prefixed array of strings, used for
// Twalk's Wname.
func (m *Msg) Strs(v *[]string) {
	n := uint16(len(*v))
	m.U16(&n)
	if m.Mode == Unpack {
		if !m.need(0) {
			return
		}
		*v = make([]string, n)
	}
	for i := range *v {
		m.Str(&(*v)[i])
	}
}

// Qids packs or unpacks a count-prefixed array of Qids, used for
// Rwalk's Wqid.
func (m *Msg) Qids(v *[]Qid) {
	n := uint16(len(*v))
	m.U16(&n)
	if m.Mode == Unpack {
		if !m.need(0) {
			return
		}
		*v = make([]Qid, n)
	}
	for i := range *v {
		(*v)[i].packUnpack(m)
	}
}

func putU16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

func putU32(b []byte, v uint32) {
	binary.LittleEndian.PutUint32(b, v)
}
