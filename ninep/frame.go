package ninep

import (
	"encoding/binary"
	"io"
)

// ReadFcall reads one length-prefixed 9P message from r and unmarshals
// it. msize bounds the accepted message size; pass 0 to accept anything
// the reader offers.
func ReadFcall(r io.Reader, msize uint32) (*Fcall, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n < 4 {
		return nil, ProtocolError("invalid message length")
	}
	if msize != 0 && n > msize {
		return nil, ProtocolError("message exceeds msize")
	}

	buf := make([]byte, n)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[4:]); err != nil {
		return nil, err
	}

	f := new(Fcall)
	if err := msg2fcall(buf[4:], f); err != nil {
		return nil, err
	}
	return f, nil
}

// WriteFcall marshals f and writes it to w as one length-prefixed
// message.
func WriteFcall(w io.Writer, f *Fcall) error {
	b, err := fcall2msg(f)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
