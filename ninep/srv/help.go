package srv

import "github.com/ninep/ninep/ninep"

// ReadBytes satisfies a Tread against a fixed in-memory byte slice src,
// copying as much of src[offset:] as fits in dst and returning the
// count copied.
func (f *Fid) ReadBytes(dst []byte, offset int64, src []byte) (int, error) {
	if offset < 0 || offset > int64(len(src)) {
		return 0, nil
	}
	n := copy(dst, src[offset:])
	return n, nil
}

// ReadString is ReadBytes for a string-backed file.
func (f *Fid) ReadString(dst []byte, offset int64, src string) (int, error) {
	if offset < 0 || offset > int64(len(src)) {
		return 0, nil
	}
	n := copy(dst, src[offset:])
	return n, nil
}

// ReadDir drives a Tread against a directory fid: gen(i) is called for
// successive directory indices starting from wherever the previous
// Tread on this fid left off (Tread against a directory must start at
// an offset the server itself produced, so the only state that matters
// is "how many entries have been sent", not the byte offset). gen
// returns the Stat-encodable entry and io.EOF once there are no more.
// ReadDir packs entries into dst until one would not fit, then returns.
func (f *Fid) ReadDir(dst []byte, offset int64, gen func(i int) (*ninep.Stat, error)) (int, error) {
	prevOffset, index := f.dirState()
	if offset != prevOffset {
		// A seek to a new offset restarts the listing from the start;
		// directory offsets are opaque, so the only seek Tread
		// actually needs to support is offset 0.
		index = 0
	}

	n := 0
	for {
		st, err := gen(int(index))
		if err != nil || st == nil {
			break
		}
		b, err := st.Bytes()
		if err != nil {
			break
		}
		if n+len(b) > len(dst) {
			break
		}
		copy(dst[n:], b)
		n += len(b)
		index++
	}
	f.setDirState(offset+int64(n), index)
	return n, nil
}
