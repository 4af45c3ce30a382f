// Package ninep implements the wire format of the 9P2000 file protocol:
// message framing, the Fcall tagged union, Qid and Stat encoding, and the
// well-known error strings servers and clients exchange.
package ninep

// Message types. Requests are even, the matching reply is the next odd
// value (Rfoo = Tfoo+1), mirroring the wire encoding.
const (
	Tversion = 100 + iota
	Rversion
	Tauth
	Rauth
	Tattach
	Rattach
	Terror // illegal on the wire; never sent
	Rerror
	Tflush
	Rflush
	Twalk
	Rwalk
	Topen
	Ropen
	Tcreate
	Rcreate
	Tread
	Rread
	Twrite
	Rwrite
	Tclunk
	Rclunk
	Tremove
	Rremove
	Tstat
	Rstat
	Twstat
	Rwstat
	Tmax
)

// Fixed-size field widths and protocol-level sentinels.
const (
	// IOHDRSZ is the per-message overhead that must be subtracted from
	// msize to get the maximum data payload of a Tread/Twrite.
	IOHDRSZ = 24

	// MAXWELEM is the largest number of path elements a single Twalk
	// may carry.
	MAXWELEM = 16

	// NOTAG is the distinguished tag used on a Tversion, which precedes
	// tag negotiation.
	NOTAG = ^uint16(0)

	// NOFID is the distinguished fid meaning "no authentication
	// required", used as Tattach's afid.
	NOFID = ^uint32(0)

	// DefaultVersion is the version string this package speaks.
	DefaultVersion = "9P2000"
)

// Open mode bits (Fcall.Mode on Topen/Tcreate).
const (
	OREAD   = 0x0
	OWRITE  = 0x1
	ORDWR   = 0x2
	OEXEC   = 0x3
	OTRUNC  = 0x10
	OCEXEC  = 0x20
	ORCLOSE = 0x40
	OEXCL   = 0x1000
)

// Qid.Type bits, mirrored in the high bits of Perm for directories and
// other special files.
const (
	QTDIR    = 0x80
	QTAPPEND = 0x40
	QTEXCL   = 0x20
	QTMOUNT  = 0x10
	QTAUTH   = 0x08
	QTTMP    = 0x04
	QTSYMLNK = 0x02
	QTLINK   = 0x01
	QTFILE   = 0x00
)

// Perm bits (Stat.Mode / Fcall.Perm), Plan 9 style.
const (
	DMDIR    = 0x80000000
	DMAPPEND = 0x40000000
	DMEXCL   = 0x20000000
	DMMOUNT  = 0x10000000
	DMAUTH   = 0x08000000
	DMTMP    = 0x04000000
	DMREAD   = 0x4
	DMWRITE  = 0x2
	DMEXEC   = 0x1
)
