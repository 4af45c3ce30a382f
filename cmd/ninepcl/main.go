// Command ninepcl dials a ninepd-compatible server, attaches, and
// round-trips a write/read against its scratch file, the portable
// replacement for the teacher's Plan-9-only roundtrip example.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/ninep/ninep/ninep"
	"github.com/ninep/ninep/ninep/clnt"
	"github.com/ninep/ninep/ninep/synctab"
	"github.com/ninep/ninep/ninep/transport"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: ninepcl [-a addr] [-u user] message\n")
	flag.PrintDefaults()
	os.Exit(1)
}

var (
	addr = flag.String("a", "tcp!localhost!5640", "dial `addr` (scheme!host!port or unix!path)")
	user = flag.String("u", "glenda", "attach as `user`")
)

func main() {
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 {
		usage()
	}
	message := flag.Arg(0)

	conn, err := transport.Dial(*addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: dial: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	c, err := clnt.Dial(conn, synctab.Std)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	fsys, err := clnt.Mount(c, *user, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: attach: %v\n", err)
		os.Exit(1)
	}
	defer fsys.Unmount()

	fid, err := fsys.Open("scratch", ninep.OWRITE|ninep.OTRUNC)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: open: %v\n", err)
		os.Exit(1)
	}
	if _, err := fid.Write([]byte(message)); err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: write: %v\n", err)
		os.Exit(1)
	}
	fid.Close()

	rfid, err := fsys.Open("scratch", ninep.OREAD)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: open: %v\n", err)
		os.Exit(1)
	}
	defer rfid.Close()

	buf := make([]byte, len(message))
	n, err := rfid.ReadAt(buf, 0)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ninepcl: read: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s\n", buf[:n])
}
