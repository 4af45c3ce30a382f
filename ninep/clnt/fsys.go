package clnt

import "github.com/ninep/ninep/ninep"

// Fsys is a convenience wrapper over a Client's attached root fid,
// offering whole-path operations the way a mounted tree would: each
// call walks from the root to a new fid. Stat clunks that fid before
// returning and Remove removes it; Open and Create return it, opened,
// to the caller, who closes it.
type Fsys struct {
	root *Fid
}

// Mount attaches to aname as uname and returns an Fsys rooted there.
func Mount(c *Client, uname, aname string) (*Fsys, error) {
	root, err := c.Attach(nil, uname, aname)
	if err != nil {
		return nil, err
	}
	return &Fsys{root: root}, nil
}

// Unmount clunks the root fid.
func (fs *Fsys) Unmount() error {
	return fs.root.Close()
}

// Open walks to path and opens it with mode.
func (fs *Fsys) Open(path string, mode uint8) (*Fid, error) {
	fid, err := fs.root.Walk(path)
	if err != nil {
		return nil, err
	}
	if err := fid.Open(mode); err != nil {
		fid.Close()
		return nil, err
	}
	return fid, nil
}

// Create walks to dir and creates name in it, opened with mode.
func (fs *Fsys) Create(dir, name string, perm ninep.Perm, mode uint8) (*Fid, error) {
	fid, err := fs.root.Walk(dir)
	if err != nil {
		return nil, err
	}
	if err := fid.Create(name, perm, mode); err != nil {
		fid.Close()
		return nil, err
	}
	return fid, nil
}

// Stat walks to path and stats it, closing the transient fid.
func (fs *Fsys) Stat(path string) (*ninep.Stat, error) {
	fid, err := fs.root.Walk(path)
	if err != nil {
		return nil, err
	}
	defer fid.Close()
	return fid.Stat()
}

// Remove walks to path and removes it.
func (fs *Fsys) Remove(path string) error {
	fid, err := fs.root.Walk(path)
	if err != nil {
		return err
	}
	return fid.Remove()
}
