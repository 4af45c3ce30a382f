package srv

import "github.com/ninep/ninep/ninep"

// WalkByName is a building block for a Server.Walk implementation over
// any tree that can look up one path element at a time: it repeatedly
// calls step(aux, name) starting from start, stopping at the first name
// step can't resolve (matching 9P's rule that a walk succeeds partway
// even if it can't reach the end, and only reports failure if it
// resolves nothing at all). It does not stop at non-directory qids
// itself; step is expected to report an error for "foo/bar" where foo
// is not a directory, as any other lookup failure.
//
// aux is evolved alongside qid: step returns the next aux (handler-
// defined: an inode pointer, a map key, whatever identifies "the file
// walked to so far") so the caller can hand the final aux to
// newfid.SetAux once walking stops.
func WalkByName(start ninep.Qid, startAux any, names []string, step func(aux any, name string) (ninep.Qid, any, error)) ([]ninep.Qid, any, error) {
	qid := start
	aux := startAux
	qids := make([]ninep.Qid, 0, len(names))
	for _, name := range names {
		nq, naux, err := step(aux, name)
		if err != nil {
			if len(qids) == 0 {
				return nil, startAux, err
			}
			break
		}
		qid = nq
		aux = naux
		qids = append(qids, qid)
	}
	return qids, aux, nil
}
