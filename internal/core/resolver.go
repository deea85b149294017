package core

import "viewsync/pkg/vsp"

// Resolution is the outcome of reconciling the local replica against the
// authoritative snapshot. Exactly one of PushLocal/AdoptRemote is set when
// the versions differ; neither is set when they are equal.
type Resolution struct {
	State       vsp.SessionState
	SeekTo      float64
	SeekNeeded  bool
	PushLocal   bool
	AdoptRemote bool
}

// Resolve compares the local and remote version counters and decides which
// state wins. It is pure: the caller applies the resulting actions (seek,
// cache overwrite, push to server, speed/volume application).
func Resolve(local, remote vsp.SessionState) Resolution {
	switch {
	case local.Version > remote.Version:
		res := Resolution{State: local, PushLocal: true}
		if local.CurrentTime > 0 {
			res.SeekNeeded = true
			res.SeekTo = local.CurrentTime
		}
		return res
	case remote.Version > local.Version:
		res := Resolution{State: remote, AdoptRemote: true}
		if remote.CurrentTime > 0 {
			res.SeekNeeded = true
			res.SeekTo = remote.CurrentTime
		}
		return res
	default:
		// Equal versions carry no data conflict; the media element still
		// starts at zero and may need aligning to the retained position.
		res := Resolution{State: local}
		if local.CurrentTime > 0 {
			res.SeekNeeded = true
			res.SeekTo = local.CurrentTime
		}
		return res
	}
}
