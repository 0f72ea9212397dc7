package official

import (
	"github.com/Masterminds/semver/v3"
	registryv0 "github.com/modelcontextprotocol/registry/pkg/api/v0"
)

// Dedupe keeps one entry per server name, in first-seen order. The entry
// flagged latest wins, then the most recently updated, then the highest
// semantic version. Entries without a name are dropped.
func Dedupe(in []registryv0.ServerResponse) []registryv0.ServerResponse {
	index := make(map[string]int, len(in))
	out := make([]registryv0.ServerResponse, 0, len(in))
	for _, entry := range in {
		name := entry.Server.Name
		if name == "" {
			continue
		}
		i, ok := index[name]
		if !ok {
			index[name] = len(out)
			out = append(out, entry)
			continue
		}
		if preferred(entry, out[i]) {
			out[i] = entry
		}
	}
	return out
}

// preferred reports whether candidate should replace current.
func preferred(candidate, current registryv0.ServerResponse) bool {
	cm, em := candidate.Meta.Official, current.Meta.Official
	cLatest := cm != nil && cm.IsLatest
	eLatest := em != nil && em.IsLatest
	if cLatest != eLatest {
		return cLatest
	}

	if cm != nil && em != nil && !cm.UpdatedAt.Equal(em.UpdatedAt) {
		return cm.UpdatedAt.After(em.UpdatedAt)
	}

	cv, cerr := semver.NewVersion(candidate.Server.Version)
	ev, eerr := semver.NewVersion(current.Server.Version)
	switch {
	case cerr != nil:
		return false
	case eerr != nil:
		return true
	default:
		return cv.GreaterThan(ev)
	}
}
