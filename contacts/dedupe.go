package contacts

// DeDupeByID returns a new slice containing only the first occurrence of
// each record as identified by its remote identifier.
func DeDupeByID[T interface{ GetID() string }](in []T) []T {
	encountered := make(map[string]struct{})
	out := make([]T, 0, len(in))

	for _, v := range in {
		id := v.GetID()
		if _, ok := encountered[id]; ok {
			continue
		}
		encountered[id] = struct{}{}
		out = append(out, v)
	}

	return out
}

// Tracker is a run-scoped set of remote identifiers already handed to the
// writer. A traversal spanning many minutes can have remote data mutate
// underneath it, causing the same record to surface on two pages; the
// tracker keeps counters and log volume honest when that happens.
type Tracker struct {
	seen map[string]struct{}
}

func NewTracker() *Tracker {
	return &Tracker{seen: make(map[string]struct{})}
}

// Seen reports whether id was already tracked, and tracks it if not.
func (t *Tracker) Seen(id string) bool {
	if _, ok := t.seen[id]; ok {
		return true
	}

	t.seen[id] = struct{}{}

	return false
}

// Len returns the number of distinct identifiers tracked so far.
func (t *Tracker) Len() int {
	return len(t.seen)
}
