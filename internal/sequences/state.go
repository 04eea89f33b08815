package sequences

// State is the position of one run in its conversion lifecycle.
type State int

const (
	StatePending State = iota
	StateDownloading
	StateSingle
	StatePaired
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateDownloading:
		return "downloading"
	case StateSingle:
		return "converted-single"
	case StatePaired:
		return "converted-paired"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can follow s.
func (s State) Terminal() bool {
	return s == StateSingle || s == StatePaired || s == StateFailed
}

// RunResult is the final outcome of one run. Files are bundle-relative names,
// R1 before R2.
type RunResult struct {
	Accession string
	State     State
	Files     []string
	Attempts  int
	Err       error
}

// machine tracks the transitions of one run. It is owned by a single worker.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{state: StatePending, history: []State{StatePending}}
}

// to moves to next. Only the transitions of the run lifecycle are allowed:
// pending to downloading, downloading to a terminal state, and failed back to
// pending for a retry.
func (m *machine) to(next State) bool {
	ok := false
	switch m.state {
	case StatePending:
		ok = next == StateDownloading || next == StateFailed
	case StateDownloading:
		ok = next.Terminal()
	case StateFailed:
		ok = next == StatePending
	}
	if ok {
		m.state = next
		m.history = append(m.history, next)
	}
	return ok
}
