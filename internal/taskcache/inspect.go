package taskcache

// State is the staleness classification of a task.
type State string

const (
	StateUpToDate State = "up-to-date"
	StateMissing  State = "missing"  // no readable marker
	StateChanged  State = "changed"  // inputs differ from the last run
	StateFailed   State = "failed"   // last run with these inputs failed
)

// Status is a read-only view of a task's marker.
type Status struct {
	Description Description
	State       State
	Hash        string
	MarkerPath  string
	Record      *Record
}

// Inspect classifies task against the store without modifying it.
func Inspect(store *Store, task Task) (*Status, error) {
	desc, err := Describe(task)
	if err != nil {
		return nil, err
	}
	hash, markerHash := fingerprints(desc)
	st := &Status{
		Description: desc,
		Hash:        hash,
		MarkerPath:  store.Path(markerHash),
	}

	if store.Exists(st.MarkerPath) {
		st.Record = store.Load(st.MarkerPath)
	}
	switch {
	case st.Record == nil:
		st.State = StateMissing
	case st.Record.HashHex != hash:
		st.State = StateChanged
	case !st.Record.Success:
		st.State = StateFailed
	default:
		st.State = StateUpToDate
	}
	return st, nil
}
