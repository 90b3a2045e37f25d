package taskcache

// Marker ties one invocation of a task to its stored record. Create it right
// before the task may run, check IsUpToDate, and when the task ran finish it
// with exactly one of Success, Failure or Result. A Marker that is never
// finished leaves the store as it was after construction.
type Marker struct {
	store     *Store
	desc      Description
	hash      string
	path      string
	previous  *Record
	upToDate  bool
	finalized bool
}

// NewMarker computes the task fingerprint and loads its previous record. A
// stale marker (failed, mismatched or unreadable) is deleted before
// NewMarker returns, so an interrupted run can never look successful later.
func NewMarker(store *Store, task Task) (*Marker, error) {
	desc, err := Describe(task)
	if err != nil {
		return nil, err
	}
	hash, markerHash := fingerprints(desc)

	m := &Marker{
		store: store,
		desc:  desc,
		hash:  hash,
		path:  store.Path(markerHash),
	}

	if !store.Exists(m.path) {
		return m, nil
	}
	m.previous = store.Load(m.path)
	m.upToDate = m.previous.matches(hash)
	if !m.upToDate {
		if err := store.Delete(m.path); err != nil {
			return nil, m.writeErr(err)
		}
	}
	return m, nil
}

// IsUpToDate reports whether the last recorded run used the same inputs and
// succeeded.
func (m *Marker) IsUpToDate() bool {
	return m.upToDate
}

// Hash returns the fingerprint of the task's current inputs.
func (m *Marker) Hash() string {
	return m.hash
}

// Path returns the marker file path.
func (m *Marker) Path() string {
	return m.path
}

// Description returns the serialized task.
func (m *Marker) Description() Description {
	return m.desc
}

// Previous returns the record loaded at construction, or nil.
func (m *Marker) Previous() *Record {
	return m.previous
}

// Success records a successful run.
func (m *Marker) Success() error {
	return m.finish(true)
}

// Failure records a failed run. The caller still owns the task error.
func (m *Marker) Failure() error {
	return m.finish(false)
}

func (m *Marker) finish(success bool) error {
	if m.finalized {
		return &Error{Code: CodeWriteMarker, Kind: m.desc.Kind, Task: m.label(), Err: ErrFinalized}
	}
	m.finalized = true

	rec := &Record{
		Kind:      string(m.desc.Kind),
		ID:        m.desc.Identity,
		HashInput: m.desc.HashInput,
		HashHex:   m.hash,
		Success:   success,
	}
	if err := m.store.Write(m.path, rec); err != nil {
		return m.writeErr(err)
	}
	m.upToDate = success
	return nil
}

// Result finishes m with the outcome of a task. On success it records success
// and returns value. On failure it records failure and returns the task error;
// if recording also fails the returned *TaskError carries both.
func Result[T any](m *Marker, value T, err error) (T, error) {
	if err == nil {
		if werr := m.Success(); werr != nil {
			var zero T
			return zero, werr
		}
		return value, nil
	}
	if werr := m.Failure(); werr != nil {
		return value, &TaskError{TaskErr: err, MarkerErr: werr}
	}
	return value, err
}

func (m *Marker) label() string {
	if m.desc.Identity != "" {
		return m.desc.Identity
	}
	return m.path
}

func (m *Marker) writeErr(err error) error {
	return &Error{Code: CodeWriteMarker, Kind: m.desc.Kind, Task: m.label(), Err: err}
}
