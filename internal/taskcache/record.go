package taskcache

// Record is the persisted outcome of the last attempt of a task. Only HashHex
// and Success decide staleness; the other fields are for people reading the
// marker directory.
type Record struct {
	Kind      string `json:"kind,omitempty"`
	ID        string `json:"id,omitempty"`
	HashInput string `json:"hash_input,omitempty"`
	HashHex   string `json:"hash_hex"`
	Success   bool   `json:"success"`
}

// matches reports whether r is a successful run of hash.
func (r *Record) matches(hash string) bool {
	return r != nil && r.Success && r.HashHex == hash
}
