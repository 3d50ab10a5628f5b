// Package dictionary implements the de-duplicating string table that Pinba
// packets reference by index.
package dictionary

// Dictionary interns strings in first-seen order. Indices are never
// reordered or compacted. A Dictionary is built for one packet and is not
// safe for concurrent use.
type Dictionary struct {
	entries []string
	index   map[string]uint32
}

// New returns an empty Dictionary.
func New() *Dictionary {
	return &Dictionary{index: make(map[string]uint32)}
}

// Intern returns the index of s, appending it when unseen.
func (d *Dictionary) Intern(s string) uint32 {
	if d.index == nil {
		d.index = make(map[string]uint32)
	}
	if id, ok := d.index[s]; ok {
		return id
	}
	id := uint32(len(d.entries))
	d.entries = append(d.entries, s)
	d.index[s] = id
	return id
}

// Lookup returns the index of s without interning it.
func (d *Dictionary) Lookup(s string) (uint32, bool) {
	id, ok := d.index[s]
	return id, ok
}

// Len returns the number of entries.
func (d *Dictionary) Len() int { return len(d.entries) }

// Entries returns the strings in index order.
func (d *Dictionary) Entries() []string {
	out := make([]string, len(d.entries))
	copy(out, d.entries)
	return out
}
