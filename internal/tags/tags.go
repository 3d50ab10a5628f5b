// Package tags implements the ordered, scalar-valued tag maps attached to
// timers and to whole requests.
package tags

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

var (
	// ErrInvalidTags is wrapped by every tag validation failure.
	ErrInvalidTags = errors.New("invalid tags")

	ErrEmpty      = fmt.Errorf("%w: tag map cannot be empty", ErrInvalidTags)
	ErrEmptyKey   = fmt.Errorf("%w: tag name cannot be empty", ErrInvalidTags)
	ErrNumericKey = fmt.Errorf("%w: tag names cannot be numeric indexes", ErrInvalidTags)
	ErrNonScalar  = fmt.Errorf("%w: tag values must be scalars", ErrInvalidTags)
)

// Pair is a single tag.
type Pair struct {
	Key   string
	Value Value
}

// Tags is an insertion-ordered map from tag name to Value. The zero value
// is an empty map ready for use. Tags has value semantics for reads; use
// Clone before handing a map to another owner.
type Tags struct {
	pairs []Pair
}

// New builds Tags from pairs. A repeated key keeps its first position and
// its last value.
func New(pairs ...Pair) Tags {
	var t Tags
	for _, p := range pairs {
		t.Set(p.Key, p.Value)
	}
	return t
}

// Of builds Tags from alternating string keys and scalar values, for
// example Of("group", "mysql", "op", "select"). It panics on malformed
// input and is meant for literals.
func Of(kv ...any) Tags {
	if len(kv)%2 != 0 {
		panic("tags.Of: odd number of arguments")
	}
	var t Tags
	for i := 0; i < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			panic(fmt.Sprintf("tags.Of: key %v is %T, not string", kv[i], kv[i]))
		}
		v, err := ValueOf(kv[i+1])
		if err != nil {
			panic(fmt.Sprintf("tags.Of: %v", err))
		}
		t.Set(key, v)
	}
	return t
}

// FromMap converts a loosely typed map. Keys are inserted in sorted order.
func FromMap(m map[string]any) (Tags, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var t Tags
	for _, k := range keys {
		v, err := ValueOf(m[k])
		if err != nil {
			return Tags{}, fmt.Errorf("tag %q: %w", k, err)
		}
		t.Set(k, v)
	}
	return t, nil
}

// FromStrings converts a plain string map. Keys are inserted in sorted order.
func FromStrings(m map[string]string) Tags {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var t Tags
	for _, k := range keys {
		t.Set(k, String(m[k]))
	}
	return t
}

// Len returns the number of tags.
func (t Tags) Len() int { return len(t.pairs) }

// Get returns the value stored under key.
func (t Tags) Get(key string) (Value, bool) {
	for _, p := range t.pairs {
		if p.Key == key {
			return p.Value, true
		}
	}
	return Value{}, false
}

// Set stores value under key. An existing key keeps its position.
func (t *Tags) Set(key string, value Value) {
	for i := range t.pairs {
		if t.pairs[i].Key == key {
			t.pairs[i].Value = value
			return
		}
	}
	t.pairs = append(t.pairs, Pair{Key: key, Value: value})
}

// Delete removes key and reports whether it was present.
func (t *Tags) Delete(key string) bool {
	for i := range t.pairs {
		if t.pairs[i].Key == key {
			t.pairs = append(t.pairs[:i:i], t.pairs[i+1:]...)
			return true
		}
	}
	return false
}

// Pairs returns a copy of the tags in insertion order.
func (t Tags) Pairs() []Pair {
	out := make([]Pair, len(t.pairs))
	copy(out, t.pairs)
	return out
}

// Clone returns an independent copy.
func (t Tags) Clone() Tags {
	if len(t.pairs) == 0 {
		return Tags{}
	}
	return Tags{pairs: t.Pairs()}
}

// Merge returns the shallow union of t and other; keys of other override.
func (t Tags) Merge(other Tags) Tags {
	out := t.Clone()
	for _, p := range other.pairs {
		out.Set(p.Key, p.Value)
	}
	return out
}

// Map returns the tags as wire strings keyed by name.
func (t Tags) Map() map[string]string {
	out := make(map[string]string, len(t.pairs))
	for _, p := range t.pairs {
		out[p.Key] = p.Value.String()
	}
	return out
}

// Equal reports whether t and other hold the same tags in the same order.
func (t Tags) Equal(other Tags) bool {
	if len(t.pairs) != len(other.pairs) {
		return false
	}
	for i := range t.pairs {
		if t.pairs[i] != other.pairs[i] {
			return false
		}
	}
	return true
}

// Identity returns a structural key that is equal for two tag maps holding
// the same (name, wire value) pairs, whatever their insertion order. Entries
// are length-prefixed so no two distinct maps share a key.
func (t Tags) Identity() string {
	sorted := t.Pairs()
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var sb strings.Builder
	for _, p := range sorted {
		v := p.Value.String()
		sb.WriteString(strconv.Itoa(len(p.Key)))
		sb.WriteByte(':')
		sb.WriteString(p.Key)
		sb.WriteString(strconv.Itoa(len(v)))
		sb.WriteByte(':')
		sb.WriteString(v)
	}
	return sb.String()
}

// Validate checks tag names. Empty maps are accepted here; timers use
// ValidateTimer.
func (t Tags) Validate() error {
	for _, p := range t.pairs {
		if err := ValidateKey(p.Key); err != nil {
			return err
		}
	}
	return nil
}

// ValidateTimer checks a timer tag map: non-empty with valid names.
func (t Tags) ValidateTimer() error {
	if len(t.pairs) == 0 {
		return ErrEmpty
	}
	return t.Validate()
}

// ValidateKey rejects empty names and names that are canonical integers.
func ValidateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if isIndex(key) {
		return fmt.Errorf("%w: %q", ErrNumericKey, key)
	}
	return nil
}

func isIndex(key string) bool {
	n, err := strconv.ParseInt(key, 10, 64)
	return err == nil && strconv.FormatInt(n, 10) == key
}

// String renders the tags as k=v pairs in insertion order.
func (t Tags) String() string {
	parts := make([]string, 0, len(t.pairs))
	for _, p := range t.pairs {
		parts = append(parts, p.Key+"="+p.Value.String())
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MarshalJSON renders the tags as a JSON object in insertion order.
func (t Tags) MarshalJSON() ([]byte, error) {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, p := range t.pairs {
		if i > 0 {
			sb.WriteByte(',')
		}
		k, err := json.Marshal(p.Key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value.String())
		if err != nil {
			return nil, err
		}
		sb.Write(k)
		sb.WriteByte(':')
		sb.Write(v)
	}
	sb.WriteByte('}')
	return []byte(sb.String()), nil
}
