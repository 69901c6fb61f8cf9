// Package params holds the camera configuration surface: a flat string map that
// round trips through the "key=value;key=value" wire form, the named value
// tables for each control, and parsers for the structured values (sizes, ranges,
// areas) carried inside it.
package params

import (
	"log"
	"sort"
	"strconv"
	"strings"
)

// Parameters is a flat string-keyed configuration set. The zero value is not
// usable; call New or Unflatten.
type Parameters struct {
	m map[string]string
}

// New returns an empty parameter set
func New() *Parameters {
	return &Parameters{m: make(map[string]string)}
}

// Unflatten parses "k1=v1;k2=v2". Pairs without '=' are skipped.
func Unflatten(s string) *Parameters {
	p := New()
	for _, pair := range strings.Split(s, ";") {
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		p.m[k] = v
	}
	return p
}

// Flatten serializes the set with keys in sorted order
func (p *Parameters) Flatten() string {
	var b strings.Builder
	for i, k := range p.Keys() {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.m[k])
	}
	return b.String()
}

// Keys returns the sorted key list
func (p *Parameters) Keys() []string {
	keys := make([]string, 0, len(p.m))
	for k := range p.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys
func (p *Parameters) Len() int { return len(p.m) }

// Has reports whether key is present
func (p *Parameters) Has(key string) bool {
	_, ok := p.m[key]
	return ok
}

// Get returns the value for key, or "" when absent
func (p *Parameters) Get(key string) string {
	return p.m[key]
}

// Lookup returns the value and whether it was present
func (p *Parameters) Lookup(key string) (string, bool) {
	v, ok := p.m[key]
	return v, ok
}

// Set stores a value. Keys or values containing the separators are dropped.
func (p *Parameters) Set(key, value string) {
	if strings.ContainsAny(key, "=;") || strings.ContainsRune(value, ';') || strings.ContainsRune(value, '=') {
		log.Printf("[params] Warning: rejecting %q=%q: contains separator", key, value)
		return
	}
	p.m[key] = value
}

// GetInt returns the integer value of key, or -1 when absent or malformed
func (p *Parameters) GetInt(key string) int {
	v, ok := p.m[key]
	if !ok {
		return -1
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return -1
	}
	return n
}

// SetInt stores an integer
func (p *Parameters) SetInt(key string, n int) {
	p.m[key] = strconv.Itoa(n)
}

// GetFloat returns the float value of key, or 0 when absent or malformed
func (p *Parameters) GetFloat(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(p.m[key]), 64)
	if err != nil {
		return 0
	}
	return f
}

// SetFloat stores a float
func (p *Parameters) SetFloat(key string, f float64) {
	p.m[key] = strconv.FormatFloat(f, 'f', -1, 64)
}

// Remove deletes key
func (p *Parameters) Remove(key string) {
	delete(p.m, key)
}

// Size parses key as WxH
func (p *Parameters) Size(key string) (Size, bool) {
	s, err := ParseSize(p.m[key])
	return s, err == nil
}

// SetSize stores a WxH value
func (p *Parameters) SetSize(key string, s Size) {
	p.m[key] = s.String()
}

// Clone returns a deep copy
func (p *Parameters) Clone() *Parameters {
	c := &Parameters{m: make(map[string]string, len(p.m))}
	for k, v := range p.m {
		c.m[k] = v
	}
	return c
}

// Merge overlays every key of other onto p
func (p *Parameters) Merge(other *Parameters) {
	for k, v := range other.m {
		p.m[k] = v
	}
}

// Map returns a copy of the underlying map
func (p *Parameters) Map() map[string]string {
	out := make(map[string]string, len(p.m))
	for k, v := range p.m {
		out[k] = v
	}
	return out
}

// FromMap builds a parameter set from a map
func FromMap(m map[string]string) *Parameters {
	p := New()
	for k, v := range m {
		p.Set(k, v)
	}
	return p
}
