package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/elliotchance/orderedmap"
)

// Payload is a string-keyed map that remembers insertion order. Wire encoding
// follows that order, and decoding preserves the order found in the input.
type Payload struct {
	m *orderedmap.OrderedMap
}

// NewPayload creates an empty payload
func NewPayload() *Payload {
	return &Payload{m: orderedmap.NewOrderedMap()}
}

// PayloadFromMap builds a payload from a plain map. Keys are inserted in sorted order.
func PayloadFromMap(values map[string]any) *Payload {
	p := NewPayload()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Set(k, values[k])
	}
	return p
}

// Set inserts or replaces a value. Replacing keeps the original position.
func (p *Payload) Set(key string, value any) *Payload {
	p.m.Set(key, value)
	return p
}

// Get returns the value stored under key
func (p *Payload) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	return p.m.Get(key)
}

// Delete removes key if present
func (p *Payload) Delete(key string) {
	if p == nil {
		return
	}
	p.m.Delete(key)
}

// Len returns the number of keys
func (p *Payload) Len() int {
	if p == nil {
		return 0
	}
	return p.m.Len()
}

// Keys returns the keys in insertion order
func (p *Payload) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, 0, p.m.Len())
	for el := p.m.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Key.(string))
	}
	return keys
}

// Range calls fn for each entry in order until fn returns false
func (p *Payload) Range(fn func(key string, value any) bool) {
	if p == nil {
		return
	}
	for el := p.m.Front(); el != nil; el = el.Next() {
		if !fn(el.Key.(string), el.Value) {
			return
		}
	}
}

// Clone returns a shallow copy with the same order
func (p *Payload) Clone() *Payload {
	c := NewPayload()
	p.Range(func(key string, value any) bool {
		c.Set(key, value)
		return true
	})
	return c
}

// Map returns the payload as a plain map. Nested payloads are converted too.
func (p *Payload) Map() map[string]any {
	out := make(map[string]any, p.Len())
	p.Range(func(key string, value any) bool {
		if nested, ok := value.(*Payload); ok {
			out[key] = nested.Map()
		} else {
			out[key] = value
		}
		return true
	})
	return out
}

// MarshalJSON encodes the payload as a JSON object in insertion order
func (p *Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.writeJSON(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (p *Payload) writeJSON(buf *bytes.Buffer) error {
	buf.WriteByte('{')
	first := true
	var err error
	p.Range(func(key string, value any) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		err = writeField(buf, key, value)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeField(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode field %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. Nested objects become
// nested payloads; everything else decodes as encoding/json does into any.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("payload must be a JSON object")
	}

	p.m = orderedmap.NewOrderedMap()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("failed to decode field %s: %w", key, err)
		}

		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '{' {
			nested := NewPayload()
			if err := nested.UnmarshalJSON(raw); err != nil {
				return err
			}
			p.Set(key, nested)
			continue
		}

		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("failed to decode field %s: %w", key, err)
		}
		p.Set(key, value)
	}

	_, err = dec.Token()
	return err
}
