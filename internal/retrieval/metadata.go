package retrieval

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Kind enumerates the value kinds a metadata field may hold.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindStringList
)

// Value is a metadata field value: a string, a number, or a list of strings.
type Value struct {
	kind Kind
	str  string
	num  float64
	list []string
}

func String(s string) Value          { return Value{kind: KindString, str: s} }
func Number(n float64) Value         { return Value{kind: KindNumber, num: n} }
func StringList(l ...string) Value   { return Value{kind: KindStringList, list: append([]string(nil), l...)} }
func (v Value) Kind() Kind           { return v.kind }
func (v Value) Num() (float64, bool) { return v.num, v.kind == KindNumber }

// Str returns the string form of the value. Numbers are formatted without
// trailing zeros; lists are joined with ", ".
func (v Value) Str() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindStringList:
		return strings.Join(v.list, ", ")
	default:
		return v.str
	}
}

// List returns the value as a string list. A plain string becomes a
// one-element list; numbers yield nil.
func (v Value) List() []string {
	switch v.kind {
	case KindStringList:
		return append([]string(nil), v.list...)
	case KindString:
		return []string{v.str}
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNumber:
		return json.Marshal(v.num)
	case KindStringList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	default:
		return json.Marshal(v.str)
	}
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty metadata value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
	case '[':
		var items []any
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		list := make([]string, 0, len(items))
		for _, it := range items {
			list = append(list, fmt.Sprint(it))
		}
		*v = Value{kind: KindStringList, list: list}
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = String(strconv.FormatBool(b))
	case 'n':
		*v = String("")
	default:
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("unsupported metadata value %s", data)
		}
		*v = Number(n)
	}
	return nil
}

const (
	fieldTitle       = "title"
	fieldDescription = "description"
	fieldText        = "text"
)

// Metadata describes a search record. Title, description and body text have
// named accessors; every other field lives in a residual map.
type Metadata struct {
	title       string
	description string
	text        string
	extra       map[string]Value
}

// NewMetadata builds Metadata with the well-known fields set.
func NewMetadata(title, description, text string) Metadata {
	return Metadata{title: title, description: description, text: text}
}

func (m Metadata) Title() string       { return m.title }
func (m Metadata) Description() string { return m.description }
func (m Metadata) Text() string        { return m.text }

// Get returns a residual field.
func (m Metadata) Get(key string) (Value, bool) {
	v, ok := m.extra[key]
	return v, ok
}

// With returns a copy of m with the field set. Setting a well-known key
// updates its accessor, using the string form of v.
func (m Metadata) With(key string, v Value) Metadata {
	switch key {
	case fieldTitle:
		m.title = v.Str()
		return m
	case fieldDescription:
		m.description = v.Str()
		return m
	case fieldText:
		m.text = v.Str()
		return m
	}
	extra := make(map[string]Value, len(m.extra)+1)
	for k, ev := range m.extra {
		extra[k] = ev
	}
	extra[key] = v
	m.extra = extra
	return m
}

// Keys returns the residual field names in sorted order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m.extra))
	for k := range m.extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Body returns the best text to show for the record: the body text, else
// the description.
func (m Metadata) Body() string {
	if m.text != "" {
		return m.text
	}
	return m.description
}

// Field looks up any field by name, including the well-known ones.
func (m Metadata) Field(key string) (Value, bool) {
	switch key {
	case fieldTitle:
		return String(m.title), m.title != ""
	case fieldDescription:
		return String(m.description), m.description != ""
	case fieldText:
		return String(m.text), m.text != ""
	}
	return m.Get(key)
}

// MarshalJSON encodes Metadata as one flat object.
func (m Metadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]Value, len(m.extra)+3)
	for k, v := range m.extra {
		out[k] = v
	}
	if m.title != "" {
		out[fieldTitle] = String(m.title)
	}
	if m.description != "" {
		out[fieldDescription] = String(m.description)
	}
	if m.text != "" {
		out[fieldText] = String(m.text)
	}
	return json.Marshal(out)
}

func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw map[string]Value
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = Metadata{}
	for k, v := range raw {
		*m = m.With(k, v)
	}
	return nil
}
