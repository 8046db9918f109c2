package graph

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind is the closed set of property value types a node can hold.
type Kind int

const (
	KindText Kind = iota + 1
	KindInteger
	KindTextList
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInteger:
		return "integer"
	case KindTextList:
		return "list"
	default:
		return "invalid"
	}
}

// ListSeparator joins list values when a property is flattened to text.
const ListSeparator = "; "

// Value is a node property: exactly one of text, integer or ordered text list.
type Value struct {
	kind    Kind
	text    string
	integer int64
	list    []string
}

func Text(s string) Value { return Value{kind: KindText, text: s} }

func Integer(n int64) Value { return Value{kind: KindInteger, integer: n} }

func TextList(items ...string) Value {
	list := make([]string, len(items))
	copy(list, items)
	return Value{kind: KindTextList, list: list}
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) Valid() bool { return v.kind >= KindText && v.kind <= KindTextList }

func (v Value) Text() (string, bool) {
	return v.text, v.kind == KindText
}

func (v Value) Integer() (int64, bool) {
	return v.integer, v.kind == KindInteger
}

// TextList returns a copy of the list held by a list value.
func (v Value) TextList() ([]string, bool) {
	if v.kind != KindTextList {
		return nil, false
	}
	return append([]string(nil), v.list...), true
}

// Strings returns the value as a list of strings: a text value becomes a one
// element list, an integer is formatted in base 10.
func (v Value) Strings() []string {
	switch v.kind {
	case KindText:
		return []string{v.text}
	case KindInteger:
		return []string{strconv.FormatInt(v.integer, 10)}
	case KindTextList:
		return append([]string(nil), v.list...)
	}
	return nil
}

// Flatten renders the value as a single string, joining lists with
// ListSeparator. The conversion is lossy for list values.
func (v Value) Flatten() string {
	return strings.Join(v.Strings(), ListSeparator)
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindText:
		return v.text == o.text
	case KindInteger:
		return v.integer == o.integer
	case KindTextList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if v.list[i] != o.list[i] {
				return false
			}
		}
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindText:
		return strconv.Quote(v.text)
	case KindInteger:
		return strconv.FormatInt(v.integer, 10)
	case KindTextList:
		return fmt.Sprintf("%q", v.list)
	}
	return "<invalid>"
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindText:
		return json.Marshal(map[string]string{"text": v.text})
	case KindInteger:
		return json.Marshal(map[string]int64{"integer": v.integer})
	case KindTextList:
		list := v.list
		if list == nil {
			list = []string{}
		}
		return json.Marshal(map[string][]string{"list": list})
	}
	return nil, fmt.Errorf("cannot encode invalid property value")
}

func (v *Value) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("property value must have exactly one of text, integer, list")
	}
	for k, msg := range raw {
		switch k {
		case "text":
			var s string
			if err := json.Unmarshal(msg, &s); err != nil {
				return err
			}
			*v = Text(s)
		case "integer":
			var n int64
			if err := json.Unmarshal(msg, &n); err != nil {
				return err
			}
			*v = Integer(n)
		case "list":
			var list []string
			if err := json.Unmarshal(msg, &list); err != nil {
				return err
			}
			*v = TextList(list...)
		default:
			return fmt.Errorf("unknown property value kind %q", k)
		}
	}
	return nil
}
