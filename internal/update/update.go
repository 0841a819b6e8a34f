// Package update defines the pending-output-change types a receiver enqueues
// when it learns of a source state change, and their serialisation to an OSC
// wire message. Set-equality of two updates keys only on
// (kind, path, source index) so that repeated writes to the same channel
// coalesce to the newest value, never on payload.
package update

import "fmt"

// Kind discriminates the update variants for set-equality purposes.
type Kind int

const (
	KindPosition Kind = iota
	KindGain
	KindDirectSend
	KindAttribute
)

// Message is a single outbound OSC message: a path and its ordered argument
// list.
type Message struct {
	Path   string
	Values []interface{}
}

// Key is the set-equality key for an Update: same kind, same path, same
// source index coalesce, regardless of payload.
type Key struct {
	Kind   Kind
	Path   string
	Source int
}

// Update is a pending output change. Exactly one of the concrete value
// fields is meaningful, selected by Kind.
type Update struct {
	Kind   Kind
	Path   string
	Source int

	// Position
	CoordFormat string
	Position    []float64

	// Gain / DirectSend
	Index        int  // renderer_idx or send_idx
	IncludeIndex bool // whether the index is emitted as an argument
	Value        float64

	// Attribute
	AttrName         string
	IncludeAttrName  bool
	AttrValue        float64
	InvertBool       bool // WonderPlanewaveUpdate: invert the boolean before serialising

	// IncludeSourceIndex: whether source_index is emitted as a leading arg
	// (receivers that put the index in the path set this false).
	IncludeSourceIndex bool

	PreArg  interface{} // renderer/send index or attribute name, when not covered above
	PostArg interface{} // interpolation time, when present
}

// Key returns the coalescing key for this Update.
func (u *Update) Key() Key {
	return Key{Kind: u.Kind, Path: u.Path, Source: u.Source}
}

// NewPosition constructs a position update. sourceIndex is the value written
// into the message when includeSourceIndex is true (callers pass the 0- or
// 1-based index their dialect expects).
func NewPosition(path string, source int, includeSourceIndex bool, coordFormat string, position []float64, postArg interface{}) *Update {
	return &Update{
		Kind:               KindPosition,
		Path:               path,
		Source:             source,
		IncludeSourceIndex: includeSourceIndex,
		CoordFormat:        coordFormat,
		Position:           position,
		PostArg:            postArg,
	}
}

// NewGain constructs a gain update for a renderer index.
func NewGain(path string, source int, includeSourceIndex bool, rendererIdx int, includeRendererIdx bool, value float64) *Update {
	return &Update{
		Kind:               KindGain,
		Path:               path,
		Source:             source,
		IncludeSourceIndex: includeSourceIndex,
		Index:              rendererIdx,
		IncludeIndex:       includeRendererIdx,
		Value:              value,
	}
}

// NewDirectSend constructs a direct-send update.
func NewDirectSend(path string, source int, includeSourceIndex bool, sendIdx int, includeSendIdx bool, value float64) *Update {
	return &Update{
		Kind:               KindDirectSend,
		Path:               path,
		Source:             source,
		IncludeSourceIndex: includeSourceIndex,
		Index:              sendIdx,
		IncludeIndex:       includeSendIdx,
		Value:              value,
	}
}

// NewAttribute constructs an attribute update. When invertBool is set the
// value is treated as a 0/1 boolean and inverted before serialising —
// the historical Wonder "type" attribute encoding.
func NewAttribute(path string, source int, includeSourceIndex bool, attrName string, includeAttrName bool, value float64, invertBool bool) *Update {
	return &Update{
		Kind:               KindAttribute,
		Path:               path,
		Source:             source,
		IncludeSourceIndex: includeSourceIndex,
		AttrName:           attrName,
		IncludeAttrName:    includeAttrName,
		AttrValue:          value,
		InvertBool:         invertBool,
	}
}

// getValue returns the core value arguments for this update, before the
// source index / pre_arg / post_arg wrapping described in spec.md §4.3.
func (u *Update) getValue() []interface{} {
	switch u.Kind {
	case KindPosition:
		vals := make([]interface{}, len(u.Position))
		for i, v := range u.Position {
			vals[i] = v
		}
		return vals
	case KindGain, KindDirectSend:
		return []interface{}{u.Value}
	case KindAttribute:
		v := u.AttrValue
		if u.InvertBool {
			if v != 0 {
				v = 0
			} else {
				v = 1
			}
		}
		return []interface{}{v}
	default:
		return nil
	}
}

// preArg resolves the argument inserted immediately before the value(s), if
// any, according to the include flags.
func (u *Update) preArg() (interface{}, bool) {
	switch u.Kind {
	case KindGain, KindDirectSend:
		if u.IncludeIndex {
			return u.Index, true
		}
	case KindAttribute:
		if u.IncludeAttrName {
			return u.AttrName, true
		}
	}
	if u.PreArg != nil {
		return u.PreArg, true
	}
	return nil, false
}

// ToMessage serialises the update to its wire form:
// [source_index], [pre_arg], value_or_values…, [post_arg].
func (u *Update) ToMessage() Message {
	var args []interface{}
	if u.IncludeSourceIndex {
		args = append(args, u.Source)
	}
	if pre, ok := u.preArg(); ok {
		args = append(args, pre)
	}
	args = append(args, u.getValue()...)
	if u.PostArg != nil {
		args = append(args, u.PostArg)
	}
	return Message{Path: u.Path, Values: args}
}

func (u *Update) String() string {
	return fmt.Sprintf("Update{%v %s src=%d}", u.Kind, u.Path, u.Source)
}
