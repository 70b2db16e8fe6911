package connector

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrTagMismatch is returned when EndTag does not close the open tag.
var ErrTagMismatch = errors.New("connector: paint tag mismatch")

type attr struct {
	name  string
	value any
}

type paintNode struct {
	tag      string
	attrs    []attr
	vars     []attr
	children []*paintNode
}

// PaintTarget collects the UIDL tree painted by a legacy connector. The
// tree serializes as nested arrays of the form
//
//	["tag", {"attr": value, "v": {"var": value}}, child...]
type PaintTarget struct {
	root  *paintNode
	stack []*paintNode
}

// NewPaintTarget returns an empty paint target.
func NewPaintTarget() *PaintTarget {
	return &PaintTarget{}
}

// StartTag opens a new tag under the current one.
func (p *PaintTarget) StartTag(tag string) {
	n := &paintNode{tag: tag}
	if len(p.stack) == 0 {
		if p.root == nil {
			p.root = n
		} else {
			// Additional top level tags become children of the first.
			p.root.children = append(p.root.children, n)
		}
	} else {
		top := p.stack[len(p.stack)-1]
		top.children = append(top.children, n)
	}
	p.stack = append(p.stack, n)
}

// AddAttribute sets an attribute on the open tag.
func (p *PaintTarget) AddAttribute(name string, value any) error {
	if len(p.stack) == 0 {
		return fmt.Errorf("%w: attribute %q outside of a tag", ErrTagMismatch, name)
	}
	top := p.stack[len(p.stack)-1]
	top.attrs = append(top.attrs, attr{name: name, value: value})
	return nil
}

// AddVariable sets a client variable on the open tag.
func (p *PaintTarget) AddVariable(name string, value any) error {
	if len(p.stack) == 0 {
		return fmt.Errorf("%w: variable %q outside of a tag", ErrTagMismatch, name)
	}
	top := p.stack[len(p.stack)-1]
	top.vars = append(top.vars, attr{name: name, value: value})
	return nil
}

// EndTag closes the open tag, which must be tag.
func (p *PaintTarget) EndTag(tag string) error {
	if len(p.stack) == 0 {
		return fmt.Errorf("%w: end %q without start", ErrTagMismatch, tag)
	}
	top := p.stack[len(p.stack)-1]
	if top.tag != tag {
		return fmt.Errorf("%w: end %q, open %q", ErrTagMismatch, tag, top.tag)
	}
	p.stack = p.stack[:len(p.stack)-1]
	return nil
}

// Empty reports whether nothing has been painted.
func (p *PaintTarget) Empty() bool {
	return p.root == nil
}

// Close verifies that every tag has been closed.
func (p *PaintTarget) Close() error {
	if len(p.stack) > 0 {
		return fmt.Errorf("%w: %q left open", ErrTagMismatch, p.stack[len(p.stack)-1].tag)
	}
	return nil
}

// MarshalJSON encodes the painted tree.
func (p *PaintTarget) MarshalJSON() ([]byte, error) {
	if p.root == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	if err := p.root.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (n *paintNode) encode(buf *bytes.Buffer) error {
	tag, err := json.Marshal(n.tag)
	if err != nil {
		return err
	}
	buf.WriteByte('[')
	buf.Write(tag)
	buf.WriteString(",{")
	for i, a := range n.attrs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeMember(buf, a.name, a.value); err != nil {
			return err
		}
	}
	if len(n.vars) > 0 {
		if len(n.attrs) > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(`"v":{`)
		for i, v := range n.vars {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeMember(buf, v.name, v.value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	}
	buf.WriteByte('}')
	for _, child := range n.children {
		buf.WriteByte(',')
		if err := child.encode(buf); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

func writeMember(buf *bytes.Buffer, name string, value any) error {
	k, err := json.Marshal(name)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", name, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}
