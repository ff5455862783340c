// Package config provides the path-addressable configuration tree consumed by
// the simulation core.
//
// A tree is built from YAML (with source lines) or TOML, or directly from Go
// values in tests. The core only ever sees *Node values; it never inspects the
// origin format. Scalars behave as one-element vectors, so a single number and
// a list of numbers are read through the same accessors.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// Kind is the shape of a configuration node.
type Kind int

const (
	Scalar Kind = iota
	Sequence
	Mapping
)

// ErrNotFound is wrapped by every error raised for a missing mandatory key.
var ErrNotFound = errors.New("not found")

// Error is a configuration error positioned at a node of the tree.
type Error struct {
	Path string
	Line int // 0 when the source format carries no positions
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Msg)
	if e.Line > 0 {
		fmt.Fprintf(&b, " (configuration line %d)", e.Line)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Node is one element of the configuration tree.
type Node struct {
	kind    Kind
	path    string
	line    int
	value   string
	numeric bool
	num     float64
	items   []*Node
	keys    []string
	fields  map[string]*Node
}

// Kind reports the node's shape.
func (n *Node) Kind() Kind { return n.kind }

// Path returns the dotted path of the node from the root.
func (n *Node) Path() string {
	if n == nil {
		return ""
	}
	return n.path
}

// Line returns the source line of the node, or 0 if unknown.
func (n *Node) Line() int {
	if n == nil {
		return 0
	}
	return n.line
}

// Load reads a model configuration from disk. Files ending in ".toml" are
// parsed as TOML; everything else is parsed as YAML.
func Load(path string) (*Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return ParseTOML(data, path)
	}
	return Parse(data, path)
}

// === Lookup ===

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// Lookup resolves a dotted path below n. It returns nil if any element of the
// path is missing. Lookup on a nil node returns nil.
func (n *Node) Lookup(path string) *Node {
	cur := n
	for _, key := range strings.Split(path, ".") {
		if cur == nil || cur.kind != Mapping {
			return nil
		}
		cur = cur.fields[key]
	}
	return cur
}

// Get resolves a dotted path below n and fails with a positioned error if it
// does not exist.
func (n *Node) Get(path string) (*Node, error) {
	if n == nil {
		return nil, &Error{Path: path, Msg: fmt.Sprintf("'%s' not found", path), Err: ErrNotFound}
	}
	cur := n
	for _, key := range strings.Split(path, ".") {
		var next *Node
		if cur.kind == Mapping {
			next = cur.fields[key]
		}
		if next == nil {
			return nil, &Error{
				Path: cur.path,
				Line: cur.line,
				Msg:  fmt.Sprintf("'%s' not found", joinPath(n.path, path)),
				Err:  ErrNotFound,
			}
		}
		cur = next
	}
	return cur, nil
}

// Exists reports whether the dotted path resolves below n.
func (n *Node) Exists(path string) bool { return n.Lookup(path) != nil }

// Child returns the direct child with the given key, or nil.
func (n *Node) Child(key string) *Node {
	if n == nil || n.kind != Mapping {
		return nil
	}
	return n.fields[key]
}

// Keys returns the mapping keys in source order.
func (n *Node) Keys() []string {
	if n == nil || n.kind != Mapping {
		return nil
	}
	return append([]string(nil), n.keys...)
}

// === Predicates ===

// IsNull reports whether the node is absent.
func (n *Node) IsNull() bool { return n == nil }

// IsMap reports whether the node is a mapping.
func (n *Node) IsMap() bool { return n != nil && n.kind == Mapping }

// IsNumeric reports whether the node is a number or a non-empty sequence of numbers.
func (n *Node) IsNumeric() bool {
	if n == nil {
		return false
	}
	switch n.kind {
	case Scalar:
		return n.numeric
	case Sequence:
		if len(n.items) == 0 {
			return false
		}
		for _, it := range n.items {
			if it.kind != Scalar || !it.numeric {
				return false
			}
		}
		return true
	}
	return false
}

// IsString reports whether the node is a string or a non-empty sequence of strings.
func (n *Node) IsString() bool {
	if n == nil {
		return false
	}
	switch n.kind {
	case Scalar:
		return !n.numeric
	case Sequence:
		if len(n.items) == 0 {
			return false
		}
		for _, it := range n.items {
			if it.kind != Scalar || it.numeric {
				return false
			}
		}
		return true
	}
	return false
}

// Len returns 1 for scalars, the item count for sequences and the key count
// for mappings.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	switch n.kind {
	case Sequence:
		return len(n.items)
	case Mapping:
		return len(n.keys)
	}
	return 1
}

// === Coercion ===

func (n *Node) element(i int) (*Node, error) {
	if n == nil {
		return nil, &Error{Msg: "missing value", Err: ErrNotFound}
	}
	switch n.kind {
	case Scalar:
		if i != 0 {
			return nil, n.Errorf("index %d out of range for a single value", i)
		}
		return n, nil
	case Sequence:
		if i < 0 || i >= len(n.items) {
			return nil, n.Errorf("index %d out of range (length %d)", i, len(n.items))
		}
		it := n.items[i]
		if it.kind != Scalar {
			return nil, it.Errorf("expected a value, found a nested structure")
		}
		return it, nil
	}
	return nil, n.Errorf("expected a value, found a mapping")
}

// Float returns element i as a number.
func (n *Node) Float(i int) (float64, error) {
	el, err := n.element(i)
	if err != nil {
		return 0, err
	}
	if !el.numeric {
		return 0, el.Errorf("'%s' is not a number", el.value)
	}
	return el.num, nil
}

// Floats returns all elements as numbers.
func (n *Node) Floats() ([]float64, error) {
	out := make([]float64, n.Len())
	for i := range out {
		v, err := n.Float(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Int returns element i as an integer. Integral floats are accepted.
func (n *Node) Int(i int) (int, error) {
	v, err := n.Float(i)
	if err != nil {
		return 0, err
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		el, _ := n.element(i)
		return 0, el.Errorf("'%v' is not an integer", v)
	}
	return int(v), nil
}

// Ints returns all elements as integers.
func (n *Node) Ints() ([]int, error) {
	out := make([]int, n.Len())
	for i := range out {
		v, err := n.Int(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// String returns element i as a string. Numbers are rendered in their source form.
func (n *Node) String(i int) (string, error) {
	el, err := n.element(i)
	if err != nil {
		return "", err
	}
	return el.value, nil
}

// Strings returns all elements as strings.
func (n *Node) Strings() ([]string, error) {
	out := make([]string, n.Len())
	for i := range out {
		v, err := n.String(i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// FloatAt is a mandatory lookup of path followed by its first element.
func (n *Node) FloatAt(path string) (float64, error) {
	c, err := n.Get(path)
	if err != nil {
		return 0, err
	}
	return c.Float(0)
}

// IntAt is a mandatory lookup of path followed by its first element.
func (n *Node) IntAt(path string) (int, error) {
	c, err := n.Get(path)
	if err != nil {
		return 0, err
	}
	return c.Int(0)
}

// StringAt is a mandatory lookup of path followed by its first element.
func (n *Node) StringAt(path string) (string, error) {
	c, err := n.Get(path)
	if err != nil {
		return "", err
	}
	return c.String(0)
}

// FloatOr returns the first element at path or def if the path is absent.
func (n *Node) FloatOr(path string, def float64) (float64, error) {
	c := n.Lookup(path)
	if c == nil {
		return def, nil
	}
	return c.Float(0)
}

// StringOr returns the first element at path or def if the path is absent.
func (n *Node) StringOr(path string, def string) (string, error) {
	c := n.Lookup(path)
	if c == nil {
		return def, nil
	}
	return c.String(0)
}

// === Diagnostics ===

// Errorf builds a configuration error positioned at n.
func (n *Node) Errorf(format string, args ...any) error {
	return &Error{Path: n.Path(), Line: n.Line(), Msg: fmt.Sprintf(format, args...)}
}

// Warnf logs a non-fatal configuration issue positioned at n.
func (n *Node) Warnf(format string, args ...any) {
	logrus.WithFields(logrus.Fields{"path": n.Path(), "line": n.Line()}).Warnf(format, args...)
}

// === Construction ===

var infinities = map[string]float64{
	"inf": math.Inf(1), "+inf": math.Inf(1), "-inf": math.Inf(-1),
	".inf": math.Inf(1), "+.inf": math.Inf(1), "-.inf": math.Inf(-1),
	"infinity": math.Inf(1), "-infinity": math.Inf(-1),
}

// parseNumber interprets a plain scalar as a number when possible.
func parseNumber(s string) (float64, bool) {
	if v, ok := infinities[strings.ToLower(s)]; ok {
		return v, true
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}
	if v, err := strconv.ParseInt(s, 0, 64); err == nil {
		return float64(v), true
	}
	return 0, false
}

func newScalar(path string, line int, value string, numeric bool, num float64) *Node {
	return &Node{kind: Scalar, path: path, line: line, value: value, numeric: numeric, num: num}
}

func newMapping(path string, line int) *Node {
	return &Node{kind: Mapping, path: path, line: line, fields: map[string]*Node{}}
}

func (n *Node) set(key string, child *Node) {
	if _, dup := n.fields[key]; !dup {
		n.keys = append(n.keys, key)
	}
	n.fields[key] = child
}

// FromValue builds a tree from Go maps, slices and scalars. Map keys are
// sorted, since Go maps carry no order.
func FromValue(v any) *Node { return fromValue("", v) }

func fromValue(path string, v any) *Node {
	switch x := v.(type) {
	case nil:
		return newScalar(path, 0, "", false, 0)
	case *Node:
		return x
	case map[string]any:
		m := newMapping(path, 0)
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			m.set(k, fromValue(joinPath(path, k), x[k]))
		}
		return m
	case []any:
		s := &Node{kind: Sequence, path: path}
		for i, it := range x {
			s.items = append(s.items, fromValue(fmt.Sprintf("%s[%d]", path, i), it))
		}
		return s
	case []float64:
		s := &Node{kind: Sequence, path: path}
		for i, it := range x {
			s.items = append(s.items, fromValue(fmt.Sprintf("%s[%d]", path, i), it))
		}
		return s
	case []int:
		s := &Node{kind: Sequence, path: path}
		for i, it := range x {
			s.items = append(s.items, fromValue(fmt.Sprintf("%s[%d]", path, i), it))
		}
		return s
	case []string:
		s := &Node{kind: Sequence, path: path}
		for i, it := range x {
			s.items = append(s.items, fromValue(fmt.Sprintf("%s[%d]", path, i), it))
		}
		return s
	case float64:
		return newScalar(path, 0, strconv.FormatFloat(x, 'g', -1, 64), true, x)
	case float32:
		return fromValue(path, float64(x))
	case int:
		return newScalar(path, 0, strconv.Itoa(x), true, float64(x))
	case int64:
		return newScalar(path, 0, strconv.FormatInt(x, 10), true, float64(x))
	case bool:
		return newScalar(path, 0, strconv.FormatBool(x), false, 0)
	case string:
		return newScalar(path, 0, x, false, 0)
	}
	return newScalar(path, 0, fmt.Sprint(v), false, 0)
}
