// Package shaping implements the client-side pending-change lifecycle:
// collapsing redundant writes, size-bounded splitting and batching, and the
// mutator-to-Change factory.
package shaping

import "github.com/relaydoc/core/patch"

// Builder records op calls against string paths, standing in for the typed
// path-proxy spec.md describes — Go callers address paths as JSON Pointers
// directly rather than through compile-time struct navigation.
type Builder struct {
	ops []patch.Op
}

// NewBuilder returns an empty op recorder.
func NewBuilder() *Builder { return &Builder{} }

// Ops returns the recorded op list in call order.
func (b *Builder) Ops() []patch.Op { return append([]patch.Op(nil), b.ops...) }

func (b *Builder) record(op patch.Op) { b.ops = append(b.ops, op) }

// Add inserts an object property or array element.
func (b *Builder) Add(path string, value any) {
	b.record(patch.Op{Kind: patch.Add, Path: patch.ParsePath(path), Value: value})
}

// AddSoft inserts only if the path is absent or currently empty.
func (b *Builder) AddSoft(path string, value any) {
	b.record(patch.Op{Kind: patch.Add, Path: patch.ParsePath(path), Value: value, Soft: true})
}

// Remove deletes a property or array element.
func (b *Builder) Remove(path string) {
	b.record(patch.Op{Kind: patch.Remove, Path: patch.ParsePath(path)})
}

// Replace overwrites an existing value.
func (b *Builder) Replace(path string, value any) {
	b.record(patch.Op{Kind: patch.Replace, Path: patch.ParsePath(path), Value: value})
}

// Move relocates a value from one path to another.
func (b *Builder) Move(from, to string) {
	b.record(patch.Op{Kind: patch.Move, From: patch.ParsePath(from), Path: patch.ParsePath(to)})
}

// Copy duplicates a value at another path.
func (b *Builder) Copy(from, to string) {
	b.record(patch.Op{Kind: patch.Copy, From: patch.ParsePath(from), Path: patch.ParsePath(to)})
}

// Inc adds n to the numeric value at path.
func (b *Builder) Inc(path string, n float64) {
	b.record(patch.Op{Kind: patch.Inc, Path: patch.ParsePath(path), Value: n})
}

// Bit XORs mask into the bitmask value at path.
func (b *Builder) Bit(path string, mask uint64) {
	b.record(patch.Op{Kind: patch.Bit, Path: patch.ParsePath(path), Value: mask})
}

// Min lowers the value at path to n if n is smaller.
func (b *Builder) Min(path string, n float64) {
	b.record(patch.Op{Kind: patch.Min, Path: patch.ParsePath(path), Value: n})
}

// Max raises the value at path to n if n is larger.
func (b *Builder) Max(path string, n float64) {
	b.record(patch.Op{Kind: patch.Max, Path: patch.ParsePath(path), Value: n})
}

// Txt applies a rich-text delta to the string value at path.
func (b *Builder) Txt(path string, delta patch.TextDelta) {
	b.record(patch.Op{Kind: patch.Txt, Path: patch.ParsePath(path), Delta: delta})
}
