// Package synctest provides small builders and fixtures shared by the
// sync core's package tests, so each package's _test.go files don't
// reinvent the same Change/TimedOp scaffolding.
package synctest

import (
	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// ChangeBuilder constructs a change.Change fluently for test setup.
type ChangeBuilder struct {
	c change.Change
}

// NewChange starts a ChangeBuilder with the given id.
func NewChange(id string) *ChangeBuilder {
	return &ChangeBuilder{c: change.Change{ID: id}}
}

func (b *ChangeBuilder) BaseRev(rev int64) *ChangeBuilder {
	b.c.BaseRev = rev
	return b
}

func (b *ChangeBuilder) Rev(rev int64) *ChangeBuilder {
	b.c.Rev = rev
	return b
}

func (b *ChangeBuilder) CreatedAt(ms int64) *ChangeBuilder {
	b.c.CreatedAt = ms
	return b
}

func (b *ChangeBuilder) CommittedAt(ms int64) *ChangeBuilder {
	b.c.CommittedAt = ms
	return b
}

func (b *ChangeBuilder) Add(path, value string) *ChangeBuilder {
	return b.op(patch.Op{Kind: patch.Add, Path: patch.ParsePath(path), Value: value})
}

func (b *ChangeBuilder) AddValue(path string, value any) *ChangeBuilder {
	return b.op(patch.Op{Kind: patch.Add, Path: patch.ParsePath(path), Value: value})
}

func (b *ChangeBuilder) Replace(path string, value any) *ChangeBuilder {
	return b.op(patch.Op{Kind: patch.Replace, Path: patch.ParsePath(path), Value: value})
}

func (b *ChangeBuilder) Inc(path string, delta float64) *ChangeBuilder {
	return b.op(patch.Op{Kind: patch.Inc, Path: patch.ParsePath(path), Value: delta})
}

func (b *ChangeBuilder) Remove(path string) *ChangeBuilder {
	return b.op(patch.Op{Kind: patch.Remove, Path: patch.ParsePath(path)})
}

func (b *ChangeBuilder) op(op patch.Op) *ChangeBuilder {
	b.c.Ops = append(b.c.Ops, op)
	return b
}

// Build returns the constructed Change.
func (b *ChangeBuilder) Build() change.Change { return b.c }

// TimedOpAt builds a single LWW TimedOp.
func TimedOpAt(path string, value any, ts int64) change.TimedOp {
	return change.TimedOp{Op: patch.Op{Kind: patch.Replace, Path: patch.ParsePath(path), Value: value}, TS: ts}
}

// AddOpAt builds a single LWW Add TimedOp, for paths that must not already
// exist.
func AddOpAt(path string, value any, ts int64) change.TimedOp {
	return change.TimedOp{Op: patch.Op{Kind: patch.Add, Path: patch.ParsePath(path), Value: value}, TS: ts}
}

// SampleDoc returns a small nested document used across the engine tests:
// a title, a nested author object, and a tag list.
func SampleDoc() map[string]any {
	return map[string]any{
		"title": "untitled",
		"author": map[string]any{
			"name": "anonymous",
			"age":  0.0,
		},
		"tags": []any{"draft"},
	}
}
