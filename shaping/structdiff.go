package shaping

import (
	"encoding/json"
	"reflect"
	"strconv"
	"time"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/errs"
	"github.com/relaydoc/core/patch"
)

// DiffOps compares two struct (or map) snapshots and returns the ops that
// turn oldValue into newValue: add for new fields, remove for dropped
// fields, replace for changed leaves. Both values are round-tripped through
// JSON first so callers can pass either tagged structs or already-decoded
// map[string]any documents.
func DiffOps(oldValue, newValue any) ([]patch.Op, error) {
	oldMap, err := toJSONValue(oldValue)
	if err != nil {
		return nil, errs.ValidationError{Message: "diff: failed to encode old value", Cause: err}
	}
	newMap, err := toJSONValue(newValue)
	if err != nil {
		return nil, errs.ValidationError{Message: "diff: failed to encode new value", Cause: err}
	}

	var ops []patch.Op
	diffValue(patch.Path{}, oldMap, newMap, &ops)
	return ops, nil
}

func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func diffValue(path patch.Path, oldValue, newValue any, ops *[]patch.Op) {
	if reflect.DeepEqual(oldValue, newValue) {
		return
	}

	oldMap, oldIsMap := oldValue.(map[string]any)
	newMap, newIsMap := newValue.(map[string]any)
	if oldIsMap && newIsMap {
		diffMaps(path, oldMap, newMap, ops)
		return
	}

	oldSlice, oldIsSlice := oldValue.([]any)
	newSlice, newIsSlice := newValue.([]any)
	if oldIsSlice && newIsSlice && len(oldSlice) == len(newSlice) {
		for i := range oldSlice {
			diffValue(path.Append(itoa(i)), oldSlice[i], newSlice[i], ops)
		}
		return
	}

	if oldValue == nil {
		*ops = append(*ops, patch.Op{Kind: patch.Add, Path: path.Clone(), Value: newValue})
		return
	}
	if newValue == nil {
		*ops = append(*ops, patch.Op{Kind: patch.Remove, Path: path.Clone()})
		return
	}
	*ops = append(*ops, patch.Op{Kind: patch.Replace, Path: path.Clone(), Value: newValue})
}

func diffMaps(path patch.Path, oldMap, newMap map[string]any, ops *[]patch.Op) {
	for key, oldV := range oldMap {
		p := path.Append(key)
		newV, exists := newMap[key]
		if !exists {
			*ops = append(*ops, patch.Op{Kind: patch.Remove, Path: p})
			continue
		}
		diffValue(p, oldV, newV, ops)
	}
	for key, newV := range newMap {
		if _, exists := oldMap[key]; !exists {
			*ops = append(*ops, patch.Op{Kind: patch.Add, Path: path.Append(key), Value: newV})
		}
	}
}

func itoa(i int) string {
	return strconv.Itoa(i)
}

// StructDiffOptions parameterizes MakeChangeFromStructDiff.
type StructDiffOptions struct {
	Old            any
	New            any
	BaseRev        int64
	LastPendingRev int64
	Metadata       map[string]any
	MaxBytes       int
	IDFactory      func() string
	Now            func() time.Time
}

// MakeChangeFromStructDiff is the compare-and-patch counterpart to
// MakeChange: instead of recording a mutator's Builder calls, it diffs two
// struct snapshots into ops directly. An empty diff yields no change.
func MakeChangeFromStructDiff(opts StructDiffOptions) ([]change.Change, error) {
	ops, err := DiffOps(opts.Old, opts.New)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}
	if opts.IDFactory == nil {
		return nil, errs.ValidationError{Message: "makeChangeFromStructDiff: IDFactory is required"}
	}

	rev := opts.BaseRev + 1
	if opts.LastPendingRev > 0 {
		rev = opts.LastPendingRev + 1
	}

	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}

	c := change.Change{
		ID:        opts.IDFactory(),
		Rev:       rev,
		BaseRev:   opts.BaseRev,
		Ops:       ops,
		CreatedAt: now().UnixMilli(),
		Metadata:  opts.Metadata,
	}

	if opts.MaxBytes > 0 {
		return BreakChange(c, opts.MaxBytes)
	}
	return []change.Change{c}, nil
}
