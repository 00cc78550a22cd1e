package shaping

import (
	"strconv"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// CollapsePendingChanges elides redundant single-path primitive replaces,
// keeping only the most recent one per path. Changes whose rev is ≤ afterRev
// are left untouched (a submission bookmark: they may already be in flight
// to the server and are unsafe to fold away). Order is preserved; collapsed
// slots are simply omitted from the result.
func CollapsePendingChanges(changes []change.Change, afterRev int64) []change.Change {
	out := make([]*change.Change, 0, len(changes))
	tracked := make(map[string]int)

	for i := range changes {
		c := changes[i]
		if c.Rev <= afterRev {
			out = append(out, &c)
			continue
		}

		evictStructural(c, tracked, out)

		if p, ok := collapsiblePath(c); ok {
			key := p.String()
			if idx, exists := tracked[key]; exists {
				out[idx] = nil
			}
			out = append(out, &c)
			tracked[key] = len(out) - 1
			continue
		}

		out = append(out, &c)
	}

	result := make([]change.Change, 0, len(out))
	for _, c := range out {
		if c != nil {
			result = append(result, *c)
		}
	}
	return result
}

// collapsiblePath reports whether c is a single primitive replace, and the
// path it targets.
func collapsiblePath(c change.Change) (patch.Path, bool) {
	if len(c.Ops) != 1 {
		return nil, false
	}
	op := c.Ops[0]
	if op.Kind != patch.Replace {
		return nil, false
	}
	if !isPrimitive(op.Value) {
		return nil, false
	}
	return op.Path, true
}

func isPrimitive(v any) bool {
	switch v.(type) {
	case bool, float64, int, int64, string, nil:
		return true
	default:
		return false
	}
}

// evictStructural drops tracked paths invalidated by c's ops: a remove/move
// invalidates itself and any descendant, an array-index add/remove
// invalidates every tracked path under the parent array (indices may have
// shifted).
func evictStructural(c change.Change, tracked map[string]int, out []*change.Change) {
	for _, op := range c.Ops {
		switch op.Kind {
		case patch.Remove, patch.Move:
			evictUnder(tracked, out, op.Path)
			if op.Kind == patch.Move {
				evictUnder(tracked, out, op.From)
			}
		}
		if (op.Kind == patch.Add || op.Kind == patch.Remove) && isArrayIndexPath(op.Path) {
			if parent, _, ok := op.Path.Parent(); ok {
				evictUnderParent(tracked, out, parent)
			}
		}
	}
}

func evictUnder(tracked map[string]int, out []*change.Change, path patch.Path) {
	for key, idx := range tracked {
		if path.Under(patch.ParsePath(key)) {
			out[idx] = nil
			delete(tracked, key)
		}
	}
}

func evictUnderParent(tracked map[string]int, out []*change.Change, parent patch.Path) {
	for key, idx := range tracked {
		p := patch.ParsePath(key)
		if pp, _, ok := p.Parent(); ok && pp.Equal(parent) {
			out[idx] = nil
			delete(tracked, key)
		}
	}
}

func isArrayIndexPath(p patch.Path) bool {
	if len(p) == 0 {
		return false
	}
	last := p[len(p)-1]
	if last == "-" {
		return true
	}
	_, err := strconv.Atoi(last)
	return err == nil
}
