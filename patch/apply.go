package patch

import "strconv"

// StrictMode controls how Apply reacts to a failing op.
type StrictMode bool

const (
	Strict    StrictMode = true
	NonStrict StrictMode = false
)

// Apply applies op to state and returns the new state. In Strict mode a
// failing op returns an error; in NonStrict mode the op is skipped and the
// original state is returned unchanged with a nil error.
func Apply(state any, op Op, mode StrictMode) (any, error) {
	out, err := applyOne(state, op)
	if err != nil {
		if mode == Strict {
			return nil, err
		}
		return state, nil
	}
	return out, nil
}

// ApplyAll applies a sequence of ops in order.
func ApplyAll(state any, ops []Op, mode StrictMode) (any, error) {
	cur := state
	for _, op := range ops {
		next, err := Apply(cur, op, mode)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return cur, nil
}

func applyOne(state any, op Op) (any, error) {
	switch op.Kind {
	case Add:
		return applyAdd(state, op.Path, op.Value, op.Soft)
	case Remove:
		return applyRemove(state, op.Path)
	case Replace:
		return applyReplace(state, op.Path, op.Value)
	case Move:
		return applyMove(state, op.From, op.Path)
	case Copy:
		return applyCopy(state, op.From, op.Path)
	case Inc, Bit, Min, Max:
		return applyCombinable(state, op)
	case Txt:
		return applyTxt(state, op.Path, op.Delta)
	default:
		return nil, errValidationf("unknown op kind %q", op.Kind)
	}
}

func applyAdd(state any, path Path, value any, soft bool) (any, error) {
	if value == nil {
		return nil, errValidationf("add at %s: value is undefined", path)
	}
	if path.IsRoot() {
		if soft && state != nil && !isEmptyValue(state) {
			return state, nil
		}
		return value, nil
	}
	return spliceAt(state, path, func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			if soft {
				if existing, ok := p[key]; ok && !isEmptyValue(existing) {
					return p, nil
				}
			}
			out := shallowCopyMap(p)
			out[key] = value
			return out, nil
		case []any:
			idx, atEnd, err := arrayInsertIndex(key, len(p))
			if err != nil {
				return nil, err
			}
			if atEnd {
				idx = len(p)
			}
			out := make([]any, 0, len(p)+1)
			out = append(out, p[:idx]...)
			out = append(out, value)
			out = append(out, p[idx:]...)
			return out, nil
		case nil:
			if soft {
				return map[string]any{key: value}, nil
			}
			return map[string]any{key: value}, nil
		default:
			return nil, errValidationf("add at %s: parent is not a container (%T)", path, parent)
		}
	})
}

func applyRemove(state any, path Path) (any, error) {
	if path.IsRoot() {
		return nil, nil
	}
	return spliceAt(state, path, func(parent any, key string) (any, error) {
		switch p := parent.(type) {
		case map[string]any:
			if _, ok := p[key]; !ok {
				return nil, errValidationf("remove at %s: key %q does not exist", path, key)
			}
			out := shallowCopyMap(p)
			delete(out, key)
			return out, nil
		case []any:
			idx, err := strconv.Atoi(key)
			if err != nil || idx < 0 || idx >= len(p) {
				return nil, errValidationf("remove at %s: invalid array index %q", path, key)
			}
			out := make([]any, 0, len(p)-1)
			out = append(out, p[:idx]...)
			out = append(out, p[idx+1:]...)
			return out, nil
		default:
			return nil, errValidationf("remove at %s: parent is not a container (%T)", path, parent)
		}
	})
}

func applyReplace(state any, path Path, value any) (any, error) {
	if value == nil {
		return nil, errValidationf("replace at %s: value is undefined", path)
	}
	return replaceAt(state, path, func(cur any, exists bool) (any, error) {
		if !exists && !path.IsRoot() {
			return nil, errValidationf("replace at %s: path does not exist", path)
		}
		return value, nil
	})
}

func applyMove(state any, from, to Path) (any, error) {
	if from.Under(to) && to.Under(from) {
		return state, nil // from == to, no-op
	}
	value, found := navigate(state, from)
	if !found {
		return nil, errValidationf("move from %s: path does not exist", from)
	}
	afterRemove, err := applyRemove(state, from)
	if err != nil {
		return nil, err
	}
	return applyAdd(afterRemove, to, value, false)
}

func applyCopy(state any, from, to Path) (any, error) {
	value, found := navigate(state, from)
	if !found {
		return nil, errValidationf("copy from %s: path does not exist", from)
	}
	return applyAdd(state, to, deepCopyJSON(value), false)
}

func applyCombinable(state any, op Op) (any, error) {
	return replaceAt(state, op.Path, func(cur any, exists bool) (any, error) {
		switch op.Kind {
		case Inc:
			n, err := asFloat64(op.Value)
			if err != nil {
				return nil, err
			}
			base := 0.0
			if exists && cur != nil {
				base, err = asFloat64(cur)
				if err != nil {
					return nil, err
				}
			}
			return base + n, nil
		case Bit:
			mask, err := asUint64(op.Value)
			if err != nil {
				return nil, err
			}
			base := uint64(0)
			if exists && cur != nil {
				base, err = asUint64(cur)
				if err != nil {
					return nil, err
				}
			}
			return base ^ mask, nil
		case Min, Max:
			n, err := asFloat64(op.Value)
			if err != nil {
				return nil, err
			}
			if !exists || cur == nil {
				return n, nil
			}
			base, err := asFloat64(cur)
			if err != nil {
				return nil, err
			}
			if op.Kind == Min {
				if n < base {
					return n, nil
				}
				return base, nil
			}
			if n > base {
				return n, nil
			}
			return base, nil
		default:
			return nil, errValidationf("not a combinable op: %s", op.Kind)
		}
	})
}

func applyTxt(state any, path Path, delta TextDelta) (any, error) {
	return replaceAt(state, path, func(cur any, exists bool) (any, error) {
		text := ""
		if exists && cur != nil {
			s, ok := cur.(string)
			if !ok {
				return nil, errValidationf("@txt at %s: existing value is not a string (%T)", path, cur)
			}
			text = s
		}
		out, err := delta.Apply([]rune(text))
		if err != nil {
			return nil, err
		}
		return string(out), nil
	})
}

// arrayInsertIndex parses an array-add key ("-" or a numeric index) and
// validates it against the current length.
func arrayInsertIndex(key string, length int) (index int, atEnd bool, err error) {
	if key == "-" {
		return length, true, nil
	}
	idx, convErr := strconv.Atoi(key)
	if convErr != nil || idx < 0 || idx > length {
		return 0, false, errValidationf("invalid array insert index %q for length %d", key, length)
	}
	return idx, false, nil
}

// deepCopyJSON copies a JSON-shaped value (maps/slices/scalars) so that a
// copy op never lets two paths in the document alias the same container.
func deepCopyJSON(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyJSON(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = deepCopyJSON(val)
		}
		return out
	default:
		return t
	}
}
