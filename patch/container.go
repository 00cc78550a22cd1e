package patch

import "strconv"

func shallowCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

func shallowCopySlice(s []any) []any {
	out := make([]any, len(s))
	copy(out, s)
	return out
}

// navigate walks state along path and returns the value there.
func navigate(state any, path Path) (value any, found bool) {
	cur := state
	for _, seg := range path {
		switch c := cur.(type) {
		case map[string]any:
			v, ok := c[seg]
			if !ok {
				return nil, false
			}
			cur = v
		case []any:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, false
			}
			cur = c[idx]
		default:
			return nil, false
		}
	}
	return cur, true
}

// isArrayParent reports whether path's parent container in state is an
// array (as opposed to an object or the document root container).
func isArrayParent(state any, path Path) bool {
	parent, _, ok := path.Parent()
	if !ok {
		return false
	}
	container, found := navigate(state, parent)
	if !found {
		return false
	}
	_, isArr := container.([]any)
	return isArr
}

// replaceAt walks state along path, invoking mutate on the value found at
// the end of path (nil if absent), and rebuilds every container on the way
// down with a shallow copy so that subtrees not on the path keep their
// original identity (copy-on-write).
func replaceAt(state any, path Path, mutate func(cur any, exists bool) (any, error)) (any, error) {
	if len(path) == 0 {
		_, existed := state, state != nil
		return mutate(state, existed)
	}
	seg := path[0]
	rest := path[1:]
	switch container := state.(type) {
	case map[string]any:
		child, exists := container[seg]
		newChild, err := replaceAt(child, rest, mutate)
		if err != nil {
			return nil, err
		}
		out := shallowCopyMap(container)
		_ = exists
		out[seg] = newChild
		return out, nil
	case []any:
		idx, err := strconv.Atoi(seg)
		if err != nil || idx < 0 || idx >= len(container) {
			return nil, errValidationf("path segment %q is not a valid index into array of length %d", seg, len(container))
		}
		newChild, err := replaceAt(container[idx], rest, mutate)
		if err != nil {
			return nil, err
		}
		out := shallowCopySlice(container)
		out[idx] = newChild
		return out, nil
	case nil:
		newChild, err := replaceAt(nil, rest, mutate)
		if err != nil {
			return nil, err
		}
		return map[string]any{seg: newChild}, nil
	default:
		return nil, errValidationf("cannot traverse into %T at segment %q", state, seg)
	}
}

// spliceAt is like replaceAt but the mutate callback receives the *parent*
// container of path's final segment (nil if the parent itself is absent),
// for operations (add/remove) that change the shape of the parent rather
// than just the leaf value.
func spliceAt(state any, path Path, mutate func(parent any, key string) (any, error)) (any, error) {
	parentPath, key, ok := path.Parent()
	if !ok {
		return nil, errValidationf("cannot splice at the document root")
	}
	return replaceAt(state, parentPath, func(parent any, _ bool) (any, error) {
		return mutate(parent, key)
	})
}
