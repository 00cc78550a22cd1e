package patch

// Invert returns the op that undoes op's effect on state, where state is the
// document *before* op was applied. Combinable ops (@inc/@bit/@min/@max) and
// copy invert to a captured-value replace/remove rather than a symmetric
// combinable op, since the combination is not invertible in general (e.g.
// @min discards the old value entirely if it loses).
func Invert(state any, op Op) (Op, error) {
	switch op.Kind {
	case Add:
		return invertAdd(state, op)
	case Remove:
		return invertRemove(state, op)
	case Replace:
		return invertReplace(state, op)
	case Move:
		return Op{Kind: Move, From: op.Path, Path: op.From}, nil
	case Copy:
		return invertCopy(state, op)
	case Inc, Bit, Min, Max:
		return invertCombinable(state, op)
	case Txt:
		return invertTxt(state, op)
	default:
		return Op{}, errValidationf("invert: unknown op kind %q", op.Kind)
	}
}

func invertAdd(state any, op Op) (Op, error) {
	if !op.Path.IsRoot() && isArrayParent(state, op.Path) {
		return Op{Kind: Remove, Path: resolveArrayInsertPath(state, op.Path)}, nil
	}
	old, found := navigate(state, op.Path)
	if !found {
		return Op{Kind: Remove, Path: op.Path}, nil
	}
	return Op{Kind: Replace, Path: op.Path, Value: old}, nil
}

// resolveArrayInsertPath resolves a trailing "-" end-of-array marker to the
// concrete index the inserted element landed at, for inverting an array add
// or copy (apply.go's applyAdd always inserts into an array, never
// overwrites an element, so the inverse is always a remove at this index).
func resolveArrayInsertPath(state any, path Path) Path {
	idx, isDash, ok := path.ArrayIndex()
	if !ok || !isDash {
		return path
	}
	parent, _, _ := path.Parent()
	if arr, isArr := mustNavigate(state, parent).([]any); isArr {
		idx = len(arr)
	} else {
		idx = 0
	}
	return path.WithIndex(idx)
}

func mustNavigate(state any, path Path) any {
	v, _ := navigate(state, path)
	return v
}

func invertRemove(state any, op Op) (Op, error) {
	old, found := navigate(state, op.Path)
	if !found {
		return Op{}, errValidationf("invert remove at %s: path did not exist", op.Path)
	}
	return Op{Kind: Add, Path: op.Path, Value: deepCopyJSON(old)}, nil
}

func invertReplace(state any, op Op) (Op, error) {
	old, found := navigate(state, op.Path)
	if !found {
		return Op{}, errValidationf("invert replace at %s: path did not exist", op.Path)
	}
	return Op{Kind: Replace, Path: op.Path, Value: old}, nil
}

func invertCopy(state any, op Op) (Op, error) {
	if !op.Path.IsRoot() && isArrayParent(state, op.Path) {
		return Op{Kind: Remove, Path: resolveArrayInsertPath(state, op.Path)}, nil
	}
	old, found := navigate(state, op.Path)
	if !found {
		return Op{Kind: Remove, Path: op.Path}, nil
	}
	return Op{Kind: Replace, Path: op.Path, Value: old}, nil
}

func invertCombinable(state any, op Op) (Op, error) {
	old, found := navigate(state, op.Path)
	if !found {
		return Op{Kind: Remove, Path: op.Path}, nil
	}
	return Op{Kind: Replace, Path: op.Path, Value: old}, nil
}

func invertTxt(state any, op Op) (Op, error) {
	cur, found := navigate(state, op.Path)
	text := ""
	if found && cur != nil {
		s, ok := cur.(string)
		if !ok {
			return Op{}, errValidationf("invert @txt at %s: existing value is not a string (%T)", op.Path, cur)
		}
		text = s
	}
	inv := op.Delta.InvertDelta([]rune(text))
	return Op{Kind: Txt, Path: op.Path, Delta: inv}, nil
}
