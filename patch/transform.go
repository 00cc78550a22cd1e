package patch

// Transform adjusts b so that applying a then Transform(state,a,b) has the
// same intent as applying b to state directly, given that a has already
// been committed ahead of it. state is the document as it stood *before* a
// was applied. The second return value reports whether b survives at all;
// false means b's effect has been entirely subsumed by a and it should be
// dropped from the op stream.
func Transform(state any, a, b Op) (Op, bool, error) {
	if a.Kind == Txt && b.Kind == Txt && a.Path.Equal(b.Path) {
		// Concurrent text edits at one path: shift b's positions past a's.
		out := b
		out.Delta = a.Delta.Transform(b.Delta, true)
		return out, true, nil
	}
	if a.Kind.combinable() || a.Kind == Txt {
		// Commutative ops, and @txt against anything but a @txt at the same
		// path, never change document shape: applying each exactly once, in
		// either order, already converges to the same combined value.
		return b, true, nil
	}
	if a.Path.Equal(b.Path) {
		return transformSamePath(state, a, b)
	}
	return transformDifferentPath(state, a, b)
}

func transformSamePath(state any, a, b Op) (Op, bool, error) {
	switch a.Kind {
	case Remove:
		switch b.Kind {
		case Remove:
			return Op{}, false, nil
		case Add:
			return b, true, nil
		case Replace:
			return Op{Kind: Add, Path: b.Path, Value: b.Value, Soft: b.Soft}, true, nil
		case Move, Copy:
			return Op{}, false, nil
		default:
			return b, true, nil
		}
	case Add, Replace:
		if a.Kind == Add && isArrayParent(state, a.Path) {
			idx, _, ok := a.Path.ArrayIndex()
			if ok {
				out := b
				out.Path = b.Path.WithIndex(idx + 1)
				return out, true, nil
			}
		}
		switch b.Kind {
		case Add, Replace:
			return Op{Kind: Replace, Path: b.Path, Value: b.Value}, true, nil
		default:
			return b, true, nil
		}
	case Move, Copy:
		return transformSamePath(state, Op{Kind: Add, Path: a.Path}, b)
	default:
		return b, true, nil
	}
}

func transformDifferentPath(state any, a, b Op) (Op, bool, error) {
	newPath, dropped := rewritePath(state, a, b.Path)
	if dropped {
		return Op{}, false, nil
	}
	out := b
	out.Path = newPath
	if (b.Kind == Move || b.Kind == Copy) && len(b.From) > 0 {
		newFrom, droppedFrom := rewritePath(state, a, b.From)
		if droppedFrom {
			return Op{}, false, nil
		}
		out.From = newFrom
	}
	return out, true, nil
}

// rewritePath computes how path p is affected by a's structural change to
// state, independent of what op b actually is. dropped reports that p's
// target no longer exists after a.
func rewritePath(state any, a Op, p Path) (Path, bool) {
	switch a.Kind {
	case Add:
		if isArrayParent(state, a.Path) {
			return rewriteForInsert(state, a.Path, p), false
		}
		return rewriteForObjectAdd(a, p)
	case Remove:
		return rewriteForRemove(state, a.Path, p)
	case Replace:
		if isEmptyValue(a.Value) {
			return p, false
		}
		if p.Equal(a.Path) || a.Path.StrictlyUnder(p) {
			return p, true
		}
		return p, false
	case Move:
		return rewriteForMove(state, a.From, a.Path, p)
	default:
		return p, false
	}
}

// rewriteForObjectAdd applies the "add on a non-array path with a non-empty
// value overwrites whatever was there" rule: anything at or under that path
// no longer has a meaningful base to apply against. A soft add of an empty
// object is the "create this container if it doesn't exist" idiom and never
// overwrites anything, so it is exempt regardless of whether it ends up
// applying.
func rewriteForObjectAdd(a Op, p Path) (Path, bool) {
	if a.Soft && isEmptyObject(a.Value) {
		return p, false
	}
	if isEmptyValue(a.Value) {
		return p, false
	}
	if p.Equal(a.Path) || a.Path.StrictlyUnder(p) {
		return p, true
	}
	return p, false
}

func rewriteForInsert(state any, insertPath, p Path) Path {
	parent, _, ok := insertPath.Parent()
	if !ok || !isArrayParent(state, insertPath) {
		return p
	}
	pParent, _, pOk := p.Parent()
	if !pOk || !pParent.Equal(parent) {
		return p
	}
	insertIdx, insertDash, insertOk := insertPath.ArrayIndex()
	if !insertOk || insertDash {
		return p
	}
	pIdx, pDash, pIdxOk := p.ArrayIndex()
	if !pIdxOk || pDash {
		return p
	}
	if pIdx >= insertIdx {
		return p.WithIndex(pIdx + 1)
	}
	return p
}

func rewriteForRemove(state any, removePath, p Path) (Path, bool) {
	if p.Equal(removePath) || removePath.StrictlyUnder(p) {
		return p, true
	}
	parent, _, ok := removePath.Parent()
	if !ok || !isArrayParent(state, removePath) {
		return p, false
	}
	pParent, _, pOk := p.Parent()
	if !pOk || !pParent.Equal(parent) {
		return p, false
	}
	removeIdx, removeDash, removeOk := removePath.ArrayIndex()
	if !removeOk || removeDash {
		return p, false
	}
	pIdx, pDash, pIdxOk := p.ArrayIndex()
	if !pIdxOk || pDash {
		return p, false
	}
	if pIdx > removeIdx {
		return p.WithIndex(pIdx - 1), false
	}
	if pIdx == removeIdx {
		return p, true
	}
	return p, false
}

func rewriteForMove(state any, from, to, p Path) (Path, bool) {
	if p.Equal(from) || from.StrictlyUnder(p) {
		suffix := p[len(from):]
		newP := make(Path, 0, len(to)+len(suffix))
		newP = append(newP, to...)
		newP = append(newP, suffix...)
		return newP, false
	}
	p1, dropped := rewriteForRemove(state, from, p)
	if dropped {
		return p, true
	}
	p2 := rewriteForInsert(state, to, p1)
	return p2, false
}
