package patch

// Compose attempts to fold two sequential ops at the same path into one
// equivalent op. It returns ok=false when the pair cannot be folded (the
// caller keeps both ops in sequence). Compose never needs the document state:
// it only combines the ops' own payloads.
func Compose(a, b Op) (Op, bool, error) {
	if !a.Path.Equal(b.Path) {
		return Op{}, false, nil
	}
	switch {
	case a.Kind == Replace && b.Kind == Replace:
		return Op{Kind: Replace, Path: a.Path, Value: b.Value}, true, nil
	case a.Kind == Add && b.Kind == Replace:
		return Op{Kind: Add, Path: a.Path, Value: b.Value, Soft: a.Soft}, true, nil
	case (a.Kind == Add || a.Kind == Replace) && b.Kind == Remove:
		return Op{Kind: Remove, Path: a.Path}, true, nil
	case a.Kind == Remove && b.Kind == Add:
		return Op{Kind: Replace, Path: a.Path, Value: b.Value}, true, nil
	case a.Kind.combinable() && b.Kind.combinable() && a.Kind == b.Kind:
		return composeCombinable(a, b)
	case a.Kind == Txt && b.Kind == Txt:
		return Op{Kind: Txt, Path: a.Path, Delta: a.Delta.Compose(b.Delta)}, true, nil
	default:
		return Op{}, false, nil
	}
}

func composeCombinable(a, b Op) (Op, bool, error) {
	switch a.Kind {
	case Inc:
		av, err := asFloat64(a.Value)
		if err != nil {
			return Op{}, false, err
		}
		bv, err := asFloat64(b.Value)
		if err != nil {
			return Op{}, false, err
		}
		return Op{Kind: Inc, Path: a.Path, Value: av + bv}, true, nil
	case Bit:
		av, err := asUint64(a.Value)
		if err != nil {
			return Op{}, false, err
		}
		bv, err := asUint64(b.Value)
		if err != nil {
			return Op{}, false, err
		}
		return Op{Kind: Bit, Path: a.Path, Value: av ^ bv}, true, nil
	case Min, Max:
		// Folding two bounds of the same kind is sound without state: the
		// tighter bound subsumes the looser one.
		av, err := asFloat64(a.Value)
		if err != nil {
			return Op{}, false, err
		}
		bv, err := asFloat64(b.Value)
		if err != nil {
			return Op{}, false, err
		}
		if a.Kind == Min {
			if av < bv {
				return Op{Kind: Min, Path: a.Path, Value: av}, true, nil
			}
			return Op{Kind: Min, Path: a.Path, Value: bv}, true, nil
		}
		if av > bv {
			return Op{Kind: Max, Path: a.Path, Value: av}, true, nil
		}
		return Op{Kind: Max, Path: a.Path, Value: bv}, true, nil
	default:
		return Op{}, false, nil
	}
}
