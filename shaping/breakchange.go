package shaping

import (
	"encoding/json"

	"github.com/relaydoc/core/change"
	"github.com/relaydoc/core/patch"
)

// BreakChange splits c into pieces that each serialize within maxBytes. A
// change already within budget is returned unsplit. Splitting a multi-op
// change packs ops greedily into groups; splitting a single oversized op is
// only defined for @txt (its delta can be cut at any retain/insert/delete
// boundary and, if needed, mid-insert by rune count) — any other single op
// that exceeds the budget on its own is emitted unsplit and over budget, with
// no warning logged. Pieces keep c's ID, BaseRev and metadata; the first
// piece keeps c.Rev and each later piece takes the next rev.
func BreakChange(c change.Change, maxBytes int) ([]change.Change, error) {
	if maxBytes <= 0 || sizeOf(c) <= maxBytes {
		return []change.Change{c}, nil
	}

	var opGroups [][]patch.Op
	if len(c.Ops) == 1 && c.Ops[0].Kind == patch.Txt {
		deltas := splitTextDelta(c.Ops[0].Delta, maxBytes)
		for _, d := range deltas {
			opGroups = append(opGroups, []patch.Op{{Kind: patch.Txt, Path: c.Ops[0].Path, Delta: d}})
		}
	} else if len(c.Ops) == 1 {
		// No safe split point for this op kind; emit unsplit over budget.
		return []change.Change{c}, nil
	} else {
		opGroups = packOps(c.Ops, maxBytes)
	}

	out := make([]change.Change, len(opGroups))
	for i, ops := range opGroups {
		out[i] = change.Change{
			ID:        c.ID,
			Rev:       c.Rev + int64(i),
			BaseRev:   c.BaseRev,
			Ops:       ops,
			CreatedAt: c.CreatedAt,
			Metadata:  c.Metadata,
			BatchID:   c.BatchID,
		}
	}
	return out, nil
}

func sizeOf(c change.Change) int {
	b, err := json.Marshal(c)
	if err != nil {
		return 0
	}
	return len(b)
}

func sizeOfOp(op patch.Op) int {
	b, err := json.Marshal(op)
	if err != nil {
		return 0
	}
	return len(b)
}

// packOps greedily groups ops so each group's serialized size stays under
// maxBytes, never splitting an individual op across groups.
func packOps(ops []patch.Op, maxBytes int) [][]patch.Op {
	var groups [][]patch.Op
	var cur []patch.Op
	curSize := 0
	for _, op := range ops {
		opSize := sizeOfOp(op)
		if len(cur) > 0 && curSize+opSize > maxBytes {
			groups = append(groups, cur)
			cur = nil
			curSize = 0
		}
		cur = append(cur, op)
		curSize += opSize
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// splitTextDelta cuts d into pieces whose serialized size stays under
// maxBytes. Each piece after the first is prefixed with a Retain equal to
// the cumulative written length of all prior pieces, so that applying the
// pieces in order to the evolving text reproduces applying d once to the
// original text.
func splitTextDelta(d patch.TextDelta, maxBytes int) []patch.TextDelta {
	var pieces []patch.TextDelta
	var cur patch.TextDelta
	curSize := 0
	writtenPos := 0

	startNewPiece := func() {
		if len(cur) > 0 {
			pieces = append(pieces, cur)
		}
		cur = nil
		curSize = 0
		if len(pieces) > 0 {
			lead := patch.DeltaOp{Retain: writtenPos}
			cur = append(cur, lead)
			curSize = sizeOfDeltaOp(lead)
		}
	}

	appendOp := func(op patch.DeltaOp) {
		opSize := sizeOfDeltaOp(op)
		if len(cur) > 0 && curSize+opSize > maxBytes {
			startNewPiece()
		}
		cur = append(cur, op)
		curSize += opSize
	}

	for _, op := range d {
		switch {
		case op.Retain > 0:
			appendOp(op)
			writtenPos += op.Retain
		case op.Delete > 0:
			appendOp(op)
		case op.Insert != "":
			text := []rune(op.Insert)
			if sizeOfDeltaOp(op) <= maxBytes {
				appendOp(op)
				writtenPos += len(text)
				continue
			}
			// Oversized single insert: split by rune count.
			chunkRunes := maxRuneChunk(maxBytes)
			for start := 0; start < len(text); start += chunkRunes {
				end := start + chunkRunes
				if end > len(text) {
					end = len(text)
				}
				chunk := patch.DeltaOp{Insert: string(text[start:end]), Attributes: op.Attributes}
				appendOp(chunk)
				writtenPos += end - start
			}
		}
	}
	if len(cur) > 0 {
		pieces = append(pieces, cur)
	}
	return pieces
}

func sizeOfDeltaOp(op patch.DeltaOp) int {
	b, err := json.Marshal(op)
	if err != nil {
		return 0
	}
	return len(b)
}

// maxRuneChunk estimates how many runes fit in maxBytes of JSON-encoded
// insert text, budgeting 4 bytes/rune worst case plus a fixed envelope.
func maxRuneChunk(maxBytes int) int {
	budget := maxBytes - 32
	if budget < 4 {
		budget = 4
	}
	n := budget / 4
	if n < 1 {
		n = 1
	}
	return n
}
