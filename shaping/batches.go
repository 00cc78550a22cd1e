package shaping

import (
	"github.com/google/uuid"

	"github.com/relaydoc/core/change"
)

// BreakIntoBatches packs changes into wire-sized batches under maxBytes,
// first running any oversize change through BreakChange. Every change
// within a multi-change batch shares a common BatchID.
func BreakIntoBatches(changes []change.Change, maxBytes int) ([]change.Change, error) {
	if maxBytes <= 0 {
		return changes, nil
	}

	var pieces []change.Change
	for _, c := range changes {
		broken, err := BreakChange(c, maxBytes)
		if err != nil {
			return nil, err
		}
		pieces = append(pieces, broken...)
	}

	var out []change.Change
	var batch []change.Change
	batchSize := 0

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if len(batch) > 1 {
			batchID := uuid.New().String()
			for i := range batch {
				batch[i].BatchID = batchID
			}
		}
		out = append(out, batch...)
		batch = nil
		batchSize = 0
	}

	for _, c := range pieces {
		s := sizeOf(c)
		if len(batch) > 0 && batchSize+s > maxBytes {
			flush()
		}
		batch = append(batch, c)
		batchSize += s
	}
	flush()

	return out, nil
}
