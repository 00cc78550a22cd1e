package patch

import (
	"encoding/json"
)

// kindSymbol is the single-character tag used by the compact wire form.
var kindSymbol = map[Kind]byte{
	Add:     '+',
	Replace: '=',
	Remove:  '-',
	Move:    '>',
	Copy:    '&',
	Inc:     '^',
	Bit:     '~',
	Min:     'v',
	Max:     'V',
	Txt:     'T',
}

var symbolKind = func() map[byte]Kind {
	m := make(map[byte]Kind, len(kindSymbol))
	for k, v := range kindSymbol {
		m[v] = k
	}
	return m
}()

// rawOp mirrors Op's verbose JSON shape; used to avoid infinite recursion
// through Op.UnmarshalJSON.
type rawOp struct {
	Kind  Kind      `json:"op"`
	Path  Path      `json:"path"`
	From  Path      `json:"from,omitempty"`
	Value any       `json:"value,omitempty"`
	Delta TextDelta `json:"delta,omitempty"`
	Soft  bool      `json:"soft,omitempty"`
}

// UnmarshalJSON accepts both the verbose object form (`{"op":"add",...}`,
// the default produced by encoding/json via Op's struct tags) and the
// compact array form produced by CompactMarshal, so a server built against
// one encoding can read changes from a client built against the other.
func (o *Op) UnmarshalJSON(data []byte) error {
	trimmed := trimLeadingSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		op, err := decodeCompactOp(trimmed)
		if err != nil {
			return err
		}
		*o = op
		return nil
	}
	var r rawOp
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*o = Op{Kind: r.Kind, Path: r.Path, From: r.From, Value: r.Value, Delta: r.Delta, Soft: r.Soft}
	return nil
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// CompactMarshal encodes ops in the terse array-of-arrays wire format:
// each op becomes ["<symbol><path>", payload?, extra?] where payload is the
// op's value/from-path/delta depending on kind, and extra carries Soft for
// add ops. It halves the bytes of the verbose object form for large change
// batches sent over the wire.
func CompactMarshal(ops []Op) ([]byte, error) {
	out := make([]json.RawMessage, len(ops))
	for i, op := range ops {
		raw, err := encodeCompactOp(op)
		if err != nil {
			return nil, err
		}
		out[i] = raw
	}
	return json.Marshal(out)
}

// CompactUnmarshal decodes a batch produced by CompactMarshal. It also
// accepts a mix of compact and verbose elements, since Op.UnmarshalJSON
// handles both.
func CompactUnmarshal(data []byte) ([]Op, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, err
	}
	out := make([]Op, len(raws))
	for i, raw := range raws {
		var op Op
		if err := op.UnmarshalJSON(raw); err != nil {
			return nil, err
		}
		out[i] = op
	}
	return out, nil
}

func encodeCompactOp(op Op) (json.RawMessage, error) {
	sym, ok := kindSymbol[op.Kind]
	if !ok {
		return nil, errValidationf("compact encode: unknown op kind %q", op.Kind)
	}
	tag := string(sym) + op.Path.String()
	elems := []any{tag}
	switch op.Kind {
	case Add, Replace:
		elems = append(elems, op.Value)
		if op.Soft {
			elems = append(elems, true)
		}
	case Remove:
		// no payload
	case Move, Copy:
		elems = append(elems, op.From.String())
	case Inc, Bit, Min, Max:
		elems = append(elems, op.Value)
	case Txt:
		elems = append(elems, op.Delta)
	}
	return json.Marshal(elems)
}

func decodeCompactOp(data []byte) (Op, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(data, &elems); err != nil {
		return Op{}, err
	}
	if len(elems) == 0 {
		return Op{}, errValidationf("compact decode: empty op array")
	}
	var tag string
	if err := json.Unmarshal(elems[0], &tag); err != nil {
		return Op{}, err
	}
	if len(tag) == 0 {
		return Op{}, errValidationf("compact decode: empty op tag")
	}
	kind, ok := symbolKind[tag[0]]
	if !ok {
		return Op{}, errValidationf("compact decode: unknown op symbol %q", tag[0])
	}
	op := Op{Kind: kind, Path: ParsePath(tag[1:])}
	switch kind {
	case Add, Replace:
		if len(elems) > 1 {
			if err := json.Unmarshal(elems[1], &op.Value); err != nil {
				return Op{}, err
			}
		}
		if len(elems) > 2 {
			if err := json.Unmarshal(elems[2], &op.Soft); err != nil {
				return Op{}, err
			}
		}
	case Remove:
		// no payload
	case Move, Copy:
		if len(elems) < 2 {
			return Op{}, errValidationf("compact decode: %s missing from-path", kind)
		}
		var from string
		if err := json.Unmarshal(elems[1], &from); err != nil {
			return Op{}, err
		}
		op.From = ParsePath(from)
	case Inc, Bit, Min, Max:
		if len(elems) < 2 {
			return Op{}, errValidationf("compact decode: %s missing value", kind)
		}
		if err := json.Unmarshal(elems[1], &op.Value); err != nil {
			return Op{}, err
		}
	case Txt:
		if len(elems) < 2 {
			return Op{}, errValidationf("compact decode: @txt missing delta")
		}
		if err := json.Unmarshal(elems[1], &op.Delta); err != nil {
			return Op{}, err
		}
	}
	return op, nil
}
