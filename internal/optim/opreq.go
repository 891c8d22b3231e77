package optim

// OpReq is the write mode requested for an operator output.
type OpReq int

// Write modes.
const (
	// NullOp: the output is not needed; the call returns without touching
	// any buffer, state included.
	NullOp OpReq = iota
	// WriteTo: overwrite the output, which does not alias an input.
	WriteTo
	// WriteInplace: overwrite the output, which aliases the weight.
	// Required by every sparse path.
	WriteInplace
	// AddTo: accumulate the result into the output.
	AddTo
)

// String returns the write mode name.
func (r OpReq) String() string {
	switch r {
	case NullOp:
		return "null"
	case WriteTo:
		return "write"
	case WriteInplace:
		return "inplace"
	case AddTo:
		return "add"
	default:
		return "unknown"
	}
}

func (r OpReq) valid() bool {
	return r >= NullOp && r <= AddTo
}
