package order

// Result is the outcome of processing one order message.
type Result int

const (
	// ResultCompleted: seat committed, order COMPLETED.
	ResultCompleted Result = iota
	// ResultRejected: the catalog refused the seat, order FAILED.
	ResultRejected
	// ResultInvalid: the message identifiers are unusable, nothing was stored.
	ResultInvalid
	// ResultTransient: an infrastructure failure interrupted processing.
	ResultTransient
)

func (r Result) String() string {
	switch r {
	case ResultCompleted:
		return "completed"
	case ResultRejected:
		return "rejected"
	case ResultInvalid:
		return "invalid"
	case ResultTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Handled reports whether the message reached a final business outcome and
// must not be delivered again.
func (r Result) Handled() bool {
	return r != ResultTransient
}
