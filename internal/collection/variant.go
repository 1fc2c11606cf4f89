package collection

import "time"

// Variant is the processing status shown for a record. It is computed once
// per record and rendering dispatches on it through a lookup table.
type Variant int

const (
	VariantProcessing Variant = iota
	VariantReady
	VariantFailed
	VariantTimedOut
)

func (v Variant) String() string {
	switch v {
	case VariantReady:
		return "ready"
	case VariantFailed:
		return "failed"
	case VariantTimedOut:
		return "timed_out"
	default:
		return "processing"
	}
}

// Classify derives the variant. A record still processing after timeout
// (measured from started) is reported as timed out; timeout <= 0 disables
// that check.
func Classify(processed, failed bool, started, now time.Time, timeout time.Duration) Variant {
	switch {
	case failed:
		return VariantFailed
	case processed:
		return VariantReady
	case timeout > 0 && !started.IsZero() && now.Sub(started) > timeout:
		return VariantTimedOut
	default:
		return VariantProcessing
	}
}
