package callback

import "fmt"

// MalformedError describes a delivery the processor could not act on.
type MalformedError struct {
	CheckoutRequestID string
	Reason            string
}

func (e *MalformedError) Error() string {
	if e.CheckoutRequestID == "" {
		return "malformed callback: " + e.Reason
	}

	return fmt.Sprintf("malformed callback for %s: %s", e.CheckoutRequestID, e.Reason)
}
