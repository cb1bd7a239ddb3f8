package engine

// endReasons maps provider hangup causes onto the normalized vocabulary
// stored on call logs. Causes outside the table map to "unknown"; an
// unmapped cause is never an error.
var endReasons = map[string]string{
	"normal_clearing":          "customer_hangup",
	"originator_cancel":        "caller_cancelled",
	"call_rejected":            "rejected",
	"user_busy":                "busy",
	"no_answer":                "no_answer",
	"timeout":                  "timeout",
	"unallocated_number":       "invalid_number",
	"destination_out_of_order": "unreachable",
	"network_out_of_order":     "network_error",
}

// endReason normalizes a provider hangup cause.
func endReason(cause string) string {
	if r, ok := endReasons[cause]; ok {
		return r
	}
	return "unknown"
}
