package audit

import (
	"time"

	"github.com/raw-labs/mxcp/internal/types"
)

// SchemaID/SchemaVersion identify the wire shape of one audit log line so a
// consumer can evolve the format without breaking older records.
const (
	SchemaID      = "mxcp.audit"
	SchemaVersion = 1
)

// Status is the final per-request outcome recorded (spec §3.6).
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusDenied  Status = "denied"
)

// PolicyDecision summarizes what, if anything, the policy engine did to
// this request (spec §3.6).
type PolicyDecision string

const (
	PolicyNone   PolicyDecision = "none"
	PolicyAllow  PolicyDecision = "allow"
	PolicyDeny   PolicyDecision = "deny"
	PolicyFilter PolicyDecision = "filter"
	PolicyMask   PolicyDecision = "mask"
)

// Record is one line of the audit log (spec §3.6). Field names match the
// spec vocabulary directly rather than Go convention casing, since they are
// also the on-disk JSON keys read by operators and retention tooling.
type Record struct {
	SchemaID      string `json:"schema_id"`
	SchemaVersion int    `json:"schema_version"`

	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`

	EndpointKind string `json:"endpoint_kind"`
	EndpointID   string `json:"endpoint_id"`

	UserSubset map[string]any `json:"user_subset,omitempty"`

	DurationMS int64 `json:"duration_ms"`

	Status         Status         `json:"status"`
	PolicyDecision PolicyDecision `json:"policy_decision"`
	PolicyReason   string         `json:"policy_reason,omitempty"`

	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	InputRedacted         any      `json:"input_redacted,omitempty"`
	OutputRedactedSummary []string `json:"output_redacted_summary,omitempty"`

	TraceID string `json:"trace_id,omitempty"`
}

// Redact returns a deep copy of value with every node at a path spec marks
// Sensitive replaced by "[REDACTED]" (spec §4.8: "redaction is applied
// before serialization"). It mirrors the policy package's removeSensitive
// traversal shape but substitutes a literal marker instead of deleting,
// since audit input/output must still show that a field existed.
func Redact(value any, spec *types.TypeSpec) any {
	return redact(value, spec)
}

func redact(value any, spec *types.TypeSpec) any {
	if spec == nil {
		return value
	}
	if spec.Sensitive {
		return "[REDACTED]"
	}
	switch spec.Kind {
	case types.KindArray:
		arr, ok := value.([]any)
		if !ok || spec.Items == nil {
			return value
		}
		out := make([]any, len(arr))
		for i, elem := range arr {
			out[i] = redact(elem, spec.Items)
		}
		return out
	case types.KindObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(obj))
		for name, v := range obj {
			child, declared := spec.Properties[name]
			if !declared {
				out[name] = v
				continue
			}
			out[name] = redact(v, child)
		}
		return out
	default:
		return value
	}
}
