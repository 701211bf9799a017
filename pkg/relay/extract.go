package relay

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// ReplyKind tags the shape of a decoded webhook reply.
type ReplyKind int

const (
	ReplyScalar ReplyKind = iota
	ReplyObject
	ReplyArray
)

// Reply is a webhook response decoded into a tagged variant. Exactly
// one of the value fields is meaningful, selected by Kind.
type Reply struct {
	Kind   ReplyKind
	Scalar any
	Object map[string]any
	Array  []any
}

// responseKeys is the fixed priority order searched in object replies.
var responseKeys = []string{"response", "message", "output", "text", "reply"}

// systemMessages are workflow-engine status strings that must never be
// shown to the user. Matching is exact and case-sensitive.
var systemMessages = map[string]struct{}{
	"Workflow started":               {},
	"Workflow executed successfully": {},
}

// DecodeReply parses arbitrary webhook JSON into a Reply. Numbers are
// kept as json.Number so their string form survives untouched.
func DecodeReply(data []byte) (Reply, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return Reply{}, err
	}

	return wrap(v), nil
}

func wrap(v any) Reply {
	switch val := v.(type) {
	case []any:
		return Reply{Kind: ReplyArray, Array: val}
	case map[string]any:
		return Reply{Kind: ReplyObject, Object: val}
	default:
		return Reply{Kind: ReplyScalar, Scalar: val}
	}
}

// ExtractText normalizes a Reply into a display string. It never
// fails; an empty result means the webhook had nothing to say and the
// caller is expected to tell the user so.
func ExtractText(r Reply) string {
	var v any
	switch r.Kind {
	case ReplyArray:
		if len(r.Array) == 0 {
			return ""
		}
		v = r.Array[0]
	case ReplyObject:
		v = r.Object
	case ReplyScalar:
		v = r.Scalar
	}

	if obj, ok := v.(map[string]any); ok {
		for _, key := range responseKeys {
			if val, ok := obj[key]; ok {
				if s := stringify(val); s != "" {
					return s
				}
			}
		}
	}

	return stringify(v)
}

// IsSystemMessage reports whether text is a workflow status message
// that should be suppressed instead of delivered.
func IsSystemMessage(text string) bool {
	_, ok := systemMessages[text]
	return ok
}

func stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		// Nested objects/arrays: their JSON text is the best string form.
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
