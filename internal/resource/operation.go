package resource

import "strings"

// Operation names one resource lifecycle query or action.
type Operation int

const (
	OpServiceAvailable Operation = iota
	OpKnownMethod
	OpRequestURITooLong
	OpAllowedMethods
	OpState
	OpBody
	OpProduces
	OpProducesFromBody
	OpStatus
	OpHeaders
	OpPost
	OpInterpretPostResult
	OpAuthorize
	OpAuthorization
	OpFormatEvent
	OpAllowOrigin
	OpLastModified
	numOperations
)

var operationNames = [numOperations]string{
	OpServiceAvailable:    "service-available?",
	OpKnownMethod:         "known-method?",
	OpRequestURITooLong:   "request-uri-too-long?",
	OpAllowedMethods:      "allowed-methods",
	OpState:               "state",
	OpBody:                "body",
	OpProduces:            "produces",
	OpProducesFromBody:    "produces-from-body",
	OpStatus:              "status",
	OpHeaders:             "headers",
	OpPost:                "post",
	OpInterpretPostResult: "interpret-post-result",
	OpAuthorize:           "authorize",
	OpAuthorization:       "authorization",
	OpFormatEvent:         "format-event",
	OpAllowOrigin:         "allow-origin",
	OpLastModified:        "last-modified",
}

func (o Operation) String() string {
	if o < 0 || o >= numOperations {
		return "unknown"
	}
	return operationNames[o]
}

// Operations lists every operation in declaration order.
func Operations() []Operation {
	out := make([]Operation, numOperations)
	for i := range out {
		out[i] = Operation(i)
	}
	return out
}

// ParseOperation looks an operation up by name. The trailing "?" of the
// predicate names is optional.
func ParseOperation(name string) (Operation, bool) {
	name = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(name)), "?")
	for i, n := range operationNames {
		if strings.TrimSuffix(n, "?") == name {
			return Operation(i), true
		}
	}
	return 0, false
}

// Registrable reports whether a resource may carry its own descriptor for o.
// The others work on values derived during the request: produces-from-body
// reads the body descriptor, interpret-post-result the post result,
// authorization the authorize result and format-event the items of a stream.
func (o Operation) Registrable() bool {
	switch o {
	case OpProducesFromBody, OpInterpretPostResult, OpAuthorization, OpFormatEvent:
		return false
	}
	return o >= 0 && o < numOperations
}
