// Package wire implements the transfer format for component instances. A
// serialized instance is a plain JSON object carrying its attribute values
// plus a small set of discriminator keys, so both sides of a connection can
// reconstruct typed instances without sharing memory.
package wire

// Discriminator keys recognized in serialized payloads.
const (
	KeyComponent = "__component"
	KeyNew       = "__new"
	KeyUndefined = "__undefined"
	KeyFunction  = "__function"
)

// TypeRefPrefix marks a string value as a reference to a component type
// rather than a plain string.
const TypeRefPrefix = "typeof "

// Function is the placeholder for function valued members, which never
// travel across the wire themselves.
type Function struct {
	Name string
}

// Undefined is the payload marking an explicitly unset value, used by
// partial updates to distinguish unset from untouched.
func Undefined() map[string]any {
	return map[string]any{KeyUndefined: true}
}

func isUndefined(payload map[string]any) bool {
	undefined, _ := payload[KeyUndefined].(bool)
	return undefined
}
