package valuetypes

// IsIdentifierType reports whether the type may back an identifier attribute:
// identifiers are restricted to non optional strings and numbers.
func IsIdentifierType(vt ValueType) bool {
	switch vt.(type) {
	case stringType, numberType:
		return !vt.IsOptional()
	default:
		return false
	}
}

func IsString(vt ValueType) bool {
	_, ok := vt.(stringType)
	return ok
}

func IsNumber(vt ValueType) bool {
	_, ok := vt.(numberType)
	return ok
}

func IsDate(vt ValueType) bool {
	_, ok := vt.(dateType)
	return ok
}

func IsRegExp(vt ValueType) bool {
	_, ok := vt.(regexpType)
	return ok
}

// ElementType returns the element type of an array type.
func ElementType(vt ValueType) (ValueType, bool) {
	arr, ok := vt.(arrayType)
	if !ok {
		return nil, false
	}
	return arr.element, true
}

// ReferencedComponent returns the component type name of a component
// reference type.
func ReferencedComponent(vt ValueType) (string, bool) {
	ref, ok := vt.(componentRefType)
	if !ok {
		return "", false
	}
	return ref.componentName, true
}
