package selectors

import (
	"fmt"
	"iter"
	"sort"

	"github.com/diwise/component-model/pkg/model/errors"
)

// Selector describes which nested attributes of which nested components an
// operation cares about. A selector is either a Bool (true selects everything
// below this point, false selects nothing) or a Map from attribute name to a
// nested selector. A normalized selector never stores explicit false entries;
// absence means false.
type Selector interface {
	sealedSelector()
}

type Bool bool

func (Bool) sealedSelector() {}

type Map map[string]Selector

func (Map) sealedSelector() {}

var All = Bool(true)
var None = Bool(false)

// Normalize converts loosely typed input (such as the result of unmarshalling
// JSON) into a Selector. nil maps to None, booleans pass through and maps are
// converted recursively with false entries dropped. Anything else is an error.
func Normalize(x any) (Selector, error) {
	switch v := x.(type) {
	case nil:
		return None, nil
	case bool:
		return Bool(v), nil
	case Bool:
		return v, nil
	case Map:
		return v, nil
	case Selector:
		return v, nil
	case map[string]any:
		m := Map{}
		for name, sub := range v {
			normalized, err := Normalize(sub)
			if err != nil {
				return nil, err
			}
			if !isNone(normalized) {
				m[name] = normalized
			}
		}
		return m, nil
	default:
		return nil, errors.NewInvalidSelectorError(fmt.Sprintf("selectors must be booleans or maps, not %T", x))
	}
}

func isNone(s Selector) bool {
	return s == nil || s == None
}

func norm(s Selector) Selector {
	if s == nil {
		return None
	}
	return s
}

// Get returns the sub selector stored under the given name. Booleans are
// absorbing and returned as they are.
func Get(s Selector, name string) Selector {
	if b, ok := s.(Bool); ok {
		return b
	}

	m, ok := s.(Map)
	if !ok {
		return None
	}

	return norm(m[name])
}

// Set returns a new selector where the given name maps to sub. Booleans are
// absorbing and returned unchanged. Setting a sub selector of false removes
// the entry.
func Set(s Selector, name string, sub Selector) Selector {
	if b, ok := s.(Bool); ok {
		return b
	}

	m, _ := s.(Map)
	result := make(Map, len(m)+1)
	for k, v := range m {
		result[k] = v
	}

	if isNone(sub) {
		delete(result, name)
	} else {
		result[name] = sub
	}

	return result
}

// Includes reports whether a selects at least everything that b selects.
// This is a partial order: reflexive, antisymmetric up to normalization
// and transitive.
func Includes(a, b Selector) bool {
	a, b = norm(a), norm(b)

	if a == All {
		return true
	}

	if isNone(b) {
		return true
	}

	if b == All {
		return false
	}

	am, aok := a.(Map)
	bm, bok := b.(Map)
	if !aok || !bok {
		return false
	}

	for name, bsub := range bm {
		bsub = norm(bsub)
		if isNone(bsub) {
			continue
		}
		if !Includes(norm(am[name]), bsub) {
			return false
		}
	}

	return true
}

// Equals reports whether a and b select exactly the same attributes.
func Equals(a, b Selector) bool {
	return Includes(a, b) && Includes(b, a)
}

// Merge returns the union of two selectors. True is absorbing and false is
// the identity. The operation is commutative and associative and never
// mutates its inputs.
func Merge(a, b Selector) Selector {
	a, b = norm(a), norm(b)

	if a == All || b == All {
		return All
	}

	if isNone(a) {
		return b
	}

	if isNone(b) {
		return a
	}

	am := a.(Map)
	bm := b.(Map)

	result := make(Map, len(am)+len(bm))
	for name, sub := range am {
		if !isNone(norm(sub)) {
			result[name] = norm(sub)
		}
	}

	for name, bsub := range bm {
		bsub = norm(bsub)
		if isNone(bsub) {
			continue
		}
		if asub, ok := result[name]; ok {
			result[name] = Merge(asub, bsub)
		} else {
			result[name] = bsub
		}
	}

	return result
}

// Intersect returns the intersection of two selectors. Overlapping keys whose
// children share no entries produce an empty map rather than false, since the
// key itself is still selected, only with empty detail.
func Intersect(a, b Selector) Selector {
	a, b = norm(a), norm(b)

	if isNone(a) || isNone(b) {
		return None
	}

	if a == All {
		return b
	}

	if b == All {
		return a
	}

	am := a.(Map)
	bm := b.(Map)

	result := Map{}
	for name, asub := range am {
		asub = norm(asub)
		if isNone(asub) {
			continue
		}

		bsub := norm(bm[name])
		if isNone(bsub) {
			continue
		}

		sub := Intersect(asub, bsub)
		if isNone(sub) {
			sub = Map{}
		}
		result[name] = sub
	}

	return result
}

// Remove subtracts b's selection from a. Removing a map shaped selector from
// true is an error since "everything minus a partial detail" has no
// representation. A key whose resulting sub selector is false is dropped,
// while a key that subtracts down to an empty map is retained, signalling
// that the key is still wanted but carries no detail.
func Remove(a, b Selector) (Selector, error) {
	a, b = norm(a), norm(b)

	if isNone(b) {
		return a, nil
	}

	if b == All {
		return None, nil
	}

	if isNone(a) {
		return None, nil
	}

	if a == All {
		return nil, errors.NewRemoveFromUniversalSelectorError(
			"cannot remove a map shaped selector from a selector that selects everything",
		)
	}

	am := a.(Map)

	result := Map{}
	for name, asub := range am {
		asub = norm(asub)
		if isNone(asub) {
			continue
		}

		sub, err := Remove(asub, Get(b, name))
		if err != nil {
			return nil, err
		}

		if !isNone(sub) {
			result[name] = sub
		}
	}

	return result, nil
}

// Iterate yields a (name, sub selector) pair for every entry whose normalized
// sub selector is not false. Booleans yield nothing. The sequence is finite,
// restartable and sorted by name for deterministic output.
func Iterate(s Selector) iter.Seq2[string, Selector] {
	return func(yield func(string, Selector) bool) {
		m, ok := s.(Map)
		if !ok {
			return
		}

		names := make([]string, 0, len(m))
		for name := range m {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			sub := norm(m[name])
			if isNone(sub) {
				continue
			}
			if !yield(name, sub) {
				return
			}
		}
	}
}

// Trim drops false entries from a map selector and collapses an empty result
// to false, since an empty map selects nothing at the top level.
func Trim(s Selector) Selector {
	m, ok := s.(Map)
	if !ok {
		return norm(s)
	}

	result := Map{}
	for name, sub := range m {
		sub = norm(sub)
		if !isNone(sub) {
			result[name] = sub
		}
	}

	if len(result) == 0 {
		return None
	}

	return result
}
