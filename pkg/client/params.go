package client

import (
	"fmt"
	"sort"
	"strings"

	"github.com/diwise/component-model/pkg/model/selectors"
)

type RequestDecoratorFunc func([]string) []string

// Attributes restricts a retrieve or query operation to the named
// attributes. Nested attributes are addressed with dotted paths, such
// as "director.name".
func Attributes(attrs []string) RequestDecoratorFunc {
	return func(params []string) []string {
		return append(params, fmt.Sprintf("attrs=%s", strings.Join(attrs, ",")))
	}
}

// Selected restricts a retrieve or query operation to the attributes
// matched by the given selector.
func Selected(s selectors.Selector) RequestDecoratorFunc {
	return Attributes(selectorPaths("", s))
}

func selectorPaths(prefix string, s selectors.Selector) []string {
	switch sub := s.(type) {
	case selectors.Bool:
		if bool(sub) && prefix != "" {
			return []string{prefix}
		}
		return nil
	case selectors.Map:
		if len(sub) == 0 {
			if prefix != "" {
				return []string{prefix}
			}
			return nil
		}

		names := make([]string, 0, len(sub))
		for name := range sub {
			names = append(names, name)
		}
		sort.Strings(names)

		paths := make([]string, 0, len(sub))
		for _, name := range names {
			path := name
			if prefix != "" {
				path = prefix + "." + name
			}
			paths = append(paths, selectorPaths(path, sub[name])...)
		}

		return paths
	}

	return nil
}
