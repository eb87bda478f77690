// Package naming gives simulated objects a printable name.
package naming

import (
	"strings"
	"unicode"
)

// Named describes an object that has a name.
type Named interface {
	// Name returns the name of the object.
	Name() string
}

// NamedBase is a base implementation of Named.
type NamedBase struct {
	name string
}

// Name returns the name given at construction.
func (b *NamedBase) Name() string {
	return b.name
}

// MakeNamedBase creates a new NamedBase. It panics if the name is not valid.
func MakeNamedBase(name string) NamedBase {
	NameMustBeValid(name)
	return NamedBase{name: name}
}

// NameMustBeValid panics if the name is empty or contains white space. Names
// end up in log lines and table names, where spaces would split fields.
func NameMustBeValid(name string) {
	if name == "" {
		panic("name must not be empty")
	}

	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		panic("name " + name + " must not contain white space")
	}
}
