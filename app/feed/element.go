package feed

import (
	"fmt"
	"strings"
)

type ElementKind int

const (
	KindElement ElementKind = iota
	KindNamespacedElement
	KindAttribute
)

func (k ElementKind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindNamespacedElement:
		return "namespaced_element"
	case KindAttribute:
		return "attribute"
	}
	return "unknown"
}

// ElementSpec addresses an extra value of a feed entry. It is written as
// "element", "namespace:element" or "element@attribute" where element may
// itself carry a namespace prefix.
type ElementSpec struct {
	Kind      ElementKind
	Namespace string
	Name      string
	Attr      string
	raw       string
}

// Property is the property bag key the extracted value is stored under.
func (s ElementSpec) Property() string {
	return s.raw
}

func (s ElementSpec) String() string {
	return s.raw
}

func ParseElementSpec(value string) (ElementSpec, error) {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return ElementSpec{}, fmt.Errorf("element specifier is empty")
	}

	spec := ElementSpec{raw: raw}

	element := raw
	if name, attr, ok := strings.Cut(raw, "@"); ok {
		if attr == "" || strings.ContainsAny(attr, "@: ") {
			return ElementSpec{}, fmt.Errorf("invalid attribute in element specifier %q", raw)
		}
		spec.Kind = KindAttribute
		spec.Attr = attr
		element = name
	}

	if ns, name, ok := strings.Cut(element, ":"); ok {
		if ns == "" || name == "" || strings.Contains(name, ":") {
			return ElementSpec{}, fmt.Errorf("invalid namespace in element specifier %q", raw)
		}
		spec.Namespace = ns
		spec.Name = name
		if spec.Kind != KindAttribute {
			spec.Kind = KindNamespacedElement
		}
	} else {
		spec.Name = element
	}

	if spec.Name == "" || strings.ContainsAny(spec.Name, " \t") {
		return ElementSpec{}, fmt.Errorf("invalid element name in element specifier %q", raw)
	}

	return spec, nil
}

// ParseElementSpecs parses every non-blank line. Invalid lines are returned
// as errors alongside the valid specs.
func ParseElementSpecs(lines []string) ([]ElementSpec, []error) {
	var (
		specs []ElementSpec
		errs  []error
	)
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		spec, err := ParseElementSpec(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		specs = append(specs, spec)
	}
	return specs, errs
}
