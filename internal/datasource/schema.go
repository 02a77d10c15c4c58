package datasource

import "fmt"

type valueKind int

const (
	kindNone valueKind = iota
	kindNumber
	kindText
	kindBool
	kindOther
)

func kindOf(v any) valueKind {
	switch v.(type) {
	case float64, float32, int, int32, int64:
		return kindNumber
	case string:
		return kindText
	case bool:
		return kindBool
	default:
		return kindOther
	}
}

func (k valueKind) attributeType() AttributeType {
	switch k {
	case kindNumber:
		return AttributeNumber
	case kindText:
		return AttributeText
	default:
		return AttributeOther
	}
}

type column struct {
	name     string
	declared AttributeType // zero when the file declares nothing
	pinned   bool          // geometry columns keep their declared type
	kind     valueKind
	mixed    bool
}

// schemaAccumulator infers one SpatialAttribute per column from the
// values observed across all features. Declared file schemas seed the
// column order and stand in for columns that never carry a value, but
// observed values win when the two disagree.
type schemaAccumulator struct {
	order   []string
	columns map[string]*column
}

func newSchemaAccumulator() *schemaAccumulator {
	return &schemaAccumulator{columns: make(map[string]*column)}
}

func (s *schemaAccumulator) column(name string) *column {
	c, ok := s.columns[name]
	if !ok {
		c = &column{name: name}
		s.columns[name] = c
		s.order = append(s.order, name)
	}
	return c
}

// Declare seeds the accumulator with a file-declared schema. Geometry
// columns are pinned; other declared types act as defaults until
// values are observed.
func (s *schemaAccumulator) Declare(attrs []SpatialAttribute) {
	for _, a := range attrs {
		c := s.column(a.Name)
		c.declared = a.Type
		if a.Type == AttributeGeometry {
			c.pinned = true
		}
	}
}

// Observe folds one feature's attribute values into the running
// inference. Null values mark column presence without influencing its
// type.
func (s *schemaAccumulator) Observe(props []Property) {
	for _, p := range props {
		c := s.column(p.Key)
		if c.pinned || p.Value == nil {
			continue
		}
		k := kindOf(p.Value)
		switch {
		case c.kind == kindNone:
			c.kind = k
		case c.kind != k:
			c.mixed = true
		}
	}
}

// Finalize resolves every column to a SpatialAttribute, in first-seen
// order, along with the issues produced by coercions.
func (s *schemaAccumulator) Finalize() ([]SpatialAttribute, []string) {
	attrs := make([]SpatialAttribute, 0, len(s.order))
	var issues []string

	for _, name := range s.order {
		c := s.columns[name]

		var typ AttributeType
		switch {
		case c.pinned:
			typ = c.declared
		case c.mixed:
			typ = AttributeText
			issues = append(issues, fmt.Sprintf("attribute %q has mixed value types, coerced to text", c.name))
		case c.kind == kindNone && c.declared != "":
			typ = c.declared
		case c.kind == kindNone:
			typ = AttributeOther
		default:
			typ = c.kind.attributeType()
			if c.declared != "" && typ != c.declared {
				issues = append(issues, fmt.Sprintf("attribute %q declared %s but its values are %s", c.name, c.declared, typ))
			}
		}

		attrs = append(attrs, SpatialAttribute{Name: c.name, Type: typ})
	}

	return attrs, issues
}
