package pgwire

import "github.com/quaypg/pgwire/internal/wireval"

// ParamType names a parameter's declared wire encoding (spec.md §3). The
// zero value, ParamInferred, selects an encoding from the value's runtime
// type.
type ParamType int

const (
	ParamInferred ParamType = iota
	ParamInt16
	ParamInt32
	ParamInt64
	ParamSingle
	ParamDouble
	ParamBoolean
	ParamDateTime
	ParamDate
	ParamGuid
	ParamBinary
	ParamString
)

func (t ParamType) tag() wireval.TypeTag {
	return wireval.TypeTag(t)
}

// Parameter is a single named value bound to a Command (spec.md §3's
// "Parameter" entity, including its leading sigil in Name to match the SQL
// text it substitutes into — e.g. "@id").
type Parameter struct {
	Name  string
	Type  ParamType
	Value any
}

// ParameterCollection is the ordered, mutable parameter list a Command owns.
// Lookup by Name is case-sensitive, deliberately asymmetric with the
// case-insensitive substitution pass in internal/extquery (spec.md §6,
// §9 Open Questions — preserved rather than "fixed").
type ParameterCollection struct {
	items []*Parameter
}

// Add appends a new parameter and returns it for chaining.
func (c *ParameterCollection) Add(name string, value any) *Parameter {
	p := &Parameter{Name: name, Value: value}
	c.items = append(c.items, p)
	return p
}

// AddTyped appends a new parameter with an explicit declared type.
func (c *ParameterCollection) AddTyped(name string, value any, typ ParamType) *Parameter {
	p := &Parameter{Name: name, Type: typ, Value: value}
	c.items = append(c.items, p)
	return p
}

// Get returns the parameter with the given name (case-sensitive match) and
// whether it was found.
func (c *ParameterCollection) Get(name string) (*Parameter, bool) {
	for _, p := range c.items {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// Clear empties the collection.
func (c *ParameterCollection) Clear() {
	c.items = nil
}

// byName indexes the collection's current contents for substitution lookup,
// stripping the leading "@" sigil that Parameter.Name carries so names
// compare equal to the bare identifiers extquery.Substitute extracts.
func (c *ParameterCollection) byName() map[string]*Parameter {
	out := make(map[string]*Parameter, len(c.items))
	for _, p := range c.items {
		name := p.Name
		if len(name) > 0 && name[0] == '@' {
			name = name[1:]
		}
		out[name] = p
	}
	return out
}
