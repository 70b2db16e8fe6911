package connector

// DependencyType is the kind of a client-side dependency.
type DependencyType string

const (
	DependencyScript     DependencyType = "javascript"
	DependencyStylesheet DependencyType = "stylesheet"
)

// Dependency is a script or stylesheet the client must load before it can
// render a connector type.
type Dependency struct {
	Type DependencyType `json:"type"`
	URL  string         `json:"url"`
}

// Type describes a connector class. Types form a single-inheritance chain
// through Super.
type Type struct {
	// Name is the fully qualified class name given to the client.
	Name string

	// Super is the parent type, nil for a root type.
	Super *Type

	// Scripts are script URLs declared directly on this type.
	Scripts []string

	// Styles are stylesheet URLs declared directly on this type.
	Styles []string
}

// NewType returns a type with the given name and parent.
func NewType(name string, super *Type) *Type {
	return &Type{Name: name, Super: super}
}

// WithScripts appends script dependencies and returns t.
func (t *Type) WithScripts(urls ...string) *Type {
	t.Scripts = append(t.Scripts, urls...)
	return t
}

// WithStyles appends stylesheet dependencies and returns t.
func (t *Type) WithStyles(urls ...string) *Type {
	t.Styles = append(t.Styles, urls...)
	return t
}

// Lineage returns the inheritance chain starting at the root type and
// ending with t.
func (t *Type) Lineage() []*Type {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.Super {
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// Depth returns the number of ancestors of t.
func (t *Type) Depth() int {
	n := 0
	for cur := t.Super; cur != nil; cur = cur.Super {
		n++
	}
	return n
}

// Dependencies returns the dependencies declared directly on t, scripts
// before styles.
func (t *Type) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(t.Scripts)+len(t.Styles))
	for _, u := range t.Scripts {
		deps = append(deps, Dependency{Type: DependencyScript, URL: u})
	}
	for _, u := range t.Styles {
		deps = append(deps, Dependency{Type: DependencyStylesheet, URL: u})
	}
	return deps
}

// String returns the type name.
func (t *Type) String() string {
	if t == nil {
		return "<nil>"
	}
	return t.Name
}
