package ir

// Global is a module-level variable: a name, a pointer-to-T type, an
// alignment, and an initializer value, possibly a nested container.
type Global struct {
	Name        string
	Type        DataType // always TypePointer
	Alignment   int
	Initializer Value
}

// Module is a set of methods plus a list of globals. Modules and the
// Methods inside them are never copied or moved: pointers into them
// (Local, BasicBlock, Instruction identities) must remain stable for the
// lifetime of the compilation.
type Module struct {
	Methods []*Method
	Globals []*Global
}

// NewModule creates an empty module.
func NewModule() *Module { return &Module{} }

// AddMethod appends a new empty method and returns it.
func (m *Module) AddMethod(name string) *Method {
	method := NewMethod(name)
	m.Methods = append(m.Methods, method)
	return method
}

// AddGlobal appends a new global.
func (m *Module) AddGlobal(name string, elemType DataType, align int, init Value) *Global {
	g := &Global{Name: name, Type: Pointer(elemType, AddressGlobal, align), Alignment: align, Initializer: init}
	m.Globals = append(m.Globals, g)
	return g
}

// Kernels returns the subset of Methods flagged as kernel entry points.
func (m *Module) Kernels() []*Method {
	var out []*Method
	for _, method := range m.Methods {
		if method.IsKernel {
			out = append(out, method)
		}
	}
	return out
}

// FindMethod looks up a method by name, returning nil if absent. Used by
// MethodCall resolution.
func (m *Module) FindMethod(name string) *Method {
	for _, method := range m.Methods {
		if method.Name == name {
			return method
		}
	}
	return nil
}
