package native

// VariableInfo is a variable as declared by a model graph. Non-positive
// dims are dynamic.
type VariableInfo struct {
	Name  string
	DType DType
	Dims  []int64
}

// Entry is the resolved dtype and shape of one variable.
type Entry struct {
	DType DType
	Dims  []int32
}

// Profile is the engine side state shared by a variable profile table
// builder and the table it produces. Inputs and Outputs keep declaration
// order; a name may appear in both.
type Profile struct {
	Inputs  []string
	Outputs []string
	Entries map[string]Entry
}

func NewProfile() *Profile {
	return &Profile{Entries: make(map[string]Entry)}
}

// AddInput declares an input variable.
func (p *Profile) AddInput(name string, dtype DType, dims []int32) error {
	if !dtype.Valid() {
		return Errorf(StatusInvalidDType, "menoh invalid dtype error: %s", dtype)
	}
	if !ValidDims(dims) {
		return Errorf(StatusUnsupportedInputDims, "menoh unsupported input dims error: %s has dims %v", name, dims)
	}
	if p.IsInput(name) {
		return Errorf(StatusSameNamedVariableAlreadyExist, "menoh same named variable already exist error: %s", name)
	}
	p.Entries[name] = Entry{DType: dtype, Dims: append([]int32(nil), dims...)}
	p.Inputs = append(p.Inputs, name)
	return nil
}

// AddOutput declares an output variable by name.
func (p *Profile) AddOutput(name string) error {
	if p.IsOutput(name) {
		return Errorf(StatusSameNamedVariableAlreadyExist, "menoh same named variable already exist error: %s", name)
	}
	p.Outputs = append(p.Outputs, name)
	return nil
}

func (p *Profile) IsInput(name string) bool  { return contains(p.Inputs, name) }
func (p *Profile) IsOutput(name string) bool { return contains(p.Outputs, name) }

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// Lookup returns the entry for name or a VariableNotFound error.
func (p *Profile) Lookup(name string) (Entry, error) {
	e, ok := p.Entries[name]
	if !ok {
		return Entry{}, Errorf(StatusVariableNotFound, "menoh variable not found error: %s", name)
	}
	return e, nil
}

// Resolve checks the declarations against the graph variables and returns
// a table with every input and output entry filled in. Output shapes come
// from the graph, with a dynamic leading axis taken from the first input.
func (p *Profile) Resolve(inputs, outputs map[string]VariableInfo) (*Profile, error) {
	t := NewProfile()
	var batch int32
	for _, name := range p.Inputs {
		declared := p.Entries[name]
		v, ok := inputs[name]
		if !ok {
			return nil, Errorf(StatusVariableNotFound, "menoh variable not found error: %s", name)
		}
		if v.DType != declared.DType {
			return nil, Errorf(StatusInvalidDType, "menoh invalid dtype error: %s is %s, declared %s", name, v.DType, declared.DType)
		}
		if err := checkDims(name, v.Dims, declared.Dims); err != nil {
			return nil, err
		}
		if batch == 0 {
			batch = declared.Dims[0]
		}
		t.Inputs = append(t.Inputs, name)
		t.Entries[name] = declared
	}
	for _, name := range p.Outputs {
		t.Outputs = append(t.Outputs, name)
		if _, ok := t.Entries[name]; ok {
			continue
		}
		v, ok := outputs[name]
		if !ok {
			return nil, Errorf(StatusVariableNotFound, "menoh variable not found error: %s", name)
		}
		dims, err := ResolveDims(name, v.Dims, batch)
		if err != nil {
			return nil, err
		}
		t.Entries[name] = Entry{DType: v.DType, Dims: dims}
	}
	return t, nil
}

func checkDims(name string, graph []int64, declared []int32) error {
	if len(graph) != len(declared) {
		return Errorf(StatusDimensionMismatch,
			"menoh dimension mismatch error: %s has rank %d, declared %d", name, len(graph), len(declared))
	}
	for i, d := range graph {
		if d > 0 && int32(d) != declared[i] {
			return Errorf(StatusDimensionMismatch,
				"menoh dimension mismatch error: %s axis %d is %d, declared %d", name, i, d, declared[i])
		}
	}
	return nil
}
