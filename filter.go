package tkdb

// Filter bundles the parts of a select built up by a caller: an optional select list,
// additional FROM (joins), WHERE, their bind arguments and a Tool
//
// Filter also carries the raw filter parameters it was created from
type Filter struct {
	Select    string
	from      string
	where     string
	fromArgs  []any
	whereArgs []any
	tool      *Tool
	params    map[string]any
}

// NewFilter creates a filter from parameters and a Tool (either may be nil)
func NewFilter(params map[string]any, tool *Tool) *Filter {
	f := &Filter{
		params: map[string]any{},
		tool:   tool,
	}
	for k, v := range params {
		f.params[k] = v
	}
	return f
}

func (f *Filter) Tool() *Tool {
	return f.tool
}

func (f *Filter) SetTool(tool *Tool) *Filter {
	f.tool = tool
	return f
}

func (f *Filter) From() string {
	return f.from
}

func (f *Filter) SetFrom(from string, args ...any) *Filter {
	f.from = from
	f.fromArgs = args
	return f
}

func (f *Filter) PrependFrom(from string, args ...any) *Filter {
	f.from = from + f.from
	f.fromArgs = append(append([]any{}, args...), f.fromArgs...)
	return f
}

func (f *Filter) AppendFrom(from string, args ...any) *Filter {
	f.from += from
	f.fromArgs = append(f.fromArgs, args...)
	return f
}

func (f *Filter) Where() string {
	return f.where
}

func (f *Filter) SetWhere(where string, args ...any) *Filter {
	f.where = where
	f.whereArgs = args
	return f
}

func (f *Filter) PrependWhere(where string, args ...any) *Filter {
	f.where = where + f.where
	f.whereArgs = append(append([]any{}, args...), f.whereArgs...)
	return f
}

// AppendWhere appends a where fragment together with the bind arguments of its placeholders
func (f *Filter) AppendWhere(where string, args ...any) *Filter {
	f.where += where
	f.whereArgs = append(f.whereArgs, args...)
	return f
}

// Args returns the bind arguments in statement order (from arguments, then where arguments)
func (f *Filter) Args() []any {
	return append(append([]any{}, f.fromArgs...), f.whereArgs...)
}

// Get returns a filter parameter (nil if not set)
func (f *Filter) Get(key string) any {
	return f.params[key]
}

// Has returns true if the filter parameter is set and not empty
func (f *Filter) Has(key string) bool {
	v, ok := f.params[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return s != ""
	}
	return true
}

func (f *Filter) Set(key string, value any) *Filter {
	f.params[key] = value
	return f
}

func (f *Filter) Remove(key string) *Filter {
	delete(f.params, key)
	return f
}

// Params returns a copy of the filter parameters
func (f *Filter) Params() map[string]any {
	result := make(map[string]any, len(f.params))
	for k, v := range f.params {
		result[k] = v
	}
	return result
}
