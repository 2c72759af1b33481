package tkdb

// DynamicExclusion decides whether an unmapped row column is kept off a dynamic field target
type DynamicExclusion interface {
	// Exclude should return true if the column is to be excluded
	Exclude(column string, row Row) bool
}

type DynamicExclusions []DynamicExclusion

func (xs DynamicExclusions) Exclude(column string, row Row) bool {
	for _, x := range xs {
		if x != nil && x.Exclude(column, row) {
			return true
		}
	}
	return false
}

// ExcludeDynamic is an option for NewDataMap that adds columns to the excluded set (which defaults to "del")
type ExcludeDynamic []string

var _ DynamicExclusion = ExcludeDynamic{}

func (xd ExcludeDynamic) Exclude(column string, _ Row) bool {
	for _, c := range xd {
		if c == column {
			return true
		}
	}
	return false
}

// ConditionalExclude is a func that can be used as a DynamicExclusion
type ConditionalExclude func(column string, row Row) bool

func (cx ConditionalExclude) Exclude(column string, row Row) bool {
	return cx(column, row)
}

// AllowedDynamic is a DynamicExclusion that only allows the named columns
//
// where the ConditionalExclude for a named column is non-nil, it decides
type AllowedDynamic map[string]ConditionalExclude

var _ DynamicExclusion = AllowedDynamic{}

func (ad AllowedDynamic) Exclude(column string, row Row) bool {
	if cx, ok := ad[column]; ok {
		if cx != nil {
			return cx(column, row)
		}
		return false
	}
	return true
}
