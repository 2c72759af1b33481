package tkdb

import (
	"fmt"
)

// DynamicFieldSetter is implemented by models that accept values for columns that have no property map
type DynamicFieldSetter interface {
	SetDynamicField(name string, value any)
}

// DynamicFields is an option for NewDataMap that enables assigning unmapped row columns to the target
//
// the target type must implement DynamicFieldSetter
type DynamicFields bool

// DataMap is an ordered collection of PropertyMap for a model type
type DataMap[T any] struct {
	maps       []*PropertyMap[T]
	byProperty map[string]*PropertyMap[T]
	byColumn   map[string]*PropertyMap[T]
	dynamic    bool
	exclusions DynamicExclusions
}

// NewDataMap creates a new data map
//
// options can be any of: DynamicFields, ExcludeDynamic, DynamicExclusion or func(column string, row Row) bool
func NewDataMap[T any](maps []*PropertyMap[T], options ...any) (*DataMap[T], error) {
	dm := &DataMap[T]{
		byProperty: map[string]*PropertyMap[T]{},
		byColumn:   map[string]*PropertyMap[T]{},
		exclusions: DynamicExclusions{ExcludeDynamic{"del"}},
	}
	for _, o := range options {
		if o != nil {
			switch option := o.(type) {
			case DynamicFields:
				dm.dynamic = bool(option)
			case DynamicExclusion:
				dm.exclusions = append(dm.exclusions, option)
			case func(string, Row) bool:
				dm.exclusions = append(dm.exclusions, ConditionalExclude(option))
			default:
				return nil, fmt.Errorf("unknown option type: %T", o)
			}
		}
	}
	if dm.dynamic {
		if _, ok := any(new(T)).(DynamicFieldSetter); !ok {
			return nil, configError(nil, "dynamic fields enabled but %T does not implement DynamicFieldSetter", new(T))
		}
	}
	for _, pm := range maps {
		dm.AddPropertyMap(pm)
	}
	return dm, nil
}

// MustNewDataMap is the same as NewDataMap, except it panics on error
func MustNewDataMap[T any](maps []*PropertyMap[T], options ...any) *DataMap[T] {
	dm, err := NewDataMap(maps, options...)
	if err != nil {
		panic(err)
	}
	return dm
}

// AddPropertyMap adds a property map (optionally setting its tag)
//
// a map whose property or column name is already registered replaces the earlier map, keeping its position
func (dm *DataMap[T]) AddPropertyMap(pm *PropertyMap[T], tag ...string) *DataMap[T] {
	if pm == nil {
		return dm
	}
	if len(tag) > 0 && tag[0] != "" {
		pm.SetTag(tag[0])
	}
	pos := -1
	for i := 0; i < len(dm.maps); i++ {
		existing := dm.maps[i]
		if existing.property != pm.property && existing.column != pm.column {
			continue
		}
		delete(dm.byProperty, existing.property)
		delete(dm.byColumn, existing.column)
		if pos == -1 {
			pos = i
			dm.maps[i] = pm
		} else {
			dm.maps = append(dm.maps[:i], dm.maps[i+1:]...)
			i--
		}
	}
	if pos == -1 {
		dm.maps = append(dm.maps, pm)
	}
	dm.byProperty[pm.property] = pm
	dm.byColumn[pm.column] = pm
	return dm
}

// PropertyMaps returns all property maps in order - or only those with the tag, if the tag is non-empty
func (dm *DataMap[T]) PropertyMaps(tag string) []*PropertyMap[T] {
	result := make([]*PropertyMap[T], 0, len(dm.maps))
	for _, pm := range dm.maps {
		if tag == "" || pm.tag == tag {
			result = append(result, pm)
		}
	}
	return result
}

// PropertyMap returns the property map for the property name (nil if not mapped)
func (dm *DataMap[T]) PropertyMap(property string) *PropertyMap[T] {
	return dm.byProperty[property]
}

// ColumnMap returns the property map for the column name (nil if not mapped)
func (dm *DataMap[T]) ColumnMap(column string) *PropertyMap[T] {
	return dm.byColumn[column]
}

// CurrentPropertyMap returns the first property map (with the tag, if non-empty)
func (dm *DataMap[T]) CurrentPropertyMap(tag string) *PropertyMap[T] {
	for _, pm := range dm.maps {
		if tag == "" || pm.tag == tag {
			return pm
		}
	}
	return nil
}

func (dm *DataMap[T]) Len() int {
	return len(dm.maps)
}

// LoadObject assigns the row values to the target
//
// columns whose property map carries ignoreTag are skipped, unmapped columns are assigned as dynamic fields
// (if enabled and not excluded)
func (dm *DataMap[T]) LoadObject(row Row, target *T, ignoreTag string) error {
	if target == nil {
		return &ConversionError{Err: ErrInvalidTarget}
	}
	if r, ok := any(target).(*Record); ok && *r == nil {
		*r = Record{}
	}
	for column, value := range row {
		if pm, ok := dm.byColumn[column]; ok {
			if ignoreTag != "" && pm.tag == ignoreTag {
				continue
			}
			if err := pm.SetColumnValue(target, value); err != nil {
				return err
			}
		} else if dm.dynamic && !dm.exclusions.Exclude(column, row) {
			if setter, ok := any(target).(DynamicFieldSetter); ok {
				setter.SetDynamicField(column, value)
			}
		}
	}
	return nil
}

// LoadArray writes the storage values of the source into row (a new Row if nil), keyed by column
//
// property maps carrying ignoreTag are skipped
func (dm *DataMap[T]) LoadArray(source *T, row Row, ignoreTag string) (Row, error) {
	if source == nil {
		return nil, &ConversionError{Err: ErrInvalidTarget}
	}
	if row == nil {
		row = make(Row, len(dm.maps))
	}
	for _, pm := range dm.maps {
		if ignoreTag != "" && pm.tag == ignoreTag {
			continue
		}
		v, err := pm.ColumnValue(source)
		if err != nil {
			return nil, err
		}
		row[pm.column] = v
	}
	return row, nil
}
