package tkdb

// KeyTag is the tag used to mark the primary key property map
const KeyTag = "key"

// PropertyMap binds one model property to one storage column through a Codec
type PropertyMap[T any] struct {
	property string
	column   string
	tag      string
	codec    Codec
	accessor Accessor[T]
}

// NewPropertyMap creates a property map - the column name defaults to the property name
func NewPropertyMap[T any](property string, codec Codec, accessor Accessor[T], column ...string) *PropertyMap[T] {
	col := property
	if len(column) > 0 && column[0] != "" {
		col = column[0]
	}
	return &PropertyMap[T]{
		property: property,
		column:   col,
		codec:    codec,
		accessor: accessor,
	}
}

func (pm *PropertyMap[T]) Property() string {
	return pm.property
}

func (pm *PropertyMap[T]) Column() string {
	return pm.column
}

func (pm *PropertyMap[T]) Tag() string {
	return pm.tag
}

// SetTag sets the tag and returns the property map (for chaining)
func (pm *PropertyMap[T]) SetTag(tag string) *PropertyMap[T] {
	pm.tag = tag
	return pm
}

func (pm *PropertyMap[T]) Codec() Codec {
	return pm.codec
}

func (pm *PropertyMap[T]) field() Field {
	return Field{Property: pm.property, Column: pm.column}
}

func (pm *PropertyMap[T]) conversionError(err error) error {
	return &ConversionError{Property: pm.property, Column: pm.column, Err: err}
}

// PropertyValue returns the raw (unconverted) property value of the object
func (pm *PropertyMap[T]) PropertyValue(obj *T) any {
	return pm.accessor.Get(obj)
}

// ColumnValue returns the storage value of the object property
func (pm *PropertyMap[T]) ColumnValue(obj *T) (any, error) {
	v, err := pm.codec.ToColumnValue(pm.field(), pm.accessor.Get(obj))
	if err != nil {
		return nil, pm.conversionError(err)
	}
	return v, nil
}

// SetColumnValue converts a storage value and assigns it to the object property
func (pm *PropertyMap[T]) SetColumnValue(obj *T, value any) error {
	v, err := pm.codec.ToPropertyValue(pm.field(), value)
	if err == nil {
		err = pm.accessor.Set(obj, v)
	}
	if err != nil {
		return pm.conversionError(err)
	}
	return nil
}

// LoadProperty assigns the row value of the mapped column to the object property
//
// a row without the column leaves the property untouched
func (pm *PropertyMap[T]) LoadProperty(row Row, obj *T) error {
	value, ok := row[pm.column]
	if !ok {
		return nil
	}
	return pm.SetColumnValue(obj, value)
}

// Text creates a TextCodec property map
func Text[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, TextCodec{}, accessor, column...)
}

// Integer creates an IntegerCodec property map
func Integer[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, IntegerCodec{}, accessor, column...)
}

// Key creates an IntegerCodec property map tagged as the primary key
func Key[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, IntegerCodec{}, accessor, column...).SetTag(KeyTag)
}

func Float[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FloatCodec{}, accessor, column...)
}

func Decimal[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, DecimalCodec{}, accessor, column...)
}

func Number[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, NumberCodec{}, accessor, column...)
}

func Boolean[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, BooleanCodec{}, accessor, column...)
}

// Date creates a DateCodec property map using DefaultDateFormat
func Date[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, DateCodec{}, accessor, column...)
}

// JSON creates a JSONCodec property map - use JSON[T, any] for untyped structures
func JSON[T any, V any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, JSONCodec[V]{}, accessor, column...)
}

func Serial[T any, V any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, SerialCodec[V]{}, accessor, column...)
}

func Encrypted[T any](property string, accessor Accessor[T], key KeyFunc, column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, EncryptedCodec{Key: key}, accessor, column...)
}

func StringList[T any](property string, accessor Accessor[T], column ...string) *PropertyMap[T] {
	return NewPropertyMap(property, StringListCodec{}, accessor, column...)
}
