package tkdb

import (
	"fmt"
	"github.com/spf13/cast"
	"time"
)

// Accessor reads and writes a single property of a model without reflection
type Accessor[T any] struct {
	Get func(obj *T) any
	Set func(obj *T, value any) error
}

// Bind creates an Accessor for a value field
//
// setting nil assigns the zero value, numeric/string/bool values are coerced to the field type
func Bind[T any, V any](get func(obj *T) V, set func(obj *T, value V)) Accessor[T] {
	return Accessor[T]{
		Get: func(obj *T) any {
			return get(obj)
		},
		Set: func(obj *T, value any) error {
			if value == nil {
				var zero V
				set(obj, zero)
				return nil
			}
			v, err := coerce[V](value)
			if err != nil {
				return err
			}
			set(obj, v)
			return nil
		},
	}
}

// BindPtr creates an Accessor for a nullable (pointer) field
func BindPtr[T any, V any](get func(obj *T) *V, set func(obj *T, value *V)) Accessor[T] {
	return Accessor[T]{
		Get: func(obj *T) any {
			if p := get(obj); p != nil {
				return *p
			}
			return nil
		},
		Set: func(obj *T, value any) error {
			if value == nil {
				set(obj, nil)
				return nil
			}
			v, err := coerce[V](value)
			if err != nil {
				return err
			}
			set(obj, &v)
			return nil
		},
	}
}

// RecordField creates an Accessor for a key of a Record
func RecordField(name string) Accessor[Record] {
	return Accessor[Record]{
		Get: func(obj *Record) any {
			return (*obj)[name]
		},
		Set: func(obj *Record, value any) error {
			if *obj == nil {
				*obj = Record{}
			}
			(*obj)[name] = value
			return nil
		},
	}
}

func coerce[V any](value any) (result V, err error) {
	if v, ok := value.(V); ok {
		return v, nil
	}
	var converted any
	switch any(result).(type) {
	case string:
		converted, err = cast.ToStringE(value)
	case int:
		converted, err = cast.ToIntE(value)
	case int8:
		converted, err = cast.ToInt8E(value)
	case int16:
		converted, err = cast.ToInt16E(value)
	case int32:
		converted, err = cast.ToInt32E(value)
	case int64:
		converted, err = cast.ToInt64E(value)
	case uint:
		converted, err = cast.ToUintE(value)
	case uint32:
		converted, err = cast.ToUint32E(value)
	case uint64:
		converted, err = cast.ToUint64E(value)
	case float32:
		converted, err = cast.ToFloat32E(value)
	case float64:
		converted, err = cast.ToFloat64E(value)
	case bool:
		converted, err = cast.ToBoolE(value)
	case time.Time:
		converted, err = cast.ToTimeE(value)
	default:
		return result, fmt.Errorf("cannot assign %T to %T", value, result)
	}
	if err != nil {
		return result, err
	}
	return converted.(V), nil
}
