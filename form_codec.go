package tkdb

import (
	"fmt"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"regexp"
	"strings"
	"time"
)

// Form codecs convert between model properties and submitted form values (column side is the form field)

var (
	_ Codec = FormTextCodec{}
	_ Codec = FormBooleanCodec{}
	_ Codec = FormDateCodec{}
	_ Codec = FormNumberCodec{}
	_ Codec = FormJSONCodec{}
	_ Codec = FormMinutesCodec{}
	_ Codec = FormMoneyCodec{}
)

type FormTextCodec struct{}

func (FormTextCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return cast.ToStringE(value)
}

func (FormTextCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return cast.ToStringE(value)
}

// FormBooleanCodec renders true as the property name (a checked checkbox value) and false as ""
type FormBooleanCodec struct{}

func (FormBooleanCodec) ToColumnValue(f Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if truthy(f.Property, value) {
		return f.Property, nil
	}
	return "", nil
}

func (FormBooleanCodec) ToPropertyValue(f Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case bool:
		return v, nil
	case string:
		if v == "" {
			return false, nil
		}
	}
	return truthy(f.Column, value), nil
}

// DefaultFormDateFormat is the layout used by FormDateCodec when no Format is set
const DefaultFormDateFormat = "02/01/2006"

type FormDateCodec struct {
	Format string
}

func (c FormDateCodec) layout() string {
	if c.Format == "" {
		return DefaultFormDateFormat
	}
	return c.Format
}

func (c FormDateCodec) ToColumnValue(_ Field, value any) (any, error) {
	if t, ok := value.(time.Time); ok {
		if t.IsZero() {
			return "", nil
		}
		return t.Format(c.layout()), nil
	}
	return value, nil
}

func (c FormDateCodec) ToPropertyValue(_ Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, nil
		}
		for _, layout := range []string{c.layout(), "02/01/2006 15:04", "2006-01-02"} {
			if t, err := time.ParseInLocation(layout, v, time.Local); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse date %q with layout %q", v, c.layout())
	}
	return nil, fmt.Errorf("type %T is not a date", value)
}

// FormNumberCodec converts to int64 - missing values become 0
type FormNumberCodec struct{}

func (FormNumberCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return int64(0), nil
	}
	return toInt64(value), nil
}

func (FormNumberCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return int64(0), nil
	}
	return toInt64(value), nil
}

// FormJSONCodec holds a JSON string property that is submitted as a structure
type FormJSONCodec struct{}

func (FormJSONCodec) ToColumnValue(_ Field, value any) (any, error) {
	s := cast.ToString(value)
	if s == "" {
		return value, nil
	}
	var result any
	if err := json.Unmarshal([]byte(s), &result); err != nil {
		return nil, err
	}
	return result, nil
}

func (FormJSONCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if s, ok := value.(string); ok && s == "" {
		return "", nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

var minutesPattern = regexp.MustCompile(`^([0-9]+):([0-9]+)$`)

// FormMinutesCodec converts an "h:mm" form value to and from a minutes property
type FormMinutesCodec struct{}

func (FormMinutesCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	minutes := toInt64(value)
	return fmt.Sprintf("%d:%02d", minutes/60, minutes%60), nil
}

func (FormMinutesCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	s := strings.TrimSpace(cast.ToString(value))
	if m := minutesPattern.FindStringSubmatch(s); m != nil {
		return toInt64(m[1])*60 + toInt64(m[2]), nil
	}
	return toInt64(s), nil
}

var moneyJunk = strings.NewReplacer("$", "", ",", "", " ", "")

// FormMoneyCodec converts a currency form value (e.g. "$1,234.50") to and from a decimal.Decimal property
type FormMoneyCodec struct{}

func (FormMoneyCodec) ToColumnValue(_ Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return v.StringFixed(2), nil
	}
	return value, nil
}

func (FormMoneyCodec) ToPropertyValue(_ Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return v, nil
	case string:
		s := moneyJunk.Replace(strings.TrimSpace(v))
		if s == "" {
			return decimal.Zero, nil
		}
		return decimal.NewFromString(s)
	}
	return toDecimal(value), nil
}

func FormText[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormTextCodec{}, accessor, field...)
}

func FormBoolean[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormBooleanCodec{}, accessor, field...)
}

func FormDate[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormDateCodec{}, accessor, field...)
}

func FormNumber[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormNumberCodec{}, accessor, field...)
}

func FormJSON[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormJSONCodec{}, accessor, field...)
}

func FormMinutes[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormMinutesCodec{}, accessor, field...)
}

func FormMoney[T any](property string, accessor Accessor[T], field ...string) *PropertyMap[T] {
	return NewPropertyMap(property, FormMoneyCodec{}, accessor, field...)
}
