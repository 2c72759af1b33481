package tkdb

import (
	"bytes"
	"crypto/rand"
	"encoding/gob"
	"errors"
	"fmt"
	"github.com/cristalhq/base64"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/sha3"
	"strings"
	"time"
)

// Field identifies the property and column a codec is converting for
type Field struct {
	Property string
	Column   string
}

// Codec converts a single value between its property (object side) and column (storage side) representations
type Codec interface {
	// ToColumnValue converts a property value to the value bound into a statement
	ToColumnValue(f Field, value any) (any, error)
	// ToPropertyValue converts a fetched column value to the value assigned to the property
	ToPropertyValue(f Field, value any) (any, error)
}

var (
	_ Codec = TextCodec{}
	_ Codec = IntegerCodec{}
	_ Codec = FloatCodec{}
	_ Codec = DecimalCodec{}
	_ Codec = NumberCodec{}
	_ Codec = BooleanCodec{}
	_ Codec = DateCodec{}
	_ Codec = JSONCodec[any]{}
	_ Codec = SerialCodec[any]{}
	_ Codec = EncryptedCodec{}
	_ Codec = StringListCodec{}
)

// TextCodec passes values through as strings
type TextCodec struct{}

func (TextCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return cast.ToStringE(value)
}

func (TextCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return "", nil
	}
	if s, err := cast.ToStringE(value); err == nil {
		return s, nil
	}
	return fmt.Sprint(value), nil
}

// IntegerCodec converts to int64 - nil stays nil and non-numeric values become 0
type IntegerCodec struct{}

func (IntegerCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toInt64(value), nil
}

func (IntegerCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return toInt64(value), nil
}

func toInt64(value any) int64 {
	if s, ok := value.(string); ok {
		value = strings.TrimSpace(s)
	}
	if i, err := cast.ToInt64E(value); err == nil {
		return i
	}
	if f, err := cast.ToFloat64E(value); err == nil {
		return int64(f)
	}
	return 0
}

// FloatCodec converts to float64 - nil stays nil and non-numeric values become 0
type FloatCodec struct{}

func (FloatCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return cast.ToFloat64(value), nil
}

func (FloatCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return cast.ToFloat64(value), nil
}

// DecimalCodec converts to decimal.Decimal - a nil column becomes decimal.Zero
type DecimalCodec struct{}

func (DecimalCodec) ToColumnValue(_ Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case decimal.Decimal:
		return v.String(), nil
	case *decimal.Decimal:
		if v == nil {
			return nil, nil
		}
		return v.String(), nil
	}
	return toDecimal(value).String(), nil
}

func (DecimalCodec) ToPropertyValue(_ Field, value any) (any, error) {
	return toDecimal(value), nil
}

func toDecimal(value any) decimal.Decimal {
	switch v := value.(type) {
	case decimal.Decimal:
		return v
	case float32:
		return decimal.NewFromFloat32(v)
	case float64:
		return decimal.NewFromFloat(v)
	case int64:
		return decimal.New(v, 0)
	case int:
		return decimal.New(int64(v), 0)
	case []byte:
		return toDecimal(string(v))
	case string:
		if d, err := decimal.NewFromString(strings.Trim(strings.TrimSpace(v), `"`)); err == nil {
			return d
		}
	}
	return decimal.Zero
}

// NumberCodec converts to int64 - nil (either side) becomes 0
type NumberCodec struct{}

func (NumberCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return int64(0), nil
	}
	return toInt64(value), nil
}

func (NumberCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return int64(0), nil
	}
	return toInt64(value), nil
}

// BooleanCodec converts to bool
//
// A column value is true if it equals the column name itself, is "yes" or "true" (case-insensitive)
// or is a non-zero integer. Properties are stored as 1 or 0
type BooleanCodec struct{}

func (BooleanCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	if b, err := cast.ToBoolE(value); err == nil && b {
		return 1, nil
	}
	return 0, nil
}

func (BooleanCodec) ToPropertyValue(f Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	return truthy(f.Column, value), nil
}

func truthy(name string, value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case []byte:
		return truthy(name, string(v))
	case string:
		s := strings.TrimSpace(v)
		if s == name || strings.EqualFold(s, "yes") || strings.EqualFold(s, "true") {
			return true
		}
		return toInt64(s) != 0
	}
	return toInt64(value) != 0
}

// DefaultDateFormat is the layout used by DateCodec when no Format is set
const DefaultDateFormat = "2006-01-02 15:04:05"

var zeroDates = map[string]bool{
	"0000-00-00 00:00:00": true,
	"0000-00-00":          true,
}

// DateCodec converts to time.Time using a Go layout (default DefaultDateFormat)
//
// zero dates are treated as nil
type DateCodec struct {
	Format   string
	Location *time.Location
}

func (c DateCodec) layout() string {
	if c.Format == "" {
		return DefaultDateFormat
	}
	return c.Format
}

func (c DateCodec) location() *time.Location {
	if c.Location == nil {
		return time.Local
	}
	return c.Location
}

func (c DateCodec) ToColumnValue(_ Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return v.In(c.location()).Format(c.layout()), nil
	case string:
		if v == "" || zeroDates[v] {
			return nil, nil
		}
		return v, nil
	}
	return nil, fmt.Errorf("type %T is not a date", value)
}

func (c DateCodec) ToPropertyValue(_ Field, value any) (any, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case time.Time:
		if v.IsZero() {
			return nil, nil
		}
		return v, nil
	case []byte:
		return c.ToPropertyValue(Field{}, string(v))
	case string:
		if v == "" || zeroDates[v] {
			return nil, nil
		}
		for _, layout := range []string{c.layout(), DefaultDateFormat, "2006-01-02", time.RFC3339Nano} {
			if t, err := time.ParseInLocation(layout, v, c.location()); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse date %q with layout %q", v, c.layout())
	}
	return nil, fmt.Errorf("type %T is not a date", value)
}

// JSONCodec stores values as JSON text
//
// empty arrays/objects are stored as an empty string, an empty column decodes to []any{} for JSONCodec[any]
// and to the zero value otherwise
type JSONCodec[V any] struct{}

func (JSONCodec[V]) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	switch string(data) {
	case "[]", "{}", "null":
		return "", nil
	}
	return string(data), nil
}

func (JSONCodec[V]) ToPropertyValue(_ Field, value any) (any, error) {
	var result V
	var data []byte
	switch v := value.(type) {
	case nil:
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return value, nil
	}
	if len(bytes.TrimSpace(data)) == 0 {
		if _, untyped := any(&result).(*any); untyped {
			return []any{}, nil
		}
		return result, nil
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SerialCodec stores values as base64 encoded gob
type SerialCodec[V any] struct{}

func (SerialCodec[V]) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	v, ok := value.(V)
	if !ok {
		return nil, fmt.Errorf("cannot serialize %T", value)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (SerialCodec[V]) ToPropertyValue(_ Field, value any) (any, error) {
	var result V
	s, _ := cast.ToStringE(value)
	if s == "" {
		return result, nil
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if err = gob.NewDecoder(bytes.NewReader(data)).Decode(&result); err != nil {
		return nil, err
	}
	return result, nil
}

// KeyFunc supplies the secret used by EncryptedCodec
type KeyFunc func() string

// StaticKey returns a KeyFunc for a fixed secret
func StaticKey(secret string) KeyFunc {
	return func() string {
		return secret
	}
}

const nonceSize = 24

// EncryptedCodec stores text encrypted with nacl/secretbox (key derived from the secret with SHA3-256)
//
// column values are base64(nonce || box) - empty strings are stored as-is
type EncryptedCodec struct {
	Key KeyFunc
}

func (c EncryptedCodec) key() (*[32]byte, error) {
	if c.Key == nil {
		return nil, ErrMissingKey
	}
	secret := c.Key()
	if secret == "" {
		return nil, ErrMissingKey
	}
	k := sha3.Sum256([]byte(secret))
	return &k, nil
}

func (c EncryptedCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	plain := cast.ToString(value)
	if plain == "" {
		return "", nil
	}
	key, err := c.key()
	if err != nil {
		return nil, err
	}
	var nonce [nonceSize]byte
	if _, err = rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

var errDecrypt = errors.New("cannot decrypt value")

func (c EncryptedCodec) ToPropertyValue(_ Field, value any) (any, error) {
	if value == nil {
		return "", nil
	}
	s := cast.ToString(value)
	if s == "" {
		return "", nil
	}
	key, err := c.key()
	if err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(data) < nonceSize {
		return nil, errDecrypt
	}
	var nonce [nonceSize]byte
	copy(nonce[:], data[:nonceSize])
	plain, ok := secretbox.Open(nil, data[nonceSize:], &nonce, key)
	if !ok {
		return nil, errDecrypt
	}
	return string(plain), nil
}

// StringListCodec stores a []string as separator joined text (default ",")
type StringListCodec struct {
	Separator string
}

func (c StringListCodec) separator() string {
	if c.Separator == "" {
		return ","
	}
	return c.Separator
}

func (c StringListCodec) ToColumnValue(_ Field, value any) (any, error) {
	if value == nil {
		return "", nil
	}
	list, err := cast.ToStringSliceE(value)
	if err != nil {
		return nil, err
	}
	return strings.Join(list, c.separator()), nil
}

func (c StringListCodec) ToPropertyValue(_ Field, value any) (any, error) {
	s := ""
	if value != nil {
		s = cast.ToString(value)
	}
	if s == "" {
		return []string{}, nil
	}
	parts := strings.Split(s, c.separator())
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts, nil
}
