package core

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// timestampLayouts are tried in order when a timestamp arrives as text.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02",
}

// float64er matches engine decimal types that can report their float value.
type float64er interface {
	Float64() float64
}

// InferColumnType guesses the normalized type of a value whose column
// carries no usable type name.
func InferColumnType(v any) (ColumnType, error) {
	switch v := v.(type) {
	case nil:
		return TypeNull, nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, *big.Int:
		return TypeInteger, nil
	case float32, float64, float64er:
		return TypeFloat, nil
	case string, []byte, uuid.UUID, [16]byte:
		return TypeString, nil
	case bool:
		return TypeBoolean, nil
	case time.Time:
		return TypeTimestamp, nil
	default:
		if isUUIDArray(reflect.ValueOf(v)) {
			return TypeString, nil
		}
		if _, ok := asFloat64er(v); ok {
			return TypeFloat, nil
		}
		return TypeNull, fmt.Errorf("cannot infer type of %T", v)
	}
}

var uuidType = reflect.TypeOf(uuid.UUID{})

// asFloat64er also finds Float64 methods declared on the pointer type,
// as on duckdb.Decimal, which the driver hands out by value.
func asFloat64er(v any) (float64er, bool) {
	if f, ok := v.(float64er); ok {
		return f, true
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() == reflect.Pointer {
		return nil, false
	}
	p := reflect.New(rv.Type())
	p.Elem().Set(rv)
	f, ok := p.Interface().(float64er)
	return f, ok
}

// isUUIDArray matches named [16]byte types that drivers use for UUID columns.
func isUUIDArray(rv reflect.Value) bool {
	return rv.Kind() == reflect.Array && rv.Len() == 16 && rv.Type().Elem().Kind() == reflect.Uint8
}

// CoerceColumn converts a driver value for column c. It is Coerce plus
// handling that depends on the engine type, such as UUIDs delivered as raw bytes.
func CoerceColumn(c Column, v any) (any, error) {
	if b, ok := v.([]byte); ok && len(b) == 16 && isUUIDColumn(c.DatabaseType) {
		id, err := uuid.FromBytes(b)
		if err != nil {
			return nil, err
		}
		return id.String(), nil
	}
	return Coerce(c.Type, v)
}

func isUUIDColumn(databaseType string) bool {
	return strings.EqualFold(strings.TrimSpace(databaseType), "UUID")
}

// Coerce converts a driver value into the Go representation of t:
// int64, float64, string, bool, time.Time, or nil.
// Values that do not fit are rejected; integers never wrap.
func Coerce(t ColumnType, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch t {
	case TypeInteger:
		return coerceInteger(v)
	case TypeFloat:
		return coerceFloat(v)
	case TypeString:
		return coerceString(v)
	case TypeBoolean:
		return coerceBoolean(v)
	case TypeTimestamp:
		return coerceTimestamp(v)
	case TypeNull:
		return nil, fmt.Errorf("unexpected %T value in null column", v)
	}
	return nil, fmt.Errorf("unknown column type %v", t)
}

func coerceInteger(v any) (any, error) {
	switch v := v.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int8:
		return int64(v), nil
	case int16:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case uint8:
		return int64(v), nil
	case uint16:
		return int64(v), nil
	case uint32:
		return int64(v), nil
	case uint:
		if uint64(v) > math.MaxInt64 {
			return nil, fmt.Errorf("%d: %w", v, ErrOverflow)
		}
		return int64(v), nil
	case uint64:
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("%d: %w", v, ErrOverflow)
		}
		return int64(v), nil
	case *big.Int:
		if !v.IsInt64() {
			return nil, fmt.Errorf("%s: %w", v.String(), ErrOverflow)
		}
		return v.Int64(), nil
	case float32:
		return floatToInt(float64(v))
	case float64:
		return floatToInt(v)
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return parseInt(string(v))
	case string:
		return parseInt(v)
	}
	return nil, fmt.Errorf("cannot convert %T to integer", v)
}

func parseInt(s string) (any, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return nil, fmt.Errorf("%s: %w", s, ErrOverflow)
		}
		return nil, fmt.Errorf("cannot convert %q to integer", s)
	}
	return n, nil
}

func floatToInt(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, fmt.Errorf("%v is not an integer", f)
	}
	// float64(math.MaxInt64) rounds up to 2^63.
	if f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%v: %w", f, ErrOverflow)
	}
	return int64(f), nil
}

func coerceFloat(v any) (any, error) {
	switch v := v.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case *big.Int:
		f, _ := new(big.Float).SetInt(v).Float64()
		return f, nil
	case float64er:
		return v.Float64(), nil
	case []byte:
		return parseFloat(string(v))
	case string:
		return parseFloat(v)
	}
	if f, ok := asFloat64er(v); ok {
		return f.Float64(), nil
	}
	return nil, fmt.Errorf("cannot convert %T to float", v)
}

func parseFloat(s string) (any, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil, fmt.Errorf("cannot convert %q to float", s)
	}
	return f, nil
}

func coerceString(v any) (any, error) {
	switch v := v.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case uuid.UUID:
		return v.String(), nil
	case [16]byte:
		return uuid.UUID(v).String(), nil
	case time.Time:
		return v.Format(time.RFC3339Nano), nil
	case bool:
		return strconv.FormatBool(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case fmt.Stringer:
		return v.String(), nil
	}
	rv := reflect.ValueOf(v)
	if isUUIDArray(rv) {
		return rv.Convert(uuidType).Interface().(uuid.UUID).String(), nil
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		// JSON columns arrive decoded; keep them as their JSON text.
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("cannot convert %T to string: %w", v, err)
		}
		return string(b), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Uint,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Float32:
		return fmt.Sprint(v), nil
	}
	return nil, fmt.Errorf("cannot convert %T to string", v)
}

func coerceBoolean(v any) (any, error) {
	switch v := v.(type) {
	case bool:
		return v, nil
	case int64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case int32:
		return v != 0, nil
	case int8:
		return v != 0, nil
	case uint8:
		return v != 0, nil
	case []byte:
		return parseBool(string(v))
	case string:
		return parseBool(v)
	}
	return nil, fmt.Errorf("cannot convert %T to boolean", v)
}

func parseBool(s string) (any, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "t", "true", "1", "y", "yes":
		return true, nil
	case "f", "false", "0", "n", "no":
		return false, nil
	}
	return nil, fmt.Errorf("cannot convert %q to boolean", s)
}

func coerceTimestamp(v any) (any, error) {
	switch v := v.(type) {
	case time.Time:
		return v, nil
	case int64:
		return time.Unix(v, 0).UTC(), nil
	case []byte:
		return ParseTimestamp(string(v))
	case string:
		return ParseTimestamp(v)
	}
	return nil, fmt.Errorf("cannot convert %T to timestamp", v)
}

// ParseTimestamp parses the textual timestamp forms emitted by the supported engines.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as timestamp", s)
}
