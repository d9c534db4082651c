package core

import (
	"fmt"
	"strings"
)

// ColumnType is the normalized semantic type of a result column.
type ColumnType int

// Normalized column types.
const (
	TypeNull ColumnType = iota
	TypeInteger
	TypeFloat
	TypeString
	TypeBoolean
	TypeTimestamp
)

var columnTypeNames = [...]string{
	TypeNull:      "null",
	TypeInteger:   "integer",
	TypeFloat:     "float",
	TypeString:    "string",
	TypeBoolean:   "boolean",
	TypeTimestamp: "timestamp",
}

func (t ColumnType) String() string {
	if t < 0 || int(t) >= len(columnTypeNames) {
		return fmt.Sprintf("ColumnType(%d)", int(t))
	}
	return columnTypeNames[t]
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(b []byte) error {
	for i, name := range columnTypeNames {
		if name == string(b) {
			*t = ColumnType(i)
			return nil
		}
	}
	return fmt.Errorf("unknown column type %q", b)
}

// Column describes one column of a TabularResult.
type Column struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	// DatabaseType is the engine's type name, kept for diagnostics.
	DatabaseType string `json:"database_type,omitempty"`
}

var databaseTypes = map[string]ColumnType{
	"NULL": TypeNull,

	"TINYINT": TypeInteger, "SMALLINT": TypeInteger, "MEDIUMINT": TypeInteger,
	"INT": TypeInteger, "INTEGER": TypeInteger, "BIGINT": TypeInteger, "HUGEINT": TypeInteger,
	"UTINYINT": TypeInteger, "USMALLINT": TypeInteger, "UINTEGER": TypeInteger,
	"UBIGINT": TypeInteger, "UHUGEINT": TypeInteger,
	"INT1": TypeInteger, "INT2": TypeInteger, "INT4": TypeInteger, "INT8": TypeInteger,
	"SMALLSERIAL": TypeInteger, "SERIAL": TypeInteger, "BIGSERIAL": TypeInteger,
	"YEAR": TypeInteger, "LONG": TypeInteger, "SHORT": TypeInteger,

	"FLOAT": TypeFloat, "FLOAT4": TypeFloat, "FLOAT8": TypeFloat, "REAL": TypeFloat,
	"DOUBLE": TypeFloat, "DOUBLE PRECISION": TypeFloat,
	"DECIMAL": TypeFloat, "NUMERIC": TypeFloat, "NUMBER": TypeFloat,

	"VARCHAR": TypeString, "CHAR": TypeString, "BPCHAR": TypeString, "TEXT": TypeString,
	"STRING": TypeString, "NAME": TypeString, "CHARACTER": TypeString,
	"CHARACTER VARYING": TypeString, "NVARCHAR": TypeString, "NCHAR": TypeString,
	"CITEXT": TypeString, "TINYTEXT": TypeString, "MEDIUMTEXT": TypeString, "LONGTEXT": TypeString,
	"CLOB": TypeString, "UUID": TypeString, "ENUM": TypeString, "SET": TypeString,
	"JSON": TypeString, "JSONB": TypeString, "INET": TypeString, "CIDR": TypeString,
	"MACADDR": TypeString, "XML": TypeString,

	"BOOL": TypeBoolean, "BOOLEAN": TypeBoolean, "LOGICAL": TypeBoolean,

	"TIMESTAMP": TypeTimestamp, "TIMESTAMPTZ": TypeTimestamp, "DATETIME": TypeTimestamp,
	"DATE": TypeTimestamp, "TIMESTAMP_S": TypeTimestamp, "TIMESTAMP_MS": TypeTimestamp,
	"TIMESTAMP_NS": TypeTimestamp, "TIMESTAMP WITH TIME ZONE": TypeTimestamp,
	"TIMESTAMP WITHOUT TIME ZONE": TypeTimestamp,
}

// ColumnTypeFromDatabase maps an engine type name to its normalized type.
// Modifiers such as "(18,3)" and "UNSIGNED" are ignored. Nested, binary and
// interval types are rejected with an *UnsupportedTypeError.
func ColumnTypeFromDatabase(dbType string) (ColumnType, error) {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	name = strings.TrimSpace(strings.TrimSuffix(name, "UNSIGNED"))
	name = strings.TrimPrefix(name, "UNSIGNED ")

	if strings.HasSuffix(name, "]") || strings.HasPrefix(name, "STRUCT") ||
		strings.HasPrefix(name, "MAP") || strings.HasPrefix(name, "LIST") ||
		strings.HasPrefix(name, "UNION") || strings.HasPrefix(name, "ARRAY") ||
		strings.HasPrefix(name, "_") {
		return TypeNull, &UnsupportedTypeError{DatabaseType: dbType}
	}
	if t, ok := databaseTypes[name]; ok {
		return t, nil
	}

	// Declared types in SQLite are free-form; apply its affinity rules.
	switch {
	case strings.Contains(name, "BLOB"), strings.Contains(name, "BINARY"),
		strings.Contains(name, "BYTEA"), strings.Contains(name, "INTERVAL"),
		strings.Contains(name, "POINT"), name == "TIME", name == "TIMETZ", strings.HasPrefix(name, "TIME "):
		return TypeNull, &UnsupportedTypeError{DatabaseType: dbType}
	case strings.Contains(name, "INT"):
		return TypeInteger, nil
	case strings.Contains(name, "CHAR"), strings.Contains(name, "TEXT"), strings.Contains(name, "CLOB"):
		return TypeString, nil
	case strings.Contains(name, "REAL"), strings.Contains(name, "FLOA"), strings.Contains(name, "DOUB"):
		return TypeFloat, nil
	case strings.Contains(name, "BOOL"):
		return TypeBoolean, nil
	case strings.HasPrefix(name, "TIMESTAMP"), strings.HasPrefix(name, "DATETIME"):
		return TypeTimestamp, nil
	}
	return TypeNull, &UnsupportedTypeError{DatabaseType: dbType}
}
