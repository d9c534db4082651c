package core

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

func arrowType(t ColumnType) arrow.DataType {
	switch t {
	case TypeInteger:
		return arrow.PrimitiveTypes.Int64
	case TypeFloat:
		return arrow.PrimitiveTypes.Float64
	case TypeString:
		return arrow.BinaryTypes.String
	case TypeBoolean:
		return arrow.FixedWidthTypes.Boolean
	case TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us
	}
	return arrow.Null
}

// ArrowSchema returns the Arrow schema of the result.
func (r *TabularResult) ArrowSchema() *arrow.Schema {
	fields := make([]arrow.Field, len(r.Columns))
	for i, c := range r.Columns {
		fields[i] = arrow.Field{Name: c.Name, Type: arrowType(c.Type), Nullable: true}
	}
	return arrow.NewSchema(fields, nil)
}

// ArrowRecord converts the result into a single Arrow record.
// The caller must Release the record.
func (r *TabularResult) ArrowRecord(mem memory.Allocator) (arrow.Record, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	b := array.NewRecordBuilder(mem, r.ArrowSchema())
	defer b.Release()

	for j, c := range r.Columns {
		field := b.Field(j)
		for i, row := range r.Rows {
			v := row[j]
			if v == nil {
				field.AppendNull()
				continue
			}
			if err := appendArrow(field, c.Type, v); err != nil {
				return nil, fmt.Errorf("row %d column %q: %w", i, c.Name, err)
			}
		}
	}
	return b.NewRecord(), nil
}

func appendArrow(field array.Builder, t ColumnType, v any) error {
	switch t {
	case TypeInteger:
		n, ok := v.(int64)
		if !ok {
			return fmt.Errorf("expected int64, got %T", v)
		}
		field.(*array.Int64Builder).Append(n)
	case TypeFloat:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("expected float64, got %T", v)
		}
		field.(*array.Float64Builder).Append(f)
	case TypeString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", v)
		}
		field.(*array.StringBuilder).Append(s)
	case TypeBoolean:
		bv, ok := v.(bool)
		if !ok {
			return fmt.Errorf("expected bool, got %T", v)
		}
		field.(*array.BooleanBuilder).Append(bv)
	case TypeTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("expected time.Time, got %T", v)
		}
		field.(*array.TimestampBuilder).Append(arrow.Timestamp(ts.UnixMicro()))
	default:
		field.AppendNull()
	}
	return nil
}
