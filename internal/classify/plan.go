package classify

import "fmt"

// aggregatePlan describes how one category is profiled: the select-list
// expressions to run against the staging table and how the single result
// row maps back onto the stats variant. Plans never inspect values, so a
// category's expression set is fixed and can be inspected without an
// engine.
type aggregatePlan struct {
	expressions func(column string) []string
	apply       func(row []any, into *ColumnClassification)
}

func planFor(category Category) (aggregatePlan, bool) {
	plan, ok := aggregatePlans[category]
	return plan, ok
}

var aggregatePlans = map[Category]aggregatePlan{
	CategoryNumeric: {
		expressions: func(column string) []string {
			return []string{
				fmt.Sprintf("CAST(min(%s) AS DOUBLE)", column),
				fmt.Sprintf("CAST(max(%s) AS DOUBLE)", column),
				fmt.Sprintf("CAST(avg(%s) AS DOUBLE)", column),
				fmt.Sprintf("CAST(median(%s) AS DOUBLE)", column),
				fmt.Sprintf("CAST(mode(%s) AS DOUBLE)", column),
				fmt.Sprintf("count(*) - count(%s)", column),
			}
		},
		apply: func(row []any, into *ColumnClassification) {
			into.Numeric = &NumericStats{
				Min:       asFloatPtr(row[0]),
				Max:       asFloatPtr(row[1]),
				Mean:      asFloatPtr(row[2]),
				Median:    asFloatPtr(row[3]),
				Mode:      asFloatPtr(row[4]),
				NullCount: asInt64(row[5]),
			}
		},
	},
	CategoryTemporal: {
		// avg has no definition over date and timestamp values, so the
		// mean and median run over epoch seconds and convert back.
		expressions: func(column string) []string {
			return []string{
				fmt.Sprintf("CAST(min(%s) AS VARCHAR)", column),
				fmt.Sprintf("CAST(max(%s) AS VARCHAR)", column),
				fmt.Sprintf("CAST(to_timestamp(avg(epoch(%s))) AS VARCHAR)", column),
				fmt.Sprintf("CAST(to_timestamp(median(epoch(%s))) AS VARCHAR)", column),
				fmt.Sprintf("CAST(mode(%s) AS VARCHAR)", column),
				fmt.Sprintf("count(*) - count(%s)", column),
			}
		},
		apply: func(row []any, into *ColumnClassification) {
			into.Temporal = &TemporalStats{
				Min:       asStringPtr(row[0]),
				Max:       asStringPtr(row[1]),
				Mean:      asStringPtr(row[2]),
				Median:    asStringPtr(row[3]),
				Mode:      asStringPtr(row[4]),
				NullCount: asInt64(row[5]),
			}
		},
	},
	CategoryString: {
		expressions: func(column string) []string {
			return []string{
				fmt.Sprintf("min(length(%s))", column),
				fmt.Sprintf("max(length(%s))", column),
				fmt.Sprintf("count(*) - count(%s)", column),
			}
		},
		apply: func(row []any, into *ColumnClassification) {
			into.String = &StringStats{
				MinLength: asInt64Ptr(row[0]),
				MaxLength: asInt64Ptr(row[1]),
				NullCount: asInt64(row[2]),
			}
		},
	},
	CategoryBoolean: {
		expressions: func(column string) []string {
			return []string{
				fmt.Sprintf("count(*) FILTER (WHERE %s)", column),
				fmt.Sprintf("count(*) FILTER (WHERE NOT %s)", column),
				fmt.Sprintf("count(*) - count(%s)", column),
			}
		},
		apply: func(row []any, into *ColumnClassification) {
			into.Boolean = &BooleanStats{
				TrueCount:  asInt64(row[0]),
				FalseCount: asInt64(row[1]),
				NullCount:  asInt64(row[2]),
			}
		},
	},
}

func asFloatPtr(value any) *float64 {
	switch typed := value.(type) {
	case float64:
		return &typed
	case float32:
		converted := float64(typed)
		return &converted
	case int64:
		converted := float64(typed)
		return &converted
	case int32:
		converted := float64(typed)
		return &converted
	default:
		return nil
	}
}

func asStringPtr(value any) *string {
	if typed, ok := value.(string); ok {
		return &typed
	}
	return nil
}

func asInt64Ptr(value any) *int64 {
	switch typed := value.(type) {
	case int64:
		return &typed
	case int32:
		converted := int64(typed)
		return &converted
	default:
		return nil
	}
}

func asInt64(value any) int64 {
	switch typed := value.(type) {
	case int64:
		return typed
	case int32:
		return int64(typed)
	case float64:
		return int64(typed)
	default:
		return 0
	}
}
