package classify

import "strings"

// Category is the statistics family a column belongs to, inferred from the
// engine's declared type name.
type Category string

const (
	CategoryNumeric  Category = "numeric"
	CategoryTemporal Category = "temporal"
	CategoryString   Category = "string"
	CategoryBoolean  Category = "boolean"
	CategoryOther    Category = "other"
)

var (
	numericPrefixes = []string{
		"TINYINT", "SMALLINT", "INTEGER", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT",
		"FLOAT", "DOUBLE", "REAL", "DECIMAL", "NUMERIC",
	}
	temporalPrefixes = []string{"DATE", "TIMESTAMP"}
	stringPrefixes   = []string{"VARCHAR", "CHAR", "TEXT", "STRING"}
	booleanPrefixes  = []string{"BOOLEAN", "BOOL"}
)

// CategoryFor maps an engine type name onto a category by fixed prefix
// matching. Unknown families land in CategoryOther and carry no stats.
func CategoryFor(typeName string) Category {
	name := strings.ToUpper(strings.TrimSpace(typeName))
	switch {
	case hasAnyPrefix(name, numericPrefixes):
		return CategoryNumeric
	case hasAnyPrefix(name, temporalPrefixes):
		return CategoryTemporal
	case hasAnyPrefix(name, stringPrefixes):
		return CategoryString
	case hasAnyPrefix(name, booleanPrefixes):
		return CategoryBoolean
	default:
		return CategoryOther
	}
}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

type NumericStats struct {
	Min       *float64 `json:"min"`
	Max       *float64 `json:"max"`
	Mean      *float64 `json:"mean"`
	Median    *float64 `json:"median"`
	Mode      *float64 `json:"mode"`
	NullCount int64    `json:"null_count"`
}

// TemporalStats mirrors NumericStats with string-encoded temporal values.
type TemporalStats struct {
	Min       *string `json:"min"`
	Max       *string `json:"max"`
	Mean      *string `json:"mean"`
	Median    *string `json:"median"`
	Mode      *string `json:"mode"`
	NullCount int64   `json:"null_count"`
}

type StringStats struct {
	MinLength *int64 `json:"min_length"`
	MaxLength *int64 `json:"max_length"`
	NullCount int64  `json:"null_count"`
}

type BooleanStats struct {
	TrueCount  int64 `json:"true_count"`
	FalseCount int64 `json:"false_count"`
	NullCount  int64 `json:"null_count"`
}

// ColumnClassification carries the category and the matching stats variant
// for one column. Exactly one variant is set unless Category is other, in
// which case all are nil.
type ColumnClassification struct {
	ColumnName     string         `json:"column_name"`
	Category       Category       `json:"category"`
	SourceTypeName string         `json:"source_type_name"`
	Numeric        *NumericStats  `json:"numeric_stats,omitempty"`
	Temporal       *TemporalStats `json:"temporal_stats,omitempty"`
	String         *StringStats   `json:"string_stats,omitempty"`
	Boolean        *BooleanStats  `json:"boolean_stats,omitempty"`
}
