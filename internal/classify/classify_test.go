package classify

import "testing"

func TestCategoryForMapsTypePrefixes(t *testing.T) {
	cases := []struct {
		typeName string
		want     Category
	}{
		{"BIGINT", CategoryNumeric},
		{"INTEGER", CategoryNumeric},
		{"HUGEINT", CategoryNumeric},
		{"UBIGINT", CategoryNumeric},
		{"DOUBLE", CategoryNumeric},
		{"DECIMAL(18,3)", CategoryNumeric},
		{"numeric", CategoryNumeric},
		{"DATE", CategoryTemporal},
		{"TIMESTAMP", CategoryTemporal},
		{"TIMESTAMP WITH TIME ZONE", CategoryTemporal},
		{"VARCHAR", CategoryString},
		{"varchar(40)", CategoryString},
		{"TEXT", CategoryString},
		{"BOOLEAN", CategoryBoolean},
		{"BOOL", CategoryBoolean},
		{"BLOB", CategoryOther},
		{"INTERVAL", CategoryOther},
		{"UUID", CategoryOther},
		{"STRUCT(a INTEGER)", CategoryOther},
		{"TIME", CategoryOther},
		{"", CategoryOther},
	}
	for _, tc := range cases {
		if got := CategoryFor(tc.typeName); got != tc.want {
			t.Fatalf("CategoryFor(%q) = %q, want %q", tc.typeName, got, tc.want)
		}
	}
}
