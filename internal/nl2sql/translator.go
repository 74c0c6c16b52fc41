// Package nl2sql turns natural language prompts into SQL against the live
// workspace schema.
package nl2sql

import "context"

// TableContext describes one live table for the model: column signatures,
// an approximate row count, and a few sample rows.
type TableContext struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns"`
	RowCount   int64    `json:"row_count"`
	SampleRows [][]any  `json:"sample_rows,omitempty"`
}

// Request carries the prompt together with the schema the generated SQL
// must run against.
type Request struct {
	NaturalLanguage string         `json:"natural_language"`
	Tables          []TableContext `json:"tables"`
}

// Result is the generated SQL plus the provenance of the model that wrote it.
type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// Translator generates a single SQL statement for a request.
type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}
