package prompt

import "github.com/askdb/askdb/internal/db"

// DialectNotes carries the idioms the model needs to emit valid SQL for one
// dialect.
type DialectNotes struct {
	CurrentDate string
	DateTrunc   string
	Concat      string
	Caveats     []string
}

var dialectNotes = map[db.Dialect]DialectNotes{
	db.DialectPostgres: {
		CurrentDate: "CURRENT_DATE",
		DateTrunc:   "DATE_TRUNC('month', column)",
		Concat:      "||",
		Caveats: []string{
			"Quote mixed-case identifiers with double quotes.",
			"Never add table_schema filters to ordinary queries; the session search_path already selects the schema.",
		},
	},
	db.DialectMySQL: {
		CurrentDate: "CURDATE()",
		DateTrunc:   "DATE_FORMAT(column, '%Y-%m-01')",
		Concat:      "CONCAT(a, b)",
		Caveats: []string{
			"Quote identifiers with backticks when they collide with keywords.",
			"Integer division truncates; multiply by 1.0 for ratios.",
		},
	},
	db.DialectSQLite: {
		CurrentDate: "DATE('now')",
		DateTrunc:   "strftime('%Y-%m', column)",
		Concat:      "||",
		Caveats: []string{
			"Dates may be stored as TEXT, REAL or INTEGER; compare them with date() or strftime().",
			"There is only one schema; never prefix table names.",
		},
	},
	db.DialectDuckDB: {
		CurrentDate: "CURRENT_DATE",
		DateTrunc:   "DATE_TRUNC('month', column)",
		Concat:      "||",
		Caveats: []string{
			"Syntax follows PostgreSQL; most Postgres functions work unchanged.",
		},
	},
}

// Notes returns the idiom table for a dialect. Unknown dialects fall back to
// the postgres notes, the least surprising family.
func Notes(d db.Dialect) DialectNotes {
	if notes, ok := dialectNotes[d]; ok {
		return notes
	}
	return dialectNotes[db.DialectPostgres]
}
