package prompt

import (
	"fmt"
	"strings"

	"github.com/askdb/askdb/internal/db"
)

// Instructions builds the system prompt without the schema block. The
// orchestrator uses its token estimate to decide how much schema text fits.
func Instructions(d db.Dialect, schemaName string) string {
	notes := Notes(d)

	var b strings.Builder
	b.WriteString("You translate natural language questions about a relational database into a single read-only SQL query.\n\n")

	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Generate exactly one SELECT (or WITH) statement for the %s dialect. Never modify data.\n", d)
	b.WriteString("- Always include a LIMIT clause.\n")
	fmt.Fprintf(&b, "- Do not prefix tables with a schema name; the session already targets %q.\n", schemaName)
	b.WriteString("- For GROUP BY queries select the grouping expression first and the aggregate as the second column.\n")
	b.WriteString("- Write the explanation in the same language as the question.\n\n")

	fmt.Fprintf(&b, "Notes for the %s dialect:\n", d)
	fmt.Fprintf(&b, "- Current date: %s\n", notes.CurrentDate)
	fmt.Fprintf(&b, "- Truncate a date to its month: %s\n", notes.DateTrunc)
	fmt.Fprintf(&b, "- String concatenation: %s\n", notes.Concat)
	for _, caveat := range notes.Caveats {
		fmt.Fprintf(&b, "- %s\n", caveat)
	}
	b.WriteString("\n")

	b.WriteString("Respond with a single JSON object and nothing else:\n")
	b.WriteString(`{"sql": "<the query>", "explanation": "<one or two sentences>", "chartType": "<bar|line|pie|table|number>"}` + "\n\n")
	b.WriteString(`chartType: "bar" compares categories, "line" shows a trend over time, "pie" shows shares of a whole across few categories, "number" presents a single value, "table" fits everything else.`)

	return b.String()
}

// System is the full system prompt: instructions followed by the schema
// text under a SCHEMA: marker.
func System(d db.Dialect, schemaName, schemaText string) string {
	return Instructions(d, schemaName) + "\n\nSCHEMA:\n" + schemaText
}
