package executor

import (
	"regexp"
	"sort"
	"strings"
)

// Statement classification reported by AnalyzeLockLevel.
const (
	StatementDDL             = "ddl"
	StatementDML             = "dml"
	StatementQuery           = "query"
	StatementIndexConcurrent = "index-concurrent"
	StatementUnknown         = "unknown"
)

// Analysis describes the locking behavior of a SQL statement.
type Analysis struct {
	// Type is the coarse statement class (ddl, dml, query, index-concurrent,
	// unknown).
	Type string

	// Level is the table-lock strength the statement requires.
	Level LockLevel

	// CanRunConcurrently reports whether the statement can share its resource
	// with compatible operations.
	CanRunConcurrently bool

	// BlocksReads reports whether concurrent reads on the resource must wait.
	BlocksReads bool

	// BlocksWrites reports whether concurrent writes on the resource must wait.
	BlocksWrites bool

	// RequiresSpecialHandling marks CONCURRENTLY index builds, which are
	// limited to one per resource key but block neither reads nor writes.
	RequiresSpecialHandling bool
}

// rowLockRe detects explicit row-locking clauses on SELECT statements.
var rowLockRe = regexp.MustCompile(`(?is)\bFOR\s+(UPDATE|NO\s+KEY\s+UPDATE|SHARE|KEY\s+SHARE)\b`)

// AnalyzeLockLevel classifies a statement by scanning its leading keyword
// tokens (comments and string literals are skipped by the tokenizer).
// Anything unrecognized maps to the conservative EXCLUSIVE level: safety is
// never assumed for unknown SQL shapes.
func AnalyzeLockLevel(sql string) Analysis {
	toks := leadingTokens(sql, 4)
	if len(toks) == 0 {
		return unknownAnalysis()
	}

	switch toks[0] {
	case "SELECT", "VALUES":
		if rowLockRe.MatchString(sql) {
			return Analysis{
				Type:               StatementQuery,
				Level:              RowShare,
				CanRunConcurrently: true,
			}
		}
		return Analysis{
			Type:               StatementQuery,
			Level:              AccessShare,
			CanRunConcurrently: true,
		}

	case "INSERT", "UPDATE", "DELETE", "MERGE":
		return Analysis{
			Type:               StatementDML,
			Level:              RowExclusive,
			CanRunConcurrently: true,
		}

	case "TRUNCATE":
		return accessExclusiveAnalysis()

	case "CREATE":
		rest := toks[1:]
		if len(rest) > 0 && rest[0] == "UNIQUE" {
			rest = rest[1:]
		}
		if len(rest) > 0 && rest[0] == "INDEX" {
			if len(rest) > 1 && rest[1] == "CONCURRENTLY" {
				return concurrentIndexAnalysis()
			}
			return accessExclusiveAnalysis()
		}
		if len(rest) > 0 && rest[0] == "TABLE" {
			return accessExclusiveAnalysis()
		}
		return unknownAnalysis()

	case "ALTER":
		if len(toks) > 1 && toks[1] == "TABLE" {
			return accessExclusiveAnalysis()
		}
		return unknownAnalysis()

	case "DROP":
		if len(toks) > 1 && toks[1] == "INDEX" {
			if len(toks) > 2 && toks[2] == "CONCURRENTLY" {
				return concurrentIndexAnalysis()
			}
			return accessExclusiveAnalysis()
		}
		if len(toks) > 1 && toks[1] == "TABLE" {
			return accessExclusiveAnalysis()
		}
		return unknownAnalysis()
	}

	return unknownAnalysis()
}

func accessExclusiveAnalysis() Analysis {
	return Analysis{
		Type:         StatementDDL,
		Level:        AccessExclusive,
		BlocksReads:  true,
		BlocksWrites: true,
	}
}

func concurrentIndexAnalysis() Analysis {
	return Analysis{
		Type:                    StatementIndexConcurrent,
		Level:                   ShareUpdateExclusive,
		CanRunConcurrently:      true,
		RequiresSpecialHandling: true,
	}
}

func unknownAnalysis() Analysis {
	return Analysis{
		Type:         StatementUnknown,
		Level:        Exclusive,
		BlocksReads:  true,
		BlocksWrites: true,
	}
}

// leadingTokens returns up to n uppercased word tokens from the start of the
// statement, skipping line and block comments.
func leadingTokens(sql string, n int) []string {
	var toks []string
	i := 0
	for i < len(sql) && len(toks) < n {
		c := sql[i]
		switch {
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return toks
			}
			i += end + 4
		case isWordByte(c):
			start := i
			for i < len(sql) && isWordByte(sql[i]) {
				i++
			}
			toks = append(toks, strings.ToUpper(sql[start:i]))
		default:
			i++
		}
	}
	return toks
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// tableRe is the documented heuristic for table-name extraction: identifiers
// following FROM/JOIN/INTO/UPDATE/TRUNCATE/TABLE clauses. It is not a SQL
// parser and both under- and over-matches on CTEs, quoted mixed-case
// identifiers, and subqueries; that precision gap is a known property, not a
// bug.
var tableRe = regexp.MustCompile(`(?i)\b(?:FROM|JOIN|INTO|UPDATE|TRUNCATE(?:\s+TABLE)?|TABLE)\s+(?:IF\s+(?:NOT\s+)?EXISTS\s+)?(?:ONLY\s+)?([a-zA-Z_][a-zA-Z0-9_.]*)`)

// indexOnRe extracts the target table from the ON clause of CREATE INDEX
// statements, which tableRe cannot see. DROP INDEX names only the index, so
// its table stays unextractable and falls back to the default key.
var indexOnRe = regexp.MustCompile(`(?i)\bINDEX\s+(?:CONCURRENTLY\s+)?(?:IF\s+NOT\s+EXISTS\s+)?(?:[a-zA-Z_][a-zA-Z0-9_.]*\s+)?ON\s+(?:ONLY\s+)?([a-zA-Z_][a-zA-Z0-9_.]*)`)

// notTables are keywords the heuristic can capture in identifier position.
var notTables = map[string]struct{}{
	"select": {}, "set": {}, "values": {}, "only": {}, "if": {},
	"not": {}, "exists": {}, "table": {}, "index": {}, "concurrently": {},
	"on": {}, "lateral": {},
}

// ResourceKey derives the conflict-grouping key for a statement: referenced
// table names, lower-cased, de-duplicated and sorted, joined into a composite
// key. Statements with no extractable table share the "default" key.
func ResourceKey(sql string) string {
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{tableRe, indexOnRe} {
		for _, m := range re.FindAllStringSubmatch(sql, -1) {
			name := strings.ToLower(m[1])
			if _, skip := notTables[name]; skip {
				continue
			}
			seen[name] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return "default"
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ":")
}
