// Package format decides whether a statement sent over the ClickHouse HTTP
// interface needs an explicit output format clause.
package format

import (
	"regexp"
	"strings"
)

// DefaultFormat is the response encoding requested for statements that
// return rows.
const DefaultFormat = "JSONCompactEachRowWithNamesAndTypes"

// Rule is one reason for leaving a statement untouched.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Rules are evaluated in order against the trimmed statement; the first
// match wins.
var Rules = []Rule{
	{Name: "insert", Pattern: regexp.MustCompile(`(?i)^insert into`)},
	{Name: "system", Pattern: regexp.MustCompile(`(?i)^(system|optimize)`)},
	{Name: "schema", Pattern: regexp.MustCompile(`(?i)^(create|alter|drop|rename)`)},
	{Name: "format", Pattern: regexp.MustCompile(`(?i)format [a-z_][a-z0-9_]*$`)},
	{Name: "delete", Pattern: regexp.MustCompile(`(?i)^delete from`)},
}

// Match returns the rule that exempts sql from the format clause, if any.
func Match(sql string) (Rule, bool) {
	trimmed := strings.TrimSpace(sql)
	for _, rule := range Rules {
		if rule.Pattern.MatchString(trimmed) {
			return rule, true
		}
	}
	return Rule{}, false
}

// Skip reports whether sql must be sent without a format clause.
func Skip(sql string) bool {
	_, ok := Match(sql)
	return ok
}

// Apply appends the default format clause unless a rule exempts sql.
func Apply(sql string) string {
	if Skip(sql) {
		return sql
	}
	return sql + " FORMAT " + DefaultFormat
}
