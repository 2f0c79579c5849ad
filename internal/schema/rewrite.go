package schema

import (
	"regexp"
	"strings"
)

// RewriteRule is a named text substitution applied to DDL or column specs.
type RewriteRule struct {
	Name        string
	Pattern     *regexp.Regexp
	Replacement string
}

func (r RewriteRule) Apply(s string) string {
	return r.Pattern.ReplaceAllString(s, r.Replacement)
}

var (
	// StripReplicaEngine turns "ENGINE = ReplicatedX('path', 'replica', a)"
	// into "ENGINE = X(a)" inside a full CREATE statement.
	StripReplicaEngine = RewriteRule{
		Name:        "strip-replica-engine",
		Pattern:     regexp.MustCompile(`ENGINE = Replicated(\w*?)\('[^']+',\s*'[^']+',?\s?([^)]*)?\)`),
		Replacement: "ENGINE = ${1}(${2})",
	}

	// StripReplicaOptions is the same rewrite anchored at the start of an
	// engine options string.
	StripReplicaOptions = RewriteRule{
		Name:        "strip-replica-options",
		Pattern:     regexp.MustCompile(`^Replicated(\w*?)\('[^']+',\s*'[^']+',?\s?([^)]*)?\)`),
		Replacement: "${1}(${2})",
	}

	// StripCast unwraps CAST('value', 'Type') to its inner literal.
	StripCast = RewriteRule{
		Name:        "strip-cast",
		Pattern:     regexp.MustCompile(`CAST\('?([^,']*)'?,\s?'.*?'\)`),
		Replacement: "${1}",
	}

	// StripFunctionPrefix drops "CREATE [OR REPLACE] FUNCTION name AS" from a
	// function definition, leaving the lambda.
	StripFunctionPrefix = RewriteRule{
		Name:        "strip-function-prefix",
		Pattern:     regexp.MustCompile(`^CREATE( OR REPLACE)? FUNCTION .*? AS`),
		Replacement: "",
	}
)

var (
	viewStatement   = regexp.MustCompile(`^CREATE\s+(MATERIALIZED\s+)?VIEW`)
	unsignedInteger = regexp.MustCompile(`(Nullable)?\(?UInt\d+\)?`)
	arrayWrapper    = regexp.MustCompile(`Array?\(`)
	castedDefault   = regexp.MustCompile(`^CAST\('?([^,']*)'?,\s?'.*?'\)$`)
	engineClause    = regexp.MustCompile(`ENGINE = (.*?)(?: AS SELECT .*)?$`)
	asSelectClause  = regexp.MustCompile(`^CREATE (?:.*?) AS (SELECT .*?)$`)
	checkClause     = regexp.MustCompile("CONSTRAINT `?(\\w+)`? CHECK ")
	whitespaceRun   = regexp.MustCompile(`[\n\s]+`)
	plainIdentifier = regexp.MustCompile("^`?(\\w+)`?$")
)

// ClassifyStatement derives the table kind from its CREATE statement.
func ClassifyStatement(createSQL string) TableKind {
	m := viewStatement.FindStringSubmatch(strings.TrimSpace(createSQL))
	switch {
	case m == nil:
		return KindBase
	case m[1] != "":
		return KindMaterializedView
	default:
		return KindView
	}
}

// CollapseWhitespace folds newlines and runs of blanks into single spaces.
func CollapseWhitespace(sql string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(sql, " "))
}

// StripDatabase removes "<database>." qualifiers from object references.
func StripDatabase(sql, database string) string {
	if database == "" {
		return sql
	}
	return strings.ReplaceAll(sql, database+".", "")
}

// ParseEngineOptions extracts the engine clause and, for views, the SELECT
// from a single-line CREATE statement.
func ParseEngineOptions(createSQL string) EngineOptions {
	var opts EngineOptions
	if m := engineClause.FindStringSubmatch(createSQL); m != nil {
		opts.Options = strings.TrimSpace(m[1])
	}
	if m := asSelectClause.FindStringSubmatch(createSQL); m != nil {
		opts.As = strings.TrimSpace(m[1])
	}
	return opts
}

// ParseCheckConstraints lists the CHECK constraints declared in a CREATE
// statement.
func ParseCheckConstraints(createSQL string) []CheckConstraint {
	var checks []CheckConstraint
	for _, m := range checkClause.FindAllStringSubmatchIndex(createSQL, -1) {
		rest := createSQL[m[1]:]
		end := len(rest)
		for _, terminator := range checkTerminators {
			if i := strings.Index(rest, terminator); i >= 0 && i < end {
				end = i
			}
		}
		checks = append(checks, CheckConstraint{
			Name:       createSQL[m[2]:m[3]],
			Expression: strings.TrimSpace(rest[:end]),
		})
	}
	return checks
}

var checkTerminators = []string{", CONSTRAINT ", ", INDEX ", ", PROJECTION ", ") ENGINE", ")ENGINE"}

// SplitKeyExpression splits a primary or sorting key on its top-level
// commas, so "intHash32(a, b), id" yields two parts.
func SplitKeyExpression(expr string) []string {
	var parts []string
	depth, start, quoted := 0, 0, false

	add := func(part string) {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	for i, r := range expr {
		switch {
		case r == '\'':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ',' && depth == 0:
			add(expr[start:i])
			start = i + 1
		}
	}
	add(expr[start:])
	return parts
}

// KeyColumn returns the column a key part names, or false when the part is
// an expression such as toStartOfDay(ts).
func KeyColumn(part string) (string, bool) {
	m := plainIdentifier.FindStringSubmatch(strings.TrimSpace(part))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// FunctionBody returns the lambda part of a CREATE FUNCTION statement.
func FunctionBody(createSQL string) string {
	return strings.TrimSpace(StripFunctionPrefix.Apply(createSQL))
}
