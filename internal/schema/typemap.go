package schema

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	integerType    = regexp.MustCompile(`^(U?)Int(8|16|32|64|128|256)$`)
	decimalType    = regexp.MustCompile(`^Decimal\(\s*(\d+)\s*,\s*(\d+)\s*\)$`)
	decimalNType   = regexp.MustCompile(`^Decimal(32|64|128|256)\(\s*(\d+)\s*\)$`)
	fixedString    = regexp.MustCompile(`^FixedString\(\s*(\d+)\s*\)$`)
	dateTimeType   = regexp.MustCompile(`^DateTime(\(\s*'[^']*'\s*\))?$`)
	dateTime64Type = regexp.MustCompile(`^DateTime64\(\s*(\d+)\s*(,\s*'[^']*'\s*)?\)$`)
	enumType       = regexp.MustCompile(`^Enum(8|16)?\(.*\)$`)
	mapType        = regexp.MustCompile(`^Map\(.*\)$`)
	jsonType       = regexp.MustCompile(`^(JSON(\(.*\))?|Object\(\s*'json'\s*\))$`)
)

var simpleTypes = map[string]string{
	"String":  "string",
	"Float32": "float",
	"Float64": "float",
	"Date":    "date",
	"Date32":  "date",
	"UUID":    "uuid",
	"Bool":    "boolean",
	"Boolean": "boolean",
	"IPv4":    "ipv4",
	"IPv6":    "ipv6",
}

var decimalPrecision = map[string]int{
	"32":  9,
	"64":  18,
	"128": 38,
	"256": 76,
}

// ResolveType maps a raw ClickHouse column type onto a Column. Wrapper types
// become flags; the returned Type is empty for types nobody can represent in
// a schema script.
func ResolveType(sqlType string) Column {
	col := Column{SQLType: sqlType}
	base := strings.TrimSpace(sqlType)

	for {
		if inner, ok := unwrap(base, "Array"); ok {
			col.Array = true
			base = inner
			continue
		}
		if inner, ok := unwrap(base, "Nullable"); ok {
			col.Nullable = true
			base = inner
			continue
		}
		if inner, ok := unwrap(base, "LowCardinality"); ok {
			col.LowCardinality = true
			base = inner
			continue
		}
		break
	}

	if t, ok := simpleTypes[base]; ok {
		col.Type = t
		return col
	}

	if m := integerType.FindStringSubmatch(base); m != nil {
		col.Type = "integer"
		col.Unsigned = m[1] == "U"
		bits, _ := strconv.Atoi(m[2])
		if bytes := bits / 8; bytes != 4 {
			col.Limit = intPtr(bytes)
		}
		return col
	}

	if m := decimalType.FindStringSubmatch(base); m != nil {
		precision, _ := strconv.Atoi(m[1])
		scale, _ := strconv.Atoi(m[2])
		col.Type = "decimal"
		col.Precision = intPtr(precision)
		col.Scale = intPtr(scale)
		return col
	}

	if m := decimalNType.FindStringSubmatch(base); m != nil {
		scale, _ := strconv.Atoi(m[2])
		col.Type = "decimal"
		col.Precision = intPtr(decimalPrecision[m[1]])
		col.Scale = intPtr(scale)
		return col
	}

	if m := fixedString.FindStringSubmatch(base); m != nil {
		n, _ := strconv.Atoi(m[1])
		col.Type = "string"
		col.Limit = intPtr(n)
		return col
	}

	if dateTimeType.MatchString(base) {
		col.Type = "datetime"
		return col
	}

	if m := dateTime64Type.FindStringSubmatch(base); m != nil {
		precision, _ := strconv.Atoi(m[1])
		col.Type = "datetime"
		col.Precision = intPtr(precision)
		return col
	}

	switch {
	case enumType.MatchString(base):
		col.Type = "enum"
	case mapType.MatchString(base):
		col.Type = "map"
	case jsonType.MatchString(base):
		col.Type = "json"
	}

	return col
}

// ValidType reports whether a resolved semantic type can be dumped.
func ValidType(t string) bool {
	return t != ""
}

// innerType strips Array/Nullable/LowCardinality wrappers from a raw type.
func innerType(sqlType string) string {
	base := strings.TrimSpace(sqlType)
	for _, wrapper := range []string{"Array", "Nullable", "LowCardinality"} {
		if inner, ok := unwrap(base, wrapper); ok {
			return innerType(inner)
		}
	}
	return base
}

func unwrap(t, wrapper string) (string, bool) {
	if !strings.HasPrefix(t, wrapper+"(") || !strings.HasSuffix(t, ")") {
		return "", false
	}
	return strings.TrimSpace(t[len(wrapper)+1 : len(t)-1]), true
}

func intPtr(v int) *int {
	return &v
}
