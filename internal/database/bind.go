package database

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kadirbelkuyu/chkit/internal/schema"
)

const timeLayout = "2006-01-02 15:04:05.000000"

// Bind replaces each ? placeholder outside quoted text with the matching
// argument rendered as a ClickHouse literal.
func Bind(query string, args ...any) (string, error) {
	var b strings.Builder
	next := 0
	var quote byte

	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case quote != 0:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(query) {
				i++
				b.WriteByte(query[i])
			} else if c == quote {
				quote = 0
			}
		case c == '\'' || c == '`' || c == '"':
			quote = c
			b.WriteByte(c)
		case c == '?':
			if next >= len(args) {
				return "", fmt.Errorf("missing argument for placeholder %d", next+1)
			}
			literal, err := formatLiteral(args[next])
			if err != nil {
				return "", err
			}
			b.WriteString(literal)
			next++
		default:
			b.WriteByte(c)
		}
	}

	if next != len(args) {
		return "", fmt.Errorf("%d arguments given for %d placeholders", len(args), next)
	}
	return b.String(), nil
}

func formatLiteral(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return schema.QuoteLiteral(val), nil
	case []byte:
		return schema.QuoteLiteral(string(val)), nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case int:
		return strconv.Itoa(val), nil
	case int32:
		return strconv.FormatInt(int64(val), 10), nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case uint64:
		return strconv.FormatUint(val, 10), nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), nil
	case time.Time:
		return schema.QuoteLiteral(val.UTC().Format(timeLayout)), nil
	default:
		return "", fmt.Errorf("unsupported argument type %T", v)
	}
}
