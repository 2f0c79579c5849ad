package schema

import "strings"

// Option configures a Dumper.
type Option func(*options)

type options struct {
	ignoreTables   []string
	internalPrefix string
	version        int64
}

func defaultOptions() *options {
	return &options{
		internalPrefix: ".inner",
	}
}

// WithIgnoreTables leaves the named tables out of the dump, typically the
// bookkeeping tables.
func WithIgnoreTables(tables ...string) Option {
	return func(o *options) {
		o.ignoreTables = append(o.ignoreTables, tables...)
	}
}

// WithVersion stamps the schema definition with the latest applied
// migration version.
func WithVersion(version int64) Option {
	return func(o *options) {
		o.version = version
	}
}

func (o *options) ignored(table string) bool {
	if strings.HasPrefix(table, o.internalPrefix) {
		return true
	}
	for _, name := range o.ignoreTables {
		if name == table {
			return true
		}
	}
	return false
}
