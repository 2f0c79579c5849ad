package migration

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	filenamePattern = regexp.MustCompile(`^([0-9]+)_([_a-z0-9]*)\.?([_a-z0-9]*)?\.(sql|rb)$`)
	bareVersion     = regexp.MustCompile(`^\d+$`)
)

// ConfigError is an externally supplied control that cannot be used.
type ConfigError struct {
	Key   string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("Invalid format of target version: `%s=%s`", e.Key, e.Value)
}

// ParseTargetVersion reads a VERSION indicator: a bare number or a
// migration file name. ok is false when no target was given.
func ParseTargetVersion(indicator string) (version int64, ok bool, err error) {
	indicator = strings.TrimSpace(indicator)
	if indicator == "" {
		return 0, false, nil
	}

	digits := indicator
	if !bareVersion.MatchString(indicator) {
		m := filenamePattern.FindStringSubmatch(indicator)
		if m == nil {
			return 0, false, &ConfigError{Key: "VERSION", Value: indicator}
		}
		digits = m[1]
	}

	version, err = strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0, false, &ConfigError{Key: "VERSION", Value: indicator}
	}
	return version, true, nil
}

// ParseFilename splits "<version>_<name>[.<scope>].sql".
func ParseFilename(filename string) (version int64, name, scope string, ok bool) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", "", false
	}
	version, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, "", "", false
	}
	return version, m[2], m[3], true
}
