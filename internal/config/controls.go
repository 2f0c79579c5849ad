package config

import (
	"strings"

	"github.com/spf13/viper"
)

const (
	KeyVersion = "version"
	KeyScope   = "scope"
	KeyVerbose = "verbose"
)

// Controls are the externally supplied knobs consumed by migrate.
type Controls struct {
	// Version is the raw target version indicator, empty when unset.
	Version string
	// Scope restricts the run to migrations tagged with it.
	Scope   string
	Verbose bool
}

// NewControlsViper returns a viper instance reading VERSION, SCOPE and
// VERBOSE from the environment. Flags can be bound on top of it.
func NewControlsViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	_ = v.BindEnv(KeyVersion, "VERSION")
	_ = v.BindEnv(KeyScope, "SCOPE")
	_ = v.BindEnv(KeyVerbose, "VERBOSE")
	return v
}

// LoadControls resolves the controls from v. VERBOSE defaults to on and is
// only switched off by the literal value "false".
func LoadControls(v *viper.Viper) Controls {
	verbose := true
	if raw := strings.TrimSpace(v.GetString(KeyVerbose)); raw != "" {
		verbose = raw != "false"
	}

	return Controls{
		Version: strings.TrimSpace(v.GetString(KeyVersion)),
		Scope:   strings.TrimSpace(v.GetString(KeyScope)),
		Verbose: verbose,
	}
}
