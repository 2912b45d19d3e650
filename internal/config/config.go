// Package config loads .doxyrc.yaml/json/toml, DOXY_-prefixed environment
// overrides, and CLI flags into a single Options struct, via spf13/viper.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/phobologic/doxy/internal/analyze"
	"github.com/phobologic/doxy/internal/errs"
	"github.com/phobologic/doxy/internal/suppress"
)

// SuppressionRuleConfig is the on-disk shape of one config.suppressions
// entry.
type SuppressionRuleConfig struct {
	Package string   `mapstructure:"package"`
	Export  string   `mapstructure:"export"`
	Kind    string   `mapstructure:"kind"`
	Paths   []string `mapstructure:"paths"`
	Reason  string   `mapstructure:"reason"`
}

// Options is the fully merged configuration every other component is
// constructed with. Nothing downstream re-reads viper's global state —
// this struct is the sole channel, so the rest of the pipeline stays
// viper-agnostic and trivially constructible in tests.
type Options struct {
	Include                  []string                `mapstructure:"include"`
	Exclude                  []string                `mapstructure:"exclude"`
	Severity                 string                  `mapstructure:"severity"`
	FailOn                   string                  `mapstructure:"failOn"`
	Frameworks               map[string]string       `mapstructure:"frameworks"`
	PathAliases              map[string]string       `mapstructure:"pathAliases"`
	Suppressions             []SuppressionRuleConfig `mapstructure:"suppressions"`
	RequireSuppressionReason bool                    `mapstructure:"requireSuppressionReason"`
	AuthorityDataSources     []string                `mapstructure:"authorityDataSources"`
}

// Rules converts the on-disk suppression rule shape into suppress.Rule
// values the engine consumes directly.
func (o Options) Rules() []suppress.Rule {
	rules := make([]suppress.Rule, 0, len(o.Suppressions))
	for _, r := range o.Suppressions {
		rules = append(rules, suppress.Rule{
			Package: r.Package,
			Export:  r.Export,
			Kind:    kindOrEmpty(r.Kind),
			Paths:   r.Paths,
			Reason:  r.Reason,
		})
	}
	return rules
}

// Hash fingerprints the fully merged options so the incremental engine can
// tell "same configuration as last run" apart from a change that
// invalidates every cached entry. encoding/json sorts map keys, so the
// rendering is canonical without extra work.
func (o Options) Hash() string {
	data, err := json.Marshal(o)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func kindOrEmpty(s string) analyze.Kind {
	if s == "" || s == "*" {
		return ""
	}
	return analyze.Kind(s)
}

// Defaults are applied before any file/env/flag layer is consulted.
var Defaults = Options{
	Include:  []string{"**/*.{js,jsx,ts,tsx,mjs,cjs}"},
	Exclude:  []string{"**/node_modules/**", "**/*.test.*", "**/*.spec.*"},
	Severity: "info",
	FailOn:   "error",
}

// Load builds an Options by layering, lowest priority first: built-in
// defaults, a .doxyrc file found in root (viper's usual extension set:
// .yaml/.yml/.json/.toml), DOXY_-prefixed environment variables, and
// finally any flags already parsed onto flagSet. flagSet may be nil when
// called outside the CLI (e.g. in tests or a library embedding).
func Load(root string, flagSet *pflag.FlagSet) (Options, error) {
	v := viper.New()
	v.SetConfigName(".doxyrc")
	v.AddConfigPath(root)
	v.SetEnvPrefix("DOXY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if flagSet != nil {
		if err := v.BindPFlags(flagSet); err != nil {
			return Options{}, errs.Config("binding flags", err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return Options{}, errs.Config("reading .doxyrc", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, errs.Config("decoding configuration", err)
	}

	if err := validate(opts); err != nil {
		return Options{}, errs.Config("validating configuration", err)
	}
	return opts, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("include", Defaults.Include)
	v.SetDefault("exclude", Defaults.Exclude)
	v.SetDefault("severity", Defaults.Severity)
	v.SetDefault("failOn", Defaults.FailOn)
	v.SetDefault("requireSuppressionReason", false)
}

var validSeverities = map[string]struct{}{"info": {}, "warning": {}, "error": {}}

func validate(o Options) error {
	if _, ok := validSeverities[o.Severity]; !ok {
		return &invalidSeverityError{field: "severity", value: o.Severity}
	}
	if _, ok := validSeverities[o.FailOn]; !ok {
		return &invalidSeverityError{field: "failOn", value: o.FailOn}
	}
	return nil
}

type invalidSeverityError struct {
	field string
	value string
}

func (e *invalidSeverityError) Error() string {
	return "invalid " + e.field + ": " + e.value + " (want one of info, warning, error)"
}
