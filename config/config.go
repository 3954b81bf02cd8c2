// Package config implements the section:key configuration accessor the
// workflow engine's Context exposes to handlers and processors, backed
// by viper for file/env/flag precedence the way the reference CLI wires
// it (see cli.RootCmd's initConfig).
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"twine.work/twineerr"
)

// Accessor is the section:key configuration surface C2's Context
// forwards to handlers: string/int/bool with default, and enumerate-all
// within a section (used by the plug-in loader to discover e.g. all
// `plugin:*` entries).
type Accessor struct {
	v *viper.Viper
}

// New wraps an already-populated viper instance.
func New(v *viper.Viper) *Accessor {
	if v == nil {
		v = viper.GetViper()
	}
	return &Accessor{v: v}
}

func fullKey(section, key string) string {
	if section == "" || section == "*" {
		return key
	}
	return section + ":" + key
}

// GetString returns the configured value for section:key, or def if unset.
func (a *Accessor) GetString(section, key, def string) string {
	fk := fullKey(section, key)
	if a.v.IsSet(fk) {
		return a.v.GetString(fk)
	}
	return def
}

// MustGetString is GetString without a default; returns a BadConfig error if unset.
func (a *Accessor) MustGetString(section, key string) (string, error) {
	fk := fullKey(section, key)
	if !a.v.IsSet(fk) {
		return "", twineerr.Newf(twineerr.BadConfig, "config", "missing required configuration key %q", fk)
	}
	return a.v.GetString(fk), nil
}

// GetInt returns the configured integer value for section:key, or def if unset or unparsable.
func (a *Accessor) GetInt(section, key string, def int) int {
	fk := fullKey(section, key)
	if a.v.IsSet(fk) {
		n, err := strconv.Atoi(strings.TrimSpace(a.v.GetString(fk)))
		if err != nil {
			return def
		}
		return n
	}
	return def
}

// GetBool returns the configured boolean value for section:key, or def if unset.
func (a *Accessor) GetBool(section, key string, def bool) bool {
	fk := fullKey(section, key)
	if a.v.IsSet(fk) {
		return a.v.GetBool(fk)
	}
	return def
}

// GetDuration returns the configured duration for section:key, or def if unset.
func (a *Accessor) GetDuration(section, key string, def time.Duration) time.Duration {
	fk := fullKey(section, key)
	if a.v.IsSet(fk) {
		return a.v.GetDuration(fk)
	}
	return def
}

// Section enumerates every key configured under "section:" and returns
// the key suffixes (without the section prefix) mapped to their string
// values. Used for repeatable keys like `<app>:plugin`.
func (a *Accessor) Section(section string) map[string]string {
	prefix := section + ":"
	out := make(map[string]string)
	for _, k := range a.v.AllKeys() {
		if strings.HasPrefix(k, prefix) {
			out[strings.TrimPrefix(k, prefix)] = a.v.GetString(k)
		}
	}
	return out
}

// Set overrides a single section:key value, used by the `-D
// section:key=value` daemon flag.
func (a *Accessor) Set(section, key, value string) {
	a.v.Set(fullKey(section, key), value)
}

// ApplyOverride parses a raw "section:key=value" or "section:key" string
// (the latter defaulting value to "true") as accepted by the `-D` flag.
func (a *Accessor) ApplyOverride(raw string) error {
	parts := strings.SplitN(raw, "=", 2)
	keypart := parts[0]
	value := "true"
	if len(parts) == 2 {
		value = parts[1]
	}
	sk := strings.SplitN(keypart, ":", 2)
	if len(sk) != 2 {
		return twineerr.Newf(twineerr.BadConfig, "config", "malformed override %q, expected section:key[=value]", raw)
	}
	a.Set(sk[0], sk[1], value)
	return nil
}

// Validator accumulates configuration validation failures, mirroring the
// reference codebase's config.Validator, so startup can report every
// problem at once rather than failing on the first.
type Validator struct {
	errs []string
}

func NewValidator() *Validator { return &Validator{} }

func (v *Validator) RequireString(field, value string) {
	if value == "" {
		v.errs = append(v.errs, fmt.Sprintf("%s is required", field))
	}
}

func (v *Validator) RequireURL(field, value string) {
	if value == "" {
		v.errs = append(v.errs, fmt.Sprintf("%s is required", field))
		return
	}
	if !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") && !strings.HasPrefix(value, "amqp://") && !strings.HasPrefix(value, "amqps://") {
		v.errs = append(v.errs, fmt.Sprintf("%s must be a URL", field))
	}
}

func (v *Validator) RequirePositiveInt(field string, value int) {
	if value <= 0 {
		v.errs = append(v.errs, fmt.Sprintf("%s must be positive", field))
	}
}

func (v *Validator) Err() error {
	if len(v.errs) == 0 {
		return nil
	}
	return twineerr.Newf(twineerr.BadConfig, "config", "%s", strings.Join(v.errs, "; "))
}
