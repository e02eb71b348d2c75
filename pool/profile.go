package pool

import (
	"os"
	"time"

	toml "github.com/pelletier/go-toml"
	yamlv2 "gopkg.in/yaml.v2"
	"gopkg.in/yaml.v3"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// Profile is the on-disk form of Options, letting an operator check a
// shared pool-sizing policy into a config file instead of repeating it in
// every DSN, per the Domain Stack's assignment of go-toml/yaml.v3 to this
// concern (neither the DSN table nor the teacher's own ini-based config
// covers multi-pool policy files).
type Profile struct {
	MinSize        int    `toml:"min_size" yaml:"min_size"`
	MaxSize        int    `toml:"max_size" yaml:"max_size"`
	MaxLifetimeSec int    `toml:"max_lifetime_seconds" yaml:"max_lifetime_seconds"`
	MaxIdleSec     int    `toml:"max_idle_seconds" yaml:"max_idle_seconds"`
	ResetOnRelease bool   `toml:"reset_on_release" yaml:"reset_on_release"`
	ReapIntervalSec int   `toml:"reap_interval_seconds" yaml:"reap_interval_seconds"`
}

// ToOptions converts a parsed Profile into pool.Options.
func (pr Profile) ToOptions() Options {
	return Options{
		MinSize:        pr.MinSize,
		MaxSize:        pr.MaxSize,
		MaxLifetime:    time.Duration(pr.MaxLifetimeSec) * time.Second,
		MaxIdleTime:    time.Duration(pr.MaxIdleSec) * time.Second,
		ResetOnRelease: pr.ResetOnRelease,
		ReapInterval:   time.Duration(pr.ReapIntervalSec) * time.Second,
	}
}

// LoadProfileTOML reads a pool profile from a TOML file.
func LoadProfileTOML(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errkind.NewUsageError(errkind.InvalidState, "reading pool profile: "+err.Error())
	}
	var pr Profile
	if err := toml.Unmarshal(data, &pr); err != nil {
		return Profile{}, errkind.NewUsageError(errkind.InvalidState, "parsing TOML pool profile: "+err.Error())
	}
	return pr, nil
}

// LoadProfileYAML reads a pool profile from a YAML file, the alternate
// format operators migrating from a Kubernetes-style config tree tend to
// prefer over TOML.
func LoadProfileYAML(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errkind.NewUsageError(errkind.InvalidState, "reading pool profile: "+err.Error())
	}
	var pr Profile
	if err := yaml.Unmarshal(data, &pr); err != nil {
		return Profile{}, errkind.NewUsageError(errkind.InvalidState, "parsing YAML pool profile: "+err.Error())
	}
	return pr, nil
}

// legacyProfile is the pre-v2 pool profile schema: camelCase keys and
// everything in whole seconds as plain ints, unmarshaled with yaml.v2
// since that schema predates the yaml.v3 migration and yaml.v2's looser
// decoding (no "unknown field" strictness change) matches files written
// against it.
type legacyProfile struct {
	MinSize      int  `yaml:"minSize"`
	MaxSize      int  `yaml:"maxSize"`
	MaxLifetime  int  `yaml:"maxLifetimeSeconds"`
	MaxIdle      int  `yaml:"maxIdleSeconds"`
	ResetOnGive  bool `yaml:"resetOnRelease"`
	ReapInterval int  `yaml:"reapIntervalSeconds"`
}

// LoadProfileYAMLLegacy reads a pool profile written against the older
// camelCase YAML schema, for callers migrating a config tree that
// predates the min_size/max_size snake_case Profile fields.
func LoadProfileYAMLLegacy(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errkind.NewUsageError(errkind.InvalidState, "reading pool profile: "+err.Error())
	}
	var lp legacyProfile
	if err := yamlv2.Unmarshal(data, &lp); err != nil {
		return Profile{}, errkind.NewUsageError(errkind.InvalidState, "parsing legacy YAML pool profile: "+err.Error())
	}
	return Profile{
		MinSize:         lp.MinSize,
		MaxSize:         lp.MaxSize,
		MaxLifetimeSec:  lp.MaxLifetime,
		MaxIdleSec:      lp.MaxIdle,
		ResetOnRelease:  lp.ResetOnGive,
		ReapIntervalSec: lp.ReapInterval,
	}, nil
}
