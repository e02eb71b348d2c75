package dsn

import (
	"time"

	"gopkg.in/ini.v1"

	"github.com/zhukovaskychina/xmysql-driver/errkind"
)

// LoadINI parses a my.cnf-style configuration file's [client] section into
// a Config, the file-based counterpart to the connection-string forms
// Parse handles, per spec §6. Grounded on the teacher's server/conf/config.go
// NewCfg/ini.File loading, repurposed from server listen-address settings to
// client connect settings.
func LoadINI(path, section string) (Config, error) {
	if section == "" {
		section = "client"
	}
	raw, err := ini.Load(path)
	if err != nil {
		return Config{}, errkind.NewUsageError(errkind.InvalidState, "loading ini config: "+err.Error())
	}
	sec := raw.Section(section)
	cfg := Defaults()

	if v := sec.Key("host").String(); v != "" {
		cfg.Hosts = splitHosts(v)
		cfg.Host = cfg.Hosts[0]
	}
	if v := sec.Key("port").String(); v != "" {
		p, err := sec.Key("port").Int()
		if err != nil {
			return Config{}, errkind.NewUsageError(errkind.InvalidState, "invalid port in ini config: "+v)
		}
		cfg.Port = p
	}
	if v := sec.Key("user").String(); v != "" {
		cfg.User = v
	}
	cfg.Password = sec.Key("password").String()
	if v := sec.Key("database").String(); v != "" {
		cfg.Database = v
	}
	if v := sec.Key("sslmode").String(); v != "" {
		mode, err := parseSSLMode(v)
		if err != nil {
			return Config{}, err
		}
		cfg.SSLMode = mode
	}
	if v, err := sec.Key("minpoolsize").Int(); err == nil && sec.HasKey("minpoolsize") {
		cfg.MinPoolSize = v
	}
	if v, err := sec.Key("maxpoolsize").Int(); err == nil && sec.HasKey("maxpoolsize") {
		cfg.MaxPoolSize = v
	}
	if v, err := sec.Key("connectiontimeout").Int(); err == nil && sec.HasKey("connectiontimeout") {
		cfg.ConnectionTimeout = time.Duration(v) * time.Second
	}
	if v, err := sec.Key("defaultcommandtimeout").Int(); err == nil && sec.HasKey("defaultcommandtimeout") {
		cfg.DefaultCommandTimeout = time.Duration(v) * time.Second
	}
	if v := sec.Key("characterset").String(); v != "" {
		cfg.CharacterSet = v
	}
	if sec.HasKey("usecompression") {
		cfg.UseCompression = sec.Key("usecompression").MustBool(cfg.UseCompression)
	}

	return cfg, nil
}
