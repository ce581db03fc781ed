// Package config loads lprintd settings from defaults, an optional YAML file
// and LPRINT_* environment variables, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

const EnvPrefix = "LPRINT"

type Config struct {
	ListenAddr string `mapstructure:"listen"`
	ServerName string `mapstructure:"server_name"`
	UUID       string `mapstructure:"uuid"`

	DataDir  string `mapstructure:"data_dir"`
	DBPath   string `mapstructure:"db_path"`
	SpoolDir string `mapstructure:"spool_dir"`

	LogLevel       string `mapstructure:"log_level"`
	LogFormat      string `mapstructure:"log_format"`
	ErrorLogPath   string `mapstructure:"error_log"`
	AccessLogPath  string `mapstructure:"access_log"`
	AccessLogLevel string `mapstructure:"access_log_level"`
	PageLogPath    string `mapstructure:"page_log"`
	MaxLogSize     string `mapstructure:"max_log_size"`

	DNSSD DNSSD `mapstructure:"dnssd"`

	// JobHistory is how many completed jobs each printer keeps.
	JobHistory     int             `mapstructure:"job_history"`
	DefaultPrinter string          `mapstructure:"default_printer"`
	Printers       []PrinterConfig `mapstructure:"printers"`
}

type DNSSD struct {
	Enabled      bool     `mapstructure:"enabled"`
	Subtypes     []string `mapstructure:"subtypes"`
	ComputerName string   `mapstructure:"computer_name"`
	HostName     string   `mapstructure:"host_name"`
}

// PrinterConfig declares a printer to create at startup when the store
// does not already hold one by that name.
type PrinterConfig struct {
	Name      string `mapstructure:"name"`
	Driver    string `mapstructure:"driver"`
	DeviceURI string `mapstructure:"device_uri"`
	Location  string `mapstructure:"location"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":631")
	v.SetDefault("server_name", "")
	v.SetDefault("uuid", "")
	v.SetDefault("data_dir", "data")
	v.SetDefault("db_path", "")
	v.SetDefault("spool_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.SetDefault("error_log", "stderr")
	v.SetDefault("access_log", "none")
	v.SetDefault("access_log_level", "actions")
	v.SetDefault("page_log", "none")
	v.SetDefault("max_log_size", "1m")
	v.SetDefault("dnssd.enabled", true)
	v.SetDefault("dnssd.subtypes", []string{"_print"})
	v.SetDefault("dnssd.computer_name", "")
	v.SetDefault("dnssd.host_name", "")
	v.SetDefault("job_history", 100)
	v.SetDefault("default_printer", "")
}

// Load reads configuration into v. path may be empty, in which case only
// defaults and the environment apply.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	applyDerivedDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyDerivedDefaults(cfg *Config) {
	cfg.ListenAddr = ensurePort(cfg.ListenAddr, "631")
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = filepath.Join(cfg.DataDir, "lprint.db")
	} else {
		cfg.DBPath = resolvePath(cfg.DataDir, cfg.DBPath)
	}
	if strings.TrimSpace(cfg.SpoolDir) == "" {
		cfg.SpoolDir = filepath.Join(cfg.DataDir, "spool")
	} else {
		cfg.SpoolDir = resolvePath(cfg.DataDir, cfg.SpoolDir)
	}
	for _, p := range []*string{&cfg.ErrorLogPath, &cfg.AccessLogPath, &cfg.PageLogPath} {
		*p = resolvePath(cfg.DataDir, *p)
	}
	cfg.DNSSD.Subtypes = appendUniqueList(nil, cfg.DNSSD.Subtypes...)
	if cfg.JobHistory < 0 {
		cfg.JobHistory = 0
	}
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if _, err := c.Port(); err != nil {
		return err
	}
	if _, ok := parseSize(c.MaxLogSize); !ok && strings.TrimSpace(c.MaxLogSize) != "" {
		return fmt.Errorf("max_log_size %q is not a size", c.MaxLogSize)
	}
	seen := map[string]bool{}
	for i, p := range c.Printers {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			return fmt.Errorf("printers[%d]: name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("printers[%d]: duplicate name %q", i, name)
		}
		seen[name] = true
	}
	return nil
}

// Port is the TCP port of ListenAddr.
func (c Config) Port() (int, error) {
	_, portStr, err := net.SplitHostPort(c.ListenAddr)
	if err != nil {
		return 0, fmt.Errorf("listen %q: %w", c.ListenAddr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return 0, errors.New("listen port must be between 1 and 65535")
	}
	return port, nil
}

// MaxLogBytes is MaxLogSize in bytes; 0 disables rotation.
func (c Config) MaxLogBytes() int64 {
	n, _ := parseSize(c.MaxLogSize)
	return n
}

func ensurePort(addr string, defaultPort string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":" + defaultPort
	}
	if strings.HasPrefix(addr, "[") {
		if _, _, err := net.SplitHostPort(addr); err == nil {
			return addr
		}
		if strings.HasSuffix(addr, "]") {
			return addr + ":" + defaultPort
		}
	}
	if host, port, err := net.SplitHostPort(addr); err == nil {
		if port == "" {
			port = defaultPort
		}
		return net.JoinHostPort(host, port)
	}
	if strings.Count(addr, ":") > 1 {
		return net.JoinHostPort(addr, defaultPort)
	}
	if strings.Contains(addr, ":") {
		return addr
	}
	return net.JoinHostPort(addr, defaultPort)
}

func appendUnique(list []string, value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return list
	}
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func appendUniqueList(list []string, values ...string) []string {
	for _, v := range values {
		list = appendUnique(list, v)
	}
	return list
}

func resolvePath(root, value string) string {
	value = strings.TrimSpace(value)
	switch strings.ToLower(value) {
	case "", "none", "off", "stderr", "stdout", "-":
		return value
	}
	if filepath.IsAbs(value) {
		return value
	}
	return filepath.Join(root, value)
}

func parseSize(value string) (int64, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return 0, false
	}
	mult := int64(1)
	switch v[len(v)-1] {
	case 'k', 'K':
		mult = 1024
		v = v[:len(v)-1]
	case 'm', 'M':
		mult = 1024 * 1024
		v = v[:len(v)-1]
	case 'g', 'G':
		mult = 1024 * 1024 * 1024
		v = v[:len(v)-1]
	}
	num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || num < 0 {
		return 0, false
	}
	return int64(num * float64(mult)), true
}
