package config

// A config file for the ntripclient application.  It may be JSON or YAML,
// chosen by the file extension.  For example:
//
//	{
//		"caster": "rtk2go",
//		"user": "me@example.com",
//		"password": "none",
//		"mount": "VargaRTKhr",
//		"log_level": "info",
//		"event_log_file": "ntripclient.log",
//		"event_log_max_size_mb": 10,
//		"message_log_directory": "/var/spool/rtcm",
//		"metrics_address": ":9100",
//		"nats_url": "nats://localhost:4222",
//		"nats_subject_prefix": "rtcm",
//		"redis_address": "localhost:6379",
//		"redis_channel_prefix": "rtcm"
//	}
//
// The caster may be a provider name or a URL (see ParseEndpoint).  Values from
// the environment (see ApplyEnvironment) override values from the file.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config contains the values from the config file.
type Config struct {
	Caster   string `json:"caster" yaml:"caster"`
	Host     string `json:"host" yaml:"host"`
	Port     uint16 `json:"port" yaml:"port"`
	UseTLS   *bool  `json:"use_tls" yaml:"use_tls"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	Mount    string `json:"mount" yaml:"mount"`

	LogLevel          string `json:"log_level" yaml:"log_level"`
	EventLogFile      string `json:"event_log_file" yaml:"event_log_file"`
	EventLogMaxSizeMB int    `json:"event_log_max_size_mb" yaml:"event_log_max_size_mb"`

	MessageLogDirectory string `json:"message_log_directory" yaml:"message_log_directory"`
	MetricsAddress      string `json:"metrics_address" yaml:"metrics_address"`

	NATSURL            string `json:"nats_url" yaml:"nats_url"`
	NATSSubjectPrefix  string `json:"nats_subject_prefix" yaml:"nats_subject_prefix"`
	RedisAddress       string `json:"redis_address" yaml:"redis_address"`
	RedisChannelPrefix string `json:"redis_channel_prefix" yaml:"redis_channel_prefix"`
}

// Default returns a config with the default values filled in.
func Default() *Config {
	return &Config{
		Caster:             "rtk2go",
		LogLevel:           "info",
		EventLogMaxSizeMB:  10,
		NATSSubjectPrefix:  "rtcm",
		RedisChannelPrefix: "rtcm",
	}
}

// Load reads the config file.  Files ending in .yaml or .yml are YAML,
// anything else is JSON.  Values missing from the file keep their defaults.
func Load(configFile string) (*Config, error) {
	file, err := os.Open(configFile)
	if err != nil {
		return nil, fmt.Errorf("cannot open config file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(configFile))
	return parse(file, ext == ".yaml" || ext == ".yml")
}

// parse reads a config from the given source.
func parse(source io.Reader, isYAML bool) (*Config, error) {
	data, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file: %w", err)
	}

	config := Default()
	if isYAML {
		err = yaml.Unmarshal(data, config)
	} else {
		decoder := json.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		err = decoder.Decode(config)
	}
	if err != nil {
		return nil, fmt.Errorf("not a valid config file: %w", err)
	}

	return config, nil
}

// Environment variables that override the config file.
const (
	EnvHost   = "NTRIP_HOST"
	EnvPort   = "NTRIP_PORT"
	EnvUseTLS = "NTRIP_USE_TLS"
	EnvUser   = "NTRIP_USER"
	EnvPass   = "NTRIP_PASS"
	EnvMount  = "NTRIP_MOUNT"
)

// ApplyEnvironment overrides the config with any NTRIP_* variables that
// lookup finds.  Pass os.LookupEnv in production.
func (c *Config) ApplyEnvironment(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		p, err := strconv.ParseUint(v, 10, 16)
		if err != nil || p == 0 {
			return fmt.Errorf("%s: %w: %q", EnvPort, ErrInvalidPort, v)
		}
		c.Port = uint16(p)
	}
	if v, ok := lookup(EnvUseTLS); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %q is not true or false", EnvUseTLS, v)
		}
		c.UseTLS = &b
	}
	if v, ok := lookup(EnvUser); ok {
		c.User = v
	}
	if v, ok := lookup(EnvPass); ok {
		c.Password = v
	}
	if v, ok := lookup(EnvMount); ok && v != "" {
		c.Mount = v
	}
	return nil
}

// Endpoint works out the caster endpoint.  Host is parsed as if it were a
// caster (so it may be a URL) and takes precedence over Caster.  An explicit
// port or TLS setting is applied last.
func (c *Config) Endpoint() (Endpoint, error) {
	source := c.Caster
	if c.Host != "" {
		source = c.Host
	}
	if source == "" {
		return Endpoint{}, fmt.Errorf("%w: no caster given", ErrInvalidURL)
	}

	e, err := ParseEndpoint(source)
	if err != nil {
		return Endpoint{}, err
	}

	if c.Port != 0 {
		e = e.WithPort(c.Port)
		if c.UseTLS == nil {
			e = e.WithEncryption(c.Port == DefaultTLSPort)
		}
	}
	if c.UseTLS != nil {
		e = e.WithEncryption(*c.UseTLS)
	}

	return e, nil
}

// Credentials returns the user name and password from the config.
func (c *Config) Credentials() Credentials {
	return NewCredentials(c.User).WithPassword(c.Password)
}
