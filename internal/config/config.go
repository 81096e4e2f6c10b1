// Package config loads the YAML configuration shared by the services and
// applies environment overrides on top of it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/LeonardoBeccarini/rootwater/internal/model/entities"
	"github.com/LeonardoBeccarini/rootwater/pkg/rabbitmq"
	"github.com/LeonardoBeccarini/rootwater/pkg/rootwater"
)

var ErrInvalidConfig = errors.New("config: invalid")

type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
	// BatchSize and FlushInterval tune the non-blocking write API.
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
}

type Topics struct {
	SensorData    string `yaml:"sensor_data"`
	SapData       string `yaml:"sap_data"`
	RWUEvents     string `yaml:"rwu_events"`     // template with {field} and {id}
	SapFlowEvents string `yaml:"sapflow_events"` // template with {field} and {id}
}

type RWUConfig struct {
	Interval   time.Duration `yaml:"interval"`
	BufferDays int           `yaml:"buffer_days"`
	Safe       bool          `yaml:"safe"`
}

type SapFlowConfig struct {
	ActiveFraction float64 `yaml:"active_fraction"`
}

type BreakerConfig struct {
	Failures int           `yaml:"failures"`
	OpenFor  time.Duration `yaml:"open_for"`
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	LogLevel  string                  `yaml:"log_level"`
	MQTT      rabbitmq.RabbitMQConfig `yaml:"mqtt"`
	Influx    InfluxConfig            `yaml:"influx"`
	HTTPPort  int                     `yaml:"http_port"`
	GRPCAddr  string                  `yaml:"grpc_addr"`
	Topics    Topics                  `yaml:"topics"`
	Estimator rootwater.Params        `yaml:"estimator"`
	RWU       RWUConfig               `yaml:"rwu"`
	SapFlow   SapFlowConfig           `yaml:"sapflow"`
	Breaker   BreakerConfig           `yaml:"breaker"`
	Archive   string                  `yaml:"archive"` // sqlite path, empty disables
	Fields    []entities.Field        `yaml:"fields"`
}

// Default returns a configuration for a local broker and InfluxDB.
func Default() Config {
	return Config{
		LogLevel: "info",
		MQTT: rabbitmq.RabbitMQConfig{
			Host:     "localhost",
			Port:     1883,
			User:     "guest",
			Password: "guest",
		},
		Influx: InfluxConfig{
			URL:           "http://localhost:8086",
			Org:           "rootwater",
			Bucket:        "rootwater",
			BatchSize:     10,
			FlushInterval: 200 * time.Millisecond,
		},
		HTTPPort: 8080,
		GRPCAddr: ":50051",
		Topics: Topics{
			SensorData:    "sensor/data",
			SapData:       "sensor/sap",
			RWUEvents:     "event/rwu/{field}/{id}",
			SapFlowEvents: "event/sapflow/{field}/{id}",
		},
		Estimator: rootwater.DefaultParams(),
		RWU:       RWUConfig{Interval: 10 * time.Minute, BufferDays: 7, Safe: true},
		SapFlow:   SapFlowConfig{ActiveFraction: 0.95},
		Breaker:   BreakerConfig{Failures: 3, OpenFor: 10 * time.Second, Interval: time.Minute},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path uses the defaults only.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.link()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogLevel = env("LOG_LEVEL", c.LogLevel)
	c.MQTT.Host = env("RABBITMQ_HOST", env("MQTT_HOST", c.MQTT.Host))
	c.MQTT.Port = envInt("RABBITMQ_PORT", envInt("MQTT_PORT", c.MQTT.Port))
	c.MQTT.User = env("RABBITMQ_USER", c.MQTT.User)
	c.MQTT.Password = env("RABBITMQ_PASSWORD", c.MQTT.Password)
	c.MQTT.ClientID = env("MQTT_CLIENT_ID", c.MQTT.ClientID)
	c.Influx.URL = env("INFLUX_URL", c.Influx.URL)
	c.Influx.Token = env("INFLUX_TOKEN", c.Influx.Token)
	c.Influx.Org = env("INFLUX_ORG", c.Influx.Org)
	c.Influx.Bucket = env("INFLUX_BUCKET", c.Influx.Bucket)
	c.HTTPPort = envInt("HTTP_PORT", c.HTTPPort)
	c.GRPCAddr = env("GRPC_ADDR", c.GRPCAddr)
	c.Archive = env("ARCHIVE_PATH", c.Archive)
}

// link copies field IDs into probes and trees.
func (c *Config) link() {
	for i := range c.Fields {
		f := &c.Fields[i]
		for j := range f.Probes {
			f.Probes[j].FieldID = f.ID
		}
		for j := range f.Trees {
			f.Trees[j].FieldID = f.ID
		}
	}
}

func (c *Config) Validate() error {
	switch {
	case c.MQTT.Host == "" || c.MQTT.Port <= 0:
		return fmt.Errorf("%w: mqtt host/port", ErrInvalidConfig)
	case c.RWU.Interval <= 0:
		return fmt.Errorf("%w: rwu.interval must be > 0", ErrInvalidConfig)
	case c.RWU.BufferDays < 2:
		return fmt.Errorf("%w: rwu.buffer_days must be >= 2", ErrInvalidConfig)
	case c.SapFlow.ActiveFraction <= 0 || c.SapFlow.ActiveFraction >= 1:
		return fmt.Errorf("%w: sapflow.active_fraction must be in (0,1)", ErrInvalidConfig)
	case c.Breaker.Failures < 1:
		return fmt.Errorf("%w: breaker.failures must be >= 1", ErrInvalidConfig)
	}
	if err := c.Estimator.Validate(); err != nil {
		return fmt.Errorf("%w: estimator: %w", ErrInvalidConfig, err)
	}
	seen := map[string]bool{}
	for _, f := range c.Fields {
		if f.ID == "" {
			return fmt.Errorf("%w: field without id", ErrInvalidConfig)
		}
		for _, p := range f.Probes {
			key := f.ID + "/" + p.ID
			if p.ID == "" || seen[key] {
				return fmt.Errorf("%w: probe %q in field %q is empty or duplicated", ErrInvalidConfig, p.ID, f.ID)
			}
			seen[key] = true
		}
		for _, t := range f.Trees {
			if _, err := t.SapTree(); err != nil {
				return fmt.Errorf("%w: tree %s/%s: %w", ErrInvalidConfig, f.ID, t.ID, err)
			}
		}
	}
	return nil
}

// Probe finds a configured probe.
func (c *Config) Probe(fieldID, probeID string) (entities.Probe, bool) {
	for i := range c.Fields {
		if c.Fields[i].ID != fieldID {
			continue
		}
		if p := c.Fields[i].GetProbe(probeID); p != nil {
			return *p, true
		}
	}
	return entities.Probe{}, false
}

// Tree finds a configured tree.
func (c *Config) Tree(fieldID, treeID string) (entities.Tree, bool) {
	for i := range c.Fields {
		if c.Fields[i].ID != fieldID {
			continue
		}
		if t := c.Fields[i].GetTree(treeID); t != nil {
			return *t, true
		}
	}
	return entities.Tree{}, false
}

// ProbeParams returns the estimator parameters placed at the probe.
func (c *Config) ProbeParams(p entities.Probe) rootwater.Params {
	params := c.Estimator
	params.Observer = p.Observer()
	params.Location = p.Location()
	return params
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
