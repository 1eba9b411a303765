package config

import (
	"fmt"
	"time"

	"github.com/poppop/racer/pkg/core"
	"github.com/spf13/viper"
)

// ConfigFileName is the file Load looks for in the config directory.
const ConfigFileName = "racer.cfg.json"

// RaceConfig holds settings for the built-in race loop.
type RaceConfig struct {
	Seed     int64   `json:"seed" mapstructure:"seed"`
	TickRate float64 `json:"tickRate" mapstructure:"tickRate"`
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`

	// MetricInterval is how often race and dispatcher metrics are exported.
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
}

// InfluxConfig holds InfluxDB telemetry sink settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// URL returns the server address built from protocol, host and port.
func (c InfluxConfig) URL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// WebSocketConfig holds the live snapshot stream settings.
type WebSocketConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	URL     string `json:"url" mapstructure:"url"`
	Secret  string `json:"secret" mapstructure:"secret"`
}

// MemoryConfig holds the in-memory timeline settings.
type MemoryConfig struct {
	Enabled  bool `json:"enabled" mapstructure:"enabled"`
	Capacity int  `json:"capacity" mapstructure:"capacity"`
}

// SinkConfig groups every snapshot sink.
type SinkConfig struct {
	Memory    MemoryConfig
	WebSocket WebSocketConfig
	Influx    InfluxConfig
}

// StatusConfig holds status file monitor settings.
type StatusConfig struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Path     string        `json:"path" mapstructure:"path"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

// DefaultCompetitors are the two contenders used when the config names none.
func DefaultCompetitors() [2]core.CompetitorAttributes {
	return [2]core.CompetitorAttributes{
		{ID: "a", Name: "Player A", Color: "#ff6b5c", Accel: 72, TopSpeed: 78, Stamina: 64, Cornering: 70, Weight: 48, Luck: 42},
		{ID: "b", Name: "Player B", Color: "#4bb7ff", Accel: 64, TopSpeed: 84, Stamina: 70, Cornering: 62, Weight: 52, Luck: 55},
	}
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(ConfigFileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	return nil
}

// LoadDefaults registers defaults only, for runs without a config file.
func LoadDefaults() {
	setDefaults()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./racelogs")

	viper.SetDefault("race.seed", 0)
	viper.SetDefault("race.tickRate", 60.0)

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "racer")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "racer")
	viper.SetDefault("influx.bucket", "races")

	viper.SetDefault("sinks.memory.enabled", true)
	viper.SetDefault("sinks.memory.capacity", 1024)
	viper.SetDefault("sinks.websocket.enabled", false)
	viper.SetDefault("sinks.websocket.url", "ws://localhost:5000/api/v1/race/live")
	viper.SetDefault("sinks.websocket.secret", "")

	viper.SetDefault("status.enabled", false)
	viper.SetDefault("status.path", "./racer.status.json")
	viper.SetDefault("status.interval", "1s")
}

// GetRaceConfig returns the race loop settings.
func GetRaceConfig() RaceConfig {
	return RaceConfig{
		Seed:     viper.GetInt64("race.seed"),
		TickRate: viper.GetFloat64("race.tickRate"),
	}
}

// GetCompetitors returns the configured pair of competitors. Missing or
// malformed entries fall back to the defaults; values are clamped.
func GetCompetitors() ([2]core.CompetitorAttributes, error) {
	out := DefaultCompetitors()
	if !viper.IsSet("race.competitors") {
		return out, nil
	}

	var list []core.CompetitorAttributes
	if err := viper.UnmarshalKey("race.competitors", &list); err != nil {
		return out, fmt.Errorf("invalid race.competitors: %w", err)
	}
	if len(list) != 2 {
		return out, fmt.Errorf("race.competitors must list exactly 2 entries, got %d", len(list))
	}

	for i, a := range list {
		if a.ID == "" {
			a.ID = out[i].ID
		}
		out[i] = a.Clamp()
	}
	return out, nil
}

// GetOTelConfig returns the telemetry settings.
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
	}
}

// GetInfluxConfig returns the InfluxDB sink settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetSinkConfig returns the settings of every snapshot sink.
func GetSinkConfig() SinkConfig {
	return SinkConfig{
		Memory: MemoryConfig{
			Enabled:  viper.GetBool("sinks.memory.enabled"),
			Capacity: viper.GetInt("sinks.memory.capacity"),
		},
		WebSocket: WebSocketConfig{
			Enabled: viper.GetBool("sinks.websocket.enabled"),
			URL:     viper.GetString("sinks.websocket.url"),
			Secret:  viper.GetString("sinks.websocket.secret"),
		},
		Influx: GetInfluxConfig(),
	}
}

// GetStatusConfig returns the status monitor settings.
func GetStatusConfig() StatusConfig {
	return StatusConfig{
		Enabled:  viper.GetBool("status.enabled"),
		Path:     viper.GetString("status.path"),
		Interval: viper.GetDuration("status.interval"),
	}
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}
