package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/spf13/viper"
)

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Relay  RelayConfig  `mapstructure:"relay"`
	Redis  RedisConfig  `mapstructure:"redis"`
	MySQL  MySQLConfig  `mapstructure:"mysql"`
	Events EventsConfig `mapstructure:"events"`
	Stats  StatsConfig  `mapstructure:"stats"`
	ICE    ICEConfig    `mapstructure:"ice"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Host            string        `mapstructure:"host"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// RelayConfig tunes the signaling websocket transport.
type RelayConfig struct {
	InboxSize       int           `mapstructure:"inbox_size"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes"`
	WriteWait       time.Duration `mapstructure:"write_wait"`
	PongWait        time.Duration `mapstructure:"pong_wait"`
	PingInterval    time.Duration `mapstructure:"ping_interval"`
}

// RedisConfig enables the match event publisher when Address is set.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

// MySQLConfig enables the match event audit log when DSN is set.
type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

type StatsConfig struct {
	Schedule string `mapstructure:"schedule"`
}

type ICEConfig struct {
	StunURLs       []string `mapstructure:"stun_urls"`
	TurnURLs       []string `mapstructure:"turn_urls"`
	TurnUsername   string   `mapstructure:"turn_username"`
	TurnCredential string   `mapstructure:"turn_credential"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("relay.inbox_size", 1024)
	v.SetDefault("relay.send_buffer", 64)
	v.SetDefault("relay.max_message_bytes", 64*1024)
	v.SetDefault("relay.write_wait", 10*time.Second)
	v.SetDefault("relay.pong_wait", 60*time.Second)
	v.SetDefault("relay.ping_interval", 50*time.Second)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "match_events")
	v.SetDefault("mysql.dsn", "")
	v.SetDefault("mysql.max_open_conns", 10)
	v.SetDefault("mysql.max_idle_conns", 5)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("events.buffer_size", 256)
	v.SetDefault("stats.schedule", "@every 1m")
	v.SetDefault("ice.stun_urls", []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"})
	v.SetDefault("ice.turn_urls", []string{})
	v.SetDefault("ice.turn_username", "")
	v.SetDefault("ice.turn_credential", "")
}

func bindEnv(v *viper.Viper) {
	v.AutomaticEnv()

	// PORT is the conventional platform variable; SERVER_PORT wins when both are set.
	v.BindEnv("server.port", "SERVER_PORT", "PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("server.shutdown_timeout", "SERVER_SHUTDOWN_TIMEOUT")
	v.BindEnv("log.level", "LOG_LEVEL")
	v.BindEnv("relay.inbox_size", "RELAY_INBOX_SIZE")
	v.BindEnv("relay.send_buffer", "RELAY_SEND_BUFFER")
	v.BindEnv("relay.max_message_bytes", "RELAY_MAX_MESSAGE_BYTES")
	v.BindEnv("relay.write_wait", "RELAY_WRITE_WAIT")
	v.BindEnv("relay.pong_wait", "RELAY_PONG_WAIT")
	v.BindEnv("relay.ping_interval", "RELAY_PING_INTERVAL")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("redis.channel", "REDIS_CHANNEL")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("events.buffer_size", "EVENTS_BUFFER_SIZE")
	v.BindEnv("stats.schedule", "STATS_SCHEDULE")
	v.BindEnv("ice.stun_urls", "ICE_STUN_URLS")
	v.BindEnv("ice.turn_urls", "ICE_TURN_URLS")
	v.BindEnv("ice.turn_username", "ICE_TURN_USERNAME")
	v.BindEnv("ice.turn_credential", "ICE_TURN_CREDENTIAL")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nocaps/")

	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return decode(v)
}

// LoadFromFile loads configuration from a specific file path, layered over the
// defaults and environment.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnv(v)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Relay.InboxSize <= 0 {
		return fmt.Errorf("relay.inbox_size must be positive")
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay.send_buffer must be positive")
	}
	if c.Relay.MaxMessageBytes <= 0 {
		return fmt.Errorf("relay.max_message_bytes must be positive")
	}
	if c.Relay.PingInterval >= c.Relay.PongWait {
		return fmt.Errorf("relay.ping_interval (%s) must be shorter than relay.pong_wait (%s)",
			c.Relay.PingInterval, c.Relay.PongWait)
	}
	if c.Events.BufferSize <= 0 {
		return fmt.Errorf("events.buffer_size must be positive")
	}
	if _, err := c.ICEServers(); err != nil {
		return err
	}
	return nil
}

// ICEServers returns the STUN/TURN servers handed to clients.
func (c *Config) ICEServers() ([]webrtc.ICEServer, error) {
	return BuildICEServers(c.ICE.StunURLs, c.ICE.TurnURLs, c.ICE.TurnUsername, c.ICE.TurnCredential)
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %q, MySQL enabled: %t, Stats: %s, STUN: %v",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.MySQL.DSN != "",
		c.Stats.Schedule,
		c.ICE.StunURLs,
	)
}
