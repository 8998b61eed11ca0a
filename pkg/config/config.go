package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	File      *FileConfig     `mapstructure:"file"`
	Messaging MessagingConfig `mapstructure:"messaging"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	LogLevel   string `mapstructure:"log_level"`
	Production bool   `mapstructure:"production"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

type WebSocketConfig struct {
	BroadcastBufferSize int `mapstructure:"broadcast_buffer_size"`

	MessageRetryCount      int `mapstructure:"message_retry_count"`
	MessageRetryIntervalMs int `mapstructure:"message_retry_interval_ms"`
}

type FileConfig struct {
	StoragePath string `mapstructure:"storage_path"`
	MaxFileSize int64  `mapstructure:"max_file_size"`
}

type MessagingConfig struct {
	Provider string      `mapstructure:"provider"`
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	TopicPrefix   string   `mapstructure:"topic_prefix"`
}

var GlobalConfig Config

func Init() error {
	return load("config")
}

// Test configuration file.
func InitTest() error {
	return load("config.test")
}

func load(name string) error {
	// Resolve the project root relative to this source file.
	_, b, _, _ := runtime.Caller(0)
	basepath := filepath.Dir(filepath.Dir(filepath.Dir(b)))

	viper.SetConfigName(name)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(filepath.Join(basepath, "config"))

	if err := viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := viper.Unmarshal(&GlobalConfig); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return nil
}
