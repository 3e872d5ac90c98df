// Copyright 2025 The fawa Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads service settings from flags, a config file, the
// environment and an optional .env file, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/fawa-io/docsearch/pkg/docstore"
	"github.com/fawa-io/docsearch/pkg/fwlog"
)

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"accessKeyID"`
	SecretAccessKey string `mapstructure:"secretAccessKey"`
	Bucket          string `mapstructure:"bucket"`
	UseSSL          bool   `mapstructure:"useSSL"`
}

// Enabled reports whether enough is configured to archive uploads.
func (m MinIOConfig) Enabled() bool {
	return m.Endpoint != "" && m.Bucket != ""
}

type Config struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"logLevel"`

	// RedisURL is the remote backend address; empty selects the
	// in-process store.
	RedisURL          string `mapstructure:"redisURL"`
	TTLSeconds        int    `mapstructure:"ttlSeconds"`
	CompressThreshold int    `mapstructure:"compressThreshold"`
	ChunkSize         int    `mapstructure:"chunkSize"`
	MaxSingleKey      int    `mapstructure:"maxSingleKey"`

	PreviewLimit   int    `mapstructure:"previewLimit"`
	MaxUploadBytes int64  `mapstructure:"maxUploadBytes"`
	DatabasePath   string `mapstructure:"databasePath"`

	// StagingPassword, when set, is required as the HTTP Basic password
	// on every route except the health check.
	StagingPassword string `mapstructure:"stagingPassword"`

	MinIO MinIOConfig `mapstructure:"minio"`
}

// Store returns the document store options. Non-positive TTL and sizes
// are replaced with defaults by the store; a non-positive threshold
// disables compression.
func (c Config) Store() docstore.Options {
	return docstore.Options{
		TTL:               time.Duration(c.TTLSeconds) * time.Second,
		CompressThreshold: c.CompressThreshold,
		ChunkSize:         c.ChunkSize,
		MaxSingleKeyBytes: c.MaxSingleKey,
	}
}

var (
	once sync.Once

	mu sync.RWMutex

	config Config
)

// envBindings maps config keys to the environment variables that set them.
var envBindings = map[string]string{
	"addr":                  "DOCSEARCH_ADDR",
	"logLevel":              "DOCSEARCH_LOGLEVEL",
	"redisURL":              "REDIS_URL",
	"ttlSeconds":            "DOC_TTL_SECONDS",
	"compressThreshold":     "COMPRESS_THRESHOLD",
	"chunkSize":             "REDIS_CHUNK_SIZE",
	"maxSingleKey":          "REDIS_MAX_SINGLE",
	"previewLimit":          "PREVIEW_LIMIT",
	"maxUploadBytes":        "MAX_UPLOAD_BYTES",
	"databasePath":          "DATABASE_PATH",
	"stagingPassword":       "STAGING_PASSWORD",
	"minio.endpoint":        "MINIO_ENDPOINT",
	"minio.accessKeyID":     "MINIO_ACCESS_KEY_ID",
	"minio.secretAccessKey": "MINIO_SECRET_ACCESS_KEY",
	"minio.bucket":          "MINIO_BUCKET",
	"minio.useSSL":          "MINIO_USE_SSL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", "127.0.0.1:8080")
	v.SetDefault("logLevel", "info")
	v.SetDefault("redisURL", "")
	v.SetDefault("ttlSeconds", int(docstore.DefaultTTL/time.Second))
	v.SetDefault("compressThreshold", docstore.DefaultCompressThreshold)
	v.SetDefault("chunkSize", docstore.DefaultChunkSize)
	v.SetDefault("maxSingleKey", docstore.DefaultMaxSingleKeyBytes)
	v.SetDefault("previewLimit", 2000)
	v.SetDefault("maxUploadBytes", 20<<20)
	v.SetDefault("databasePath", "docsearch.db")
	v.SetDefault("stagingPassword", "")
	v.SetDefault("minio.useSSL", false)
}

func registerFlags(fs *pflag.FlagSet) {
	fs.String("addr", "", "HTTP listen address (e.g., '127.0.0.1:8080')")
	fs.String("logLevel", "", "Log level: debug, info, warn, error or fatal")
	fs.String("redisURL", "", "Remote backend address, redis:// or rediss://")
	fs.Int("ttlSeconds", 0, "Lifetime of stored documents in seconds")
	fs.String("databasePath", "", "Path of the sqlite metadata database")
}

// Initconfig loads the process configuration once and starts watching the
// config file for log level changes.
func Initconfig() error {
	var initErr error
	once.Do(func() {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			fwlog.Warnf("Failed to load .env file: %v", err)
		}
		initErr = LoadAndWatch()
	})
	return initErr
}

// Get returns a snapshot of the current configuration.
func Get() Config {
	mu.RLock()
	defer mu.RUnlock()
	return config
}

func LoadAndWatch() error {
	v := viper.GetViper()
	registerFlags(pflag.CommandLine)
	pflag.Parse()

	c, err := load(v, pflag.CommandLine, ".", "/etc/docsearch/")
	if err != nil {
		return err
	}
	mu.Lock()
	config = c
	mu.Unlock()

	v.OnConfigChange(func(e fsnotify.Event) {
		fwlog.Infof("Config file %s changed, reloading...", e.Name)
		if err := reload(v); err != nil {
			fwlog.Errorf("Error reloading the configuration: %v", err)
			return
		}
		fwlog.Info("Configuration reloaded; store settings apply after restart.")
	})
	v.WatchConfig()

	return nil
}

// load reads configuration into a fresh Config. The config file is
// optional and searched for in paths.
func load(v *viper.Viper, fs *pflag.FlagSet, paths ...string) (Config, error) {
	setDefaults(v)
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("failed to bind env %s: %w", env, err)
		}
	}
	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("failed to bind pflags: %w", err)
		}
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fwlog.Infof("Config file not found, using flags and environment.")
		} else {
			return Config{}, fmt.Errorf("fatal error config file: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("the configuration cannot be decoded into the struct: %w", err)
	}
	return c, nil
}

// reload re-decodes v into the global config and applies the log level.
func reload(v *viper.Viper) error {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return err
	}
	applyLogLevel(c.LogLevel)

	mu.Lock()
	config = c
	mu.Unlock()
	return nil
}

// ApplyLogLevel sets the global log level from cfg.
func ApplyLogLevel(cfg Config) {
	applyLogLevel(cfg.LogLevel)
}

func applyLogLevel(s string) {
	lv, err := fwlog.ParseLevel(s)
	if err != nil {
		fwlog.Warnf("Invalid log level %q, using %s: %v", s, lv, err)
	}
	fwlog.SetLevel(lv)
}
