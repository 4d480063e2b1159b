// Package settings holds the configuration of every chatterbox component and
// loads it from flags, environment (CHATTERBOX_*) and config files through viper.
package settings

import (
	"os"
	"strings"
	"time"

	"github.com/go-go-golems/chatterbox/pkg/client"
	"github.com/go-go-golems/chatterbox/pkg/conversation"
	"github.com/go-go-golems/chatterbox/pkg/kv"
	"github.com/go-go-golems/chatterbox/pkg/logging"
	"github.com/huandu/go-clone"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "CHATTERBOX"

type ClientSettings struct {
	BaseURL string        `yaml:"base_url" mapstructure:"base-url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type ServerSettings struct {
	Addr           string   `yaml:"addr" mapstructure:"addr"`
	OpenAIAPIKey   string   `yaml:"openai_api_key,omitempty" mapstructure:"openai-api-key"`
	OpenAIBaseURL  string   `yaml:"openai_base_url,omitempty" mapstructure:"openai-base-url"`
	Model          string   `yaml:"model" mapstructure:"model"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed-origins"`
}

type Settings struct {
	Client ClientSettings   `yaml:"client" mapstructure:"client"`
	Store  kv.Settings      `yaml:"store" mapstructure:"store"`
	Server ServerSettings   `yaml:"server" mapstructure:"server"`
	Log    logging.Settings `yaml:"log" mapstructure:"log"`
}

func Defaults() *Settings {
	return &Settings{
		Client: ClientSettings{
			BaseURL: client.DefaultBaseURL,
			Timeout: client.DefaultTimeout,
		},
		Store: kv.Settings{
			Backend:     kv.BackendFile,
			Key:         conversation.DefaultKey,
			RedisAddr:   "localhost:6379",
			RedisPrefix: "chatterbox:",
		},
		Server: ServerSettings{
			Addr:  ":5001",
			Model: "gpt-3.5-turbo",
			AllowedOrigins: []string{
				"http://localhost:3000",
				"http://127.0.0.1:3000",
			},
		},
		Log: logging.Settings{
			Level:  "info",
			Format: "text",
		},
	}
}

func (s *Settings) Clone() *Settings {
	return clone.Clone(s).(*Settings)
}

// flag name -> viper key
var flagKeys = map[string]string{
	"base-url":        "client.base-url",
	"timeout":         "client.timeout",
	"store":           "store.backend",
	"store-key":       "store.key",
	"data-dir":        "store.dir",
	"sqlite-path":     "store.sqlite-path",
	"redis-addr":      "store.redis-addr",
	"redis-password":  "store.redis-password",
	"redis-db":        "store.redis-db",
	"redis-prefix":    "store.redis-prefix",
	"postgres-dsn":    "store.postgres-dsn",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"with-caller":     "log.with-caller",
	"addr":            "server.addr",
	"openai-api-key":  "server.openai-api-key",
	"openai-base-url": "server.openai-base-url",
	"model":           "server.model",
	"allowed-origins": "server.allowed-origins",
}

// AddPersistentFlags registers the client, store and logging flags.
func AddPersistentFlags(fs *pflag.FlagSet) {
	d := Defaults()

	fs.String("config", "", "Path to a config file")

	fs.String("base-url", d.Client.BaseURL, "Base URL of the chat service")
	fs.Duration("timeout", d.Client.Timeout, "Timeout for a single chat service call")

	fs.String("store", string(d.Store.Backend), "Storage backend (memory, file, sqlite, redis, postgres)")
	fs.String("store-key", d.Store.Key, "Key the conversations are stored under")
	fs.String("data-dir", d.Store.Dir, "Directory for the file backend (default ~/.chatterbox/data)")
	fs.String("sqlite-path", d.Store.SQLitePath, "Database file for the sqlite backend")
	fs.String("redis-addr", d.Store.RedisAddr, "Address of the redis server")
	fs.String("redis-password", "", "Password for the redis server")
	fs.Int("redis-db", 0, "Redis database number")
	fs.String("redis-prefix", d.Store.RedisPrefix, "Prefix for redis keys")
	fs.String("postgres-dsn", "", "DSN for the postgres backend")

	fs.String("log-level", d.Log.Level, "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "Log format (text, json)")
	fs.String("log-file", "", "Also write logs to this file, rotated")
	fs.Bool("with-caller", false, "Log caller information")
}

// AddServerFlags registers the flags of the serve command.
func AddServerFlags(fs *pflag.FlagSet) {
	d := Defaults()

	fs.String("addr", d.Server.Addr, "Address to listen on")
	fs.String("openai-api-key", "", "OpenAI API key (defaults to $OPENAI_API_KEY)")
	fs.String("openai-base-url", "", "Override the OpenAI API base URL")
	fs.String("model", d.Server.Model, "Model used for chat and title completions")
	fs.StringSlice("allowed-origins", d.Server.AllowedOrigins, "Origins allowed by CORS")
}

// BindFlags binds every known flag present in fs to its viper key.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok || err != nil {
			return
		}
		err = v.BindPFlag(key, f)
	})
	return errors.Wrap(err, "could not bind flags")
}

// NewViper returns a viper instance with defaults and environment lookup set up.
// Config files are read from configFile, or searched for in the usual places.
func NewViper(configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v, Defaults())

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.chatterbox")
		if xdgConfigPath, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(xdgConfigPath + "/chatterbox")
		}
		v.AddConfigPath("/etc/chatterbox")
	}

	err := v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// no config file, keep going
	} else if err != nil {
		return nil, errors.Wrap(err, "could not read config")
	}

	return v, nil
}

// setDefaults registers every key, which is what makes environment-only values
// visible to Unmarshal.
func setDefaults(v *viper.Viper, d *Settings) {
	v.SetDefault("client.base-url", d.Client.BaseURL)
	v.SetDefault("client.timeout", d.Client.Timeout)

	v.SetDefault("store.backend", string(d.Store.Backend))
	v.SetDefault("store.key", d.Store.Key)
	v.SetDefault("store.dir", d.Store.Dir)
	v.SetDefault("store.sqlite-path", d.Store.SQLitePath)
	v.SetDefault("store.redis-addr", d.Store.RedisAddr)
	v.SetDefault("store.redis-password", d.Store.RedisPassword)
	v.SetDefault("store.redis-db", d.Store.RedisDB)
	v.SetDefault("store.redis-prefix", d.Store.RedisPrefix)
	v.SetDefault("store.postgres-dsn", d.Store.PostgresDSN)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.openai-api-key", d.Server.OpenAIAPIKey)
	v.SetDefault("server.openai-base-url", d.Server.OpenAIBaseURL)
	v.SetDefault("server.model", d.Server.Model)
	v.SetDefault("server.allowed-origins", d.Server.AllowedOrigins)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.with-caller", d.Log.WithCaller)
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Settings, error) {
	ret := &Settings{}
	if err := v.Unmarshal(ret); err != nil {
		return nil, errors.Wrap(err, "could not decode settings")
	}

	if ret.Server.OpenAIAPIKey == "" {
		ret.Server.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	}

	return ret, nil
}
