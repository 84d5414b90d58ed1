package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"log_level"`
	Storage  StorageConfig `mapstructure:"storage"`
	Codec    CodecConfig   `mapstructure:"codec"`
	Dict     DictConfig    `mapstructure:"dict"`
	Server   ServerConfig  `mapstructure:"server"`
}

type StorageConfig struct {
	RootDir string `mapstructure:"root_dir"`
	Prefix  string `mapstructure:"prefix"`
}

type CodecConfig struct {
	ValidateTags bool `mapstructure:"validate_tags"`
	// PayloadWidth forces the value width in bytes; 0 derives it from the data.
	PayloadWidth int `mapstructure:"payload_width"`
}

type DictConfig struct {
	Separator string `mapstructure:"separator"`
	Normalize string `mapstructure:"normalize"`
	FoldCase  bool   `mapstructure:"fold_case"`
}

type ServerConfig struct {
	ListenAddr      string `mapstructure:"listen_addr"`
	Workers         int    `mapstructure:"workers"`
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"`
	MaxKeyBytes     int    `mapstructure:"max_key_bytes"`
	RequestTimeout  int    `mapstructure:"request_timeout"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Storage: StorageConfig{
			RootDir: "tries",
			Prefix:  "",
		},
		Codec: CodecConfig{
			ValidateTags: false,
			PayloadWidth: 0,
		},
		Dict: DictConfig{
			Separator: "\t",
			Normalize: FormNone,
			FoldCase:  false,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			ShutdownTimeout: 30,
			MaxKeyBytes:     4096,
			RequestTimeout:  10,
		},
	}
}

// flagKeys maps every registered flag to the config key it sets.
var flagKeys = map[string]string{
	"log-level":               "log_level",
	"storage-root-dir":        "storage.root_dir",
	"storage-prefix":          "storage.prefix",
	"codec-validate-tags":     "codec.validate_tags",
	"codec-payload-width":     "codec.payload_width",
	"dict-separator":          "dict.separator",
	"dict-normalize":          "dict.normalize",
	"dict-fold-case":          "dict.fold_case",
	"server-listen-addr":      "server.listen_addr",
	"server-workers":          "server.workers",
	"server-shutdown-timeout": "server.shutdown_timeout",
	"server-max-key-bytes":    "server.max_key_bytes",
	"server-request-timeout":  "server.request_timeout",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("storage-root-dir", defaults.Storage.RootDir, "Directory compiled tries are stored in")
	fs.String("storage-prefix", defaults.Storage.Prefix, "Name prefix for stored trie artifacts")
	fs.Bool("codec-validate-tags", defaults.Codec.ValidateTags, "Write and expect tagged fields in trie files")
	fs.Int("codec-payload-width", defaults.Codec.PayloadWidth, "Force value width in bytes (0 = smallest that fits)")
	fs.String("dict-separator", defaults.Dict.Separator, "Separator between key and value in dictionary files")
	fs.String("dict-normalize", defaults.Dict.Normalize, "Unicode normalization for keys (none|nfc|nfd|nfkc|nfkd)")
	fs.Bool("dict-fold-case", defaults.Dict.FoldCase, "Apply Unicode case folding to keys")
	fs.String("server-listen-addr", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("server-workers", defaults.Server.Workers, "Max concurrent item enumerations (0 = unlimited)")
	fs.Int("server-shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Int("server-max-key-bytes", defaults.Server.MaxKeyBytes, "Maximum lookup key length in bytes")
	fs.Int("server-request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("PYISTRIE")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("pyistrie")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate canonicalizes enumerated fields and rejects out-of-range values.
func (c *Config) Validate() error {
	form, err := NormalizeForm(c.Dict.Normalize)
	if err != nil {
		return err
	}
	c.Dict.Normalize = form

	if c.Codec.PayloadWidth < 0 || c.Codec.PayloadWidth > 4 {
		return fmt.Errorf("invalid codec.payload_width %d (expected 0..4)", c.Codec.PayloadWidth)
	}
	if c.Server.MaxKeyBytes <= 0 {
		return fmt.Errorf("invalid server.max_key_bytes %d (must be positive)", c.Server.MaxKeyBytes)
	}
	if c.Storage.RootDir == "" {
		return errors.New("storage.root_dir is required")
	}
	return nil
}

// bindFlags binds each known flag present in fs to its nested key, so that
// config file values under the same key are not shadowed by flag defaults.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		f := fs.Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("storage.root_dir", c.Storage.RootDir)
	v.SetDefault("storage.prefix", c.Storage.Prefix)
	v.SetDefault("codec.validate_tags", c.Codec.ValidateTags)
	v.SetDefault("codec.payload_width", c.Codec.PayloadWidth)
	v.SetDefault("dict.separator", c.Dict.Separator)
	v.SetDefault("dict.normalize", c.Dict.Normalize)
	v.SetDefault("dict.fold_case", c.Dict.FoldCase)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.max_key_bytes", c.Server.MaxKeyBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
}
