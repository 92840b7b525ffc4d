// Package config loads service configuration from defaults, an optional
// config file, IMGRESIZE_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ironsheep/imgresize/internal/imaging"
	"github.com/ironsheep/imgresize/internal/logging"
	"github.com/ironsheep/imgresize/internal/params"
)

// EnvPrefix prefixes every environment variable, e.g. IMGRESIZE_RESIZE_CACHE_SIZE.
const EnvPrefix = "IMGRESIZE"

// Config is the full service configuration.
type Config struct {
	Listen          string        `mapstructure:"listen" default:":8080" validate:"required"`
	Root            string        `mapstructure:"root" default:"." validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" default:"10s" validate:"gt=0"`

	// MaxSourceBytes caps the size of one source file; 0 disables the cap.
	MaxSourceBytes int64 `mapstructure:"max_source_bytes" default:"67108864" validate:"gte=0"`

	Resize Resize         `mapstructure:"resize"`
	Log    logging.Config `mapstructure:"log"`
}

// Resize holds engine defaults and limits.
type Resize struct {
	Filter    string `mapstructure:"filter" default:"lanczos3" validate:"required"`
	Algorithm string `mapstructure:"algorithm" default:"interpolation" validate:"required"`
	Output    string `mapstructure:"output" default:"webp" validate:"required"`

	// CacheSize is the number of encoded results kept; 0 keeps none.
	CacheSize int `mapstructure:"cache_size" default:"200" validate:"gte=0"`

	DPRMin       float64 `mapstructure:"dpr_min" default:"1" validate:"gt=0"`
	DPRMax       float64 `mapstructure:"dpr_max" default:"3" validate:"gtefield=DPRMin"`
	MaxDimension int     `mapstructure:"max_dimension" default:"8192" validate:"gte=0"`
	JPEGQuality  int     `mapstructure:"jpeg_quality" default:"85" validate:"min=1,max=100"`
	Background   string  `mapstructure:"background" default:"#ffffff" validate:"required"`

	// Workers bounds concurrent decode/resize/encode; 0 means one per CPU.
	Workers int `mapstructure:"workers" default:"0" validate:"gte=0"`

	// MaxSourcePixels rejects sources whose width*height exceeds it before
	// decoding; 0 disables the check.
	MaxSourcePixels int64 `mapstructure:"max_source_pixels" default:"100000000" validate:"gte=0"`
}

// Default returns the configuration with every default applied.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}
	return cfg, nil
}

// Flags returns the command-line flags understood by Load.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("imgresize", pflag.ContinueOnError)
	fs.StringP("config", "c", "", "path to a YAML/TOML/JSON config file")
	fs.String("listen", ":8080", "HTTP listen address")
	fs.String("root", ".", "directory that source images are served from")
	fs.Int("cache-size", 200, "number of resized images kept in memory (0 disables)")
	fs.String("algorithm", "interpolation", "default resize algorithm")
	fs.String("filter", "lanczos3", "default resampling filter")
	fs.String("output", "webp", "default output format")
	fs.Int("workers", 0, "concurrent resize limit (0 = number of CPUs)")
	fs.String("log-level", "info", "log level: debug, info, warn, error")
	fs.String("log-format", "console", "log format: console or json")
	return fs
}

// flagKeys maps flag names to configuration keys.
var flagKeys = map[string]string{
	"listen":     "listen",
	"root":       "root",
	"cache-size": "resize.cache_size",
	"algorithm":  "resize.algorithm",
	"filter":     "resize.filter",
	"output":     "resize.output",
	"workers":    "resize.workers",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// Load parses args and merges every configuration source.
func Load(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return LoadFlags(fs)
}

// LoadFlags merges configuration using an already parsed flag set.
func LoadFlags(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	if err := seedDefaults(v); err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
			}
		}
	}

	if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
		v.SetConfigFile(f.Value.String())
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", f.Value.String(), err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// seedDefaults registers every key with viper so environment variables are
// picked up by Unmarshal.
func seedDefaults(v *viper.Viper) error {
	def, err := Default()
	if err != nil {
		return err
	}
	v.SetDefault("listen", def.Listen)
	v.SetDefault("root", def.Root)
	v.SetDefault("shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("max_source_bytes", def.MaxSourceBytes)
	v.SetDefault("resize.filter", def.Resize.Filter)
	v.SetDefault("resize.algorithm", def.Resize.Algorithm)
	v.SetDefault("resize.output", def.Resize.Output)
	v.SetDefault("resize.cache_size", def.Resize.CacheSize)
	v.SetDefault("resize.dpr_min", def.Resize.DPRMin)
	v.SetDefault("resize.dpr_max", def.Resize.DPRMax)
	v.SetDefault("resize.max_dimension", def.Resize.MaxDimension)
	v.SetDefault("resize.jpeg_quality", def.Resize.JPEGQuality)
	v.SetDefault("resize.background", def.Resize.Background)
	v.SetDefault("resize.workers", def.Resize.Workers)
	v.SetDefault("resize.max_source_pixels", def.Resize.MaxSourcePixels)
	v.SetDefault("log.level", def.Log.Level)
	v.SetDefault("log.format", def.Log.Format)
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that every name parses.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := c.ParamDefaults(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParamDefaults converts the resize section into resolver defaults. This is
// where configured names become imaging enumerations.
func (c *Config) ParamDefaults() (params.Defaults, error) {
	alg, err := imaging.ParseAlgorithm(c.Resize.Algorithm)
	if err != nil {
		return params.Defaults{}, fmt.Errorf("resize.algorithm: %w", err)
	}
	filter, err := imaging.ParseFilter(c.Resize.Filter)
	if err != nil {
		return params.Defaults{}, fmt.Errorf("resize.filter: %w", err)
	}
	output, err := imaging.ParseFormat(c.Resize.Output)
	if err != nil {
		return params.Defaults{}, fmt.Errorf("resize.output: %w", err)
	}
	bg, err := imaging.ParseBackground(c.Resize.Background)
	if err != nil {
		return params.Defaults{}, fmt.Errorf("resize.background: %w", err)
	}
	return params.Defaults{
		Algorithm:    alg,
		Filter:       filter,
		Output:       output,
		Background:   bg,
		MinDPR:       c.Resize.DPRMin,
		MaxDPR:       c.Resize.DPRMax,
		MaxDimension: c.Resize.MaxDimension,
	}, nil
}
