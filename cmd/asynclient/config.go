package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/adamwoolhether/asynclient/client"
	"github.com/adamwoolhether/asynclient/client/settings"
)

const envPrefix = "ASYNCLIENT"

// config is the merged view of flags, ASYNCLIENT_* env vars and the
// optional config file. Flags win over env, env over the file.
type config struct {
	Method         string        `mapstructure:"method"`
	Headers        []string      `mapstructure:"header"`
	Data           string        `mapstructure:"data"`
	UserAgent      string        `mapstructure:"user_agent"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	NoFollow       bool          `mapstructure:"no_follow"`
	MaxRedirects   int           `mapstructure:"max_redirects"`
	MaxTasks       int           `mapstructure:"max_tasks"`
	RPS            int           `mapstructure:"rps"`
	Burst          int           `mapstructure:"burst"`
	OutputDir      string        `mapstructure:"output_dir"`
	Include        bool          `mapstructure:"include"`
	Verbose        bool          `mapstructure:"verbose"`

	// Settings is a loose settings map, typically from the config file.
	// Keys outside the settings whitelist are dropped.
	Settings map[string]any `mapstructure:"settings"`

	URLs []string `mapstructure:"-"`

	// set records which keys were given explicitly rather than
	// defaulted.
	set map[string]bool
}

// flagKeys maps flag names onto config keys.
var flagKeys = map[string]string{
	"method":          "method",
	"header":          "header",
	"data":            "data",
	"user-agent":      "user_agent",
	"connect-timeout": "connect_timeout",
	"request-timeout": "request_timeout",
	"no-follow":       "no_follow",
	"max-redirects":   "max_redirects",
	"max-tasks":       "max_tasks",
	"rps":             "rps",
	"burst":           "burst",
	"output-dir":      "output_dir",
	"include":         "include",
	"verbose":         "verbose",
}

var errUsage = errors.New("usage")

func newFlagSet(stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet("asynclient", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: asynclient [flags] URL...\n\n")
		fs.PrintDefaults()
	}

	fs.StringP("method", "X", settings.DefaultMethod, "request method")
	fs.StringArrayP("header", "H", nil, `extra header as "Name: value"; repeatable`)
	fs.StringP("data", "d", "", "request body")
	fs.StringP("user-agent", "A", client.DefaultUserAgent, "User-Agent header value")
	fs.Duration("connect-timeout", 0, "per-hop dial and TLS handshake limit; 0 disables")
	fs.Duration("request-timeout", 0, "whole-fetch limit including redirects; 0 disables")
	fs.Bool("no-follow", false, "return 3xx responses instead of following them")
	fs.Int("max-redirects", settings.DefaultMaxRedirects, "redirects followed before failing")
	fs.Int("max-tasks", client.DefaultMaxTasks, "fetches allowed to run at once")
	fs.Int("rps", 0, "connection attempts per second; 0 disables throttling")
	fs.Int("burst", 1, "throttle burst size")
	fs.StringP("output-dir", "o", "", "download each body into this directory instead of printing it")
	fs.BoolP("include", "i", false, "print the status line and headers before the body")
	fs.BoolP("verbose", "v", false, "debug logging to stderr")
	fs.String("config", "", "config file (yaml, json or toml)")
	fs.String("env-file", ".env", "dotenv file loaded when present")

	return fs
}

// loadConfig parses args and layers env and config file values under
// them.
func loadConfig(args []string, stderr io.Writer) (config, error) {
	fs := newFlagSet(stderr)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return config{}, errUsage
		}
		return config{}, fmt.Errorf("parsing flags: %w", err)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return config{}, errUsage
	}

	envFile, _ := fs.GetString("env-file")
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return config{}, fmt.Errorf("loading env file %s: %w", envFile, err)
			}
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return config{}, fmt.Errorf("binding flag %s: %w", name, err)
		}
	}

	if cfgFile, _ := fs.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return config{}, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, fmt.Errorf("decoding config: %w", err)
	}
	cfg.URLs = fs.Args()
	cfg.set = make(map[string]bool, len(flagKeys))
	for _, key := range flagKeys {
		cfg.set[key] = v.IsSet(key)
	}

	return cfg, nil
}

// clientOptions converts cfg into client options. The settings map is
// applied first so explicitly given keys override it.
func (cfg config) clientOptions() ([]client.Option, error) {
	var defaults []settings.Setting
	layer := settings.From(cfg.Settings)
	for _, key := range layer.Keys() {
		v, _ := layer.Get(key)
		defaults = append(defaults, settings.Raw(key, v))
	}

	if cfg.set["method"] {
		defaults = append(defaults, settings.Method(cfg.Method))
	}
	if cfg.set["user_agent"] {
		defaults = append(defaults, settings.UserAgent(cfg.UserAgent))
	}
	if cfg.set["no_follow"] {
		defaults = append(defaults, settings.FollowRedirects(!cfg.NoFollow))
	}
	if cfg.set["max_redirects"] {
		defaults = append(defaults, settings.MaxRedirects(cfg.MaxRedirects))
	}
	if cfg.set["connect_timeout"] {
		defaults = append(defaults, settings.ConnectTimeout(cfg.ConnectTimeout))
	}
	if cfg.set["request_timeout"] {
		defaults = append(defaults, settings.RequestTimeout(cfg.RequestTimeout))
	}

	var hasLength bool
	for _, h := range cfg.Headers {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, fmt.Errorf("header %q: expected \"Name: value\"", h)
		}
		name = strings.TrimSpace(name)
		hasLength = hasLength || strings.EqualFold(name, "Content-Length")
		defaults = append(defaults, settings.Header(name, strings.TrimSpace(value)))
	}

	// The request is sent as given, so the CLI frames --data itself.
	if cfg.Data != "" {
		defaults = append(defaults, settings.BodyString(cfg.Data))
		if !hasLength {
			defaults = append(defaults, settings.Header("Content-Length", strconv.Itoa(len(cfg.Data))))
		}
	}

	opts := []client.Option{
		client.WithDefaults(defaults...),
		client.WithMaxTasks(cfg.MaxTasks),
	}

	if cfg.RPS > 0 {
		opts = append(opts, client.WithThrottle(cfg.RPS, cfg.Burst))
	}

	return opts, nil
}

// droppedSettings reports the config file settings keys that were
// ignored.
func (cfg config) droppedSettings() []string {
	return settings.From(cfg.Settings).Dropped()
}
