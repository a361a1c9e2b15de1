package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/lightsync/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultLogLevel   = "warning"
	DefaultConfigName = "lightsync"
	EnvPrefix         = "LIGHTSYNC"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	Debug     bool            `mapstructure:"debug"`
	Verbose   bool            `mapstructure:"verbose"`
	PIDFile   string          `mapstructure:"pid_file"`
	Audio     AudioConfig     `mapstructure:"audio"`
	Reactive  ReactiveConfig  `mapstructure:"reactive"`
	LED       LEDConfig       `mapstructure:"led"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	Settings  SettingsConfig  `mapstructure:"settings"`
	History   HistoryConfig   `mapstructure:"history"`

	// Action holds one-shot command line requests. It is never read from file.
	Action Action `mapstructure:"-"`
}

type AudioConfig struct {
	SampleRate             int           `mapstructure:"sample_rate"`
	BufferMultiplier       int           `mapstructure:"buffer_multiplier"`
	MinBufferFrames        int           `mapstructure:"min_buffer_frames"`
	TickInterval           time.Duration `mapstructure:"tick_interval"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
}

type ReactiveConfig struct {
	Mode        string        `mapstructure:"mode"`
	Sensitivity float64       `mapstructure:"sensitivity"`
	MinInterval time.Duration `mapstructure:"min_interval"`
}

type LEDConfig struct {
	TierOrder       []string      `mapstructure:"tier_order"`
	NativeDevice    string        `mapstructure:"native_device"`
	SysfsRoot       string        `mapstructure:"sysfs_root"`
	LEDClassRoot    string        `mapstructure:"led_class_root"`
	ProbeRoots      []string      `mapstructure:"probe_roots"`
	CommandTimeout  time.Duration `mapstructure:"command_timeout"`
	PropertyCommand string        `mapstructure:"property_command"`
	RainbowDuration time.Duration `mapstructure:"rainbow_duration"`
	RainbowColors   int           `mapstructure:"rainbow_colors"`
	ExecutorQueue   int           `mapstructure:"executor_queue"`
}

type BroadcastConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	ClientID       string        `mapstructure:"client_id"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type SettingsConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type HistoryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DBPath       string        `mapstructure:"db_path"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// Action describes what the daemon should do once the actuator is ready.
type Action struct {
	Color      string
	Effect     string
	Brightness int
	Off        bool
	Status     bool
	List       bool
	Test       bool
}

// Reactive reports whether no one-shot action was requested, in which case the
// daemon runs audio reactive mode until terminated.
func (a Action) Reactive() bool {
	return a.Color == "" && a.Effect == "" && a.Brightness < 0 && !a.Off && !a.Status && !a.List && !a.Test
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("pid_file", "/run/lightsync.pid")

	v.SetDefault("audio.sample_rate", 44100)
	v.SetDefault("audio.buffer_multiplier", 4)
	v.SetDefault("audio.min_buffer_frames", 0)
	v.SetDefault("audio.tick_interval", 16*time.Millisecond)
	v.SetDefault("audio.max_consecutive_failures", 3)

	v.SetDefault("reactive.mode", "spectrum")
	v.SetDefault("reactive.sensitivity", 1.0)
	v.SetDefault("reactive.min_interval", time.Duration(0))

	v.SetDefault("led.tier_order", []string{"native", "broadcast", "sysfs", "channels"})
	v.SetDefault("led.native_device", "/dev/led_ctrl")
	v.SetDefault("led.sysfs_root", "/sys/devices/platform/soc/soc:ap-ahb/222d0000.i2c/i2c-9/9-0030/leds/aw_led")
	v.SetDefault("led.led_class_root", "/sys/class/leds")
	v.SetDefault("led.probe_roots", []string{"/sys/devices/platform/soc/led", "/proc/led"})
	v.SetDefault("led.command_timeout", 2*time.Second)
	v.SetDefault("led.property_command", "")
	v.SetDefault("led.rainbow_duration", 5*time.Second)
	v.SetDefault("led.rainbow_colors", 7)
	v.SetDefault("led.executor_queue", 8)

	v.SetDefault("broadcast.enabled", false)
	v.SetDefault("broadcast.broker", "mqtt://127.0.0.1:1883")
	v.SetDefault("broadcast.client_id", "lightsyncd")
	v.SetDefault("broadcast.topic_prefix", "lights")
	v.SetDefault("broadcast.connect_timeout", 3*time.Second)

	v.SetDefault("settings.db_path", "/var/lib/lightsync/settings.db")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.db_path", "/var/lib/lightsync/history.db")
	v.SetDefault("history.batch_size", 120)
	v.SetDefault("history.batch_timeout", 10*time.Second)
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("lightsyncd", pflag.ContinueOnError)

	fs.String("config", "", "Path to configuration file")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	fs.String("mode", "spectrum", "Visualization mode (spectrum, bass_only, rainbow, breathing)")
	fs.Float64("sensitivity", 1.0, "Sensitivity multiplier (0.1 - 3.0)")
	fs.Bool("broadcast", false, "Publish commands to the hardware service broker")
	fs.String("broker", "", "Hardware service broker URL")
	fs.Bool("history", false, "Record actuation history")

	fs.String("color", "", "Set a static color (RRGGBB) and exit")
	fs.String("effect", "", "Run an effect (breathing, strobe, charging, notification, dance, rainbow-sweep) and exit")
	fs.Int("brightness", -1, "Set brightness (0 - 100) and exit")
	fs.Bool("off", false, "Turn the lights off and exit")
	fs.Bool("status", false, "Print actuator status and exit")
	fs.Bool("list", false, "List modes, effects and preset colors and exit")
	fs.Bool("test", false, "Switch the LED into its self test mode and exit")

	return fs
}

var flagBindings = map[string]string{
	"debug":       "debug",
	"verbose":     "verbose",
	"log-level":   "log_level",
	"mode":        "reactive.mode",
	"sensitivity": "reactive.sensitivity",
	"broadcast":   "broadcast.enabled",
	"broker":      "broadcast.broker",
	"history":     "history.enabled",
}

// Load builds the configuration from defaults, the TOML config file,
// LIGHTSYNC_* environment variables and finally command line flags.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flagName, key := range flagBindings {
		if err := v.BindPFlag(key, fs.Lookup(flagName)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	configPath, _ := fs.GetString("config")
	if configPath == "" {
		configPath = os.Getenv(EnvPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(DefaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath("/etc")
		v.AddConfigPath("$HOME/.config/lightsync")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	cfg.Action = Action{}
	cfg.Action.Color, _ = fs.GetString("color")
	cfg.Action.Effect, _ = fs.GetString("effect")
	cfg.Action.Brightness, _ = fs.GetInt("brightness")
	cfg.Action.Off, _ = fs.GetBool("off")
	cfg.Action.Status, _ = fs.GetBool("status")
	cfg.Action.List, _ = fs.GetBool("list")
	cfg.Action.Test, _ = fs.GetBool("test")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
