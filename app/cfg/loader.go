package cfg

import (
	"cmp"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Storage configuration
	DBPath       string `long:"db-path" env:"DB_PATH" default:"./rss-merge.db" description:"SQLite database file"`
	SettingsFile string `long:"settings-file" env:"SETTINGS_FILE" default:"./settings.yml" description:"YAML file with feed and rendering settings"`

	// Application configuration
	Port          string `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	APIAccessKey  string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`
	FetchInterval int    `long:"fetch-interval" env:"FETCH_INTERVAL" default:"60" description:"Minutes between feed fetch runs"`
	QueueInterval int    `long:"queue-interval" env:"QUEUE_INTERVAL" default:"300" description:"Seconds between queue evaluations"`
	FetchTimeout  int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"HTTP timeout in seconds for feed requests"`

	// Redis run lock (optional)
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address used to serialize runs across processes (optional)"`
	RedisPassword string `long:"redis-password" env:"REDIS_PASSWORD" description:"Redis password"`
	RedisDB       int    `long:"redis-db" env:"REDIS_DB" default:"0" description:"Redis database number"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"RSS Merge/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, America/New_York)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`

	Serve    struct{} `command:"serve" description:"Run the HTTP server and background scheduler (default)"`
	Fetch    struct{} `command:"fetch" description:"Fetch all active feeds once"`
	Queue    struct{} `command:"queue" description:"Evaluate ready RSS messages once"`
	Reset    struct{} `command:"reset" description:"Delete all items and clear feed cache validators"`
	Purge    purgeCmd `command:"purge" description:"Delete old items and unused feeds"`
	Validate struct {
		URL string `long:"url" required:"true" description:"Feed URL to probe"`
	} `command:"validate" description:"Fetch and parse a feed URL without storing it"`
}

type purgeCmd struct {
	Days        int  `long:"days" default:"30" description:"Delete items published more than this many days ago (0 keeps all)"`
	UnusedFeeds bool `long:"unused-feeds" description:"Also delete feeds no message refers to"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	_ = godotenv.Load()

	return LoadArgs(os.Args[1:])
}

// LoadArgs parses args and the environment. It returns nil, nil when help
// was requested.
func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	parser.SubcommandsOptional = true

	rest, err := parser.ParseArgs(args)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", rest)
	}

	command := CommandServe
	if parser.Active != nil {
		command = Command(parser.Active.Name)
	}

	if raw.FetchInterval < 1 {
		return nil, fmt.Errorf("fetch interval must be at least 1 minute")
	}
	if raw.QueueInterval < 1 {
		return nil, fmt.Errorf("queue interval must be at least 1 second")
	}

	cfg := &Cfg{
		DBPath:           raw.DBPath,
		SettingsFile:     raw.SettingsFile,
		Port:             raw.Port,
		APIAccessKey:     raw.APIAccessKey,
		FetchInterval:    raw.FetchInterval,
		QueueInterval:    raw.QueueInterval,
		FetchTimeout:     raw.FetchTimeout,
		RedisAddr:        raw.RedisAddr,
		RedisPassword:    raw.RedisPassword,
		RedisDB:          raw.RedisDB,
		UserAgent:        raw.UserAgent,
		Timezone:         raw.Timezone,
		Debug:            raw.Debug,
		Version:          GetVersion(),
		Command:          command,
		PurgeDays:        raw.Purge.Days,
		PurgeUnusedFeeds: raw.Purge.UnusedFeeds,
		ValidateURL:      raw.Validate.URL,
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
		}
	}
	return nil
}
