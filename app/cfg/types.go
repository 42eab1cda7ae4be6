package cfg

import "time"

type Command string

const (
	CommandServe    Command = "serve"
	CommandFetch    Command = "fetch"
	CommandQueue    Command = "queue"
	CommandPurge    Command = "purge"
	CommandReset    Command = "reset"
	CommandValidate Command = "validate"
)

type Cfg struct {
	// Storage configuration
	DBPath       string
	SettingsFile string

	// Application configuration
	Port          string
	APIAccessKey  string
	FetchInterval int // minutes
	QueueInterval int // seconds
	FetchTimeout  int // seconds

	// Redis run lock
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string

	// Command line
	Command          Command
	PurgeDays        int
	PurgeUnusedFeeds bool
	ValidateURL      string
}

func (c *Cfg) FetchEvery() time.Duration {
	return time.Duration(c.FetchInterval) * time.Minute
}

func (c *Cfg) QueueEvery() time.Duration {
	return time.Duration(c.QueueInterval) * time.Second
}

func (c *Cfg) FetchTimeoutDuration() time.Duration {
	return time.Duration(c.FetchTimeout) * time.Second
}
