package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/samnetworks/samcore/src/common"
	"github.com/samnetworks/samcore/src/net"
	"github.com/samnetworks/samcore/src/settings"
)

// Default configuration values.
const (
	DefaultHubName     = "samcore"
	DefaultLogLevel    = "debug"
	DefaultTransport   = "unix"
	DefaultWSAddr      = "127.0.0.1:8211"
	DefaultDialTimeout = 1000 * time.Millisecond

	// DefaultJournalFile is the default name of the folder containing the
	// Badger journal database.
	DefaultJournalFile = "journal_db"
)

// Config contains all the configuration properties of a SamCore hub.
type Config struct {
	// HubName is the name under which the hub itself is addressable. Nodes
	// locate the hub's socket from this name alone.
	HubName string `mapstructure:"hub"`

	// DataDir is the working directory: the settings file, the journal
	// database and the persistent-node subdirectories are resolved relative
	// to it.
	DataDir string `mapstructure:"datadir"`

	// SocketDir is the directory holding the named local socket.
	SocketDir string `mapstructure:"socket-dir"`

	// Transport selects the stream layer: "unix" or "ws".
	Transport string `mapstructure:"transport"`

	// WSAddr is the listen address of the WebSocket stream layer. Only used
	// when Transport is "ws".
	WSAddr string `mapstructure:"ws-listen"`

	// ServiceAddr is the address:port of the optional HTTP status service.
	// Empty disables the service.
	ServiceAddr string `mapstructure:"service-listen"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, adds per-level log files (info.log, debug.log) in
	// that directory.
	LogDir string `mapstructure:"log-dir"`

	// Journal activates the badger-backed journal of routed frames.
	Journal bool `mapstructure:"journal"`

	// JournalDir is the directory containing journal database files.
	JournalDir string `mapstructure:"journal-db"`

	// DialTimeout holds the transport dial timeout set by --timeout. Nothing
	// in this repository reads it: the hub never dials, and client.Client
	// uses its own fixed one-second dial timeout.
	DialTimeout time.Duration `mapstructure:"timeout"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	cwd, _ := os.Getwd()

	return &Config{
		HubName:     DefaultHubName,
		DataDir:     cwd,
		SocketDir:   os.TempDir(),
		Transport:   DefaultTransport,
		WSAddr:      DefaultWSAddr,
		LogLevel:    DefaultLogLevel,
		JournalDir:  filepath.Join(cwd, DefaultJournalFile),
		DialTimeout: DefaultDialTimeout,
	}
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the working directory, and updates the journal directory
// if it is currently set to the default value. If the journal directory is
// not currently the default, the user has explicitely set it to something
// else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	old := filepath.Join(c.DataDir, DefaultJournalFile)
	c.DataDir = dataDir
	if c.JournalDir == old {
		c.JournalDir = filepath.Join(dataDir, DefaultJournalFile)
	}
}

// SettingsFile returns the full path of the settings file.
func (c *Config) SettingsFile() string {
	return filepath.Join(c.DataDir, settings.DefaultFileName)
}

// SocketPath returns the full path of the named local socket.
func (c *Config) SocketPath() string {
	return net.SocketPath(c.SocketDir, c.HubName)
}

// Logger returns a formatted logrus Entry, with prefix set to the hub name.
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogDir != "" {
			c.logger.Hooks.Add(lfshook.NewHook(
				lfshook.PathMap{
					logrus.InfoLevel:  filepath.Join(c.LogDir, "info.log"),
					logrus.DebugLevel: filepath.Join(c.LogDir, "debug.log"),
				},
				&logrus.TextFormatter{},
			))
		}
	}
	return c.logger.WithField("prefix", c.HubName)
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
