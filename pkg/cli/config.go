/*
Package cli facilitates building command-line applications that talk to a record-management
endpoint. It defines a [Config] type that can be used to register common command-line flags (using
the Golang flag package) and environment variable equivalents.

The package uses [keyring]'s platform-agnostic interface for storing the account access key in an
OS-dependent credential store.

# Examples

	import flag

	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		panic(err)
	}
	config.RegisterCommandLineFlags() // Adds command-line flags for endpoint, access key, session store.
	flag.Parse()
	config.ReadFromEnvironment()      // Fills in missing fields using environment variables
	if err := config.LoadCredentials(); err != nil { // Prompt for keyring password if needed
		panic(err)
	}

	crm, err := config.Client()
	if err != nil {
		panic(err)
	}
	records, err := crm.Query(ctx, "SELECT * FROM Contacts;")

A [Flag] mask controls which option groups are populated:

	config, err = cli.NewConfig(cli.FlagCredentials)               // endpoint + access key only
	config, err = cli.NewConfig(cli.FlagCredentials | cli.FlagSession) // same as FlagAll
*/
package cli

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/99designs/keyring"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/client"
	"github.com/trelliscrm/go-trellis/pkg/store"
)

// Environment variable names used by [Config.ReadFromEnvironment] to set common parameters.
const (
	EnvURL           = "TRELLIS_URL"
	EnvUsername      = "TRELLIS_USERNAME"
	EnvAccessKeyName = "TRELLIS_ACCESS_KEY_NAME"
	EnvAccessKeyFile = "TRELLIS_ACCESS_KEY_FILE"
	EnvSessionDriver = "TRELLIS_SESSION_DRIVER"
	EnvSessionFile   = "TRELLIS_SESSION_FILE"
	EnvRedisAddr     = "TRELLIS_REDIS_ADDR"
	EnvKeyringType   = "TRELLIS_KEYRING_TYPE"
	EnvKeyringPass   = "TRELLIS_KEYRING_PASSWORD"
	EnvKeyringPath   = "TRELLIS_KEYRING_PATH"
	EnvKeyringDebug  = "TRELLIS_KEYRING_DEBUG"
)

// Flag controls what options should be scanned from the command line and/or environment variables.
type Flag int

func (f Flag) isSet(other Flag) bool {
	return (f & other) == other
}

const (
	FlagCredentials Flag = 1 // Enable endpoint URL, username, and access key options.
	FlagSession     Flag = 2 // Enable session store and retry options.
	FlagAll         Flag = FlagCredentials | FlagSession
)

var (
	ErrNoAccessKey = errors.New("access key location not provided")
	ErrKeyNotFound = keyring.ErrKeyNotFound
)

// Config fields determine how a client authenticates to the remote endpoint and where it caches
// session state.
type Config struct {
	Flags         Flag   // Controls which set of environment variables/CLI flags to use.
	URL           string // Webservice endpoint URL.
	Username      string
	AccessKeyName string // Name for the access key in the system keyring.
	AccessKeyFile string // A file containing the access key.

	SessionDriver     string
	SessionFile       string
	RedisAddr         string
	RedisDB           int
	PersistConnection bool
	MaxRetries        int

	Backend     keyring.Config
	BackendType backendType
	Debug       bool // Enable keyring debug messages

	password  *string
	accessKey string
}

func NewConfig(flags Flag) (*Config, error) {
	c := Config{
		Flags: flags,
		Backend: keyring.Config{
			ServiceName:              keyringServiceName,
			KeychainTrustApplication: true,
			KeyCtlScope:              "user",
		},
	}
	c.BackendType = backendType{&c}
	c.Backend.KeychainPasswordFunc = c.getPassword
	c.Backend.FilePasswordFunc = c.getPassword

	return &c, nil
}

func (c *Config) RegisterCommandLineFlags() {
	if c.Flags.isSet(FlagCredentials) {
		flag.StringVar(&c.URL, "url", "", "Webservice endpoint `URL`. Defaults to $TRELLIS_URL.")
		flag.StringVar(&c.Username, "u", "", "Account `username`. Defaults to $TRELLIS_USERNAME.")
		flag.StringVar(&c.AccessKeyName, "access-key-name", "", "System keyring `name` for the access key. Defaults to $TRELLIS_ACCESS_KEY_NAME.")
		flag.StringVar(&c.AccessKeyFile, "access-key-file", "", "A `file` containing the access key. Defaults to $TRELLIS_ACCESS_KEY_FILE.")
	}
	if c.Flags.isSet(FlagSession) {
		flag.StringVar(&c.SessionDriver, "session-driver", "", "Session store `driver` ("+store.DriverFile+"|"+store.DriverRedis+"). Defaults to $TRELLIS_SESSION_DRIVER.")
		flag.StringVar(&c.SessionFile, "session-file", "", "Session document `file` for the file driver. Defaults to $TRELLIS_SESSION_FILE.")
		flag.StringVar(&c.RedisAddr, "redis-addr", "", "Redis `host:port` for the redis driver. Defaults to $TRELLIS_REDIS_ADDR.")
		flag.IntVar(&c.RedisDB, "redis-db", 0, "Redis logical database `number` for the redis driver.")
		flag.BoolVar(&c.PersistConnection, "persist-connection", false, "Keep the session warm instead of logging out after every operation.")
		flag.IntVar(&c.MaxRetries, "max-retries", 0, "Handshake attempt `budget` against a flaky endpoint (0 selects the default).")
	}
	if c.Flags.isSet(FlagCredentials) {
		var names []string
		for _, name := range keyring.AvailableBackends() {
			names = append(names, string(name))
		}
		sort.Strings(names)
		flag.Var(&c.BackendType, "keyring-type", "Keyring `type` ("+strings.Join(names, "|")+"). Defaults to $TRELLIS_KEYRING_TYPE.")
		flag.StringVar(&c.Backend.FileDir, "keyring-file-dir", keyringDirectory, "keyring `directory` for file-backed keyring types")
		flag.BoolVar(&c.Debug, "keyring-debug", false, "Enable keyring debug logging")
	}
}

// LoadCredentials resolves the access key, prompting for a keyring password if needed. Call this
// method before [Config.Client] to prevent interactive prompts from counting against timeouts.
func (c *Config) LoadCredentials() error {
	if c.Flags.isSet(FlagCredentials) {
		if _, err := c.AccessKey(); err != nil {
			return err
		}
	}
	return nil
}

// ReadFromEnvironment populates c using environment variables. Values that are already populated
// are not overwritten.
//
// Calling ReadFromEnvironment after flag.Parse() (or other initialization method) will prevent the
// environment from overriding explicit command-line parameters.
func (c *Config) ReadFromEnvironment() {
	if c.Flags.isSet(FlagCredentials) {
		if c.URL == "" {
			c.URL = os.Getenv(EnvURL)
			log.Debug("Set URL to '%s'", c.URL)
		}
		if c.Username == "" {
			c.Username = os.Getenv(EnvUsername)
			log.Debug("Set username to '%s'", c.Username)
		}
		if c.AccessKeyName == "" && c.AccessKeyFile == "" {
			c.AccessKeyName = os.Getenv(EnvAccessKeyName)
			log.Debug("Set access key name to '%s'", c.AccessKeyName)

			c.AccessKeyFile = os.Getenv(EnvAccessKeyFile)
			log.Debug("Set access key file to '%s'", c.AccessKeyFile)
		}
		if c.BackendType.String() == string(keyring.InvalidBackend) {
			if err := c.BackendType.Set(os.Getenv(EnvKeyringType)); err == nil {
				log.Debug("Set keyring type to '%s'", c.BackendType)
			}
		}
		if c.password == nil {
			password := os.Getenv(EnvKeyringPass)
			c.password = &password
			if len(password) > 0 {
				log.Debug("Set keyring File Password to %s", strings.Repeat("*", len("hunter2")))
			}
		}
		if c.Backend.FileDir == "" {
			c.Backend.FileDir = os.Getenv(EnvKeyringPath)
			log.Debug("Set keyring File Path to '%s'", c.Backend.FileDir)
		}
		if !c.Debug {
			_, c.Debug = os.LookupEnv(EnvKeyringDebug)
			log.Debug("Set keyring Debug Logging to '%v'", c.Debug)
		}
	}
	if c.Flags.isSet(FlagSession) {
		if c.SessionDriver == "" {
			c.SessionDriver = os.Getenv(EnvSessionDriver)
			log.Debug("Set session driver to '%s'", c.SessionDriver)
		}
		if c.SessionFile == "" {
			c.SessionFile = os.Getenv(EnvSessionFile)
			log.Debug("Set session file to '%s'", c.SessionFile)
		}
		if c.RedisAddr == "" {
			c.RedisAddr = os.Getenv(EnvRedisAddr)
			log.Debug("Set redis address to '%s'", c.RedisAddr)
		}
	}
}

// AccessKey loads the access key from the location specified in c. The key is cached after it is
// first loaded, and subsequent calls will always return the same value.
func (c *Config) AccessKey() (string, error) {
	if c.accessKey != "" {
		return c.accessKey, nil
	}
	if c.AccessKeyFile == "" && c.AccessKeyName == "" {
		return "", ErrNoAccessKey
	}
	if c.AccessKeyFile != "" {
		data, err := os.ReadFile(c.AccessKeyFile)
		if err == nil {
			c.accessKey = strings.TrimSpace(string(data))
			return c.accessKey, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", err
		}
		// If the key file doesn't exist, fall through to trying to load from the system keyring.
	}
	key, err := c.LoadAccessKeyFromKeyring()
	if err != nil {
		return "", err
	}
	c.accessKey = key
	return c.accessKey, nil
}

// Client builds a [client.Client] from the configured options.
func (c *Config) Client() (*client.Client, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("must provide an endpoint URL")
	}
	accessKey, err := c.AccessKey()
	if err != nil {
		return nil, err
	}
	return client.New(client.Config{
		Credential: client.Credential{
			URL:       c.URL,
			Username:  c.Username,
			AccessKey: accessKey,
		},
		SessionDriver:     c.SessionDriver,
		SessionFile:       c.SessionFile,
		RedisAddr:         c.RedisAddr,
		RedisDB:           c.RedisDB,
		PersistConnection: c.PersistConnection,
		MaxRetries:        c.MaxRetries,
	}), nil
}
