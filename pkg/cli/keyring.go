package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/99designs/keyring"
	"golang.org/x/term"
)

const (
	keyringServiceName      = "com.trelliscrm.auth"
	keyringAccessKeyService = "accesskey"
	keyringDirectory        = "~/.trellis_keys"
)

type backendType struct {
	config *Config
}

func (b backendType) String() string {
	if b.config == nil || len(b.config.Backend.AllowedBackends) == 0 {
		return string(keyring.InvalidBackend)
	}
	return string(b.config.Backend.AllowedBackends[0])
}

func (b backendType) Set(v string) error {
	value := keyring.BackendType(v)
	if b.config == nil {
		return fmt.Errorf("invalid backendType")
	}
	if v == "" {
		return nil
	}
	for _, name := range keyring.AvailableBackends() {
		if name == value {
			b.config.Backend.AllowedBackends = []keyring.BackendType{name}
			return nil
		}
	}
	return fmt.Errorf("unsupported credential storage")
}

func (c *Config) getPassword(prompt string) (string, error) {
	if c.password != nil && *c.password != "" {
		return *c.password, nil
	}

	var w io.Writer
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		fd = int(os.Stderr.Fd())
		if !term.IsTerminal(fd) {
			return "", fmt.Errorf("no terminal output available for password prompt")
		}
		w = os.Stderr
	} else {
		w = os.Stdout
	}

	fmt.Fprintf(w, "%s: ", prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(w)
	password := string(b)
	c.password = &password
	return password, nil
}

func (c *Config) openKeyring() (keyring.Keyring, error) {
	return keyring.Open(c.Backend)
}

func (c *Config) fullAccessKeyName() string {
	return keyringAccessKeyService + "." + c.AccessKeyName
}

// LoadAccessKeyFromKeyring loads the account access key from the system keyring.
//
// The name must match the value provided to SaveAccessKeyToKeyring.
func (c *Config) LoadAccessKeyFromKeyring() (string, error) {
	kr, err := c.openKeyring()
	if err != nil {
		return "", err
	}

	item, err := kr.Get(c.fullAccessKeyName())
	if err != nil {
		return "", fmt.Errorf("could not load access key: %s", err)
	}
	return string(item.Data), nil
}

// SaveAccessKeyToKeyring writes the account access key to the system keyring.
//
// The name identifies the key for future use with LoadAccessKeyFromKeyring and does not
// necessarily need to match the account username.
func (c *Config) SaveAccessKeyToKeyring(accessKey string) error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}

	if err := kr.Set(keyring.Item{
		Key:  c.fullAccessKeyName(),
		Data: []byte(accessKey),
	}); err != nil {
		return fmt.Errorf("failed to enroll access key in keyring: %s", err)
	}
	return nil
}

// DeleteAccessKey removes the access key from the system keyring.
func (c *Config) DeleteAccessKey() error {
	kr, err := c.openKeyring()
	if err != nil {
		return err
	}
	return kr.Remove(c.fullAccessKeyName())
}
