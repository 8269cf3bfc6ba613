// Utility for inspecting and clearing the cached session document, and for enrolling the account
// access key in the system keyring.

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/trelliscrm/go-trellis/internal/log"
	"github.com/trelliscrm/go-trellis/pkg/cli"
	"github.com/trelliscrm/go-trellis/pkg/session"
	"github.com/trelliscrm/go-trellis/pkg/store"
)

func writeErr(format string, a ...interface{}) {
	fmt.Fprintf(os.Stderr, format, a...)
	fmt.Fprintf(os.Stderr, "\n")
}

const usageText = `
Shows or clears the session document cached by the configured session store, or enrolls an access
key in the system keyring for later use with -access-key-name.

The session store is selected with -session-driver and its options, or through the corresponding
environment variables.`

func cliUsage() {
	usage(flag.CommandLine.Output())
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "usage: %s [OPTION...] show|clear|enroll-key|delete-key\n", filepath.Base(os.Args[0]))
	fmt.Fprintln(w, usageText)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "OPTIONS:")
	flag.PrintDefaults()
}

func openManager(config *cli.Config) *session.Manager {
	driver := config.SessionDriver
	if driver == "" {
		driver = store.DriverFile
	}
	return session.NewManager(session.Config{
		StoreConfig: store.Config{
			Driver:    driver,
			Path:      config.SessionFile,
			RedisAddr: config.RedisAddr,
			RedisDB:   config.RedisDB,
		},
	})
}

func showDocument(ctx context.Context, manager *session.Manager) error {
	doc, err := manager.Peek(ctx)
	if err != nil {
		return err
	}
	if doc == nil {
		fmt.Println("no cached session")
		return nil
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(doc); err != nil {
		return err
	}
	if !doc.Fresh(time.Now()) {
		fmt.Println("(token expired)")
	}
	return nil
}

func main() {
	var debug bool
	status := 1
	defer func() {
		os.Exit(status)
	}()

	config, err := cli.NewConfig(cli.FlagAll)
	if err != nil {
		writeErr("Failed to load configuration: %s", err)
		return
	}
	flag.Usage = cliUsage
	flag.BoolVar(&debug, "debug", false, "Enable verbose debugging messages")
	config.RegisterCommandLineFlags()
	flag.Parse()
	if debug {
		log.SetLevel(log.LevelDebug)
	}
	config.ReadFromEnvironment()

	if flag.NArg() != 1 {
		usage(os.Stderr)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch flag.Arg(0) {
	case "show":
		err = showDocument(ctx, openManager(config))
	case "clear":
		err = openManager(config).Invalidate(ctx)
	case "enroll-key":
		if config.AccessKeyName == "" {
			err = fmt.Errorf("enroll-key requires -access-key-name")
			break
		}
		var key string
		key, err = readAccessKey(config)
		if err != nil {
			break
		}
		err = config.SaveAccessKeyToKeyring(key)
	case "delete-key":
		err = config.DeleteAccessKey()
	default:
		usage(os.Stderr)
		return
	}

	if err != nil {
		writeErr("Error: %s", err)
		return
	}
	status = 0
}

// readAccessKey takes the key from -access-key-file when given, otherwise from stdin.
func readAccessKey(config *cli.Config) (string, error) {
	if config.AccessKeyFile != "" {
		data, err := os.ReadFile(config.AccessKeyFile)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	fmt.Fprint(os.Stderr, "Access key: ")
	var key string
	if _, err := fmt.Scanln(&key); err != nil {
		return "", err
	}
	return key, nil
}
