package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/trelliscrm/go-trellis/pkg/client"
	"github.com/trelliscrm/go-trellis/pkg/protocol"
)

var (
	ErrCommandLineArgs = errors.New("invalid command line arguments")
	ErrUnknownCommand  = errors.New("unrecognized command")
)

type Argument struct {
	name string
	help string
}

type Handler func(ctx context.Context, crm *client.Client, args map[string]string) error

type Command struct {
	help     string
	args     []Argument
	optional []Argument
	handler  Handler
}

func contextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// printResult pretty-prints the result payload of a successful operation.
func printResult(result *protocol.Result) error {
	if len(result.Result) == 0 {
		fmt.Println("ok")
		return nil
	}
	var pretty interface{}
	if err := json.Unmarshal(result.Result, &pretty); err != nil {
		return err
	}
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(pretty)
}

// parseElement decodes the JSON field-value payload given on the command line.
func parseElement(raw string) (map[string]interface{}, error) {
	element := make(map[string]interface{})
	if err := json.Unmarshal([]byte(raw), &element); err != nil {
		return nil, fmt.Errorf("%w: element must be a JSON object: %s", ErrCommandLineArgs, err)
	}
	return element, nil
}

func execute(ctx context.Context, crm *client.Client, args []string) error {
	if len(args) == 0 {
		return errors.New("missing COMMAND")
	}

	info, ok := commands[args[0]]
	if !ok {
		return ErrUnknownCommand
	}

	var err error
	if len(args)-1 < len(info.args) || len(args)-1 > len(info.args)+len(info.optional) {
		writeErr("Invalid number of command line arguments: %d (%d required, %d optional).", len(args), len(info.args), len(info.optional))
		err = ErrCommandLineArgs
	} else {
		keywords := make(map[string]string)
		for i, argInfo := range info.args {
			keywords[argInfo.name] = args[i+1]
		}
		index := len(info.args) + 1
		for _, argInfo := range info.optional {
			if index >= len(args) {
				break
			}
			keywords[argInfo.name] = args[index]
			index++
		}
		err = info.handler(ctx, crm, keywords)
	}

	// Print command-specific help
	if errors.Is(err, ErrCommandLineArgs) {
		info.Usage(args[0])
	}
	return err
}

func (c *Command) Usage(name string) {
	fmt.Printf("Usage: %s", name)
	maxLength := 0
	for _, arg := range c.args {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" [")
	}
	for _, arg := range c.optional {
		fmt.Printf(" %s", arg.name)
		if len(arg.name) > maxLength {
			maxLength = len(arg.name)
		}
	}
	if len(c.optional) > 0 {
		fmt.Printf(" ]")
	}
	fmt.Printf("\n%s\n", c.help)
	maxLength++
	for _, arg := range c.args {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
	for _, arg := range c.optional {
		fmt.Printf("    %s:%s%s\n", arg.name, strings.Repeat(" ", maxLength-len(arg.name)), arg.help)
	}
}

var commands = map[string]*Command{
	"query": &Command{
		help: "Run a query-language statement and print the matching records",
		args: []Argument{
			Argument{name: "QUERY", help: "Statement in the server's query language, e.g. \"SELECT * FROM Contacts;\""},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			result, err := crm.Query(ctx, args["QUERY"])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	},
	"get": &Command{
		help: "Retrieve a single record by id",
		args: []Argument{
			Argument{name: "ID", help: "Webservice record id, formatted as {moduleCode}x{itemId}"},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			result, err := crm.Retrieve(ctx, args["ID"])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	},
	"create": &Command{
		help: "Create a record of TYPE from a JSON field-value payload",
		args: []Argument{
			Argument{name: "TYPE", help: "Element type name, e.g. Contacts"},
			Argument{name: "ELEMENT", help: "JSON object of field values; include the assigned-owner field or the server will reject the record"},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			element, err := parseElement(args["ELEMENT"])
			if err != nil {
				return err
			}
			result, err := crm.Create(ctx, args["TYPE"], element)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	},
	"update": &Command{
		help: "Write back a previously retrieved record",
		args: []Argument{
			Argument{name: "ELEMENT", help: "JSON object of the full record, including its id, with the mutated fields"},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			element, err := parseElement(args["ELEMENT"])
			if err != nil {
				return err
			}
			result, err := crm.Update(ctx, element)
			if err != nil {
				return err
			}
			return printResult(result)
		},
	},
	"delete": &Command{
		help: "Delete a record by id",
		args: []Argument{
			Argument{name: "ID", help: "Webservice record id, formatted as {moduleCode}x{itemId}"},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			result, err := crm.Delete(ctx, args["ID"])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	},
	"describe": &Command{
		help: "Print field metadata for an element type",
		args: []Argument{
			Argument{name: "TYPE", help: "Element type name, e.g. Contacts"},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			result, err := crm.Describe(ctx, args["TYPE"])
			if err != nil {
				return err
			}
			return printResult(result)
		},
	},
	"id": &Command{
		help: "Format a module code and item id as a webservice record id",
		args: []Argument{
			Argument{name: "MODULE_CODE", help: "Numeric module code from describe output"},
			Argument{name: "ITEM_ID", help: "Record number within the module"},
		},
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			fmt.Println(client.FormatRecordID(args["MODULE_CODE"], args["ITEM_ID"]))
			return nil
		},
	},
	"logout": &Command{
		help: "End the cached session and drop the session document",
		handler: func(ctx context.Context, crm *client.Client, args map[string]string) error {
			doc, err := crm.Sessions().Peek(ctx)
			if err != nil {
				return err
			}
			if doc != nil && doc.SessionID != "" {
				if _, err := crm.Close(ctx, doc.SessionID); err != nil {
					writeErr("Logout request failed: %s", err)
				}
			}
			return crm.Sessions().Invalidate(ctx)
		},
	},
}
