package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/woofstack/platform/functions"
)

func functionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "functions",
		Aliases: []string{"fn"},
		Usage:   "manage functions",
		Subcommands: []*cli.Command{
			{
				Name:  "create",
				Usage: "Create a function from a handler source file or zip bundle",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "handler", Usage: "pkg.func entry point", Value: "main.handler"},
					&cli.StringFlag{Name: "file", Usage: "handler .lua source or .zip bundle", Required: true},
				},
				Action: fnCreate,
			},
			{
				Name:   "list",
				Usage:  "List functions",
				Action: fnList,
			},
			{
				Name:      "delete",
				Usage:     "Delete a function",
				ArgsUsage: "<name>",
				Action:    fnDelete,
			},
			{
				Name:      "invoke",
				Usage:     "Invoke a function",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "payload", Usage: "JSON event payload", Value: "{}"},
					&cli.BoolFlag{Name: "event", Usage: "fire-and-forget (Event) invocation"},
				},
				Action: fnInvoke,
			},
			{
				Name:      "update-code",
				Usage:     "Replace a function's code bundle",
				ArgsUsage: "<name>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "handler .lua source or .zip bundle", Required: true},
				},
				Action: fnUpdateCode,
			},
		},
	}
}

// bundleFromFile accepts either a ready zip or a single .lua source,
// which gets packaged as a one-file bundle named after the handler's
// package segment.
func bundleFromFile(path, handler string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return data, nil
	}

	pkg, _, ok := strings.Cut(handler, ".")
	if !ok {
		return nil, fmt.Errorf("handler %q is not of the form pkg.func", handler)
	}
	return functions.ZipBundle(map[string]string{pkg + ".lua": string(data)})
}

func fnCreate(c *cli.Context) error {
	bundle, err := bundleFromFile(c.String("file"), c.String("handler"))
	if err != nil {
		return err
	}

	body := map[string]any{
		"FunctionName": c.String("name"),
		"Handler":      c.String("handler"),
		"Code":         map[string]string{"ZipFile": base64.StdEncoding.EncodeToString(bundle)},
	}
	return postJSON(c, lambdaURL(c, "/2015-03-31/functions"), body)
}

func fnUpdateCode(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("usage: woofctl functions update-code <name> --file <path>")
	}

	// The handler's package name isn't known here; a bare .lua source is
	// packaged as main.lua, the create-time default.
	bundle, err := bundleFromFile(c.String("file"), "main.handler")
	if err != nil {
		return err
	}

	body := map[string]string{"ZipFile": base64.StdEncoding.EncodeToString(bundle)}
	return requestJSON(c, http.MethodPut, lambdaURL(c, "/2015-03-31/functions/"+name+"/code"), body, nil)
}

func fnList(c *cli.Context) error {
	return requestJSON(c, http.MethodGet, lambdaURL(c, "/2015-03-31/functions"), nil, nil)
}

func fnDelete(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("usage: woofctl functions delete <name>")
	}
	return requestJSON(c, http.MethodDelete, lambdaURL(c, "/2015-03-31/functions/"+name), nil, nil)
}

func fnInvoke(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return fmt.Errorf("usage: woofctl functions invoke <name>")
	}

	var payload json.RawMessage = []byte(c.String("payload"))
	if !json.Valid(payload) {
		return fmt.Errorf("--payload is not valid JSON")
	}

	headers := map[string]string{"X-Amz-Invocation-Type": "RequestResponse"}
	if c.Bool("event") {
		headers["X-Amz-Invocation-Type"] = "Event"
	}
	return requestJSON(c, http.MethodPost, lambdaURL(c, "/2015-03-31/functions/"+name+"/invocations"), payload, headers)
}
