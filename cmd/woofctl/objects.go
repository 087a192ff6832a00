package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/urfave/cli/v2"
)

func objectsCommand() *cli.Command {
	return &cli.Command{
		Name:    "objects",
		Aliases: []string{"obj"},
		Usage:   "manage objects and bucket notifications",
		Subcommands: []*cli.Command{
			{
				Name:      "put",
				Usage:     "Upload an object",
				ArgsUsage: "<bucket> <key>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Usage: "source file (default: stdin)"},
					&cli.StringFlag{Name: "content-type", Value: "application/octet-stream"},
				},
				Action: objPut,
			},
			{
				Name:      "get",
				Usage:     "Download an object to stdout",
				ArgsUsage: "<bucket> <key>",
				Action:    objGet,
			},
			{
				Name:      "delete",
				Usage:     "Delete an object",
				ArgsUsage: "<bucket> <key>",
				Action:    objDelete,
			},
			{
				Name:      "list",
				Usage:     "List a bucket's objects",
				ArgsUsage: "<bucket>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "prefix"},
				},
				Action: objList,
			},
			{
				Name:      "set-notification",
				Usage:     "Install a bucket's notification configuration from an XML file",
				ArgsUsage: "<bucket>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true},
				},
				Action: objSetNotification,
			},
		},
	}
}

func bucketKeyArgs(c *cli.Context) (string, string, error) {
	bucket, key := c.Args().Get(0), c.Args().Get(1)
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("usage: woofctl objects %s <bucket> <key>", c.Command.Name)
	}
	return bucket, key, nil
}

func objPut(c *cli.Context) error {
	bucket, key, err := bucketKeyArgs(c)
	if err != nil {
		return err
	}

	var src io.Reader = os.Stdin
	if path := c.String("file"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}

	return requestRaw(c, http.MethodPut, s3URL(c, "/"+bucket+"/"+key), data,
		map[string]string{"Content-Type": c.String("content-type")}, os.Stderr)
}

func objGet(c *cli.Context) error {
	bucket, key, err := bucketKeyArgs(c)
	if err != nil {
		return err
	}
	return requestRaw(c, http.MethodGet, s3URL(c, "/"+bucket+"/"+key), nil, nil, os.Stdout)
}

func objDelete(c *cli.Context) error {
	bucket, key, err := bucketKeyArgs(c)
	if err != nil {
		return err
	}
	return requestRaw(c, http.MethodDelete, s3URL(c, "/"+bucket+"/"+key), nil, nil, os.Stderr)
}

func objList(c *cli.Context) error {
	bucket := c.Args().First()
	if bucket == "" {
		return fmt.Errorf("usage: woofctl objects list <bucket>")
	}
	url := s3URL(c, "/"+bucket)
	if prefix := c.String("prefix"); prefix != "" {
		url += "?prefix=" + prefix
	}
	return requestRaw(c, http.MethodGet, url, nil, nil, os.Stdout)
}

func objSetNotification(c *cli.Context) error {
	bucket := c.Args().First()
	if bucket == "" {
		return fmt.Errorf("usage: woofctl objects set-notification <bucket> --file <xml>")
	}
	data, err := os.ReadFile(c.String("file"))
	if err != nil {
		return err
	}
	return requestRaw(c, http.MethodPut, s3URL(c, "/"+bucket+"?notification"), data,
		map[string]string{"Content-Type": "application/xml"}, os.Stderr)
}
