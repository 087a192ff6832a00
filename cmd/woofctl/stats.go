package main

import (
	"net/http"

	"github.com/urfave/cli/v2"
)

func statsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print both services' metrics snapshots",
		Action: func(c *cli.Context) error {
			if err := requestJSON(c, http.MethodGet, lambdaURL(c, "/_woofstack/stats"), nil, nil); err != nil {
				return err
			}
			return requestJSON(c, http.MethodGet, s3URL(c, "/_woofstack/stats"), nil, nil)
		},
	}
}
