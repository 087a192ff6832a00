package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/woofstack/platform/iox"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

func lambdaURL(c *cli.Context, path string) string {
	return strings.TrimSuffix(c.String("lambda-endpoint"), "/") + path
}

func s3URL(c *cli.Context, path string) string {
	return strings.TrimSuffix(c.String("s3-endpoint"), "/") + path
}

// requestRaw performs one request and streams the response body to out.
// Non-2xx responses become errors carrying the response text.
func requestRaw(_ *cli.Context, method, url string, body []byte, headers map[string]string, out io.Writer) error {
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %s: %s", method, url, resp.Status, strings.TrimSpace(string(text)))
	}

	_, err = io.Copy(out, resp.Body)
	return err
}

// requestJSON performs one request with a JSON body (when non-nil) and
// pretty-prints the JSON response to stdout.
func requestJSON(c *cli.Context, method, url string, body any, headers map[string]string) error {
	var encoded []byte
	if body != nil {
		var err error
		encoded, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	if headers == nil {
		headers = map[string]string{}
	}
	if _, ok := headers["Content-Type"]; !ok && encoded != nil {
		headers["Content-Type"] = "application/json"
	}

	var buf bytes.Buffer
	if err := requestRaw(c, method, url, encoded, headers, &buf); err != nil {
		return err
	}
	if buf.Len() == 0 {
		fmt.Println("ok")
		return nil
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, buf.Bytes(), "", "  "); err != nil {
		// Not JSON; print as-is.
		_, _ = os.Stdout.Write(buf.Bytes())
		fmt.Println()
		return nil
	}
	fmt.Println(pretty.String())
	return nil
}

func postJSON(c *cli.Context, url string, body any) error {
	return requestJSON(c, http.MethodPost, url, body, nil)
}
