// leap makes a single LEAP request, similar to curl for JSON over HTTP.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/config"
	"github.com/lutron-community/leap-go/internal/pkg/leap"
)

func main() {
	app := &cli.App{
		Name:      "leap",
		Usage:     "make a single LEAP request",
		ArgsUsage: "<host>/<path>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "request",
				Aliases: []string{"X"},
				Usage:   "the CommuniqueType to send",
				Value:   string(leap.ReadRequest),
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "the JSON body to send with the request",
			},
			&cli.BoolFlag{
				Name:    "fail",
				Aliases: []string{"f"},
				Usage:   "exit non-zero when the status code does not indicate success",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "save the response into a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "output the response header as well",
			},
			&cli.StringFlag{
				Name:    "cacert",
				Usage:   "path to the bridge CA certificate",
				EnvVars: []string{"LEAP_CACERT"},
			},
			&cli.StringFlag{
				Name:    "cert",
				Aliases: []string{"E"},
				Usage:   "path to the client certificate",
				EnvVars: []string{"LEAP_CERT"},
			},
			&cli.StringFlag{
				Name:    "key",
				Usage:   "path to the client certificate key",
				EnvVars: []string{"LEAP_KEY"},
			},
		},
		Action: requestCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func requestCommand(c *cli.Context) error {
	raw := c.Args().First()
	if raw == "" {
		return cli.Exit("a resource like <host>/<path> is required", 2)
	}
	if !strings.Contains(raw, "://") {
		raw = "leap://" + raw
	}
	resource, err := url.Parse(raw)
	if err != nil || resource.Hostname() == "" {
		return cli.Exit(fmt.Sprintf("unusable resource %q", c.Args().First()), 2)
	}

	caFile, certFile, keyFile := c.String("cacert"), c.String("cert"), c.String("key")
	if caFile == "" || certFile == "" || keyFile == "" {
		cfg, err := config.Load()
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		paths, err := cfg.Paths(resource.Hostname(), false)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		if caFile == "" {
			caFile = paths.CA
		}
		if certFile == "" {
			certFile = paths.Cert
		}
		if keyFile == "" {
			keyFile = paths.Key
		}
	}

	tlsCfg, err := leap.LoadTLSConfig(certFile, keyFile, caFile)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	port := leap.DefaultPort
	if p := resource.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return cli.Exit(fmt.Sprintf("unusable port %q", p), 2)
		}
	}

	logger := zap.NewNop()
	conn, err := leap.Dial(c.Context, resource.Hostname(), port, tlsCfg, logger)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	requester := leap.NewRequester(conn, logger)
	defer requester.Close()
	go func() {
		_ = requester.Run(context.Background())
	}()

	var body any
	if data := c.String("data"); data != "" {
		if err := json.Unmarshal([]byte(data), &body); err != nil {
			return cli.Exit(fmt.Sprintf("request body is not JSON: %v", err), 2)
		}
	}

	path := resource.Path
	if resource.RawQuery != "" {
		path += "?" + resource.RawQuery
	}
	response, err := requester.Request(c.Context, leap.CommuniqueType(c.String("request")), path, body)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}

	out := os.Stdout
	if file := c.String("output"); file != "" && file != "-" {
		out, err = os.Create(file)
		if err != nil {
			return cli.Exit(err.Error(), 2)
		}
		defer out.Close()
	}

	var printable any = response.Body
	if c.Bool("verbose") {
		printable = response
	}
	encoded, err := json.Marshal(printable)
	if err != nil {
		return cli.Exit(err.Error(), 2)
	}
	fmt.Fprintln(out, string(encoded))

	if c.Bool("fail") && response.CheckStatus() != nil {
		return cli.Exit("", 1)
	}
	return nil
}
