// lap-pair performs LAP pairing with a bridge and writes the resulting
// credential files.
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/config"
	"github.com/lutron-community/leap-go/internal/pkg/pairing"
)

const (
	exitTimeout   = 1
	exitRejected  = 2
	exitTransport = 3
)

func main() {
	app := &cli.App{
		Name:      "lap-pair",
		Usage:     "pair with a Lutron bridge and save its certificates",
		ArgsUsage: "<host>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cert-dir",
				Usage:   "directory for the generated certificate files",
				EnvVars: []string{"LEAP_CERT_DIR"},
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "how long to wait for the physical button press",
				Value: pairing.DefaultButtonTimeout,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log protocol details",
			},
		},
		Action: pairCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func pairCommand(c *cli.Context) error {
	host := c.Args().First()
	if host == "" {
		return cli.Exit("a bridge host is required", exitTransport)
	}

	cfg, err := config.Load()
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}
	if dir := c.String("cert-dir"); dir != "" {
		cfg.CertDir = dir
	}
	paths, err := cfg.Paths(host, true)
	if err != nil {
		return cli.Exit(err.Error(), exitTransport)
	}

	logger := zap.NewNop()
	if c.Bool("verbose") {
		logger = zap.Must(zap.NewDevelopment())
		defer func() {
			_ = logger.Sync()
		}()
	}

	ready := func() {
		fmt.Println("Press the small black button on the back of the bridge to complete pairing.")
	}
	creds, err := pairing.Pair(c.Context, host, ready,
		pairing.WithLogger(logger),
		pairing.WithButtonTimeout(c.Duration("timeout")))
	if err != nil {
		terr := &pairing.TransportError{}
		switch {
		case errors.Is(err, pairing.ErrTimeout):
			return cli.Exit(err.Error(), exitTimeout)
		case errors.Is(err, pairing.ErrRejected):
			return cli.Exit(err.Error(), exitRejected)
		case errors.As(err, &terr):
			return cli.Exit(err.Error(), exitTransport)
		default:
			return cli.Exit(err.Error(), exitTransport)
		}
	}

	for _, file := range []struct {
		path string
		data []byte
	}{
		{paths.CA, creds.CA},
		{paths.Cert, creds.Cert},
		{paths.Key, creds.Key},
	} {
		if err := os.WriteFile(file.path, file.data, 0o600); err != nil {
			return cli.Exit(err.Error(), exitTransport)
		}
	}

	fmt.Printf("Successfully paired with LEAP version %s; credentials in %s\n",
		creds.Version, paths.Cert)
	return nil
}
