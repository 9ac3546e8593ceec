// leap-scan locates LEAP bridges on the local network with mDNS.
package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/lutron-community/leap-go/internal/pkg/discovery"
)

func main() {
	app := &cli.App{
		Name:  "leap-scan",
		Usage: "scan for LEAP bridges on the local network",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Usage:   "how long to wait for replies",
				Value:   discovery.DefaultTimeout,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log discovery details",
			},
		},
		Action: scanCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func scanCommand(c *cli.Context) error {
	logger := zap.NewNop()
	if c.Bool("verbose") {
		logger = zap.Must(zap.NewDevelopment())
		defer func() {
			_ = logger.Sync()
		}()
	}

	bridges, err := discovery.Browse(c.Context, c.Duration("timeout"), logger)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	for _, bridge := range bridges {
		parts := []string{bridge.HostName}
		for _, addr := range bridge.Addresses {
			parts = append(parts, addr.String())
		}
		fmt.Println(strings.Join(parts, " "))
	}
	return nil
}
