// leap-bridge stays connected to a bridge and republishes device state to
// the configured publishers.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lutron-community/leap-go/internal/pkg/bridge"
	"github.com/lutron-community/leap-go/internal/pkg/config"
	"github.com/lutron-community/leap-go/internal/pkg/leap"
	"github.com/lutron-community/leap-go/internal/pkg/mqtt"
	"github.com/lutron-community/leap-go/internal/pkg/publisher"
)

func main() {
	app := &cli.App{
		Name:      "leap-bridge",
		Usage:     "connect to a bridge and publish device state",
		ArgsUsage: "<host>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cert-dir",
				Usage:   "directory holding the paired certificate files",
				EnvVars: []string{"LEAP_CERT_DIR"},
			},
			&cli.StringFlag{
				Name:    "mqtt-broker",
				Usage:   "MQTT broker URL, e.g. tcp://broker:1883",
				EnvVars: []string{"LEAP_MQTT_BROKER"},
			},
			&cli.StringFlag{
				Name:    "mqtt-user",
				EnvVars: []string{"LEAP_MQTT_USERNAME"},
			},
			&cli.StringFlag{
				Name:    "mqtt-pass",
				EnvVars: []string{"LEAP_MQTT_PASSWORD"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				EnvVars: []string{"LEAP_LOG_LEVEL"},
				Value:   "info",
			},
		},
		Action: bridgeCommand,
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func bridgeCommand(c *cli.Context) error {
	host := c.Args().First()
	if host == "" {
		return cli.Exit("a bridge host is required", 1)
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if dir := c.String("cert-dir"); dir != "" {
		cfg.CertDir = dir
	}
	if broker := c.String("mqtt-broker"); broker != "" {
		cfg.MQTTBroker = broker
	}
	if user := c.String("mqtt-user"); user != "" {
		cfg.MQTTUsername = user
	}
	if pass := c.String("mqtt-pass"); pass != "" {
		cfg.MQTTPassword = pass
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level, err = zap.ParseAtomicLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	logCfg.OutputPaths = []string{"stdout"}
	logCfg.ErrorOutputPaths = []string{"stdout"}
	logCfg.Sampling = nil
	logger := zap.Must(logCfg.Build())
	defer func() {
		_ = logger.Sync()
	}()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, host, logger)
}

func run(ctx context.Context, cfg *config.Config, host string, logger *zap.Logger) error {
	paths, err := cfg.Paths(host, false)
	if err != nil {
		return err
	}
	tlsCfg, err := leap.LoadTLSConfig(paths.Cert, paths.Key, paths.CA)
	if err != nil {
		return fmt.Errorf("load credentials (run lap-pair first): %w", err)
	}

	registry := publisher.NewRegistry(logger)
	if cfg.MQTTBroker != "" {
		opts := pahomqtt.NewClientOptions().
			AddBroker(cfg.MQTTBroker).
			SetUsername(cfg.MQTTUsername).
			SetPassword(cfg.MQTTPassword).
			SetAutoReconnect(true)
		mqttSvc := mqtt.New(pahomqtt.NewClient(opts))
		if err := mqttSvc.Connect(); err != nil {
			return err
		}
		if err := registry.Register("mqtt", mqttSvc); err != nil {
			return err
		}
		logger.Info("publishing to mqtt", zap.String("broker", cfg.MQTTBroker))
	}

	engine := bridge.New(bridge.Config{
		Host:   host,
		TLS:    tlsCfg,
		Logger: logger,
	})

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := engine.Connect(ctx); err != nil {
			return err
		}
		logger.Info("connected", zap.String("host", host))

		for id, device := range engine.GetDevices() {
			device := device
			registry.RegisterDevice(device)
			registry.PublishState(ctx, device)
			engine.AddSubscriber(id, func() {
				registry.PublishState(ctx, device)
			})
		}
		return nil
	})

	eg.Go(func() error {
		<-ctx.Done()
		engine.Close()
		return ctx.Err()
	})

	return eg.Wait()
}
