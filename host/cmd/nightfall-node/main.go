package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"nightfall/config"
	"nightfall/core"
	"nightfall/host/dashboard"
	"nightfall/host/firmata"
	"nightfall/host/node"
	"nightfall/host/serial"
	"nightfall/host/sim"
	"nightfall/host/telemetry"
)

var (
	configPath  = flag.String("config", "", "JSON node configuration (default: stock config for -role)")
	role        = flag.String("role", "master", "Node role when no config file is given (master or slave)")
	device      = flag.String("device", "", "Serial link device, overrides the config; \"none\" runs without a link")
	listen      = flag.String("listen", "", "Dashboard listen address, overrides the config")
	broker      = flag.String("mqtt", "", "MQTT broker URL, overrides the config")
	firmataPort = flag.String("firmata", "", "Firmata board device, overrides the config")
	verbose     = flag.Bool("verbose", false, "Enable debug output")
)

func main() {
	flag.Parse()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *verbose || cfg.Debug {
		core.SetDebugWriter(func(s string) { log.Println(s) })
		core.SetDebugEnabled(true)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.NodeConfig, error) {
	var cfg *config.NodeConfig
	if *configPath != "" {
		c, err := config.LoadFile(*configPath)
		if err != nil {
			return nil, err
		}
		cfg = c
	} else {
		kind, err := core.ParseRole(*role)
		if err != nil {
			return nil, err
		}
		if kind == core.RoleSlave {
			cfg = config.DefaultSlaveConfig()
		} else {
			cfg = config.DefaultMasterConfig()
		}
	}

	if *device != "" {
		cfg.Serial.Device = *device
	}
	if *listen != "" {
		cfg.Dashboard.Enabled = true
		cfg.Dashboard.Listen = *listen
	}
	if *broker != "" {
		cfg.MQTT.Broker = *broker
	}
	if *firmataPort != "" {
		cfg.Firmata.Device = *firmataPort
	}
	return cfg, cfg.Validate()
}

func run(ctx context.Context, cfg *config.NodeConfig) error {
	var drivers node.Drivers

	// Motor outputs
	if cfg.Firmata.Device != "" {
		board, err := firmata.Open(cfg.Firmata.Device, cfg.Firmata.Baud)
		if err != nil {
			return err
		}
		defer board.Close()
		drivers.GPIO, drivers.PWM = board, board
		log.Printf("Motors on firmata board %s", cfg.Firmata.Device)
	} else {
		board := sim.NewBoard()
		drivers.GPIO, drivers.PWM = board, board
		log.Println("Motors on simulated board")
	}

	// The host has no range or gas sensors; the master gets quiet simulated ones
	if cfg.Kind() == core.RoleMaster {
		drivers.Sensors = sim.NewSensors().Suite()
	}

	// Serial link
	if cfg.Serial.Device != "none" {
		port, err := serial.Open(&serial.Config{
			Device:      cfg.Serial.Device,
			Baud:        cfg.Serial.Baud,
			ReadTimeout: cfg.Serial.ReadTimeoutMs,
		})
		if err != nil {
			return err
		}
		defer port.Close()
		drivers.LinkReader = serial.NewAsyncReader(port, 0)
		drivers.LinkWriter = port
		log.Printf("Link on %s at %d baud", cfg.Serial.Device, cfg.Serial.Baud)
	}

	n, err := node.New(cfg, drivers)
	if err != nil {
		return err
	}

	if cfg.Dashboard.Enabled {
		dash := dashboard.NewServer(n.Loop)
		n.AddSink(dash)
		go func() {
			if err := dash.ListenAndServe(ctx, cfg.Dashboard.Listen); err != nil {
				log.Printf("Dashboard stopped: %v", err)
			}
		}()
	}

	if cfg.MQTT.Broker != "" {
		mirror, err := telemetry.Connect(telemetry.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         cfg.MQTT.QoS,
		}, n.Loop.Mailbox())
		if err != nil {
			return err
		}
		defer mirror.Close()
		n.AddSink(mirror)
		go mirror.Run(ctx)
	}

	log.Printf("Nightfall %s node running", cfg.Kind())
	return n.Run(ctx)
}
