package main

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix       = "PADMOUSE"
	defaultListen   = "127.0.0.1:8080"
	defaultTickRate = 100

	actuatorAuto = "auto"
	actuatorLog  = "log"
)

type options struct {
	configPath  string
	device      string
	listen      string
	logLevel    string
	logFile     string
	tickRate    int
	actuator    string
	listDevices bool
	tray        bool
	noServer    bool
}

// parseOptions reads flags, then PADMOUSE_* environment variables for any
// flag not given on the command line.
func parseOptions(args []string) (options, error) {
	fs := pflag.NewFlagSet("padmouse", pflag.ContinueOnError)
	fs.String("config", "", "settings file (default: per-user config dir)")
	fs.String("device", "", "controller id to drive (default: first attached)")
	fs.String("listen", defaultListen, "status server address")
	fs.String("log-level", "info", "trace, debug, info, warn or error")
	fs.String("log-file", "", "also write logs to this file, rotated at 5MB")
	fs.Int("tick-rate", defaultTickRate, "engine sampling rate in Hz")
	fs.String("actuator", actuatorAuto, "mouse backend: auto or log")
	fs.Bool("list-devices", false, "print attached controllers and exit")
	fs.Bool("tray", false, "show a system tray icon")
	fs.Bool("no-server", false, "do not start the status server")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return options{}, fmt.Errorf("binding flags: %w", err)
	}

	opts := options{
		configPath:  v.GetString("config"),
		device:      v.GetString("device"),
		listen:      v.GetString("listen"),
		logLevel:    v.GetString("log-level"),
		logFile:     v.GetString("log-file"),
		tickRate:    v.GetInt("tick-rate"),
		actuator:    strings.ToLower(v.GetString("actuator")),
		listDevices: v.GetBool("list-devices"),
		tray:        v.GetBool("tray"),
		noServer:    v.GetBool("no-server"),
	}

	if opts.tickRate < 1 || opts.tickRate > 1000 {
		return options{}, fmt.Errorf("tick-rate %d out of range 1..1000", opts.tickRate)
	}
	switch opts.actuator {
	case actuatorAuto, actuatorLog:
	default:
		return options{}, fmt.Errorf("unknown actuator %q", opts.actuator)
	}
	return opts, nil
}
