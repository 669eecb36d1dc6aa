package main

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"

	"github.com/leshachaplin/appsight/app"
	"github.com/leshachaplin/appsight/internal/config"
)

func main() {
	configPath, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	app.New(func() (config.Config, error) {
		return config.Load(configPath)
	}).Start()
}

func parseFlags(args []string) (string, error) {
	flagSet := pflag.NewFlagSet("collector", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to the collector YAML config")

	if err := flagSet.Parse(args); err != nil {
		return "", errors.Wrap(err, "parse flags")
	}
	return *configPath, nil
}
