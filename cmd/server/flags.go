package main

import (
	"flag"
	"fmt"
	"os"
)

// Flags are command line overrides on top of the configuration file.
type Flags struct {
	ConfigFile string
	Host       string
	Port       int
	LogLevel   string
	LogFormat  string
	Watch      bool
	Version    bool
}

func ParseFlags() *Flags {
	flags := &Flags{}

	flag.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file")
	flag.StringVar(&flags.Host, "host", "", "Server host (overrides server.host)")
	flag.IntVar(&flags.Port, "port", 0, "Server port (overrides server.port)")
	flag.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&flags.LogFormat, "log-format", "", "Log format (json, text)")
	flag.BoolVar(&flags.Watch, "watch", false, "Reload the CSV dataset when it changes")
	flag.BoolVar(&flags.Version, "version", false, "Show version information")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nSales forecasting API server\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if flags.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildDate)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		os.Exit(0)
	}

	return flags
}
