package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/flagx"
)

// parseFlags applies the command-line layer.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-g string   internal gRPC bind address (e.g. ":50051")
//	-d string   PostgreSQL DSN
//	-s string   service token HMAC secret
//	-t int      session validity, days
//	-l string   log level (debug, info, warn, error)
//	-f string   log format (json, console)
//
// Only these flags are read from os.Args, so -c/-config and -env-file can
// coexist on the same command line.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-g", "-d", "-s", "-t", "-l", "-f"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "HTTP address and port")
	fs.StringVar(&config.EndpointAddrGRPC, "g", config.EndpointAddrGRPC, "internal gRPC address and port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.ServiceTokenSecret, "s", config.ServiceTokenSecret, "service token secret")
	sessionDays := fs.Int("t", int(config.SessionTTL/(24*time.Hour)), "session validity (in days)")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	fs.StringVar(&config.LogFormat, "f", config.LogFormat, "log format")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTTL = time.Duration(*sessionDays) * 24 * time.Hour
}
