package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the Ledger endpoint
//	-i int      online check interval in seconds
//	-n string   service name written into tokens
//	-j string   path of the local command journal
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-i", "-n", "-j"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port of the ledger endpoint")
	onlineCheckInterval := fs.Int("i", int(cfg.OnlineCheckInterval.Seconds()), "online check interval (in seconds)")
	fs.StringVar(&cfg.ServiceName, "n", cfg.ServiceName, "service name for minted tokens")
	fs.StringVar(&cfg.JournalPath, "j", cfg.JournalPath, "command journal file")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.OnlineCheckInterval = time.Duration(*onlineCheckInterval) * time.Second
}
