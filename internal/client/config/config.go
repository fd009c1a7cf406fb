package config

import "time"

// Config holds runtime settings for ppctl.
//
// Fields:
//   - ServerEndpointAddr: host:port of the internal Ledger gRPC endpoint.
//   - OnlineCheckInterval: how often the console checks server health.
//   - ServiceName: the caller name written into minted service tokens.
//   - TokenValidity: lifetime of each minted token.
//   - JournalPath: SQLite file recording executed commands.
//   - ReportsDir: directory (relative to the working dir) for downloaded audit reports.
type Config struct {
	ServerEndpointAddr  string
	OnlineCheckInterval time.Duration
	ServiceName         string
	TokenValidity       time.Duration
	JournalPath         string
	ReportsDir          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.OnlineCheckInterval = 5 * time.Second
	c.ServiceName = "ppctl"
	c.TokenValidity = 15 * time.Minute
	c.JournalPath = "ppctl.db"
	c.ReportsDir = "reports"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
