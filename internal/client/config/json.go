package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/profitpal/internal/flagx"
	"github.com/dmitrijs2005/profitpal/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Durations use
// timex.Duration so they can be written as "5s" or as integer nanoseconds.
type JsonConfig struct {
	ServerEndpointAddr  string         `json:"server_endpoint_addr"`
	OnlineCheckInterval timex.Duration `json:"online_check_interval"`
	ServiceName         string         `json:"service_name"`
	TokenValidity       timex.Duration `json:"token_validity"`
	JournalPath         string         `json:"journal_path"`
	ReportsDir          string         `json:"reports_dir"`
}

// parseJson overlays Config with values from the file named by -c or
// -config. Empty values keep what is already set. It panics on read or
// unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.ConfigFile()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = time.Duration(jc.OnlineCheckInterval.Duration)
	}
	if jc.ServiceName != "" {
		cfg.ServiceName = jc.ServiceName
	}
	if jc.TokenValidity.Duration > 0 {
		cfg.TokenValidity = time.Duration(jc.TokenValidity.Duration)
	}
	if jc.JournalPath != "" {
		cfg.JournalPath = jc.JournalPath
	}
	if jc.ReportsDir != "" {
		cfg.ReportsDir = jc.ReportsDir
	}
}
