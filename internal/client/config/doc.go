// Package config loads runtime configuration for ppctl, the ProfitPal
// operator console.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file selected with -c or -config.
//  3. Command-line flags, which override earlier values.
//
// # JSON schema
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "online_check_interval": "5s",
//	  "service_name": "ppctl",
//	  "token_validity": "15m",
//	  "journal_path": "ppctl.db",
//	  "reports_dir": "reports"
//	}
//
// The service-token secret is never read from configuration; the console
// prompts for it.
package config
