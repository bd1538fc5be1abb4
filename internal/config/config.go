// Package config holds the load generator's run configuration. Values
// come from command line flags with environment variable overrides.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is immutable for the duration of a run.
type Config struct {
	// Switch event socket settings
	Server string // Switch IP address
	Port   int    // Event socket port
	Auth   string // Event socket password

	// Load profile (sipp-style -r, -l, -d, -m)
	Rate            int           // Sessions to originate per second
	Limit           int           // Max concurrent live sessions
	Duration        time.Duration // Per-session lifetime before forced hangup
	MaxSessions     int           // Total sessions to originate before stopping
	OriginateString string        // Switch originate command template

	LogLevel       string
	ReportInterval time.Duration // Progress log cadence, 0 disables
	ReportFormat   string        // Final report format: text or json

	// Loopback answerer settings
	Answerer      bool   // Run the SIP auto-answer endpoint
	AnswererBind  string // Answerer bind address
	AnswererPort  int    // Answerer SIP port
	AnswererMedia bool   // Stream RTP audio on answered calls
}

// Load parses configuration from the given argument list and applies
// environment variable overrides.
func Load(args []string) (*Config, error) {
	cfg := &Config{}

	fs := flag.NewFlagSet("loadcall", flag.ContinueOnError)
	fs.StringVar(&cfg.Server, "server", "127.0.0.1", "Switch IP address")
	fs.IntVar(&cfg.Port, "port", 8021, "Switch event socket port")
	fs.StringVar(&cfg.Auth, "auth", "ClueCon", "Event socket password")
	fs.IntVar(&cfg.Rate, "rate", 1, "Sessions to originate per second")
	fs.IntVar(&cfg.Limit, "limit", 1, "Max number of concurrent sessions")
	fs.DurationVar(&cfg.Duration, "duration", 60*time.Second, "Max session duration before forced hangup")
	fs.IntVar(&cfg.MaxSessions, "max-sessions", 1, "Max number of sessions to originate before stopping")
	fs.StringVar(&cfg.OriginateString, "originate-string", "", "Switch originate string (mandatory)")
	fs.StringVar(&cfg.LogLevel, "loglevel", "info", "Log level (debug, info, warn, error)")
	fs.DurationVar(&cfg.ReportInterval, "report-interval", 0, "Progress report interval (0 disables)")
	fs.StringVar(&cfg.ReportFormat, "report-format", "text", "Final report format (text, json)")
	fs.BoolVar(&cfg.Answerer, "answerer", false, "Run the loopback SIP auto-answer endpoint")
	fs.StringVar(&cfg.AnswererBind, "answerer-bind", "0.0.0.0", "Answerer SIP bind address")
	fs.IntVar(&cfg.AnswererPort, "answerer-port", 5080, "Answerer SIP port")
	fs.BoolVar(&cfg.AnswererMedia, "answerer-media", true, "Stream RTP audio on answered calls")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Environment variables override flags when set.
	if server := os.Getenv("LOADCALL_SERVER"); server != "" {
		cfg.Server = server
	}
	if port := os.Getenv("LOADCALL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Port = p
		}
	}
	if auth := os.Getenv("LOADCALL_AUTH"); auth != "" {
		cfg.Auth = auth
	}
	if originate := os.Getenv("LOADCALL_ORIGINATE_STRING"); originate != "" {
		cfg.OriginateString = originate
	}
	if loglevel := os.Getenv("LOADCALL_LOGLEVEL"); loglevel != "" {
		cfg.LogLevel = loglevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the load profile for values the orchestrator cannot
// run with. The originate string is mandatory unless the process only
// hosts the answerer.
func (c *Config) Validate() error {
	if c.OriginateString == "" && !c.Answerer {
		return fmt.Errorf("-originate-string is mandatory")
	}
	if c.Rate < 1 {
		return fmt.Errorf("rate must be >= 1, got %d", c.Rate)
	}
	if c.Limit < 1 {
		return fmt.Errorf("limit must be >= 1, got %d", c.Limit)
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max-sessions must be >= 1, got %d", c.MaxSessions)
	}
	if c.Duration <= 0 {
		return fmt.Errorf("duration must be positive, got %v", c.Duration)
	}
	if c.Answerer && (c.AnswererPort < 1 || c.AnswererPort > 65535) {
		return fmt.Errorf("answerer-port out of range: %d", c.AnswererPort)
	}
	if c.ReportFormat != "text" && c.ReportFormat != "json" {
		return fmt.Errorf("report-format must be text or json, got %q", c.ReportFormat)
	}
	return nil
}

// EventSocketAddr returns the host:port of the switch event socket.
func (c *Config) EventSocketAddr() string {
	return fmt.Sprintf("%s:%d", c.Server, c.Port)
}
