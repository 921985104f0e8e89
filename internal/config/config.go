// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/vrischmann/envconfig"

	"github.com/Trigsy1/ha-nva-fo-danat/internal/appliance"
)

// Probe modes
const (
	MonitorVMStatus = "VMStatus"
	MonitorTCPPort  = "TCPPort"
)

// Config is the full environment configuration of one controller run.
// All values come from the execution environment; nothing is persisted
// between runs.
type Config struct {
	FW1Name   string `envconfig:"FW1NAME"`
	FW1RGName string `envconfig:"FW1RGNAME"`
	FW2Name   string `envconfig:"FW2NAME"`
	FW2RGName string `envconfig:"FW2RGNAME"`

	// Monitor selects how appliance health is probed: a control-plane
	// power-state query or a TCP connect against FQDN:port.
	Monitor string `envconfig:"FWMONITOR,default=VMStatus"`

	FW1FQDN string `envconfig:"FW1FQDN,optional"`
	FW1Port int    `envconfig:"FW1PORT,optional"`
	FW2FQDN string `envconfig:"FW2FQDN,optional"`
	FW2Port int    `envconfig:"FW2PORT,optional"`

	// Tries probes per aggregation window; Delay seconds between probes.
	Tries int `envconfig:"FWTRIES,default=3"`
	Delay int `envconfig:"FWDELAY,default=70"`

	// UDRTag is the value of the nva_ha_udr tag marking managed route tables.
	UDRTag string `envconfig:"FWUDRTAG"`

	FailoverEnabled bool `envconfig:"FWFAILOVER,default=true"`
	FailbackEnabled bool `envconfig:"FWFAILBACK,default=true"`

	// SubscriptionID is the home subscription: where the appliances and
	// their NICs live. Route tables are discovered across every
	// subscription visible to the identity.
	SubscriptionID string `envconfig:"AZURESUBSCRIPTIONID"`

	// AlertWebhook, when set, receives plain-text alert posts.
	AlertWebhook string `envconfig:"FWALERTWEBHOOK,optional"`

	// MetricsAddr, when set, serves prometheus metrics for the duration
	// of the run.
	MetricsAddr string `envconfig:"METRICSADDR,optional"`
}

// Load reads configuration from the environment and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Init(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks mode consistency. It runs before any control-plane
// call so a bad environment never reaches route mutation.
//
// Note: a planned maintenance window on the primary should set
// FWFAILBACK=false, otherwise the next healthy run re-asserts the
// primary as the active path.
func (c *Config) Validate() error {
	switch c.Monitor {
	case MonitorVMStatus:
	case MonitorTCPPort:
		if c.FW1FQDN == "" || c.FW2FQDN == "" {
			return errors.New("config: TCPPort monitor requires FW1FQDN and FW2FQDN")
		}
		if !validPort(c.FW1Port) || !validPort(c.FW2Port) {
			return errors.New("config: TCPPort monitor requires FW1PORT and FW2PORT in 1..65535")
		}
	default:
		return fmt.Errorf("config: FWMONITOR must be %s or %s, got %q", MonitorVMStatus, MonitorTCPPort, c.Monitor)
	}

	if c.Tries < 1 {
		return fmt.Errorf("config: FWTRIES must be positive, got %d", c.Tries)
	}
	if c.Delay < 0 {
		return fmt.Errorf("config: FWDELAY must be non-negative, got %d", c.Delay)
	}
	return nil
}

// Pair returns the appliance pair described by the configuration.
func (c *Config) Pair() appliance.Pair {
	return appliance.Pair{
		Primary: appliance.Endpoint{
			Name:          c.FW1Name,
			ResourceGroup: c.FW1RGName,
			FQDN:          c.FW1FQDN,
			Port:          c.FW1Port,
		},
		Secondary: appliance.Endpoint{
			Name:          c.FW2Name,
			ResourceGroup: c.FW2RGName,
			FQDN:          c.FW2FQDN,
			Port:          c.FW2Port,
		},
	}
}

// ProbeDelay returns the inter-probe delay as a duration.
func (c *Config) ProbeDelay() time.Duration {
	return time.Duration(c.Delay) * time.Second
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}
