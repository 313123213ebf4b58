package inverter

import "fmt"

const (
	TransportRTU = "rtu"
	TransportTCP = "tcp"
)

// Config selects the Modbus transport used to reach the inverter.
type Config struct {
	Transport string `json:"transport"`
	Port      string `json:"port"`
	Address   string `json:"address"`
	BaudRate  int    `json:"baud_rate"`
	SlaveID   int    `json:"slave_id"`
	TimeoutMS int    `json:"timeout_ms"`
}

func (c *Config) SetDefaults() {
	if c.Transport == "" {
		c.Transport = TransportRTU
	}
	if c.Port == "" {
		c.Port = "/dev/ttyUSB0"
	}
	if c.BaudRate == 0 {
		c.BaudRate = 9600
	}
	if c.SlaveID == 0 {
		c.SlaveID = 1
	}
	if c.TimeoutMS == 0 {
		c.TimeoutMS = 1000
	}
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportRTU:
		if c.Port == "" {
			return fmt.Errorf("inverter.port is required for rtu transport")
		}
	case TransportTCP:
		if c.Address == "" {
			return fmt.Errorf("inverter.address is required for tcp transport")
		}
	default:
		return fmt.Errorf("inverter.transport must be %q or %q, got %q", TransportRTU, TransportTCP, c.Transport)
	}
	if c.SlaveID < 1 || c.SlaveID > 247 {
		return fmt.Errorf("inverter.slave_id must be between 1 and 247")
	}
	if c.TimeoutMS < 0 {
		return fmt.Errorf("inverter.timeout_ms must be >= 0")
	}
	return nil
}
