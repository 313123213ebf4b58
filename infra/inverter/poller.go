// Package inverter polls a Sofar-style hybrid inverter over Modbus and
// exposes the decoded holding registers as odometer snapshots.
package inverter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/goburrow/modbus"

	"github.com/kilianp07/sunledger/core/odometer"
)

// Register describes one holding register of the inverter.
type Register struct {
	Name    string
	Address uint16
	Signed  bool
	Scale   float64
	Unit    string
}

// SofarRegisters is the register table read by the poller.
var SofarRegisters = []Register{
	{Name: odometer.RegBatteryChargePower, Address: 0x20d, Signed: true, Scale: 10, Unit: "W"},
	{Name: odometer.RegBatteryChargeLevel, Address: 0x210, Scale: 1, Unit: "%"},
	{Name: odometer.RegGridPower, Address: 0x212, Signed: true, Scale: 10, Unit: "W"},
	{Name: odometer.RegHouseConsumption, Address: 0x213, Scale: 10, Unit: "W"},
	{Name: odometer.RegPVPower, Address: 0x215, Scale: 10, Unit: "W"},
	{Name: odometer.RegDailyGeneration, Address: 0x218, Scale: 0.01, Unit: "kWh"},
	{Name: odometer.RegDailyExport, Address: 0x219, Scale: 0.01, Unit: "kWh"},
	{Name: odometer.RegDailyImport, Address: 0x21a, Scale: 0.01, Unit: "kWh"},
	{Name: odometer.RegDailyHouseConsumption, Address: 0x21b, Scale: 0.01, Unit: "kWh"},
}

// Decode converts the raw big-endian register word into a scaled value.
func (r Register) Decode(raw []byte) (float64, error) {
	if len(raw) < 2 {
		return 0, fmt.Errorf("register %s: short response (%d bytes)", r.Name, len(raw))
	}
	word := uint16(raw[0])<<8 | uint16(raw[1])
	v := float64(word)
	if r.Signed {
		v = float64(int16(word))
	}
	scale := r.Scale
	if scale == 0 {
		scale = 1
	}
	return v * scale, nil
}

// Format renders a decoded value with its unit, e.g. "1250W".
func (r Register) Format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + r.Unit
}

type reader interface {
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
}

// Poller reads the register table. The first poll reads every register,
// later polls refresh a single register in rotation and return the cache.
type Poller struct {
	mu     sync.Mutex
	client reader
	closer io.Closer
	regs   []Register
	cache  odometer.Snapshot
	next   int
	primed bool
	now    func() time.Time
}

// NewPoller connects to the inverter described by cfg.
func NewPoller(cfg Config) (*Poller, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond

	switch cfg.Transport {
	case TransportTCP:
		handler := modbus.NewTCPClientHandler(cfg.Address)
		handler.SlaveId = byte(cfg.SlaveID)
		handler.Timeout = timeout
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("connect %s: %w", cfg.Address, err)
		}
		return newPoller(modbus.NewClient(handler), handler, SofarRegisters), nil
	default:
		handler := modbus.NewRTUClientHandler(cfg.Port)
		handler.BaudRate = cfg.BaudRate
		handler.DataBits = 8
		handler.Parity = "N"
		handler.StopBits = 1
		handler.SlaveId = byte(cfg.SlaveID)
		handler.Timeout = timeout
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("open %s: %w", cfg.Port, err)
		}
		return newPoller(modbus.NewClient(handler), handler, SofarRegisters), nil
	}
}

func newPoller(client reader, closer io.Closer, regs []Register) *Poller {
	return &Poller{
		client: client,
		closer: closer,
		regs:   regs,
		cache:  odometer.Snapshot{},
		now:    time.Now,
	}
}

// Poll refreshes the cache and returns a copy of it.
func (p *Poller) Poll(ctx context.Context) (odometer.Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.regs) == 0 {
		return nil, errors.New("inverter: empty register table")
	}
	if !p.primed {
		for _, r := range p.regs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := p.read(r); err != nil {
				return nil, err
			}
		}
		p.primed = true
		return p.cache.Clone(), nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r := p.regs[p.next]
	p.next = (p.next + 1) % len(p.regs)
	if err := p.read(r); err != nil {
		return nil, err
	}
	return p.cache.Clone(), nil
}

func (p *Poller) read(r Register) error {
	raw, err := p.client.ReadHoldingRegisters(r.Address, 1)
	if err != nil {
		return fmt.Errorf("read %s (0x%x): %w", r.Name, r.Address, err)
	}
	v, err := r.Decode(raw)
	if err != nil {
		return err
	}
	p.cache[r.Name] = odometer.Register{Value: v, Text: r.Format(v), At: p.now()}
	return nil
}

// Close releases the underlying transport.
func (p *Poller) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}
