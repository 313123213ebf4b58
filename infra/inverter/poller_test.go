package inverter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/sunledger/core/odometer"
)

type fakeReader struct {
	words map[uint16]uint16
	reads []uint16
	fail  map[uint16]error
}

func (f *fakeReader) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	f.reads = append(f.reads, address)
	if err := f.fail[address]; err != nil {
		return nil, err
	}
	w := f.words[address]
	return []byte{byte(w >> 8), byte(w)}, nil
}

func newFake() *fakeReader {
	return &fakeReader{words: map[uint16]uint16{
		0x20d: 0xff9c, // -100 -> -1000 W
		0x210: 55,
		0x212: 20,
		0x213: 45,
		0x215: 125,
		0x218: 1234,
		0x219: 10,
		0x21a: 250,
		0x21b: 900,
	}}
}

func TestRegisterDecode(t *testing.T) {
	signed := Register{Name: "p", Signed: true, Scale: 10, Unit: "W"}
	v, err := signed.Decode([]byte{0xff, 0x9c})
	require.NoError(t, err)
	assert.Equal(t, -1000.0, v)
	assert.Equal(t, "-1000W", signed.Format(v))

	unsigned := Register{Name: "e", Scale: 0.01, Unit: "kWh"}
	v, err = unsigned.Decode([]byte{0x04, 0xd2})
	require.NoError(t, err)
	assert.InDelta(t, 12.34, v, 1e-9)

	if _, err := unsigned.Decode([]byte{0x01}); err == nil {
		t.Fatalf("expected short response error")
	}
}

func TestPollerFirstPollReadsAll(t *testing.T) {
	f := newFake()
	p := newPoller(f, nil, SofarRegisters)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return at }

	snap, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, f.reads, len(SofarRegisters))
	assert.Len(t, snap, len(SofarRegisters))

	v, ok := snap.Value(odometer.RegBatteryChargePower)
	require.True(t, ok)
	assert.Equal(t, -1000.0, v)
	assert.Equal(t, "1250W", snap[odometer.RegPVPower].Text)
	assert.InDelta(t, 2.5, snap[odometer.RegDailyImport].Value, 1e-9)
	assert.Equal(t, at, snap[odometer.RegBatteryChargeLevel].At)
}

func TestPollerRotatesSingleRegister(t *testing.T) {
	f := newFake()
	p := newPoller(f, nil, SofarRegisters)
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	p.now = func() time.Time { return start.Add(time.Duration(tick) * time.Second) }

	_, err := p.Poll(context.Background())
	require.NoError(t, err)
	f.reads = nil

	for i := range SofarRegisters {
		tick = i + 1
		_, err := p.Poll(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, f.reads, len(SofarRegisters))
	for i, r := range SofarRegisters {
		assert.Equal(t, r.Address, f.reads[i])
	}

	f.words[0x210] = 60
	tick = 100
	snap, err := p.Poll(context.Background())
	require.NoError(t, err)
	// rotation wrapped back to the first register, level not yet refreshed
	assert.Equal(t, 55.0, snap[odometer.RegBatteryChargeLevel].Value)
	assert.Equal(t, start.Add(100*time.Second), snap[odometer.RegBatteryChargePower].At)
}

func TestPollerReturnsCopy(t *testing.T) {
	p := newPoller(newFake(), nil, SofarRegisters)
	snap, err := p.Poll(context.Background())
	require.NoError(t, err)
	snap[odometer.RegPVPower] = odometer.Register{Value: -1}

	again, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1250.0, again[odometer.RegPVPower].Value)
}

func TestPollerReadError(t *testing.T) {
	f := newFake()
	boom := errors.New("timeout")
	f.fail = map[uint16]error{0x212: boom}
	p := newPoller(f, nil, SofarRegisters)

	_, err := p.Poll(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped read error, got %v", err)
	}

	delete(f.fail, 0x212)
	snap, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap, len(SofarRegisters))
}

func TestPollerCancelledContext(t *testing.T) {
	p := newPoller(newFake(), nil, SofarRegisters)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.Poll(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestConfigDefaultsAndValidate(t *testing.T) {
	var c Config
	c.SetDefaults()
	assert.Equal(t, TransportRTU, c.Transport)
	assert.Equal(t, 9600, c.BaudRate)
	assert.Equal(t, 1, c.SlaveID)
	require.NoError(t, c.Validate())

	tcp := Config{Transport: TransportTCP, SlaveID: 1}
	assert.Error(t, tcp.Validate())
	tcp.Address = "192.168.1.20:502"
	assert.NoError(t, tcp.Validate())

	bad := Config{Transport: "usb", SlaveID: 1}
	assert.Error(t, bad.Validate())
}
