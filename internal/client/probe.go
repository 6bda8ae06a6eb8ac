package client

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/goburrow/modbus"
	"go.uber.org/zap"
)

var (
	ErrNoDevice     = errors.New("rtu probe requires a peer device")
	ErrUnreachable  = errors.New("client unreachable")
	ErrException    = errors.New("client answered with an exception")
	ErrInvalidCount = errors.New("probe count must be 1..125 registers or 1..2000 bits")
)

// ProbeRequest reads Count registers (or bits) of Bank starting at Register.
// Device overrides the peer serial device for RTU probes.
type ProbeRequest struct {
	Bank     shm.Bank `json:"bank"`
	Register uint16   `json:"register"`
	Count    uint16   `json:"count"`
	Device   string   `json:"device,omitempty"`
}

type ProbeResult struct {
	Target    string        `json:"target"`
	Bank      shm.Bank      `json:"bank"`
	Register  uint16        `json:"register"`
	Registers []uint16      `json:"registers,omitempty"`
	Bits      []bool        `json:"bits,omitempty"`
	Latency   time.Duration `json:"latency_ns"`
}

// Prober connects to a running client process as a Modbus master.
type Prober struct {
	cfg     config.ClientConfig
	timeout time.Duration
	logger  *zap.Logger
}

func NewProber(cfg config.ClientConfig, timeout time.Duration, logger *zap.Logger) *Prober {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Prober{cfg: cfg, timeout: timeout, logger: logger}
}

type handler interface {
	modbus.ClientHandler
	Connect() error
	Close() error
}

// TCPAddress is the address the probe dials. A wildcard listen host maps to loopback.
func TCPAddress(t config.TCPConfig) string {
	host := t.Host
	switch strings.ToLower(host) {
	case "", "any", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return net.JoinHostPort(host, strconv.Itoa(t.Port))
}

func (p *Prober) handler(req ProbeRequest) (handler, string, error) {
	switch strings.ToLower(p.cfg.Mode) {
	case "tcp", "":
		addr := TCPAddress(p.cfg.TCP)
		h := modbus.NewTCPClientHandler(addr)
		h.Timeout = p.timeout
		return h, addr, nil
	case "rtu":
		if req.Device == "" {
			return nil, "", ErrNoDevice
		}
		baud, err := strconv.Atoi(p.cfg.RTU.Baud)
		if err != nil {
			return nil, "", fmt.Errorf("invalid baud rate %q: %w", p.cfg.RTU.Baud, err)
		}
		h := modbus.NewRTUClientHandler(req.Device)
		h.BaudRate = baud
		h.DataBits = p.cfg.RTU.DataBits
		h.StopBits = p.cfg.RTU.StopBits
		h.Parity = strings.ToUpper(p.cfg.RTU.Parity)
		h.SlaveId = byte(p.cfg.RTU.ClientID)
		h.Timeout = p.timeout
		return h, req.Device, nil
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnknownMode, p.cfg.Mode)
	}
}

// Probe performs a single read against the client. Cancelling ctx returns
// immediately; the connection is closed once the pending read times out.
func (p *Prober) Probe(ctx context.Context, req ProbeRequest) (*ProbeResult, error) {
	if req.Count == 0 {
		req.Count = 1
	}
	limit := uint16(125)
	if req.Bank.Digital() {
		limit = 2000
	}
	if req.Count > limit {
		return nil, ErrInvalidCount
	}

	h, target, err := p.handler(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if err := h.Connect(); err != nil {
		p.logger.Debug("Probe connect failed", zap.String("target", target), zap.Error(err))
		return nil, fmt.Errorf("%w: connect %s: %w", ErrUnreachable, target, err)
	}

	type reply struct {
		data []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		defer h.Close()
		data, err := read(modbus.NewClient(h), req)
		done <- reply{data, err}
	}()

	var r reply
	select {
	case r = <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.err != nil {
		p.logger.Debug("Probe read failed",
			zap.String("target", target),
			zap.Stringer("bank", req.Bank),
			zap.Error(r.err),
		)
		var mbErr *modbus.ModbusError
		if errors.As(r.err, &mbErr) {
			return nil, fmt.Errorf("%w: read %s %s[%d]: %w", ErrException, target, req.Bank, req.Register, r.err)
		}
		return nil, fmt.Errorf("%w: read %s %s[%d]: %w", ErrUnreachable, target, req.Bank, req.Register, r.err)
	}

	result := &ProbeResult{
		Target:   target,
		Bank:     req.Bank,
		Register: req.Register,
		Latency:  time.Since(start),
	}
	if req.Bank.Digital() {
		result.Bits = unpackBits(r.data, int(req.Count))
	} else {
		result.Registers = unpackRegisters(r.data)
	}

	p.logger.Debug("Probe succeeded",
		zap.String("target", target),
		zap.Duration("latency", result.Latency),
	)
	return result, nil
}

func read(c modbus.Client, req ProbeRequest) ([]byte, error) {
	switch req.Bank {
	case shm.BankDO:
		return c.ReadCoils(req.Register, req.Count)
	case shm.BankDI:
		return c.ReadDiscreteInputs(req.Register, req.Count)
	case shm.BankAO:
		return c.ReadHoldingRegisters(req.Register, req.Count)
	case shm.BankAI:
		return c.ReadInputRegisters(req.Register, req.Count)
	default:
		return nil, fmt.Errorf("%w: %v", shm.ErrUnsupportedBank, req.Bank)
	}
}

func unpackBits(data []byte, n int) []bool {
	bits := make([]bool, 0, n)
	for i := 0; i < n && i/8 < len(data); i++ {
		bits = append(bits, data[i/8]&(1<<(i%8)) != 0)
	}
	return bits
}

func unpackRegisters(data []byte) []uint16 {
	regs := make([]uint16, len(data)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return regs
}
