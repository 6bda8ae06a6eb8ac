package client

import (
	"context"
	"errors"
	"net"
	"reflect"
	"strconv"
	"testing"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/goburrow/modbus"
	"github.com/tbrandon/mbserver"
	"go.uber.org/zap/zaptest"
)

// freePort returns a loopback port nothing listens on.
func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// startServer runs a Modbus TCP slave. Coils and discrete inputs are all set,
// registers hold their own address.
func startServer(t *testing.T) (*mbserver.Server, int) {
	t.Helper()

	s := mbserver.NewServer()
	for i := 0; i < 2000; i++ {
		s.Coils[i] = 1
		s.DiscreteInputs[i] = 1
	}
	for i := 0; i < 200; i++ {
		s.HoldingRegisters[i] = uint16(i)
		s.InputRegisters[i] = uint16(i)
	}

	port := freePort(t)
	if err := s.ListenTCP(net.JoinHostPort("127.0.0.1", strconv.Itoa(port))); err != nil {
		t.Fatalf("ListenTCP failed: %v", err)
	}
	t.Cleanup(s.Close)
	return s, port
}

func tcpClient(port int) config.ClientConfig {
	return config.ClientConfig{Mode: "tcp", TCP: config.TCPConfig{Host: "any", Port: port}}
}

func TestProbeHoldingRegisters(t *testing.T) {
	_, port := startServer(t)
	p := NewProber(tcpClient(port), time.Second, zaptest.NewLogger(t))

	res, err := p.Probe(context.Background(), ProbeRequest{Bank: shm.BankAO, Register: 10, Count: 3})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}

	if want := []uint16{10, 11, 12}; !reflect.DeepEqual(res.Registers, want) {
		t.Errorf("expected %v, got %v", want, res.Registers)
	}
	if res.Target != "127.0.0.1:"+strconv.Itoa(port) {
		t.Errorf("unexpected target %s", res.Target)
	}
	if res.Bits != nil {
		t.Errorf("expected no bits, got %v", res.Bits)
	}
}

func TestProbeCoils(t *testing.T) {
	_, port := startServer(t)
	p := NewProber(tcpClient(port), time.Second, zaptest.NewLogger(t))

	res, err := p.Probe(context.Background(), ProbeRequest{Bank: shm.BankDI, Count: 10})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if len(res.Bits) != 10 {
		t.Fatalf("expected 10 bits, got %d", len(res.Bits))
	}
	for i, b := range res.Bits {
		if !b {
			t.Errorf("bit %d not set", i)
		}
	}
}

func TestProbeDefaultsToOneRegister(t *testing.T) {
	_, port := startServer(t)
	p := NewProber(tcpClient(port), time.Second, zaptest.NewLogger(t))

	res, err := p.Probe(context.Background(), ProbeRequest{Bank: shm.BankAI, Register: 7})
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if want := []uint16{7}; !reflect.DeepEqual(res.Registers, want) {
		t.Errorf("expected %v, got %v", want, res.Registers)
	}
}

func TestProbeException(t *testing.T) {
	s, port := startServer(t)
	s.RegisterFunctionHandler(3, func(*mbserver.Server, mbserver.Framer) ([]byte, *mbserver.Exception) {
		return []byte{}, &mbserver.IllegalDataAddress
	})
	p := NewProber(tcpClient(port), time.Second, zaptest.NewLogger(t))

	_, err := p.Probe(context.Background(), ProbeRequest{Bank: shm.BankAO})

	if !errors.Is(err, ErrException) {
		t.Errorf("expected ErrException, got %v", err)
	}
	var mbErr *modbus.ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("expected ModbusError, got %v", err)
	}
	if mbErr.ExceptionCode != modbus.ExceptionCodeIllegalDataAddress {
		t.Errorf("expected illegal data address, got %d", mbErr.ExceptionCode)
	}
}

func TestProbeConnectionRefused(t *testing.T) {
	p := NewProber(tcpClient(freePort(t)), 200*time.Millisecond, zaptest.NewLogger(t))
	if _, err := p.Probe(context.Background(), ProbeRequest{Bank: shm.BankAO}); !errors.Is(err, ErrUnreachable) {
		t.Errorf("expected ErrUnreachable, got %v", err)
	}
}

func TestProbeContextCancel(t *testing.T) {
	s, port := startServer(t)
	s.RegisterFunctionHandler(3, func(s *mbserver.Server, frame mbserver.Framer) ([]byte, *mbserver.Exception) {
		time.Sleep(500 * time.Millisecond)
		return mbserver.ReadHoldingRegisters(s, frame)
	})
	p := NewProber(tcpClient(port), time.Second, zaptest.NewLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.Probe(ctx, ProbeRequest{Bank: shm.BankAO})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 400*time.Millisecond {
		t.Error("probe did not return on cancel")
	}
}

func TestProbeValidation(t *testing.T) {
	p := NewProber(tcpClient(502), time.Second, zaptest.NewLogger(t))
	if _, err := p.Probe(context.Background(), ProbeRequest{Bank: shm.BankAO, Count: 126}); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("expected ErrInvalidCount, got %v", err)
	}

	rtu := NewProber(config.ClientConfig{Mode: "rtu", RTU: config.RTUConfig{Baud: "9600"}}, time.Second, zaptest.NewLogger(t))
	if _, err := rtu.Probe(context.Background(), ProbeRequest{Bank: shm.BankAO}); !errors.Is(err, ErrNoDevice) {
		t.Errorf("expected ErrNoDevice, got %v", err)
	}
}

func TestTCPAddress(t *testing.T) {
	tests := []struct {
		host string
		want string
	}{
		{"any", "127.0.0.1:502"},
		{"", "127.0.0.1:502"},
		{"0.0.0.0", "127.0.0.1:502"},
		{"::", "[::1]:502"},
		{"192.168.1.10", "192.168.1.10:502"},
	}

	for _, tt := range tests {
		if got := TCPAddress(config.TCPConfig{Host: tt.host, Port: 502}); got != tt.want {
			t.Errorf("TCPAddress(%q) = %s, want %s", tt.host, got, tt.want)
		}
	}
}
