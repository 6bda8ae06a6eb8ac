package config

import (
	"errors"
	"fmt"
	"regexp"
)

const maxRegisters = 65536

var (
	nameRegex   = regexp.MustCompile(`^[A-Za-z0-9_\-.]+$`)
	deviceRegex = regexp.MustCompile(`^/dev/[A-Za-z0-9_\-./]+$`)
	baudRegex   = regexp.MustCompile(`^[1-9][0-9]*$`)
)

// Validate checks the configuration the same way the client configuration
// dialogs did.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	s := c.SHM
	for name, n := range map[string]int{
		"do_registers": s.DORegisters,
		"di_registers": s.DIRegisters,
		"ao_registers": s.AORegisters,
		"ai_registers": s.AIRegisters,
	} {
		check(n >= 0 && n <= maxRegisters, "shm.%s must be between 0 and %d", name, maxRegisters)
	}
	check(nameRegex.MatchString(s.NamePrefix), "shm.name_prefix is invalid")
	if s.Semaphore.Enable {
		check(nameRegex.MatchString(s.Semaphore.Name), "shm.semaphore.name is invalid")
	}

	m := c.Client.Modbus
	check(m.ByteTimeout >= 0, "client.modbus.byte_timeout must not be negative")
	check(m.ResponseTimeout >= 0, "client.modbus.response_timeout must not be negative")

	switch c.Client.Mode {
	case "tcp":
		t := c.Client.TCP
		check(t.Host != "", "client.tcp.host is empty")
		check(t.Port > 0 && t.Port < 1<<16, "client.tcp.port is not a valid TCP port")
		check(t.SystemTCPTimeout || t.TCPTimeout > 0, "client.tcp.tcp_timeout must be greater than 0")
		check(t.Connections >= 0, "client.tcp.connections is negative")
		for i, id := range t.SeparateList {
			check(id >= 0 && id <= 255, "client.tcp.separate_list[%d]: value out of range", i)
		}
	case "rtu":
		r := c.Client.RTU
		check(deviceRegex.MatchString(r.Device), "client.rtu.device is invalid")
		check(baudRegex.MatchString(r.Baud), "client.rtu.baud is invalid")
		check(r.Parity == "N" || r.Parity == "E" || r.Parity == "O", "client.rtu.parity is invalid")
		check(r.DataBits >= 5 && r.DataBits <= 8, "client.rtu.data_bits is invalid")
		check(r.StopBits >= 1 && r.StopBits <= 2, "client.rtu.stop_bits is invalid")
		check(r.ClientID >= 0 && r.ClientID <= 255, "client.rtu.client_id is invalid")
	default:
		check(false, "client.mode must be tcp or rtu, got %q", c.Client.Mode)
	}

	check(c.Tools.Timeout > 0, "tools.timeout must be greater than 0")
	check(c.Inspector.RefreshInterval > 0, "inspector.refresh_interval must be greater than 0")

	for i, u := range c.Auth.Users {
		check(u.Username != "", "auth.users[%d].username is empty", i)
		check(u.Role == "viewer" || u.Role == "operator", "auth.users[%d].role must be viewer or operator", i)
	}

	return errors.Join(errs...)
}
