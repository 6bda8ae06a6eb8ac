package client

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenShmInspector/internal/config"
)

const (
	TCPBinary = "modbus-tcp-client-shm"
	RTUBinary = "modbus-rtu-client-shm"
)

var ErrUnknownMode = errors.New("unknown client mode")

// Command is a client invocation. It is built, never started.
type Command struct {
	Mode string   `json:"mode"`
	Args []string `json:"args"`
}

// Line renders the command with shell quoting where needed.
func (c Command) Line() string {
	parts := make([]string, len(c.Args))
	for i, a := range c.Args {
		parts[i] = quote(a)
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if strings.ContainsAny(s, " \t\n'\"\\$`*?;&|<>()") {
		return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
	}
	return s
}

// BuildCommand assembles the argument vector for the configured client mode.
func BuildCommand(cl config.ClientConfig, sh config.SHMConfig) (Command, error) {
	switch strings.ToLower(cl.Mode) {
	case "tcp", "":
		return Command{Mode: "tcp", Args: tcpArgs(cl, sh)}, nil
	case "rtu":
		args, err := rtuArgs(cl, sh)
		if err != nil {
			return Command{}, err
		}
		return Command{Mode: "rtu", Args: args}, nil
	default:
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownMode, cl.Mode)
	}
}

func registerArgs(bin string, sh config.SHMConfig) []string {
	return []string{
		bin,
		"-n", sh.NamePrefix,
		"--do-registers", strconv.Itoa(sh.DORegisters),
		"--di-registers", strconv.Itoa(sh.DIRegisters),
		"--ao-registers", strconv.Itoa(sh.AORegisters),
		"--ai-registers", strconv.Itoa(sh.AIRegisters),
	}
}

func tcpArgs(cl config.ClientConfig, sh config.SHMConfig) []string {
	t := cl.TCP
	args := registerArgs(TCPBinary, sh)
	args = append(args, "-i", t.Host, "-p", strconv.Itoa(t.Port))
	if !t.SystemTCPTimeout {
		args = append(args, "-t", strconv.Itoa(t.TCPTimeout))
	}
	if t.Connections > 1 {
		args = append(args, "-c", strconv.Itoa(t.Connections))
	}
	if t.Reconnect {
		args = append(args, "-r")
	}
	if t.SeparateAll {
		args = append(args, "--separate-all")
	} else if t.Separate && len(t.SeparateList) > 0 {
		args = append(args, "--separate", separateList(t.SeparateList))
	}
	args = append(args, commonArgs(cl.Modbus, sh)...)
	return args
}

func rtuArgs(cl config.ClientConfig, sh config.SHMConfig) ([]string, error) {
	r := cl.RTU
	args := registerArgs(RTUBinary, sh)
	args = append(args,
		"-d", r.Device,
		"-i", strconv.Itoa(r.ClientID),
		"--data-bits", strconv.Itoa(r.DataBits),
		"--stop-bits", strconv.Itoa(r.StopBits),
		"-b", r.Baud,
	)

	switch strings.ToUpper(r.Parity) {
	case "N", "E", "O":
		args = append(args, "-p", strings.ToUpper(r.Parity))
	default:
		return nil, fmt.Errorf("invalid parity %q", r.Parity)
	}

	if r.RS485 {
		args = append(args, "--rs485")
	} else {
		args = append(args, "--rs232")
	}

	args = append(args, commonArgs(cl.Modbus, sh)...)
	return args, nil
}

func commonArgs(m config.ModbusConfig, sh config.SHMConfig) []string {
	var args []string
	if m.Monitor {
		args = append(args, "-m")
	}
	if m.ByteTimeout > 0 {
		args = append(args, "--byte-timeout", strconv.FormatFloat(m.ByteTimeout, 'f', -1, 64))
	}
	if m.ResponseTimeout > 0 {
		args = append(args, "--response-timeout", strconv.FormatFloat(m.ResponseTimeout, 'f', -1, 64))
	}
	if sh.Force {
		args = append(args, "--force")
	}
	if sh.Semaphore.Enable {
		args = append(args, "--semaphore", sh.Semaphore.Name)
		if sh.Semaphore.Force {
			args = append(args, "--semaphore-force")
		}
	}
	return args
}

// separateList renders unit ids sorted and deduplicated.
func separateList(ids []int) string {
	sorted := append([]int(nil), ids...)
	sort.Ints(sorted)

	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		parts = append(parts, strconv.Itoa(id))
	}
	return strings.Join(parts, ",")
}
