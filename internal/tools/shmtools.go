package tools

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"go.uber.org/zap"
)

// Binaries are the names (or paths) of the external shared memory tools.
type Binaries struct {
	ShmFormat       string `mapstructure:"shm_format"`
	StdinToModbus   string `mapstructure:"stdin_to_modbus"`
	DumpShm         string `mapstructure:"dump_shm"`
	WriteShm        string `mapstructure:"write_shm"`
	SharedMemRandom string `mapstructure:"shared_mem_random"`
}

// DefaultBinaries are the tool names as installed by the shm-modbus packages.
var DefaultBinaries = Binaries{
	ShmFormat:       "shm-format",
	StdinToModbus:   "stdin-to-modbus-shm",
	DumpShm:         "dump-shm",
	WriteShm:        "write-shm",
	SharedMemRandom: "shared-mem-random",
}

// Segments names the shared memory of each bank and the semaphore guarding it.
type Segments struct {
	Prefix    string
	Semaphore string
	Capacity  shm.Capacity
}

// Name returns the shared memory name of a bank, e.g. "modbus_AO".
func (s Segments) Name(bank shm.Bank) string {
	return s.Prefix + bank.String()
}

func (s Segments) semaphoreArgs(flag string) []string {
	if s.Semaphore == "" {
		return nil
	}
	return []string{flag, s.Semaphore}
}

// SHMTools wraps dump-shm, write-shm and shared-mem-random.
type SHMTools struct {
	exec     Executor
	bins     Binaries
	segments Segments
	logger   *zap.Logger

	randMu  sync.Mutex
	running map[shm.Bank]*randomizer
}

var (
	ErrInvalidInterval      = errors.New("randomizer interval must be positive")
	ErrRandomizerRunning    = errors.New("randomizer already running")
	ErrRandomizerNotRunning = errors.New("randomizer not running")
)

func NewSHMTools(exec Executor, bins Binaries, segments Segments, logger *zap.Logger) *SHMTools {
	return &SHMTools{
		exec:     exec,
		bins:     bins,
		segments: segments,
		logger:   logger,
		running:  make(map[shm.Bank]*randomizer),
	}
}

// Segments returns the shared memory naming used by the tools.
func (t *SHMTools) Segments() Segments {
	return t.segments
}

// Dump writes the whole content of a bank to w.
func (t *SHMTools) Dump(ctx context.Context, bank shm.Bank, w io.Writer) error {
	args := append([]string{t.segments.Name(bank)}, t.segments.semaphoreArgs("-s")...)
	if _, err := t.exec.Run(ctx, Command{Name: t.bins.DumpShm, Args: args, Stdout: w}); err != nil {
		return fmt.Errorf("failed to dump %s: %w", t.segments.Name(bank), err)
	}
	return nil
}

// DumpToFile writes the content of a bank to a file. The file is replaced
// only when the dump succeeds.
func (t *SHMTools) DumpToFile(ctx context.Context, bank shm.Bank, path string) (err error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create dump file: %w", err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if err := t.Dump(ctx, bank, f); err != nil {
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to write dump file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write dump file: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("failed to write dump file: %w", err)
	}

	t.logger.Info("Shared memory dumped",
		zap.String("shm", t.segments.Name(bank)),
		zap.String("file", path))
	return nil
}

// LoadOptions are the write-shm flags.
type LoadOptions struct {
	// Invert writes the bitwise inverse of the input.
	Invert bool `json:"invert"`
	// Repeat repeats the input until the segment is full.
	Repeat bool `json:"repeat"`
}

// Load writes r into a bank.
func (t *SHMTools) Load(ctx context.Context, bank shm.Bank, r io.Reader, opts LoadOptions) error {
	args := []string{"-n", t.segments.Name(bank)}
	if opts.Invert {
		args = append(args, "-i")
	}
	if opts.Repeat {
		args = append(args, "-r")
	}
	args = append(args, t.segments.semaphoreArgs("-s")...)

	if _, err := t.exec.Run(ctx, Command{Name: t.bins.WriteShm, Args: args, Stdin: r}); err != nil {
		return fmt.Errorf("failed to load %s: %w", t.segments.Name(bank), err)
	}
	return nil
}

// LoadFromFile writes the content of a file into a bank.
func (t *SHMTools) LoadFromFile(ctx context.Context, bank shm.Bank, path string, opts LoadOptions) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open load file: %w", err)
	}
	defer f.Close()

	if err := t.Load(ctx, bank, f, opts); err != nil {
		return err
	}

	t.logger.Info("Shared memory loaded",
		zap.String("shm", t.segments.Name(bank)),
		zap.String("file", path),
		zap.Bool("invert", opts.Invert),
		zap.Bool("repeat", opts.Repeat))
	return nil
}

// ReadRaw returns count registers starting at register from a bank.
func (t *SHMTools) ReadRaw(ctx context.Context, bank shm.Bank, register, count int) ([]byte, error) {
	if err := shm.Validate(bank, register, count, t.segments.Capacity); err != nil {
		return nil, err
	}
	size := count * bank.RegisterSize()
	args := []string{
		"--bytes", strconv.Itoa(size),
		"--offset", strconv.Itoa(shm.ToByteOffset(bank, register)),
		t.segments.Name(bank),
	}
	args = append(args, t.segments.semaphoreArgs("-s")...)

	var out bytes.Buffer
	if _, err := t.exec.Run(ctx, Command{Name: t.bins.DumpShm, Args: args, Stdout: &out}); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", t.segments.Name(bank), err)
	}
	if out.Len() != size {
		return nil, fmt.Errorf("%w: read %d bytes from %s, expected %d", shm.ErrLengthMismatch, out.Len(), t.segments.Name(bank), size)
	}
	return out.Bytes(), nil
}

// Hexdump renders a register window in the canonical hex+ASCII layout.
func (t *SHMTools) Hexdump(ctx context.Context, bank shm.Bank, register, count int) (string, error) {
	data, err := t.ReadRaw(ctx, bank, register, count)
	if err != nil {
		return "", err
	}
	return hex.Dump(data), nil
}

// RandomOptions configure shared-mem-random.
type RandomOptions struct {
	Register int `json:"register"`
	Count    int `json:"count"`
	// Loops is the number of rounds, at least 1.
	Loops int `json:"loops"`
	// Interval between rounds.
	Interval time.Duration `json:"-"`
	// Mask limits the randomized bits. DO/DI default to 0x1.
	Mask uint64 `json:"mask"`
}

// Randomize fills a register window with random values.
func (t *SHMTools) Randomize(ctx context.Context, bank shm.Bank, opts RandomOptions) error {
	opts, err := t.randomDefaults(bank, opts)
	if err != nil {
		return err
	}
	if opts.Loops < 1 {
		opts.Loops = 1
	}

	args := append(t.randomArgs(bank, opts), "-l", strconv.Itoa(opts.Loops))
	cmd := Command{Name: t.bins.SharedMemRandom, Args: args}
	if opts.Interval > 0 {
		cmd.Args = append(cmd.Args, "-i", strconv.FormatInt(opts.Interval.Milliseconds(), 10))
		cmd.Timeout = time.Duration(opts.Loops)*opts.Interval + time.Second
	}
	if _, err := t.exec.Run(ctx, cmd); err != nil {
		return fmt.Errorf("failed to randomize %s: %w", t.segments.Name(bank), err)
	}

	t.logger.Info("Shared memory randomized",
		zap.String("shm", t.segments.Name(bank)),
		zap.Int("register", opts.Register),
		zap.Int("count", opts.Count),
		zap.Int("loops", opts.Loops))
	return nil
}

func (t *SHMTools) randomDefaults(bank shm.Bank, opts RandomOptions) (RandomOptions, error) {
	if opts.Count == 0 {
		opts.Count = t.segments.Capacity.Of(bank) - opts.Register
	}
	if err := shm.Validate(bank, opts.Register, opts.Count, t.segments.Capacity); err != nil {
		return opts, err
	}
	if opts.Mask == 0 && bank.Digital() {
		opts.Mask = 0x1
	}
	return opts, nil
}

func (t *SHMTools) randomArgs(bank shm.Bank, opts RandomOptions) []string {
	args := []string{
		"-n", t.segments.Name(bank),
		"-a", strconv.Itoa(bank.RegisterSize()),
		"-o", strconv.Itoa(opts.Register),
		"-e", strconv.Itoa(opts.Count),
	}
	args = append(args, t.segments.semaphoreArgs("--semaphore")...)
	if opts.Mask != 0 {
		args = append(args, "-m", strconv.FormatUint(opts.Mask, 16))
	}
	return args
}

// randomizer is a shared-mem-random process running without a loop limit.
type randomizer struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// StartRandomizer runs shared-mem-random on a bank until StopRandomizer is
// called. Loops is ignored and Interval is required.
func (t *SHMTools) StartRandomizer(bank shm.Bank, opts RandomOptions) error {
	if opts.Interval <= 0 {
		return ErrInvalidInterval
	}
	opts, err := t.randomDefaults(bank, opts)
	if err != nil {
		return err
	}

	t.randMu.Lock()
	defer t.randMu.Unlock()
	if r, ok := t.running[bank]; ok {
		select {
		case <-r.done:
		default:
			return fmt.Errorf("%w: %s", ErrRandomizerRunning, bank)
		}
	}

	args := append(t.randomArgs(bank, opts), "-i", strconv.FormatInt(opts.Interval.Milliseconds(), 10))
	ctx, cancel := context.WithCancel(context.Background())
	r := &randomizer{cancel: cancel, done: make(chan struct{})}
	t.running[bank] = r

	go func() {
		defer close(r.done)
		_, err := t.exec.Run(ctx, Command{Name: t.bins.SharedMemRandom, Args: args, Timeout: NoTimeout})
		if err != nil && ctx.Err() == nil {
			r.err = err
			t.logger.Error("Randomizer exited",
				zap.String("shm", t.segments.Name(bank)),
				zap.Error(err))
		}
	}()

	t.logger.Info("Randomizer started",
		zap.String("shm", t.segments.Name(bank)),
		zap.Int("register", opts.Register),
		zap.Int("count", opts.Count),
		zap.Duration("interval", opts.Interval))
	return nil
}

// StopRandomizer terminates the randomizer of a bank and waits for it to
// exit. It returns the error of a randomizer that exited on its own.
func (t *SHMTools) StopRandomizer(bank shm.Bank) error {
	t.randMu.Lock()
	r, ok := t.running[bank]
	delete(t.running, bank)
	t.randMu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrRandomizerNotRunning, bank)
	}

	r.cancel()
	<-r.done
	t.logger.Info("Randomizer stopped", zap.String("shm", t.segments.Name(bank)))
	if r.err != nil {
		return fmt.Errorf("randomizer of %s failed: %w", t.segments.Name(bank), r.err)
	}
	return nil
}

// RandomizerRunning reports whether a randomizer process is alive for bank.
func (t *SHMTools) RandomizerRunning(bank shm.Bank) bool {
	t.randMu.Lock()
	defer t.randMu.Unlock()
	r, ok := t.running[bank]
	if !ok {
		return false
	}
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// StopRandomizers stops every randomizer, used on shutdown.
func (t *SHMTools) StopRandomizers() {
	t.randMu.Lock()
	banks := make([]shm.Bank, 0, len(t.running))
	for bank := range t.running {
		banks = append(banks, bank)
	}
	t.randMu.Unlock()

	for _, bank := range banks {
		if err := t.StopRandomizer(bank); err != nil {
			t.logger.Warn("Failed to stop randomizer", zap.Error(err))
		}
	}
}
