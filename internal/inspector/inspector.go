package inspector

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/KevinKickass/OpenShmInspector/internal/registry"
	"github.com/KevinKickass/OpenShmInspector/internal/shm"
	"github.com/KevinKickass/OpenShmInspector/internal/tools"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Listener is notified after every refresh cycle.
type Listener interface {
	EntriesUpdated(entries []registry.Info)
	RefreshFailed(bank shm.Bank, err error)
}

// Sample is one decoded value of a refresh cycle.
type Sample struct {
	Session uuid.UUID
	EntryID string
	Name    string
	Bank    shm.Bank
	Value   string
	Time    time.Time
}

// SampleSink stores decoded values, e.g. in a database.
type SampleSink interface {
	SaveSamples(ctx context.Context, samples []Sample) error
}

// Report summarizes one refresh cycle.
type Report struct {
	Time    time.Time         `json:"time"`
	Updated int               `json:"updated"`
	Dropped int               `json:"dropped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// Inspector decodes the registry's entries through shm-format. Only one
// refresh cycle runs at a time.
type Inspector struct {
	registry  *registry.Registry
	exec      tools.Executor
	shmFormat string
	segments  tools.Segments
	raw       *tools.SHMTools
	tmpDir    string
	session   uuid.UUID

	refreshMu sync.Mutex

	mu          sync.RWMutex
	listeners   []Listener
	sink        SampleSink
	lastRefresh time.Time
	lastErr     error

	auto   *AutoRefresh
	logger *zap.Logger
}

func New(
	reg *registry.Registry,
	exec tools.Executor,
	shmFormat string,
	segments tools.Segments,
	raw *tools.SHMTools,
	tmpDir string,
	logger *zap.Logger,
) *Inspector {
	if tmpDir == "" {
		tmpDir = os.TempDir()
	}
	i := &Inspector{
		registry:  reg,
		exec:      exec,
		shmFormat: shmFormat,
		segments:  segments,
		raw:       raw,
		tmpDir:    tmpDir,
		session:   uuid.New(),
		logger:    logger.With(zap.String("component", "inspector")),
	}
	i.auto = NewAutoRefresh(i.refreshTick, time.Second, i.logger)
	return i
}

// Registry returns the inspected entries.
func (i *Inspector) Registry() *registry.Registry {
	return i.registry
}

// Session identifies this inspector in temp file names and stored samples.
func (i *Inspector) Session() uuid.UUID {
	return i.session
}

// AutoRefresh returns the periodic refresh scheduler.
func (i *Inspector) AutoRefresh() *AutoRefresh {
	return i.auto
}

// AddListener registers a listener for refresh results.
func (i *Inspector) AddListener(l Listener) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.listeners = append(i.listeners, l)
}

// SetSampleSink enables storing decoded values.
func (i *Inspector) SetSampleSink(sink SampleSink) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.sink = sink
}

// Health returns the time and error of the last refresh cycle.
func (i *Inspector) Health() (time.Time, error) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.lastRefresh, i.lastErr
}

// Refresh runs one refresh cycle over all banks. A bank whose invocation
// fails or times out keeps its previous values. The returned error joins the
// per bank failures.
func (i *Inspector) Refresh(ctx context.Context) (*Report, error) {
	i.refreshMu.Lock()
	defer i.refreshMu.Unlock()

	report := &Report{Time: time.Now()}
	var errs []error
	var samples []Sample

	for _, bank := range shm.Banks {
		lines := i.registry.DirectivesForBank(bank)
		if len(lines) == 0 {
			continue
		}

		items, ts, err := i.invoke(ctx, bank, lines)
		if err != nil {
			i.logger.Warn("Refresh failed", zap.Stringer("bank", bank), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", bank, err))
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[bank.String()] = err.Error()
			i.notifyFailed(bank, err)
			continue
		}

		for _, item := range items {
			if _, err := shm.ParseIdentifier(item.Name); err != nil {
				i.logger.Warn("Invalid identifier in result",
					zap.String("id", item.Name),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("%s %s: %w", bank, item.Name, err))
				continue
			}
			entry, ok := i.registry.Get(item.Name)
			if !ok || entry.Address.Bank != bank {
				// entry was removed while the tool was running
				report.Dropped++
				continue
			}
			display, err := shm.DecodeScalar(entry.Value, item)
			if err != nil {
				i.logger.Warn("Failed to decode value",
					zap.String("id", item.Name),
					zap.String("type", item.Type),
					zap.Error(err))
				errs = append(errs, fmt.Errorf("%s %s: %w", bank, item.Name, err))
				continue
			}
			if err := i.registry.ApplyDecoded(bank, item.Name, display, ts); err != nil {
				report.Dropped++
				continue
			}
			report.Updated++
			samples = append(samples, Sample{
				Session: i.session,
				EntryID: entry.ID,
				Name:    entry.Name,
				Bank:    bank,
				Value:   display,
				Time:    ts,
			})
		}
	}

	err := errors.Join(errs...)
	i.mu.Lock()
	i.lastRefresh = report.Time
	i.lastErr = err
	listeners := append([]Listener(nil), i.listeners...)
	sink := i.sink
	i.mu.Unlock()

	if report.Updated > 0 {
		infos := registry.Infos(i.registry.Entries())
		for _, l := range listeners {
			l.EntriesUpdated(infos)
		}
	}
	if sink != nil && len(samples) > 0 {
		if err := sink.SaveSamples(ctx, samples); err != nil {
			i.logger.Error("Failed to store samples", zap.Error(err))
		}
	}

	return report, err
}

// invoke writes the directive file of a bank, runs shm-format and parses
// the result.
func (i *Inspector) invoke(ctx context.Context, bank shm.Bank, lines []string) ([]shm.ResultItem, time.Time, error) {
	f, err := os.CreateTemp(i.tmpDir, fmt.Sprintf("shm-inspect-%s-%s-*.cfg", i.session, bank))
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to create directive file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	_, err = f.WriteString(strings.Join(lines, "\n") + "\n")
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to write directive file: %w", err)
	}

	name := i.segments.Name(bank)
	args := []string{name, path}
	if i.segments.Semaphore != "" {
		args = append(args, "-s", i.segments.Semaphore)
	}
	res, err := i.exec.Run(ctx, tools.Command{Name: i.shmFormat, Args: args})
	if err != nil {
		return nil, time.Time{}, err
	}

	out, err := shm.ParseFormatOutput(bytes.NewReader(res.Stdout))
	if err != nil {
		return nil, time.Time{}, err
	}
	items, ok := out.Items(name)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("no data for %s in shm-format output", name)
	}
	return items, outputTime(out), nil
}

func outputTime(out *shm.FormatOutput) time.Time {
	secs, err := out.Time.Float64()
	if err != nil || secs <= 0 {
		return time.Now()
	}
	whole := int64(secs)
	return time.Unix(whole, int64((secs-float64(whole))*1e9))
}

func (i *Inspector) notifyFailed(bank shm.Bank, err error) {
	i.mu.RLock()
	listeners := append([]Listener(nil), i.listeners...)
	i.mu.RUnlock()
	for _, l := range listeners {
		l.RefreshFailed(bank, err)
	}
}

// ReadRaw decodes one entry straight from a dump of its registers, without
// going through shm-format.
func (i *Inspector) ReadRaw(ctx context.Context, id string) (string, error) {
	entry, ok := i.registry.Get(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", registry.ErrUnknownIdentifier, id)
	}
	if i.raw == nil {
		return "", errors.New("raw access not configured")
	}

	offset, bit := entry.Address.Location(entry.Value)
	bank := entry.Address.Bank
	register := offset / bank.RegisterSize()
	start := offset - shm.ToByteOffset(bank, register)
	size := entry.Value.Size()

	data, err := i.raw.ReadRaw(ctx, bank, register, shm.Units(bank, start+size))
	if err != nil {
		return "", err
	}
	return shm.DecodeRaw(entry.Value, bit, data[start:start+size])
}

func (i *Inspector) refreshTick(ctx context.Context) {
	if _, err := i.Refresh(ctx); err != nil {
		i.logger.Debug("Auto refresh cycle finished with errors", zap.Error(err))
	}
}
