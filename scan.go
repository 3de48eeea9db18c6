package i2cscan

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ScanResult holds the addresses that acknowledged a presence probe during
// a single sweep, in ascending order. It is produced fresh on every sweep
// and never merged with previous results.
type ScanResult []Addr

// Clock abstracts the wait between sweeps so tests can drive the loop
// without wall-clock delays.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

type ScannerOpts struct {
	First    Addr
	Last     Addr
	Interval time.Duration
	Clock    Clock
	Reporter Reporter
}

type ScannerOpt func(*ScannerOpts)

func WithRange(first, last Addr) ScannerOpt {
	return func(o *ScannerOpts) {
		o.First = first
		o.Last = last
	}
}

func WithInterval(interval time.Duration) ScannerOpt {
	return func(o *ScannerOpts) {
		o.Interval = interval
	}
}

func WithClock(clock Clock) ScannerOpt {
	return func(o *ScannerOpts) {
		o.Clock = clock
	}
}

func WithReporter(reporter Reporter) ScannerOpt {
	return func(o *ScannerOpts) {
		o.Reporter = reporter
	}
}

// Scanner sweeps the 7-bit address space of a single bus and reports which
// addresses respond. The bus is exclusively owned and accessed serially.
type Scanner struct {
	bus    Prober
	config ScannerOpts
}

func NewScanner(bus Prober, opts ...ScannerOpt) *Scanner {
	config := ScannerOpts{
		First:    AddrMin,
		Last:     AddrMax,
		Interval: 5 * time.Second,
		Clock:    systemClock{},
		Reporter: NewConsoleReporter(nil),
	}
	for _, opt := range opts {
		opt(&config)
	}
	return &Scanner{bus: bus, config: config}
}

// Sweep probes every address in the configured range in ascending order.
// A non-ack excludes the address from the result; there are no retries.
// Sweep fails only when the underlying transport reports a fault.
func (s *Scanner) Sweep(ctx context.Context) (ScanResult, error) {
	if s.config.First > s.config.Last {
		return nil, fmt.Errorf("invalid address range %s-%s", s.config.First, s.config.Last)
	}
	var found ScanResult
	for addr := s.config.First; ; addr++ {
		ack, err := s.bus.Probe(ctx, addr)
		if err != nil {
			return nil, fmt.Errorf("probe of %s failed: %w", addr, err)
		}
		if ack {
			found = append(found, addr)
		}
		if addr == s.config.Last {
			break
		}
	}
	return found, nil
}

// Run loops forever: sweep, report, suspend for the configured interval.
// A transport fault aborts the current sweep, is logged and the loop picks
// up again on the next scheduled sweep. Run returns only when ctx is
// cancelled; under normal operation it never returns.
func (s *Scanner) Run(ctx context.Context) error {
	for {
		s.config.Reporter.SweepStarted()
		result, err := s.Sweep(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Error("sweep aborted, waiting for next cycle", "error", err)
		} else {
			s.config.Reporter.SweepCompleted(result)
		}
		select {
		case <-s.config.Clock.After(s.config.Interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
