package i2cscan

import (
	"fmt"
	"io"
	"os"
)

// Reporter receives sweep lifecycle events. Implementations must not retain
// the ScanResult beyond the call.
type Reporter interface {
	SweepStarted()
	SweepCompleted(result ScanResult)
}

// ConsoleReporter prints sweep outcomes in the classic scanner format:
//
//	Scanning...
//	I2C device found at address 0x3C!
//	done
type ConsoleReporter struct {
	out io.Writer
}

func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out}
}

func (r *ConsoleReporter) Banner() {
	_, _ = fmt.Fprintf(r.out, "\nSoldered I2C Scanner!\n")
}

func (r *ConsoleReporter) SweepStarted() {
	_, _ = fmt.Fprintln(r.out, "Scanning...")
}

func (r *ConsoleReporter) SweepCompleted(result ScanResult) {
	if len(result) == 0 {
		_, _ = fmt.Fprintln(r.out, "No I2C devices found")
	}
	for _, addr := range result {
		_, _ = fmt.Fprintf(r.out, "I2C device found at address %s!\n", addr)
	}
	_, _ = fmt.Fprintf(r.out, "done\n\n")
}
