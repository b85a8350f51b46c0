// Package display renders worker status tables and the shutdown summary.
package display

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/accrual-runner/internal/types"
	"github.com/accrual-runner/internal/wallets"
	"github.com/hako/durafmt"
)

// Unit is the currency label shown next to amounts
const Unit = "KLDO"

// StatusReport is one worker's state after a successful reporting cycle
type StatusReport struct {
	Index         int
	Identifier    string
	Final         bool
	Uptime        time.Duration
	Active        bool
	Hashrate      float64
	Earnings      types.Earnings
	ReferralBonus float64
}

// Summary is the aggregate printed at shutdown
type Summary struct {
	Wallets   int
	TotalPaid float64
}

// Reporter receives user-facing reports
type Reporter interface {
	Status(report StatusReport)
	Summary(summary Summary)
}

// ConsoleReporter writes plain-text tables. Each report is a single write.
type ConsoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to out, or stdout when nil
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleReporter{out: out}
}

// Status implements Reporter
func (r *ConsoleReporter) Status(report StatusReport) {
	r.write(RenderStatus(report))
}

// Summary implements Reporter
func (r *ConsoleReporter) Summary(summary Summary) {
	r.write(RenderSummary(summary))
}

func (r *ConsoleReporter) write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, _ = io.WriteString(r.out, s)
}

// FormatUptime renders d at second precision, e.g. "1 hour 2 minutes 3 seconds"
func FormatUptime(d time.Duration) string {
	if d < time.Second {
		return "0 seconds"
	}
	return durafmt.Parse(d.Truncate(time.Second)).String()
}

// RenderStatus builds the status table for one worker
func RenderStatus(report StatusReport) string {
	kind := "Mining Status"
	if report.Final {
		kind = "Final Status"
	}

	headers := []string{"Uptime", "Active", "Hashrate", "Total", "Pending", "Paid", "Reff Bonus"}
	values := []string{
		FormatUptime(report.Uptime),
		fmt.Sprintf("%t", report.Active),
		fmt.Sprintf("%g MH/s", report.Hashrate),
		fmt.Sprintf("%.8f %s", report.Earnings.Total, Unit),
		fmt.Sprintf("%.8f %s", report.Earnings.Pending, Unit),
		fmt.Sprintf("%.8f %s", report.Earnings.Paid, Unit),
		fmt.Sprintf("+%.1f%%", report.ReferralBonus*100),
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Wallet %d] %s for Wallet: %s\n", report.Index, kind, wallets.Mask(report.Identifier))
	writeTable(&b, headers, values)
	return b.String()
}

// RenderSummary builds the shutdown summary block
func RenderSummary(summary Summary) string {
	return fmt.Sprintf("\n### Payment & Wallets Detail ###\nTotal Wallets: %d\nTotal Paid: %.8f %s\n",
		summary.Wallets, summary.TotalPaid, Unit)
}

func writeTable(b *strings.Builder, headers, values []string) {
	widths := make([]int, len(headers))
	for i := range headers {
		widths[i] = max(len(headers[i]), len(values[i])) + 2
	}

	line := func() {
		b.WriteByte('+')
		for _, w := range widths {
			b.WriteString(strings.Repeat("-", w))
			b.WriteByte('+')
		}
		b.WriteByte('\n')
	}
	row := func(cells []string) {
		b.WriteByte('|')
		for i, c := range cells {
			fmt.Fprintf(b, " %-*s|", widths[i]-1, c)
		}
		b.WriteByte('\n')
	}

	line()
	row(headers)
	line()
	row(values)
	line()
}
