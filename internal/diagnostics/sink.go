package diagnostics

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// Severity ranks a diagnostic.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Location points at a registration site. File/Line come from the fluent
// builder; Path is set instead when the blueprint was loaded from a file.
type Location struct {
	File string
	Line int
	Path string
}

func (l Location) String() string {
	if l.Path != "" {
		return l.Path
	}
	if l.File == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// IsZero reports whether no location information is present.
func (l Location) IsZero() bool {
	return l.File == "" && l.Path == ""
}

// Diagnostic is a single problem discovered during compilation. Related
// locations name the other parties of a conflict (e.g. both registrations
// of a duplicated route).
type Diagnostic struct {
	Code     Code
	Severity Severity
	Message  string
	Location Location
	Related  []Location
	Help     string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s[%s]: %s (%s)", d.Severity, d.Code, d.Message, d.Location)
}

// Sink receives diagnostics from every compiler phase. Validation rules are
// total: they report and continue, so a single compilation surfaces as many
// problems as possible.
type Sink interface {
	Report(d Diagnostic)
	HasErrors() bool
}

// Collector is the standard Sink: it stores diagnostics in arrival order
// and keeps an error tally that phase barriers consult.
type Collector struct {
	mu       sync.Mutex
	recorded []Diagnostic
	errors   atomic.Int64
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Report implements Sink.
func (c *Collector) Report(d Diagnostic) {
	c.mu.Lock()
	c.recorded = append(c.recorded, d)
	c.mu.Unlock()
	if d.Severity == SeverityError {
		c.errors.Inc()
	}
}

// HasErrors implements Sink.
func (c *Collector) HasErrors() bool {
	return c.errors.Load() > 0
}

// ErrorCount returns the number of error-severity diagnostics reported.
func (c *Collector) ErrorCount() int {
	return int(c.errors.Load())
}

// All returns the recorded diagnostics in arrival order.
func (c *Collector) All() []Diagnostic {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Diagnostic, len(c.recorded))
	copy(out, c.recorded)
	return out
}

var _ Sink = (*Collector)(nil)
