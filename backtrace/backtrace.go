// Package backtrace filters raw stack traces down to the lines worth keeping
// in diagnostics. A Cleaner applies ordered filter functions to rewrite each
// line, then silencer predicates to decide which lines are noise. Two output
// modes exist: Clean keeps the lines no silencer matched, CleanSilenced keeps
// only the silenced ones.
package backtrace

import (
	"fmt"
	"strings"
)

// FilterFunc rewrites a single trace line.
type FilterFunc func(line string) string

// SilencerFunc reports whether a trace line should be silenced.
type SilencerFunc func(line string) bool

// Cleaner holds the ordered filters and silencers applied to a trace.
type Cleaner struct {
	filters   []FilterFunc
	silencers []SilencerFunc
}

// New returns an empty Cleaner with no filters or silencers.
func New() *Cleaner {
	return &Cleaner{}
}

// Default returns a Cleaner tuned for Go runtime traces: leading whitespace
// is trimmed and frames from the runtime and testing packages are silenced.
func Default() *Cleaner {
	c := New()
	c.AddFilter(func(line string) string {
		return strings.TrimLeft(line, " \t")
	})
	c.AddSilencer(func(line string) bool {
		return strings.HasPrefix(line, "runtime.") || strings.HasPrefix(line, "runtime/")
	})
	c.AddSilencer(func(line string) bool {
		return strings.HasPrefix(line, "testing.")
	})
	return c
}

// AddFilter appends a filter applied to every line, in registration order.
func (c *Cleaner) AddFilter(f FilterFunc) {
	c.filters = append(c.filters, f)
}

// AddSilencer appends a silencer predicate.
func (c *Cleaner) AddSilencer(s SilencerFunc) {
	c.silencers = append(c.silencers, s)
}

// RemoveFilters drops all registered filters.
func (c *Cleaner) RemoveFilters() {
	c.filters = nil
}

// RemoveSilencers drops all registered silencers.
func (c *Cleaner) RemoveSilencers() {
	c.silencers = nil
}

// Clean returns the filtered, non-silenced lines of the trace. The trace may
// be a string, a []string, or an error.
func (c *Cleaner) Clean(trace any) []string {
	return c.clean(trace, false)
}

// CleanSilenced returns only the lines the silencers matched, filtered.
func (c *Cleaner) CleanSilenced(trace any) []string {
	return c.clean(trace, true)
}

func (c *Cleaner) clean(trace any, silencedOnly bool) []string {
	var out []string
	for _, line := range Lines(trace) {
		for _, f := range c.filters {
			line = f(line)
		}
		if c.silenced(line) == silencedOnly {
			out = append(out, line)
		}
	}
	return out
}

func (c *Cleaner) silenced(line string) bool {
	for _, s := range c.silencers {
		if s(line) {
			return true
		}
	}
	return false
}

// Lines normalizes a raw trace into individual lines. Strings are split on
// newlines, errors contribute the lines of their message, and slices pass
// through as a copy.
func Lines(trace any) []string {
	switch v := trace.(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case string:
		return splitLines(v)
	case error:
		return splitLines(v.Error())
	default:
		return splitLines(fmt.Sprintf("%v", trace))
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
