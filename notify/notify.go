// Package notify implements the notification reactor: it tails a
// line-oriented notification log produced by an external hardware-event
// source, decodes each event code, and applies the first matching rule as
// a temporary interval reduction on the level policy table. File access
// goes through the same bounded retry the checkpoint writers use, since a
// notification file mid-rotation looks exactly like a transient I/O error.
package notify

import (
	"bufio"
	"context"
	"fmt"
	log "log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/sethvargo/go-retry"

	core "github.com/openhpc/mlcr/internal/core"
	"github.com/openhpc/mlcr/level"
)

// MXNT is the number of retained notification lines per tick: newer
// overwrites older once the cap is reached. Notifications are advisory;
// loss is tolerated.
const MXNT = 3

// Rule maps a (component, event) pair at or above a count threshold to a
// temporary frequency increase on one checkpoint level.
type Rule struct {
	Component       int `yaml:"component"`
	EventCode       int `yaml:"event_code"`
	MinCount        int `yaml:"min_count"`
	TargetLevel     int `yaml:"target_level"`
	FreqMultiplier  int `yaml:"freq_multiplier"`
	DurationMinutes int `yaml:"duration_minutes"`
}

// Event is one decoded notification line.
type Event struct {
	Timestamp string
	Component int
	EventKind int
	Count     int
	Message   string
}

// Reactor tails one notification file and applies its rule table to a
// level.Table on each Tick.
type Reactor struct {
	path   string
	rules  []Rule
	offset int64
}

// New builds a Reactor over path using rules. DefaultRules is used by
// callers that have no YAML sidecar configured.
func New(path string, rules []Rule) *Reactor {
	return &Reactor{path: path, rules: rules}
}

// DefaultRules is the built-in rule table used when no rules_file is
// configured.
func DefaultRules() []Rule {
	return []Rule{
		{Component: 1, EventCode: 2, MinCount: 3, TargetLevel: 1, FreqMultiplier: 4, DurationMinutes: 10},
		{Component: 1, EventCode: 3, MinCount: 1, TargetLevel: 4, FreqMultiplier: 2, DurationMinutes: 30},
		{Component: 2, EventCode: 1, MinCount: 5, TargetLevel: 2, FreqMultiplier: 2, DurationMinutes: 15},
	}
}

// decodeCode splits a zero-padded 6-digit code into component (1 digit),
// event kind (2 digits), and observed count (3 digits): C|EE|NNN. Codes
// outside [0, 1000000) are rejected.
func decodeCode(code int) (component, eventKind, count int, ok bool) {
	if code < 0 || code >= 1000000 {
		return 0, 0, 0, false
	}
	component = code / 100000
	eventKind = (code / 1000) % 100
	count = code % 1000
	return component, eventKind, count, true
}

func parseLine(line string) (Event, bool) {
	parts := strings.SplitN(line, "|", 3)
	if len(parts) != 3 {
		return Event{}, false
	}
	code, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return Event{}, false
	}
	component, eventKind, count, ok := decodeCode(code)
	if !ok {
		return Event{}, false
	}
	return Event{
		Timestamp: strings.TrimSpace(parts[0]),
		Component: component,
		EventKind: eventKind,
		Count:     count,
		Message:   strings.TrimSpace(parts[2]),
	}, true
}

// matchRule returns the first rule whose (component, event) matches e and
// whose min_count <= e.Count. First match wins; later rules never override.
func matchRule(rules []Rule, e Event) (Rule, bool) {
	for _, r := range rules {
		if r.Component == e.Component && r.EventCode == e.EventKind && e.Count >= r.MinCount {
			return r, true
		}
	}
	return Rule{}, false
}

// Tick runs one reactor cycle: read any new notification lines (bounded
// retries via core.Retry, logged and dropped on persistent failure; the
// reactor never fails loudly), apply the first matching rule per retained
// line, then revert expired regulations on tbl regardless of whether any
// new lines were read.
func (r *Reactor) Tick(ctx context.Context, tbl *level.Table, currentMinute int) {
	lines, err := r.readNewLines(ctx)
	if err != nil {
		log.Debug("notify: notification file access failed, skipping this tick", "path", r.path, "err", err)
	}

	for _, line := range lines {
		e, ok := parseLine(line)
		if !ok {
			log.Debug("notify: malformed or out-of-range notification line, skipping", "line", line)
			continue
		}
		rule, ok := matchRule(r.rules, e)
		if !ok {
			log.Warn("notify: no rule matched notification", "component", e.Component, "event", e.EventKind, "count", e.Count)
			continue
		}
		tbl.Regulate(rule.TargetLevel, rule.FreqMultiplier, currentMinute, rule.DurationMinutes)
	}

	tbl.Revert(currentMinute)
}

// readNewLines stats the file, seeks to the remembered offset if it grew,
// and returns up to MXNT of the newest lines read since. A shrunk file
// (rotation/truncation) resets the offset to 0 rather than erroring.
func (r *Reactor) readNewLines(ctx context.Context) ([]string, error) {
	var lines []string
	task := func(ctx context.Context) error {
		f, err := os.Open(r.path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return retry.RetryableError(core.NotSuccess(core.FileIOError, err, 0, 0))
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return retry.RetryableError(core.NotSuccess(core.FileIOError, err, 0, 0))
		}
		if info.Size() < r.offset {
			r.offset = 0
		}
		if info.Size() == r.offset {
			return nil
		}
		if _, err := f.Seek(r.offset, 0); err != nil {
			return retry.RetryableError(core.NotSuccess(core.FileIOError, err, 0, 0))
		}

		sc := bufio.NewScanner(f)
		var all []string
		for sc.Scan() {
			all = append(all, sc.Text())
		}
		if err := sc.Err(); err != nil {
			return retry.RetryableError(core.NotSuccess(core.FileIOError, err, 0, 0))
		}
		r.offset = info.Size()

		if len(all) > MXNT {
			all = all[len(all)-MXNT:]
		}
		lines = all
		return nil
	}

	err := core.Retry(ctx, task, func(ctx context.Context) {
		log.Debug("notify: giving up on notification file for this tick", "path", r.path)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: reading %s: %w", r.path, err)
	}
	return lines, nil
}
