// Package catalog keeps the set of loaded ephemeris messages and a log of
// load events. It is safe for concurrent use.
package catalog

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/litescript/ls-ephem/internal/epoch"
	"github.com/litescript/ls-ephem/internal/logging"
	"github.com/litescript/ls-ephem/internal/oem"
)

// EventType represents the kind of catalog change.
type EventType string

const (
	EventLoaded   EventType = "LOADED"
	EventReloaded EventType = "RELOADED"
	EventFailed   EventType = "FAILED"
	EventRemoved  EventType = "REMOVED"
)

// Event records one change to the catalog.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Segments  int       `json:"segments,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// Entry is the catalog record for one source.
type Entry struct {
	Source       string
	Message      *oem.Message // Last successfully loaded message, nil if none
	LoadedAt     time.Time
	LoadDuration time.Duration
	LastError    error // Error from the most recent load attempt
	Loads        int
}

// Config holds catalog settings.
type Config struct {
	MaxEvents int
	Options   []oem.Option // Passed to the decoder for every load
}

// DefaultConfig returns the default catalog configuration.
func DefaultConfig() Config {
	return Config{MaxEvents: 50}
}

// Catalog is a registry of loaded messages keyed by source path.
type Catalog struct {
	mu sync.RWMutex

	entries map[string]*Entry
	opts    []oem.Option
	log     *logging.Logger

	// Event log (ring buffer)
	events       []Event
	maxEvents    int
	eventWriteAt int

	open func(name string) (io.ReadCloser, error)
	now  func() time.Time
}

// New creates an empty catalog.
func New(cfg Config, log *logging.Logger) *Catalog {
	maxEvents := cfg.MaxEvents
	if maxEvents <= 0 {
		maxEvents = 50
	}
	if log == nil {
		log = logging.Discard()
	}
	return &Catalog{
		entries:   make(map[string]*Entry),
		opts:      cfg.Options,
		log:       log.Named("catalog"),
		events:    make([]Event, 0, maxEvents),
		maxEvents: maxEvents,
		open:      func(name string) (io.ReadCloser, error) { return os.Open(name) },
		now:       time.Now,
	}
}

// Load reads source, picks a decoder from its first line and stores the
// result. A failed reload keeps the previously loaded message in place.
func (c *Catalog) Load(source string) (*oem.Message, error) {
	msg, _, err := c.load(source)
	return msg, err
}

// Reload loads source and returns the event it recorded.
func (c *Catalog) Reload(source string) Event {
	_, ev, _ := c.load(source)
	return ev
}

func (c *Catalog) load(source string) (*oem.Message, Event, error) {
	start := c.now()
	msg, err := c.decode(source)
	elapsed := c.now().Sub(start)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, existed := c.entries[source]
	if !existed {
		e = &Entry{Source: source}
		c.entries[source] = e
	}
	e.LastError = err

	if err != nil {
		ev := Event{Type: EventFailed, Timestamp: c.now(), Source: source, Error: err.Error()}
		c.addEvent(ev)
		c.log.Warn("load %s failed: %v", source, err)
		return nil, ev, err
	}

	typ := EventLoaded
	if e.Message != nil {
		typ = EventReloaded
	}
	e.Message = msg
	e.LoadedAt = c.now()
	e.LoadDuration = elapsed
	e.Loads++

	ev := Event{Type: typ, Timestamp: e.LoadedAt, Source: source, Segments: len(msg.Segments())}
	c.addEvent(ev)
	c.log.Info("%s %s: %d segments in %s", strings.ToLower(string(typ)), source, ev.Segments, elapsed.Round(time.Microsecond))
	return msg, ev, nil
}

// decode reads the whole input so the format can be sniffed before parsing.
func (c *Catalog) decode(source string) (*oem.Message, error) {
	f, err := c.open(source)
	if err != nil {
		return nil, fmt.Errorf("open ephemeris: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	dec, err := oem.DecoderFor(sniff(data), c.opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", source, err)
	}
	return dec.Decode(bytes.NewReader(data), source)
}

// sniff detects the format from the first non-blank line. Unrecognised
// input is handed to the OEM decoder, which reports the precise problem.
func sniff(data []byte) oem.Format {
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if f := oem.DetectFormat(line); f != oem.FormatUnknown {
			return f
		}
		break
	}
	return oem.FormatOEM
}

// Remove drops source from the catalog. It reports whether it was present.
func (c *Catalog) Remove(source string) bool {
	_, ok := c.remove(source)
	return ok
}

func (c *Catalog) remove(source string) (Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[source]; !ok {
		return Event{}, false
	}
	delete(c.entries, source)
	ev := Event{Type: EventRemoved, Timestamp: c.now(), Source: source}
	c.addEvent(ev)
	c.log.Info("removed %s", source)
	return ev, true
}

// addEvent adds an event to the ring buffer.
func (c *Catalog) addEvent(e Event) {
	if len(c.events) < c.maxEvents {
		c.events = append(c.events, e)
	} else {
		c.events[c.eventWriteAt] = e
		c.eventWriteAt = (c.eventWriteAt + 1) % c.maxEvents
	}
}

// Get returns a copy of the entry for source.
func (c *Catalog) Get(source string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[source]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Message returns the last good message for source.
func (c *Catalog) Message(source string) (*oem.Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[source]
	if !ok || e.Message == nil {
		return nil, false
	}
	return e.Message, true
}

// StateAt interpolates the message loaded from source at t.
func (c *Catalog) StateAt(source string, t epoch.Epoch) (oem.Vector6, error) {
	msg, ok := c.Message(source)
	if !ok {
		return oem.Vector6{}, fmt.Errorf("%s is not loaded", source)
	}
	return msg.StateAt(t)
}

// Sources returns the catalogued sources in sorted order.
func (c *Catalog) Sources() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.entries))
	for s := range c.entries {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Snapshot is a consistent copy of the catalog state.
type Snapshot struct {
	Entries []Entry // Sorted by source
	Events  []Event // Oldest first
}

// Snapshot returns a consistent snapshot of the catalog.
func (c *Catalog) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Source < entries[j].Source })

	return Snapshot{Entries: entries, Events: c.eventsOrdered()}
}

// eventsOrdered returns events oldest first.
func (c *Catalog) eventsOrdered() []Event {
	if len(c.events) == 0 {
		return nil
	}

	if len(c.events) < c.maxEvents {
		result := make([]Event, len(c.events))
		copy(result, c.events)
		return result
	}

	// Ring buffer is full, reorder from oldest to newest
	result := make([]Event, c.maxEvents)
	for i := 0; i < c.maxEvents; i++ {
		result[i] = c.events[(c.eventWriteAt+i)%c.maxEvents]
	}
	return result
}

// RecentEvents returns the last n events.
func (c *Catalog) RecentEvents(n int) []Event {
	c.mu.RLock()
	defer c.mu.RUnlock()

	all := c.eventsOrdered()
	if len(all) <= n {
		return all
	}
	return all[len(all)-n:]
}
