package oem

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/litescript/ls-ephem/internal/epoch"
	"github.com/litescript/ls-ephem/internal/logging"
)

// Message is a loaded ephemeris: header fields plus ordered, non-overlapping
// segments. It is immutable once returned by Parse.
type Message struct {
	source       string
	version      string
	messageID    string
	creationDate OptionalEpoch
	originator   string
	comments     []string
	segments     []*Segment
}

// Opener opens a named input for reading.
type Opener func(name string) (io.ReadCloser, error)

func openFile(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// Option configures a load.
type Option func(*options)

type options struct {
	allowVersion2 bool
	logger        *logging.Logger
	warn          Warner
	opener        Opener
}

// WithVersion2 accepts CCSDS_OEM_VERS = 2.0 files.
func WithVersion2() Option {
	return func(o *options) { o.allowVersion2 = true }
}

// WithLogger sets the logger used for parse tracing and, unless WithWarner is
// also given, for interpolation warnings.
func WithLogger(l *logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithWarner routes interpolation degradation warnings to w.
func WithWarner(w Warner) Option {
	return func(o *options) { o.warn = w }
}

// WithOpener replaces the function LoadFile uses to open its input.
func WithOpener(op Opener) Option {
	return func(o *options) { o.opener = op }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.Discard()
	}
	o.logger = o.logger.Named("oem")
	if o.warn == nil {
		o.warn = o.logger.Warn
	}
	if o.opener == nil {
		o.opener = openFile
	}
	return o
}

// Load parses a message from r. It is equivalent to Parse.
func Load(r io.Reader, source string, opts ...Option) (*Message, error) {
	return Parse(r, source, opts...)
}

// LoadFile opens and parses the named file.
func LoadFile(name string, opts ...Option) (*Message, error) {
	o := buildOptions(opts)
	f, err := o.opener(name)
	if err != nil {
		return nil, fmt.Errorf("open ephemeris: %w", err)
	}
	defer f.Close()

	return parse(f, name, o)
}

// LoadAll loads several files concurrently. Results are in input order. The
// first failure cancels loads that have not started yet and is returned.
func LoadAll(ctx context.Context, names []string, opts ...Option) ([]*Message, error) {
	msgs := make([]*Message, len(names))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := LoadFile(name, opts...)
			if err != nil {
				return err
			}
			msgs[i] = m
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return msgs, nil
}

// Source returns the label the message was loaded from.
func (m *Message) Source() string { return m.source }

// Version returns the CCSDS_OEM_VERS value.
func (m *Message) Version() string { return m.version }

// MessageID returns the MESSAGE_ID header value (version 2.0 only).
func (m *Message) MessageID() string { return m.messageID }

// CreationDate returns the CREATION_DATE header value, if present.
func (m *Message) CreationDate() OptionalEpoch { return m.creationDate }

// Originator returns the ORIGINATOR header value.
func (m *Message) Originator() string { return m.originator }

// Comments returns the header comments.
func (m *Message) Comments() []string {
	return append([]string(nil), m.comments...)
}

// Segments returns the segments in time order.
func (m *Message) Segments() []*Segment {
	return append([]*Segment(nil), m.segments...)
}

// SegmentAt returns segment i.
func (m *Message) SegmentAt(i int) (*Segment, error) {
	if i < 0 || i >= len(m.segments) {
		return nil, fmt.Errorf("segment index %d out of range [0, %d)", i, len(m.segments))
	}
	return m.segments[i], nil
}

// StartEpoch returns the start time of the first segment.
func (m *Message) StartEpoch() epoch.Epoch {
	return m.segments[0].meta.StartTime
}

// EndEpoch returns the stop time of the last segment.
func (m *Message) EndEpoch() epoch.Epoch {
	return m.segments[len(m.segments)-1].meta.StopTime
}

// CentralBody returns CENTER_NAME of the last segment.
func (m *Message) CentralBody() string {
	return m.segments[len(m.segments)-1].meta.CenterName
}

// ReferenceFrame returns REF_FRAME of the last segment.
func (m *Message) ReferenceFrame() string {
	return m.segments[len(m.segments)-1].meta.RefFrame
}

// segmentFor returns the segment whose usable window contains e. When two
// segments share a boundary epoch the earlier one is chosen.
func (m *Message) segmentFor(e epoch.Epoch) (*Segment, bool) {
	// Usable windows are ordered, so their stop times are non-decreasing.
	i := sort.Search(len(m.segments), func(i int) bool {
		_, stop := m.segments[i].Coverage()
		return !stop.Before(e)
	})
	if i < len(m.segments) && m.segments[i].Covers(e) {
		return m.segments[i], true
	}
	return nil, false
}

// Covers reports whether some segment can answer a query at e.
func (m *Message) Covers(e epoch.Epoch) bool {
	_, ok := m.segmentFor(e)
	return ok
}

// StateAt returns the interpolated state at e from the covering segment.
func (m *Message) StateAt(e epoch.Epoch) (Vector6, error) {
	seg, ok := m.segmentFor(e)
	if !ok {
		return Vector6{}, &NoCoveringSegmentError{
			Source: m.source,
			Epoch:  e,
			Start:  m.StartEpoch(),
			End:    m.EndEpoch(),
		}
	}
	return seg.StateAt(e)
}

// FlatSeries returns every sample of every segment as one table, with
// offsets measured from StartEpoch, the first segment's START_TIME.
func (m *Message) FlatSeries() []FlatRecord {
	total := 0
	for _, seg := range m.segments {
		total += len(seg.samples)
	}

	out := make([]FlatRecord, 0, total)
	t0 := m.StartEpoch()
	for _, seg := range m.segments {
		for _, s := range seg.samples {
			out = append(out, FlatRecord{
				Offset: s.Epoch.Sub(t0),
				Epoch:  s.Epoch,
				State:  s.State,
			})
		}
	}
	return out
}
