package oem

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/litescript/ls-ephem/internal/epoch"
	"github.com/litescript/ls-ephem/internal/logging"
)

// Block delimiters and header keywords.
const (
	kwVersion      = "CCSDS_OEM_VERS"
	kwMetaStart    = "META_START"
	kwMetaStop     = "META_STOP"
	kwCovStart     = "COVARIANCE_START"
	kwCovStop      = "COVARIANCE_STOP"
	kwComment      = "COMMENT"
	kwOriginator   = "ORIGINATOR"
	kwCreationDate = "CREATION_DATE"
	kwMessageID    = "MESSAGE_ID"
	kwEpoch        = "EPOCH"
	kwCovRefFrame  = "COV_REF_FRAME"
)

// Metadata keywords.
const (
	kwObjectName    = "OBJECT_NAME"
	kwObjectID      = "OBJECT_ID"
	kwCenterName    = "CENTER_NAME"
	kwRefFrame      = "REF_FRAME"
	kwRefFrameEpoch = "REF_FRAME_EPOCH"
	kwTimeSystem    = "TIME_SYSTEM"
	kwStartTime     = "START_TIME"
	kwUsableStart   = "USEABLE_START_TIME"
	kwUsableStop    = "USEABLE_STOP_TIME"
	kwStopTime      = "STOP_TIME"
	kwInterpolation = "INTERPOLATION"
	kwInterpDegree  = "INTERPOLATION_DEGREE"
)

// requiredMeta lists the metadata keywords every segment must carry, in the
// order they are reported when missing.
var requiredMeta = []string{
	kwObjectName, kwObjectID, kwCenterName, kwRefFrame, kwTimeSystem,
	kwStartTime, kwStopTime, kwInterpolation, kwInterpDegree,
}

var knownMeta = map[string]bool{
	kwObjectName: true, kwObjectID: true, kwCenterName: true, kwRefFrame: true,
	kwRefFrameEpoch: true, kwTimeSystem: true, kwStartTime: true,
	kwUsableStart: true, kwUsableStop: true, kwStopTime: true,
	kwInterpolation: true, kwInterpDegree: true,
}

// Supported values of CCSDS_OEM_VERS.
const (
	version1 = "1.0"
	version2 = "2.0"
)

// maxLineLength bounds a single input line.
const maxLineLength = 1 << 20

// parseState names the block the parser is currently inside.
type parseState int

const (
	stateHeader parseState = iota
	stateMeta
	stateData
	stateCovarianceMeta
	stateCovarianceData
)

func (s parseState) String() string {
	switch s {
	case stateHeader:
		return "header"
	case stateMeta:
		return "metadata"
	case stateData:
		return "data"
	case stateCovarianceMeta:
		return "covariance metadata"
	case stateCovarianceData:
		return "covariance data"
	default:
		return "unknown"
	}
}

// lineKind classifies a non-blank input line.
type lineKind int

const (
	lineMarker   lineKind = iota // Bare block delimiter such as META_START
	lineComment                  // COMMENT <text>
	lineKeyValue                 // KEY = VALUE
	lineValues                   // Whitespace-separated tokens
)

// line is one classified, non-blank input line.
type line struct {
	num    int
	text   string
	kind   lineKind
	key    string // Upper-cased keyword for markers and KEY = VALUE lines
	value  string // Comment text or VALUE
	fields []string
}

var markers = map[string]bool{
	kwMetaStart: true, kwMetaStop: true, kwCovStart: true, kwCovStop: true,
}

func classify(num int, text string) line {
	ln := line{num: num, text: text}

	n := len(kwComment)
	if len(text) >= n && strings.EqualFold(text[:n], kwComment) &&
		(len(text) == n || text[n] == ' ' || text[n] == '\t') {
		ln.kind = lineComment
		ln.key = kwComment
		ln.value = strings.TrimSpace(text[len(kwComment):])
		return ln
	}

	if key, value, ok := strings.Cut(text, "="); ok {
		ln.kind = lineKeyValue
		ln.key = strings.ToUpper(strings.TrimSpace(key))
		ln.value = strings.TrimSpace(value)
		return ln
	}

	if upper := strings.ToUpper(text); markers[upper] {
		ln.kind = lineMarker
		ln.key = upper
		return ln
	}

	ln.kind = lineValues
	ln.fields = strings.Fields(text)
	return ln
}

// segmentBuilder accumulates one segment while its blocks are being read.
type segmentBuilder struct {
	meta         SegmentMeta
	metaStopLine int
	samples      []Sample
	covariances  []CovarianceRecord
	dataComments []string
	width        int  // State values per data row: 0 until the first row, then 6 or 9
	covClosed    bool // A covariance block has been closed for this segment
}

// covarianceBuilder accumulates one covariance record.
type covarianceBuilder struct {
	fields    map[string]string
	keyLines  map[string]int
	comments  []string
	epoch     epoch.Epoch
	refFrame  string
	values    [covarianceSize]float64
	row       int
	firstLine int
}

func newCovarianceBuilder() *covarianceBuilder {
	return &covarianceBuilder{
		fields:   make(map[string]string),
		keyLines: make(map[string]int),
	}
}

// parser holds the state of a single Parse call. Nothing survives between calls.
type parser struct {
	source string
	opts   options
	log    *logging.Logger

	msg        *Message
	sawVersion bool

	metaFields    map[string]string
	metaKeyLines  map[string]int
	metaComments  []string
	metaStartLine int

	seg *segmentBuilder
	cov *covarianceBuilder
}

// Parse reads a complete OEM from r. source labels the stream in error
// messages. The result is either a fully validated Message or an error; the
// first problem found aborts the parse.
func Parse(r io.Reader, source string, opts ...Option) (*Message, error) {
	return parse(r, source, buildOptions(opts))
}

func parse(r io.Reader, source string, o options) (*Message, error) {
	p := &parser{
		source: source,
		opts:   o,
		log:    o.logger.Named("parser"),
		msg:    &Message{source: source},
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineLength)

	state := stateHeader
	num := 0
	for scanner.Scan() {
		num++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		next, err := p.step(state, classify(num, text))
		if err != nil {
			return nil, err
		}
		if next != state {
			p.log.Debug("%s:%d: %s -> %s", source, num, state, next)
		}
		state = next
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", source, err)
	}

	if err := p.finish(state, num); err != nil {
		return nil, err
	}

	p.log.Debug("%s: parsed %d segments", source, len(p.msg.segments))
	return p.msg, nil
}

// step dispatches one line to the transition function of the current state.
func (p *parser) step(state parseState, ln line) (parseState, error) {
	switch state {
	case stateHeader:
		return p.header(ln)
	case stateMeta:
		return p.metadata(ln)
	case stateData:
		return p.data(ln)
	case stateCovarianceMeta:
		return p.covarianceMeta(ln)
	case stateCovarianceData:
		return p.covarianceData(ln)
	default:
		return state, p.fail(ErrUnexpectedField, ln.num, "", "parser in unknown state %d", state)
	}
}

func (p *parser) fail(kind error, num int, keyword, format string, args ...interface{}) error {
	return &ParseError{
		Kind:    kind,
		Source:  p.source,
		Line:    num,
		Keyword: keyword,
		Detail:  fmt.Sprintf(format, args...),
	}
}

func (p *parser) header(ln line) (parseState, error) {
	if !p.sawVersion {
		if ln.kind == lineKeyValue && ln.key == kwVersion {
			if err := p.checkVersion(ln); err != nil {
				return stateHeader, err
			}
			p.sawVersion = true
			p.msg.version = ln.value
			return stateHeader, nil
		}
		if f := DetectFormat(ln.text); f != FormatUnknown && f != FormatOEM {
			return stateHeader, p.fail(ErrUnsupportedFormat, ln.num, ln.key,
				"%s messages are not supported by the OEM reader", f)
		}
		return stateHeader, p.fail(ErrUnexpectedField, ln.num, kwVersion,
			"expected %s = %s as the first line, found %q", kwVersion, version1, ln.text)
	}

	switch ln.kind {
	case lineComment:
		p.msg.comments = append(p.msg.comments, ln.value)
		return stateHeader, nil

	case lineMarker:
		if ln.key == kwMetaStart {
			p.beginMeta(ln.num)
			return stateMeta, nil
		}

	case lineKeyValue:
		switch ln.key {
		case kwOriginator:
			p.msg.originator = ln.value
			return stateHeader, nil
		case kwCreationDate:
			e, err := epoch.Parse(ln.value)
			if err != nil {
				return stateHeader, p.fail(ErrMalformedEpoch, ln.num, kwCreationDate, "%v", err)
			}
			p.msg.creationDate = OptionalEpoch{Epoch: e, Valid: true}
			return stateHeader, nil
		case kwMessageID:
			if p.msg.version == version2 {
				p.msg.messageID = ln.value
				return stateHeader, nil
			}
		}
	}

	return stateHeader, p.fail(ErrUnexpectedField, ln.num, ln.key,
		"expected header keyword or %s, found %q", kwMetaStart, ln.text)
}

func (p *parser) checkVersion(ln line) error {
	switch ln.value {
	case version1:
		return nil
	case version2:
		if p.opts.allowVersion2 {
			return nil
		}
		return p.fail(ErrUnsupportedVersion, ln.num, kwVersion,
			"version %s requires permissive mode", ln.value)
	default:
		return p.fail(ErrUnsupportedVersion, ln.num, kwVersion,
			"version %q is not supported (expected %s)", ln.value, version1)
	}
}

func (p *parser) beginMeta(num int) {
	p.metaFields = make(map[string]string)
	p.metaKeyLines = make(map[string]int)
	p.metaComments = nil
	p.metaStartLine = num
}

func (p *parser) metadata(ln line) (parseState, error) {
	switch ln.kind {
	case lineComment:
		p.metaComments = append(p.metaComments, ln.value)
		return stateMeta, nil

	case lineMarker:
		if ln.key != kwMetaStop {
			return stateMeta, p.fail(ErrNestedBlock, ln.num, ln.key,
				"%s inside metadata block opened at line %d", ln.key, p.metaStartLine)
		}
		meta, err := p.buildMeta(ln.num)
		if err != nil {
			return stateMeta, err
		}
		p.seg = &segmentBuilder{meta: meta, metaStopLine: ln.num}
		p.metaFields, p.metaKeyLines, p.metaComments = nil, nil, nil
		return stateData, nil

	case lineKeyValue:
		if !knownMeta[ln.key] {
			return stateMeta, p.fail(ErrUnexpectedField, ln.num, ln.key,
				"%s is not a metadata keyword", ln.key)
		}
		if prev, dup := p.metaKeyLines[ln.key]; dup {
			return stateMeta, p.fail(ErrUnexpectedField, ln.num, ln.key,
				"%s repeated (first set at line %d)", ln.key, prev)
		}
		p.metaFields[ln.key] = ln.value
		p.metaKeyLines[ln.key] = ln.num
		return stateMeta, nil
	}

	return stateMeta, p.fail(ErrUnexpectedField, ln.num, "",
		"expected KEY = VALUE or %s, found %q", kwMetaStop, ln.text)
}

// buildMeta turns the accumulated metadata map into a SegmentMeta, applying
// required-field and value checks.
func (p *parser) buildMeta(stopLine int) (SegmentMeta, error) {
	for _, key := range requiredMeta {
		if _, ok := p.metaFields[key]; !ok {
			return SegmentMeta{}, p.fail(ErrMissingMetaField, stopLine, key,
				"metadata block opened at line %d has no %s", p.metaStartLine, key)
		}
	}

	meta := SegmentMeta{
		ObjectName: p.metaFields[kwObjectName],
		ObjectID:   p.metaFields[kwObjectID],
		CenterName: p.metaFields[kwCenterName],
		RefFrame:   p.metaFields[kwRefFrame],
		TimeSystem: p.metaFields[kwTimeSystem],
		Comments:   p.metaComments,
	}

	var err error
	if meta.StartTime, err = p.metaEpoch(kwStartTime); err != nil {
		return SegmentMeta{}, err
	}
	if meta.StopTime, err = p.metaEpoch(kwStopTime); err != nil {
		return SegmentMeta{}, err
	}
	if meta.UsableStart, err = p.optionalMetaEpoch(kwUsableStart); err != nil {
		return SegmentMeta{}, err
	}
	if meta.UsableStop, err = p.optionalMetaEpoch(kwUsableStop); err != nil {
		return SegmentMeta{}, err
	}
	if meta.RefFrameEpoch, err = p.optionalMetaEpoch(kwRefFrameEpoch); err != nil {
		return SegmentMeta{}, err
	}

	method, ok := ParseInterpolation(p.metaFields[kwInterpolation])
	if !ok {
		return SegmentMeta{}, p.fail(ErrInvalidMetaValue, p.metaKeyLines[kwInterpolation], kwInterpolation,
			"expected LAGRANGE or HERMITE, found %q", p.metaFields[kwInterpolation])
	}
	meta.Interpolation = method

	degree, err := strconv.Atoi(p.metaFields[kwInterpDegree])
	if err != nil || degree < 1 {
		return SegmentMeta{}, p.fail(ErrInvalidMetaValue, p.metaKeyLines[kwInterpDegree], kwInterpDegree,
			"expected an integer >= 1, found %q", p.metaFields[kwInterpDegree])
	}
	meta.InterpolationDegree = degree

	if meta.StopTime.Before(meta.StartTime) {
		return SegmentMeta{}, p.fail(ErrInvalidMetaValue, p.metaKeyLines[kwStopTime], kwStopTime,
			"%s %s precedes %s %s", kwStopTime, meta.StopTime, kwStartTime, meta.StartTime)
	}
	for _, u := range []struct {
		key string
		opt OptionalEpoch
	}{{kwUsableStart, meta.UsableStart}, {kwUsableStop, meta.UsableStop}} {
		if u.opt.Valid && (u.opt.Epoch.Before(meta.StartTime) || u.opt.Epoch.After(meta.StopTime)) {
			return SegmentMeta{}, p.fail(ErrInvalidMetaValue, p.metaKeyLines[u.key], u.key,
				"%s %s outside [%s, %s]", u.key, u.opt.Epoch, meta.StartTime, meta.StopTime)
		}
	}
	if meta.UsableStart.Valid && meta.UsableStop.Valid && meta.UsableStop.Epoch.Before(meta.UsableStart.Epoch) {
		return SegmentMeta{}, p.fail(ErrInvalidMetaValue, p.metaKeyLines[kwUsableStop], kwUsableStop,
			"%s precedes %s", kwUsableStop, kwUsableStart)
	}

	return meta, nil
}

func (p *parser) metaEpoch(key string) (epoch.Epoch, error) {
	e, err := epoch.Parse(p.metaFields[key])
	if err != nil {
		return 0, p.fail(ErrMalformedEpoch, p.metaKeyLines[key], key, "%v", err)
	}
	return e, nil
}

func (p *parser) optionalMetaEpoch(key string) (OptionalEpoch, error) {
	if _, ok := p.metaFields[key]; !ok {
		return OptionalEpoch{}, nil
	}
	e, err := p.metaEpoch(key)
	if err != nil {
		return OptionalEpoch{}, err
	}
	return OptionalEpoch{Epoch: e, Valid: true}, nil
}

func (p *parser) data(ln line) (parseState, error) {
	if ln.kind == lineMarker {
		switch ln.key {
		case kwMetaStart:
			if err := p.closeSegment(); err != nil {
				return stateData, err
			}
			p.beginMeta(ln.num)
			return stateMeta, nil
		case kwCovStart:
			p.cov = newCovarianceBuilder()
			return stateCovarianceMeta, nil
		default:
			return stateData, p.fail(ErrUnexpectedField, ln.num, ln.key,
				"%s without a matching open block", ln.key)
		}
	}

	if p.seg.covClosed {
		return stateData, p.fail(ErrTrailingContent, ln.num, ln.key,
			"expected %s or end of input after covariance block, found %q", kwMetaStart, ln.text)
	}

	switch ln.kind {
	case lineComment:
		if len(p.seg.samples) > 0 {
			return stateData, p.fail(ErrMisplacedComment, ln.num, kwComment,
				"comments must precede the first data row")
		}
		p.seg.dataComments = append(p.seg.dataComments, ln.value)
		return stateData, nil
	case lineKeyValue:
		return stateData, p.fail(ErrUnexpectedField, ln.num, ln.key,
			"expected a data row, found %s", ln.key)
	}

	sample, err := p.dataRow(ln)
	if err != nil {
		return stateData, err
	}
	p.seg.samples = append(p.seg.samples, sample)
	return stateData, nil
}

// dataRow parses "<epoch> x y z vx vy vz [ax ay az]".
func (p *parser) dataRow(ln line) (Sample, error) {
	seg := p.seg
	n := len(ln.fields) - 1

	switch {
	case n < 6:
		return Sample{}, p.fail(ErrIncompleteDataRow, ln.num, "",
			"expected position and velocity (6 values) after the epoch, found %d", n)
	case seg.width == 0:
		if n != 6 && n != 9 {
			return Sample{}, p.fail(ErrIncompleteDataRow, ln.num, "",
				"expected 6 or 9 values after the epoch, found %d", n)
		}
		seg.width = n
	case seg.width == 9 && n == 6:
		p.log.Debug("%s:%d: accelerations dropped; remaining rows of %s read as 6 values",
			p.source, ln.num, seg.meta.ObjectName)
		seg.width = 6
	case n != seg.width:
		return Sample{}, p.fail(ErrIncompleteDataRow, ln.num, "",
			"expected %d values after the epoch, found %d", seg.width, n)
	}

	e, err := epoch.Parse(ln.fields[0])
	if err != nil {
		return Sample{}, p.fail(ErrMalformedEpoch, ln.num, "", "%v", err)
	}

	values, err := p.reals(ln, ln.fields[1:])
	if err != nil {
		return Sample{}, err
	}

	s := Sample{Epoch: e}
	copy(s.State[:], values[:6])
	if n == 9 {
		s.Accel = &[3]float64{values[6], values[7], values[8]}
	}

	if k := len(seg.samples); k > 0 && !e.After(seg.samples[k-1].Epoch) {
		return Sample{}, p.fail(ErrUnorderedSamples, ln.num, "",
			"epoch %s does not follow previous sample %s", e, seg.samples[k-1].Epoch)
	}
	if e.Before(seg.meta.StartTime) || e.After(seg.meta.StopTime) {
		return Sample{}, p.fail(ErrSampleOutsideSegment, ln.num, "",
			"epoch %s outside [%s, %s]", e, seg.meta.StartTime, seg.meta.StopTime)
	}
	return s, nil
}

func (p *parser) reals(ln line, tokens []string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, p.fail(ErrMalformedReal, ln.num, "",
				"value %d %q is not a finite real number", i+1, tok)
		}
		out[i] = v
	}
	return out, nil
}

// closeSegment validates the segment under construction and appends it.
func (p *parser) closeSegment() error {
	b := p.seg
	p.seg = nil
	if len(b.samples) == 0 {
		return p.fail(ErrEmptySegment, b.metaStopLine, kwMetaStop,
			"segment for %s has no data rows", b.meta.ObjectName)
	}

	if k := len(p.msg.segments); k > 0 {
		prev := p.msg.segments[k-1].meta
		if b.meta.StartTime.Before(prev.StopTime) {
			return p.fail(ErrOverlappingSegments, b.metaStopLine, kwStartTime,
				"segment %d starts at %s before segment %d stops at %s",
				k+1, b.meta.StartTime, k, prev.StopTime)
		}
	}

	seg := &Segment{
		meta:         b.meta,
		samples:      b.samples,
		covariances:  b.covariances,
		dataComments: b.dataComments,
		warn:         p.opts.warn,
	}
	p.msg.segments = append(p.msg.segments, seg)
	p.log.Debug("%s: segment %d %s: %d samples, %d covariances",
		p.source, len(p.msg.segments), b.meta.ObjectName, len(b.samples), len(b.covariances))
	return nil
}

func (p *parser) covarianceMeta(ln line) (parseState, error) {
	switch ln.kind {
	case lineMarker:
		if ln.key != kwCovStop {
			return stateCovarianceMeta, p.fail(ErrNestedBlock, ln.num, ln.key,
				"%s inside covariance block", ln.key)
		}
		if len(p.cov.fields) > 0 || len(p.cov.comments) > 0 {
			return stateCovarianceMeta, p.fail(ErrIncompleteDataRow, ln.num, kwCovStop,
				"covariance record opened at line %d has no matrix", p.cov.firstLine)
		}
		p.cov = nil
		p.seg.covClosed = true
		return stateData, nil

	case lineComment:
		p.noteCovLine(ln.num)
		p.cov.comments = append(p.cov.comments, ln.value)
		return stateCovarianceMeta, nil

	case lineKeyValue:
		p.noteCovLine(ln.num)
		p.cov.fields[ln.key] = ln.value
		p.cov.keyLines[ln.key] = ln.num
		return stateCovarianceMeta, nil
	}

	// The matrix starts here; the line is handled by the matrix state.
	for _, key := range []string{kwEpoch, kwCovRefFrame} {
		if _, ok := p.cov.fields[key]; !ok {
			return stateCovarianceMeta, p.fail(ErrMissingMetaField, ln.num, key,
				"covariance matrix starts without %s", key)
		}
	}
	e, err := epoch.Parse(p.cov.fields[kwEpoch])
	if err != nil {
		return stateCovarianceMeta, p.fail(ErrMalformedEpoch, p.cov.keyLines[kwEpoch], kwEpoch, "%v", err)
	}
	p.cov.epoch = e
	p.cov.refFrame = p.cov.fields[kwCovRefFrame]
	return p.covarianceData(ln)
}

func (p *parser) noteCovLine(num int) {
	if p.cov.firstLine == 0 {
		p.cov.firstLine = num
	}
}

func (p *parser) covarianceData(ln line) (parseState, error) {
	cov := p.cov
	switch ln.kind {
	case lineComment:
		return stateCovarianceData, p.fail(ErrMisplacedComment, ln.num, kwComment,
			"comment inside covariance matrix")
	case lineMarker:
		if ln.key == kwCovStop {
			return stateCovarianceData, p.fail(ErrIncompleteDataRow, ln.num, kwCovStop,
				"covariance matrix ended after %d of 6 rows", cov.row)
		}
		return stateCovarianceData, p.fail(ErrNestedBlock, ln.num, ln.key,
			"%s inside covariance matrix", ln.key)
	case lineKeyValue:
		return stateCovarianceData, p.fail(ErrIncompleteDataRow, ln.num, ln.key,
			"expected row %d of the covariance matrix, found %s", cov.row+1, ln.key)
	}

	want := cov.row + 1
	if len(ln.fields) != want {
		return stateCovarianceData, p.fail(ErrIncompleteDataRow, ln.num, "",
			"covariance row %d needs %d values, found %d", want, want, len(ln.fields))
	}
	values, err := p.reals(ln, ln.fields)
	if err != nil {
		return stateCovarianceData, err
	}
	offset := cov.row * (cov.row + 1) / 2
	copy(cov.values[offset:], values)
	cov.row++

	if cov.row < 6 {
		return stateCovarianceData, nil
	}

	p.seg.covariances = append(p.seg.covariances, CovarianceRecord{
		Epoch:    cov.epoch,
		RefFrame: cov.refFrame,
		Values:   cov.values,
		Comment:  strings.Join(cov.comments, "\n"),
	})
	p.cov = newCovarianceBuilder()
	return stateCovarianceMeta, nil
}

// finish applies end-of-input rules for the state the parser stopped in.
func (p *parser) finish(state parseState, lastLine int) error {
	eof := lastLine + 1
	switch state {
	case stateHeader:
		if !p.sawVersion {
			return p.fail(ErrUnexpectedEOF, 0, kwVersion, "input is empty, expected %s", kwVersion)
		}
		return p.fail(ErrUnexpectedEOF, eof, kwMetaStart, "no %s found after header", kwMetaStart)
	case stateMeta:
		return p.fail(ErrUnexpectedEOF, eof, kwMetaStop,
			"metadata block opened at line %d has no %s", p.metaStartLine, kwMetaStop)
	case stateCovarianceMeta, stateCovarianceData:
		return p.fail(ErrUnexpectedEOF, eof, kwCovStop, "covariance block has no %s", kwCovStop)
	case stateData:
		return p.closeSegment()
	}
	return nil
}
