package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// MarkerKind identifies a recognized sentinel-prefixed line on guest stdout.
type MarkerKind string

const (
	MarkerLogInfo                MarkerKind = "log_info"
	MarkerLogWarning             MarkerKind = "log_warning"
	MarkerLogError               MarkerKind = "log_error"
	MarkerReportProgress         MarkerKind = "report_progress"
	MarkerReportFailure          MarkerKind = "report_failure"
	MarkerCreateTileSet          MarkerKind = "create_tile_set"
	MarkerCreateChannel          MarkerKind = "create_channel"
	MarkerSendSingleTileOutput   MarkerKind = "send_single_tile_output"
	MarkerCreateImageLayer       MarkerKind = "create_image_layer"
	MarkerCreateAnnotation       MarkerKind = "create_annotation"
	MarkerStoreFile              MarkerKind = "store_file"
	MarkerAppendNotes            MarkerKind = "append_notes"
	MarkerGetOrCreateOutputTiles MarkerKind = "get_or_create_output_tile_set"
)

// asyncSuffix marks a marker as fire-and-forget: the engine never writes a
// confirmation reply for it. Every other marker is confirmation-capable on
// request.
const asyncSuffix = "_async"

// operationMarkers are the structured-argument markers that may request a
// synchronous confirmation (as opposed to the plain log/progress/failure
// markers, which never do).
var operationMarkers = map[MarkerKind]bool{
	MarkerCreateTileSet:          true,
	MarkerCreateChannel:          true,
	MarkerSendSingleTileOutput:   true,
	MarkerCreateImageLayer:       true,
	MarkerCreateAnnotation:       true,
	MarkerStoreFile:              true,
	MarkerAppendNotes:            true,
	MarkerGetOrCreateOutputTiles: true,
}

// Marker is one parsed line from the guest's stdout back-channel.
type Marker struct {
	Kind         MarkerKind
	Async        bool
	Progress     float64       // valid when Kind == MarkerReportProgress
	Text         string        // free text for log_*/report_failure markers
	Args         json.RawMessage // structured arguments for operation markers
	RequestID    string          // correlates with a ConfirmationResult
	WantsConfirm bool
}

// ConfirmationResult is the engine's synchronous reply to a confirmation-
// capable marker, written back on the guest's stdin channel.
type ConfirmationResult struct {
	RequestID    string `json:"request_id"`
	IsSuccess    bool   `json:"is_success"`
	ErrorMessage string `json:"error_message,omitempty"`
	Data         any    `json:"data,omitempty"`
}

// MarshalConfirmation serializes a ConfirmationResult for writing back on
// the guest's stdin channel.
func MarshalConfirmation(result *ConfirmationResult) ([]byte, error) {
	return json.Marshal(result)
}

// ParseLine parses one line of guest stdout into a Marker. A line that does
// not begin with a recognized sentinel token returns ok == false: it is
// ordinary program output, not a protocol marker.
func ParseLine(line string) (Marker, bool) {
	fields := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 2)
	token := fields[0]

	kind := MarkerKind(strings.TrimSuffix(token, asyncSuffix))
	if !recognizedKind(kind) {
		return Marker{}, false
	}

	rest := ""
	if len(fields) > 1 {
		rest = fields[1]
	}

	m := Marker{
		Kind:  kind,
		Async: strings.HasSuffix(token, asyncSuffix),
	}

	switch kind {
	case MarkerLogInfo, MarkerLogWarning, MarkerLogError, MarkerReportFailure:
		m.Text = rest
	case MarkerReportProgress:
		pct, err := strconv.ParseFloat(strings.TrimSpace(rest), 64)
		if err != nil {
			return Marker{}, false
		}
		m.Progress = pct
	default:
		if operationMarkers[kind] {
			m.Args = json.RawMessage(rest)
			m.WantsConfirm = !m.Async
			if m.WantsConfirm {
				m.RequestID = extractRequestID(m.Args)
			}
		}
	}

	return m, true
}

func recognizedKind(kind MarkerKind) bool {
	switch kind {
	case MarkerLogInfo, MarkerLogWarning, MarkerLogError, MarkerReportProgress, MarkerReportFailure:
		return true
	default:
		return operationMarkers[kind]
	}
}

// extractRequestID pulls a "request_guid" field out of a marker's raw JSON
// arguments, if present, so confirmations can be correlated without a full
// unmarshal into a typed struct.
func extractRequestID(args json.RawMessage) string {
	var probe struct {
		RequestGUID string `json:"request_guid"`
	}
	if err := json.Unmarshal(args, &probe); err != nil {
		return ""
	}
	return probe.RequestGUID
}

// Scanner reads guest stdout line by line and yields recognized markers in
// stream order.
type Scanner struct {
	sc *bufio.Scanner
}

// NewScanner wraps an io.Reader (typically the demultiplexed stdout stream
// from the Runtime Backend) as a marker Scanner.
func NewScanner(r io.Reader) *Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Scanner{sc: sc}
}

// Next returns the next marker found in the stream, skipping ordinary
// non-marker lines. It returns io.EOF when the stream is exhausted.
func (s *Scanner) Next() (Marker, error) {
	for s.sc.Scan() {
		if m, ok := ParseLine(s.sc.Text()); ok {
			return m, nil
		}
	}
	if err := s.sc.Err(); err != nil {
		return Marker{}, fmt.Errorf("protocol: scan guest stdout: %w", err)
	}
	return Marker{}, io.EOF
}
