package protocol

import (
	"encoding/json"
	"io"
	"strings"
	"testing"
)

func TestParseLine_LogInfo(t *testing.T) {
	m, ok := ParseLine("log_info processing tile 3,4")
	if !ok {
		t.Fatal("ParseLine: expected ok=true for a log_info marker")
	}
	if m.Kind != MarkerLogInfo || m.Text != "processing tile 3,4" || m.Async {
		t.Errorf("ParseLine: got %+v", m)
	}
}

func TestParseLine_ReportProgress(t *testing.T) {
	m, ok := ParseLine("report_progress 42.50")
	if !ok {
		t.Fatal("ParseLine: expected ok=true for a report_progress marker")
	}
	if m.Kind != MarkerReportProgress || m.Progress != 42.5 {
		t.Errorf("ParseLine: got %+v", m)
	}
}

func TestParseLine_ReportProgress_BadNumberIsNotAMarker(t *testing.T) {
	if _, ok := ParseLine("report_progress not-a-number"); ok {
		t.Error("ParseLine: expected ok=false for an unparseable progress value")
	}
}

func TestParseLine_OperationMarkerWantsConfirmation(t *testing.T) {
	m, ok := ParseLine(`create_tile_set {"request_guid":"abc-123","name":"plate1"}`)
	if !ok {
		t.Fatal("ParseLine: expected ok=true for a create_tile_set marker")
	}
	if m.Kind != MarkerCreateTileSet {
		t.Fatalf("ParseLine: got kind %q", m.Kind)
	}
	if m.Async {
		t.Error("ParseLine: expected Async=false without the _async suffix")
	}
	if !m.WantsConfirm {
		t.Error("ParseLine: expected WantsConfirm=true for a synchronous operation marker")
	}
	if m.RequestID != "abc-123" {
		t.Errorf("ParseLine: got RequestID %q, want %q", m.RequestID, "abc-123")
	}
}

func TestParseLine_AsyncOperationMarkerNeverWantsConfirmation(t *testing.T) {
	m, ok := ParseLine(`store_file_async {"request_guid":"abc-123","path":"out.tif"}`)
	if !ok {
		t.Fatal("ParseLine: expected ok=true for an async store_file marker")
	}
	if !m.Async {
		t.Error("ParseLine: expected Async=true for a _async-suffixed marker")
	}
	if m.WantsConfirm {
		t.Error("ParseLine: async markers never request confirmation")
	}
	if m.RequestID != "" {
		t.Errorf("ParseLine: expected no RequestID on an async marker, got %q", m.RequestID)
	}
}

func TestParseLine_UnrecognizedTokenIsOrdinaryOutput(t *testing.T) {
	if _, ok := ParseLine("just some stdout text"); ok {
		t.Error("ParseLine: expected ok=false for a non-marker line")
	}
}

func TestScanner_SkipsOrdinaryLinesAndYieldsMarkersInOrder(t *testing.T) {
	stream := strings.Join([]string{
		"starting up",
		"log_info step one",
		"some debug noise",
		"report_progress 10.0",
		"log_error boom",
	}, "\n")

	sc := NewScanner(strings.NewReader(stream))

	var kinds []MarkerKind
	for {
		m, err := sc.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		kinds = append(kinds, m.Kind)
	}

	want := []MarkerKind{MarkerLogInfo, MarkerReportProgress, MarkerLogError}
	if len(kinds) != len(want) {
		t.Fatalf("got %v markers, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("marker %d: got %q, want %q", i, kinds[i], want[i])
		}
	}
}

func TestMarshalConfirmation(t *testing.T) {
	result := &ConfirmationResult{RequestID: "abc-123", IsSuccess: true, Data: map[string]string{"id": "xyz"}}

	raw, err := MarshalConfirmation(result)
	if err != nil {
		t.Fatalf("MarshalConfirmation: %v", err)
	}

	var decoded ConfirmationResult
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.RequestID != result.RequestID || !decoded.IsSuccess {
		t.Errorf("round trip mismatch: got %+v", decoded)
	}
}
