package protocol

import (
	"strings"
	"testing"

	"github.com/lumicore/sandrun/pkg/models"
)

func TestBuildRequest_GenericWhenNoPayload(t *testing.T) {
	req := BuildRequest(BuildOptions{RequestGUID: "job-1", ScriptName: "main.py"})

	if req.RequestType != models.RequestTypeGeneric {
		t.Errorf("got request_type %q, want %q", req.RequestType, models.RequestTypeGeneric)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildRequest_ImageLayerFromPreparedImages(t *testing.T) {
	req := BuildRequest(BuildOptions{
		RequestGUID:    "job-1",
		ScriptName:     "main.py",
		PreparedImages: map[string]string{"default": "input.bin"},
	})

	if req.RequestType != models.RequestTypeImageLayer {
		t.Errorf("got request_type %q, want %q", req.RequestType, models.RequestTypeImageLayer)
	}
	if req.PreparedImages["default"] != "input.bin" {
		t.Errorf("got prepared_images %v", req.PreparedImages)
	}
	if err := req.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestBuildRequest_TileSet(t *testing.T) {
	ts := &TileSet{GUID: "ts-1", Name: "plate1"}
	req := BuildRequest(BuildOptions{
		RequestGUID: "job-1",
		ScriptName:  "main.py",
		TileSet:     ts,
		TilesToProcess: []TileCoord{{Column: 0, Row: 0}},
	})

	if req.RequestType != models.RequestTypeTileSet {
		t.Errorf("got request_type %q, want %q", req.RequestType, models.RequestTypeTileSet)
	}
	if req.SourceTileSet != ts {
		t.Error("expected SourceTileSet to be the provided TileSet")
	}
	if len(req.TilesToProcess) != 1 {
		t.Errorf("got %d tiles, want 1", len(req.TilesToProcess))
	}
}

func TestRunRequest_Validate_RejectsUnknownType(t *testing.T) {
	req := &RunRequest{RequestType: models.RequestType("bogus")}
	if err := req.Validate(); err == nil {
		t.Error("Validate: expected an error for an unrecognized request_type")
	}
}

func TestRunRequest_Validate_TileSetRequiresPayload(t *testing.T) {
	req := &RunRequest{RequestType: models.RequestTypeTileSet}
	if err := req.Validate(); err == nil {
		t.Error("Validate: expected an error for a tile_set request with no source_tile_set")
	}
}

func TestRunRequest_Validate_ImageLayerRequiresPayload(t *testing.T) {
	req := &RunRequest{RequestType: models.RequestTypeImageLayer}
	if err := req.Validate(); err == nil {
		t.Error("Validate: expected an error for an image_layer request with no source_image_layer")
	}
}

func TestRunRequest_Validate_RejectsOversizedScriptParameters(t *testing.T) {
	req := &RunRequest{
		RequestType:      models.RequestTypeGeneric,
		ScriptParameters: strings.Repeat("x", MaxScriptParametersSize+1),
	}
	if err := req.Validate(); err == nil {
		t.Error("Validate: expected an error for script_parameters over the size cap")
	}
}

func TestRunRequest_MarshalRoundTrip(t *testing.T) {
	req := BuildRequest(BuildOptions{RequestGUID: "job-1", ScriptName: "main.py", ScriptParameters: "--flag"})

	raw, err := req.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"request_guid":"job-1"`) {
		t.Errorf("Marshal: got %s", raw)
	}
}
