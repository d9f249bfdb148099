// Package protocol implements the Sandbox Protocol: the wire contract
// delivered to a guest program on stdin, and the back-channel markers the
// guest emits on stdout.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/lumicore/sandrun/pkg/models"
)

// MaxScriptParametersSize mirrors models.MaxScriptParametersSize; kept local
// so callers that only import protocol still get the cap enforced.
const MaxScriptParametersSize = models.MaxScriptParametersSize

// RunRequest is the single JSON document delivered on the guest's stdin.
type RunRequest struct {
	RequestType      models.RequestType `json:"request_type"`
	RequestGUID      string             `json:"request_guid"`
	ScriptName       string             `json:"script_name"`
	ScriptParameters string             `json:"script_parameters"`

	SourceTileSet   *TileSet   `json:"source_tile_set,omitempty"`
	TilesToProcess  []TileCoord `json:"tiles_to_process,omitempty"`

	SourceImageLayer *ImageLayer       `json:"source_image_layer,omitempty"`
	PreparedImages   map[string]string `json:"prepared_images,omitempty"`
}

// TileCoord addresses a single tile within a TileSet.
type TileCoord struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// TileSet describes a grid of acquired tiles.
type TileSet struct {
	GUID               string             `json:"guid"`
	Name               string             `json:"name"`
	DataFolderPath     string             `json:"data_folder_path"`
	ColumnCount        int                `json:"column_count"`
	RowCount           int                `json:"row_count"`
	ChannelCount       int                `json:"channel_count"`
	TileSize           [2]int             `json:"tile_size"`
	TileResolution     float64            `json:"tile_resolution"`
	PixelFormat        string             `json:"pixel_format"`
	StagePosition      [2]float64         `json:"stage_position"`
	Rotation           float64            `json:"rotation"`
	PixelToStageMatrix [6]float64         `json:"pixel_to_stage_matrix"`
	Overlaps           [2]float64         `json:"overlaps"`
	Channels           []Channel          `json:"channels"`
	Tiles              []Tile             `json:"tiles"`
}

// Channel describes one acquisition channel of a TileSet.
type Channel struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// Tile is a single acquired tile within a TileSet.
type Tile struct {
	Column                int               `json:"column"`
	Row                   int               `json:"row"`
	StagePosition         [2]float64        `json:"stage_position"`
	TileCenterPixelOffset [2]float64        `json:"tile_center_pixel_offset"`
	ImageFileNames        map[string]string `json:"image_file_names"` // keyed by string channel index
}

// ImageLayer describes a single flattened/stitched image.
type ImageLayer struct {
	GUID                 string      `json:"guid"`
	Name                 string      `json:"name"`
	StagePosition        [2]float64  `json:"stage_position"`
	Rotation             float64     `json:"rotation"`
	DataFolderPath       string      `json:"data_folder_path"`
	Size                 [2]int      `json:"size"`
	TotalLayerResolution float64     `json:"total_layer_resolution"`
	PixelToStageMatrix   [6]float64  `json:"pixel_to_stage_matrix"`
	OriginalTileSet      *TileSet    `json:"original_tile_set,omitempty"`
}

// Validate enforces string channel keys, a recognized request_type, and a
// bounded script_parameters string.
func (r *RunRequest) Validate() error {
	if !r.RequestType.Valid() {
		return fmt.Errorf("protocol: invalid request_type %q", r.RequestType)
	}
	if len(r.ScriptParameters) > MaxScriptParametersSize {
		return fmt.Errorf("protocol: script_parameters exceeds %d bytes", MaxScriptParametersSize)
	}
	switch r.RequestType {
	case models.RequestTypeTileSet:
		if r.SourceTileSet == nil {
			return fmt.Errorf("protocol: tile_set request missing source_tile_set")
		}
	case models.RequestTypeImageLayer:
		if r.SourceImageLayer == nil && len(r.PreparedImages) == 0 {
			return fmt.Errorf("protocol: image_layer request missing source_image_layer and prepared_images")
		}
	}
	return nil
}

// Marshal serializes the RunRequest to the exact wire form delivered on the
// guest's stdin.
func (r *RunRequest) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

// BuildOptions carries everything the Job Manager knows when assembling a
// RunRequest for one job.
type BuildOptions struct {
	RequestGUID      string
	ScriptName       string
	ScriptParameters string
	TileSet          *TileSet
	TilesToProcess   []TileCoord
	ImageLayer       *ImageLayer
	PreparedImages   map[string]string
}

// BuildRequest infers request_type from context: image-layer when a single
// prepared image is provided, tile-set otherwise, generic when neither is
// present.
func BuildRequest(opts BuildOptions) *RunRequest {
	req := &RunRequest{
		RequestGUID:      opts.RequestGUID,
		ScriptName:       opts.ScriptName,
		ScriptParameters: opts.ScriptParameters,
	}

	switch {
	case opts.ImageLayer != nil || len(opts.PreparedImages) > 0:
		req.RequestType = models.RequestTypeImageLayer
		req.SourceImageLayer = opts.ImageLayer
		req.PreparedImages = opts.PreparedImages
		if req.PreparedImages == nil {
			req.PreparedImages = map[string]string{}
		}
	case opts.TileSet != nil:
		req.RequestType = models.RequestTypeTileSet
		req.SourceTileSet = opts.TileSet
		req.TilesToProcess = opts.TilesToProcess
		if req.TilesToProcess == nil {
			req.TilesToProcess = []TileCoord{}
		}
	default:
		req.RequestType = models.RequestTypeGeneric
	}

	return req
}
