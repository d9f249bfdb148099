// Package workspace materializes and tears down the per-job filesystem
// layout (code/, input/, output/) the Runtime Backend mounts into the
// guest container.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/lumicore/sandrun/pkg/protocol"
)

// Workspace is the materialized filesystem area for one job.
type Workspace struct {
	Root   string
	Code   string
	Input  string
	Output string
}

// Materialize creates the code/, input/, output/ subtrees under root,
// writes the guest's source to code/main.py, stages the guest support
// module alongside it, and (if provided) writes the input image bytes
// under input/. The guest must never see a host path: the Runtime Backend
// binds these subtrees by path, but the guest only ever sees /code,
// /input, /output.
func Materialize(root, sourceCode string, inputImage []byte, inputImageName string) (*Workspace, error) {
	ws := &Workspace{
		Root:   root,
		Code:   filepath.Join(root, "code"),
		Input:  filepath.Join(root, "input"),
		Output: filepath.Join(root, "output"),
	}

	for _, dir := range []string{ws.Code, ws.Input, ws.Output} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("workspace: create %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(filepath.Join(ws.Code, "main.py"), []byte(sourceCode), 0o644); err != nil {
		return nil, fmt.Errorf("workspace: write guest source: %w", err)
	}

	supportPath := filepath.Join(ws.Code, protocol.GuestSupportFilename)
	if err := os.WriteFile(supportPath, []byte(protocol.GuestSupportModule), 0o644); err != nil {
		return nil, fmt.Errorf("workspace: write guest support module: %w", err)
	}

	if len(inputImage) > 0 {
		name := inputImageName
		if name == "" {
			name = "input.bin"
		}
		if err := os.WriteFile(filepath.Join(ws.Input, name), inputImage, 0o644); err != nil {
			return nil, fmt.Errorf("workspace: write input image: %w", err)
		}
	}

	return ws, nil
}

// Cleanup removes the entire workspace tree. Callers that want to serve
// harvested artifacts via GET /outputs/{job_id}/{relpath} should retain the
// output/ subtree for the retention window instead of calling Cleanup
// immediately (see internal/workspace/harvest.go); use CleanupCode instead.
func (w *Workspace) Cleanup() error {
	if w.Root == "" {
		return nil
	}
	return os.RemoveAll(w.Root)
}

// CleanupCode removes the code/ and input/ subtrees once a run has
// completed, keeping output/ on disk so it can still be served by
// GET /outputs/{job_id}/{relpath} until a retention sweep reclaims it.
func (w *Workspace) CleanupCode() error {
	for _, dir := range []string{w.Code, w.Input} {
		if dir == "" {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("workspace: cleanup %s: %w", dir, err)
		}
	}
	return nil
}
