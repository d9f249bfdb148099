package workspace

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/lumicore/sandrun/pkg/models"
)

// Harvest enumerates the output/ subtree and classifies each file by
// extension. urlPrefix is prepended to each file's relative path to build
// its served URL (e.g. "/outputs/<job_id>").
func (w *Workspace) Harvest(urlPrefix string) ([]models.HarvestedFile, error) {
	var files []models.HarvestedFile

	err := filepath.WalkDir(w.Output, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(w.Output, path)
		if relErr != nil {
			return relErr
		}
		info, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		files = append(files, models.HarvestedFile{
			Name: rel,
			URL:  fmt.Sprintf("%s/%s", strings.TrimRight(urlPrefix, "/"), rel),
			Type: models.ClassifyExtension(strings.ToLower(filepath.Ext(rel))),
			Size: info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("workspace: harvest output: %w", err)
	}

	if files == nil {
		files = []models.HarvestedFile{}
	}
	return files, nil
}
