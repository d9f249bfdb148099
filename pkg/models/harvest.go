package models

// HarvestedFile describes one file recovered from a job's output directory.
type HarvestedFile struct {
	Name string         `json:"name"`
	URL  string         `json:"url"`
	Type OutputFileType `json:"type"`
	Size int64          `json:"size"`
}
