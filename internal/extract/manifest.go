package extract

import (
	"encoding/json"
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// ManifestName is the index written next to the cutouts.
const ManifestName = "manifest.json"

// ImageInfo is a source image of the cutouts.
type ImageInfo struct {
	ID       int64  `json:"id"`
	FileName string `json:"file_name"`
}

// Cutout is one extracted object.
type Cutout struct {
	ID      int64      `json:"id"`
	ImageID int64      `json:"image_id"`
	Label   string     `json:"label"`
	Box     [4]float64 `json:"bbox"`
	Path    string     `json:"path"`
}

// Manifest indexes every cutout of an extraction run.
type Manifest struct {
	Images  []ImageInfo    `json:"images"`
	Cutouts []*Cutout      `json:"cutouts"`
	Counts  map[string]int `json:"counts"`
}

// LoadManifest reads a manifest written by Save.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest %s", path)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.Wrapf(err, "decoding manifest %s", path)
	}
	return &m, nil
}

// Save writes the manifest as indented JSON.
func (m *Manifest) Save(path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	return errors.Wrapf(os.WriteFile(path, append(data, '\n'), 0o644), "writing manifest %s", path)
}

// FileNames maps image ids to their file names.
func (m *Manifest) FileNames() map[int64]string {
	ret := make(map[int64]string, len(m.Images))
	for _, img := range m.Images {
		ret[img.ID] = img.FileName
	}
	return ret
}

func (m *Manifest) finish() {
	sort.Slice(m.Images, func(i, j int) bool { return m.Images[i].ID < m.Images[j].ID })
	sort.Slice(m.Cutouts, func(i, j int) bool { return m.Cutouts[i].ID < m.Cutouts[j].ID })
	m.Counts = lo.CountValuesBy(m.Cutouts, func(c *Cutout) string { return c.Label })
}
