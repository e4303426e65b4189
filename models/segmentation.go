package models

import (
	"encoding/json"
	"fmt"

	"github.com/paulmach/orb"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/splitter"
)

// Segmentation stores the current cutline pattern for a document, plus the
// division polygons computed from it. Divisions are recomputed whenever the
// cutlines change, never edited directly.
type Segmentation struct {
	ID          uint `gorm:"primaryKey;autoIncrement"`
	DocumentID  uint `gorm:"uniqueIndex"`
	SplitNeeded bool
	Cutlines    datatypes.JSON
	Divisions   datatypes.JSON
}

func (s *Segmentation) CutlineGeometry() ([]orb.LineString, error) {
	if len(s.Cutlines) == 0 {
		return nil, nil
	}
	var lines []orb.LineString
	if err := json.Unmarshal(s.Cutlines, &lines); err != nil {
		return nil, fmt.Errorf("decode cutlines: %w", err)
	}
	return lines, nil
}

func (s *Segmentation) DivisionGeometry() ([]orb.Ring, error) {
	if len(s.Divisions) == 0 {
		return nil, nil
	}
	var rings []orb.Ring
	if err := json.Unmarshal(s.Divisions, &rings); err != nil {
		return nil, fmt.Errorf("decode divisions: %w", err)
	}
	return rings, nil
}

// SaveSegmentationFromCutlines recomputes the document's divisions from the
// cutlines and stores both. This is the only write path when a split is
// pending.
func SaveSegmentationFromCutlines(db *gorm.DB, doc *Document, cutlines []orb.LineString) (*Segmentation, error) {
	sp := splitter.New(doc.FilePath, "")
	bounds, err := sp.Bounds()
	if err != nil {
		return nil, err
	}
	divisions, err := splitter.GenerateDivisions(cutlines, bounds)
	if err != nil {
		return nil, err
	}

	cutJSON, err := json.Marshal(cutlines)
	if err != nil {
		return nil, err
	}
	divJSON, err := json.Marshal(divisions)
	if err != nil {
		return nil, err
	}

	var seg Segmentation
	if err := db.Where(Segmentation{DocumentID: doc.ID}).FirstOrCreate(&seg).Error; err != nil {
		return nil, err
	}
	seg.SplitNeeded = true
	seg.Cutlines = datatypes.JSON(cutJSON)
	seg.Divisions = datatypes.JSON(divJSON)
	if err := db.Save(&seg).Error; err != nil {
		return nil, err
	}
	return &seg, nil
}

// SaveSegmentationWithoutSplit records that the document needs no split.
func SaveSegmentationWithoutSplit(db *gorm.DB, doc *Document) (*Segmentation, error) {
	var seg Segmentation
	if err := db.Where(Segmentation{DocumentID: doc.ID}).FirstOrCreate(&seg).Error; err != nil {
		return nil, err
	}
	seg.SplitNeeded = false
	seg.Cutlines = nil
	seg.Divisions = nil
	if err := db.Save(&seg).Error; err != nil {
		return nil, err
	}
	return &seg, nil
}
