package models

import (
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/raster"
)

func segDocument(t *testing.T, db *gorm.DB) *Document {
	t.Helper()
	dir := t.TempDir()
	img := image.NewNRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
		}
	}
	path := filepath.Join(dir, "sheet.png")
	require.NoError(t, raster.WriteAtomic(path, img))

	doc := Document{Title: "Sheet", FilePath: path, Status: "unprepared"}
	require.NoError(t, db.Create(&doc).Error)
	return &doc
}

func TestSaveSegmentationFromCutlines(t *testing.T) {
	db := testDB(t)
	doc := segDocument(t, db)

	cutlines := []orb.LineString{{{100, 0}, {100, 100}}}
	seg, err := SaveSegmentationFromCutlines(db, doc, cutlines)
	require.NoError(t, err)
	assert.True(t, seg.SplitNeeded)

	gotCut, err := seg.CutlineGeometry()
	require.NoError(t, err)
	require.Len(t, gotCut, 1)
	assert.Equal(t, cutlines[0], gotCut[0])

	divisions, err := seg.DivisionGeometry()
	require.NoError(t, err)
	assert.Len(t, divisions, 2)

	// saving again for the same document replaces, never duplicates
	_, err = SaveSegmentationFromCutlines(db, doc, cutlines)
	require.NoError(t, err)
	var count int64
	require.NoError(t, db.Model(&Segmentation{}).Where("document_id = ?", doc.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestSaveSegmentationWithoutSplit(t *testing.T) {
	db := testDB(t)
	doc := segDocument(t, db)

	// a previous cutline set is cleared when the user opts out of splitting
	_, err := SaveSegmentationFromCutlines(db, doc, []orb.LineString{{{100, 0}, {100, 100}}})
	require.NoError(t, err)

	seg, err := SaveSegmentationWithoutSplit(db, doc)
	require.NoError(t, err)
	assert.False(t, seg.SplitNeeded)

	gotCut, err := seg.CutlineGeometry()
	require.NoError(t, err)
	assert.Empty(t, gotCut)
	divisions, err := seg.DivisionGeometry()
	require.NoError(t, err)
	assert.Empty(t, divisions)
}

func TestSaveSegmentationRejectsBadCutline(t *testing.T) {
	db := testDB(t)
	doc := segDocument(t, db)

	_, err := SaveSegmentationFromCutlines(db, doc, []orb.LineString{{{-5, 0}, {100, 100}}})
	assert.Error(t, err)
}
