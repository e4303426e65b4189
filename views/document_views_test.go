package views

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"

	"github.com/mradamcox/ohmg/config"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/raster"
)

func setupViews(t *testing.T) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "test.db")), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		NamingStrategy: schema.NamingStrategy{SingularTable: true},
	})
	require.NoError(t, err)
	require.NoError(t, models.MigrateAllTables(db))

	prevDB, prevDocs := models.DB, config.Documents
	models.DB = db
	config.Documents = t.TempDir()
	t.Cleanup(func() {
		models.DB = prevDB
		config.Documents = prevDocs
	})
}

func writeTestRaster(t *testing.T, path string, tint uint8) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.NRGBA{R: tint, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	require.NoError(t, raster.WriteAtomic(path, img))
}

func postCreateDocument(t *testing.T, title, filePath string) models.Document {
	t.Helper()
	ctl := &DocumentController{}
	body, err := json.Marshal(map[string]string{"title": title, "file_path": filePath})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/map/documents", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	ctl.CreateDocument(c)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Document models.Document `json:"document"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Document
}

func TestCreateDocumentSameBasenameKeepsBothRasters(t *testing.T) {
	setupViews(t)

	dirA, dirB := t.TempDir(), t.TempDir()
	srcA := filepath.Join(dirA, "sheet.png")
	srcB := filepath.Join(dirB, "sheet.png")
	writeTestRaster(t, srcA, 10)
	writeTestRaster(t, srcB, 200)

	docA := postCreateDocument(t, "Sheet A", srcA)
	docB := postCreateDocument(t, "Sheet B", srcB)

	assert.NotEqual(t, docA.FilePath, docB.FilePath)
	assert.Equal(t, fmt.Sprintf("%d_sheet.png", docA.ID), filepath.Base(docA.FilePath))
	assert.Equal(t, fmt.Sprintf("%d_sheet.png", docB.ID), filepath.Base(docB.FilePath))

	// the first copy must not have been clobbered by the second
	imgA, err := raster.Open(docA.FilePath)
	require.NoError(t, err)
	rA, _, _, _ := imgA.At(0, 0).RGBA()
	assert.Equal(t, uint32(10*257), rA)

	imgB, err := raster.Open(docB.FilePath)
	require.NoError(t, err)
	rB, _, _, _ := imgB.At(0, 0).RGBA()
	assert.Equal(t, uint32(200*257), rB)
}

func TestCreateDocumentRejectsUnreadableRaster(t *testing.T) {
	setupViews(t)

	missing := filepath.Join(t.TempDir(), "nope.png")
	ctl := &DocumentController{}
	body, err := json.Marshal(map[string]string{"title": "Nope", "file_path": missing})
	require.NoError(t, err)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/map/documents", bytes.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	ctl.CreateDocument(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var count int64
	require.NoError(t, models.DB.Model(&models.Document{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)

	entries, err := os.ReadDir(config.Documents)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
