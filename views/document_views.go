package views

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mradamcox/ohmg/config"
	"github.com/mradamcox/ohmg/gateway"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/raster"
	"github.com/mradamcox/ohmg/vocab"
)

type DocumentController struct {
}

type createDocumentRequest struct {
	Title    string `json:"title" binding:"required"`
	FilePath string `json:"file_path" binding:"required"`
}

// CreateDocument registers a source raster. The file is copied under the
// configured documents directory so later sessions own their inputs. The
// copy is prefixed with the document id; two uploads sharing a basename
// would otherwise land on the same path, and every derived stem (vrt, warp
// output, split children) flows from it.
func (ctl *DocumentController) CreateDocument(c *gin.Context) {
	var req createDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, _, err := raster.Size(req.FilePath); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable raster: " + err.Error()})
		return
	}

	doc := models.Document{Title: req.Title, FilePath: req.FilePath, Status: vocab.Unprepared}
	if err := models.DB.Create(&doc).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	dest := filepath.Join(config.Documents, fmt.Sprintf("%d_%s", doc.ID, filepath.Base(req.FilePath)))
	if err := gateway.CopyFile(req.FilePath, dest); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	doc.FilePath = dest
	if err := models.DB.Model(&doc).Update("file_path", dest).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"document": doc})
}

func (ctl *DocumentController) GetDocument(c *gin.Context) {
	n, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad document id"})
		return
	}
	var doc models.Document
	if err := models.DB.First(&doc, uint(n)).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	var links []models.DocumentLink
	models.DB.Where("document_id = ?", doc.ID).Find(&links)
	var seg models.Segmentation
	hasSeg := models.DB.Where("document_id = ?", doc.ID).First(&seg).Error == nil
	var group models.GCPGroup
	hasGCPs := models.DB.Where("document_id = ?", doc.ID).First(&group).Error == nil

	resp := gin.H{"document": doc, "links": links}
	if hasSeg {
		resp["segmentation"] = seg
	}
	if hasGCPs {
		resp["gcp_group"] = group
	}
	c.JSON(http.StatusOK, resp)
}

func (ctl *DocumentController) ListDocuments(c *gin.Context) {
	var docs []models.Document
	if err := models.DB.Order("id").Find(&docs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}
