package views

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb/geojson"

	"github.com/mradamcox/ohmg/config"
	"github.com/mradamcox/ohmg/georeferencer"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/transform"
)

type GeoreferenceController struct {
}

type saveGCPsRequest struct {
	DocumentID     uint                      `json:"document_id" binding:"required"`
	Transformation string                    `json:"transformation"`
	Username       string                    `json:"username"`
	GCPs           geojson.FeatureCollection `json:"gcps"`
}

// SaveGCPs replaces the document's control point set wholesale from the
// incoming FeatureCollection.
func (ctl *GeoreferenceController) SaveGCPs(c *gin.Context) {
	var req saveGCPsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if subjectLockedByOther(models.DB, "document", req.DocumentID, req.Username) {
		c.JSON(http.StatusLocked, gin.H{"error": "document is locked by another session"})
		return
	}

	group, err := models.SaveGCPsFromGeoJSON(models.DB, req.DocumentID, &req.GCPs, req.Transformation, req.Username)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	fc, err := group.AsGeoJSON(models.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"group_id": group.ID, "gcps": fc})
}

type previewRequest struct {
	DocumentID uint   `json:"document_id" binding:"required"`
	Username   string `json:"username"`
}

// Preview regenerates the VRT warp descriptor for rapid iteration; the
// output path is stable per document, so each call overwrites the last.
func (ctl *GeoreferenceController) Preview(c *gin.Context) {
	var req previewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var doc models.Document
	if err := models.DB.First(&doc, req.DocumentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	var group models.GCPGroup
	if err := models.DB.Where("document_id = ?", doc.ID).First(&group).Error; err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no control points for document"})
		return
	}
	points, err := group.ControlPoints(models.DB)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	g := georeferencer.New(config.Layers)
	if group.Transformation != "" {
		if err := g.SetTransformation(transform.Kind(group.Transformation)); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if err := g.LoadControlPoints(points); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	out, err := g.Georeference(doc.FilePath, georeferencer.Preview, false)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"preview": out})
}
