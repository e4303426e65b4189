package views

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/raster"
	"github.com/mradamcox/ohmg/splitter"
)

type SplitController struct {
}

type previewDivisionsRequest struct {
	DocumentID uint             `json:"document_id" binding:"required"`
	Cutlines   []orb.LineString `json:"cutlines"`
}

// PreviewDivisions recomputes the division polygons for a candidate cutline
// set without persisting anything, so the client can render the partition
// before the user commits.
func (ctl *SplitController) PreviewDivisions(c *gin.Context) {
	var req previewDivisionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var doc models.Document
	if err := models.DB.First(&doc, req.DocumentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	w, h, err := raster.Size(doc.FilePath)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	bounds := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(w), float64(h)}}

	divisions, err := splitter.GenerateDivisions(req.Cutlines, bounds)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, d := range divisions {
		fc.Append(geojson.NewFeature(d))
	}
	c.JSON(http.StatusOK, gin.H{"divisions": fc, "count": len(divisions)})
}

type saveSegmentationRequest struct {
	DocumentID  uint             `json:"document_id" binding:"required"`
	SplitNeeded bool             `json:"split_needed"`
	Cutlines    []orb.LineString `json:"cutlines"`
	Username    string           `json:"username"`
}

// SaveSegmentation stores the document's cutlines and the divisions derived
// from them, replacing any earlier segmentation wholesale.
func (ctl *SplitController) SaveSegmentation(c *gin.Context) {
	var req saveSegmentationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if subjectLockedByOther(models.DB, "document", req.DocumentID, req.Username) {
		c.JSON(http.StatusLocked, gin.H{"error": "document is locked by another session"})
		return
	}

	var doc models.Document
	if err := models.DB.First(&doc, req.DocumentID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}

	if !req.SplitNeeded {
		seg, err := models.SaveSegmentationWithoutSplit(models.DB, &doc)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"segmentation_id": seg.ID, "split_needed": false})
		return
	}

	seg, err := models.SaveSegmentationFromCutlines(models.DB, &doc, req.Cutlines)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"segmentation_id": seg.ID, "split_needed": true})
}
