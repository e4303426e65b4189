package sessions

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/gateway"
	"github.com/mradamcox/ohmg/georeferencer"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/splitter"
	"github.com/mradamcox/ohmg/transform"
	"github.com/mradamcox/ohmg/vocab"
)

// runPreparation splits the document along its stored segmentation, or just
// marks it prepared when no split is needed.
func (e *Engine) runPreparation(ctx context.Context, s *models.Session) error {
	db := e.db.WithContext(ctx)
	ref := gateway.DocumentRef(s.SubjectID())

	var doc models.Document
	if err := db.First(&doc, s.SubjectID()).Error; err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	var seg models.Segmentation
	if err := db.Where("document_id = ?", doc.ID).First(&seg).Error; err != nil {
		return fmt.Errorf("no segmentation stored for document %d: %w", doc.ID, err)
	}

	if err := e.gw.SetStatus(ref, vocab.Splitting); err != nil {
		log.Printf("document %d: mark splitting: %v", doc.ID, err)
	}

	if !seg.SplitNeeded {
		if err := e.gw.SetStatus(ref, vocab.Prepared); err != nil {
			return err
		}
		return setDataAndSave(db, s, models.PreparationData{SplitNeeded: false})
	}

	divisions, err := seg.DivisionGeometry()
	if err != nil {
		return err
	}
	if len(divisions) == 0 {
		return fmt.Errorf("segmentation for document %d has no divisions", doc.ID)
	}

	sp := splitter.New(doc.FilePath, "")
	paths, err := sp.SplitImage(divisions)
	if err != nil {
		return err
	}

	for n, path := range paths {
		child, err := e.gw.CreateChildSubject(ref, path, fmt.Sprintf("%s [%d]", doc.Title, n+1))
		if err != nil {
			return err
		}
		if err := e.gw.Link(ref, child, "split"); err != nil {
			return err
		}
		if err := e.gw.SetStatus(child, vocab.Unprepared); err != nil {
			return err
		}
	}
	if len(paths) > 1 {
		if err := e.gw.SetMetadataOnly(ref, true); err != nil {
			return err
		}
	}
	if err := e.gw.SetStatus(ref, vocab.Prepared); err != nil {
		return err
	}

	return setDataAndSave(db, s, models.PreparationData{
		SplitNeeded: true,
		Cutlines:    json.RawMessage(seg.Cutlines),
		Divisions:   json.RawMessage(seg.Divisions),
	})
}

// runGeoreference fits the document's control point group and performs the
// full warp, creating or overwriting the derived layer.
func (e *Engine) runGeoreference(ctx context.Context, s *models.Session) error {
	db := e.db.WithContext(ctx)
	ref := gateway.DocumentRef(s.SubjectID())

	var doc models.Document
	if err := db.First(&doc, s.SubjectID()).Error; err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	var group models.GCPGroup
	if err := db.Where("document_id = ?", doc.ID).First(&group).Error; err != nil {
		return fmt.Errorf("no control point group for document %d: %w", doc.ID, err)
	}

	points, err := group.ControlPoints(db)
	if err != nil {
		return err
	}

	g := georeferencer.New(e.layerDir)
	kind := transform.Kind(group.Transformation)
	if kind == "" {
		kind = transform.Poly
	}
	if err := g.SetTransformation(kind); err != nil {
		return err
	}
	if err := g.LoadControlPoints(points); err != nil {
		return err
	}

	if err := e.gw.SetStatus(ref, vocab.Georeferencing); err != nil {
		log.Printf("document %d: mark georeferencing: %v", doc.ID, err)
	}

	out, err := g.Georeference(doc.FilePath, georeferencer.Final, true)
	if err != nil {
		return err
	}

	// catalog titles with commas break downstream map clients
	title := strings.ReplaceAll(doc.Title, ",", " -")
	layerRef, err := e.gw.StoreDerivedRaster(ref, out, title)
	if err != nil {
		return err
	}

	existing, err := e.gw.Children(ref, "georeference")
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if err := e.gw.Link(ref, layerRef, "georeference"); err != nil {
			return err
		}
	}
	if err := e.gw.SetStatus(layerRef, vocab.Georeferenced); err != nil {
		return err
	}
	if err := e.gw.SetStatus(ref, vocab.Georeferenced); err != nil {
		return err
	}

	fc, err := group.AsGeoJSON(db)
	if err != nil {
		return err
	}
	gcpJSON, err := json.Marshal(fc)
	if err != nil {
		return err
	}
	return setDataAndSave(db, s, models.GeoreferenceData{
		GCPs:           gcpJSON,
		EPSG:           group.CRSEPSG,
		Transformation: string(kind),
	})
}

// runTrim applies the session's mask polygon to the layer raster.
func (e *Engine) runTrim(ctx context.Context, s *models.Session) error {
	db := e.db.WithContext(ctx)
	ref := gateway.LayerRef(s.SubjectID())

	var layer models.Layer
	if err := db.First(&layer, s.SubjectID()).Error; err != nil {
		return fmt.Errorf("load layer: %w", err)
	}

	var data models.TrimData
	if err := s.DecodeData(&data); err != nil {
		return err
	}
	if data.MaskWKT == "" {
		return fmt.Errorf("trim session %d has no mask polygon", s.ID)
	}

	if err := e.gw.SetStatus(ref, vocab.Trimming); err != nil {
		log.Printf("layer %d: mark trimming: %v", layer.ID, err)
	}

	if _, err := georeferencer.ApplyMask(layer.FilePath, data.MaskWKT); err != nil {
		return err
	}

	var mask models.LayerMask
	if err := db.Where(models.LayerMask{LayerID: layer.ID}).FirstOrCreate(&mask).Error; err != nil {
		return err
	}
	mask.PolygonWKT = data.MaskWKT
	if err := db.Save(&mask).Error; err != nil {
		return err
	}

	return e.gw.SetStatus(ref, vocab.Trimmed)
}

func setDataAndSave(db *gorm.DB, s *models.Session, payload interface{}) error {
	if err := s.SetData(payload); err != nil {
		return err
	}
	return db.Model(&models.Session{}).Where("id = ?", s.ID).Update("data", s.Data).Error
}
