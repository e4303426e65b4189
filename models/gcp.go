package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/transform"
)

// GCP is a single ground control point: a pixel location on the source
// document paired with a lon/lat location. Belongs to exactly one GCPGroup.
type GCP struct {
	ID             string `gorm:"type:varchar(36);primaryKey"`
	PixelX         int
	PixelY         int
	Lon            float64
	Lat            float64
	Note           string `gorm:"type:varchar(255)"`
	GCPGroupID     uint   `gorm:"index"`
	CreatedBy      string `gorm:"type:varchar(150)"`
	LastModifiedBy string `gorm:"type:varchar(150)"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// GCPGroup owns the control points for one document, plus the CRS and the
// transformation kind to fit with.
type GCPGroup struct {
	ID             uint `gorm:"primaryKey;autoIncrement"`
	DocumentID     uint `gorm:"uniqueIndex"`
	CRSEPSG        int
	Transformation string `gorm:"type:varchar(20)"` // poly | poly1 | poly2 | poly3 | tps
}

func (g *GCPGroup) GCPs(db *gorm.DB) ([]GCP, error) {
	var gcps []GCP
	if err := db.Where("gcp_group_id = ?", g.ID).Order("created_at").Find(&gcps).Error; err != nil {
		return nil, err
	}
	return gcps, nil
}

// ControlPoints returns the group's points with geo coordinates projected
// into EPSG:3857, ready for a transform fit.
func (g *GCPGroup) ControlPoints(db *gorm.DB) ([]transform.ControlPoint, error) {
	gcps, err := g.GCPs(db)
	if err != nil {
		return nil, err
	}
	points := make([]transform.ControlPoint, len(gcps))
	for i, gcp := range gcps {
		points[i] = transform.ControlPoint{
			Pixel: orb.Point{float64(gcp.PixelX), float64(gcp.PixelY)},
			Geo:   transform.LonLatToMercator(orb.Point{gcp.Lon, gcp.Lat}),
		}
	}
	return points, nil
}

// AsGeoJSON serializes the group as the FeatureCollection shape the client
// edits: point geometry in lon/lat plus image coordinates in properties.
func (g *GCPGroup) AsGeoJSON(db *gorm.DB) (*geojson.FeatureCollection, error) {
	gcps, err := g.GCPs(db)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	for _, gcp := range gcps {
		f := geojson.NewFeature(orb.Point{gcp.Lon, gcp.Lat})
		f.Properties["id"] = gcp.ID
		f.Properties["image"] = []interface{}{float64(gcp.PixelX), float64(gcp.PixelY)}
		f.Properties["username"] = gcp.LastModifiedBy
		f.Properties["note"] = gcp.Note
		fc.Append(f)
	}
	return fc, nil
}

// SaveGCPsFromGeoJSON applies an incoming point set wholesale to the
// document's group: new ids are created, changed coordinates updated, and
// points absent from the collection deleted.
func SaveGCPsFromGeoJSON(db *gorm.DB, documentID uint, fc *geojson.FeatureCollection, transformation string, username string) (*GCPGroup, error) {
	var group GCPGroup
	err := db.Where(GCPGroup{DocumentID: documentID}).FirstOrCreate(&group).Error
	if err != nil {
		return nil, err
	}

	group.CRSEPSG = 4326
	group.Transformation = transformation
	if err := db.Save(&group).Error; err != nil {
		return nil, err
	}

	incoming := make(map[string]bool, len(fc.Features))
	for _, f := range fc.Features {
		if id, ok := f.Properties["id"].(string); ok && id != "" {
			incoming[id] = true
		}
	}

	// remove points no longer present in the incoming set
	existing, err := group.GCPs(db)
	if err != nil {
		return nil, err
	}
	for _, gcp := range existing {
		if !incoming[gcp.ID] {
			if err := db.Delete(&GCP{}, "id = ?", gcp.ID).Error; err != nil {
				return nil, err
			}
		}
	}

	for _, f := range fc.Features {
		point, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("gcp feature geometry must be a Point, got %s", f.Geometry.GeoJSONType())
		}
		px, py, err := imageProperty(f.Properties)
		if err != nil {
			return nil, err
		}

		id, _ := f.Properties["id"].(string)
		if id == "" {
			id = uuid.New().String()
		}
		note, _ := f.Properties["note"].(string)

		var gcp GCP
		res := db.Where("id = ?", id).First(&gcp)
		if res.Error != nil {
			if res.Error != gorm.ErrRecordNotFound {
				return nil, res.Error
			}
			gcp = GCP{ID: id, GCPGroupID: group.ID, CreatedBy: username}
		}

		// only write when a coordinate pair actually changed
		if gcp.PixelX != px || gcp.PixelY != py || gcp.Lon != point[0] || gcp.Lat != point[1] || gcp.Note != note || res.Error == gorm.ErrRecordNotFound {
			gcp.PixelX = px
			gcp.PixelY = py
			gcp.Lon = point[0]
			gcp.Lat = point[1]
			gcp.Note = note
			gcp.LastModifiedBy = username
			if err := db.Save(&gcp).Error; err != nil {
				return nil, err
			}
		}
	}

	return &group, nil
}

func imageProperty(props geojson.Properties) (int, int, error) {
	raw, ok := props["image"].([]interface{})
	if !ok || len(raw) != 2 {
		return 0, 0, fmt.Errorf("gcp feature is missing its image [x, y] property")
	}
	x, xok := raw[0].(float64)
	y, yok := raw[1].(float64)
	if !xok || !yok {
		return 0, 0, fmt.Errorf("gcp image property must hold two numbers")
	}
	return int(x), int(y), nil
}
