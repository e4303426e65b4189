package models

import "time"

// Document is a scanned source sheet registered with the pipeline.
// Status holds the current vocab keyword (unprepared, splitting, prepared...).
type Document struct {
	ID           uint   `gorm:"primaryKey;autoIncrement"`
	Title        string `gorm:"type:varchar(255)"`
	FilePath     string `gorm:"type:varchar(512)"`
	Status       string `gorm:"type:varchar(50);index"`
	MetadataOnly bool   `gorm:"default:false"`
	CreatedAt    time.Time
}

// Layer is a georeferenced raster derived from a Document.
type Layer struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	Title      string `gorm:"type:varchar(255)"`
	FilePath   string `gorm:"type:varchar(512)"`
	DocumentID uint   `gorm:"index"`
	Status     string `gorm:"type:varchar(50);index"`
	CreatedAt  time.Time
}

// DocumentLink connects a parent document to an artifact derived from it,
// either a split child document or a georeferenced layer.
type DocumentLink struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	DocumentID uint   `gorm:"index"`
	ChildID    uint   `gorm:"index"`
	ChildKind  string `gorm:"type:varchar(20)"` // document | layer
	LinkKind   string `gorm:"type:varchar(20)"` // split | georeference
}

// LayerMask stores the trim polygon applied to a layer, as WKT.
type LayerMask struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	LayerID    uint   `gorm:"uniqueIndex"`
	PolygonWKT string `gorm:"type:text"`
	CreatedAt  time.Time
}
