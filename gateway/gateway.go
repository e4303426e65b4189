// Package gateway abstracts durable storage of documents and layers for the
// session engine. The engine only sees this interface; the local
// implementation keeps records in gorm and files under the storage root.
package gateway

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/raster"
)

// Ref addresses one subject record.
type Ref struct {
	Kind string // document | layer
	ID   uint
}

func DocumentRef(id uint) Ref { return Ref{Kind: "document", ID: id} }
func LayerRef(id uint) Ref    { return Ref{Kind: "layer", ID: id} }

var ErrSubjectNotFound = errors.New("subject not found")

// ResourceGateway is the engine's view of subject storage.
type ResourceGateway interface {
	// FetchRaster returns the path of the subject's raster file.
	FetchRaster(ref Ref) (string, error)
	// StoreDerivedRaster attaches a derived raster to a document, creating
	// or overwriting its layer record, and returns the layer ref.
	StoreDerivedRaster(parent Ref, path string, title string) (Ref, error)
	// CreateChildSubject registers a new document whose file already exists
	// on disk (a split output).
	CreateChildSubject(parent Ref, path string, title string) (Ref, error)
	// Link records a parent/child relationship of the given kind.
	Link(parent, child Ref, kind string) error
	// Unlink removes links of the given kind from the parent.
	Unlink(parent Ref, kind string) error
	// Children returns the refs linked under the parent with the kind.
	Children(parent Ref, kind string) ([]Ref, error)
	// DeleteSubject removes the record and its raster file.
	DeleteSubject(ref Ref) error
	// SetStatus writes the subject's workflow status keyword.
	SetStatus(ref Ref, status string) error
	// SetMetadataOnly hides or shows a parent document in listings.
	SetMetadataOnly(ref Ref, metadataOnly bool) error
}

// Local is the gorm+filesystem gateway used in production and in tests.
type Local struct {
	DB *gorm.DB
}

func NewLocal(db *gorm.DB) *Local {
	return &Local{DB: db}
}

func (l *Local) FetchRaster(ref Ref) (string, error) {
	switch ref.Kind {
	case "document":
		var doc models.Document
		if err := l.DB.First(&doc, ref.ID).Error; err != nil {
			return "", notFound(ref, err)
		}
		return doc.FilePath, nil
	case "layer":
		var layer models.Layer
		if err := l.DB.First(&layer, ref.ID).Error; err != nil {
			return "", notFound(ref, err)
		}
		return layer.FilePath, nil
	}
	return "", fmt.Errorf("unknown subject kind %q", ref.Kind)
}

func (l *Local) StoreDerivedRaster(parent Ref, path string, title string) (Ref, error) {
	if parent.Kind != "document" {
		return Ref{}, fmt.Errorf("derived rasters attach to documents, got %q", parent.Kind)
	}

	// an existing georeference link means the layer is being overwritten
	var existing models.DocumentLink
	err := l.DB.Where("document_id = ? AND link_kind = ? AND child_kind = ?", parent.ID, "georeference", "layer").First(&existing).Error
	if err == nil {
		var layer models.Layer
		if ferr := l.DB.First(&layer, existing.ChildID).Error; ferr == nil {
			layer.FilePath = path
			layer.Title = title
			if serr := l.DB.Save(&layer).Error; serr != nil {
				return Ref{}, serr
			}
			return LayerRef(layer.ID), nil
		}
	} else if err != gorm.ErrRecordNotFound {
		return Ref{}, err
	}

	layer := models.Layer{
		Title:      title,
		FilePath:   path,
		DocumentID: parent.ID,
		CreatedAt:  time.Now(),
	}
	if err := l.DB.Create(&layer).Error; err != nil {
		return Ref{}, err
	}
	return LayerRef(layer.ID), nil
}

func (l *Local) CreateChildSubject(parent Ref, path string, title string) (Ref, error) {
	doc := models.Document{
		Title:     title,
		FilePath:  path,
		CreatedAt: time.Now(),
	}
	if err := l.DB.Create(&doc).Error; err != nil {
		return Ref{}, err
	}
	return DocumentRef(doc.ID), nil
}

func (l *Local) Link(parent, child Ref, kind string) error {
	link := models.DocumentLink{
		DocumentID: parent.ID,
		ChildID:    child.ID,
		ChildKind:  child.Kind,
		LinkKind:   kind,
	}
	return l.DB.Create(&link).Error
}

func (l *Local) Unlink(parent Ref, kind string) error {
	return l.DB.Where("document_id = ? AND link_kind = ?", parent.ID, kind).Delete(&models.DocumentLink{}).Error
}

func (l *Local) Children(parent Ref, kind string) ([]Ref, error) {
	var links []models.DocumentLink
	if err := l.DB.Where("document_id = ? AND link_kind = ?", parent.ID, kind).Order("id").Find(&links).Error; err != nil {
		return nil, err
	}
	refs := make([]Ref, len(links))
	for i, link := range links {
		refs[i] = Ref{Kind: link.ChildKind, ID: link.ChildID}
	}
	return refs, nil
}

func (l *Local) DeleteSubject(ref Ref) error {
	path, err := l.FetchRaster(ref)
	if err != nil {
		return err
	}
	switch ref.Kind {
	case "document":
		if err := l.DB.Delete(&models.Document{}, ref.ID).Error; err != nil {
			return err
		}
	case "layer":
		if err := l.DB.Delete(&models.Layer{}, ref.ID).Error; err != nil {
			return err
		}
	}
	if path != "" {
		os.Remove(path)
		raster.RemoveSidecars(path)
	}
	return nil
}

func (l *Local) SetStatus(ref Ref, status string) error {
	switch ref.Kind {
	case "document":
		return l.DB.Model(&models.Document{}).Where("id = ?", ref.ID).Update("status", status).Error
	case "layer":
		return l.DB.Model(&models.Layer{}).Where("id = ?", ref.ID).Update("status", status).Error
	}
	return fmt.Errorf("unknown subject kind %q", ref.Kind)
}

func (l *Local) SetMetadataOnly(ref Ref, metadataOnly bool) error {
	if ref.Kind != "document" {
		return fmt.Errorf("metadata_only applies to documents, got %q", ref.Kind)
	}
	return l.DB.Model(&models.Document{}).Where("id = ?", ref.ID).Update("metadata_only", metadataOnly).Error
}

func notFound(ref Ref, err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %d", ErrSubjectNotFound, ref.Kind, ref.ID)
	}
	return err
}

// CopyFile duplicates a raster file on disk, used when registering split
// children outside their original scratch location.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), os.ModePerm); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
