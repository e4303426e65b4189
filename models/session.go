package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// Session kinds.
const (
	KindPreparation  = "preparation"
	KindGeoreference = "georeference"
	KindTrim         = "trim"
)

// Workflow stages, orthogonal to status.
const (
	StageInput      = "input"
	StageProcessing = "processing"
	StageFinished   = "finished"
)

// Run statuses.
const (
	StatusUnstarted = "unstarted"
	StatusRunning   = "running"
	StatusFailed    = "failed"
	StatusSuccess   = "success"
)

// Session is one preparation, georeference, or trim operation against a
// subject. Kind-specific input lives in the Data payload. The lock columns
// form a lease: at most one active session may hold the lock per subject.
type Session struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Kind        string `gorm:"type:varchar(20);index"`
	DocumentID  *uint  `gorm:"index"`
	LayerID     *uint  `gorm:"index"`
	UserName    string `gorm:"type:varchar(150)"`
	Stage       string `gorm:"type:varchar(20);default:input"`
	Status      string `gorm:"type:varchar(20);default:unstarted"`
	Note        string `gorm:"type:varchar(255)"`
	Data        datatypes.JSON
	LockEnabled bool `gorm:"default:false;index"`
	LockUser    string
	LockExpires time.Time
	DateCreated time.Time
	DateRun     *time.Time
}

// PreparationData is the payload of a preparation session.
type PreparationData struct {
	SplitNeeded bool            `json:"split_needed"`
	Cutlines    json.RawMessage `json:"cutlines,omitempty"`
	Divisions   json.RawMessage `json:"divisions,omitempty"`
}

// GeoreferenceData is the payload of a georeference session.
type GeoreferenceData struct {
	GCPs           json.RawMessage `json:"gcps,omitempty"`
	EPSG           int             `json:"epsg,omitempty"`
	Transformation string          `json:"transformation,omitempty"`
}

// TrimData is the payload of a trim session.
type TrimData struct {
	MaskWKT string `json:"mask_wkt"`
}

// SubjectKind reports which subject table the session points at.
func (s *Session) SubjectKind() string {
	if s.Kind == KindTrim {
		return "layer"
	}
	return "document"
}

// SubjectID returns the id of the session's subject record.
func (s *Session) SubjectID() uint {
	if s.Kind == KindTrim {
		if s.LayerID != nil {
			return *s.LayerID
		}
		return 0
	}
	if s.DocumentID != nil {
		return *s.DocumentID
	}
	return 0
}

// LockActive reports whether the lease is held and unexpired at now.
func (s *Session) LockActive(now time.Time) bool {
	return s.LockEnabled && s.LockExpires.After(now)
}

// SetData marshals a kind payload into the Data column.
func (s *Session) SetData(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode session data: %w", err)
	}
	s.Data = datatypes.JSON(raw)
	return nil
}

// DecodeData unmarshals the Data column into a kind payload.
func (s *Session) DecodeData(payload interface{}) error {
	if len(s.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(s.Data, payload); err != nil {
		return fmt.Errorf("decode session data: %w", err)
	}
	return nil
}

func (s *Session) String() string {
	return fmt.Sprintf("%s session %d [%s/%s] %s", s.Kind, s.ID, s.Stage, s.Status, s.UserName)
}
