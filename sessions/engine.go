// Package sessions is the run/undo/redo state machine over preparation,
// georeference, and trim sessions. It validates state and the per-subject
// lock lease, dispatches the actual work to the splitter and georeferencer,
// and records durable history on the session rows.
package sessions

import (
	"context"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/gateway"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/vocab"
)

// Engine sequences session operations. Safe to call from any worker
// goroutine: all shared state lives in the database, and Run's lock
// acquisition is a single test-and-set statement.
type Engine struct {
	db       *gorm.DB
	gw       gateway.ResourceGateway
	vocab    *vocab.Manager
	notifier Notifier
	lockTTL  time.Duration
	layerDir string
}

func NewEngine(db *gorm.DB, gw gateway.ResourceGateway, v *vocab.Manager, notifier Notifier, lockTTL time.Duration, layerDir string) *Engine {
	return &Engine{db: db, gw: gw, vocab: v, notifier: notifier, lockTTL: lockTTL, layerDir: layerDir}
}

// Start registers a new session of the given kind against a subject. The
// session begins unstarted/input; Run performs the work later.
func (e *Engine) Start(ctx context.Context, kind string, subjectID uint, user string) (*models.Session, error) {
	s := models.Session{
		Kind:        kind,
		UserName:    user,
		Stage:       models.StageInput,
		Status:      models.StatusUnstarted,
		DateCreated: time.Now(),
	}
	switch kind {
	case models.KindPreparation, models.KindGeoreference:
		s.DocumentID = &subjectID
	case models.KindTrim:
		s.LayerID = &subjectID
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if err := e.db.WithContext(ctx).Create(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Get loads a session by primary key.
func (e *Engine) Get(ctx context.Context, id uint) (*models.Session, error) {
	var s models.Session
	if err := e.db.WithContext(ctx).First(&s, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("%w: %d", ErrSessionNotFound, id)
		}
		return nil, err
	}
	return &s, nil
}

// List returns sessions, optionally filtered by kind and subject document.
func (e *Engine) List(ctx context.Context, kind string, documentID uint) ([]models.Session, error) {
	q := e.db.WithContext(ctx).Model(&models.Session{}).Order("id")
	if kind != "" {
		q = q.Where("kind = ?", kind)
	}
	if documentID != 0 {
		q = q.Where("document_id = ?", documentID)
	}
	var out []models.Session
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Run executes the session's operation. It atomically acquires the
// per-subject lock lease; a concurrent run on the same subject observes
// ErrSessionLocked. On any failure the session is marked failed with a
// note, the subject keeps its prior stable status, and the lock is
// released. Outputs committed by earlier successful runs are untouched.
func (e *Engine) Run(ctx context.Context, id uint) error {
	s, err := e.Get(ctx, id)
	if err != nil {
		return err
	}

	if err := e.acquireLock(ctx, s); err != nil {
		return err
	}

	// reload after acquisition so the op sees running/processing state
	s, err = e.Get(ctx, id)
	if err != nil {
		return err
	}

	prevStatus, statusErr := e.subjectStatus(ctx, s)
	if statusErr != nil {
		e.finish(ctx, s, statusErr, "")
		return statusErr
	}

	var runErr error
	switch s.Kind {
	case models.KindPreparation:
		runErr = e.runPreparation(ctx, s)
	case models.KindGeoreference:
		runErr = e.runGeoreference(ctx, s)
	case models.KindTrim:
		runErr = e.runTrim(ctx, s)
	default:
		runErr = fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}

	e.finish(ctx, s, runErr, prevStatus)
	return runErr
}

// acquireLock is a single UPDATE that both checks and takes the lease, so
// two concurrent Run calls on the same subject can never both pass. An
// expired lease on another session counts as absent.
func (e *Engine) acquireLock(ctx context.Context, s *models.Session) error {
	now := time.Now()
	res := e.db.WithContext(ctx).Exec(`
		UPDATE session
		SET lock_enabled = ?, lock_user = ?, lock_expires = ?,
		    status = ?, stage = ?
		WHERE id = ? AND status <> ?
		AND NOT EXISTS (
			SELECT 1 FROM session s2
			WHERE s2.id <> session.id
			AND s2.lock_enabled
			AND s2.lock_expires > ?
			AND ((session.document_id IS NOT NULL AND s2.document_id = session.document_id)
			  OR (session.layer_id IS NOT NULL AND s2.layer_id = session.layer_id))
		)`,
		true, s.UserName, now.Add(e.lockTTL),
		models.StatusRunning, models.StageProcessing,
		s.ID, models.StatusRunning,
		now,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s %d", ErrSessionLocked, s.SubjectKind(), s.SubjectID())
	}
	return nil
}

// finish releases the lock and records the terminal state. Run failures
// revert the subject to the stable status it had before the run started.
func (e *Engine) finish(ctx context.Context, s *models.Session, runErr error, prevStatus string) {
	now := time.Now()
	updates := map[string]interface{}{
		"lock_enabled": false,
		"stage":        models.StageFinished,
		"date_run":     now,
	}
	newStatus := models.StatusSuccess
	if runErr != nil {
		newStatus = models.StatusFailed
		updates["note"] = truncateNote(runErr.Error())
		if prevStatus != "" {
			if serr := e.gw.SetStatus(gateway.Ref{Kind: s.SubjectKind(), ID: s.SubjectID()}, prevStatus); serr != nil {
				log.Printf("session %d: revert subject status: %v", s.ID, serr)
			}
		}
	}
	updates["status"] = newStatus

	if err := e.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", s.ID).Updates(updates).Error; err != nil {
		// the expiry sweep reclaims the lease if this write was lost
		log.Printf("session %d: failed to record terminal state: %v", s.ID, err)
		return
	}

	if e.notifier != nil {
		e.notifier.SessionCompleted(Event{
			SessionID:   s.ID,
			Kind:        s.Kind,
			SubjectKind: s.SubjectKind(),
			SubjectID:   s.SubjectID(),
			NewStatus:   newStatus,
		})
	}
}

func (e *Engine) subjectStatus(ctx context.Context, s *models.Session) (string, error) {
	switch s.SubjectKind() {
	case "document":
		var doc models.Document
		if err := e.db.WithContext(ctx).First(&doc, s.SubjectID()).Error; err != nil {
			return "", fmt.Errorf("load session subject: %w", err)
		}
		return doc.Status, nil
	case "layer":
		var layer models.Layer
		if err := e.db.WithContext(ctx).First(&layer, s.SubjectID()).Error; err != nil {
			return "", fmt.Errorf("load session subject: %w", err)
		}
		return layer.Status, nil
	}
	return "", fmt.Errorf("unknown subject kind %q", s.SubjectKind())
}

func truncateNote(note string) string {
	if len(note) > 255 {
		return note[:252] + "..."
	}
	return note
}
