package sessions

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/mradamcox/ohmg/gateway"
	"github.com/mradamcox/ohmg/georeferencer"
	"github.com/mradamcox/ohmg/models"
	"github.com/mradamcox/ohmg/raster"
	"github.com/mradamcox/ohmg/vocab"
)

// Undo reverses the committed side effects of a finished session, then
// deletes the session record, or resets it to unstarted/input when
// keepSession is true so an immediate redo can reuse it. Undo on a
// non-terminal session is an ErrInvalidTransition, and a subject whose
// lease is held by another session rejects the undo the same way Run
// rejects a second run.
func (e *Engine) Undo(ctx context.Context, id uint, keepSession bool) error {
	s, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Stage != models.StageFinished {
		return fmt.Errorf("%w: cannot undo a session in stage %q", ErrInvalidTransition, s.Stage)
	}
	held, err := e.subjectLeaseHeldElsewhere(ctx, s)
	if err != nil {
		return err
	}
	if held {
		return fmt.Errorf("%w: %s %d", ErrSessionLocked, s.SubjectKind(), s.SubjectID())
	}

	switch s.Kind {
	case models.KindPreparation:
		err = e.undoPreparation(ctx, s)
	case models.KindGeoreference:
		err = e.undoGeoreference(ctx, s)
	case models.KindTrim:
		err = e.undoTrim(ctx, s)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownKind, s.Kind)
	}
	if err != nil {
		return err
	}

	if keepSession {
		return e.db.WithContext(ctx).Model(&models.Session{}).Where("id = ?", s.ID).Updates(map[string]interface{}{
			"stage":        models.StageInput,
			"status":       models.StatusUnstarted,
			"note":         "",
			"date_run":     nil,
			"lock_enabled": false,
		}).Error
	}
	return e.db.WithContext(ctx).Delete(&models.Session{}, s.ID).Error
}

// subjectLeaseHeldElsewhere reports whether any other session holds an
// unexpired lease on this session's subject. An expired lease counts as
// absent, matching Run's acquisition rule.
func (e *Engine) subjectLeaseHeldElsewhere(ctx context.Context, s *models.Session) (bool, error) {
	q := e.db.WithContext(ctx).Model(&models.Session{}).
		Where("id <> ? AND lock_enabled = ? AND lock_expires > ?", s.ID, true, time.Now())
	if s.SubjectKind() == "layer" {
		q = q.Where("layer_id = ?", s.SubjectID())
	} else {
		q = q.Where("document_id = ?", s.SubjectID())
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// Redo re-runs a session. Preparation first undoes its prior split, because
// splitting is not idempotent over existing children; georeference and trim
// outputs are reliably overwritten, so they run directly.
func (e *Engine) Redo(ctx context.Context, id uint) error {
	s, err := e.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Kind == models.KindPreparation {
		if err := e.Undo(ctx, id, true); err != nil {
			return err
		}
	}
	return e.Run(ctx, id)
}

// undoPreparation deletes the split children and their links and restores
// the parent to unprepared. A no-split session only reverts status.
func (e *Engine) undoPreparation(ctx context.Context, s *models.Session) error {
	ref := gateway.DocumentRef(s.SubjectID())

	children, err := e.gw.Children(ref, "split")
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := e.gw.DeleteSubject(child); err != nil {
			return err
		}
	}
	if err := e.gw.Unlink(ref, "split"); err != nil {
		return err
	}
	if err := e.gw.SetMetadataOnly(ref, false); err != nil {
		return err
	}
	return e.gw.SetStatus(ref, vocab.Unprepared)
}

// undoGeoreference deletes the derived layer but keeps the canonical
// control point group, so georeferencing can resume from the same points.
func (e *Engine) undoGeoreference(ctx context.Context, s *models.Session) error {
	ref := gateway.DocumentRef(s.SubjectID())

	children, err := e.gw.Children(ref, "georeference")
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := e.gw.DeleteSubject(child); err != nil {
			return err
		}
	}
	if err := e.gw.Unlink(ref, "georeference"); err != nil {
		return err
	}
	return e.gw.SetStatus(ref, vocab.Prepared)
}

// undoTrim removes the mask record and the trimmed raster variant.
func (e *Engine) undoTrim(ctx context.Context, s *models.Session) error {
	db := e.db.WithContext(ctx)
	ref := gateway.LayerRef(s.SubjectID())

	var layer models.Layer
	if err := db.First(&layer, s.SubjectID()).Error; err != nil {
		return fmt.Errorf("load layer: %w", err)
	}

	if err := db.Where("layer_id = ?", layer.ID).Delete(&models.LayerMask{}).Error; err != nil {
		return err
	}
	masked := georeferencer.MaskedPath(layer.FilePath)
	os.Remove(masked)
	raster.RemoveSidecars(masked)

	return e.gw.SetStatus(ref, vocab.Georeferenced)
}

// DeleteExpiredSessions removes sessions whose lease lapsed before the run
// completed, reverting each subject to its last stable status. Returns the
// number of sessions reclaimed.
func (e *Engine) DeleteExpiredSessions(ctx context.Context) (int, error) {
	db := e.db.WithContext(ctx)
	now := time.Now()

	var stale []models.Session
	err := db.Where("lock_enabled = ? AND lock_expires < ? AND stage <> ?", true, now, models.StageFinished).Find(&stale).Error
	if err != nil {
		return 0, err
	}

	count := 0
	for i := range stale {
		s := &stale[i]
		ref := gateway.Ref{Kind: s.SubjectKind(), ID: s.SubjectID()}
		if status, err := e.subjectStatus(ctx, s); err == nil {
			if serr := e.gw.SetStatus(ref, e.vocab.PriorStable(status)); serr != nil {
				log.Printf("session %d: revert %s %d status: %v", s.ID, ref.Kind, ref.ID, serr)
			}
		}
		if err := db.Delete(&models.Session{}, s.ID).Error; err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
