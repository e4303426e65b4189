package views

import (
	"time"

	"gorm.io/gorm"

	"github.com/mradamcox/ohmg/models"
)

// subjectLockedByOther reports whether an unexpired session lease on the
// subject is held by a different user. Mutating requests against a locked
// subject are rejected, not failed.
func subjectLockedByOther(db *gorm.DB, subjectKind string, subjectID uint, user string) bool {
	now := time.Now()
	q := db.Model(&models.Session{}).
		Where("lock_enabled = ? AND lock_expires > ? AND user_name <> ?", true, now, user)
	if subjectKind == "layer" {
		q = q.Where("layer_id = ?", subjectID)
	} else {
		q = q.Where("document_id = ?", subjectID)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false
	}
	return count > 0
}
