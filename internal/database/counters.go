package database

import (
	"github.com/suratdinas/backend/internal/documents"
	"github.com/suratdinas/backend/internal/incoming"
	"github.com/suratdinas/backend/internal/numbering"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SyncCounters raises every sequence counter to the highest number already
// stored, so rows imported behind the allocator's back are never handed out
// again. Counters are never lowered.
func SyncCounters(db *gorm.DB, logger *zap.Logger) error {
	var years []int
	if err := db.Model(&incoming.LetterIn{}).Distinct().Pluck("tahun", &years).Error; err != nil {
		return err
	}

	scopes := []numbering.Scope{
		documents.KindLetter.Scope(),
		documents.KindMemo.Scope(),
		incoming.DispositionScope(),
	}
	for _, year := range years {
		scopes = append(scopes, incoming.AgendaScope(year))
	}

	allocator := numbering.NewAllocator()
	return db.Transaction(func(tx *gorm.DB) error {
		for _, scope := range scopes {
			highest, err := allocator.Sync(tx, scope)
			if err != nil {
				return err
			}
			if logger != nil {
				logger.Debug("sequence counter synced", zap.String("scope", scope.Key), zap.Int64("highest", highest))
			}
		}
		return nil
	})
}
