package repository

import (
	"context"

	"gorm.io/gorm"
)

func (r *Repository) BeginTransaction(ctx context.Context) (*gorm.DB, error) {
	tx := r.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		r.logger.Errorf("Failed to start transaction: %v", tx.Error)
		return nil, tx.Error
	}
	return tx, nil
}

func (r *Repository) Commit(tx *gorm.DB) error {
	if err := tx.Commit().Error; err != nil {
		r.logger.Errorf("Failed to commit transaction: %v", err)
		return err
	}
	return nil
}

func (r *Repository) Rollback(tx *gorm.DB) {
	r.logger.Warn("Rolling back transaction...")
	_ = tx.Rollback().Error
}

// withTransaction runs fn inside a database transaction and rolls back on
// error or panic.
func (r *Repository) withTransaction(ctx context.Context, fn func(tx *gorm.DB) error) (err error) {
	tx, err := r.BeginTransaction(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			r.Rollback(tx)
			panic(p)
		}
		if err != nil {
			r.Rollback(tx)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	return r.Commit(tx)
}
