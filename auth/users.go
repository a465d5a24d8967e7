package auth

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vatsuok/errs"
	"vatsuok/models"
)

// ensureAdmin fails with ErrAccessDenied unless actor is an admin.
func ensureAdmin(actor *models.User) error {
	if actor == nil || !actor.IsAdmin {
		return errs.ErrAccessDenied
	}
	return nil
}

func (a *AuthModule) findUser(ctx context.Context, id int) (*models.User, error) {
	var user models.User
	err := a.db.WithContext(ctx).First(&user, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("user %d: %w", id, errs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Approve lets a pending user sign in.
func (a *AuthModule) Approve(ctx context.Context, actor *models.User, id int) (*models.User, error) {
	if err := ensureAdmin(actor); err != nil {
		return nil, err
	}

	user, err := a.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	user.Approved = true
	if err := a.db.WithContext(ctx).Model(user).Update("approved", user.Approved).Error; err != nil {
		return nil, fmt.Errorf("approve user %d: %w", id, err)
	}

	a.log.Info().Int("user_id", user.ID).Int("by", actor.ID).Msg("user approved")
	return user, nil
}

// ToggleAdmin flips the admin flag of the user.
func (a *AuthModule) ToggleAdmin(ctx context.Context, actor *models.User, id int) (*models.User, error) {
	if err := ensureAdmin(actor); err != nil {
		return nil, err
	}

	user, err := a.findUser(ctx, id)
	if err != nil {
		return nil, err
	}

	user.IsAdmin = !user.IsAdmin
	if err := a.db.WithContext(ctx).Model(user).Update("is_admin", user.IsAdmin).Error; err != nil {
		return nil, fmt.Errorf("toggle admin %d: %w", id, err)
	}

	a.log.Info().Int("user_id", user.ID).Bool("is_admin", user.IsAdmin).Int("by", actor.ID).Msg("admin role toggled")
	return user, nil
}

// DeleteUser removes an account that owns no posts. Admins cannot delete
// themselves.
func (a *AuthModule) DeleteUser(ctx context.Context, actor *models.User, id int) (*models.User, error) {
	if err := ensureAdmin(actor); err != nil {
		return nil, err
	}
	if id == actor.ID {
		return nil, errs.ErrSelfDeletion
	}

	var user *models.User
	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.User
		if err := tx.First(&target, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("user %d: %w", id, errs.ErrNotFound)
			}
			return err
		}

		var posts int64
		if err := tx.Model(&models.Post{}).Where("author_id = ?", id).Count(&posts).Error; err != nil {
			return err
		}
		if posts > 0 {
			return &errs.DependentContentError{Username: target.Username, Posts: posts}
		}

		if err := tx.Delete(&target).Error; err != nil {
			return err
		}
		user = &target
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.log.Info().Int("user_id", user.ID).Str("username", user.Username).Int("by", actor.ID).Msg("user deleted")
	return user, nil
}
