package store

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"e2ee-relay/internal/domain"
)

type UserStore struct{ db *gorm.DB }

func (s *Store) Users() *UserStore { return &UserStore{db: s.DB} }

func (u *UserStore) Create(ctx context.Context, usr *domain.User) error {
	if usr.ID == uuid.Nil {
		usr.ID = uuid.New()
	}
	return u.db.WithContext(ctx).Create(usr).Error
}

func (u *UserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByPublicKey(ctx context.Context, publicKey string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "public_key = ?", publicKey).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByContactCode(ctx context.Context, code string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "contact_code = ?", code).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	if err := u.db.WithContext(ctx).First(&user, "username = ?", username).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *UserStore) ContactCodeTaken(ctx context.Context, code string) (bool, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("contact_code = ?", code).
		Count(&count).Error
	return count > 0, err
}

func (u *UserStore) DisplayNameTaken(ctx context.Context, name string) (bool, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("display_name = ?", name).
		Count(&count).Error
	return count > 0, err
}

func (u *UserStore) PublicKeyTaken(ctx context.Context, publicKey string) (bool, error) {
	var count int64
	err := u.db.WithContext(ctx).Model(&domain.User{}).
		Where("public_key = ?", publicKey).
		Count(&count).Error
	return count > 0, err
}
