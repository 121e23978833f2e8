package store

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"secondhand/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&IdentityModel{}, &ProfileModel{}, &BookModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// SaveIdentity registers or updates a credential record.
func (s *GormStore) SaveIdentity(id Identity) error {
	model := IdentityModel{
		ID:           id.ID,
		Email:        id.Email,
		PasswordHash: id.PasswordHash,
		CreatedAt:    id.CreatedAt,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"email", "password_hash"}),
	}).Create(&model).Error
}

// GetIdentityByEmail looks up a credential record by email.
func (s *GormStore) GetIdentityByEmail(email string) (Identity, bool, error) {
	var model IdentityModel
	if err := s.db.Where("email = ?", email).First(&model).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// GetIdentityByID returns a credential record by ID.
func (s *GormStore) GetIdentityByID(id string) (Identity, bool, error) {
	var model IdentityModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return Identity{}, false, nil
		}
		return Identity{}, false, err
	}
	return identityFromModel(model), true, nil
}

// SaveProfile stores or updates a profile row.
func (s *GormStore) SaveProfile(p domain.UserProfile) error {
	model := profileToModel(p)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"email", "full_name", "is_seller", "store_name", "store_description",
			"phone", "address", "bank_account", "bank_name",
		}),
	}).Create(&model).Error
}

// GetProfile retrieves a profile row.
func (s *GormStore) GetProfile(id string) (domain.UserProfile, bool, error) {
	var model ProfileModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.UserProfile{}, false, nil
		}
		return domain.UserProfile{}, false, err
	}
	return profileFromModel(model), true, nil
}

// SaveBook stores or updates a listing.
func (s *GormStore) SaveBook(b domain.Book) error {
	model, err := bookToModel(b)
	if err != nil {
		return err
	}
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"seller_id", "title", "author", "genre", "price", "cover_image",
			"synopsis", "condition", "condition_description", "condition_images",
			"status", "updated_at",
		}),
	}).Create(&model).Error
}

// GetBook retrieves a listing.
func (s *GormStore) GetBook(id string) (domain.Book, bool, error) {
	var model BookModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Book{}, false, nil
		}
		return domain.Book{}, false, err
	}
	return bookFromModel(model), true, nil
}

// ListBooks returns matching listings newest first.
func (s *GormStore) ListBooks(f BookFilter) ([]domain.Book, error) {
	tx := s.db.Order("created_at DESC")
	if f.ID != "" {
		tx = tx.Where("id = ?", f.ID)
	}
	if f.Status != "" {
		tx = tx.Where("status = ?", string(f.Status))
	}
	if f.SellerID != "" {
		tx = tx.Where("seller_id = ?", f.SellerID)
	}
	var models []BookModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(models))
	for _, m := range models {
		res = append(res, bookFromModel(m))
	}
	return res, nil
}

func identityFromModel(m IdentityModel) Identity {
	return Identity{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func profileToModel(p domain.UserProfile) ProfileModel {
	return ProfileModel{
		ID:               p.ID,
		Email:            p.Email,
		FullName:         p.FullName,
		IsSeller:         p.IsSeller,
		StoreName:        p.StoreName,
		StoreDescription: p.StoreDescription,
		Phone:            p.Phone,
		Address:          p.Address,
		BankAccount:      p.BankAccount,
		BankName:         p.BankName,
		CreatedAt:        p.CreatedAt,
	}
}

func profileFromModel(m ProfileModel) domain.UserProfile {
	return domain.UserProfile{
		ID:               m.ID,
		Email:            m.Email,
		FullName:         m.FullName,
		IsSeller:         m.IsSeller,
		StoreName:        m.StoreName,
		StoreDescription: m.StoreDescription,
		Phone:            m.Phone,
		Address:          m.Address,
		BankAccount:      m.BankAccount,
		BankName:         m.BankName,
		CreatedAt:        m.CreatedAt,
	}
}

func bookToModel(b domain.Book) (BookModel, error) {
	var conditionImages []byte
	if len(b.ConditionImages) > 0 {
		data, err := json.Marshal(b.ConditionImages)
		if err != nil {
			return BookModel{}, fmt.Errorf("encode condition images: %w", err)
		}
		conditionImages = data
	}
	return BookModel{
		ID:                   b.ID,
		SellerID:             b.SellerID,
		Title:                b.Title,
		Author:               b.Author,
		Genre:                b.Genre,
		Price:                b.Price,
		CoverImage:           b.CoverImage,
		Synopsis:             b.Synopsis,
		Condition:            b.Condition,
		ConditionDescription: b.ConditionDescription,
		ConditionImages:      datatypes.JSON(conditionImages),
		Status:               string(b.Status),
		CreatedAt:            b.CreatedAt,
		UpdatedAt:            b.UpdatedAt,
	}, nil
}

func bookFromModel(m BookModel) domain.Book {
	var images []string
	if len(m.ConditionImages) > 0 {
		_ = json.Unmarshal(m.ConditionImages, &images)
	}
	return domain.Book{
		ID:                   m.ID,
		SellerID:             m.SellerID,
		Title:                m.Title,
		Author:               m.Author,
		Genre:                m.Genre,
		Price:                m.Price,
		CoverImage:           m.CoverImage,
		Synopsis:             m.Synopsis,
		Condition:            m.Condition,
		ConditionDescription: m.ConditionDescription,
		ConditionImages:      images,
		Status:               domain.ListingStatus(m.Status),
		CreatedAt:            m.CreatedAt,
		UpdatedAt:            m.UpdatedAt,
	}
}
