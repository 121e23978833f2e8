package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type IdentityModel struct {
	ID           string    `gorm:"primaryKey"`
	Email        string    `gorm:"uniqueIndex;not null"`
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (IdentityModel) TableName() string { return "identities" }

type ProfileModel struct {
	ID               string    `gorm:"primaryKey"`
	Email            string    `gorm:"uniqueIndex;not null"`
	FullName         string
	IsSeller         bool `gorm:"not null;default:false"`
	StoreName        string
	StoreDescription string
	Phone            string
	Address          string
	BankAccount      string
	BankName         string
	CreatedAt        time.Time `gorm:"not null"`
}

func (ProfileModel) TableName() string { return "users" }

type BookModel struct {
	ID                   string `gorm:"primaryKey"`
	SellerID             string `gorm:"not null;index"`
	Title                string `gorm:"not null"`
	Author               string `gorm:"not null"`
	Genre                string
	Price                int64 `gorm:"not null"`
	CoverImage           string
	Synopsis             string
	Condition            string
	ConditionDescription string
	ConditionImages      datatypes.JSON `gorm:"type:jsonb"`
	Status               string         `gorm:"not null;index"`
	CreatedAt            time.Time      `gorm:"not null;index"`
	UpdatedAt            time.Time      `gorm:"not null"`
}

func (BookModel) TableName() string { return "books" }
