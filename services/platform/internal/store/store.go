// Package store persists emulator state: auth identities, profile
// rows, and book listings.
package store

import (
	"time"

	"secondhand/pkg/domain"
)

// Identity is an auth credential record, separate from the profile row
// the application owns.
type Identity struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// BookFilter narrows ListBooks. Zero values match everything.
type BookFilter struct {
	ID       string
	Status   domain.ListingStatus
	SellerID string
}

// Store defines persistence operations for identities, profiles, and
// listings.
type Store interface {
	// identities
	SaveIdentity(Identity) error
	GetIdentityByEmail(email string) (Identity, bool, error)
	GetIdentityByID(id string) (Identity, bool, error)

	// profile rows
	SaveProfile(domain.UserProfile) error
	GetProfile(id string) (domain.UserProfile, bool, error)

	// listings
	SaveBook(domain.Book) error
	GetBook(id string) (domain.Book, bool, error)
	// ListBooks returns matches newest first.
	ListBooks(f BookFilter) ([]domain.Book, error)
}

// RefreshTokenStore persists refresh tokens.
type RefreshTokenStore interface {
	NewToken(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteToken(token string) error
}
