package domain

import "time"

type ListingStatus string

const (
	ListingActive   ListingStatus = "active"
	ListingSold     ListingStatus = "sold"
	ListingInactive ListingStatus = "inactive"
)

// UserProfile is the marketplace identity row from the users table.
// JSON field names follow the persisted column names so row responses
// decode directly.
type UserProfile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	FullName         string    `json:"full_name"`
	IsSeller         bool      `json:"is_seller"`
	StoreName        string    `json:"store_name,omitempty"`
	StoreDescription string    `json:"store_description,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	Address          string    `json:"address,omitempty"`
	BankAccount      string    `json:"bank_account,omitempty"`
	BankName         string    `json:"bank_name,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// Book is a listing offered for sale by a seller.
type Book struct {
	ID                   string        `json:"id"`
	SellerID             string        `json:"seller_id"`
	Title                string        `json:"title"`
	Author               string        `json:"author"`
	Genre                string        `json:"genre"`
	Price                int64         `json:"price"`
	CoverImage           string        `json:"cover_image,omitempty"`
	Synopsis             string        `json:"synopsis,omitempty"`
	Condition            string        `json:"condition,omitempty"`
	ConditionDescription string        `json:"condition_description,omitempty"`
	ConditionImages      []string      `json:"condition_images,omitempty"`
	Status               ListingStatus `json:"status"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// SellerApplication carries the seller registration form payload.
type SellerApplication struct {
	StoreName   string `json:"storeName"`
	Description string `json:"description"`
	Phone       string `json:"phone"`
	Address     string `json:"address"`
	BankAccount string `json:"bankAccount"`
	BankName    string `json:"bankName"`
}
