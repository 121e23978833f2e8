package catalog

import (
	"time"

	"secondhand/pkg/domain"
)

// SampleCatalog returns the built-in browse feed used when the
// platform is unreachable or running in offline mode.
func SampleCatalog() []Summary {
	day := func(d int) time.Time {
		return time.Date(2025, time.January, d, 0, 0, 0, 0, time.UTC)
	}
	return []Summary{
		{ID: "sample-1", Title: "Cantik Itu Luka", Author: "Eka Kurniawan", Genre: "Fiction", Price: 70000, SellerID: "seller1", SellerName: "John Doe", Status: domain.ListingActive, UploadDate: day(20)},
		{ID: "sample-2", Title: "Laut Bercerita", Author: "Leila S. Chudori", Genre: "Fiction", Price: 80000, SellerID: "seller2", SellerName: "Jane Smith", Status: domain.ListingActive, UploadDate: day(19)},
		{ID: "sample-3", Title: "Dunia Sophie", Author: "Jostein Gaarder", Genre: "Philosophy", Price: 90000, SellerID: "seller1", SellerName: "John Doe", Status: domain.ListingActive, UploadDate: day(18)},
		{ID: "sample-4", Title: "Keajaiban Toko Kelontong Namiya", Author: "Keigo Higashino", Genre: "Mystery", Price: 80000, SellerID: "seller2", SellerName: "Jane Smith", Status: domain.ListingActive, UploadDate: day(17)},
		{ID: "sample-5", Title: "Sapiens", Author: "Yuval Noah Harari", Genre: "Non-Fiction", Price: 95000, SellerID: "seller1", SellerName: "John Doe", Status: domain.ListingActive, UploadDate: day(16)},
		{ID: "sample-6", Title: "The Alchemist", Author: "Paulo Coelho", Genre: "Fiction", Price: 65000, SellerID: "seller2", SellerName: "Jane Smith", Status: domain.ListingActive, UploadDate: day(15)},
	}
}
