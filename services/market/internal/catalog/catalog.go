// Package catalog serves the book listing surfaces: the browse feed,
// listing details, and a seller's own inventory.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"secondhand/pkg/domain"
	"secondhand/pkg/platform"
	"secondhand/pkg/storage"
)

var (
	// ErrNotFound marks a listing id with no row behind it.
	ErrNotFound = errors.New("listing not found")
	// ErrNotSeller rejects listing submission by non-sellers.
	ErrNotSeller = errors.New("seller account required")
)

// Summary is one card in the browse feed.
type Summary struct {
	ID         string               `json:"id"`
	Title      string               `json:"title"`
	Author     string               `json:"author"`
	Genre      string               `json:"genre"`
	Price      int64                `json:"price"`
	CoverImage string               `json:"cover_image"`
	SellerID   string               `json:"seller_id"`
	SellerName string               `json:"seller_name"`
	Status     domain.ListingStatus `json:"status"`
	UploadDate time.Time            `json:"upload_date"`
}

// Details is the full listing detail page payload.
type Details struct {
	domain.Book
	SellerName   string    `json:"seller_name"`
	SellerJoined time.Time `json:"seller_joined"`
}

// ListingForm is the seller's new-listing submission.
type ListingForm struct {
	Title                string
	Author               string
	Genre                string
	Price                int64
	Synopsis             string
	Condition            string
	ConditionDescription string
}

// CoverUpload carries the uploaded cover image.
type CoverUpload struct {
	Reader      io.Reader
	Size        int64
	ContentType string
	Filename    string
}

// sellerRef is the embedded users relation returned by the row query.
type sellerRef struct {
	FullName  string    `json:"full_name"`
	CreatedAt time.Time `json:"created_at"`
}

type bookRow struct {
	domain.Book
	Seller *sellerRef `json:"users"`
}

// Config wires the catalog service.
type Config struct {
	Client platform.Client
	Cache  *Cache
	Covers storage.ObjectStore
	Logger *slog.Logger
}

// Service reads and writes listings through the platform client.
type Service struct {
	client platform.Client
	cache  *Cache
	covers storage.ObjectStore
	logger *slog.Logger
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		client: cfg.Client,
		cache:  cfg.Cache,
		covers: cfg.Covers,
		logger: logger,
	}
}

const activeFeedSelect = "*, users!books_seller_id_fkey(full_name)"

// ListActive returns active listings, newest first, with seller names
// resolved. Offline mode and read failures degrade to the built-in
// sample catalog so the browse page always renders.
func (s *Service) ListActive(ctx context.Context) ([]Summary, error) {
	if s.client.Offline() {
		return SampleCatalog(), nil
	}
	if s.cache != nil {
		if items, ok := s.cache.Get(ctx); ok {
			return items, nil
		}
	}
	var rows []bookRow
	err := s.client.From("books").
		Select(activeFeedSelect).
		Eq("status", string(domain.ListingActive)).
		Order("created_at", false).
		Rows(ctx, &rows)
	if err != nil {
		s.logger.Error("list active listings failed", "err", err)
		return SampleCatalog(), nil
	}
	items := make([]Summary, 0, len(rows))
	for _, row := range rows {
		items = append(items, summaryFromRow(row))
	}
	if s.cache != nil {
		s.cache.Set(ctx, items)
	}
	return items, nil
}

// Get fetches one listing with seller info. A missing row surfaces as
// ErrNotFound; other failures propagate so the detail page can report
// the outage.
func (s *Service) Get(ctx context.Context, id string) (Details, error) {
	var row bookRow
	err := s.client.From("books").
		Select("*, users!books_seller_id_fkey(full_name, created_at)").
		Eq("id", id).
		Single(ctx, &row)
	if err != nil {
		if platform.IsNotFound(err) {
			return Details{}, ErrNotFound
		}
		return Details{}, fmt.Errorf("fetch listing %s: %w", id, err)
	}
	d := Details{Book: row.Book}
	if row.Seller != nil {
		d.SellerName = row.Seller.FullName
		d.SellerJoined = row.Seller.CreatedAt
	}
	if d.SellerName == "" {
		d.SellerName = "Unknown"
	}
	return d, nil
}

// BySeller returns the seller's own listings in all statuses, newest
// first. Read failures degrade to an empty inventory.
func (s *Service) BySeller(ctx context.Context, sellerID string) ([]domain.Book, error) {
	var books []domain.Book
	err := s.client.From("books").
		Select("*").
		Eq("seller_id", sellerID).
		Order("created_at", false).
		Rows(ctx, &books)
	if err != nil {
		s.logger.Error("list seller listings failed", "seller_id", sellerID, "err", err)
		return []domain.Book{}, nil
	}
	return books, nil
}

// Submit creates a new active listing for the seller. The cover image,
// when provided, is uploaded first and its object key recorded on the
// row. Write failures propagate to the caller.
func (s *Service) Submit(ctx context.Context, seller *domain.UserProfile, form ListingForm, cover *CoverUpload) (domain.Book, error) {
	if seller == nil || !seller.IsSeller {
		return domain.Book{}, ErrNotSeller
	}
	if strings.TrimSpace(form.Title) == "" || strings.TrimSpace(form.Author) == "" {
		return domain.Book{}, errors.New("title and author required")
	}
	if form.Price <= 0 {
		return domain.Book{}, errors.New("price must be positive")
	}

	now := time.Now().UTC()
	book := domain.Book{
		ID:                   uuid.NewString(),
		SellerID:             seller.ID,
		Title:                strings.TrimSpace(form.Title),
		Author:               strings.TrimSpace(form.Author),
		Genre:                strings.TrimSpace(form.Genre),
		Price:                form.Price,
		Synopsis:             form.Synopsis,
		Condition:            form.Condition,
		ConditionDescription: form.ConditionDescription,
		Status:               domain.ListingActive,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if cover != nil && s.covers != nil {
		key := coverKey(book.ID, cover)
		if err := s.covers.Put(ctx, key, cover.Reader, cover.Size, cover.ContentType); err != nil {
			return domain.Book{}, fmt.Errorf("upload cover: %w", err)
		}
		book.CoverImage = key
	}
	if err := s.client.From("books").Insert(ctx, []domain.Book{book}); err != nil {
		return domain.Book{}, fmt.Errorf("create listing: %w", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	return book, nil
}

// CoverURL resolves a stored cover key into a short-lived fetch URL.
func (s *Service) CoverURL(ctx context.Context, key string) (string, error) {
	if s.covers == nil {
		return "", errors.New("cover storage not configured")
	}
	return s.covers.PresignGet(ctx, key, 15*time.Minute)
}

// Filter narrows summaries by a case-insensitive title/author substring
// match and an exact genre, mirroring the browse page controls. Empty
// arguments match everything.
func Filter(items []Summary, query, genre string) []Summary {
	query = strings.ToLower(strings.TrimSpace(query))
	genre = strings.TrimSpace(genre)
	out := make([]Summary, 0, len(items))
	for _, item := range items {
		if genre != "" && !strings.EqualFold(item.Genre, genre) {
			continue
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(item.Title), query) &&
			!strings.Contains(strings.ToLower(item.Author), query) {
			continue
		}
		out = append(out, item)
	}
	return out
}

func summaryFromRow(row bookRow) Summary {
	name := "Unknown"
	if row.Seller != nil && row.Seller.FullName != "" {
		name = row.Seller.FullName
	}
	return Summary{
		ID:         row.ID,
		Title:      row.Title,
		Author:     row.Author,
		Genre:      row.Genre,
		Price:      row.Price,
		CoverImage: row.CoverImage,
		SellerID:   row.SellerID,
		SellerName: name,
		Status:     row.Status,
		UploadDate: row.CreatedAt,
	}
}

func coverKey(id string, cover *CoverUpload) string {
	ext := strings.ToLower(path.Ext(cover.Filename))
	if ext == "" {
		switch cover.ContentType {
		case "image/png":
			ext = ".png"
		default:
			ext = ".jpg"
		}
	}
	return "covers/" + id + ext
}
