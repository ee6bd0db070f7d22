package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"estate_sync/internal/domain"
)

type ImageStore struct {
	db *sqlx.DB
}

func NewImageStore(db *sqlx.DB) *ImageStore {
	return &ImageStore{db: db}
}

type imageRow struct {
	ListingID int64 `db:"listing_id"`
	domain.ListingImage
}

// ReplaceForListing deletes the listing's images and inserts images in
// their given order. Call it inside a transaction.
func (s *ImageStore) ReplaceForListing(ctx context.Context, listingID int64, images []domain.ListingImage) error {
	exec := GetExecutor(ctx, s.db)

	if _, err := exec.ExecContext(ctx, "DELETE FROM listing_images WHERE listing_id = $1", listingID); err != nil {
		return err
	}
	if len(images) == 0 {
		return nil
	}

	rows := make([]imageRow, len(images))
	for i, img := range images {
		img.Position = i
		rows[i] = imageRow{ListingID: listingID, ListingImage: img}
	}

	query := `
		INSERT INTO listing_images (
			listing_id, external_id, position, description, is_scheme,
			thumbnail_url, normal_url, original_url
		) VALUES (
			:listing_id, :external_id, :position, :description, :is_scheme,
			:thumbnail_url, :normal_url, :original_url
		)`

	_, err := sqlx.NamedExecContext(ctx, exec, query, rows)
	return err
}

func (s *ImageStore) ListForListing(ctx context.Context, listingID int64) ([]domain.ListingImage, error) {
	query := `
		SELECT external_id, position, description, is_scheme, thumbnail_url, normal_url, original_url
		FROM listing_images
		WHERE listing_id = $1
		ORDER BY position`

	var images []domain.ListingImage
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &images, query, listingID); err != nil {
		return nil, err
	}
	return images, nil
}
