package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"

	"adimporter/shared/database"
	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/observability"
)

const (
	creativesTable = "ad_creatives"
	cardsTable     = "ad_creative_cards"
)

// CreativeRepository stores creative metadata rows and their cards.
// Every write is an upsert keyed by the creative id, so concurrent or
// repeated imports of the same creative overwrite instead of duplicating.
type CreativeRepository struct {
	baseRepository
}

// NewCreativeRepository creates a CreativeRepository.
func NewCreativeRepository(db database.Database, logger observability.Logger, metrics observability.Metrics) *CreativeRepository {
	return &CreativeRepository{baseRepository: newBaseRepository(db, logger, metrics, creativesTable)}
}

// Exists reports whether a row for id is already stored.
func (r *CreativeRepository) Exists(ctx context.Context, id string) (bool, error) {
	start := time.Now()
	query, args, err := existsQuery(r.qb, id).ToSql()
	if err != nil {
		return false, fmt.Errorf("build query: %w", err)
	}

	var one int
	err = r.db.Get(ctx, &one, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		r.observe("exists", start, nil)
		return false, nil
	}
	r.observe("exists", start, err)
	if err != nil {
		return false, fmt.Errorf("check creative %s: %w", id, err)
	}
	return true, nil
}

// UpsertCreative inserts or overwrites the metadata row of a creative.
func (r *CreativeRepository) UpsertCreative(ctx context.Context, row *creative.Row) error {
	start := time.Now()
	query, args, err := upsertCreativeQuery(r.qb, row).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = r.db.Execute(ctx, query, args...)
	r.observe("upsert", start, err)
	if err != nil {
		r.logger.Error(ctx, "Failed to upsert creative", err, observability.Fields{"ad_archive_id": row.AdArchiveID})
		return fmt.Errorf("upsert creative %s: %w", row.AdArchiveID, err)
	}
	return nil
}

// UpsertCard inserts or overwrites one card row keyed by (creative id, card index).
func (r *CreativeRepository) UpsertCard(ctx context.Context, row *creative.CardRow) error {
	start := time.Now()
	query, args, err := upsertCardQuery(r.qb, row).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = r.db.Execute(ctx, query, args...)
	r.observe("upsert_card", start, err)
	if err != nil {
		return fmt.Errorf("upsert card %s/%d: %w", row.AdArchiveID, row.CardIndex, err)
	}
	return nil
}

// PruneCards deletes the card rows of id whose index is keep or higher.
func (r *CreativeRepository) PruneCards(ctx context.Context, id string, keep int) error {
	start := time.Now()
	query, args, err := pruneCardsQuery(r.qb, id, keep).ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}

	_, err = r.db.Execute(ctx, query, args...)
	r.observe("prune_cards", start, err)
	if err != nil {
		return fmt.Errorf("prune cards %s: %w", id, err)
	}
	return nil
}

// ListHashes returns every creative that has a perceptual hash.
func (r *CreativeRepository) ListHashes(ctx context.Context) ([]creative.HashedCreative, error) {
	start := time.Now()
	query, args, err := listHashesQuery(r.qb).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var out []creative.HashedCreative
	err = r.db.Select(ctx, &out, query, args...)
	r.observe("list_hashes", start, err)
	if err != nil {
		return nil, fmt.Errorf("list hashes: %w", err)
	}
	return out, nil
}

func existsQuery(qb squirrel.StatementBuilderType, id string) squirrel.SelectBuilder {
	return qb.Select("1").
		From(creativesTable).
		Where(squirrel.Eq{"ad_archive_id": id}).
		Limit(1)
}

func upsertCreativeQuery(qb squirrel.StatementBuilderType, row *creative.Row) squirrel.InsertBuilder {
	raw := interface{}(nil)
	if len(row.Raw) > 0 {
		raw = string(row.Raw)
	}
	phash := interface{}(nil)
	if row.PHash.Valid {
		phash = row.PHash.String
	}

	return qb.Insert(creativesTable).
		Columns(
			"ad_archive_id", "page_id", "page_name", "creative_type",
			"title", "body", "link_url", "cta_text", "display_format",
			"main_image_path", "video_path", "preview_path", "cards_saved",
			"phash", "raw", "imported_at", "updated_at",
		).
		Values(
			row.AdArchiveID, row.PageID, row.PageName, string(row.CreativeType),
			row.Title, row.Body, row.LinkURL, row.CTAText, row.DisplayFormat,
			row.MainImagePath, row.VideoPath, row.PreviewPath, row.CardsSaved,
			phash, raw, row.ImportedAt, row.UpdatedAt,
		).
		// imported_at keeps the first import; a missing hash never erases a stored one
		Suffix(`ON CONFLICT (ad_archive_id) DO UPDATE SET
			page_id = EXCLUDED.page_id,
			page_name = EXCLUDED.page_name,
			creative_type = EXCLUDED.creative_type,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			link_url = EXCLUDED.link_url,
			cta_text = EXCLUDED.cta_text,
			display_format = EXCLUDED.display_format,
			main_image_path = EXCLUDED.main_image_path,
			video_path = EXCLUDED.video_path,
			preview_path = EXCLUDED.preview_path,
			cards_saved = EXCLUDED.cards_saved,
			phash = COALESCE(EXCLUDED.phash, ad_creatives.phash),
			raw = EXCLUDED.raw,
			updated_at = EXCLUDED.updated_at`)
}

func upsertCardQuery(qb squirrel.StatementBuilderType, row *creative.CardRow) squirrel.InsertBuilder {
	return qb.Insert(cardsTable).
		Columns("ad_archive_id", "card_index", "image_path", "title", "body", "link_url", "updated_at").
		Values(row.AdArchiveID, row.CardIndex, row.ImagePath, row.Title, row.Body, row.LinkURL, row.UpdatedAt).
		Suffix(`ON CONFLICT (ad_archive_id, card_index) DO UPDATE SET
			image_path = EXCLUDED.image_path,
			title = EXCLUDED.title,
			body = EXCLUDED.body,
			link_url = EXCLUDED.link_url,
			updated_at = EXCLUDED.updated_at`)
}

func pruneCardsQuery(qb squirrel.StatementBuilderType, id string, keep int) squirrel.DeleteBuilder {
	return qb.Delete(cardsTable).
		Where(squirrel.Eq{"ad_archive_id": id}).
		Where(squirrel.GtOrEq{"card_index": keep})
}

func listHashesQuery(qb squirrel.StatementBuilderType) squirrel.SelectBuilder {
	return qb.Select("ad_archive_id", "phash").
		From(creativesTable).
		Where(squirrel.NotEq{"phash": nil}).
		OrderBy("ad_archive_id")
}
