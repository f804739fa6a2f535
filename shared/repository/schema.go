package repository

import (
	"context"
	"fmt"

	"adimporter/shared/database"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ad_creatives (
		ad_archive_id   TEXT PRIMARY KEY,
		page_id         TEXT NOT NULL DEFAULT '',
		page_name       TEXT NOT NULL DEFAULT '',
		creative_type   TEXT NOT NULL,
		title           TEXT NOT NULL DEFAULT '',
		body            TEXT NOT NULL DEFAULT '',
		link_url        TEXT NOT NULL DEFAULT '',
		cta_text        TEXT NOT NULL DEFAULT '',
		display_format  TEXT NOT NULL DEFAULT '',
		main_image_path TEXT NOT NULL DEFAULT '',
		video_path      TEXT NOT NULL DEFAULT '',
		preview_path    TEXT NOT NULL DEFAULT '',
		cards_saved     INTEGER NOT NULL DEFAULT 0,
		phash           TEXT,
		raw             JSONB,
		imported_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS ad_creatives_phash_idx ON ad_creatives (phash) WHERE phash IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS ad_creative_cards (
		ad_archive_id TEXT NOT NULL,
		card_index    INTEGER NOT NULL,
		image_path    TEXT NOT NULL DEFAULT '',
		title         TEXT NOT NULL DEFAULT '',
		body          TEXT NOT NULL DEFAULT '',
		link_url      TEXT NOT NULL DEFAULT '',
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (ad_archive_id, card_index)
	)`,
	`CREATE TABLE IF NOT EXISTS import_jobs (
		id                TEXT PRIMARY KEY,
		status            TEXT NOT NULL,
		reason            TEXT NOT NULL DEFAULT '',
		pid               INTEGER NOT NULL DEFAULT 0,
		work_dir          TEXT NOT NULL DEFAULT '',
		report_path       TEXT NOT NULL DEFAULT '',
		stop_requested_at TIMESTAMPTZ,
		created_at        TIMESTAMPTZ NOT NULL,
		started_at        TIMESTAMPTZ,
		finished_at       TIMESTAMPTZ,
		updated_at        TIMESTAMPTZ NOT NULL,
		events            JSONB NOT NULL DEFAULT '{}',
		ok                INTEGER NOT NULL DEFAULT 0,
		skipped           INTEGER NOT NULL DEFAULT 0,
		failed            INTEGER NOT NULL DEFAULT 0,
		processed         INTEGER NOT NULL DEFAULT 0,
		total             INTEGER NOT NULL DEFAULT 0
	)`,
}

// EnsureSchema creates the pipeline tables when they are missing.
func EnsureSchema(ctx context.Context, db database.Database) error {
	for _, stmt := range schema {
		if _, err := db.Execute(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
