package creative

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Type is the media classification of a creative.
type Type string

const (
	TypePhoto   Type = "photo"
	TypeVideo   Type = "video"
	TypeUnknown Type = "unknown"
)

// Object keys are namespaced by creative id so reruns overwrite instead of
// duplicating.
func MainImageKey(id string) string { return id + "/main.jpg" }

// CardImageKey is the photo-bucket key of card index.
func CardImageKey(id string, index int) string { return fmt.Sprintf("%s%d.jpg", CardPrefix(id), index) }

// CardPrefix is the photo-bucket prefix holding every card of id.
func CardPrefix(id string) string { return id + "/cards/" }

// CardIndex parses the card index out of a key built by CardImageKey.
func CardIndex(id, key string) (int, bool) {
	name, ok := strings.CutPrefix(key, CardPrefix(id))
	if !ok {
		return 0, false
	}
	name, ok = strings.CutSuffix(name, ".jpg")
	if !ok {
		return 0, false
	}
	index, err := strconv.Atoi(name)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// VideoKey is the video-bucket key of the video file.
func VideoKey(id string) string { return id + "/video.mp4" }

// PreviewKey is the video-bucket key of the preview frame.
func PreviewKey(id string) string { return id + "/preview.jpg" }

// Row is one ad_creatives row.
type Row struct {
	AdArchiveID   string          `db:"ad_archive_id"`
	PageID        string          `db:"page_id"`
	PageName      string          `db:"page_name"`
	CreativeType  Type            `db:"creative_type"`
	Title         string          `db:"title"`
	Body          string          `db:"body"`
	LinkURL       string          `db:"link_url"`
	CTAText       string          `db:"cta_text"`
	DisplayFormat string          `db:"display_format"`
	MainImagePath string          `db:"main_image_path"`
	VideoPath     string          `db:"video_path"`
	PreviewPath   string          `db:"preview_path"`
	CardsSaved    int             `db:"cards_saved"`
	PHash         sql.NullString  `db:"phash"`
	Raw           json.RawMessage `db:"raw"`
	ImportedAt    time.Time       `db:"imported_at"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// CardRow is one ad_creative_cards row, keyed by (ad_archive_id, card_index).
type CardRow struct {
	AdArchiveID string    `db:"ad_archive_id"`
	CardIndex   int       `db:"card_index"`
	ImagePath   string    `db:"image_path"`
	Title       string    `db:"title"`
	Body        string    `db:"body"`
	LinkURL     string    `db:"link_url"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// HashedCreative pairs a creative id with its stored perceptual hash.
type HashedCreative struct {
	AdArchiveID string `db:"ad_archive_id"`
	PHash       string `db:"phash"`
}

// NewRow builds the metadata row for ad with the resolved storage paths.
func NewRow(ad *Ad, kind Type, raw json.RawMessage, now time.Time) *Row {
	return &Row{
		AdArchiveID:   ad.ID,
		PageID:        ad.PageID.String(),
		PageName:      ad.PageName.String(),
		CreativeType:  kind,
		Title:         ad.Snapshot.Title.String(),
		Body:          ad.Snapshot.Body.String(),
		LinkURL:       ad.Snapshot.LinkURL,
		CTAText:       ad.Snapshot.CTAText.String(),
		DisplayFormat: ad.Snapshot.DisplayFormat,
		Raw:           raw,
		ImportedAt:    now,
		UpdatedAt:     now,
	}
}
