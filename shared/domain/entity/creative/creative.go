// Package creative projects raw ad-library records onto the fields the
// importer needs: media descriptors, display text and storage layout.
package creative

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Image is one image descriptor of a snapshot.
type Image struct {
	OriginalImageURL string `json:"original_image_url"`
	ResizedImageURL  string `json:"resized_image_url"`
}

// URL prefers the original rendition.
func (i Image) URL() string {
	return firstNonBlank(i.OriginalImageURL, i.ResizedImageURL)
}

// Video is one video descriptor of a snapshot.
type Video struct {
	VideoHDURL           string `json:"video_hd_url"`
	VideoSDURL           string `json:"video_sd_url"`
	VideoPreviewImageURL string `json:"video_preview_image_url"`
}

// URL prefers the HD rendition.
func (v Video) URL() string {
	return firstNonBlank(v.VideoHDURL, v.VideoSDURL)
}

// Card is one carousel item.
type Card struct {
	Title                Text   `json:"title"`
	Body                 Text   `json:"body"`
	LinkURL              string `json:"link_url"`
	OriginalImageURL     string `json:"original_image_url"`
	ResizedImageURL      string `json:"resized_image_url"`
	VideoHDURL           string `json:"video_hd_url"`
	VideoSDURL           string `json:"video_sd_url"`
	VideoPreviewImageURL string `json:"video_preview_image_url"`
}

// ImageURL prefers the original rendition.
func (c Card) ImageURL() string {
	return firstNonBlank(c.OriginalImageURL, c.ResizedImageURL)
}

// VideoURL prefers the HD rendition.
func (c Card) VideoURL() string {
	return firstNonBlank(c.VideoHDURL, c.VideoSDURL)
}

// Snapshot is the rendered state of an ad at scrape time.
type Snapshot struct {
	Title         Text    `json:"title"`
	Body          Text    `json:"body"`
	LinkURL       string  `json:"link_url"`
	DisplayFormat string  `json:"display_format"`
	CTAText       Text    `json:"cta_text"`
	Images        []Image `json:"images"`
	Videos        []Video `json:"videos"`
	Cards         []Card  `json:"cards"`
}

// Ad is the typed projection of a CreativeRecord.
type Ad struct {
	ID       string   `json:"-"`
	PageID   Text     `json:"page_id"`
	PageName Text     `json:"page_name"`
	ImageURL string   `json:"image_url"`
	VideoURL string   `json:"video_url"`
	Snapshot Snapshot `json:"snapshot"`
}

// FromRecord projects a raw record onto an Ad. The record itself is never
// mutated.
func FromRecord(id string, record map[string]any) (*Ad, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}

	var ad Ad
	if err := json.Unmarshal(data, &ad); err != nil {
		return nil, fmt.Errorf("failed to project record: %w", err)
	}
	ad.ID = id
	return &ad, nil
}

// Classify decides the creative type. Any video descriptor wins over images.
func (a *Ad) Classify() Type {
	if a.HasVideoDescriptor() {
		return TypeVideo
	}
	if a.MainImageURL() != "" {
		return TypePhoto
	}
	for _, card := range a.Snapshot.Cards {
		if card.ImageURL() != "" {
			return TypePhoto
		}
	}
	return TypeUnknown
}

// MainImageURL returns the first snapshot image, falling back to the
// top-level image_url.
func (a *Ad) MainImageURL() string {
	for _, img := range a.Snapshot.Images {
		if u := img.URL(); u != "" {
			return u
		}
	}
	return strings.TrimSpace(a.ImageURL)
}

// PrimaryVideoURL returns the first playable video of the snapshot, the
// top-level video_url, or the first card video, in that order.
func (a *Ad) PrimaryVideoURL() string {
	for _, v := range a.Snapshot.Videos {
		if u := v.URL(); u != "" {
			return u
		}
	}
	if u := strings.TrimSpace(a.VideoURL); u != "" {
		return u
	}
	for _, card := range a.Snapshot.Cards {
		if u := card.VideoURL(); u != "" {
			return u
		}
	}
	return ""
}

// PreviewURL returns the preview frame of the primary video, if any.
func (a *Ad) PreviewURL() string {
	for _, v := range a.Snapshot.Videos {
		if u := strings.TrimSpace(v.VideoPreviewImageURL); u != "" {
			return u
		}
	}
	for _, card := range a.Snapshot.Cards {
		if u := strings.TrimSpace(card.VideoPreviewImageURL); u != "" {
			return u
		}
	}
	return ""
}

// HasVideoDescriptor reports whether the ad declares a video at all, even
// one whose only resolvable asset is the preview frame.
func (a *Ad) HasVideoDescriptor() bool {
	return a.PrimaryVideoURL() != "" || a.PreviewURL() != ""
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
