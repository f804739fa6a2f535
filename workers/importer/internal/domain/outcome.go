package domain

import (
	"strconv"

	"adimporter/shared/domain/entity/creative"
)

// Status is the per-record result.
type Status string

const (
	StatusOK      Status = "ok"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Reason codes written to the report.
const (
	ReasonMissingID     = "no_ad_archive_id"
	ReasonAlreadyInDB   = "already_in_db"
	ReasonUnknownType   = "unknown_type"
	ReasonNoPhotos      = "no_photos"
	ReasonTimeout       = "timeout"
	ReasonUpsertFailed  = "upsert_failed"
	ReasonInternalError = "internal_error"
)

// Outcome is the result of importing one record. Paths are "<bucket>/<key>".
type Outcome struct {
	ID            string
	Status        Status
	CreativeType  creative.Type
	Reason        string
	PrimaryPath   string
	SecondaryPath string
	PreviewPath   string
	SubAssetCount int
	Error         string
	PHash         string
}

// ReportHeader is the CSV header of the import report.
var ReportHeader = []string{
	"id", "status", "creative_type", "reason",
	"primary_path", "secondary_path", "preview_path",
	"sub_asset_count", "error",
}

// Columns renders the outcome in ReportHeader order.
func (o Outcome) Columns() []string {
	return []string{
		o.ID,
		string(o.Status),
		string(o.CreativeType),
		o.Reason,
		o.PrimaryPath,
		o.SecondaryPath,
		o.PreviewPath,
		strconv.Itoa(o.SubAssetCount),
		o.Error,
	}
}

// Skipped builds a skipped outcome.
func Skipped(id string, kind creative.Type, reason string) Outcome {
	return Outcome{ID: id, Status: StatusSkipped, CreativeType: kind, Reason: reason}
}

// Failed builds a failed outcome carrying err's text.
func Failed(id string, kind creative.Type, reason string, err error) Outcome {
	o := Outcome{ID: id, Status: StatusFailed, CreativeType: kind, Reason: reason}
	if err != nil {
		o.Error = err.Error()
	}
	return o
}
