package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/ingest"
	"adimporter/shared/observability/types"
	storagetypes "adimporter/shared/storage/types"

	"adimporter/workers/importer/internal/domain"
	"adimporter/workers/importer/internal/limiter"
)

// Config selects the target buckets and the idempotency mode.
type Config struct {
	PhotoBucket  string
	VideoBucket  string
	SkipExisting bool
}

// MediaService imports one creative record: it fetches the record's media,
// stores it under id-namespaced keys and upserts the metadata rows.
// Process never returns an error; every failure becomes part of the Outcome.
type MediaService struct {
	cfg     Config
	client  domain.HTTPClient
	storage storagetypes.ObjectStorage
	store   domain.CreativeStore
	hasher  domain.Hasher
	limiter *limiter.Limiter
	logger  types.Logger
	metrics types.Metrics
	now     func() time.Time
}

// NewMediaService creates a new media service. hasher may be nil, in which
// case no perceptual hash is stored.
func NewMediaService(
	cfg Config,
	client domain.HTTPClient,
	storage storagetypes.ObjectStorage,
	store domain.CreativeStore,
	hasher domain.Hasher,
	lim *limiter.Limiter,
	logger types.Logger,
	metrics types.Metrics,
) *MediaService {
	return &MediaService{
		cfg:     cfg,
		client:  client,
		storage: storage,
		store:   store,
		hasher:  hasher,
		limiter: lim,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Process imports rec and reports what happened.
func (s *MediaService) Process(ctx context.Context, rec ingest.Record) domain.Outcome {
	id := rec.ID()
	if id == "" {
		return domain.Skipped("", "", domain.ReasonMissingID)
	}

	if s.cfg.SkipExisting {
		exists, err := s.store.Exists(ctx, id)
		if err != nil {
			// the upsert below is idempotent, so carry on
			s.logger.Warn(ctx, "Idempotency check failed", types.Fields{"ad_id": id, "error": err.Error()})
		} else if exists {
			return domain.Skipped(id, "", domain.ReasonAlreadyInDB)
		}
	}

	ad, err := creative.FromRecord(id, rec)
	if err != nil {
		return domain.Failed(id, "", domain.ReasonInternalError, err)
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return domain.Failed(id, "", domain.ReasonInternalError, err)
	}

	switch kind := ad.Classify(); kind {
	case creative.TypePhoto:
		return s.importPhoto(ctx, ad, raw)
	case creative.TypeVideo:
		return s.importVideo(ctx, ad, raw)
	default:
		return domain.Skipped(id, creative.TypeUnknown, domain.ReasonUnknownType)
	}
}

func (s *MediaService) importPhoto(ctx context.Context, ad *creative.Ad, raw json.RawMessage) domain.Outcome {
	var (
		errs  assetErrors
		main  *storedAsset
		cards = make([]*storedAsset, len(ad.Snapshot.Cards))
		g     errgroup.Group
	)

	if mainURL := ad.MainImageURL(); mainURL != "" {
		g.Go(func() error {
			a, err := s.ensureAsset(ctx, s.cfg.PhotoBucket, creative.MainImageKey(ad.ID), mainURL, kindMainImage)
			if err != nil {
				errs.add(err)
				return nil
			}
			main = a
			return nil
		})
	}

	for i, card := range ad.Snapshot.Cards {
		cardURL := card.ImageURL()
		if cardURL == "" {
			continue
		}
		g.Go(func() error {
			a, err := s.ensureAsset(ctx, s.cfg.PhotoBucket, creative.CardImageKey(ad.ID, i), cardURL, kindCard)
			if err != nil {
				errs.add(fmt.Errorf("card %d: %w", i, err))
				return nil
			}
			row := &creative.CardRow{
				AdArchiveID: ad.ID,
				CardIndex:   i,
				ImagePath:   a.Path(),
				Title:       card.Title.String(),
				Body:        card.Body.String(),
				LinkURL:     card.LinkURL,
				UpdatedAt:   s.now(),
			}
			if err := s.store.UpsertCard(ctx, row); err != nil {
				errs.add(fmt.Errorf("card %d: %w", i, err))
				return nil
			}
			cards[i] = a
			return nil
		})
	}
	_ = g.Wait()

	saved := 0
	var firstCard *storedAsset
	for _, c := range cards {
		if c == nil {
			continue
		}
		if firstCard == nil {
			firstCard = c
		}
		saved++
	}

	if main == nil && saved == 0 {
		o := domain.Skipped(ad.ID, creative.TypePhoto, domain.ReasonNoPhotos)
		o.Error = errs.String()
		return o
	}

	s.pruneCards(ctx, ad.ID, len(ad.Snapshot.Cards))

	row := creative.NewRow(ad, creative.TypePhoto, raw, s.now())
	row.MainImagePath = main.Path()
	row.CardsSaved = saved

	primary := main
	if primary == nil {
		primary = firstCard
	}
	row.PHash = s.hash(ctx, ad.ID, primary)

	o := domain.Outcome{
		ID:            ad.ID,
		CreativeType:  creative.TypePhoto,
		PrimaryPath:   main.Path(),
		SubAssetCount: saved,
		PHash:         row.PHash.String,
	}
	if saved > 0 {
		o.SecondaryPath = s.cfg.PhotoBucket + "/" + ad.ID + "/cards/"
	}
	return s.finish(ctx, row, o, errs.String())
}

// pruneCards removes card objects and rows at index keep or above, left over
// from an earlier import of the same creative with more cards. Failures are
// logged; stale cards never fail the record.
func (s *MediaService) pruneCards(ctx context.Context, id string, keep int) {
	var objects []storagetypes.ObjectInfo
	err := s.limiter.Do(ctx, func(ctx context.Context) error {
		var err error
		objects, err = s.storage.List(ctx, s.cfg.PhotoBucket, creative.CardPrefix(id))
		return err
	})
	if err != nil {
		s.logger.Warn(ctx, "Failed to list stored cards", types.Fields{"ad_id": id, "error": err.Error()})
		return
	}

	pruned := 0
	for _, obj := range objects {
		index, ok := creative.CardIndex(id, obj.Key)
		if !ok || index < keep {
			continue
		}
		err := s.limiter.Do(ctx, func(ctx context.Context) error {
			return s.storage.Delete(ctx, s.cfg.PhotoBucket, obj.Key)
		})
		if err != nil {
			s.metrics.RecordError("prune_card", categorizeError(err))
			s.logger.Warn(ctx, "Failed to delete stale card", types.Fields{"key": obj.Key, "error": err.Error()})
			continue
		}
		pruned++
	}
	if pruned == 0 {
		return
	}

	if err := s.store.PruneCards(ctx, id, keep); err != nil {
		s.logger.Warn(ctx, "Failed to prune card rows", types.Fields{"ad_id": id, "error": err.Error()})
	}
	s.metrics.RecordSuccess("prune_card")
	s.logger.Debug(ctx, "Stale cards pruned", types.Fields{"ad_id": id, "pruned": pruned, "kept": keep})
}

func (s *MediaService) importVideo(ctx context.Context, ad *creative.Ad, raw json.RawMessage) domain.Outcome {
	var (
		errs           assetErrors
		video, preview *storedAsset
		g              errgroup.Group
	)

	if videoURL := ad.PrimaryVideoURL(); videoURL != "" {
		g.Go(func() error {
			a, err := s.ensureAsset(ctx, s.cfg.VideoBucket, creative.VideoKey(ad.ID), videoURL, kindVideo)
			if err != nil {
				errs.add(err)
				return nil
			}
			video = a
			return nil
		})
	}
	if previewURL := ad.PreviewURL(); previewURL != "" {
		g.Go(func() error {
			a, err := s.ensureAsset(ctx, s.cfg.VideoBucket, creative.PreviewKey(ad.ID), previewURL, kindPreview)
			if err != nil {
				errs.add(err)
				return nil
			}
			preview = a
			return nil
		})
	}
	_ = g.Wait()

	// partial media is acceptable; the row is written regardless
	row := creative.NewRow(ad, creative.TypeVideo, raw, s.now())
	row.VideoPath = video.Path()
	row.PreviewPath = preview.Path()
	row.PHash = s.hash(ctx, ad.ID, preview)

	o := domain.Outcome{
		ID:           ad.ID,
		CreativeType: creative.TypeVideo,
		PrimaryPath:  video.Path(),
		PreviewPath:  preview.Path(),
		PHash:        row.PHash.String,
	}
	return s.finish(ctx, row, o, errs.String())
}

// finish upserts the creative row and completes the outcome.
func (s *MediaService) finish(ctx context.Context, row *creative.Row, o domain.Outcome, assetErrs string) domain.Outcome {
	o.Error = assetErrs

	if err := s.store.UpsertCreative(ctx, row); err != nil {
		s.metrics.RecordError("upsert", categorizeError(err))
		s.logger.Error(ctx, "Failed to upsert creative", err, types.Fields{"ad_id": row.AdArchiveID})
		o.Status = domain.StatusFailed
		o.Reason = domain.ReasonUpsertFailed
		o.Error = joinMessages(assetErrs, domain.NewDomainError(domain.ErrCodeUpsertFailed, "Failed to upsert creative", err, true).Error())
		return o
	}
	s.metrics.RecordSuccess("upsert")

	o.Status = domain.StatusOK
	return o
}

// hash computes the perceptual hash of a. Failures are logged and yield a
// NULL hash.
func (s *MediaService) hash(ctx context.Context, id string, a *storedAsset) sql.NullString {
	if s.hasher == nil || a == nil {
		return sql.NullString{}
	}

	data, err := s.readBack(ctx, a)
	if err != nil {
		s.logger.Warn(ctx, "Failed to load asset for hashing", types.Fields{"ad_id": id, "error": err.Error()})
		return sql.NullString{}
	}

	digest, err := s.hasher.HashBytes(data)
	if err != nil {
		s.metrics.RecordError("phash", "decode")
		s.logger.Warn(ctx, "Failed to hash asset", types.Fields{"ad_id": id, "path": a.Path(), "error": err.Error()})
		return sql.NullString{}
	}
	s.metrics.RecordSuccess("phash")
	return sql.NullString{String: digest, Valid: true}
}

// assetErrors collects asset failures from concurrent fetches.
type assetErrors struct {
	mu   sync.Mutex
	msgs []string
}

func (e *assetErrors) add(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.msgs = append(e.msgs, err.Error())
}

func (e *assetErrors) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return strings.Join(e.msgs, "; ")
}

func joinMessages(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "; ")
}
