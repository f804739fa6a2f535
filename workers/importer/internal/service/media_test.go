package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/ingest"
	obmocks "adimporter/shared/observability/mocks"
	"adimporter/shared/phash"
	"adimporter/shared/storage/adapters/fs"
	storagemocks "adimporter/shared/storage/mocks"
	storagetypes "adimporter/shared/storage/types"

	"adimporter/workers/importer/internal/domain"
	"adimporter/workers/importer/internal/limiter"
	"adimporter/workers/importer/mocks"
)

const (
	photoBucket = "photos"
	videoBucket = "videos"
)

type fixture struct {
	svc     *MediaService
	client  *mocks.MockHTTPClient
	store   *mocks.MockCreativeStore
	storage *fs.Storage
}

func newFixture(t *testing.T, store *mocks.MockCreativeStore) *fixture {
	t.Helper()

	logger := obmocks.NewPermissiveLogger()
	metrics := obmocks.NewPermissiveMetrics()

	storage, err := fs.NewStorage(t.TempDir(), logger, metrics)
	require.NoError(t, err)

	hasher, err := phash.New(phash.DefaultGrid)
	require.NoError(t, err)

	if store == nil {
		store = mocks.NewPermissiveCreativeStore()
	}
	client := &mocks.MockHTTPClient{}

	svc := NewMediaService(
		Config{PhotoBucket: photoBucket, VideoBucket: videoBucket, SkipExisting: true},
		client, storage, store, hasher, limiter.New(4), logger, metrics,
	)
	return &fixture{svc: svc, client: client, store: store, storage: storage}
}

func record(t *testing.T, js string) ingest.Record {
	t.Helper()
	recs, err := ingest.Normalize([]byte(js))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	return recs[0]
}

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			v := shade
			if x < 16 {
				v = 255 - shade
			}
			img.SetGray(x, y, color.Gray{Y: v})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func asset(url string, data []byte) *domain.Asset {
	return &domain.Asset{URL: url, Data: data, ContentType: "image/png"}
}

func TestMediaService_Process_Skips(t *testing.T) {
	t.Run("missing id", func(t *testing.T) {
		f := newFixture(t, nil)

		o := f.svc.Process(context.Background(), record(t, `{"snapshot":{"images":[{"original_image_url":"https://cdn/x.jpg"}]}}`))

		assert.Equal(t, domain.StatusSkipped, o.Status)
		assert.Equal(t, domain.ReasonMissingID, o.Reason)
		f.client.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
	})

	t.Run("already in db", func(t *testing.T) {
		store := &mocks.MockCreativeStore{}
		store.On("Exists", mock.Anything, "42").Return(true, nil)
		f := newFixture(t, store)

		o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"42","image_url":"https://cdn/x.jpg"}`))

		assert.Equal(t, domain.StatusSkipped, o.Status)
		assert.Equal(t, domain.ReasonAlreadyInDB, o.Reason)
		store.AssertNotCalled(t, "UpsertCreative", mock.Anything, mock.Anything)
	})

	t.Run("unknown type", func(t *testing.T) {
		f := newFixture(t, nil)

		o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"7","snapshot":{"title":"text only"}}`))

		assert.Equal(t, domain.StatusSkipped, o.Status)
		assert.Equal(t, creative.TypeUnknown, o.CreativeType)
		assert.Equal(t, domain.ReasonUnknownType, o.Reason)
	})

	t.Run("no photo could be saved", func(t *testing.T) {
		f := newFixture(t, nil)
		f.client.On("Download", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

		o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"8","snapshot":{
			"images":[{"original_image_url":"https://cdn/main.jpg"}],
			"cards":[{"original_image_url":"https://cdn/c0.jpg"}]}}`))

		assert.Equal(t, domain.StatusSkipped, o.Status)
		assert.Equal(t, domain.ReasonNoPhotos, o.Reason)
		assert.Contains(t, o.Error, "DOWNLOAD_FAILED")
		f.store.AssertNotCalled(t, "UpsertCreative", mock.Anything, mock.Anything)
	})
}

func TestMediaService_Process_Photo(t *testing.T) {
	f := newFixture(t, nil)
	main := pngBytes(t, 10)
	f.client.On("Download", mock.Anything, "https://cdn/main.jpg").Return(asset("https://cdn/main.jpg", main), nil).Once()
	f.client.On("Download", mock.Anything, "https://cdn/c0.jpg").Return(asset("https://cdn/c0.jpg", pngBytes(t, 20)), nil).Once()
	f.client.On("Download", mock.Anything, "https://cdn/c1.jpg").Return(asset("https://cdn/c1.jpg", pngBytes(t, 30)), nil).Once()

	rec := record(t, `{"ad_archive_id":"100","page_name":"Acme","snapshot":{
		"title":"Spring sale",
		"body":{"text":"Everything, 20% off"},
		"images":[{"original_image_url":"https://cdn/main.jpg"}],
		"cards":[
			{"title":"first","original_image_url":"https://cdn/c0.jpg"},
			{"title":"second","resized_image_url":"https://cdn/c1.jpg"}
		]}}`)

	o := f.svc.Process(context.Background(), rec)

	require.Equal(t, domain.StatusOK, o.Status, o.Error)
	assert.Equal(t, creative.TypePhoto, o.CreativeType)
	assert.Equal(t, "photos/100/main.jpg", o.PrimaryPath)
	assert.Equal(t, "photos/100/cards/", o.SecondaryPath)
	assert.Equal(t, 2, o.SubAssetCount)
	assert.Empty(t, o.Error)
	assert.Len(t, o.PHash, 16)

	for _, key := range []string{"100/main.jpg", "100/cards/0.jpg", "100/cards/1.jpg"} {
		ok, err := f.storage.Exists(context.Background(), photoBucket, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
	meta, err := f.storage.Metadata(photoBucket, "100/main.jpg")
	require.NoError(t, err)
	assert.Equal(t, "image/png", meta.ContentType)
	assert.Equal(t, int64(len(main)), meta.ContentLength)

	f.store.AssertNumberOfCalls(t, "UpsertCard", 2)
	rows := f.store.UpsertedCreatives()
	require.Len(t, rows, 1)
	assert.Equal(t, "Acme", rows[0].PageName)
	assert.Equal(t, "Everything, 20% off", rows[0].Body)
	assert.Equal(t, 2, rows[0].CardsSaved)
	assert.True(t, rows[0].PHash.Valid)
	assert.Contains(t, string(rows[0].Raw), `"ad_archive_id":"100"`)
}

func TestMediaService_Process_ReusesStoredAssets(t *testing.T) {
	f := newFixture(t, nil)
	main := pngBytes(t, 40)
	require.NoError(t, f.storage.Put(context.Background(), photoBucket, "200/main.jpg", bytes.NewReader(main), storagetypes.ObjectMetadata{}))

	o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"200","image_url":"https://cdn/main.jpg"}`))

	require.Equal(t, domain.StatusOK, o.Status)
	assert.Equal(t, "photos/200/main.jpg", o.PrimaryPath)
	f.client.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)

	hasher, err := phash.New(phash.DefaultGrid)
	require.NoError(t, err)
	want, err := hasher.HashBytes(main)
	require.NoError(t, err)
	assert.Equal(t, want, o.PHash)
}

func TestMediaService_Process_PrunesStaleCards(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	for i := range 4 {
		require.NoError(t, f.storage.Put(ctx, photoBucket, creative.CardImageKey("250", i), bytes.NewReader(pngBytes(t, uint8(i))), storagetypes.ObjectMetadata{}))
	}
	f.client.On("Download", mock.Anything, mock.Anything).Return(nil, errors.New("unused")).Maybe()

	o := f.svc.Process(ctx, record(t, `{"ad_archive_id":"250","snapshot":{"cards":[
		{"original_image_url":"https://cdn/c0.jpg"},
		{"original_image_url":"https://cdn/c1.jpg"}]}}`))

	require.Equal(t, domain.StatusOK, o.Status, o.Error)
	assert.Equal(t, 2, o.SubAssetCount)

	objects, err := f.storage.List(ctx, photoBucket, creative.CardPrefix("250"))
	require.NoError(t, err)
	var keys []string
	for _, obj := range objects {
		keys = append(keys, obj.Key)
	}
	assert.ElementsMatch(t, []string{"250/cards/0.jpg", "250/cards/1.jpg"}, keys)
	f.store.AssertCalled(t, "PruneCards", mock.Anything, "250", 2)
	f.client.AssertNotCalled(t, "Download", mock.Anything, mock.Anything)
}

func TestMediaService_Process_PartialPhoto(t *testing.T) {
	f := newFixture(t, nil)
	f.client.On("Download", mock.Anything, "https://cdn/c0.jpg").Return(nil, errors.New("unexpected status code: 404")).Once()
	f.client.On("Download", mock.Anything, "https://cdn/c1.jpg").Return(asset("https://cdn/c1.jpg", pngBytes(t, 50)), nil).Once()

	o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"300","snapshot":{"cards":[
		{"original_image_url":"https://cdn/c0.jpg"},
		{"original_image_url":"https://cdn/c1.jpg"},
		{"original_image_url":"ftp://cdn/c2.jpg"}]}}`))

	require.Equal(t, domain.StatusOK, o.Status)
	assert.Empty(t, o.PrimaryPath)
	assert.Equal(t, 1, o.SubAssetCount)
	assert.Contains(t, o.Error, "card 0")
	assert.Contains(t, o.Error, "card 2")
	assert.Contains(t, o.Error, "INVALID_URL")
	// the first saved card stands in for the missing main image
	assert.NotEmpty(t, o.PHash)
	f.client.AssertNotCalled(t, "Download", mock.Anything, "ftp://cdn/c2.jpg")
}

func TestMediaService_Process_Video(t *testing.T) {
	f := newFixture(t, nil)
	f.client.On("Download", mock.Anything, "https://cdn/v.mp4").Return(nil, context.DeadlineExceeded).Once()
	f.client.On("Download", mock.Anything, "https://cdn/p.jpg").Return(asset("https://cdn/p.jpg", pngBytes(t, 60)), nil).Once()

	o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"400","snapshot":{"videos":[
		{"video_hd_url":"https://cdn/v.mp4","video_preview_image_url":"https://cdn/p.jpg"}]}}`))

	require.Equal(t, domain.StatusOK, o.Status)
	assert.Equal(t, creative.TypeVideo, o.CreativeType)
	assert.Empty(t, o.PrimaryPath)
	assert.Equal(t, "videos/400/preview.jpg", o.PreviewPath)
	assert.Contains(t, o.Error, "video download failed")

	rows := f.store.UpsertedCreatives()
	require.Len(t, rows, 1)
	assert.Empty(t, rows[0].VideoPath)
	assert.Equal(t, "videos/400/preview.jpg", rows[0].PreviewPath)
}

func TestMediaService_Process_UpsertFailure(t *testing.T) {
	store := &mocks.MockCreativeStore{}
	store.On("Exists", mock.Anything, "500").Return(false, nil)
	store.On("UpsertCreative", mock.Anything, mock.Anything).Return(errors.New("connection reset by peer"))
	f := newFixture(t, store)
	f.client.On("Download", mock.Anything, "https://cdn/v.mp4").Return(&domain.Asset{Data: []byte("mp4")}, nil)

	o := f.svc.Process(context.Background(), record(t, `{"ad_archive_id":"500","video_url":"https://cdn/v.mp4"}`))

	assert.Equal(t, domain.StatusFailed, o.Status)
	assert.Equal(t, domain.ReasonUpsertFailed, o.Reason)
	assert.True(t, strings.HasPrefix(o.Error, "UPSERT_FAILED"))
	assert.Equal(t, "videos/500/video.mp4", o.PrimaryPath)

	meta, err := f.storage.Metadata(videoBucket, "500/video.mp4")
	require.NoError(t, err)
	assert.Equal(t, "video/mp4", meta.ContentType)
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		url     string
		wantErr bool
	}{
		{"https://cdn.example.com/a.jpg", false},
		{"http://cdn.example.com/a.jpg", false},
		{"", true},
		{"ftp://cdn.example.com/a.jpg", true},
		{"data:image/png;base64,AAAA", true},
		{"://broken", true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := validateURL(tt.url)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, domain.ErrCodeInvalidURL, domain.CodeOf(err))
		})
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{context.DeadlineExceeded, "timeout"},
		{storagetypes.ErrObjectNotFound, "not_found"},
		{errors.New("dial tcp: connection refused"), "connection"},
		{errors.New("unexpected status code: 403"), "forbidden"},
		{errors.New("unexpected status code: 502 server"), "server_error"},
		{errors.New("boom"), "unknown"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, categorizeError(tt.err), tt.err.Error())
	}
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "image/webp", contentTypeFor("image/webp; charset=binary", kindCard))
	assert.Equal(t, "image/jpeg", contentTypeFor("application/octet-stream", kindMainImage))
	assert.Equal(t, "video/mp4", contentTypeFor("", kindVideo))
}

func TestMediaService_Process_StorageUnavailable(t *testing.T) {
	storage := &storagemocks.MockObjectStorage{}
	storage.On("Exists", mock.Anything, photoBucket, "600/main.jpg").Return(false, errors.New("i/o timeout"))
	storage.On("Put", mock.Anything, photoBucket, "600/main.jpg", mock.Anything, mock.Anything).Return(errors.New("access denied"))

	client := &mocks.MockHTTPClient{}
	client.On("Download", mock.Anything, "https://cdn/m.jpg").Return(asset("https://cdn/m.jpg", pngBytes(t, 10)), nil).Once()
	store := mocks.NewPermissiveCreativeStore()

	svc := NewMediaService(
		Config{PhotoBucket: photoBucket, VideoBucket: videoBucket},
		client, storage, store, nil, limiter.New(2),
		obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics(),
	)

	o := svc.Process(context.Background(), record(t, `{"ad_archive_id":"600","snapshot":{"images":[{"original_image_url":"https://cdn/m.jpg"}]}}`))

	assert.Equal(t, domain.StatusSkipped, o.Status)
	assert.Equal(t, domain.ReasonNoPhotos, o.Reason)
	assert.Contains(t, o.Error, "UPLOAD_FAILED: main_image upload failed")
	assert.Empty(t, store.UpsertedCreatives())
	storage.AssertExpectations(t)
	client.AssertExpectations(t)
}
