package repository

import (
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adimporter/shared/domain/entity/creative"
	"adimporter/shared/domain/entity/job"
)

func TestUpsertCreativeQuery(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	row := &creative.Row{
		AdArchiveID:  "123",
		CreativeType: creative.TypePhoto,
		CardsSaved:   2,
		Raw:          json.RawMessage(`{"ad_archive_id":"123"}`),
		ImportedAt:   now,
		UpdatedAt:    now,
	}

	query, args, err := upsertCreativeQuery(statementBuilder(), row).ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "INSERT INTO ad_creatives (ad_archive_id,"))
	assert.Contains(t, query, "ON CONFLICT (ad_archive_id) DO UPDATE SET")
	assert.Contains(t, query, "phash = COALESCE(EXCLUDED.phash, ad_creatives.phash)")
	assert.NotContains(t, query, "imported_at = EXCLUDED")
	assert.Contains(t, query, "$17")
	require.Len(t, args, 17)
	assert.Equal(t, "123", args[0])
	assert.Equal(t, "photo", args[3])
	assert.Nil(t, args[13], "absent hash is sent as NULL")
	assert.Equal(t, `{"ad_archive_id":"123"}`, args[14])
}

func TestUpsertCreativeQuery_WithHash(t *testing.T) {
	row := &creative.Row{AdArchiveID: "1", PHash: sql.NullString{String: "ffee", Valid: true}}

	_, args, err := upsertCreativeQuery(statementBuilder(), row).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "ffee", args[13])
	assert.Nil(t, args[14])
}

func TestUpsertCardQuery(t *testing.T) {
	query, args, err := upsertCardQuery(statementBuilder(), &creative.CardRow{AdArchiveID: "9", CardIndex: 1}).ToSql()
	require.NoError(t, err)

	assert.Contains(t, query, "INSERT INTO ad_creative_cards")
	assert.Contains(t, query, "ON CONFLICT (ad_archive_id, card_index) DO UPDATE SET")
	assert.Equal(t, "9", args[0])
	assert.Equal(t, 1, args[1])
}

func TestPruneCardsQuery(t *testing.T) {
	query, args, err := pruneCardsQuery(statementBuilder(), "9", 2).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "DELETE FROM ad_creative_cards WHERE ad_archive_id = $1 AND card_index >= $2", query)
	assert.Equal(t, []interface{}{"9", 2}, args)
}

func TestExistsAndListQueries(t *testing.T) {
	query, args, err := existsQuery(statementBuilder(), "77").ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1 FROM ad_creatives WHERE ad_archive_id = $1 LIMIT 1", query)
	assert.Equal(t, []interface{}{"77"}, args)

	query, _, err = listHashesQuery(statementBuilder()).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "SELECT ad_archive_id, phash FROM ad_creatives WHERE phash IS NOT NULL ORDER BY ad_archive_id", query)
}

func TestJobQueries(t *testing.T) {
	query, _, err := selectJobQuery(statementBuilder(), "j1", true).ToSql()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(query, "WHERE id = $1 FOR UPDATE"))

	j := job.New("j1", 5, time.Now())
	j.Events["count"] = json.RawMessage(`{"total":5}`)
	q, err := updateJobQuery(statementBuilder(), j)
	require.NoError(t, err)
	query, args, err := q.ToSql()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(query, "UPDATE import_jobs SET status = $1"))
	assert.NotContains(t, query, "SET id =")
	assert.True(t, strings.HasSuffix(query, "WHERE id = $17"))
	assert.Equal(t, "queued", args[0])
	assert.Equal(t, "j1", args[len(args)-1])
	assert.JSONEq(t, `{"count":{"total":5}}`, string(args[10].([]byte)))
}

func TestJobQueries_InvalidEvents(t *testing.T) {
	j := job.New("j2", 1, time.Now())
	j.Events["count"] = json.RawMessage(`{"total":`)

	_, err := jobValues(j)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "encode events of job j2")

	_, err = updateJobQuery(statementBuilder(), j)
	require.Error(t, err)
}
