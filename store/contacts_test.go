package store

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func testRecord(remoteID string) Contact {
	return Contact{
		ID:           uuid.NewString(),
		RemoteID:     remoteID,
		OwnerID:      testOwner,
		FirstName:    "Ada",
		LastName:     "Lovelace",
		Email:        remoteID + "@example.com",
		LastSyncedAt: time.Now().UTC(),
	}
}

func TestUpsertBatchInsertThenUpdate(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	rec := testRecord("101")

	written, failed := db.UpsertBatch(ctx, []Contact{rec}, BatchOnly, false)
	require.Equal(t, 1, written)
	require.Zero(t, failed)

	got, err := db.GetContact(ctx, testOwner, "101")
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "Ada", got.FirstName)

	// an update keyed on (remote_id, owner_id) must not touch the primary key
	update := rec
	update.ID = uuid.NewString()
	update.FirstName = "Grace"

	written, failed = db.UpsertBatch(ctx, []Contact{update}, BatchOnly, false)
	require.Equal(t, 1, written)
	require.Zero(t, failed)

	got, err = db.GetContact(ctx, testOwner, "101")
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, "Grace", got.FirstName)

	count, err := db.CountContacts(ctx, testOwner)
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestUpsertBatchPreservesLocallyOwnedColumns(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	rec := testRecord("201")

	_, failed := db.UpsertBatch(ctx, []Contact{rec}, BatchOnly, false)
	require.Zero(t, failed)

	require.NoError(t, db.SetBusinessType(ctx, testOwner, "201", "SAB"))
	require.NoError(t, db.SetOutreachReady(ctx, testOwner, "201", true))

	// a later sync payload carries stale locally-owned values
	update := rec
	update.Email = "updated@example.com"
	update.BusinessType = ""
	update.OutreachReady = false

	_, failed = db.UpsertBatch(ctx, []Contact{update}, BatchOnly, false)
	require.Zero(t, failed)

	got, err := db.GetContact(ctx, testOwner, "201")
	require.NoError(t, err)
	require.Equal(t, "updated@example.com", got.Email)
	require.Equal(t, "SAB", got.BusinessType)
	require.True(t, got.OutreachReady)
}

func TestUpsertBatchDedupesWithinBatch(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	first := testRecord("301")
	second := first
	second.FirstName = "Later"

	written, failed := db.UpsertBatch(ctx, []Contact{first, second}, BatchOnly, false)
	require.Equal(t, 1, written)
	require.Zero(t, failed)

	got, err := db.GetContact(ctx, testOwner, "301")
	require.NoError(t, err)
	require.Equal(t, "Later", got.FirstName)
}

func TestUpsertBatchSpansSubBatches(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	var payloads []Contact
	for i := 0; i < 120; i++ {
		payloads = append(payloads, testRecord(fmt.Sprintf("4%03d", i)))
	}

	written, failed := db.UpsertBatch(ctx, payloads, BatchThenRow, false)
	require.Equal(t, 120, written)
	require.Zero(t, failed)

	count, err := db.CountContacts(ctx, testOwner)
	require.NoError(t, err)
	require.Equal(t, 120, count)
}

func TestUpsertBatchPartialFailure(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	// two distinct business keys sharing a primary key: the multi-row
	// insert fails as a whole, which only BatchThenRow can recover from
	good := testRecord("701")
	bad := testRecord("702")
	bad.ID = good.ID

	written, failed := db.UpsertBatch(ctx, []Contact{good, bad}, BatchOnly, false)
	require.Zero(t, written)
	require.Equal(t, 2, failed)

	written, failed = db.UpsertBatch(ctx, []Contact{good, bad}, BatchThenRow, false)
	require.Equal(t, 1, written)
	require.Equal(t, 1, failed)

	_, err := db.GetContact(ctx, testOwner, "701")
	require.NoError(t, err)

	_, err = db.GetContact(ctx, testOwner, "702")
	require.Error(t, err)
}

func TestLoadContactsProfiles(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	rec := testRecord("501")
	rec.BusinessType = "Consultant"

	_, failed := db.UpsertBatch(ctx, []Contact{rec, testRecord("502")}, BatchOnly, false)
	require.Zero(t, failed)

	full, err := db.LoadContacts(ctx, testOwner, LoadFull)
	require.NoError(t, err)
	require.Len(t, full, 2)
	require.Equal(t, "Ada", full["501"].FirstName)
	require.Equal(t, "Consultant", full["501"].BusinessType)

	light, err := db.LoadContacts(ctx, testOwner, LoadLight)
	require.NoError(t, err)
	require.Len(t, light, 2)
	require.Empty(t, light["501"].FirstName)
	require.Equal(t, "501", light["501"].RemoteID)

	// records in other owner scopes are invisible
	other := testRecord("501")
	other.OwnerID = "999"

	_, failed = db.UpsertBatch(ctx, []Contact{other}, BatchOnly, false)
	require.Zero(t, failed)

	full, err = db.LoadContacts(ctx, testOwner, LoadFull)
	require.NoError(t, err)
	require.Len(t, full, 2)
}

func TestGetContactNotFound(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)

	_, err := db.GetContact(context.Background(), testOwner, "nope")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestMaxRemoteModifiedAt(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	_, found, err := db.MaxRemoteModifiedAt(ctx, testOwner)
	require.NoError(t, err)
	require.False(t, found)

	older := time.Date(2024, 3, 10, 8, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 15, 14, 32, 7, 0, time.UTC)

	a := testRecord("601")
	a.RemoteModifiedAt = &newer
	b := testRecord("602")
	b.RemoteModifiedAt = &older

	_, failed := db.UpsertBatch(ctx, []Contact{a, b}, BatchOnly, false)
	require.Zero(t, failed)

	max, found, err := db.MaxRemoteModifiedAt(ctx, testOwner)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, newer.Equal(max))
}
