package scans

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/goodsin-backend/pkg/db/models"
	"github.com/angelmondragon/goodsin-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/goodsin-backend/pkg/errors"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func setupScansService(t *testing.T) (Service, *gorm.DB, *testClock) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:scans_"+uuid.NewString()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.DeliveryScan{}))

	clock := &testClock{now: time.Date(2026, 4, 10, 7, 0, 0, 0, time.UTC)}
	svc, err := NewService(NewRepository(db), clock.Now, 10*time.Minute)
	require.NoError(t, err)
	return svc, db, clock
}

func TestNewServiceRequiresRepository(t *testing.T) {
	_, err := NewService(nil, nil, 0)
	require.Error(t, err)
	assert.Nil(t, pkgerrors.As(err), "wiring errors are not API errors")
}

func TestRecordMatchedScan(t *testing.T) {
	svc, _, clock := setupScansService(t)
	deliveryID, itemID := uuid.New(), uuid.New()

	scan, err := svc.Record(context.Background(), RecordInput{
		DeliveryID:      deliveryID,
		ItemID:          &itemID,
		Barcode:         " 5012345678900 ",
		Quantity:        2,
		ScanType:        enums.ScanTypeCase,
		UnitsEquivalent: 24,
		ScannedBy:       "op-1",
		Device:          "tc52-03",
	})
	require.NoError(t, err)
	assert.NotZero(t, scan.ID)
	assert.True(t, scan.Matched)
	assert.Equal(t, "5012345678900", scan.Barcode)
	assert.True(t, scan.CreatedAt.Equal(clock.now))
	assert.Equal(t, "case", scan.Metadata[MetaScanType])
	assert.Equal(t, "tc52-03", scan.Metadata[MetaDevice])
}

func TestRecordUnmatchedScan(t *testing.T) {
	svc, db, _ := setupScansService(t)
	deliveryID := uuid.New()

	scan, err := svc.Record(context.Background(), RecordInput{
		DeliveryID: deliveryID,
		Barcode:    "999999",
		Quantity:   1,
		ScannedBy:  "op-1",
	})
	require.NoError(t, err)
	assert.False(t, scan.Matched)
	assert.Nil(t, scan.DeliveryItemID)

	var stored models.DeliveryScan
	require.NoError(t, db.First(&stored, scan.ID).Error)
	assert.False(t, stored.Matched)
	assert.Equal(t, "unknown", stored.Metadata[MetaScanType])
}

func TestRecordRejectsInvalidInput(t *testing.T) {
	svc, db, _ := setupScansService(t)
	cases := map[string]RecordInput{
		"no delivery":   {Barcode: "1", Quantity: 1, ScannedBy: "op"},
		"no barcode":    {DeliveryID: uuid.New(), Quantity: 1, ScannedBy: "op"},
		"zero quantity": {DeliveryID: uuid.New(), Barcode: "1", ScannedBy: "op"},
		"negative":      {DeliveryID: uuid.New(), Barcode: "1", Quantity: -3, ScannedBy: "op"},
		"no scanner":    {DeliveryID: uuid.New(), Barcode: "1", Quantity: 1},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Record(context.Background(), input)
			require.Error(t, err)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
		})
	}

	var count int64
	require.NoError(t, db.Model(&models.DeliveryScan{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, _, clock := setupScansService(t)
	ctx := context.Background()
	deliveryID, itemID := uuid.New(), uuid.New()

	for i := 0; i < 5; i++ {
		_, err := svc.Record(ctx, RecordInput{DeliveryID: deliveryID, ItemID: &itemID, Barcode: "111", Quantity: 1, ScannedBy: "op"})
		require.NoError(t, err)
		clock.now = clock.now.Add(time.Minute)
	}
	_, err := svc.Record(ctx, RecordInput{DeliveryID: deliveryID, Barcode: "999", Quantity: 1, ScannedBy: "op"})
	require.NoError(t, err)
	_, err = svc.Record(ctx, RecordInput{DeliveryID: uuid.New(), Barcode: "111", Quantity: 1, ScannedBy: "op"})
	require.NoError(t, err)

	page, err := svc.List(ctx, ListParams{DeliveryID: &deliveryID, ItemID: &itemID})
	require.NoError(t, err)
	assert.Len(t, page.Scans, 5)
	assert.Empty(t, page.NextCursor)

	unmatched := false
	page, err = svc.List(ctx, ListParams{DeliveryID: &deliveryID, Matched: &unmatched})
	require.NoError(t, err)
	require.Len(t, page.Scans, 1)
	assert.Equal(t, "999", page.Scans[0].Barcode)

	page, err = svc.List(ctx, ListParams{Barcode: "111"})
	require.NoError(t, err)
	assert.Len(t, page.Scans, 6)

	all, err := svc.List(ctx, ListParams{DeliveryID: &deliveryID})
	require.NoError(t, err)
	require.Len(t, all.Scans, 6)
	assert.Greater(t, all.Scans[0].ID, all.Scans[1].ID)
}

func TestListCursorPages(t *testing.T) {
	svc, _, _ := setupScansService(t)
	ctx := context.Background()
	deliveryID := uuid.New()
	for i := 0; i < 4; i++ {
		_, err := svc.Record(ctx, RecordInput{DeliveryID: deliveryID, Barcode: "1", Quantity: 1, ScannedBy: "op"})
		require.NoError(t, err)
	}

	params := ListParams{DeliveryID: &deliveryID}
	params.Limit = 3
	page, err := svc.List(ctx, params)
	require.NoError(t, err)
	require.Len(t, page.Scans, 3)
	require.NotEmpty(t, page.NextCursor)

	params.Cursor = page.NextCursor
	next, err := svc.List(ctx, params)
	require.NoError(t, err)
	require.Len(t, next.Scans, 1)
	assert.Less(t, next.Scans[0].ID, page.Scans[2].ID)
	assert.Empty(t, next.NextCursor)

	params.Cursor = "garbage"
	_, err = svc.List(ctx, params)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestListRecentWindow(t *testing.T) {
	svc, _, clock := setupScansService(t)
	ctx := context.Background()
	deliveryID := uuid.New()

	_, err := svc.Record(ctx, RecordInput{DeliveryID: deliveryID, Barcode: "old", Quantity: 1, ScannedBy: "op"})
	require.NoError(t, err)
	clock.now = clock.now.Add(30 * time.Minute)
	_, err = svc.Record(ctx, RecordInput{DeliveryID: deliveryID, Barcode: "new", Quantity: 1, ScannedBy: "op"})
	require.NoError(t, err)

	page, err := svc.List(ctx, ListParams{DeliveryID: &deliveryID, Recent: true})
	require.NoError(t, err)
	require.Len(t, page.Scans, 1)
	assert.Equal(t, "new", page.Scans[0].Barcode)
}

func TestSummarize(t *testing.T) {
	svc, _, clock := setupScansService(t)
	ctx := context.Background()
	deliveryID, itemID := uuid.New(), uuid.New()

	empty, err := svc.Summarize(ctx, deliveryID)
	require.NoError(t, err)
	assert.Zero(t, empty.Total)
	assert.Nil(t, empty.LastScan)

	_, err = svc.Record(ctx, RecordInput{DeliveryID: deliveryID, ItemID: &itemID, Barcode: "1", Quantity: 1, ScannedBy: "op"})
	require.NoError(t, err)
	clock.now = clock.now.Add(time.Minute)
	_, err = svc.Record(ctx, RecordInput{DeliveryID: deliveryID, Barcode: "2", Quantity: 1, ScannedBy: "op"})
	require.NoError(t, err)

	summary, err := svc.Summarize(ctx, deliveryID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.Total)
	assert.Equal(t, int64(1), summary.Matched)
	assert.Equal(t, int64(1), summary.Unmatched)
	require.NotNil(t, summary.LastScan)
	assert.True(t, summary.LastScan.Equal(clock.now))
}

func TestNewViewReadsMetadata(t *testing.T) {
	svc, db, _ := setupScansService(t)
	deliveryID, itemID := uuid.New(), uuid.New()

	_, err := svc.Record(context.Background(), RecordInput{
		DeliveryID:      deliveryID,
		ItemID:          &itemID,
		Barcode:         "OUTER-1",
		Quantity:        1,
		ScanType:        enums.ScanTypeCase,
		UnitsEquivalent: 12,
		ScannedBy:       "op-1",
	})
	require.NoError(t, err)

	// reload so metadata comes back through the JSON column
	var stored models.DeliveryScan
	require.NoError(t, db.First(&stored).Error)

	view := NewView(stored)
	assert.Equal(t, enums.ScanTypeCase, view.ScanType)
	assert.Equal(t, 12, view.UnitsEquivalent)
	assert.Equal(t, &itemID, view.DeliveryItemID)
	assert.Len(t, NewViews([]models.DeliveryScan{stored, stored}), 2)
}
