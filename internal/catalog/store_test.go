package catalog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

func testCommunities() []Community {
	fee := 750.0
	return []Community{
		{ID: 1, Name: "Alder Place", CareLevel: CareAssistedLiving, MonthlyFee: 4200, ZIP: "14618",
			WaitlistStatus: "Available", WorksWithPlacement: true, WillingnessScore: 10, ContractRate: 0.9,
			ApartmentCategory: AptOneBedroom, Upfront: UpfrontCosts{Deposit: 1000, SecondPersonFee: &fee}},
		{ID: 2, Name: "Birch Court", CareLevel: CareMemoryCare, MonthlyFee: 6100, ZIP: "14534",
			WaitlistStatus: "1-3 months", AvailabilityScore: 45, ApartmentCategory: AptStudio},
		{ID: 3, Name: "Cedar Run", CareLevel: CareAssistedLiving, MonthlyFee: 3900, ZIP: "14626",
			WaitlistStatus: "Unconfirmed", AvailabilityScore: 99, ApartmentCategory: AptUnknown},
	}
}

func TestStoreSnapshotIsolation(t *testing.T) {
	store := NewFromCommunities(testCommunities(), zap.NewNop())

	before := store.Snapshot()
	require.Equal(t, 3, before.Len())

	_, err := store.Upsert(4, map[string]string{
		ColCareLevel:  CareIndependentLiving,
		ColMonthlyFee: "2800",
	})
	require.NoError(t, err)

	// The earlier snapshot must not see the mutation.
	assert.Equal(t, 3, before.Len())
	assert.Equal(t, 4, store.Snapshot().Len())
}

func TestStoreUpsertRenormalizes(t *testing.T) {
	store := NewFromCommunities(testCommunities(), zap.NewNop())

	c, err := store.Upsert(2, map[string]string{ColWaitlist: "Available"})
	require.NoError(t, err)
	assert.Equal(t, 0, c.AvailabilityScore)

	got, ok := store.Snapshot().Get(2)
	require.True(t, ok)
	assert.Equal(t, "Available", got.WaitlistStatus)
	// Untouched fields survive the round-trip through raw form.
	assert.Equal(t, 6100.0, got.MonthlyFee)
	assert.Equal(t, CareMemoryCare, got.CareLevel)
}

func TestStoreUpsertRejectsInvalid(t *testing.T) {
	store := NewFromCommunities(testCommunities(), zap.NewNop())

	_, err := store.Upsert(9, map[string]string{ColCareLevel: "Hospice", ColMonthlyFee: "100"})
	assert.Error(t, err)
	assert.Equal(t, 3, store.Snapshot().Len())
}

func TestStoreDelete(t *testing.T) {
	store := NewFromCommunities(testCommunities(), zap.NewNop())

	assert.True(t, store.Delete(2))
	assert.False(t, store.Delete(2))

	_, ok := store.Snapshot().Get(2)
	assert.False(t, ok)
	assert.Equal(t, 2, store.Snapshot().Len())
}

func TestStoreStats(t *testing.T) {
	store := NewFromCommunities(testCommunities(), zap.NewNop())

	stats := store.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.ByCareLevel[CareAssistedLiving])
	assert.Equal(t, 1, stats.ByCareLevel[CareMemoryCare])
	assert.Equal(t, 1, stats.AvailableNow)
	assert.Equal(t, 1, stats.PlacementCount)
	assert.Equal(t, 3900.0, stats.MinMonthlyFee)
	assert.Equal(t, 6100.0, stats.MaxMonthlyFee)
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewFromCommunities(testCommunities(), zap.NewNop())
	path := filepath.Join(t.TempDir(), "catalog.xlsx")

	require.NoError(t, store.Save(path))

	loaded, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, 3, loaded.Snapshot().Len())

	got, ok := loaded.Snapshot().Get(1)
	require.True(t, ok)
	assert.Equal(t, "Alder Place", got.Name)
	assert.Equal(t, 4200.0, got.MonthlyFee)
	assert.Equal(t, "14618", got.ZIP)
	assert.Equal(t, 10, got.WillingnessScore)
	require.NotNil(t, got.Upfront.SecondPersonFee)
	assert.Equal(t, 750.0, *got.Upfront.SecondPersonFee)
}

func TestLoadSkipsMalformedRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.xlsx")

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{ColCommunityID, ColCareLevel, ColMonthlyFee, ColZIP, ColWorksWithPlacement,
			ColContractRate, ColWaitlist, ColEnhanced, ColEnriched, ColDeposit,
			ColMoveInFee, ColCommunityFee, ColPetFee, ColSecondPersonFee, ColApartmentType},
		{"1", CareAssistedLiving, "4000", "14618", "Yes", "0.9", "Available", "No", "No", "", "", "", "", "", "Studio"},
		{"2", "Hospice", "5000", "14618", "No", "", "", "", "", "", "", "", "", "", ""},
		{"1", CareAssistedLiving, "4100", "14618", "No", "", "", "", "", "", "", "", "", "", ""},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	// The bad care level and the duplicate id are both skipped.
	loaded, err := Load(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Snapshot().Len())
}
