package factory_test

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/fleet-engine/factory"
	"github.com/warp/fleet-engine/fleet"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestParseSnapshot_ArrayCollections(t *testing.T) {
	f := &factory.SnapshotFactory{NewID: sequentialIDs()}

	snap, err := f.ParseSnapshot(`{
		"vehicles": [{"id": "V1", "label": "Truck 1"}],
		"daily_finance": [
			{"id": "d1", "vehicleId": "V1", "sales": 1000, "date": {"seconds": 1740787200, "nanoseconds": 0}},
			{"vehicleId": "V1", "sales": "250", "date": "2025-03-02"}
		],
		"service_history": {
			"V1": [{"date": "2025-03-10", "description": "Amortization", "cost": 1500, "isAmortization": true}]
		}
	}`)
	require.NoError(t, err)

	require.Len(t, snap.Vehicles, 1)
	require.Len(t, snap.DailyFinance, 2)
	assert.Equal(t, "d1", snap.DailyFinance[0].ID)
	assert.Equal(t, "gen-1", snap.DailyFinance[1].ID)
	assert.True(t, snap.DailyFinance[0].Date.IsTimestamp())
	assert.True(t, snap.DailyFinance[1].Date.IsText())

	service := snap.ServiceHistory["V1"]
	require.Len(t, service, 1)
	assert.Equal(t, "gen-2", service[0].ID)
	assert.Equal(t, "V1", service[0].VehicleID, "nested records inherit their vehicle")
	assert.True(t, service[0].IsAmortization)
}

func TestParseSnapshot_KeyedCollections(t *testing.T) {
	// GIVEN: A raw document-store dump where collections are keyed by doc id
	// WHEN: Parsing
	// THEN: Keys become ids and records keep document order

	f := &factory.SnapshotFactory{NewID: sequentialIDs()}

	snap, err := f.ParseSnapshot(`{
		"vehicles": {"V2": {"label": "Truck 2"}, "V1": {"label": "Truck 1"}},
		"daily_finance": {
			"b": {"vehicleId": "V1", "sales": 2, "date": "2025-03-02"},
			"a": {"vehicleId": "V1", "sales": 1, "date": "2025-03-01"}
		}
	}`)
	require.NoError(t, err)

	require.Len(t, snap.Vehicles, 2)
	assert.Equal(t, "V2", snap.Vehicles[0].ID)
	assert.Equal(t, "V1", snap.Vehicles[1].ID)
	require.Len(t, snap.DailyFinance, 2)
	assert.Equal(t, "b", snap.DailyFinance[0].ID)
	assert.Equal(t, "a", snap.DailyFinance[1].ID)
}

func TestParseSnapshot_KeyedDuplicates_LastInDocumentWins(t *testing.T) {
	// GIVEN: Two keyed daily logs for the same vehicle and day, the later
	// key sorting first
	// WHEN: Parsing and normalizing
	// THEN: The one written last in the document is kept

	snap, err := factory.NewSnapshotFactory().ParseSnapshot(`{
		"daily_finance": {
			"zz-original": {"vehicleId": "V1", "sales": 100, "date": "2025-03-01"},
			"aa-resubmit": {"vehicleId": "V1", "sales": 150, "date": "2025-03-01"}
		}
	}`)
	require.NoError(t, err)

	events, stats := fleet.NewNormalizer(time.UTC, zerolog.Nop()).NormalizeAll(snap.DailyFinance, nil)
	require.Len(t, events, 1)
	assert.Equal(t, 1, stats.Deduplicated)
	assert.Equal(t, "aa-resubmit", events[0].ID)
	assert.Equal(t, "150", events[0].Income.String())
}

func TestParseSnapshot_KeyedCollection_BadEntry(t *testing.T) {
	_, err := factory.NewSnapshotFactory().ParseSnapshot(`{"vehicles": {"V1": {"label": "ok"}, "V2": 7}}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, factory.ErrInvalidSnapshot)
	assert.Contains(t, err.Error(), "V2")
}

func TestDecode_Summary(t *testing.T) {
	f := &factory.SnapshotFactory{NewID: sequentialIDs()}

	_, summary, err := f.Decode(strings.NewReader(`{
		"vehicles": [{"id": "V1"}],
		"daily_finance": [{"vehicleId": "V1", "date": "not-a-date"}],
		"service_history": {"V1": [{"id": "s1", "cost": "x"}]}
	}`))
	require.NoError(t, err)

	assert.Equal(t, factory.SnapshotSummary{Vehicles: 1, Daily: 1, Service: 1, AssignedIDs: 1}, summary)
}

func TestParseSnapshot_StructuralErrors(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"not json", `{`},
		{"vehicle without id", `{"vehicles": [{"label": "nameless"}]}`},
		{"duplicate vehicle", `{"vehicles": [{"id": "V1"}, {"id": "V1"}]}`},
		{"collection is a string", `{"daily_finance": "oops"}`},
		{"wrong element type", `{"vehicles": [1, 2]}`},
	}

	f := factory.NewSnapshotFactory()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.ParseSnapshot(tt.json)
			assert.ErrorIs(t, err, factory.ErrInvalidSnapshot)
		})
	}
}

func TestParseSnapshot_EmptyDocument(t *testing.T) {
	snap, err := factory.NewSnapshotFactory().ParseSnapshot(`{}`)
	require.NoError(t, err)
	assert.Empty(t, snap.Vehicles)
	assert.Empty(t, snap.DailyFinance)
	assert.Nil(t, snap.ServiceHistory)
}

func TestNewSnapshotFactory_AssignsULIDs(t *testing.T) {
	snap, err := factory.NewSnapshotFactory().ParseSnapshot(`{"daily_finance": [{"vehicleId": "V1"}, {"vehicleId": "V1"}]}`)
	require.NoError(t, err)
	require.Len(t, snap.DailyFinance, 2)
	assert.Len(t, snap.DailyFinance[0].ID, 26)
	assert.NotEqual(t, snap.DailyFinance[0].ID, snap.DailyFinance[1].ID)
}
