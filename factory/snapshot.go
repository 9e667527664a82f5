/*
Package factory provides JSON to Go snapshot conversion.

PURPOSE:
  Converts an exported document-database snapshot into fleet raw records
  ready to be written through a fleet.RecordSink. This is how real data
  and demo scenarios get into the store.

JSON SCHEMA:
  {
    "vehicles": [{"id": "V1", "label": "Truck 1", "plate": "ABC-123"}],
    "daily_finance": [
      {"id": "d1", "vehicleId": "V1", "sales": 1000,
       "expenses": [{"category": "fuel", "amount": "120"}],
       "date": {"seconds": 1740787200, "nanoseconds": 0}}
    ],
    "service_history": {
      "V1": [{"id": "s1", "date": "2025-03-10", "description": "Amortization",
              "cost": 1500, "isAmortization": true}]
    }
  }

  Collections may also be exported as objects keyed by document id, the
  way the document store dumps them:
    "vehicles": {"V1": {"label": "Truck 1"}}

KEY FEATURES:
  - Accepts array or keyed-object collections
  - Fills record ids from the document key, or a fresh ULID
  - Service records inherit the vehicle id they are nested under
  - Rejects structural problems (missing or duplicate vehicle ids);
    data-quality problems (bad dates, odd amounts) are left for the
    Normalizer, which drops them without failing the batch

USAGE:
  f := factory.NewSnapshotFactory()
  snap, err := f.ParseSnapshot(jsonString)
  if err != nil { ... }
  err = fleet.WriteSnapshot(ctx, store, snap)

SEE ALSO:
  - fleet/records.go: Raw record shapes and RecordSink
  - fleet/normalize.go: What happens to the records afterwards
*/
package factory

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/warp/fleet-engine/fleet"
)

// ErrInvalidSnapshot is returned for structurally unusable documents.
var ErrInvalidSnapshot = errors.New("invalid snapshot")

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// SnapshotJSON is the top-level export document. Each collection is kept
// raw until its shape (array or keyed object) is known.
type SnapshotJSON struct {
	Vehicles       json.RawMessage            `json:"vehicles"`
	DailyFinance   json.RawMessage            `json:"daily_finance"`
	ServiceHistory map[string]json.RawMessage `json:"service_history"`
}

// SnapshotSummary counts what a parsed snapshot contains.
type SnapshotSummary struct {
	Vehicles    int `json:"vehicles"`
	Daily       int `json:"daily"`
	Service     int `json:"service"`
	AssignedIDs int `json:"assigned_ids"`
}

// =============================================================================
// SNAPSHOT FACTORY
// =============================================================================

// SnapshotFactory converts JSON snapshots to fleet records.
type SnapshotFactory struct {
	// NewID generates ids for records that have none.
	NewID func() string
}

// NewSnapshotFactory creates a factory that assigns ULIDs.
func NewSnapshotFactory() *SnapshotFactory {
	return &SnapshotFactory{NewID: fleet.NewRecordID}
}

// ParseSnapshot parses a JSON string into a snapshot.
func (f *SnapshotFactory) ParseSnapshot(jsonStr string) (fleet.Snapshot, error) {
	snap, _, err := f.Decode(strings.NewReader(jsonStr))
	return snap, err
}

// Decode reads one JSON document from r.
func (f *SnapshotFactory) Decode(r io.Reader) (fleet.Snapshot, SnapshotSummary, error) {
	var sj SnapshotJSON
	if err := json.NewDecoder(r).Decode(&sj); err != nil {
		return fleet.Snapshot{}, SnapshotSummary{}, fmt.Errorf("%w: %w", ErrInvalidSnapshot, err)
	}
	return f.FromJSON(sj)
}

// FromJSON converts the decoded document.
func (f *SnapshotFactory) FromJSON(sj SnapshotJSON) (fleet.Snapshot, SnapshotSummary, error) {
	var (
		snap    fleet.Snapshot
		summary SnapshotSummary
	)

	vehicles, err := decodeCollection[fleet.Vehicle](sj.Vehicles, "vehicles")
	if err != nil {
		return fleet.Snapshot{}, summary, err
	}
	seen := make(map[string]bool, len(vehicles))
	for i, kv := range vehicles {
		v := kv.value
		if v.ID == "" {
			v.ID = kv.key
		}
		v.ID = strings.TrimSpace(v.ID)
		if v.ID == "" {
			return fleet.Snapshot{}, summary, fmt.Errorf("%w: vehicle #%d has no id", ErrInvalidSnapshot, i)
		}
		if seen[v.ID] {
			return fleet.Snapshot{}, summary, fmt.Errorf("%w: duplicate vehicle id %q", ErrInvalidSnapshot, v.ID)
		}
		seen[v.ID] = true
		snap.Vehicles = append(snap.Vehicles, v)
	}

	daily, err := decodeCollection[fleet.DailyFinanceRecord](sj.DailyFinance, "daily_finance")
	if err != nil {
		return fleet.Snapshot{}, summary, err
	}
	for _, kv := range daily {
		r := kv.value
		if r.ID == "" {
			r.ID = f.id(kv.key, &summary)
		}
		snap.DailyFinance = append(snap.DailyFinance, r)
	}

	if len(sj.ServiceHistory) > 0 {
		snap.ServiceHistory = make(map[string][]fleet.ServiceRecord, len(sj.ServiceHistory))
	}
	for _, vehicleID := range sortedKeys(sj.ServiceHistory) {
		records, err := decodeCollection[fleet.ServiceRecord](sj.ServiceHistory[vehicleID], "service_history."+vehicleID)
		if err != nil {
			return fleet.Snapshot{}, summary, err
		}
		for _, kv := range records {
			r := kv.value
			if r.ID == "" {
				r.ID = f.id(kv.key, &summary)
			}
			r.VehicleID = vehicleID
			snap.ServiceHistory[vehicleID] = append(snap.ServiceHistory[vehicleID], r)
			summary.Service++
		}
	}

	summary.Vehicles = len(snap.Vehicles)
	summary.Daily = len(snap.DailyFinance)
	return snap, summary, nil
}

func (f *SnapshotFactory) id(key string, summary *SnapshotSummary) string {
	if key != "" {
		return key
	}
	summary.AssignedIDs++
	if f.NewID == nil {
		return fleet.NewRecordID()
	}
	return f.NewID()
}

// keyed is one collection element and its document key ("" for arrays).
type keyed[T any] struct {
	key   string
	value T
}

// decodeCollection accepts a JSON array, an object keyed by document id, or
// nothing. Both keep document order, which decides which duplicate daily
// log wins.
func decodeCollection[T any](raw json.RawMessage, name string) ([]keyed[T], error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	switch raw[0] {
	case '[':
		var items []T
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, name, err)
		}
		out := make([]keyed[T], len(items))
		for i, item := range items {
			out[i] = keyed[T]{value: item}
		}
		return out, nil

	case '{':
		out, err := decodeKeyed[T](raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidSnapshot, name, err)
		}
		return out, nil
	}

	return nil, fmt.Errorf("%w: %s must be an array or an object", ErrInvalidSnapshot, name)
}

// decodeKeyed walks a keyed object token by token so entries come back in
// document order.
func decodeKeyed[T any](raw json.RawMessage) ([]keyed[T], error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	if _, err := dec.Token(); err != nil {
		return nil, err
	}

	var out []keyed[T]
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}
		var value T
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		out = append(out, keyed[T]{key: key, value: value})
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
