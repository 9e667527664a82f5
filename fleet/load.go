package fleet

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/warp/fleet-engine/generic"
)

// serviceFetchLimit bounds concurrent per-vehicle service-history reads.
const serviceFetchLimit = 8

// Dataset is everything a report run needs, fully materialized.
type Dataset struct {
	Events    []generic.FinancialEvent
	Directory generic.EntityDirectory
	Tracked   []generic.EntityID
	Vehicles  []Vehicle
	Stats     NormalizeStats
}

// Load fetches vehicles, daily records and every service history from src
// and normalizes them. History stored under a vehicle missing from the
// directory is loaded too and groups under generic.UnknownLabel. Fetching happens before any engine call;
// the engine only ever sees the returned Dataset.
func Load(ctx context.Context, src RecordSource, n *Normalizer) (Dataset, error) {
	vehicles, err := src.Vehicles(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("load vehicles: %w", err)
	}
	sort.Slice(vehicles, func(i, j int) bool { return vehicles[i].ID < vehicles[j].ID })

	daily, err := src.DailyRecords(ctx)
	if err != nil {
		return Dataset{}, fmt.Errorf("load daily records: %w", err)
	}

	owners, err := serviceOwners(ctx, src, vehicles)
	if err != nil {
		return Dataset{}, err
	}

	history := make([][]ServiceRecord, len(owners))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(serviceFetchLimit)
	for i, id := range owners {
		i, id := i, id
		g.Go(func() error {
			records, err := src.ServiceRecords(gctx, id)
			if err != nil {
				return fmt.Errorf("load service history for %s: %w", id, err)
			}
			for j := range records {
				if records[j].VehicleID == "" {
					records[j].VehicleID = id
				}
			}
			history[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}

	var service []ServiceRecord
	for _, records := range history {
		service = append(service, records...)
	}

	events, stats := n.NormalizeAll(daily, service)

	ds := Dataset{
		Events:    events,
		Directory: make(generic.EntityDirectory, len(vehicles)),
		Tracked:   make([]generic.EntityID, 0, len(vehicles)),
		Vehicles:  vehicles,
		Stats:     stats,
	}
	for _, v := range vehicles {
		id := generic.EntityID(v.ID)
		ds.Directory[id] = v.DisplayLabel()
		ds.Tracked = append(ds.Tracked, id)
	}

	n.Logger.Info().
		Int("vehicles", len(vehicles)).
		Int("daily", stats.Daily).
		Int("service", stats.Service).
		Int("dropped", stats.Dropped).
		Int("deduplicated", stats.Deduplicated).
		Msg("dataset loaded")

	return ds, nil
}

// serviceOwners is every directory vehicle plus any other vehicle id that
// has service history, sorted.
func serviceOwners(ctx context.Context, src RecordSource, vehicles []Vehicle) ([]string, error) {
	stored, err := src.ServiceVehicleIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load service history owners: %w", err)
	}

	seen := make(map[string]bool, len(vehicles)+len(stored))
	var ids []string
	for _, v := range vehicles {
		if !seen[v.ID] {
			seen[v.ID] = true
			ids = append(ids, v.ID)
		}
	}
	for _, id := range stored {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
