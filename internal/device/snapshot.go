package device

import (
	"context"
	"encoding/json"

	"github.com/ulocker/u-locker-server/internal/repository"
)

// OccupancyStore lists the occupied doors of a cabinet.
type OccupancyStore interface {
	ListOccupancy(ctx context.Context, machineID string) ([]repository.Occupancy, error)
}

// SnapshotBuilder computes the full occupancy state of one locker
// cabinet: every door with an ACTIVE renting paired with the
// renter's card UID. The snapshot is pushed to the device after
// every occupancy change and on STARTUP, giving the hardware a
// complete picture instead of incremental deltas; a replayed or lost
// snapshot can never leave the device in a state the next snapshot
// won't fix.
type SnapshotBuilder struct {
	store OccupancyStore
}

func NewSnapshotBuilder(store OccupancyStore) *SnapshotBuilder {
	return &SnapshotBuilder{store: store}
}

// Build returns the occupancy pairs for the cabinet. Doors without
// an ACTIVE renting are omitted; an idle cabinet yields an empty
// slice.
func (b *SnapshotBuilder) Build(ctx context.Context, machineID string) ([]repository.Occupancy, error) {
	return b.store.ListOccupancy(ctx, machineID)
}

// BuildJSON returns the snapshot serialized as the STATE payload, a
// JSON array of {"doorId":n,"cardUid":"..."} objects. An idle
// cabinet serializes to "[]".
func (b *SnapshotBuilder) BuildJSON(ctx context.Context, machineID string) (string, error) {
	pairs, err := b.Build(ctx, machineID)
	if err != nil {
		return "", err
	}
	if pairs == nil {
		pairs = []repository.Occupancy{}
	}
	body, err := json.Marshal(pairs)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
