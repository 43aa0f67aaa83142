package device

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

const (
	machineA = "0cfa-4ed7-a8d7"
	machineB = "1111-2222-3333"
)

var gwNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// capturePublisher records published payloads per topic.
type capturePublisher struct {
	payloads []string
}

func (p *capturePublisher) Publish(_ context.Context, _, payload string) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type stubRentings struct {
	detail  repository.RentingDetail
	findErr error
	swapped []string // statuses written via compare-and-set
}

func (s *stubRentings) FindActiveByCardUID(_ context.Context, _ string) (repository.RentingDetail, error) {
	if s.findErr != nil {
		return repository.RentingDetail{}, s.findErr
	}
	return s.detail, nil
}

func (s *stubRentings) UpdateStatusIf(_ context.Context, id uint64, _ []string, to string) (bool, error) {
	s.swapped = append(s.swapped, to)
	s.detail.Status = to
	return true, nil
}

type stubLockers struct {
	seen  []string
	known bool
}

func (s *stubLockers) UpdateHeartbeat(_ context.Context, machineID string, _ time.Time) (bool, error) {
	s.seen = append(s.seen, machineID)
	return s.known, nil
}

type stubTaps struct {
	enqueued []string // "card@machine"
}

func (s *stubTaps) Enqueue(_ context.Context, cardUID, machineID string) (model.NFCQueueEntry, bool, error) {
	s.enqueued = append(s.enqueued, cardUID+"@"+machineID)
	return model.NFCQueueEntry{CardUID: cardUID, MachineID: machineID}, true, nil
}

type stubOccupancy struct {
	pairs []repository.Occupancy
}

func (s *stubOccupancy) ListOccupancy(_ context.Context, _ string) ([]repository.Occupancy, error) {
	return s.pairs, nil
}

type gwFixture struct {
	gw       *Gateway
	pub      *capturePublisher
	rentings *stubRentings
	lockers  *stubLockers
	taps     *stubTaps
	occ      *stubOccupancy
}

func newGwFixture() *gwFixture {
	pub := &capturePublisher{}
	rentings := &stubRentings{findErr: sql.ErrNoRows}
	lockers := &stubLockers{known: true}
	taps := &stubTaps{}
	occ := &stubOccupancy{}
	gw := NewGateway(pub, "locker.commands", rentings, lockers, taps, NewSnapshotBuilder(occ))
	gw.now = func() time.Time { return gwNow }
	return &gwFixture{gw: gw, pub: pub, rentings: rentings, lockers: lockers, taps: taps, occ: occ}
}

func activeDetail(machineID string, door int, end time.Time) repository.RentingDetail {
	card := "04a1b2c3"
	return repository.RentingDetail{
		Renting: model.Renting{
			ID:      1,
			UserID:  1,
			RoomID:  1,
			EndTime: end,
			Status:  model.RentActive,
		},
		DoorID:    door,
		MachineID: machineID,
		CardUID:   &card,
	}
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	fx := newGwFixture()

	fx.gw.HandleMessage(context.Background(), []byte("garbage"))
	fx.gw.HandleMessage(context.Background(), nil)

	assert.Empty(t, fx.pub.payloads)
	assert.Empty(t, fx.taps.enqueued)
}

func TestStartupPushesSnapshot(t *testing.T) {
	fx := newGwFixture()
	fx.occ.pairs = []repository.Occupancy{{DoorID: 1, CardUID: "x"}}

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#STARTUP"))

	require.Len(t, fx.pub.payloads, 1)
	assert.Equal(t, machineA+`#STATE#[{"doorId":1,"cardUid":"x"}]`, fx.pub.payloads[0])
}

func TestStartupIdleCabinetGetsEmptySnapshot(t *testing.T) {
	fx := newGwFixture()

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#STARTUP"))

	require.Len(t, fx.pub.payloads, 1)
	assert.Equal(t, machineA+"#STATE#[]", fx.pub.payloads[0])
}

func TestHeartbeatAdvancesWatermark(t *testing.T) {
	fx := newGwFixture()

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#HEARTBEAT"))

	assert.Equal(t, []string{machineA}, fx.lockers.seen)
	assert.Empty(t, fx.pub.payloads, "heartbeats are not answered")
}

func TestNFCReadMatchOpensDoor(t *testing.T) {
	fx := newGwFixture()
	fx.rentings.findErr = nil
	fx.rentings.detail = activeDetail(machineA, 2, gwNow.Add(time.Hour))

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#NFC_READ#04a1b2c3"))

	require.Len(t, fx.pub.payloads, 2)
	assert.Equal(t, machineA+"#LCD#Opening Room 2...", fx.pub.payloads[0])
	assert.Equal(t, machineA+"#OPEN_DOOR#2", fx.pub.payloads[1])
	assert.Equal(t, []string{"04a1b2c3@" + machineA}, fx.taps.enqueued)
}

func TestNFCReadExpiredRentWarnsInstead(t *testing.T) {
	fx := newGwFixture()
	fx.rentings.findErr = nil
	fx.rentings.detail = activeDetail(machineA, 2, gwNow.Add(-time.Hour))

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#NFC_READ#04a1b2c3"))

	assert.Equal(t, []string{model.RentOverdue}, fx.rentings.swapped)
	require.Len(t, fx.pub.payloads, 1)
	assert.Equal(t, machineA+"#LCD#Room overdue, please pay fine first on the app", fx.pub.payloads[0])
}

func TestNFCReadWrongCabinetIgnored(t *testing.T) {
	fx := newGwFixture()
	fx.rentings.findErr = nil
	fx.rentings.detail = activeDetail(machineB, 2, gwNow.Add(time.Hour))

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#NFC_READ#04a1b2c3"))

	assert.Empty(t, fx.pub.payloads, "renting lives on another cabinet")
	assert.Equal(t, []string{"04a1b2c3@" + machineA}, fx.taps.enqueued)
}

func TestNFCReadUnknownCardQueued(t *testing.T) {
	fx := newGwFixture()

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#NFC_READ#deadbeef"))

	assert.Empty(t, fx.pub.payloads)
	assert.Equal(t, []string{"deadbeef@" + machineA}, fx.taps.enqueued)
}

func TestNFCReadWithoutCardDropped(t *testing.T) {
	fx := newGwFixture()

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#NFC_READ"))

	assert.Empty(t, fx.pub.payloads)
	assert.Empty(t, fx.taps.enqueued)
}

func TestUnknownCommandTreatedAsAck(t *testing.T) {
	fx := newGwFixture()

	fx.gw.HandleMessage(context.Background(), []byte(machineA+"#OPEN_DOOR#2"))

	assert.Empty(t, fx.pub.payloads)
	assert.Empty(t, fx.taps.enqueued)
}

func TestOpenDoorEncodesCommand(t *testing.T) {
	fx := newGwFixture()

	require.NoError(t, fx.gw.OpenDoor(context.Background(), machineA, 7))
	assert.Equal(t, []string{machineA + "#OPEN_DOOR#7"}, fx.pub.payloads)
}

func TestShowMessageRejectsSeparator(t *testing.T) {
	fx := newGwFixture()

	err := fx.gw.ShowMessage(context.Background(), machineA, "bad#text")
	assert.Error(t, err)
	assert.Empty(t, fx.pub.payloads)
}
