package rent

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

const testMachine = "0cfa-4ed7-a8d7"

// fakeRentings is an in-memory RentingStore. Doors are derived from
// the room ID so details stay deterministic.
type fakeRentings struct {
	m      map[uint64]*model.Renting
	nextID uint64
}

func newFakeRentings() *fakeRentings {
	return &fakeRentings{m: map[uint64]*model.Renting{}}
}

func (f *fakeRentings) Create(_ context.Context, rt *model.Renting) error {
	f.nextID++
	rt.ID = f.nextID
	cp := *rt
	f.m[rt.ID] = &cp
	return nil
}

func (f *fakeRentings) GetByID(_ context.Context, id uint64) (model.Renting, error) {
	rt, ok := f.m[id]
	if !ok {
		return model.Renting{}, sql.ErrNoRows
	}
	return *rt, nil
}

func (f *fakeRentings) GetDetail(_ context.Context, id uint64) (repository.RentingDetail, error) {
	rt, ok := f.m[id]
	if !ok {
		return repository.RentingDetail{}, sql.ErrNoRows
	}
	return repository.RentingDetail{
		Renting:   *rt,
		DoorID:    int(rt.RoomID),
		MachineID: testMachine,
	}, nil
}

func (f *fakeRentings) FindActiveByRoom(_ context.Context, roomID uint64) (model.Renting, error) {
	for _, rt := range f.m {
		if rt.RoomID == roomID && (rt.Status == model.RentActive || rt.Status == model.RentOverdue) {
			return *rt, nil
		}
	}
	return model.Renting{}, sql.ErrNoRows
}

func (f *fakeRentings) ListByUser(_ context.Context, userID uint64) ([]model.Renting, error) {
	var out []model.Renting
	for _, rt := range f.m {
		if rt.UserID == userID {
			out = append(out, *rt)
		}
	}
	return out, nil
}

func (f *fakeRentings) ListActiveByUser(_ context.Context, userID uint64) ([]model.Renting, error) {
	var out []model.Renting
	for _, rt := range f.m {
		if rt.UserID == userID && (rt.Status == model.RentActive || rt.Status == model.RentOverdue) {
			out = append(out, *rt)
		}
	}
	return out, nil
}

func (f *fakeRentings) UpdateStatusIf(_ context.Context, id uint64, from []string, to string) (bool, error) {
	rt, ok := f.m[id]
	if !ok {
		return false, nil
	}
	for _, s := range from {
		if rt.Status == s {
			rt.Status = to
			return true, nil
		}
	}
	return false, nil
}

// fakeRooms maps room IDs to details.
type fakeRooms struct {
	m map[uint64]repository.RoomDetail
}

func (f *fakeRooms) GetDetail(_ context.Context, roomID uint64) (repository.RoomDetail, error) {
	d, ok := f.m[roomID]
	if !ok {
		return repository.RoomDetail{}, sql.ErrNoRows
	}
	return d, nil
}

// fakeCommander records device commands instead of publishing them.
type fakeCommander struct {
	opened   []string // "machine:door"
	messages []string
	states   []string // machine IDs that got a snapshot push
}

func (f *fakeCommander) OpenDoor(_ context.Context, machineID string, doorID int) error {
	f.opened = append(f.opened, fmt.Sprintf("%s:%d", machineID, doorID))
	return nil
}

func (f *fakeCommander) ShowMessage(_ context.Context, _, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

func (f *fakeCommander) PushState(_ context.Context, machineID string) error {
	f.states = append(f.states, machineID)
	return nil
}

// memLedgerStore backs a real ledger service in the tests.
type memLedgerStore struct {
	entries []model.Transaction
	nextID  uint64
}

func (m *memLedgerStore) SumByUser(_ context.Context, userID uint64, typ string, validatedOnly bool) (int64, error) {
	var sum int64
	for _, t := range m.entries {
		if t.UserID != userID || t.Type != typ {
			continue
		}
		if validatedOnly && t.ValidatedAt == nil {
			continue
		}
		sum += t.Amount
	}
	return sum, nil
}

func (m *memLedgerStore) Create(_ context.Context, t *model.Transaction) error {
	m.nextID++
	t.ID = m.nextID
	m.entries = append(m.entries, *t)
	return nil
}

func (m *memLedgerStore) GetByRef(_ context.Context, ref string) (model.Transaction, error) {
	for _, t := range m.entries {
		if t.Ref == ref {
			return t, nil
		}
	}
	return model.Transaction{}, sql.ErrNoRows
}

func (m *memLedgerStore) MarkValidated(_ context.Context, id uint64, at time.Time) error {
	for i := range m.entries {
		if m.entries[i].ID == id && m.entries[i].ValidatedAt == nil {
			v := at
			m.entries[i].ValidatedAt = &v
		}
	}
	return nil
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	rentings *fakeRentings
	devices  *fakeCommander
	ledger   *ledger.Service
}

// newFixture builds a service over one room (ID 1, door 1) and gives
// user 1 the requested starting balance.
func newFixture(t *testing.T, balance int64) *fixture {
	t.Helper()
	rentings := newFakeRentings()
	rooms := &fakeRooms{m: map[uint64]repository.RoomDetail{
		1: {Room: model.Room{ID: 1, LockerID: 1, DoorID: 1}, MachineID: testMachine},
	}}
	devices := &fakeCommander{}
	lg := ledger.New(&memLedgerStore{})
	if balance > 0 {
		_, err := lg.Credit(context.Background(), 1, balance, true)
		require.NoError(t, err)
	}
	svc := NewService(rentings, rooms, lg, devices)
	svc.now = func() time.Time { return testNow }
	return &fixture{svc: svc, rentings: rentings, devices: devices, ledger: lg}
}

func (fx *fixture) balance(t *testing.T) int64 {
	t.Helper()
	b, err := fx.ledger.Balance(context.Background(), 1)
	require.NoError(t, err)
	return b
}

func TestStartRentDebitsUpfront(t *testing.T) {
	fx := newFixture(t, 5)

	rt, err := fx.svc.StartRent(context.Background(), 1, 1, testNow, testNow.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, model.RentActive, rt.Status)
	assert.Equal(t, int64(2), fx.balance(t))
	assert.Equal(t, []string{testMachine}, fx.devices.states, "cabinet gets a snapshot push")
}

func TestStartRentInsufficientBalance(t *testing.T) {
	fx := newFixture(t, 2)

	_, err := fx.svc.StartRent(context.Background(), 1, 1, testNow, testNow.Add(3*time.Hour))
	var short *ledger.InsufficientCreditError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, int64(1), short.Shortfall)
	assert.Empty(t, fx.rentings.m, "no renting on refused start")
	assert.Equal(t, int64(2), fx.balance(t), "balance untouched")
}

func TestStartRentSubHourWindowIsFree(t *testing.T) {
	fx := newFixture(t, 0)

	// 30 minutes floors to zero billable hours.
	rt, err := fx.svc.StartRent(context.Background(), 1, 1, testNow, testNow.Add(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, model.RentActive, rt.Status)
	assert.Equal(t, int64(0), fx.balance(t))
}

func TestStartRentInvalidRange(t *testing.T) {
	fx := newFixture(t, 5)

	_, err := fx.svc.StartRent(context.Background(), 1, 1, testNow, testNow.Add(-time.Hour))
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestStartRentUnknownRoom(t *testing.T) {
	fx := newFixture(t, 5)

	_, err := fx.svc.StartRent(context.Background(), 1, 99, testNow, testNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestStartRentRoomOccupied(t *testing.T) {
	fx := newFixture(t, 10)
	ctx := context.Background()

	_, err := fx.svc.StartRent(ctx, 1, 1, testNow, testNow.Add(time.Hour))
	require.NoError(t, err)

	_, err = fx.svc.StartRent(ctx, 1, 1, testNow, testNow.Add(time.Hour))
	assert.ErrorIs(t, err, ErrRoomOccupied)
}

func TestGetRentMarksOverdueLazily(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow.Add(-3*time.Hour), testNow.Add(-time.Hour))
	require.NoError(t, err)

	got, err := fx.svc.GetRent(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RentOverdue, got.Status)
}

func TestOpenRoomActive(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow, testNow.Add(2*time.Hour))
	require.NoError(t, err)

	require.NoError(t, fx.svc.OpenRoom(ctx, rt.ID))
	assert.Contains(t, fx.devices.opened, testMachine+":1")
	assert.Contains(t, fx.devices.messages, "Opening Room 1...")
}

func TestOpenRoomOverdueRefused(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow.Add(-3*time.Hour), testNow.Add(-time.Hour))
	require.NoError(t, err)

	err = fx.svc.OpenRoom(ctx, rt.ID)
	assert.ErrorIs(t, err, ErrOverdue)
	assert.Empty(t, fx.devices.opened, "overdue rent must not open the door")
	assert.Contains(t, fx.devices.messages, "Room overdue, please pay fine first on the app")
}

func TestStopRentOnTime(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow, testNow.Add(2*time.Hour))
	require.NoError(t, err)

	res, err := fx.svc.StopRent(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, StopDone, res.Status)
	assert.Equal(t, int64(3), fx.balance(t), "no fine on an on-time stop")
	assert.Contains(t, fx.devices.opened, testMachine+":1", "final unlock")
}

func TestStopRentChargesOverdueFine(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	// Free window that ended 2.5 hours ago: fine floors to 2.
	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow.Add(-3*time.Hour), testNow.Add(-150*time.Minute))
	require.NoError(t, err)

	res, err := fx.svc.StopRent(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, StopDone, res.Status)
	assert.Equal(t, int64(3), fx.balance(t))
}

func TestStopRentShortfallLeavesRentUntouched(t *testing.T) {
	fx := newFixture(t, 1)
	ctx := context.Background()

	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow.Add(-3*time.Hour), testNow.Add(-150*time.Minute))
	require.NoError(t, err)

	res, err := fx.svc.StopRent(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, StopNeedsPayment, res.Status)
	assert.Equal(t, int64(1), res.Shortfall)
	assert.Equal(t, int64(1), fx.balance(t), "no partial fine")

	got, err := fx.rentings.GetByID(ctx, rt.ID)
	require.NoError(t, err)
	assert.NotEqual(t, model.RentDone, got.Status, "rent stays open until the fine clears")
	assert.Empty(t, fx.devices.opened, "door stays shut")
}

func TestStopRentFineCappedAt24Hours(t *testing.T) {
	fx := newFixture(t, 30)
	ctx := context.Background()

	// A week overdue still bills only the 24-hour cap. The rented
	// window itself is under an hour, so nothing is debited up front.
	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow.Add(-7*24*time.Hour-30*time.Minute), testNow.Add(-7*24*time.Hour))
	require.NoError(t, err)

	res, err := fx.svc.StopRent(ctx, rt.ID)
	require.NoError(t, err)
	assert.Equal(t, StopDone, res.Status)
	assert.Equal(t, int64(6), fx.balance(t), "30 - 24 capped fine")
}

func TestStopRentTwice(t *testing.T) {
	fx := newFixture(t, 5)
	ctx := context.Background()

	rt, err := fx.svc.StartRent(ctx, 1, 1, testNow, testNow.Add(time.Hour))
	require.NoError(t, err)

	_, err = fx.svc.StopRent(ctx, rt.ID)
	require.NoError(t, err)

	_, err = fx.svc.StopRent(ctx, rt.ID)
	assert.ErrorIs(t, err, ErrAlreadyDone)
	assert.Equal(t, int64(4), fx.balance(t), "second stop must not double-charge")
}

func TestStopRentUnknown(t *testing.T) {
	fx := newFixture(t, 5)

	_, err := fx.svc.StopRent(context.Background(), 404)
	assert.ErrorIs(t, err, ErrRentNotFound)
}
