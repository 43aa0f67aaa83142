// Package rent implements the per-room occupancy lifecycle: renting
// a room, opening it, stopping the rent and the overdue transition.
// Rentings move ACTIVE -> OVERDUE on expiry and end DONE via stop;
// DONE is terminal. The same rules are exercised by HTTP handlers,
// the device gateway and the scheduler sweep, so all transitions
// funnel through this service.
package rent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ulocker/u-locker-server/internal/ledger"
	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

// The maximum number of overdue hours ever billed as a fine. Keeping
// a room a week past its end time costs the same as keeping it one
// day.
const maxFineHours = 24

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRentNotFound = errors.New("rent not found")
	ErrInvalidRange = errors.New("end time cannot be before start time")
	ErrRoomOccupied = errors.New("room is already rented")
	ErrNotActive    = errors.New("rent is not active")
	ErrOverdue      = errors.New("rent is overdue")
	ErrAlreadyDone  = errors.New("rent is already done")
)

// StopResult statuses. NeedsPayment means the rent was left
// untouched because the user's balance cannot cover the fine; the
// caller tops up and retries.
const (
	StopDone         = model.RentDone
	StopNeedsPayment = "NEEDS_PAYMENT"
)

// StopResult is the outcome of StopRent.
type StopResult struct {
	Status    string
	Shortfall int64 // credit-hours missing when Status is NEEDS_PAYMENT
}

// RentingStore is the slice of the renting repository the service
// needs.
type RentingStore interface {
	Create(ctx context.Context, rt *model.Renting) error
	GetByID(ctx context.Context, id uint64) (model.Renting, error)
	GetDetail(ctx context.Context, id uint64) (repository.RentingDetail, error)
	FindActiveByRoom(ctx context.Context, roomID uint64) (model.Renting, error)
	ListByUser(ctx context.Context, userID uint64) ([]model.Renting, error)
	ListActiveByUser(ctx context.Context, userID uint64) ([]model.Renting, error)
	UpdateStatusIf(ctx context.Context, id uint64, from []string, to string) (bool, error)
}

// RoomStore resolves rooms with their hardware coordinates.
type RoomStore interface {
	GetDetail(ctx context.Context, roomID uint64) (repository.RoomDetail, error)
}

// Commander is the device command surface the service drives. The
// gateway implements it. Commands are side effects, not
// preconditions: a failed publish is logged and the state transition
// stands, because the device resyncs from the next snapshot.
type Commander interface {
	OpenDoor(ctx context.Context, machineID string, doorID int) error
	ShowMessage(ctx context.Context, machineID, text string) error
	PushState(ctx context.Context, machineID string) error
}

// Service is the rent state machine.
type Service struct {
	rentings RentingStore
	rooms    RoomStore
	ledger   *ledger.Service
	devices  Commander
	now      func() time.Time
}

func NewService(rentings RentingStore, rooms RoomStore, lg *ledger.Service, devices Commander) *Service {
	return &Service{
		rentings: rentings,
		rooms:    rooms,
		ledger:   lg,
		devices:  devices,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// StartRent creates an ACTIVE renting for the room, debiting
// floor((end-start)/1h) credit-hours up front. It fails without any
// state change on an invalid range, an occupied room or an
// insufficient balance (reporting the shortfall). On success the
// cabinet receives a fresh occupancy snapshot.
func (s *Service) StartRent(ctx context.Context, userID, roomID uint64, start, end time.Time) (*model.Renting, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	room, err := s.rooms.GetDetail(ctx, roomID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	// At most one ACTIVE/OVERDUE renting per room.
	if _, err := s.rentings.FindActiveByRoom(ctx, roomID); err == nil {
		return nil, ErrRoomOccupied
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	requiredHours := int64(end.Sub(start) / time.Hour)
	balance, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if requiredHours > balance {
		return nil, &ledger.InsufficientCreditError{Shortfall: requiredHours - balance}
	}

	rt := &model.Renting{
		UserID:    userID,
		RoomID:    roomID,
		StartTime: start.UTC(),
		EndTime:   end.UTC(),
		Status:    model.RentActive,
	}
	if err := s.rentings.Create(ctx, rt); err != nil {
		return nil, err
	}
	if requiredHours > 0 {
		if _, err := s.ledger.Debit(ctx, userID, requiredHours, &rt.ID); err != nil {
			return nil, fmt.Errorf("debit rent charge: %w", err)
		}
	}

	if err := s.devices.PushState(ctx, room.MachineID); err != nil {
		log.Printf("rent: state push after start: %v", err)
	}
	return rt, nil
}

// MarkOverdueIfExpired transitions an ACTIVE renting to OVERDUE once
// its end time has passed. It is idempotent and safe to call from
// every read path; the transition is compare-and-set so a racing
// stop cannot be overwritten.
func (s *Service) MarkOverdueIfExpired(ctx context.Context, rt *model.Renting) error {
	if !rt.ExpiredAt(s.now()) {
		return nil
	}
	swapped, err := s.rentings.UpdateStatusIf(ctx, rt.ID, []string{model.RentActive}, model.RentOverdue)
	if err != nil {
		return err
	}
	if swapped {
		rt.Status = model.RentOverdue
		return nil
	}
	// Someone else transitioned it first; reflect whatever won.
	fresh, err := s.rentings.GetByID(ctx, rt.ID)
	if err != nil {
		return err
	}
	rt.Status = fresh.Status
	return nil
}

// GetRent returns a renting with its overdue status refreshed.
func (s *Service) GetRent(ctx context.Context, rentingID uint64) (model.Renting, error) {
	rt, err := s.rentings.GetByID(ctx, rentingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rt, ErrRentNotFound
		}
		return rt, err
	}
	if err := s.MarkOverdueIfExpired(ctx, &rt); err != nil {
		return rt, err
	}
	return rt, nil
}

// History returns the user's full rent history.
func (s *Service) History(ctx context.Context, userID uint64) ([]model.Renting, error) {
	return s.rentings.ListByUser(ctx, userID)
}

// Active returns the user's ACTIVE and OVERDUE rentings.
func (s *Service) Active(ctx context.Context, userID uint64) ([]model.Renting, error) {
	return s.rentings.ListActiveByUser(ctx, userID)
}

// OpenRoom unlocks the rented door. The overdue status is refreshed
// first: an overdue rent gets a display warning instead of an open
// door. Opening does not end the rental.
func (s *Service) OpenRoom(ctx context.Context, rentingID uint64) error {
	d, err := s.rentings.GetDetail(ctx, rentingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRentNotFound
		}
		return err
	}
	if err := s.MarkOverdueIfExpired(ctx, &d.Renting); err != nil {
		return err
	}
	if d.Status == model.RentOverdue {
		if err := s.devices.ShowMessage(ctx, d.MachineID, "Room overdue, please pay fine first on the app"); err != nil {
			log.Printf("rent: overdue warning: %v", err)
		}
		return ErrOverdue
	}
	if d.Status != model.RentActive {
		return ErrNotActive
	}
	if err := s.devices.ShowMessage(ctx, d.MachineID, fmt.Sprintf("Opening Room %d...", d.DoorID)); err != nil {
		log.Printf("rent: lcd: %v", err)
	}
	if err := s.devices.OpenDoor(ctx, d.MachineID, d.DoorID); err != nil {
		log.Printf("rent: open door: %v", err)
	}
	return nil
}

// StopRent ends a rental. An overdue rent is fined one credit-hour
// per full hour past the end time, capped at 24; when the balance
// cannot cover the fine the rent is left untouched and the shortfall
// reported so the user can top up and retry. Otherwise the fine (if
// any) is debited, the renting transitions to DONE and the door is
// unlocked unconditionally so occupants are never locked in.
func (s *Service) StopRent(ctx context.Context, rentingID uint64) (StopResult, error) {
	d, err := s.rentings.GetDetail(ctx, rentingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StopResult{}, ErrRentNotFound
		}
		return StopResult{}, err
	}
	if d.Status == model.RentDone {
		return StopResult{}, ErrAlreadyDone
	}

	now := s.now()
	var overdueHours int64
	if now.After(d.EndTime) {
		overdueHours = int64(now.Sub(d.EndTime) / time.Hour)
		if overdueHours > maxFineHours {
			overdueHours = maxFineHours
		}
	}

	if overdueHours > 0 {
		balance, err := s.ledger.Balance(ctx, d.UserID)
		if err != nil {
			return StopResult{}, err
		}
		if overdueHours > balance {
			return StopResult{Status: StopNeedsPayment, Shortfall: overdueHours - balance}, nil
		}
		if _, err := s.ledger.Debit(ctx, d.UserID, overdueHours, &d.ID); err != nil {
			return StopResult{}, fmt.Errorf("debit fine: %w", err)
		}
	}

	swapped, err := s.rentings.UpdateStatusIf(ctx, d.ID,
		[]string{model.RentActive, model.RentOverdue}, model.RentDone)
	if err != nil {
		return StopResult{}, err
	}
	if !swapped {
		return StopResult{}, ErrAlreadyDone
	}

	// Final unlock happens even for overdue rents; occupants must
	// always be able to retrieve their belongings once they paid.
	if err := s.devices.OpenDoor(ctx, d.MachineID, d.DoorID); err != nil {
		log.Printf("rent: final unlock: %v", err)
	}
	if err := s.devices.PushState(ctx, d.MachineID); err != nil {
		log.Printf("rent: state push after stop: %v", err)
	}
	return StopResult{Status: StopDone}, nil
}
