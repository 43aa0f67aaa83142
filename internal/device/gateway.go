package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/ulocker/u-locker-server/internal/model"
	"github.com/ulocker/u-locker-server/internal/repository"
)

// Display texts pushed to the cabinet LCD.
const (
	msgOverdue = "Room overdue, please pay fine first on the app"
)

// RentingStore is the slice of the renting repository the gateway
// needs to answer card taps.
type RentingStore interface {
	FindActiveByCardUID(ctx context.Context, cardUID string) (repository.RentingDetail, error)
	UpdateStatusIf(ctx context.Context, id uint64, from []string, to string) (bool, error)
}

// LockerStore updates the heartbeat watermark.
type LockerStore interface {
	UpdateHeartbeat(ctx context.Context, machineID string, at time.Time) (bool, error)
}

// TapQueue records unclaimed card taps for later binding.
type TapQueue interface {
	Enqueue(ctx context.Context, cardUID, machineID string) (model.NFCQueueEntry, bool, error)
}

// Gateway is the sole writer to the command topic and the sole
// dispatcher for inbound device messages. It is an explicitly
// constructed instance owned by the composition root; nothing in
// this package keeps process-wide connection state.
//
// Publishing is best-effort and at-most-once: a failed publish is
// logged and never retried, because database state is the source of
// truth and the device self-heals from the next STATE snapshot.
type Gateway struct {
	pub      Publisher
	topic    string // command topic (server -> devices)
	rentings RentingStore
	lockers  LockerStore
	taps     TapQueue
	snapshot *SnapshotBuilder
	now      func() time.Time
}

func NewGateway(pub Publisher, commandTopic string, rentings RentingStore, lockers LockerStore, taps TapQueue, snapshot *SnapshotBuilder) *Gateway {
	return &Gateway{
		pub:      pub,
		topic:    commandTopic,
		rentings: rentings,
		lockers:  lockers,
		taps:     taps,
		snapshot: snapshot,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Publish encodes and sends one command frame to the cabinet.
func (g *Gateway) Publish(ctx context.Context, machineID, command, data string) error {
	payload, err := Frame{MachineID: machineID, Command: command, Data: data}.Encode()
	if err != nil {
		return err
	}
	if err := g.pub.Publish(ctx, g.topic, payload); err != nil {
		return fmt.Errorf("publish %s to %s: %w", command, machineID, err)
	}
	return nil
}

// OpenDoor commands the cabinet to unlock one door.
func (g *Gateway) OpenDoor(ctx context.Context, machineID string, doorID int) error {
	return g.Publish(ctx, machineID, CmdOpenDoor, strconv.Itoa(doorID))
}

// ShowMessage puts free text on the cabinet display.
func (g *Gateway) ShowMessage(ctx context.Context, machineID, text string) error {
	return g.Publish(ctx, machineID, CmdLCD, text)
}

// PushState publishes the full occupancy snapshot for the cabinet.
func (g *Gateway) PushState(ctx context.Context, machineID string) error {
	state, err := g.snapshot.BuildJSON(ctx, machineID)
	if err != nil {
		return fmt.Errorf("build snapshot for %s: %w", machineID, err)
	}
	return g.Publish(ctx, machineID, CmdState, state)
}

// HandleMessage dispatches one inbound frame from the response
// topic. A malformed or failing message is logged and dropped; the
// dispatcher itself must survive anything a device sends, so the
// handler also recovers panics.
func (g *Gateway) HandleMessage(ctx context.Context, payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("gateway: panic handling %q: %v", payload, r)
		}
	}()

	frame, err := Decode(string(payload))
	if err != nil {
		log.Printf("gateway: dropping malformed frame %q: %v", payload, err)
		return
	}

	switch frame.Command {
	case CmdNFCRead:
		if err := g.handleNFCRead(ctx, frame); err != nil {
			log.Printf("gateway: nfc read from %s: %v", frame.MachineID, err)
		}
	case CmdHeartbeat:
		if err := g.handleHeartbeat(ctx, frame); err != nil {
			log.Printf("gateway: heartbeat from %s: %v", frame.MachineID, err)
		}
	case CmdStartup:
		if err := g.handleStartup(ctx, frame); err != nil {
			log.Printf("gateway: startup from %s: %v", frame.MachineID, err)
		}
	default:
		// Devices echo commands back as acknowledgements.
		log.Printf("gateway: ack from %s: %s", frame.MachineID, frame.Command)
	}
}

// handleNFCRead answers a card tap. A tap from the renter of an
// ACTIVE renting on this cabinet opens the door (after an overdue
// refresh); a tap from any other card is recorded in the binding
// queue so registration can claim it.
func (g *Gateway) handleNFCRead(ctx context.Context, frame Frame) error {
	cardUID := frame.Data
	if cardUID == "" {
		log.Printf("gateway: nfc read from %s without card uid, dropping", frame.MachineID)
		return nil
	}

	detail, err := g.rentings.FindActiveByCardUID(ctx, cardUID)
	switch {
	case err == nil && detail.MachineID == frame.MachineID:
		if err := g.answerTap(ctx, detail); err != nil {
			return err
		}
	case err == nil:
		// Valid card, wrong cabinet: the renting lives elsewhere.
		log.Printf("gateway: card %s tapped on %s but rents on %s, ignoring", cardUID, frame.MachineID, detail.MachineID)
	case errors.Is(err, sql.ErrNoRows):
		// No active renting for this card; fall through to enqueue.
	default:
		return err
	}

	// Record the tap for first-time binding flows regardless of the
	// match outcome. Enqueue is idempotent per card.
	if _, created, err := g.taps.Enqueue(ctx, cardUID, frame.MachineID); err != nil {
		return fmt.Errorf("enqueue tap: %w", err)
	} else if created {
		log.Printf("gateway: queued unclaimed tap card=%s machine=%s", cardUID, frame.MachineID)
	}
	return nil
}

// answerTap refreshes the renting's overdue status and either opens
// the door or warns on the display.
func (g *Gateway) answerTap(ctx context.Context, d repository.RentingDetail) error {
	if d.ExpiredAt(g.now()) {
		if _, err := g.rentings.UpdateStatusIf(ctx, d.ID, []string{model.RentActive}, model.RentOverdue); err != nil {
			return err
		}
		d.Status = model.RentOverdue
	}
	if d.Status != model.RentActive {
		if err := g.ShowMessage(ctx, d.MachineID, msgOverdue); err != nil {
			log.Printf("gateway: %v", err)
		}
		return nil
	}
	if err := g.ShowMessage(ctx, d.MachineID, fmt.Sprintf("Opening Room %d...", d.DoorID)); err != nil {
		log.Printf("gateway: %v", err)
	}
	if err := g.OpenDoor(ctx, d.MachineID, d.DoorID); err != nil {
		log.Printf("gateway: %v", err)
	}
	return nil
}

func (g *Gateway) handleHeartbeat(ctx context.Context, frame Frame) error {
	known, err := g.lockers.UpdateHeartbeat(ctx, frame.MachineID, g.now())
	if err != nil {
		return err
	}
	if !known {
		log.Printf("gateway: heartbeat from unregistered machine %s", frame.MachineID)
	}
	return nil
}

// handleStartup resynchronizes a cold-booted cabinet that lost its
// local occupancy memory by republishing the full STATE snapshot.
func (g *Gateway) handleStartup(ctx context.Context, frame Frame) error {
	log.Printf("gateway: machine %s reported startup, pushing state", frame.MachineID)
	return g.PushState(ctx, frame.MachineID)
}
