// Package device implements the locker hardware integration: the
// text-frame wire codec, the AMQP bus client and the gateway that
// publishes commands and dispatches inbound device events.
package device

import (
	"errors"
	"regexp"
	"strings"
)

// Commands sent to the hardware.
const (
	CmdOpenDoor = "OPEN_DOOR" // data: door number
	CmdLCD      = "LCD"       // data: free text shown on the cabinet display
	CmdState    = "STATE"     // data: JSON array of {doorId,cardUid} pairs
)

// Commands reported by the hardware. Anything else on the response
// topic is treated as an acknowledgement and only logged.
const (
	CmdNFCRead   = "NFC_READ" // data: card UID read by the cabinet
	CmdHeartbeat = "HEARTBEAT"
	CmdStartup   = "STARTUP" // cold boot, local occupancy memory lost
)

// ErrInvalidPayload is returned when a frame cannot be decoded:
// missing machine ID or command, or a machine ID that does not match
// the hardware address format.
var ErrInvalidPayload = errors.New("invalid payload")

// machineIDPattern is the hardware bus address format, three
// dash-separated groups of four lowercase hex digits
// (e.g. "0cfa-4ed7-a8d7").
var machineIDPattern = regexp.MustCompile(`^[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}$`)

// ValidMachineID reports whether s is a well-formed hardware bus
// address. Used when registering lockers so a cabinet that can never
// be addressed is rejected up front.
func ValidMachineID(s string) bool { return machineIDPattern.MatchString(s) }

// Frame is one message on the device bus. The wire form is a single
// ASCII line with fields joined by '#':
//
//	<machineId>#<COMMAND>#<data>
//
// Data is optional and opaque to the codec. The format has no
// escaping, so data must never contain '#'; Encode enforces that.
type Frame struct {
	MachineID string
	Command   string
	Data      string
}

// Decode parses a wire frame. The data field, when present, is kept
// verbatim including any further '#' characters, so only the first
// two separators delimit fields.
func Decode(payload string) (Frame, error) {
	parts := strings.SplitN(payload, "#", 3)
	var f Frame
	f.MachineID = parts[0]
	if len(parts) > 1 {
		f.Command = parts[1]
	}
	if len(parts) > 2 {
		f.Data = parts[2]
	}
	if f.MachineID == "" || f.Command == "" {
		return Frame{}, ErrInvalidPayload
	}
	if !machineIDPattern.MatchString(f.MachineID) {
		return Frame{}, ErrInvalidPayload
	}
	return f, nil
}

// Encode serializes the frame to its wire form. It rejects frames
// whose data contains the '#' delimiter, since decoding such a frame
// would desynchronize the fields.
func (f Frame) Encode() (string, error) {
	if !machineIDPattern.MatchString(f.MachineID) {
		return "", ErrInvalidPayload
	}
	if f.Command == "" || strings.Contains(f.Command, "#") {
		return "", ErrInvalidPayload
	}
	if strings.Contains(f.Data, "#") {
		return "", ErrInvalidPayload
	}
	if f.Data == "" {
		return f.MachineID + "#" + f.Command, nil
	}
	return f.MachineID + "#" + f.Command + "#" + f.Data, nil
}
