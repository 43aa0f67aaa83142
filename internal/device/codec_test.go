package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeFullFrame(t *testing.T) {
	f, err := Decode("0cfa-4ed7-a8d7#NFC_READ#04a1b2c3")
	require.NoError(t, err)
	assert.Equal(t, "0cfa-4ed7-a8d7", f.MachineID)
	assert.Equal(t, "NFC_READ", f.Command)
	assert.Equal(t, "04a1b2c3", f.Data)
}

func TestDecodeWithoutData(t *testing.T) {
	f, err := Decode("0cfa-4ed7-a8d7#HEARTBEAT")
	require.NoError(t, err)
	assert.Equal(t, "HEARTBEAT", f.Command)
	assert.Empty(t, f.Data)
}

func TestDecodeKeepsExtraSeparatorsInData(t *testing.T) {
	// Only the first two '#' delimit fields.
	f, err := Decode("0cfa-4ed7-a8d7#LCD#a#b#c")
	require.NoError(t, err)
	assert.Equal(t, "a#b#c", f.Data)
}

func TestDecodeRejectsMalformed(t *testing.T) {
	for _, payload := range []string{
		"",
		"#",
		"0cfa-4ed7-a8d7",          // no command
		"0cfa-4ed7-a8d7#",         // empty command
		"#HEARTBEAT",              // no machine id
		"not-a-machine#HEARTBEAT", // bad address format
		"0CFA-4ED7-A8D7#HEARTBEAT", // uppercase hex
		"0cfa-4ed7#HEARTBEAT",     // too few groups
	} {
		_, err := Decode(payload)
		assert.ErrorIs(t, err, ErrInvalidPayload, "payload %q", payload)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := Frame{MachineID: "0cfa-4ed7-a8d7", Command: "OPEN_DOOR", Data: "3"}
	wire, err := in.Encode()
	require.NoError(t, err)
	assert.Equal(t, "0cfa-4ed7-a8d7#OPEN_DOOR#3", wire)

	out, err := Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEncodeOmitsEmptyData(t *testing.T) {
	wire, err := Frame{MachineID: "0cfa-4ed7-a8d7", Command: "HEARTBEAT"}.Encode()
	require.NoError(t, err)
	assert.Equal(t, "0cfa-4ed7-a8d7#HEARTBEAT", wire)
}

func TestEncodeRejectsSeparatorInData(t *testing.T) {
	_, err := Frame{MachineID: "0cfa-4ed7-a8d7", Command: "LCD", Data: "a#b"}.Encode()
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEncodeRejectsBadMachineID(t *testing.T) {
	_, err := Frame{MachineID: "nope", Command: "LCD", Data: "hi"}.Encode()
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestValidMachineID(t *testing.T) {
	assert.True(t, ValidMachineID("0cfa-4ed7-a8d7"))
	assert.False(t, ValidMachineID("0cfa-4ed7-a8d7-ffff"))
	assert.False(t, ValidMachineID(""))
}
