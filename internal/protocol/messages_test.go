package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRequestRoundTrip(t *testing.T) {
	msg := ConnectRequest{TaxiID: 1, X: 3, Y: 4, Speed: 2, Status: "available"}
	encoded := msg.Encode()
	assert.Equal(t, "connect_request 1 3 4 2 available", encoded)

	parsed, err := ParseConnectRequest(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestParseConnectRequestMalformed(t *testing.T) {
	tests := []string{
		"",
		"connect_request 1 2 3",
		"wrong_keyword 1 2 3 4 available",
		"connect_request x 2 3 4 available",
	}
	for _, frame := range tests {
		_, err := ParseConnectRequest(frame)
		assert.ErrorIs(t, err, ErrMalformed, "frame %q", frame)
	}
}

func TestConnectAckRoundTrip(t *testing.T) {
	msg := ConnectAck{TaxiID: 7}
	parsed, err := ParseConnectAck(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestPositionUpdateRoundTrip(t *testing.T) {
	msg := PositionUpdate{TaxiID: 1, X: 5, Y: 6, Speed: 4, Status: "available"}
	encoded := msg.Encode()
	assert.Equal(t, "1 5 6 4 available", encoded)

	parsed, err := ParsePositionUpdate(encoded)
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestHeartbeatRoundTrip(t *testing.T) {
	msg := Heartbeat{TaxiID: 9}
	assert.Equal(t, "heartbeat 9", msg.Encode())

	parsed, err := ParseHeartbeat(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestUserRequestRoundTrip(t *testing.T) {
	msg := UserRequest{UserID: 1, X: 3, Y: 4}
	assert.Equal(t, "user_request 1 3 4", msg.Encode())

	parsed, err := ParseUserRequest(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestAssignTaxiRoundTrip(t *testing.T) {
	msg := AssignTaxi{TaxiID: 3}
	assert.Equal(t, "assign_taxi 3", msg.Encode())

	parsed, err := ParseAssignTaxi(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestAssignBroadcastRoundTripAndTopic(t *testing.T) {
	msg := AssignBroadcast{TaxiID: 3, UserID: 1}
	assert.Equal(t, "assign 3 1", msg.Encode())
	assert.Equal(t, "assign 3", msg.Topic())
	assert.Equal(t, "assign 3", AssignTopic(3))

	parsed, err := ParseAssignBroadcast(msg.Encode())
	require.NoError(t, err)
	assert.Equal(t, msg, parsed)
}

func TestParseAssignBroadcastMalformed(t *testing.T) {
	_, err := ParseAssignBroadcast("assign 3")
	assert.ErrorIs(t, err, ErrMalformed)

	_, err = ParseAssignBroadcast("assign x 1")
	assert.ErrorIs(t, err, ErrMalformed)
}
