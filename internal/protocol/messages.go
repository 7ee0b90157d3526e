// Package protocol defines the JSON events exchanged over the signaling socket.
//
// Every frame is a JSON object with a "type" field naming the event; the
// remaining fields are the event payload.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/meshcall/internal/core"
	"github.com/dkeye/meshcall/internal/domain"
)

// Inbound events.
const (
	TypeJoin                = "join"
	TypeLeave               = "leave"
	TypeOffer               = "webrtc-offer"
	TypeAnswer              = "webrtc-answer"
	TypeIceCandidate        = "webrtc-ice-candidate"
	TypeHangUp              = "webrtc-hang-up"
	TypeGetRoomParticipants = "get-room-participants"
	TypePing                = "ping"
	TypeWhoAmI              = "whoami"
	TypeLogout              = "logout"
)

// Outbound events.
const (
	TypeJoinSuccess           = "joinSuccess"
	TypeJoinError             = "joinError"
	TypeLeaveSuccess          = "leaveSuccess"
	TypeLeaveError            = "leaveError"
	TypeParticipantsUpdate    = "participantsUpdate"
	TypeOfferReceived         = "webrtc-offer-received"
	TypeAnswerReceived        = "webrtc-answer-received"
	TypeIceCandidateReceived  = "webrtc-ice-candidate-received"
	TypeCallEnded             = "webrtc-call-ended"
	TypeValidationError       = "webrtc-validation-error"
	TypeWebRTCError           = "webrtc-error"
	TypeRoomParticipants      = "room-participants"
	TypeRoomParticipantsError = "room-participants-error"
	TypePong                  = "pong"
	TypeAuthError             = "authError"
	TypeError                 = "error"
)

var ErrMissingType = errors.New("missing type")

type envelope struct {
	Type string `json:"type"`
}

// ParseType reads the event name of a raw frame.
func ParseType(data []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if env.Type == "" {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidPayload, ErrMissingType)
	}
	return env.Type, nil
}

// Encode renders payload as a frame of event typ. payload must marshal to a
// JSON object (or be nil).
func Encode(typ string, payload any) (core.Frame, error) {
	head, err := json.Marshal(envelope{Type: typ})
	if err != nil {
		return nil, err
	}
	if payload == nil {
		return head, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	body = bytes.TrimSpace(body)
	if len(body) < 2 || body[0] != '{' {
		return nil, fmt.Errorf("encode %s: payload is not an object", typ)
	}
	if bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	out = append(out, body[1:]...)
	return out, nil
}

// RoomRequest is the payload of join, leave and get-room-participants.
type RoomRequest struct {
	RoomID domain.RoomID `json:"roomId"`
}

func DecodeRoomRequest(data []byte) (RoomRequest, error) {
	var req RoomRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	if req.RoomID == "" {
		return req, fmt.Errorf("%w: roomId is required", domain.ErrInvalidPayload)
	}
	return req, nil
}

type RoomAck struct {
	RoomID  domain.RoomID `json:"roomId"`
	Message string        `json:"message"`
}

// ErrorEvent is the only error shape that crosses the boundary.
type ErrorEvent struct {
	RoomID  domain.RoomID `json:"roomId,omitempty"`
	Context string        `json:"context"`
	Error   string        `json:"error"`
}

func NewErrorEvent(context string, room domain.RoomID, err error) ErrorEvent {
	return ErrorEvent{RoomID: room, Context: context, Error: err.Error()}
}

type ParticipantsUpdate struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

type RoomParticipants struct {
	RoomID       domain.RoomID        `json:"roomId"`
	Participants []domain.Participant `json:"participants"`
}

type WhoAmI struct {
	UserID   domain.UserID `json:"userId"`
	Username string        `json:"username"`
}

type AuthError struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
