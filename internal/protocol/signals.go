package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/meshcall/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Signal is one relayable call-setup message. The variants share a single
// authorization step in the relay and differ only in validation and in the
// event the recipient gets.
type Signal interface {
	Kind() string
	Recipient() domain.UserID
	Room() domain.RoomID
	Validate() error
	// Received renders the event delivered to the recipient.
	Received(from domain.Identity) (string, any)
}

// route is the addressing shared by every variant. A client-supplied
// fromUserId is accepted on the wire but never read.
type route struct {
	ToUserID domain.UserID `json:"toUserId"`
	RoomID   domain.RoomID `json:"roomId"`
}

func (r route) Recipient() domain.UserID { return r.ToUserID }
func (r route) Room() domain.RoomID      { return r.RoomID }

func (r route) validate() error {
	if r.RoomID == "" {
		return fmt.Errorf("%w: roomId is required", domain.ErrInvalidPayload)
	}
	if r.ToUserID == "" {
		return fmt.Errorf("%w: toUserId is required", domain.ErrInvalidPayload)
	}
	return nil
}

type Offer struct {
	route
	SDP string `json:"sdp"`
}

type Answer struct {
	route
	SDP string `json:"sdp"`
}

type IceCandidate struct {
	route
	webrtc.ICECandidateInit
}

type HangUp struct {
	route
}

// SessionDescriptionReceived is delivered for offers and answers.
type SessionDescriptionReceived struct {
	SDP          string        `json:"sdp"`
	RoomID       domain.RoomID `json:"roomId"`
	FromUserID   domain.UserID `json:"fromUserId"`
	FromUsername string        `json:"fromUsername"`
}

type IceCandidateReceived struct {
	webrtc.ICECandidateInit
	RoomID       domain.RoomID `json:"roomId"`
	FromUserID   domain.UserID `json:"fromUserId"`
	FromUsername string        `json:"fromUsername"`
}

type CallEnded struct {
	RoomID       domain.RoomID `json:"roomId"`
	FromUserID   domain.UserID `json:"fromUserId"`
	FromUsername string        `json:"fromUsername"`
}

func (Offer) Kind() string { return TypeOffer }

func (o Offer) Validate() error {
	if err := o.validate(); err != nil {
		return err
	}
	return validateSDP(webrtc.SDPTypeOffer, o.SDP)
}

func (o Offer) Received(from domain.Identity) (string, any) {
	return TypeOfferReceived, SessionDescriptionReceived{
		SDP: o.SDP, RoomID: o.RoomID, FromUserID: from.UserID, FromUsername: from.Username,
	}
}

func (Answer) Kind() string { return TypeAnswer }

func (a Answer) Validate() error {
	if err := a.validate(); err != nil {
		return err
	}
	return validateSDP(webrtc.SDPTypeAnswer, a.SDP)
}

func (a Answer) Received(from domain.Identity) (string, any) {
	return TypeAnswerReceived, SessionDescriptionReceived{
		SDP: a.SDP, RoomID: a.RoomID, FromUserID: from.UserID, FromUsername: from.Username,
	}
}

func (IceCandidate) Kind() string { return TypeIceCandidate }

// Validate only checks shape; duplicate or late candidates are the peers'
// concern.
func (c IceCandidate) Validate() error {
	if err := c.validate(); err != nil {
		return err
	}
	if c.Candidate == "" {
		return fmt.Errorf("%w: candidate is required", domain.ErrInvalidPayload)
	}
	return nil
}

func (c IceCandidate) Received(from domain.Identity) (string, any) {
	return TypeIceCandidateReceived, IceCandidateReceived{
		ICECandidateInit: c.ICECandidateInit,
		RoomID:           c.RoomID,
		FromUserID:       from.UserID,
		FromUsername:     from.Username,
	}
}

func (HangUp) Kind() string { return TypeHangUp }

func (h HangUp) Validate() error { return h.validate() }

func (h HangUp) Received(from domain.Identity) (string, any) {
	return TypeCallEnded, CallEnded{RoomID: h.RoomID, FromUserID: from.UserID, FromUsername: from.Username}
}

// DecodeSignal parses the payload of a signaling event of type typ.
func DecodeSignal(typ string, data []byte) (Signal, error) {
	var (
		sig Signal
		err error
	)
	switch typ {
	case TypeOffer:
		var o Offer
		err = json.Unmarshal(data, &o)
		sig = o
	case TypeAnswer:
		var a Answer
		err = json.Unmarshal(data, &a)
		sig = a
	case TypeIceCandidate:
		var c IceCandidate
		err = json.Unmarshal(data, &c)
		sig = c
	case TypeHangUp:
		var h HangUp
		err = json.Unmarshal(data, &h)
		sig = h
	default:
		return nil, fmt.Errorf("%w: %q is not a signaling event", domain.ErrInvalidPayload, typ)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	return sig, nil
}

func validateSDP(t webrtc.SDPType, raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: sdp is required", domain.ErrInvalidPayload)
	}
	desc := webrtc.SessionDescription{Type: t, SDP: raw}
	if _, err := desc.Unmarshal(); err != nil {
		return fmt.Errorf("%w: malformed sdp: %v", domain.ErrInvalidPayload, err)
	}
	return nil
}

func NewOffer(to domain.UserID, room domain.RoomID, sdp string) Offer {
	return Offer{route: route{ToUserID: to, RoomID: room}, SDP: sdp}
}

func NewAnswer(to domain.UserID, room domain.RoomID, sdp string) Answer {
	return Answer{route: route{ToUserID: to, RoomID: room}, SDP: sdp}
}

func NewIceCandidate(to domain.UserID, room domain.RoomID, init webrtc.ICECandidateInit) IceCandidate {
	return IceCandidate{route: route{ToUserID: to, RoomID: room}, ICECandidateInit: init}
}

func NewHangUp(to domain.UserID, room domain.RoomID) HangUp {
	return HangUp{route: route{ToUserID: to, RoomID: room}}
}
