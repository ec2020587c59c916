// ABOUTME: Encoding and decoding of relay frames
// ABOUTME: Normalizes legacy sync-action shapes into the current message set
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownType is returned for sync-action types outside the message set
	ErrUnknownType = errors.New("unknown sync-action type")

	// ErrMalformed is returned when a frame cannot be parsed
	ErrMalformed = errors.New("malformed frame")
)

// EncodeEnvelope marshals an event and its data into a relay frame
func EncodeEnvelope(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s data: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// DecodeEnvelope parses a relay frame
func DecodeEnvelope(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return env, nil
}

// DecodeRoomID parses the data of join-room and leave-room events
func DecodeRoomID(data json.RawMessage) (string, error) {
	var roomID string
	if err := json.Unmarshal(data, &roomID); err != nil {
		return "", fmt.Errorf("%w: room id: %v", ErrMalformed, err)
	}
	if strings.TrimSpace(roomID) == "" {
		return "", fmt.Errorf("%w: empty room id", ErrMalformed)
	}
	return roomID, nil
}

// DecodeSyncAction parses sync-action data.
// URL_CHANGE{url} decodes as LOAD{locator} and a time field stands in for a
// missing position.
func DecodeSyncAction(data json.RawMessage) (SyncAction, error) {
	var w wireAction
	if err := json.Unmarshal(data, &w); err != nil {
		return SyncAction{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	var p wirePayload
	if len(w.Payload) > 0 && string(w.Payload) != "null" {
		if err := json.Unmarshal(w.Payload, &p); err != nil {
			return SyncAction{}, fmt.Errorf("%w: payload: %v", ErrMalformed, err)
		}
	}

	action := SyncAction{RoomID: w.RoomID, Type: w.Type}

	position := p.Position
	if position == nil {
		position = p.Time
	}
	if position != nil {
		v := ClampPosition(*position)
		position = &v
	}

	switch w.Type {
	case TypeLoad, typeURLChange:
		action.Type = TypeLoad
		action.Payload.Locator = p.Locator
		if action.Payload.Locator == "" {
			action.Payload.Locator = p.URL
		}
		if action.Payload.Locator == "" {
			return SyncAction{}, fmt.Errorf("%w: LOAD without locator", ErrMalformed)
		}
	case TypePlay, TypeSeek, TypePause:
		action.Payload.Position = position
	default:
		return SyncAction{}, fmt.Errorf("%w: %q", ErrUnknownType, w.Type)
	}

	return action, nil
}
