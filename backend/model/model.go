package model

// Event names understood by the signaling endpoint.
const (
	EventJoin = "join"
)

// Event is a single text frame exchanged over the realtime channel.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

// JoinRequest announces that the local session belongs to a room keyed by user id.
type JoinRequest struct {
	UserID string `json:"userId"`
}

// RoomRequest is the body of a REST room join call.
type RoomRequest struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

// GenericResponse is what the REST API answers with, successful or not.
type GenericResponse struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}
