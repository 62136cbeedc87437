package domain

import "time"

// RoomStatus represents the lifecycle state of a multiplayer room.
type RoomStatus string

const (
	RoomStatusWaiting  RoomStatus = "waiting"
	RoomStatusReady    RoomStatus = "ready"
	RoomStatusFinished RoomStatus = "finished"
)

// RoomPlayer is one participant in a multiplayer room.
type RoomPlayer struct {
	ID    string `json:"id"`
	Ready bool   `json:"ready"`
	Score int64  `json:"score"`
}

// Room is the ephemeral, best-effort state of one multiplayer match. It lives
// in process memory only; finished results are persisted separately.
type Room struct {
	ID         string       `json:"id"`
	HostID     string       `json:"host_id"`
	Players    []RoomPlayer `json:"players"`
	MaxPlayers int          `json:"max_players"`
	Status     RoomStatus   `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
}

// RoomScoreState is the sync-time view of a room's scores.
type RoomScoreState struct {
	RoomID    string       `json:"room_id"`
	Scores    []RoomPlayer `json:"scores"`
	GameEnded bool         `json:"game_ended"`
	WinnerID  string       `json:"winner_id,omitempty"`
}
