package domain

import "time"

type RoomInfo struct {
	ID        string           `json:"id"`
	Members   int              `json:"members"`
	Users     []PresenceRecord `json:"users"`
	HasState  bool             `json:"hasState"`
	CreatedAt time.Time        `json:"createdAt"`
}
