package model

import "time"

// TurnEvent is published after a durable turn completes.
type TurnEvent struct {
	ChatID   string    `json:"chat_id"`
	UserID   uint      `json:"user_id"`
	Prompt   string    `json:"prompt"`
	Modality string    `json:"modality"`
	At       time.Time `json:"at"`
}
