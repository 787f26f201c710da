// This file defines Message entities and their validation rules.
// Messages are immutable once appended and never reordered after the
// store assigns their timestamp.
package domain

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"wordins/errors"
)

// Effect is a transient visual cue attached to a message. Rendering is
// entirely the presentation layer's concern; the engine forwards it as-is.
type Effect string

const (
	EffectNone     Effect = ""
	EffectHearts   Effect = "hearts"
	EffectConfetti Effect = "confetti"
	EffectBalloons Effect = "balloons"
	EffectPop      Effect = "pop"
	EffectFirework Effect = "fireworks"
)

// Message is an immutable chat event. Sender name and avatar are snapshots
// captured at send time, not live-joined against the user's profile.
type Message struct {
	ID         uuid.UUID
	RoomID     string
	SenderID   string
	SenderName string
	AvatarURL  string
	Body       string
	Effect     Effect
	SentAt     time.Time
}

// Draft is the caller-controlled part of a message, validated before any
// store write. An empty body is permitted only alongside an effect tag.
type Draft struct {
	Body   string `validate:"required_without=Effect,max=500"`
	Effect Effect `validate:"omitempty,oneof=hearts confetti balloons pop fireworks"`
}

var validate = validator.New()

func (d Draft) Validate() error {
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidMessage, err)
	}
	return nil
}
