package app

import (
	"errors"
	"fmt"

	"dahdouh-ai/internal/repository"
	"dahdouh-ai/internal/storage"
)

var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrUsernameExists    = errors.New("username already exists")
	ErrEmailExists       = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid username or password")

	ErrUnauthorized    = errors.New("unauthorized")
	ErrPromptEmpty     = errors.New("prompt cannot be empty")
	ErrInvalidChatID   = errors.New("invalid chat id")
	ErrInvalidChatName = errors.New("invalid chat name")
	ErrGeneration      = errors.New("generation failed")
	ErrPersistence     = errors.New("chat persistence failed")

	ErrChatNotFound  = repository.ErrChatNotFound
	ErrStorage       = storage.ErrStorage
	ErrImageRejected = storage.ErrForeignObject
)

// TurnError reports a turn that failed after validation. UserMessageSaved tells
// the caller whether the prompt is already part of the chat history.
type TurnError struct {
	Err              error
	UserMessageSaved bool
}

func (e *TurnError) Error() string {
	if e.UserMessageSaved {
		return fmt.Sprintf("%v (user message saved)", e.Err)
	}
	return e.Err.Error()
}

func (e *TurnError) Unwrap() error { return e.Err }
