package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var (
	ErrMalformedCommand = errors.New("malformed command")
	ErrUnknownCommand   = errors.New("unknown command type")
)

var validate = validator.New()

// Command is a decoded inbound room session frame.
type Command interface {
	commandType() string
}

type TypingCommand struct{}

type SendCommand struct {
	Message  string          `json:"message"`
	File     string          `json:"file"`
	ReplyTo  *int64          `json:"reply_to"`
	ClientID json.RawMessage `json:"client_id"`
}

type EditCommand struct {
	ID      int64  `json:"id" validate:"required,gt=0"`
	Message string `json:"message" validate:"required"`
}

type DeleteCommand struct {
	ID int64 `json:"id" validate:"required,gt=0"`
}

func (TypingCommand) commandType() string { return "typing" }
func (SendCommand) commandType() string   { return "message" }
func (EditCommand) commandType() string   { return "edit" }
func (DeleteCommand) commandType() string { return "delete" }

// DecodeCommand parses a client frame selected by its "type" field.
func DecodeCommand(raw []byte) (Command, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}

	var cmd Command
	switch head.Type {
	case "typing":
		return TypingCommand{}, nil
	case "message":
		var c SendCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		if string(c.ClientID) == "null" {
			c.ClientID = nil
		}
		return c, nil
	case "edit":
		var c EditCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		cmd = c
	case "delete":
		var c DeleteCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
		}
		cmd = c
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, head.Type)
	}

	if err := validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCommand, err)
	}
	return cmd, nil
}
