package types

import (
	"encoding/json"
	"errors"
)

// Command is the closed set of commands carried in an envelope.
type Command int

const (
	CommandUnknown Command = iota
	CommandPath
	CommandCheck
	CommandRun
	CommandLog
)

var commandNames = map[Command]string{
	CommandPath:  "path",
	CommandCheck: "healthCheck",
	CommandRun:   "run",
	CommandLog:   "log",
}

// ParseCommand maps a wire value to a Command. Unrecognized values yield CommandUnknown.
func ParseCommand(s string) Command {
	for c, name := range commandNames {
		if name == s {
			return c
		}
	}
	return CommandUnknown
}

// String returns the wire value of a Command.
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return "unknown"
}

// Envelope is the outer JSON object of every framed request and report.
type Envelope struct {
	Cmd     string          `json:"cmd"`
	Message json.RawMessage `json:"message,omitempty"`
}

// Command returns the parsed command of the envelope.
func (e Envelope) Command() Command {
	return ParseCommand(e.Cmd)
}

// StringMessage returns the message as a string. A JSON string is unquoted; any
// other JSON value is returned verbatim.
func (e Envelope) StringMessage() string {
	var s string
	if err := json.Unmarshal(e.Message, &s); err == nil {
		return s
	}
	return string(e.Message)
}

// ErrorResponse is written back for commands the agent refuses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrEmptyMessage is returned when an envelope carries no message.
var ErrEmptyMessage = errors.New("envelope message is empty")

// NewEnvelope builds an envelope whose message is the JSON encoding of v.
func NewEnvelope(cmd Command, v any) (Envelope, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Cmd: cmd.String(), Message: raw}, nil
}
