package ipc

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// CommandType represents the command type
type CommandType string

const (
	CmdStatus   CommandType = "STATUS"
	CmdRun      CommandType = "RUN"
	CmdSetPaths CommandType = "SET_PATHS"
	CmdQuit     CommandType = "QUIT"
)

// Payload keys
const (
	KeySourceDir = "source_dir"
	KeyDestDir   = "dest_dir"
)

// Command represents a command sent from CLI to daemon
type Command struct {
	Type    CommandType       `json:"type"`
	Payload map[string]string `json:"payload,omitempty"`
}

// Response represents a response sent from daemon to CLI
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Hint    string          `json:"hint,omitempty"`
}

// NewCommand creates a new command with the given type and payload
func NewCommand(cmdType CommandType, payload map[string]string) *Command {
	return &Command{
		Type:    cmdType,
		Payload: payload,
	}
}

// NewResponse creates a new response. data is encoded as JSON when non-nil.
func NewResponse(success bool, data any, err error) *Response {
	resp := &Response{
		Success: success,
	}
	if data != nil {
		raw, mErr := json.Marshal(data)
		if mErr != nil {
			resp.Success = false
			resp.Error = errors.Wrap(mErr, "failed to marshal response data").Error()
			return resp
		}
		resp.Data = raw
	}
	if err != nil {
		resp.Error = err.Error()
		resp.Hint = errors.FlattenHints(err)
	}
	return resp
}

// Err rebuilds the daemon's error, hints included. It returns nil for a
// successful response.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	msg := r.Error
	if msg == "" {
		msg = "daemon reported failure"
	}
	err := errors.New(msg)
	if r.Hint != "" {
		err = errors.WithHint(err, r.Hint)
	}
	return err
}

// DecodeData unmarshals the response data into v.
func (r *Response) DecodeData(v any) error {
	if len(r.Data) == 0 {
		return errors.New("response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return errors.Wrap(err, "failed to unmarshal response data")
	}
	return nil
}
