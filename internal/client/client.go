package client

import (
	"encoding/json"
	"net"

	"github.com/cockroachdb/errors"

	"github.com/tangthinker/dankutility/internal/backup"
	"github.com/tangthinker/dankutility/internal/ipc"
)

type Client struct {
	conn net.Conn
}

// NewClient connects to the daemon listening on socketPath.
func NewClient(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "failed to connect to daemon"), "start it with: dankutility run")
	}

	return &Client{conn: conn}, nil
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.conn.Close()
}

// SendCommand sends a command to the daemon and returns the response.
// The daemon answers one command per connection.
func (c *Client) SendCommand(cmd *ipc.Command) (*ipc.Response, error) {
	if err := json.NewEncoder(c.conn).Encode(cmd); err != nil {
		return nil, errors.Wrap(err, "failed to send command")
	}

	var resp ipc.Response
	if err := json.NewDecoder(c.conn).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, "failed to read response")
	}

	return &resp, nil
}

// Status asks the daemon for the scheduler status.
func (c *Client) Status() (*backup.Status, error) {
	resp, err := c.SendCommand(ipc.NewCommand(ipc.CmdStatus, nil))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.Err()
	}

	var status backup.Status
	if err := resp.DecodeData(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// RunNow asks the daemon to back up immediately and waits for the run.
// A failed run is returned together with its error.
func (c *Client) RunNow() (*backup.Run, error) {
	resp, err := c.SendCommand(ipc.NewCommand(ipc.CmdRun, nil))
	if err != nil {
		return nil, err
	}

	var run *backup.Run
	if len(resp.Data) > 0 {
		run = &backup.Run{}
		if err := resp.DecodeData(run); err != nil {
			return nil, err
		}
	}
	if !resp.Success {
		return run, resp.Err()
	}
	return run, nil
}

// SetPaths replaces the source and destination used by the next run.
func (c *Client) SetPaths(sourceDir, destDir string) (*backup.Status, error) {
	resp, err := c.SendCommand(ipc.NewCommand(ipc.CmdSetPaths, map[string]string{
		ipc.KeySourceDir: sourceDir,
		ipc.KeyDestDir:   destDir,
	}))
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, resp.Err()
	}

	var status backup.Status
	if err := resp.DecodeData(&status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Quit asks the daemon to shut down.
func (c *Client) Quit() error {
	resp, err := c.SendCommand(ipc.NewCommand(ipc.CmdQuit, nil))
	if err != nil {
		return err
	}
	if !resp.Success {
		return resp.Err()
	}
	return nil
}
