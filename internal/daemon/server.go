package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/tangthinker/dankutility/internal/backup"
	"github.com/tangthinker/dankutility/internal/ipc"
	"github.com/tangthinker/dankutility/internal/locate"
)

const readTimeout = 10 * time.Second

// Controller is the part of the backup manager the server drives.
type Controller interface {
	Status() backup.Status
	RunNow(ctx context.Context) (*backup.Run, error)
	SetTarget(target backup.Target) error
}

type Server struct {
	listener   net.Listener
	socketPath string
	controller Controller
	fs         afero.Fs
	logger     zerolog.Logger
	quit       func()
}

// NewServer creates a new Unix domain socket server at socketPath.
// quit is called when a client asks the daemon to exit.
func NewServer(socketPath string, controller Controller, fs afero.Fs, logger zerolog.Logger, quit func()) (*Server, error) {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, errors.Wrap(err, "failed to remove existing socket")
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create socket")
	}

	// Owner only
	if err := os.Chmod(socketPath, 0o600); err != nil {
		listener.Close()
		return nil, errors.Wrap(err, "failed to set socket permissions")
	}

	return &Server{
		listener:   listener,
		socketPath: socketPath,
		controller: controller,
		fs:         fs,
		logger:     logger.With().Str("component", "server").Logger(),
		quit:       quit,
	}, nil
}

// Serve handles incoming connections until the server is closed.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return errors.Wrap(err, "failed to accept connection")
		}
		go s.handleConnection(ctx, conn)
	}
}

// Close closes the server
func (s *Server) Close() error {
	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Wrap(err, "failed to close listener")
	}
	return os.RemoveAll(s.socketPath)
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	var cmd ipc.Command
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.logger.Warn().Err(err).Msg("failed to read command")
		s.send(conn, ipc.NewResponse(false, nil, errors.Wrap(err, "invalid command")))
		return
	}

	s.logger.Debug().Str("command", string(cmd.Type)).Msg("received command")

	var resp *ipc.Response
	switch cmd.Type {
	case ipc.CmdStatus:
		resp = ipc.NewResponse(true, s.controller.Status(), nil)
	case ipc.CmdRun:
		resp = s.handleRun(ctx)
	case ipc.CmdSetPaths:
		resp = s.handleSetPaths(cmd.Payload)
	case ipc.CmdQuit:
		resp = ipc.NewResponse(true, nil, nil)
		defer s.quit()
	default:
		resp = ipc.NewResponse(false, nil, errors.Newf("unknown command type: %s", cmd.Type))
	}

	s.send(conn, resp)
}

func (s *Server) handleRun(ctx context.Context) *ipc.Response {
	run, err := s.controller.RunNow(ctx)
	if run == nil {
		return ipc.NewResponse(false, nil, err)
	}
	return ipc.NewResponse(err == nil, run, err)
}

func (s *Server) handleSetPaths(payload map[string]string) *ipc.Response {
	res := locate.Resolution{
		Source: payload[ipc.KeySourceDir],
		Dest:   payload[ipc.KeyDestDir],
	}
	if err := res.Validate(s.fs); err != nil {
		return ipc.NewResponse(false, nil, err)
	}
	if err := s.controller.SetTarget(res.Target()); err != nil {
		return ipc.NewResponse(false, nil, err)
	}
	return ipc.NewResponse(true, s.controller.Status(), nil)
}

func (s *Server) send(conn net.Conn, resp *ipc.Response) {
	if err := json.NewEncoder(conn).Encode(resp); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send response")
	}
}
