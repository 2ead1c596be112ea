package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"threadrelay/internal/config"
	"threadrelay/internal/daemon"
	"threadrelay/internal/engine"
	"threadrelay/internal/logging"
	"threadrelay/internal/services"
)

// ServiceName is the JSON-RPC service name.
const ServiceName = "Relay"

const maxEventWait = 30 * time.Second

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	daemon    *daemon.Daemon
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path. onStop runs
// after a Stop request has been answered.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger, onStop func()) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx, onStop: onStop}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		daemon:    d,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until the context is canceled.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				s.logger.Warn("accept failed",
					logging.Error(err),
					logging.String(logging.FieldEventType, "ipc_accept_failed"),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "Check socket permissions and restart the daemon if needed"))
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				go func() {
					<-s.ctx.Done()
					_ = c.Close()
				}()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		s.logger.Warn("failed to remove socket",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldEventType, "ipc_socket_cleanup_failed"),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "Remove the socket file manually or rerun threadrelay stop"))
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
	onStop func()
}

// request tags a call with a fresh correlation id.
func (s *service) request(method string) (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger).With(
		logging.String(logging.FieldComponent, "ipc"),
		logging.String("method", method),
	)
	logger.Debug("rpc request")
	return ctx, logger
}

func (s *service) fail(logger *slog.Logger, err error) error {
	logger.Debug("rpc request rejected",
		logging.Error(err),
		logging.String("error_kind", services.Kind(err)),
	)
	return encodeError(err)
}

func (s *service) engine(logger *slog.Logger) (*engine.Engine, error) {
	eng, err := s.daemon.Engine()
	if err != nil {
		return nil, s.fail(logger, err)
	}
	return eng, nil
}

func (s *service) sessionState(resp *StateResponse) {
	if info, err := s.daemon.SessionInfo(); err == nil {
		resp.Session = info
	}
}

func validationError(op, message string) error {
	return services.Wrap(services.ErrValidation, "ipc", op, message, nil)
}

// parseStart validates a start position at the boundary.
func parseStart(op, position string, reply int) (engine.StartPosition, error) {
	pos, err := engine.ParseStartPosition(position)
	if err != nil {
		return "", err
	}
	if pos == engine.PositionReply {
		if reply == 0 {
			return "", validationError(op, config.ReplyRequiredMessage)
		}
		if err := config.ValidateStartReplyNumber(reply); err != nil {
			return "", validationError(op, err.Error())
		}
	}
	return pos, nil
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, _ := s.request("Status")
	status := s.daemon.Status(ctx)
	resp.Running = status.Running
	resp.PID = status.PID
	resp.LockPath = status.LockPath
	resp.SocketPath = status.SocketPath
	resp.LedgerPath = status.LedgerPath
	resp.ConfigPath = status.ConfigPath
	resp.Session = status.Session
	resp.Checks = status.Checks
	return nil
}

func (s *service) OpenThread(req OpenThreadRequest, resp *StateResponse) error {
	ctx, logger := s.request("OpenThread")
	info, err := s.daemon.OpenThread(ctx, req.URL)
	if err != nil {
		return s.fail(logger, err)
	}
	resp.Session = info
	return nil
}

func (s *service) CloseThread(_ CloseThreadRequest, resp *CloseThreadResponse) error {
	ctx, logger := s.request("CloseThread")
	if err := s.daemon.CloseThread(ctx); err != nil {
		return s.fail(logger, err)
	}
	resp.Closed = true
	return nil
}

func (s *service) GetCurrentState(_ StateRequest, resp *StateResponse) error {
	_, logger := s.request("GetCurrentState")
	info, err := s.daemon.SessionInfo()
	if err != nil {
		return s.fail(logger, err)
	}
	resp.Session = info
	return nil
}

func (s *service) SetNotification(req ToggleRequest, resp *StateResponse) error {
	ctx, logger := s.request("SetNotification")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.SetNotification(ctx, req.Enabled); err != nil {
		return s.fail(logger, err)
	}
	s.sessionState(resp)
	return nil
}

func (s *service) SetSpeech(req SetSpeechRequest, resp *StateResponse) error {
	ctx, logger := s.request("SetSpeech")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	var pos engine.StartPosition
	reply := req.StartReplyNumber
	if req.Enabled {
		position := req.StartPosition
		if strings.TrimSpace(position) == "" {
			current := eng.State()
			position, reply = string(current.StartPosition), current.StartReplyNumber
			if req.StartReplyNumber != 0 {
				reply = req.StartReplyNumber
			}
		}
		if pos, err = parseStart("set speech", position, reply); err != nil {
			return s.fail(logger, err)
		}
	}
	if err := eng.SetSpeech(ctx, req.Enabled, pos, reply); err != nil {
		return s.fail(logger, err)
	}
	s.sessionState(resp)
	return nil
}

func (s *service) SetOverlay(req ToggleRequest, resp *StateResponse) error {
	ctx, logger := s.request("SetOverlay")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.SetOverlay(ctx, req.Enabled); err != nil {
		return s.fail(logger, err)
	}
	s.sessionState(resp)
	return nil
}

func (s *service) SetArchive(req ToggleRequest, resp *StateResponse) error {
	ctx, logger := s.request("SetArchive")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.SetArchive(ctx, req.Enabled); err != nil {
		return s.fail(logger, err)
	}
	s.sessionState(resp)
	return nil
}

func (s *service) SetSpeechOptions(req SpeechOptionsRequest, resp *StateResponse) error {
	ctx, logger := s.request("SetSpeechOptions")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	reply := req.StartReplyNumber
	if reply == 0 {
		reply = eng.State().StartReplyNumber
	}
	pos, err := parseStart("set speech options", req.StartPosition, reply)
	if err != nil {
		return s.fail(logger, err)
	}
	if err := eng.SetSpeechOptions(ctx, pos, reply); err != nil {
		return s.fail(logger, err)
	}
	s.sessionState(resp)
	return nil
}

func (s *service) SetStartReplyNumber(req StartReplyRequest, resp *StateResponse) error {
	ctx, logger := s.request("SetStartReplyNumber")
	if err := config.ValidateStartReplyNumber(req.Value); err != nil {
		return s.fail(logger, validationError("set start reply number", err.Error()))
	}
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.SetStartReplyNumber(ctx, req.Value); err != nil {
		return s.fail(logger, err)
	}
	s.sessionState(resp)
	return nil
}

func (s *service) Speak(req TextRequest, resp *Ack) error {
	ctx, logger := s.request("Speak")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.Speak(ctx, req.Text); err != nil {
		return s.fail(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) SendOverlay(req TextRequest, resp *Ack) error {
	ctx, logger := s.request("SendOverlay")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.SendOverlay(ctx, req.Text); err != nil {
		return s.fail(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) DownloadAllImages(_ DownloadAllRequest, resp *Ack) error {
	ctx, logger := s.request("DownloadAllImages")
	eng, err := s.engine(logger)
	if err != nil {
		return err
	}
	if err := eng.DownloadAll(ctx); err != nil {
		return s.fail(logger, err)
	}
	resp.OK = true
	resp.Message = "download started"
	return nil
}

func (s *service) Events(req EventsRequest, resp *EventsResponse) error {
	ctx, logger := s.request("Events")
	wait := time.Duration(req.WaitMillis) * time.Millisecond
	if wait > maxEventWait {
		wait = maxEventWait
	}
	if wait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wait)
		defer cancel()
	}
	batch, next, err := s.daemon.Signals().Fetch(ctx, req.Since, req.Limit, wait > 0)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			resp.Next = req.Since
			return nil
		}
		return s.fail(logger, err)
	}
	resp.Signals = batch
	resp.Next = next
	return nil
}

func (s *service) UpdateSettings(req UpdateSettingsRequest, resp *Ack) error {
	_, logger := s.request("UpdateSettings")
	if req.SpeechPort != nil {
		if err := config.ValidatePort(*req.SpeechPort); err != nil {
			return s.fail(logger, validationError("update settings", err.Error()))
		}
	}
	err := s.daemon.UpdateSettings(daemon.Settings{
		SpeechPort:       req.SpeechPort,
		OverlayServiceID: req.OverlayServiceID,
		StreamEnabled:    req.StreamEnabled,
	})
	if err != nil {
		return s.fail(logger, err)
	}
	logger.Info("settings updated", logging.String(logging.FieldEventType, "settings_updated"))
	resp.OK = true
	return nil
}

func (s *service) ReloadConfig(_ ReloadConfigRequest, resp *Ack) error {
	_, logger := s.request("ReloadConfig")
	if err := s.daemon.ReloadConfig(); err != nil {
		return s.fail(logger, err)
	}
	resp.OK = true
	return nil
}

func (s *service) History(req HistoryRequest, resp *HistoryResponse) error {
	ctx, logger := s.request("History")
	entries, err := s.daemon.History(ctx, strings.TrimSpace(req.ThreadID), req.Limit)
	if err != nil {
		return s.fail(logger, err)
	}
	resp.Entries = make([]HistoryEntry, 0, len(entries))
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, HistoryEntry{
			ThreadID:    entry.ThreadID,
			ReplyNumber: entry.ReplyNumber,
			URL:         entry.URL,
			Path:        entry.Path,
			Status:      entry.Status,
			Error:       entry.Error,
			SizeBytes:   entry.SizeBytes,
			CreatedAt:   entry.CreatedAt,
		})
	}
	return nil
}

func (s *service) Stop(_ StopRequest, resp *StopResponse) error {
	_, logger := s.request("Stop")
	s.daemon.Stop()
	resp.Stopped = true
	logger.Info("daemon stopped via IPC", logging.String(logging.FieldEventType, "daemon_stop"))
	if s.onStop != nil {
		go s.onStop()
	}
	return nil
}
