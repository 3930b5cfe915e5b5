package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/websocket"

	"github.com/stellarlinkco/cordkit/internal/bus"
)

var logger = log.WithPrefix("gateway")

var (
	// ErrReconnect means the gateway asked the client to reconnect.
	ErrReconnect = errors.New("gateway requested reconnect")
	// ErrZombie means a heartbeat went unacknowledged.
	ErrZombie = errors.New("gateway heartbeat not acknowledged")
)

const (
	DefaultChannel = "platform"
	readLimit      = 4 << 20
)

type Options struct {
	URL     string
	Version int
	Token   string
	Intents int
	Bus     *bus.MessageBus
	// Channel names the bus channel inbound events are published on.
	Channel     string
	DialOptions *websocket.DialOptions
}

// Session holds one logical gateway session across reconnects. Run dials a
// new connection each time it is called and resumes when it can.
type Session struct {
	opts Options

	mu        sync.Mutex
	sessionID string
	resumeURL string
	seq       int64

	acked atomic.Bool
}

func NewSession(opts Options) (*Session, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if opts.Token == "" {
		return nil, fmt.Errorf("gateway token is required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("gateway bus is required")
	}
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	return &Session{opts: opts}, nil
}

func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

func (s *Session) Sequence() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

func (s *Session) dialURL() (string, error) {
	s.mu.Lock()
	base := s.opts.URL
	if s.sessionID != "" && s.resumeURL != "" {
		base = s.resumeURL
	}
	s.mu.Unlock()

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse gateway url: %w", err)
	}
	q := u.Query()
	if s.opts.Version > 0 {
		q.Set("v", strconv.Itoa(s.opts.Version))
	}
	q.Set("encoding", "json")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run connects, handshakes and pumps events onto the bus until the
// connection ends. It returns ErrReconnect or ErrZombie when the caller
// should dial again.
func (s *Session) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	target, err := s.dialURL()
	if err != nil {
		return err
	}
	conn, _, err := websocket.Dial(ctx, target, s.opts.DialOptions)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer conn.CloseNow()
	conn.SetReadLimit(readLimit)

	first, err := readFrame(ctx, conn)
	if err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if first.Op != OpHello {
		return fmt.Errorf("expected hello, got op %d", first.Op)
	}
	var h hello
	if err := json.Unmarshal(first.D, &h); err != nil {
		return fmt.Errorf("decode hello: %w", err)
	}
	if h.HeartbeatInterval <= 0 {
		return fmt.Errorf("invalid heartbeat interval %d", h.HeartbeatInterval)
	}

	hbErr := make(chan error, 1)
	s.acked.Store(true)
	go func() {
		if err := s.heartbeat(ctx, conn, time.Duration(h.HeartbeatInterval)*time.Millisecond); err != nil {
			hbErr <- err
			cancel()
		}
	}()

	if err := s.handshake(ctx, conn); err != nil {
		return err
	}

	err = s.readLoop(ctx, conn)
	select {
	case e := <-hbErr:
		err = e
	default:
	}
	if errors.Is(err, ErrReconnect) || errors.Is(err, ErrZombie) {
		_ = conn.Close(websocket.StatusCode(4000), "reconnecting")
	} else if err == nil || errors.Is(err, context.Canceled) {
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}
	return err
}

func (s *Session) handshake(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	sessionID, seq := s.sessionID, s.seq
	s.mu.Unlock()

	if sessionID != "" {
		logger.Info("resuming session", "session", sessionID, "seq", seq)
		return writeFrame(ctx, conn, OpResume, resume{Token: s.opts.Token, SessionID: sessionID, Seq: seq})
	}
	return writeFrame(ctx, conn, OpIdentify, identify{
		Token:   s.opts.Token,
		Intents: s.opts.Intents,
		Properties: identifyProperties{
			OS:      runtime.GOOS,
			Browser: "cordkit",
			Device:  "cordkit",
		},
	})
}

func (s *Session) heartbeat(ctx context.Context, conn *websocket.Conn, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !s.acked.Load() {
				logger.Warn("heartbeat not acknowledged", "interval", interval)
				return ErrZombie
			}
			s.acked.Store(false)
			if err := s.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		}
	}
}

func (s *Session) sendHeartbeat(ctx context.Context, conn *websocket.Conn) error {
	s.mu.Lock()
	seq := s.seq
	s.mu.Unlock()

	var d any
	if seq > 0 {
		d = seq
	}
	if err := writeFrame(ctx, conn, OpHeartbeat, d); err != nil {
		return fmt.Errorf("send heartbeat: %w", err)
	}
	return nil
}

func (s *Session) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return err
		}
		if f.S != nil {
			s.mu.Lock()
			s.seq = *f.S
			s.mu.Unlock()
		}

		switch f.Op {
		case OpDispatch:
			if err := s.dispatch(ctx, f); err != nil {
				return err
			}
		case OpHeartbeat:
			if err := s.sendHeartbeat(ctx, conn); err != nil {
				return err
			}
		case OpHeartbeatAck:
			s.acked.Store(true)
		case OpReconnect:
			logger.Info("reconnect requested")
			return ErrReconnect
		case OpInvalidSession:
			var resumable bool
			_ = json.Unmarshal(f.D, &resumable)
			if !resumable {
				s.reset()
			}
			logger.Info("session invalidated", "resumable", resumable)
			return ErrReconnect
		default:
			logger.Debug("ignoring frame", "op", f.Op)
		}
	}
}

func (s *Session) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionID = ""
	s.resumeURL = ""
	s.seq = 0
}

func (s *Session) dispatch(ctx context.Context, f Frame) error {
	msg := bus.InboundMessage{
		Channel:   s.opts.Channel,
		Timestamp: time.Now(),
		Event:     f.T,
		Raw:       f.D,
	}

	switch f.T {
	case "READY":
		var r ready
		if err := json.Unmarshal(f.D, &r); err != nil {
			return fmt.Errorf("decode ready: %w", err)
		}
		s.mu.Lock()
		s.sessionID = r.SessionID
		s.resumeURL = r.ResumeGatewayURL
		s.mu.Unlock()
		logger.Info("session ready", "session", r.SessionID, "user", r.User.Username)
	case "RESUMED":
		logger.Info("session resumed", "session", s.SessionID())
	case "MESSAGE_CREATE":
		var m messageCreate
		if err := json.Unmarshal(f.D, &m); err != nil {
			logger.Warn("decode message", "err", err)
			break
		}
		msg.SenderID = m.Author.ID
		msg.ChatID = m.ChannelID
		msg.Content = m.Content
		msg.Metadata = map[string]any{
			"message_id": m.ID,
			"guild_id":   m.GuildID,
			"username":   m.Author.Username,
			"bot":        m.Author.Bot,
		}
	}

	select {
	case s.opts.Bus.Inbound <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (Frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	return f, nil
}

func writeFrame(ctx context.Context, conn *websocket.Conn, op Opcode, d any) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal op %d: %w", op, err)
	}
	data, err := json.Marshal(Frame{Op: op, D: raw})
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
