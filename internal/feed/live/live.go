// Package live subscribes to the upstream live-timing feed.
//
// The feed speaks classic SignalR over websockets: an HTTP negotiate call
// yields a connection token, the websocket connect call carries it, and a
// single "Subscribe" hub invocation registers the topic list. Data arrives as
// "feed" hub invocations of the form [topic, payload, utcTimestamp]; the
// subscribe reply carries an initial snapshot per topic.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pitwall/pitwall/internal/feed"
)

const (
	hubName        = "Streaming"
	clientProtocol = "1.5"
)

// Config holds live subscriber configuration.
type Config struct {
	// HTTP(S) base of the live-timing service.
	BaseURL string

	// Topics to subscribe to.
	Topics []string

	// Optional subscription token appended as a cookie.
	Token string

	// RecordLine, when set, receives every raw feed invocation before it is
	// decoded. Used to spool raw recordings during live runs.
	RecordLine func(topic string, line []byte)
}

// DefaultBaseURL is the public live-timing endpoint.
const DefaultBaseURL = "https://livetiming.formula1.com"

// Subscriber implements feed.Source over the live websocket feed.
type Subscriber struct {
	cfg    Config
	logger *slog.Logger
	client *http.Client

	mu   sync.Mutex
	conn *websocket.Conn
}

func New(cfg Config, logger *slog.Logger) *Subscriber {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriber{
		cfg:    cfg,
		logger: logger.With("component", "live_subscriber"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Subscriber) Name() string { return "live" }

// Stream connects and emits messages until the context is cancelled. Lost
// connections are re-established with exponential backoff; messages missed
// during a gap are gone (the feed has no replay).
func (s *Subscriber) Stream(ctx context.Context, out chan<- feed.Message) error {
	s.logger.Info("starting live subscription",
		"base_url", s.cfg.BaseURL,
		"topics", len(s.cfg.Topics),
	)

	backoff := time.Second
	maxBackoff := 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.connectAndStream(ctx, out); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			s.logger.Error("feed connection lost, reconnecting",
				"error", err,
				"backoff", backoff,
			)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}

			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		} else {
			backoff = time.Second
		}
	}
}

type negotiation struct {
	ConnectionToken string `json:"ConnectionToken"`
	ConnectionID    string `json:"ConnectionId"`
}

// negotiate performs the SignalR negotiate handshake.
func (s *Subscriber) negotiate(ctx context.Context) (*negotiation, http.Header, error) {
	u := fmt.Sprintf("%s/signalr/negotiate?connectionData=%s&clientProtocol=%s",
		strings.TrimSuffix(s.cfg.BaseURL, "/"),
		url.QueryEscape(`[{"name":"`+hubName+`"}]`),
		clientProtocol,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("building negotiate request: %w", err)
	}
	if s.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("negotiate failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("negotiate failed: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading negotiate response: %w", err)
	}
	var n negotiation
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, nil, fmt.Errorf("parsing negotiate response: %w", err)
	}
	if n.ConnectionToken == "" {
		return nil, nil, fmt.Errorf("negotiate response has no connection token")
	}
	return &n, resp.Header, nil
}

func (s *Subscriber) connectAndStream(ctx context.Context, out chan<- feed.Message) error {
	n, header, err := s.negotiate(ctx)
	if err != nil {
		return err
	}

	wsBase := s.cfg.BaseURL
	if strings.HasPrefix(wsBase, "https") {
		wsBase = "wss" + wsBase[5:]
	} else if strings.HasPrefix(wsBase, "http") {
		wsBase = "ws" + wsBase[4:]
	}
	u := fmt.Sprintf("%s/signalr/connect?transport=webSockets&clientProtocol=%s&connectionToken=%s&connectionData=%s",
		strings.TrimSuffix(wsBase, "/"),
		clientProtocol,
		url.QueryEscape(n.ConnectionToken),
		url.QueryEscape(`[{"name":"`+hubName+`"}]`),
	)

	dialHeader := http.Header{}
	// The negotiate response sets session cookies the connect call must echo.
	if cookies := header.Values("Set-Cookie"); len(cookies) > 0 {
		var pairs []string
		for _, c := range cookies {
			if pair, _, ok := strings.Cut(c, ";"); ok {
				pairs = append(pairs, pair)
			} else {
				pairs = append(pairs, c)
			}
		}
		dialHeader.Set("Cookie", strings.Join(pairs, "; "))
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, dialHeader)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	// Close the socket when the context ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	defer func() {
		conn.Close()
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
	}()

	if err := s.subscribe(conn); err != nil {
		return fmt.Errorf("subscribe failed: %w", err)
	}
	s.logger.Info("subscribed to live feed", "connection_id", n.ConnectionID)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read error: %w", err)
		}

		if err := s.handleFrame(ctx, raw, out); err != nil {
			return err
		}
	}
}

func (s *Subscriber) subscribe(conn *websocket.Conn) error {
	req := map[string]any{
		"H": hubName,
		"M": "Subscribe",
		"A": []any{s.cfg.Topics},
		"I": 1,
	}
	return conn.WriteJSON(req)
}

// handleFrame parses one websocket frame. Frames carry either hub invocations
// ("M"), the subscribe reply snapshot ("R"), or keepalives (empty).
func (s *Subscriber) handleFrame(ctx context.Context, raw []byte, out chan<- feed.Message) error {
	var frame struct {
		M []struct {
			H string            `json:"H"`
			M string            `json:"M"`
			A []json.RawMessage `json:"A"`
		} `json:"M"`
		R map[string]json.RawMessage `json:"R"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil // keepalives and malformed frames are ignored
	}

	// Initial snapshot: one payload per subscribed topic, stamped now.
	if len(frame.R) > 0 {
		now := time.Now().UTC()
		for topic, payload := range frame.R {
			msg, ok := s.buildMessage(topic, payload, now)
			if !ok {
				continue
			}
			if err := emit(ctx, out, msg); err != nil {
				return err
			}
		}
		return nil
	}

	for _, inv := range frame.M {
		if inv.M != "feed" || len(inv.A) < 3 {
			continue
		}

		var topic, stamp string
		if err := json.Unmarshal(inv.A[0], &topic); err != nil {
			continue
		}
		if err := json.Unmarshal(inv.A[2], &stamp); err != nil {
			continue
		}
		timepoint, err := feed.ParseUTC(stamp)
		if err != nil {
			s.logger.Warn("feed invocation with bad timestamp", "topic", topic, "error", err)
			continue
		}

		if s.cfg.RecordLine != nil {
			s.cfg.RecordLine(topic, inv.A[1])
		}

		msg, ok := s.buildMessage(topic, inv.A[1], timepoint)
		if !ok {
			continue
		}
		if err := emit(ctx, out, msg); err != nil {
			return err
		}
	}
	return nil
}

// buildMessage decodes one raw payload into a feed message. String payloads
// are compressed (".z" topics) and run through the line decoder.
func (s *Subscriber) buildMessage(topic string, payload json.RawMessage, timepoint time.Time) (feed.Message, bool) {
	var content any
	if err := json.Unmarshal(payload, &content); err != nil {
		s.logger.Warn("undecodable feed payload", "topic", topic, "error", err)
		return feed.Message{}, false
	}
	if compressed, ok := content.(string); ok {
		decoded, err := feed.Decode(compressed)
		if err != nil {
			s.logger.Warn("undecodable compressed payload", "topic", topic, "error", err)
			return feed.Message{}, false
		}
		content = decoded
	}
	return feed.Message{Topic: topic, Content: content, Timepoint: timepoint}, true
}

func emit(ctx context.Context, out chan<- feed.Message, msg feed.Message) error {
	select {
	case out <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
