/* SPDX-License-Identifier: MPL-2.0
 * Copyright 2025 Tejus Pratap <tejzpr@gmail.com>
 *
 * See CONTRIBUTORS.md for full contributor list.
 */

// Package events subscribes to the appliance's websocket event stream.
//
// A Listener holds a single connection. When the stream drops the listener
// stops and reports the cause through Err; callers decide whether to connect
// again.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tejzpr/pbx-gateway-go/pbxsdk"
)

// Topic is an appliance event topic code.
type Topic int

// Topics published by the appliance.
const (
	TopicExtensionPresence  Topic = 30007
	TopicCallStatus         Topic = 30008
	TopicExtensionCallState Topic = 30011
	TopicCallRecord         Topic = 30012
	TopicConfigChanged      Topic = 30013
)

// AnyTopic registers a handler for every topic.
const AnyTopic Topic = 0

const (
	heartbeatMessage  = "heartbeat"
	heartbeatResponse = "heartbeat response"
	subscribePath     = "subscribe"
)

// Config holds the configuration for the event listener
type Config struct {
	// StreamURL overrides the websocket endpoint. By default the core
	// client's EventsURL is used, then wss://{host}/openapi/v1.0/subscribe.
	StreamURL string

	// Topics to subscribe to.
	Topics []Topic

	HandshakeTimeout time.Duration // Timeout for the websocket handshake
	PingInterval     time.Duration // Interval between heartbeat messages
}

// DefaultConfig returns the default configuration for the event listener
func DefaultConfig() *Config {
	return &Config{
		Topics: []Topic{
			TopicExtensionPresence,
			TopicCallStatus,
			TopicExtensionCallState,
			TopicCallRecord,
			TopicConfigChanged,
		},
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     50 * time.Second,
	}
}

// Event is one message from the stream.
type Event struct {
	Topic    Topic
	Sequence string

	// Message is the decoded event payload. Raw keeps the undecoded form.
	Message pbxsdk.Record
	Raw     json.RawMessage
}

// Handler handles one event. Handlers run on the listener goroutine, in
// stream order, and must not block.
type Handler func(event *Event)

// envelope is the stream frame. msg is usually a JSON document encoded as a
// string, though some firmwares send the object directly.
type envelope struct {
	Type     json.Number     `json:"type"`
	Sequence json.Number     `json:"sn"`
	Msg      json.RawMessage `json:"msg"`
	Errcode  json.Number     `json:"errcode"`
	Errmsg   string          `json:"errmsg"`
}

// Listener is the appliance event stream client
type Listener struct {
	pbxClient *pbxsdk.Client
	config    *Config
	logger    *zap.Logger

	connectMu sync.Mutex // serializes Connect so only one dial is in flight
	mu        sync.Mutex
	writeMu   sync.Mutex // gorilla allows one concurrent writer
	conn      *websocket.Conn
	handlers  map[Topic][]Handler
	closeCh   chan struct{}
	done      chan struct{}
	err       error
}

// New creates a new event listener
func New(pbxClient *pbxsdk.Client, config *Config) *Listener {
	if config == nil {
		config = DefaultConfig()
	}

	return &Listener{
		pbxClient: pbxClient,
		config:    config,
		logger:    pbxClient.GetLogger().Named("events"),
		handlers:  make(map[Topic][]Handler),
	}
}

// On registers a handler for topic. Use AnyTopic to receive every event.
func (l *Listener) On(topic Topic, handler Handler) {
	if handler == nil {
		return
	}

	l.mu.Lock()
	l.handlers[topic] = append(l.handlers[topic], handler)
	l.mu.Unlock()
}

// Connect dials the stream, subscribes to the configured topics and starts
// dispatching. It requires an authenticated session.
func (l *Listener) Connect(ctx context.Context) error {
	l.connectMu.Lock()
	defer l.connectMu.Unlock()

	l.mu.Lock()
	if l.conn != nil {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	token, ok := l.pbxClient.Tokens().Get()
	if !ok {
		return pbxsdk.ClassifyMissingToken(subscribePath)
	}

	streamURL, err := l.streamURL(token)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: l.config.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}
	if hc := l.pbxClient.GetHTTPClient(); hc != nil && hc.Transport != nil {
		if transport, ok := hc.Transport.(*http.Transport); ok {
			dialer.NetDialContext = transport.DialContext
			dialer.TLSClientConfig = transport.TLSClientConfig
		}
	}

	conn, _, err := dialer.DialContext(ctx, streamURL, nil)
	if err != nil {
		return &pbxsdk.APIError{
			Kind:     pbxsdk.KindUnreachable,
			Endpoint: subscribePath,
			URL:      pbxsdk.SanitizeURL(streamURL),
			Message:  "event stream is not reachable",
			Err:      err,
		}
	}

	if err := l.subscribe(conn); err != nil {
		conn.Close()
		return err
	}

	l.mu.Lock()
	l.conn = conn
	l.err = nil
	l.closeCh = make(chan struct{})
	l.done = make(chan struct{})
	closeCh, done := l.closeCh, l.done
	l.mu.Unlock()

	go l.heartbeat(conn, closeCh, done)
	go l.listen(conn, closeCh, done)

	l.logger.Info("event stream connected", zap.Int("topics", len(l.config.Topics)))
	return nil
}

// Close ends the stream and waits for the listener goroutine to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	conn := l.conn
	closeCh, done := l.closeCh, l.done
	l.conn = nil
	l.mu.Unlock()

	if conn == nil {
		return nil
	}

	close(closeCh)
	l.writeMu.Lock()
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closed by client"))
	l.writeMu.Unlock()
	err := conn.Close()
	<-done
	return err
}

// Done is closed when the current stream ends. It returns nil before the
// first Connect.
func (l *Listener) Done() <-chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.done
}

// Err returns the error that ended the last stream, or nil after a clean
// Close.
func (l *Listener) Err() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// IsConnected reports whether a stream is open.
func (l *Listener) IsConnected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

func (l *Listener) streamURL(token string) (string, error) {
	raw := l.config.StreamURL
	if raw == "" {
		raw = l.pbxClient.Config.EventsURL
	}
	if raw == "" {
		raw = "wss://" + l.pbxClient.Host() + "/" + pbxsdk.APIVersionPath + "/" + subscribePath
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid stream url: %w", err)
	}
	q := u.Query()
	q.Set("access_token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// subscribe sends the topic list and waits for the appliance to accept it.
func (l *Listener) subscribe(conn *websocket.Conn) error {
	if err := conn.WriteJSON(map[string]any{"topic_list": l.config.Topics}); err != nil {
		return fmt.Errorf("failed to send topic list: %w", err)
	}

	if l.config.HandshakeTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(l.config.HandshakeTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}

	_, message, err := conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("error reading subscribe response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return &pbxsdk.APIError{
			Kind:     pbxsdk.KindMalformedResponse,
			Endpoint: subscribePath,
			Message:  "subscribe response is not JSON",
			RawBody:  message,
			Err:      err,
		}
	}
	if code, _ := env.Errcode.Int64(); code != 0 {
		return &pbxsdk.APIError{
			Kind:     pbxsdk.KindRemoteRejected,
			Endpoint: subscribePath,
			Code:     int(code),
			Message:  env.Errmsg,
			RawBody:  message,
		}
	}
	return nil
}

// heartbeat keeps the stream open; the appliance drops idle subscribers.
func (l *Listener) heartbeat(conn *websocket.Conn, closeCh, done <-chan struct{}) {
	if l.config.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(l.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.writeMu.Lock()
			err := conn.WriteMessage(websocket.TextMessage, []byte(heartbeatMessage))
			l.writeMu.Unlock()
			if err != nil {
				l.logger.Debug("heartbeat failed", zap.Error(err))
				return
			}
		case <-closeCh:
			return
		case <-done:
			return
		}
	}
}

func (l *Listener) listen(conn *websocket.Conn, closeCh <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-closeCh:
			default:
				l.logger.Warn("event stream closed", zap.Error(err))
				l.mu.Lock()
				l.err = err
				if l.conn == conn {
					l.conn = nil
				}
				l.mu.Unlock()
				conn.Close()
			}
			return
		}

		if strings.TrimSpace(string(message)) == heartbeatResponse {
			continue
		}

		event, err := decodeEvent(message)
		if err != nil {
			l.logger.Debug("skipping undecodable event", zap.Error(err))
			continue
		}
		l.dispatch(event)
	}
}

func (l *Listener) dispatch(event *Event) {
	l.mu.Lock()
	handlers := append([]Handler(nil), l.handlers[event.Topic]...)
	handlers = append(handlers, l.handlers[AnyTopic]...)
	l.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

func decodeEvent(message []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		return nil, err
	}
	topic, err := strconv.Atoi(env.Type.String())
	if err != nil {
		return nil, fmt.Errorf("event type %q: %w", env.Type, err)
	}

	event := &Event{
		Topic:    Topic(topic),
		Sequence: env.Sequence.String(),
		Raw:      env.Msg,
	}

	payload := []byte(env.Msg)
	var encoded string
	if err := json.Unmarshal(env.Msg, &encoded); err == nil {
		payload = []byte(encoded)
		event.Raw = json.RawMessage(encoded)
	}
	if len(payload) > 0 {
		var msg map[string]any
		if err := json.Unmarshal(payload, &msg); err == nil {
			event.Message = pbxsdk.Record(msg)
		}
	}
	return event, nil
}
