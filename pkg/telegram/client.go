package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"tgarchive/internal/metrics"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultPageSize    = 100
	maxFrameBytes      = 16 << 20
)

// GatewayClient implements Client against a tdlib gateway sidecar speaking
// JSON frames over a single WebSocket connection. Requests carry a numeric id;
// frames without an id are push events.
type GatewayClient struct {
	url         string
	token       string
	logger      *logrus.Logger
	callTimeout time.Duration

	mu      sync.Mutex
	conn    *websocket.Conn
	nextID  int64
	pending map[int64]chan *gatewayFrame

	events   chan Event
	closed   chan struct{}
	closeErr error
	once     sync.Once
}

type gatewayRequest struct {
	ID     int64       `json:"id"`
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

type gatewayError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *gatewayError) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.Code, e.Message)
}

type gatewayFrame struct {
	ID      int64           `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *gatewayError   `json:"error,omitempty"`
	Event   EventKind       `json:"event,omitempty"`
	Message *Message        `json:"message,omitempty"`
}

// GatewayOptions configures a GatewayClient.
type GatewayOptions struct {
	URL             string
	Token           string
	CallTimeoutSec  int
	EventBufferSize int
	Logger          *logrus.Logger
}

// NewGatewayClient builds an unconnected client; call Connect before use.
func NewGatewayClient(opts GatewayOptions) *GatewayClient {
	timeout := defaultCallTimeout
	if opts.CallTimeoutSec > 0 {
		timeout = time.Duration(opts.CallTimeoutSec) * time.Second
	}
	bufSize := 256
	if opts.EventBufferSize > 0 {
		bufSize = opts.EventBufferSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
	}
	return &GatewayClient{
		url:         opts.URL,
		token:       opts.Token,
		logger:      logger,
		callTimeout: timeout,
		pending:     make(map[int64]chan *gatewayFrame),
		events:      make(chan Event, bufSize),
		closed:      make(chan struct{}),
	}
}

func (c *GatewayClient) Connect(ctx context.Context) error {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.Dial(ctx, c.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return fmt.Errorf("failed to dial gateway: %w", err)
	}
	conn.SetReadLimit(maxFrameBytes)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

func (c *GatewayClient) Close() error {
	c.once.Do(func() {
		close(c.closed)
	})
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(websocket.StatusNormalClosure, "shutdown")
}

func (c *GatewayClient) Events() <-chan Event {
	return c.events
}

func (c *GatewayClient) readLoop() {
	defer close(c.events)
	for {
		var frame gatewayFrame
		if err := wsjson.Read(context.Background(), c.conn, &frame); err != nil {
			select {
			case <-c.closed:
			default:
				c.logger.WithError(err).Error("Gateway connection lost")
			}
			c.failPending(err)
			return
		}

		if frame.Event != "" {
			select {
			case c.events <- Event{Kind: frame.Event, Message: frame.Message}:
			default:
				// Backfill repairs the hole later; surface the drop on /metrics
				metrics.IncrementCounter("gateway_events_dropped", nil)
				c.logger.WithField("event", frame.Event).Warn("Event buffer full, dropping gateway event")
			}
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[frame.ID]
		if ok {
			delete(c.pending, frame.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- &frame
		}
	}
}

func (c *GatewayClient) failPending(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeErr = err
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// call performs one request/response round trip. A zero timeout disables the
// client-side deadline (used for media transfers, which can run long).
func (c *GatewayClient) call(ctx context.Context, method string, params interface{}, timeout time.Duration, out interface{}) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c.mu.Lock()
	if c.conn == nil {
		c.mu.Unlock()
		return fmt.Errorf("gateway client is not connected")
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *gatewayFrame, 1)
	c.pending[id] = ch
	conn := c.conn
	c.mu.Unlock()

	req := gatewayRequest{ID: id, Method: method, Params: params}
	if err := wsjson.Write(ctx, conn, req); err != nil {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return fmt.Errorf("failed to send %s request: %w", method, err)
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return ctx.Err()
	case frame, ok := <-ch:
		if !ok {
			return fmt.Errorf("gateway connection closed during %s: %w", method, c.closeErr)
		}
		if frame.Error != nil {
			return fmt.Errorf("%s failed: %w", method, frame.Error)
		}
		if out != nil && len(frame.Result) > 0 {
			if err := json.Unmarshal(frame.Result, out); err != nil {
				return fmt.Errorf("failed to decode %s result: %w", method, err)
			}
		}
		return nil
	}
}

func (c *GatewayClient) IsAuthorized(ctx context.Context) (bool, error) {
	var result struct {
		Authorized bool `json:"authorized"`
	}
	if err := c.call(ctx, "isAuthorized", nil, c.callTimeout, &result); err != nil {
		return false, err
	}
	return result.Authorized, nil
}

func (c *GatewayClient) GetEntity(ctx context.Context, ref string) (*Chat, error) {
	var chat Chat
	params := map[string]string{"ref": ref}
	if err := c.call(ctx, "getEntity", params, c.callTimeout, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

func (c *GatewayClient) IterDialogs(ctx context.Context) ([]Dialog, error) {
	var result struct {
		Dialogs []Dialog `json:"dialogs"`
	}
	if err := c.call(ctx, "listDialogs", nil, c.callTimeout, &result); err != nil {
		return nil, err
	}
	return result.Dialogs, nil
}

func (c *GatewayClient) GetMessages(ctx context.Context, chatID int64, ids []int64) ([]*Message, error) {
	var result struct {
		Messages []*Message `json:"messages"`
	}
	params := map[string]interface{}{"chatId": chatID, "ids": ids}
	if err := c.call(ctx, "getMessages", params, c.callTimeout, &result); err != nil {
		return nil, err
	}
	return result.Messages, nil
}

func (c *GatewayClient) DownloadMedia(ctx context.Context, chatID, msgID int64, targetPath string) (string, error) {
	var result struct {
		Path string `json:"path"`
	}
	params := map[string]interface{}{"chatId": chatID, "msgId": msgID, "targetPath": targetPath}
	if err := c.call(ctx, "downloadMedia", params, 0, &result); err != nil {
		return "", err
	}
	return result.Path, nil
}

func (c *GatewayClient) IterMessages(ctx context.Context, chatID int64, opts IterOptions) (MessageIter, error) {
	return &gatewayIter{client: c, chatID: chatID, opts: opts}, nil
}

// gatewayIter pages through history lazily; the gateway interprets cursor as
// "continue after this id" in the requested direction.
type gatewayIter struct {
	client  *GatewayClient
	chatID  int64
	opts    IterOptions
	cursor  int64
	page    []*Message
	pos     int
	yielded int
	done    bool
}

func (it *gatewayIter) Next(ctx context.Context) (*Message, error) {
	if it.opts.Limit > 0 && it.yielded >= it.opts.Limit {
		return nil, ErrEndOfHistory
	}
	if it.pos >= len(it.page) {
		if it.done {
			return nil, ErrEndOfHistory
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(it.page) == 0 {
			return nil, ErrEndOfHistory
		}
	}
	msg := it.page[it.pos]
	it.pos++
	it.yielded++
	it.cursor = msg.ID
	return msg, nil
}

func (it *gatewayIter) fetchPage(ctx context.Context) error {
	pageSize := defaultPageSize
	if it.opts.Limit > 0 && it.opts.Limit-it.yielded < pageSize {
		pageSize = it.opts.Limit - it.yielded
	}

	var result struct {
		Messages []*Message `json:"messages"`
		Done     bool       `json:"done"`
	}
	params := map[string]interface{}{
		"chatId":  it.chatID,
		"minId":   it.opts.MinID,
		"maxId":   it.opts.MaxID,
		"limit":   pageSize,
		"reverse": it.opts.Reverse,
		"cursor":  it.cursor,
	}
	if err := it.client.call(ctx, "getHistory", params, it.client.callTimeout, &result); err != nil {
		return err
	}
	it.page = result.Messages
	it.pos = 0
	it.done = result.Done || len(result.Messages) < pageSize
	return nil
}
