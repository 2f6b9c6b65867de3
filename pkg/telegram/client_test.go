package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"tgarchive/internal/metrics"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayHandler func(req gatewayRequest) (interface{}, *gatewayError)

// startGateway runs a one-connection fake gateway. The returned push function
// injects event frames into the stream.
func startGateway(t *testing.T, handle gatewayHandler) (url string, push func(Event)) {
	t.Helper()

	conns := make(chan *websocket.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn

		ctx := context.Background()
		for {
			var req gatewayRequest
			if err := wsjson.Read(ctx, conn, &req); err != nil {
				return
			}

			frame := gatewayFrame{ID: req.ID}
			result, gwErr := handle(req)
			if gwErr != nil {
				frame.Error = gwErr
			} else if result != nil {
				data, err := json.Marshal(result)
				require.NoError(t, err)
				frame.Result = data
			}
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	push = func(event Event) {
		select {
		case conn := <-conns:
			require.NoError(t, wsjson.Write(context.Background(), conn,
				gatewayFrame{Event: event.Kind, Message: event.Message}))
			conns <- conn
		case <-time.After(2 * time.Second):
			t.Fatal("no gateway connection to push to")
		}
	}
	return wsURL, push
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func connectClient(t *testing.T, url string) *GatewayClient {
	t.Helper()
	client := NewGatewayClient(GatewayOptions{URL: url, Logger: quietLogger(), CallTimeoutSec: 5})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestGatewayClientIsAuthorized(t *testing.T) {
	url, _ := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		assert.Equal(t, "isAuthorized", req.Method)
		return map[string]bool{"authorized": true}, nil
	})

	client := connectClient(t, url)
	authorized, err := client.IsAuthorized(context.Background())
	require.NoError(t, err)
	assert.True(t, authorized)
}

func TestGatewayClientPropagatesErrors(t *testing.T) {
	url, _ := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		return nil, &gatewayError{Code: 420, Message: "FLOOD_WAIT"}
	})

	client := connectClient(t, url)
	_, err := client.IsAuthorized(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FLOOD_WAIT")
}

func TestGatewayClientNotConnected(t *testing.T) {
	client := NewGatewayClient(GatewayOptions{URL: "ws://nowhere", Logger: quietLogger()})
	_, err := client.IsAuthorized(context.Background())
	assert.Error(t, err)
}

func TestGatewayClientReceivesEvents(t *testing.T) {
	url, push := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		return nil, nil
	})

	client := connectClient(t, url)
	// A round trip guarantees the connection is up before pushing
	_, _ = client.IsAuthorized(context.Background())

	push(Event{Kind: EventNewMessage, Message: &Message{ID: 7, ChatID: 100, Text: "hi"}})

	select {
	case event := <-client.Events():
		assert.Equal(t, EventNewMessage, event.Kind)
		require.NotNil(t, event.Message)
		assert.Equal(t, int64(7), event.Message.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestGatewayClientCountsDroppedEvents(t *testing.T) {
	url, push := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		return nil, nil
	})

	client := NewGatewayClient(GatewayOptions{
		URL: url, Logger: quietLogger(), CallTimeoutSec: 5, EventBufferSize: 1,
	})
	require.NoError(t, client.Connect(context.Background()))
	t.Cleanup(func() { _ = client.Close() })
	_, _ = client.IsAuthorized(context.Background())

	// Nothing drains Events(), so only the first push fits the buffer
	push(Event{Kind: EventNewMessage, Message: &Message{ID: 1, ChatID: 100}})
	push(Event{Kind: EventNewMessage, Message: &Message{ID: 2, ChatID: 100}})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		counters := metrics.GetAllMetrics()["counters"].(map[string]*metrics.Metric)
		if counter, ok := counters["gateway_events_dropped"]; ok && counter.Value >= 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("dropped event was never counted")
}

func TestGatewayClientGetMessages(t *testing.T) {
	url, _ := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		assert.Equal(t, "getMessages", req.Method)
		return map[string]interface{}{
			"messages": []*Message{{ID: 5, ChatID: 100, Text: "found"}},
		}, nil
	})

	client := connectClient(t, url)
	msgs, err := client.GetMessages(context.Background(), 100, []int64{5, 6})
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, int64(5), msgs[0].ID)
}

func TestGatewayIterPagination(t *testing.T) {
	pages := 0
	url, _ := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		if req.Method != "getHistory" {
			return nil, nil
		}
		pages++
		switch pages {
		case 1:
			msgs := make([]*Message, defaultPageSize)
			for i := range msgs {
				msgs[i] = &Message{ID: int64(i + 1), ChatID: 100}
			}
			return map[string]interface{}{"messages": msgs, "done": false}, nil
		default:
			return map[string]interface{}{
				"messages": []*Message{{ID: int64(defaultPageSize + 1), ChatID: 100}},
				"done":     true,
			}, nil
		}
	})

	client := connectClient(t, url)
	iter, err := client.IterMessages(context.Background(), 100, IterOptions{Reverse: true})
	require.NoError(t, err)

	count := 0
	var lastID int64
	for {
		msg, err := iter.Next(context.Background())
		if err == ErrEndOfHistory {
			break
		}
		require.NoError(t, err)
		count++
		lastID = msg.ID
	}

	assert.Equal(t, defaultPageSize+1, count)
	assert.Equal(t, int64(defaultPageSize+1), lastID)
	assert.Equal(t, 2, pages)
}

func TestGatewayIterHonorsLimit(t *testing.T) {
	url, _ := startGateway(t, func(req gatewayRequest) (interface{}, *gatewayError) {
		var params struct {
			Limit int `json:"limit"`
		}
		data, _ := json.Marshal(req.Params)
		_ = json.Unmarshal(data, &params)

		msgs := make([]*Message, params.Limit)
		for i := range msgs {
			msgs[i] = &Message{ID: int64(i + 1), ChatID: 100}
		}
		return map[string]interface{}{"messages": msgs, "done": false}, nil
	})

	client := connectClient(t, url)
	iter, err := client.IterMessages(context.Background(), 100, IterOptions{Limit: 7})
	require.NoError(t, err)

	count := 0
	for {
		_, err := iter.Next(context.Background())
		if err == ErrEndOfHistory {
			break
		}
		require.NoError(t, err)
		count++
	}
	assert.Equal(t, 7, count)
}
