package transport_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/a-essam23/go-classroom/pkg/logging"
	"github.com/a-essam23/go-classroom/pkg/transport"
	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendNeverBlocks(t *testing.T) {
	c := transport.NewConnection(context.Background(), nil, nil, transport.ConnectionConfig{SendBuffer: 1}, nil, nil, logging.Discard())

	done := make(chan struct{})
	go func() {
		c.Send([]byte("one"))
		c.Send([]byte("two")) // buffer full, dropped
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
}

func TestSendAfterCloseIsDropped(t *testing.T) {
	var closedID uuid.UUID
	c := transport.NewConnection(context.Background(), nil, nil, transport.ConnectionConfig{}, nil, func(id uuid.UUID, err error) {
		closedID = id
	}, logging.Discard())

	c.Close(nil)
	c.Close(nil) // idempotent
	assert.NotPanics(t, func() { c.Send([]byte("late")) })
	assert.Equal(t, c.ID(), closedID)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done not closed after Close")
	}
}

func TestEchoOverWebsocket(t *testing.T) {
	var wg sync.WaitGroup
	closed := make(chan uuid.UUID, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		var conn *transport.Connection
		conn = transport.NewConnection(context.Background(), &wg, ws, transport.ConnectionConfig{ReadTimeout: time.Second},
			func(ctx context.Context, id uuid.UUID, msg []byte) {
				conn.Send([]byte(strings.ToUpper(string(msg))))
			},
			func(id uuid.UUID, err error) { closed <- id },
			logging.Discard(),
		)
		conn.Run()
		<-conn.Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte("hello")))
	typ, got, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, "HELLO", string(got))

	client.Close(websocket.StatusNormalClosure, "")

	select {
	case <-closed:
	case <-ctx.Done():
		t.Fatal("server side never saw the close")
	}
	wg.Wait()
}
