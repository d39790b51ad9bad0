package wsapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"mdrelay/internal/application/port"
	"mdrelay/internal/domain/model"
)

type fakeRelay struct {
	mu           sync.Mutex
	calls        []string
	disconnected []string
}

func (f *fakeRelay) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeRelay) SubscribeQuote(_ context.Context, raw string, v port.Viewer) (model.AssetID, error) {
	if raw == "" {
		return "", errors.New("empty asset")
	}
	f.record("quote:" + raw)
	v.DeliverQuote(model.PriceQuote{AssetID: model.AssetID(raw), PriceUSD: 1.25, Symbol: "TKN"})
	return model.AssetID(raw), nil
}

func (f *fakeRelay) SubscribeTrades(_ context.Context, raw string, v port.Viewer) (model.AssetID, error) {
	f.record("trades:" + raw)
	v.DeliverTrades(model.AssetID(raw), []model.Trade{{DedupeKey: "h-1", TxHash: "h", Amount: 3, Side: model.SideBuy}})
	return model.AssetID(raw), nil
}

func (f *fakeRelay) UnsubscribeQuote(raw string, _ port.Viewer)  { f.record("unquote:" + raw) }
func (f *fakeRelay) UnsubscribeTrades(raw string, _ port.Viewer) { f.record("untrades:" + raw) }

func (f *fakeRelay) QuoteSnapshot(_ context.Context, asset model.AssetID) (model.PriceQuote, bool) {
	f.record("snapshot:" + string(asset))
	return model.PriceQuote{AssetID: asset, PriceUSD: 1.5, Symbol: "TKN"}, true
}

func (f *fakeRelay) TradesSnapshot(context.Context, model.AssetID) []model.Trade { return nil }

func (f *fakeRelay) Disconnect(v port.Viewer) {
	f.mu.Lock()
	f.disconnected = append(f.disconnected, v.ID())
	f.mu.Unlock()
}

func (f *fakeRelay) snapshot() ([]string, []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...), append([]string(nil), f.disconnected...)
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readJSON(t *testing.T, conn *websocket.Conn) gjson.Result {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, b, err := conn.ReadMessage()
	require.NoError(t, err)
	return gjson.ParseBytes(b)
}

func TestServerSubscribeFlow(t *testing.T) {
	relay := &fakeRelay{}
	srv := httptest.NewServer(NewServer(relay, Options{}).Handler())
	defer srv.Close()

	conn := dial(t, srv)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","tokenAddress":"MINT"}`)))
	msg := readJSON(t, conn)
	assert.Equal(t, "price_update", msg.Get("type").String())
	assert.Equal(t, "MINT", msg.Get("data.tokenAddress").String())
	assert.Equal(t, 1.25, msg.Get("data.price").Float())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe_trades","tokenAddress":"MINT"}`)))
	msg = readJSON(t, conn)
	assert.Equal(t, "trades_update", msg.Get("type").String())
	assert.Equal(t, "MINT", msg.Get("tokenAddress").String())
	assert.Equal(t, "h-1", msg.Get("data.0.hash").String())

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"unsubscribe","tokenAddress":"MINT"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	msg = readJSON(t, conn)
	assert.Equal(t, "error", msg.Get("type").String())

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, disc := relay.snapshot()
		return len(disc) == 1
	}, 2*time.Second, 10*time.Millisecond)

	calls, _ := relay.snapshot()
	assert.Equal(t, []string{"quote:MINT", "trades:MINT", "unquote:MINT"}, calls)
}

func TestServerSubscribeError(t *testing.T) {
	srv := httptest.NewServer(NewServer(&fakeRelay{}, Options{}).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","tokenAddress":"  "}`)))
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg.Get("type").String())
	assert.Equal(t, "empty asset", msg.Get("message").String())
}

func TestServerHealth(t *testing.T) {
	s := NewServer(&fakeRelay{}, Options{
		Health: func() Health {
			return Health{Status: "ok", Feed: "open", Assets: 2, Viewers: 3, Pools: 2}
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = io.WriteString(w, "metrics") }),
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "open", gjson.GetBytes(b, "feed").String())
	assert.Equal(t, int64(3), gjson.GetBytes(b, "viewers").Int())

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	b, _ = io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "metrics", string(b))
}

func TestSessionDropsWhenFull(t *testing.T) {
	sess := &session{id: "s", send: make(chan []byte, 1), done: make(chan struct{})}
	assert.True(t, sess.DeliverQuote(model.PriceQuote{AssetID: "A"}))
	assert.False(t, sess.DeliverQuote(model.PriceQuote{AssetID: "A"}))
}

func TestServerRepeatedSubscribeIsIdempotent(t *testing.T) {
	relay := &fakeRelay{}
	srv := httptest.NewServer(NewServer(relay, Options{}).Handler())
	defer srv.Close()

	conn := dial(t, srv)
	defer conn.Close()

	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"subscribe","tokenAddress":"MINT"}`)))
		msg := readJSON(t, conn)
		assert.Equal(t, "price_update", msg.Get("type").String())
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"unsubscribe","tokenAddress":"MINT"}`)))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"unsubscribe_trades","tokenAddress":"MINT"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`)))
	assert.Equal(t, "error", readJSON(t, conn).Get("type").String())

	calls, _ := relay.snapshot()
	assert.Equal(t, []string{"quote:MINT", "snapshot:MINT", "unquote:MINT"}, calls)
}
