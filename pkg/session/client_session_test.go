package session

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/lilwiggy/twap-gateway/pkg/aggregator"
	"github.com/lilwiggy/twap-gateway/pkg/auth"
	"github.com/lilwiggy/twap-gateway/pkg/domain"
)

var testUpgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type fakeSymbolSubscriber struct {
	added   chan string
	removed chan string
}

func newFakeSymbolSubscriber() *fakeSymbolSubscriber {
	return &fakeSymbolSubscriber{added: make(chan string, 8), removed: make(chan string, 8)}
}

func (f *fakeSymbolSubscriber) Add(symbol string) error {
	f.added <- symbol
	return nil
}

func (f *fakeSymbolSubscriber) Remove(symbol string) error {
	f.removed <- symbol
	return nil
}

func newTestServer(t *testing.T, facade *auth.Facade, symbols SymbolSubscriber) (*httptest.Server, string) {
	t.Helper()
	agg := aggregator.New(map[string]aggregator.BookSource{})

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClientSession(conn, facade, agg, symbols)
		client.Run()
	})

	server := httptest.NewServer(mux)
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	return server, wsURL
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestClientSessionRejectsSubscribeBeforeAuthenticate(t *testing.T) {
	facade := auth.New(auth.StaticCredentialStore{})
	symbols := newFakeSymbolSubscriber()
	server, url := newTestServer(t, facade, symbols)
	defer server.Close()

	conn := dial(t, url)
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "symbol": "BTCUSDT"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case symbol := <-symbols.added:
		t.Fatalf("unexpected upstream subscribe for %s before authentication", symbol)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestClientSessionSubscribesAfterAuthenticate(t *testing.T) {
	store := newStubStore(t, "trader", "hunter2")
	facade := auth.New(store)
	token, err := facade.Authenticate("trader", "hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	symbols := newFakeSymbolSubscriber()
	server, url := newTestServer(t, facade, symbols)
	defer server.Close()

	conn := dial(t, url)
	defer conn.Close()

	if err := conn.WriteJSON(map[string]string{"action": "authenticate", "token": token}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}

	var reply authReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read auth reply: %v", err)
	}
	if !reply.Authenticated {
		t.Fatalf("expected Authenticated=true, got error %q", reply.Error)
	}

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "symbol": "btcusdt"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}

	select {
	case symbol := <-symbols.added:
		if symbol != domain.Canonical("btcusdt") {
			t.Fatalf("subscribed symbol = %s, want %s", symbol, domain.Canonical("btcusdt"))
		}
	case <-time.After(time.Second):
		t.Fatal("expected upstream subscribe after authentication")
	}
}

func TestClientSessionDisconnectReleasesSubscriptions(t *testing.T) {
	store := newStubStore(t, "trader", "hunter2")
	facade := auth.New(store)
	token, err := facade.Authenticate("trader", "hunter2")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	symbols := newFakeSymbolSubscriber()
	server, url := newTestServer(t, facade, symbols)
	defer server.Close()

	conn := dial(t, url)

	if err := conn.WriteJSON(map[string]string{"action": "authenticate", "token": token}); err != nil {
		t.Fatalf("write authenticate: %v", err)
	}
	var reply authReply
	if err := conn.ReadJSON(&reply); err != nil {
		t.Fatalf("read auth reply: %v", err)
	}

	if err := conn.WriteJSON(map[string]string{"action": "subscribe", "symbol": "ETHUSDT"}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	select {
	case <-symbols.added:
	case <-time.After(time.Second):
		t.Fatal("expected upstream subscribe before disconnect")
	}

	conn.Close()

	select {
	case symbol := <-symbols.removed:
		if symbol != "ETHUSDT" {
			t.Fatalf("released symbol = %s, want ETHUSDT", symbol)
		}
	case <-time.After(time.Second):
		t.Fatal("expected upstream unsubscribe on client disconnect")
	}
}

// stubStore backs a single known username/password pair with a real
// bcrypt hash computed once at construction time.
type stubStore struct {
	username string
	hash     string
}

func newStubStore(t *testing.T, username, password string) stubStore {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("generate bcrypt hash: %v", err)
	}
	return stubStore{username: username, hash: string(hashed)}
}

func (s stubStore) PasswordHash(username string) (string, bool) {
	if username != s.username {
		return "", false
	}
	return s.hash, true
}
