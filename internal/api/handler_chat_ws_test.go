package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskagent/internal/chat"
)

func dialChat(t *testing.T, srv *httptest.Server, query string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/chat/ws" + query
	return websocket.DefaultDialer.Dial(url, header)
}

func TestChatSocket(t *testing.T) {
	env := newTestEnv(pinger{})
	srv := httptest.NewServer(env.router.Engine)
	defer srv.Close()

	conn, _, err := dialChat(t, srv, "", http.Header{"Authorization": {"Bearer " + token(t, 3, "user")}})
	require.NoError(t, err)
	defer conn.Close()

	frames := []struct {
		in       wsInbound
		wantType string
		wantKind chat.Kind
		wantErr  string
	}{
		{wsInbound{Type: "message", Message: "hello"}, "reply", chat.KindGreeting, ""},
		{wsInbound{Type: "message", Message: "  "}, "error", "", "message is required"},
		{wsInbound{Type: "confirm", ConfirmationID: "c1", Approve: new(bool)}, "reply", chat.KindCancelled, ""},
		{wsInbound{Type: "confirm", ConfirmationID: "c1"}, "error", "", "confirmation_id and approve are required"},
		{wsInbound{Type: "shout"}, "error", "", "unknown frame type: shout"},
	}
	for _, f := range frames {
		require.NoError(t, conn.WriteJSON(f.in))
		var out wsOutbound
		require.NoError(t, conn.ReadJSON(&out))
		assert.Equal(t, f.wantType, out.Type)
		if f.wantType == "reply" {
			require.NotNil(t, out.Reply)
			assert.Equal(t, f.wantKind, out.Reply.Kind)
		} else {
			assert.Equal(t, f.wantErr, out.Error)
		}
	}

	env.chat.mu.Lock()
	defer env.chat.mu.Unlock()
	assert.Equal(t, []string{"hello"}, env.chat.messages)
	assert.Equal(t, []bool{false}, env.chat.approved)
}

func TestChatSocket_QueryToken(t *testing.T) {
	env := newTestEnv(pinger{})
	srv := httptest.NewServer(env.router.Engine)
	defer srv.Close()

	conn, _, err := dialChat(t, srv, "?access_token="+token(t, 3, "user"), nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := dialChat(t, srv, "?access_token=forged", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestChatSocket_QueryTokenOnlyForUpgrades(t *testing.T) {
	env := newTestEnv(pinger{})
	w := env.do(http.MethodGet, "/api/tasks?access_token="+token(t, 3, "user"), "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
