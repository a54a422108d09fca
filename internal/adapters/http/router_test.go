package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dkeye/voicecall/internal/app"
	"github.com/dkeye/voicecall/internal/app/orch"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func setup(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Hubs: app.NewHubManager(), Policy: app.SimplePolicy{}}
	cfg := &config.Config{Mode: "test", Secret: "test-secret"}
	return SetupRouter(context.Background(), cfg, o), o
}

func join(t *testing.T, o *orch.Orchestrator, cid core.ClientID, conv domain.ConversationID) {
	t.Helper()
	u, err := o.Registry.GetOrCreateUser(cid)
	require.NoError(t, err)
	o.Registry.BindSignal(cid, core.NewMemberSession(domain.NewMember(u), nopConn{}), nil)
	_, err = o.Join(cid, conv)
	require.NoError(t, err)
}

func asClient(req *http.Request, cid string) *http.Request {
	req.AddCookie(&http.Cookie{Name: "ct", Value: cid})
	return req
}

func TestClientTokenCookieIsIssued(t *testing.T) {
	r, _ := setup(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/whoami", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ID     string `json:"id"`
		Visits int    `json:"visits"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, 1, body.Visits)

	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			found = true
			assert.Equal(t, body.ID, c.Value)
		}
	}
	assert.True(t, found)
}

func TestConversationEndpoints(t *testing.T) {
	r, o := setup(t)
	join(t, o, "alice", "conv-1")
	join(t, o, "bob", "conv-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var list []core.ConversationInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, 2, list[0].MemberCount)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":2`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, asClient(httptest.NewRequest(http.MethodDelete, "/api/conversations/conv-1", nil), "alice"))
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := o.Hubs.Get("conv-1")
	assert.False(t, ok)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvictRequiresMembership(t *testing.T) {
	r, o := setup(t)
	join(t, o, "alice", "conv-1")
	join(t, o, "bob", "conv-1")
	join(t, o, "carol", "conv-2")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/conversations/conv-1", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, asClient(httptest.NewRequest(http.MethodDelete, "/api/conversations/conv-1", nil), "carol"))
	assert.Equal(t, http.StatusForbidden, w.Code)

	hub, ok := o.Hubs.Get("conv-1")
	require.True(t, ok)
	assert.Equal(t, 2, hub.MemberCount())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, asClient(httptest.NewRequest(http.MethodDelete, "/api/conversations/conv-1", nil), "bob"))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
