package rtc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTURNProviderParsesServers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"iceServers":[
			{"urls":"stun:turn.example.com:3478"},
			{"urls":["turn:turn.example.com:3478?transport=udp","turns:turn.example.com:5349"],"username":"u1","credential":"p1"},
			{"urls":[]}
		]}`))
	}))
	defer srv.Close()

	p := &TURNProvider{Endpoint: srv.URL, Token: "secret", Client: srv.Client()}
	servers, err := p.GetICEServers(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 2)
	assert.Equal(t, []string{"stun:turn.example.com:3478"}, servers[0].URLs)
	assert.Empty(t, servers[0].Username)
	assert.Equal(t, "u1", servers[1].Username)
	assert.Equal(t, "p1", servers[1].Credential)
	assert.Equal(t, webrtc.ICECredentialTypePassword, servers[1].CredentialType)
}

func TestTURNProviderErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/empty":
			_, _ = w.Write([]byte(`{"iceServers":[]}`))
		case "/garbage":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/empty", "/garbage", "/denied"} {
		p := &TURNProvider{Endpoint: srv.URL + path}
		_, err := p.GetICEServers(context.Background())
		assert.Error(t, err, path)
	}
}

type brokenProvider struct{ err error }

func (b brokenProvider) GetICEServers(context.Context) ([]webrtc.ICEServer, error) {
	return nil, b.err
}

type slowProvider struct{}

func (slowProvider) GetICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestFallbackProvider(t *testing.T) {
	custom := []webrtc.ICEServer{{URLs: []string{"stun:backup.example.com:3478"}}}

	cases := []struct {
		name string
		p    *FallbackProvider
		want []webrtc.ICEServer
	}{
		{"no primary", &FallbackProvider{}, DefaultSTUN()},
		{"primary fails", &FallbackProvider{Primary: brokenProvider{errors.New("down")}, Fallback: custom}, custom},
		{"primary empty", &FallbackProvider{Primary: StaticProvider(nil)}, DefaultSTUN()},
		{"primary slow", &FallbackProvider{Primary: slowProvider{}, Timeout: 10 * time.Millisecond}, DefaultSTUN()},
		{"primary ok", &FallbackProvider{Primary: StaticProvider(custom)}, custom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.p.GetICEServers(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
