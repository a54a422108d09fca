package rtc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	"github.com/dkeye/voicecall/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultSTUN is the public STUN-only list used when nothing better is known.
func DefaultSTUN() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{"stun:stun.l.google.com:19302"},
		},
	}
}

// StaticProvider always returns the same servers.
type StaticProvider []webrtc.ICEServer

func (p StaticProvider) GetICEServers(context.Context) ([]webrtc.ICEServer, error) {
	return slices.Clone(p), nil
}

// TURNProvider fetches short-lived TURN credentials from an HTTP endpoint
// answering {"iceServers":[{"urls":...,"username":...,"credential":...}]}.
type TURNProvider struct {
	Endpoint string
	Token    string
	Client   *http.Client
}

var errNoServers = errors.New("rtc: endpoint returned no ice servers")

type iceServerJSON struct {
	URLs       urlList `json:"urls"`
	Username   string  `json:"username,omitempty"`
	Credential string  `json:"credential,omitempty"`
}

type iceServersResponse struct {
	ICEServers []iceServerJSON `json:"iceServers"`
}

// urlList accepts "urls" as a single string or an array, like RTCIceServer.
type urlList []string

func (u *urlList) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		*u = urlList{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return err
	}
	*u = many
	return nil
}

func (p *TURNProvider) GetICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("rtc: turn request: %w", err)
	}
	if p.Token != "" {
		req.Header.Set("Authorization", "Bearer "+p.Token)
	}
	req.Header.Set("Accept", "application/json")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rtc: turn request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rtc: turn endpoint status %d", resp.StatusCode)
	}

	var body iceServersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("rtc: decode turn response: %w", err)
	}
	out := make([]webrtc.ICEServer, 0, len(body.ICEServers))
	for _, s := range body.ICEServers {
		if len(s.URLs) == 0 {
			continue
		}
		srv := webrtc.ICEServer{URLs: []string(s.URLs), Username: s.Username}
		if s.Credential != "" {
			srv.Credential = s.Credential
			srv.CredentialType = webrtc.ICECredentialTypePassword
		}
		out = append(out, srv)
	}
	if len(out) == 0 {
		return nil, errNoServers
	}
	return out, nil
}

// FallbackProvider asks Primary and falls back to a fixed list on error,
// timeout or an empty answer. It never fails.
type FallbackProvider struct {
	Primary  core.ICEServerProvider
	Fallback []webrtc.ICEServer
	Timeout  time.Duration
}

func (p *FallbackProvider) GetICEServers(ctx context.Context) ([]webrtc.ICEServer, error) {
	fallback := p.Fallback
	if len(fallback) == 0 {
		fallback = DefaultSTUN()
	}
	if p.Primary == nil {
		return slices.Clone(fallback), nil
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}
	servers, err := p.Primary.GetICEServers(ctx)
	if err != nil || len(servers) == 0 {
		log.Warn().Str("module", "rtc").Err(err).Msg("ice provider unavailable, using fallback servers")
		return slices.Clone(fallback), nil
	}
	return servers, nil
}
