package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicecall/internal/adapters/analytics"
	"github.com/dkeye/voicecall/internal/adapters/media"
	"github.com/dkeye/voicecall/internal/adapters/rtc"
	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/adapters/store"
	"github.com/dkeye/voicecall/internal/app/call"
	"github.com/dkeye/voicecall/internal/app/stream"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
)

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFile(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(cfg.LogLevel())
	if signalURL != "" {
		cfg.Signal.URL = signalURL
	}
	return cfg, nil
}

func iceProvider(cfg *config.Config) core.ICEServerProvider {
	stun := rtc.DefaultSTUN()
	if len(cfg.ICE.STUNURLs) > 0 {
		stun = []webrtc.ICEServer{{URLs: cfg.ICE.STUNURLs}}
	}
	var primary core.ICEServerProvider
	if cfg.ICE.TURNEndpoint != "" {
		primary = &rtc.TURNProvider{Endpoint: cfg.ICE.TURNEndpoint, Token: cfg.ICE.TURNToken}
	}
	return &rtc.FallbackProvider{Primary: primary, Fallback: stun, Timeout: cfg.ICE.Timeout}
}

// participant is one wired call client: relay connection, call manager and call log.
type participant struct {
	mgr *call.Manager
	sig *signal.Client
	db  *store.SQLite
}

func newParticipant(ctx context.Context, cfg *config.Config) (*participant, error) {
	if self == "" || peer == "" || conversation == "" {
		return nil, errors.New("--self, --peer and --conversation are required")
	}

	db, err := store.OpenSQLite(cfg.Store.SQLitePath, 4)
	if err != nil {
		return nil, err
	}

	src := media.NewSource(media.Permissions{})
	src.OnTrack = func(t *media.SampleTrack) {
		go func() {
			if err := media.Feed(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn().Err(err).Str("module", "caller").Str("track", t.ID()).Msg("feed stopped")
			}
		}()
	}

	sig, err := signal.Dial(ctx, signal.ClientOptions{
		URL:        cfg.Signal.URL,
		Token:      self,
		SendBuffer: cfg.Signal.SendBuffer,
		OnControl: func(c signal.Control) {
			ev := log.Info().Str("module", "caller").Str("type", c.Type)
			if c.User != nil {
				ev = ev.Str("user", c.User.Username)
			}
			if c.Error != "" {
				ev = ev.Str("error", c.Error)
			}
			ev.Msg("relay")
		},
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	mgr := call.NewManager(call.Config{
		Conversation: domain.ConversationID(conversation),
		Self:         domain.UserID(self),
		Peer:         domain.UserID(peer),
		Transport:    sig,
		Peers:        rtc.NewFactory(iceProvider(cfg), nil),
		Media:        src,
		Logs:         db,
		Analytics:    analytics.NewLogger(),
		Options:      cfg.CallOptions(),
	})
	sig.Start(mgr)

	name := displayName
	if name == "" {
		name = self
	}
	if _, err := sig.Join(ctx, domain.ConversationID(conversation), name); err != nil {
		mgr.Close()
		sig.Close()
		_ = db.Close()
		return nil, err
	}
	return &participant{mgr: mgr, sig: sig, db: db}, nil
}

func (p *participant) Close() {
	p.mgr.Close()
	p.sig.Close()
	if err := p.db.Close(); err != nil {
		log.Warn().Err(err).Str("module", "caller").Msg("close store")
	}
}

// packetCounter is a remote track sink that only counts what arrives.
type packetCounter struct {
	n atomic.Int64
}

func (c *packetCounter) WriteRTP(*rtp.Packet) error {
	c.n.Add(1)
	return nil
}

// callView is the part of the call manager the event loop drives.
type callView interface {
	Subscribe() (<-chan call.Event, func())
	State() domain.CallState
	RemoteStream() (*stream.RemoteStream, bool)
	EndCall(ctx context.Context) error
}

// run logs events until the session ends, the relay drops or ctx is done.
// onIncoming decides what to do with an incoming call.
func (p *participant) run(ctx context.Context, onIncoming func(call.IncomingCall)) error {
	return watch(ctx, p.mgr, p.sig.Done(), onIncoming)
}

func watch(ctx context.Context, mgr callView, relayDone <-chan struct{}, onIncoming func(call.IncomingCall)) error {
	events, unsubscribe := mgr.Subscribe()
	defer unsubscribe()

	counters := map[string]*packetCounter{}
	defer func() {
		for id, c := range counters {
			log.Info().Str("module", "caller").Str("track", id).Int64("packets", c.n.Load()).Msg("remote track total")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if mgr.State().Active() {
				endCtx, cancel := context.WithTimeout(context.Background(), endTimeout)
				defer cancel()
				return mgr.EndCall(endCtx)
			}
			return nil
		case <-relayDone:
			return errors.New("relay connection closed")
		case ev, ok := <-events:
			if !ok {
				return errors.New("call manager closed")
			}
			switch e := ev.(type) {
			case call.StateChanged:
				log.Info().Str("module", "caller").Str("session_id", string(e.SessionID)).
					Str("from", string(e.From)).Str("to", string(e.To)).Msg("state")
				if e.To == domain.CallStateEnded {
					return nil
				}
			case call.IncomingCall:
				log.Info().Str("module", "caller").Str("session_id", string(e.SessionID)).
					Str("call_type", string(e.CallType)).Msg("incoming call")
				if onIncoming != nil {
					onIncoming(e)
				}
			case call.RemoteTrackAdded:
				rs, ok := mgr.RemoteStream()
				if !ok {
					continue
				}
				c := &packetCounter{}
				if rs.AddSink(e.Track.ID, "caller", c) {
					counters[e.Track.ID] = c
				}
				log.Info().Str("module", "caller").Str("track", e.Track.ID).Str("kind", e.Track.Kind.String()).Msg("remote track")
			case call.Reconnecting:
				log.Warn().Str("module", "caller").Msg("connection lost, waiting")
			case call.Reconnected:
				log.Info().Str("module", "caller").Msg("reconnected")
			case call.ICERestarting:
				log.Warn().Str("module", "caller").Int("attempt", e.Attempt).Msg("ice restart")
			case call.NegotiationFailed:
				log.Warn().Err(e.Err).Str("module", "caller").Str("stage", e.Stage).Msg("negotiation step failed, call continues")
			case call.CallFailed:
				return fmt.Errorf("call failed: %w", e.Err)
			}
		}
	}
}
