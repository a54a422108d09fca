package http

import (
	"context"
	"net/http"

	"github.com/dkeye/voicecall/internal/adapters/signal"
	"github.com/dkeye/voicecall/internal/app/orch"
	"github.com/dkeye/voicecall/internal/config"
	"github.com/dkeye/voicecall/internal/core"
	"github.com/dkeye/voicecall/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	return uuid.NewString()
}

// ClientTokenMiddleware pins every browser or CLI client to a stable token.
// The token doubles as the relay-side user id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie(signal.ClientTokenCookie)
		if token == "" {
			token = genClientToken()
			c.SetCookie(signal.ClientTokenCookie, token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// SignalSettings maps the relay part of the configuration.
func SignalSettings(cfg *config.Config) signal.Settings {
	s := signal.DefaultSettings()
	if cfg.ReadLimit > 0 {
		s.ReadLimit = cfg.ReadLimit
	}
	if cfg.PingPeriod > 0 {
		s.PingPeriod = cfg.PingPeriod
	}
	if cfg.Signal.SendBuffer > 0 {
		s.SendBuffer = cfg.Signal.SendBuffer
	}
	s.RateLimit = cfg.Signal.RateLimit
	s.RateBurst = cfg.Signal.RateBurst
	return s
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("VoiceCallSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctrl := signal.NewSignalWSController(o, SignalSettings(cfg))
	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("cid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctrl.HandleSignal(ctx, c)
	})

	api.GET("/conversations", func(c *gin.Context) {
		c.JSON(http.StatusOK, o.Hubs.List())
	})

	api.GET("/conversations/:id", func(c *gin.Context) {
		hub, ok := o.Hubs.Get(domain.ConversationID(c.Param("id")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":      hub.ID(),
			"members": hub.MembersSnapshot(),
			"count":   hub.MemberCount(),
		})
	})

	api.DELETE("/conversations/:id", func(c *gin.Context) {
		id := domain.ConversationID(c.Param("id"))
		if _, ok := o.Hubs.Get(id); !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
			return
		}
		cid := core.ClientID(c.GetString("client_token"))
		if cur, _, ok := o.Registry.ConversationOf(cid); !ok || cur != id {
			log.Warn().Str("module", "adapters.http").Str("cid", string(cid)).Str("conversation", string(id)).Msg("evict refused, not a member")
			c.JSON(http.StatusForbidden, gin.H{"error": "not_a_member"})
			return
		}
		o.EvictConversation(id)
		log.Info().Str("module", "adapters.http").Str("conversation", string(id)).Msg("conversation evicted")
		c.Status(http.StatusNoContent)
	})

	// whoami reports the client token and a visit counter kept in the cookie session.
	api.GET("/whoami", func(c *gin.Context) {
		sess := sessions.Default(c)
		visits, _ := sess.Get("visits").(int)
		sess.Set("visits", visits+1)
		_ = sess.Save()
		c.JSON(http.StatusOK, gin.H{"id": c.GetString("client_token"), "visits": visits + 1})
	})

	return r
}
