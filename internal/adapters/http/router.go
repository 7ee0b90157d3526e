package http

import (
	"context"
	"net/http"

	"github.com/dkeye/meshcall/internal/adapters/rtc"
	"github.com/dkeye/meshcall/internal/adapters/signal"
	"github.com/dkeye/meshcall/internal/app"
	"github.com/dkeye/meshcall/internal/auth"
	"github.com/dkeye/meshcall/internal/config"
	"github.com/dkeye/meshcall/internal/directory"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const (
	clientKey   = "client_token"
	identityKey = "identity"
)

// Deps is everything the router serves.
type Deps struct {
	Signal     *signal.SignalWSController
	Hub        *app.Hub
	Directory  *directory.Store
	Auth       signal.Authenticator
	ICEServers []webrtc.ICEServer
}

// ClientTokenMiddleware gives every browser a stable id kept in the cookie
// session. It only labels connections in logs.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		token, _ := sess.Get(clientKey).(string)
		if token == "" {
			token = uuid.NewString()
			sess.Set(clientKey, token)
			if err := sess.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save session")
			}
		}
		c.Set(clientKey, token)
		c.Next()
	}
}

// BearerAuth rejects requests without a valid token and stores the identity
// under "identity".
func BearerAuth(v signal.Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		ident, err := v.Verify(auth.TokenFromRequest(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(identityKey, ident)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, d Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("MeshcallSessions", store))
	r.Use(ClientTokenMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"node":        d.Hub.Node(),
			"connections": d.Hub.Count(),
		})
	})

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Debug().Str("module", "adapters.http").Str("client", c.GetString(clientKey)).Msg("ws signal endpoint hit")
		d.Signal.HandleSignal(ctx, c)
	})

	api.GET("/ice-servers", func(c *gin.Context) {
		c.JSON(http.StatusOK, rtc.ClientConfig(d.ICEServers))
	})

	h := &directoryHandlers{dir: d.Directory}
	authed := api.Group("", BearerAuth(d.Auth))
	authed.GET("/rooms", h.listRooms)
	authed.POST("/rooms", h.createRoom)
	authed.GET("/rooms/:id", h.getRoom)
	authed.POST("/users", h.registerUser)
	authed.GET("/users/:id", h.getUser)

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
