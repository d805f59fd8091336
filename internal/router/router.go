package router

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/peercode/interview-service/internal/handler"
	"github.com/peercode/interview-service/internal/middleware"
	"github.com/peercode/interview-service/pkg/constants"
)

// New builds the HTTP router.
func New(
	sessionHandler *handler.SessionHandler,
	sessionWS *handler.SessionWSHandler,
	health *handler.HealthHandler,
	jwtSecret string,
	allowedOrigins []string,
) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())

	corsCfg := cors.DefaultConfig()
	if len(allowedOrigins) > 0 {
		corsCfg.AllowOrigins = allowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization", "X-User-ID")
	r.Use(cors.New(corsCfg))

	r.GET(constants.PathHealth, health.Health)
	r.GET(constants.PathReady, health.Ready)

	auth := middleware.JWTAuth(jwtSecret)

	// REST sessions
	sessions := r.Group("/sessions", auth)
	{
		sessions.POST("", sessionHandler.CreateSession)
		sessions.GET("/:id", sessionHandler.GetSession)
		sessions.DELETE("/:id", sessionHandler.DeleteSession)
	}

	// WebSocket: /ws/session/:session_id
	r.GET("/ws/session/:session_id", auth, sessionWS.ServeWS)

	return r
}
