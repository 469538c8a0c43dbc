package bootstrap

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	httpapi "github.com/primebarber/site-backend/internal/api/http"
	reqmw "github.com/primebarber/site-backend/internal/api/http/middleware"
	"github.com/primebarber/site-backend/internal/auth"
	authmw "github.com/primebarber/site-backend/internal/auth/middleware"
)

// Routes is one handler group mounted under /api/v1.
type Routes interface {
	Register(rg *gin.RouterGroup)
}

type RouterDeps struct {
	ServiceName    string
	Version        string
	AllowedOrigins []string
	Logger         *zap.SugaredLogger
	Checks         map[string]httpapi.Check
	Auth           authmw.Options
	Routes         []Routes
}

func BuildRouter(dep RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqmw.RequestID(dep.Logger))
	r.Use(cors.New(corsConfig(dep.AllowedOrigins)))

	healthHandler := httpapi.NewHealthHandler(dep.ServiceName, dep.Version, dep.Checks)
	healthHandler.RegisterRoutes(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.Use(authmw.Session(dep.Auth))
	for _, routes := range dep.Routes {
		routes.Register(api)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowHeaders: []string{
			"Origin", "Content-Type", "Accept", "Authorization",
			auth.HeaderDeviceID, auth.HeaderUserID, reqmw.HeaderRequestID,
		},
		ExposeHeaders: []string{reqmw.HeaderRequestID},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cfg
}
