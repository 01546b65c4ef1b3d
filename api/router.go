package api

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dallasmenard-github/NiagaraGetData/api/handlers"
	"github.com/dallasmenard-github/NiagaraGetData/api/middleware"
	"github.com/dallasmenard-github/NiagaraGetData/internal/domain"
)

// Version is reported by the health endpoint.
const Version = "2.0.0"

// SetupRouter builds the read-only status API. Downloads are not
// triggerable over HTTP because a batch needs an interactively acquired
// session; the API reports what recorded runs did.
func SetupRouter(repo domain.RunRepository, districts map[string]domain.District, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))

	healthHandler := handlers.NewHealthHandler(Version)
	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	{
		runHandler := handlers.NewRunHandler(repo, log)
		runs := v1.Group("/runs")
		{
			runs.GET("", runHandler.ListRuns)
			runs.GET("/totals", runHandler.GetTotals)
		}

		districtHandler := handlers.NewDistrictHandler(districts)
		v1.GET("/districts", districtHandler.ListDistricts)
	}

	return router
}
