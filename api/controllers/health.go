package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/evergreen-market/storefront/api/responses"
	"github.com/evergreen-market/storefront/pkg/config"
	pkgerrors "github.com/evergreen-market/storefront/pkg/errors"
	"github.com/evergreen-market/storefront/pkg/logger"
	"github.com/evergreen-market/storefront/pkg/redis"
)

const readyCheckTimeout = 2 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady verifies the dependencies the storefront cannot serve without.
// The remote commerce service is deliberately not probed: the storefront
// degrades to mirror reads when it is down.
func HealthReady(cfg *config.Config, logg *logger.Logger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Storefront-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readyCheckTimeout)
		defer cancel()

		if redisP == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "redis not configured"))
			return
		}
		if err := redisP.Ping(ctx); err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis not ready"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
