package handler

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"docqa/internal/bootstrap"
	mysqlClient "docqa/internal/platform/mysql"
	rabbitmqClient "docqa/internal/platform/rabbitmq"
	redisClient "docqa/internal/platform/redis"
)

type HealthHandler struct {
	app *bootstrap.App
}

type dependencyStatus struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func NewHealthHandler(app *bootstrap.App) *HealthHandler {
	return &HealthHandler{app: app}
}

// Check pings every backing service plus the storage and index directories.
// Any failure turns the response into a 503.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]func(context.Context) error{
		"mysql": func(ctx context.Context) error { return mysqlClient.Ping(ctx, h.app.MySQL) },
		"redis": func(ctx context.Context) error { return redisClient.Ping(ctx, h.app.Redis) },
		"rabbitmq": func(context.Context) error {
			return rabbitmqClient.Ping(h.app.MQConn)
		},
		"storage": func(context.Context) error { return dirExists(h.app.Config.Storage.Dir) },
		"index":   func(context.Context) error { return dirExists(h.app.Config.Index.Dir) },
	}

	statusCode := http.StatusOK
	dependencies := make(gin.H, len(checks))
	for name, check := range checks {
		status := dependencyStatus{OK: true}
		if err := check(ctx); err != nil {
			status = dependencyStatus{OK: false, Message: err.Error()}
			statusCode = http.StatusServiceUnavailable
		}
		dependencies[name] = status
	}

	c.JSON(statusCode, gin.H{
		"app":          h.app.Config.App.Name,
		"env":          h.app.Config.App.Env,
		"uptime_sec":   int(time.Since(h.app.StartedAt).Seconds()),
		"dependencies": dependencies,
		"ingest": gin.H{
			"workers_running": h.app.WorkersRunning(),
			"pool_size":       h.app.Config.Worker.PoolSize,
			"cached_indexes":  h.app.Indexes.CachedCount(),
		},
	})
}

// dirExists treats a directory that was never created as healthy; it
// appears with the first upload or index build.
func dirExists(dir string) error {
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &os.PathError{Op: "stat", Path: dir, Err: os.ErrInvalid}
	}
	return nil
}
