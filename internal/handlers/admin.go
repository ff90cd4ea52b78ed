package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/finoramarket/ai-gateway/internal/config"
	"github.com/finoramarket/ai-gateway/internal/gateway"
	"github.com/finoramarket/ai-gateway/internal/quota"
	"github.com/finoramarket/ai-gateway/internal/usagelog"
	"github.com/gin-gonic/gin"
)

// SetUserTier 用户等级调整处理器
// PUT /api/users/:userId/tier
func SetUserTier(gw *gateway.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("userId")

		var req struct {
			Tier string `json:"tier"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_input", "message": "Noto'g'ri so'rov formati"})
			return
		}

		tier := quota.Tier(req.Tier)
		if tier != quota.TierStandard && tier != quota.TierElevated {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_input",
				"message": "tier must be 'standard' or 'elevated'",
			})
			return
		}

		gw.SetTier(userID, tier)
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"quota":   gw.QuotaStatus(userID),
		})
	}
}

// ReloadConfig 配置重载处理器
// POST /api/config/reload
func ReloadConfig(cfgManager *config.ConfigManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cfgManager.Reload(); err != nil {
			c.JSON(500, gin.H{
				"status":    "error",
				"message":   "Config reload failed",
				"error":     err.Error(),
				"timestamp": time.Now().Format(time.RFC3339),
			})
			return
		}

		cfg := cfgManager.GetConfig()
		c.JSON(200, gin.H{
			"status":    "success",
			"message":   "Config reloaded",
			"timestamp": time.Now().Format(time.RFC3339),
			"config": gin.H{
				"credentialCount": len(cfg.Credentials),
				"keyDailyLimit":   cfg.KeyDailyLimit,
			},
		})
	}
}

// GetLogs 调用日志查询处理器
// GET /api/logs?limit=100
func GetLogs(usage *usagelog.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 100
		if s := c.Query("limit"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
				limit = n
			}
		}

		calls, err := usage.GetRecent(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"logs":  calls,
			"count": len(calls),
		})
	}
}

// GetLogStats 按日聚合统计处理器
// GET /api/logs/stats?days=7
func GetLogStats(usage *usagelog.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		days := 7
		if s := c.Query("days"); s != "" {
			if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 90 {
				days = n
			}
		}

		stats, err := usage.GetDailyStats(days)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"stats": stats})
	}
}

// TestUpstream 上游连通性探测处理器
// POST /api/ai/test
func TestUpstream(gw *gateway.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := gw.Probe(c.Request.Context()); err != nil {
			writeGatewayError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}
