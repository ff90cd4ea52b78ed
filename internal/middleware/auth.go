package middleware

import (
	"crypto/subtle"
	"log"
	"strings"
	"time"

	"github.com/finoramarket/ai-gateway/internal/config"
	"github.com/gin-gonic/gin"
)

// secureCompare performs a constant-time comparison of two strings
// to prevent timing attacks
func secureCompare(a, b string) bool {
	// Both strings must be non-empty and equal length for constant-time comparison
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// AccessKeyMiddleware 访问控制中间件
//
// /health 公开；/api 管理端点必须携带访问密钥；/v1 网关端点仅在
// 配置了 GATEWAY_ACCESS_KEY 时才要求密钥。
func AccessKeyMiddleware(envCfg *config.EnvConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path

		// 公开端点直接放行
		if path == envCfg.HealthCheckPath {
			c.Next()
			return
		}

		// 管理端点需要访问密钥
		if strings.HasPrefix(path, "/api") {
			if !validateAccessKey(c, envCfg) {
				return
			}
			c.Next()
			return
		}

		// 网关端点：未设置密钥时放行（本地部署场景）
		if strings.HasPrefix(path, "/v1/") {
			if envCfg.GatewayAccessKey != "" {
				if !validateAccessKey(c, envCfg) {
					return
				}
			}
			c.Next()
			return
		}

		c.Next()
	}
}

// validateAccessKey validates the access key and aborts with 401 on failure.
func validateAccessKey(c *gin.Context, envCfg *config.EnvConfig) bool {
	providedKey := getAccessKey(c)
	clientIP := c.ClientIP()
	timestamp := time.Now().Format(time.RFC3339)

	if secureCompare(providedKey, envCfg.GatewayAccessKey) {
		return true
	}

	reason := "密钥无效"
	if providedKey == "" {
		reason = "密钥缺失"
	}
	log.Printf("🔒 [认证失败] IP: %s | Path: %s | Time: %s | Reason: %s",
		clientIP, c.Request.URL.Path, timestamp, reason)

	c.JSON(401, gin.H{
		"error":   "Unauthorized",
		"message": "Invalid or missing access key",
	})
	c.Abort()
	return false
}

// getAccessKey 获取访问密钥
func getAccessKey(c *gin.Context) string {
	// 从 header 获取
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}

	if auth := c.GetHeader("Authorization"); auth != "" {
		// 移除 Bearer 前缀
		return strings.TrimPrefix(auth, "Bearer ")
	}

	return ""
}
