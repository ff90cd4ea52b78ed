package handlers

import (
	"github.com/gin-gonic/gin"
)

// HealthCheck 健康检查处理器（最小化响应，无需认证）
func HealthCheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "healthy",
		})
	}
}
