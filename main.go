package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/finoramarket/ai-gateway/internal/config"
	"github.com/finoramarket/ai-gateway/internal/database"
	"github.com/finoramarket/ai-gateway/internal/gateway"
	"github.com/finoramarket/ai-gateway/internal/gemini"
	"github.com/finoramarket/ai-gateway/internal/handlers"
	"github.com/finoramarket/ai-gateway/internal/logger"
	"github.com/finoramarket/ai-gateway/internal/middleware"
	"github.com/finoramarket/ai-gateway/internal/quota"
	"github.com/finoramarket/ai-gateway/internal/usagelog"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// 编译时通过 -ldflags 注入
var (
	Version   = "v0.0.0-dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	// 加载环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("没有找到 .env 文件，使用环境变量或默认值")
	}

	envCfg := config.NewEnvConfig()

	// 🔒 安全检查：禁止使用默认访问密钥（除非显式允许）
	if envCfg.GatewayAccessKey == "your-gateway-access-key" {
		if os.Getenv("ALLOW_INSECURE_DEFAULT_KEY") == "true" && envCfg.IsDevelopment() {
			log.Println("⚠️ 警告: 使用默认 GATEWAY_ACCESS_KEY，仅限本地开发使用")
		} else {
			log.Fatal("🚨 安全错误: 禁止使用默认 GATEWAY_ACCESS_KEY。请在 .env 文件中设置强密钥，或在开发环境设置 ALLOW_INSECURE_DEFAULT_KEY=true")
		}
	}

	// 初始化日志系统（必须在其他初始化之前）
	logCfg := &logger.Config{
		LogDir:     envCfg.LogDir,
		LogFile:    envCfg.LogFile,
		MaxSize:    envCfg.LogMaxSize,
		MaxBackups: envCfg.LogMaxBackups,
		MaxAge:     envCfg.LogMaxAge,
		Compress:   envCfg.LogCompress,
		Console:    envCfg.LogToConsole,
	}
	if err := logger.Setup(logCfg); err != nil {
		log.Fatalf("初始化日志系统失败: %v", err)
	}

	// 初始化配置管理器（凭据与限额热更新）
	cfgManager, err := config.NewConfigManager(".config/gateway.json")
	if err != nil {
		log.Fatalf("初始化配置管理器失败: %v", err)
	}
	defer cfgManager.Close()

	// 打开数据库（配额持久化 + 调用日志共用）
	db, err := database.Open(envCfg.DatabasePath)
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	defer db.Close()

	// 初始化配额账本
	ledger := quota.NewLedger(resolveLimits(envCfg, cfgManager.GetConfig()))
	quotaStorage, err := quota.NewDBStorage(db)
	if err != nil {
		log.Printf("⚠️ 配额持久化初始化失败: %v (配额仅保存在内存中)", err)
	} else {
		ledger.SetPersister(quotaStorage)
	}

	// 初始化调用日志管理器
	usageManager, err := usagelog.NewManager(db)
	if err != nil {
		log.Printf("⚠️ 调用日志管理器初始化失败: %v (日志功能将被禁用)", err)
		usageManager = nil
	} else {
		log.Printf("✅ 调用日志管理器已初始化")

		// 每天清理一次 90 天前的调用记录
		go func() {
			ticker := time.NewTicker(24 * time.Hour)
			defer ticker.Stop()
			for range ticker.C {
				if removed, err := usageManager.Cleanup(90 * 24 * time.Hour); err != nil {
					log.Printf("⚠️ 清理调用日志失败: %v", err)
				} else if removed > 0 {
					log.Printf("✅ 清理了 %d 条过期调用记录", removed)
				}
			}
		}()
	}

	// 上游客户端
	client := gemini.NewClient(envCfg.GeminiBaseURL, envCfg.GeminiModel,
		time.Duration(envCfg.RequestTimeout)*time.Millisecond)

	// 组装网关：凭据优先取配置文件，否则取环境变量
	gw := gateway.New(
		resolveCredentials(cfgManager.GetConfig()),
		resolveKeyLimit(envCfg, cfgManager.GetConfig()),
		ledger, client, usageManager,
	)

	// 配置热更新：重建凭据池、刷新配额限额
	cfgManager.SetOnChangeCallback(func(cfg config.GatewayConfig) {
		gw.Reconfigure(resolveCredentials(cfg), resolveKeyLimit(envCfg, cfg))
		ledger.SetLimits(resolveLimits(envCfg, cfg))
	})

	// 设置 Gin 模式
	if envCfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// 创建路由器（不使用 gin.Default() 以避免默认的 Logger 中间件产生大量日志）
	r := gin.New()
	r.Use(gin.Recovery())

	if envCfg.EnableCORS {
		r.Use(middleware.CORSMiddleware(envCfg))
	}
	r.Use(middleware.AccessKeyMiddleware(envCfg))

	// 🔒 健康检查端点（最小化响应，无需认证）
	r.GET(envCfg.HealthCheckPath, handlers.HealthCheck())

	// 网关端点
	aiHandler := handlers.NewAIHandler(gw)
	v1 := r.Group("/v1/ai")
	{
		v1.POST("/chat", aiHandler.Chat)
		v1.POST("/analyze", aiHandler.Analyze)
		v1.POST("/analyze/batch", aiHandler.AnalyzeBatch)
		v1.GET("/status", aiHandler.Status)
		v1.GET("/quota/:userId", aiHandler.GetQuota)
	}

	// 管理端点
	apiGroup := r.Group("/api")
	{
		apiGroup.PUT("/users/:userId/tier", handlers.SetUserTier(gw))
		apiGroup.POST("/config/reload", handlers.ReloadConfig(cfgManager))
		apiGroup.POST("/ai/test", handlers.TestUpstream(gw))
		if usageManager != nil {
			apiGroup.GET("/logs", handlers.GetLogs(usageManager))
			apiGroup.GET("/logs/stats", handlers.GetLogStats(usageManager))
		}
	}

	// 启动服务器
	addr := fmt.Sprintf(":%d", envCfg.Port)
	fmt.Printf("\n🚀 AI Gateway 服务器已启动\n")
	fmt.Printf("📌 版本: %s\n", Version)
	if BuildTime != "unknown" {
		fmt.Printf("🕐 构建时间: %s\n", BuildTime)
	}
	if GitCommit != "unknown" {
		fmt.Printf("🔖 Git提交: %s\n", GitCommit)
	}
	fmt.Printf("📍 API 地址: http://localhost:%d/v1/ai\n", envCfg.Port)
	fmt.Printf("📋 Chat: POST /v1/ai/chat\n")
	fmt.Printf("📋 Analyze: POST /v1/ai/analyze\n")
	fmt.Printf("💚 健康检查: GET %s\n", envCfg.HealthCheckPath)
	fmt.Printf("📊 环境: %s | 模型: %s\n", envCfg.Env, envCfg.GeminiModel)
	fmt.Printf("\n")

	if err := r.Run(addr); err != nil {
		log.Fatalf("服务器启动失败: %v", err)
	}
}

// resolveCredentials 凭据解析：配置文件优先，其次环境变量
func resolveCredentials(cfg config.GatewayConfig) []string {
	if len(cfg.Credentials) > 0 {
		return config.FilterCredentials(cfg.Credentials)
	}
	return config.LoadCredentialsFromEnv()
}

// resolveKeyLimit 凭据每日上限：配置文件非零值覆盖环境配置
func resolveKeyLimit(envCfg *config.EnvConfig, cfg config.GatewayConfig) int {
	if cfg.KeyDailyLimit > 0 {
		return cfg.KeyDailyLimit
	}
	return envCfg.KeyDailyLimit
}

// resolveLimits 用户配额限额：配置文件非零值覆盖环境配置
func resolveLimits(envCfg *config.EnvConfig, cfg config.GatewayConfig) quota.Limits {
	limits := quota.Limits{
		StandardQuestion: envCfg.StandardQuestionLimit,
		StandardAnalysis: envCfg.StandardAnalysisLimit,
		ElevatedQuestion: envCfg.ElevatedQuestionLimit,
		ElevatedAnalysis: envCfg.ElevatedAnalysisLimit,
	}
	if cfg.StandardQuestionLimit > 0 {
		limits.StandardQuestion = cfg.StandardQuestionLimit
	}
	if cfg.StandardAnalysisLimit > 0 {
		limits.StandardAnalysis = cfg.StandardAnalysisLimit
	}
	if cfg.ElevatedQuestionLimit > 0 {
		limits.ElevatedQuestion = cfg.ElevatedQuestionLimit
	}
	if cfg.ElevatedAnalysisLimit > 0 {
		limits.ElevatedAnalysis = cfg.ElevatedAnalysisLimit
	}
	return limits
}
