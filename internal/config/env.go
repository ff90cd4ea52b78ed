package config

import (
	"os"
	"strconv"
)

// EnvConfig 环境变量配置
type EnvConfig struct {
	Port             int
	Env              string
	GatewayAccessKey string
	RequestTimeout   int // 上游请求超时 (毫秒)，作用于 http.Client
	EnableCORS       bool
	CORSOrigin       string
	HealthCheckPath  string

	// 上游模型端点
	GeminiBaseURL string
	GeminiModel   string

	// 数据库
	DatabasePath string

	// 每个凭据的每日调用上限
	KeyDailyLimit int

	// 用户级每日配额（按等级、按操作类型）
	StandardQuestionLimit int
	StandardAnalysisLimit int
	ElevatedQuestionLimit int
	ElevatedAnalysisLimit int

	// 日志文件相关配置
	LogDir        string
	LogFile       string
	LogMaxSize    int  // 单个日志文件最大大小 (MB)
	LogMaxBackups int  // 保留的旧日志文件最大数量
	LogMaxAge     int  // 保留的旧日志文件最大天数
	LogCompress   bool // 是否压缩旧日志文件
	LogToConsole  bool // 是否同时输出到控制台
}

// NewEnvConfig 创建环境配置
func NewEnvConfig() *EnvConfig {
	// 支持 ENV 和 NODE_ENV（向后兼容）
	env := getEnv("ENV", "")
	if env == "" {
		env = getEnv("NODE_ENV", "development")
	}

	return &EnvConfig{
		Port:             getEnvAsInt("PORT", 3100),
		Env:              env,
		GatewayAccessKey: getEnv("GATEWAY_ACCESS_KEY", "your-gateway-access-key"),
		RequestTimeout:   getEnvAsInt("REQUEST_TIMEOUT", 60000),
		EnableCORS:       getEnv("ENABLE_CORS", "true") != "false",
		CORSOrigin:       getEnv("CORS_ORIGIN", "*"),
		HealthCheckPath:  getEnv("HEALTH_CHECK_PATH", "/health"),

		GeminiBaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiModel:   getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		DatabasePath: getEnv("DATABASE_PATH", ".config/ai-gateway.db"),

		KeyDailyLimit: getEnvAsInt("KEY_DAILY_LIMIT", 50),

		StandardQuestionLimit: getEnvAsInt("STANDARD_QUESTION_LIMIT", 10),
		StandardAnalysisLimit: getEnvAsInt("STANDARD_ANALYSIS_LIMIT", 10),
		ElevatedQuestionLimit: getEnvAsInt("ELEVATED_QUESTION_LIMIT", 50),
		ElevatedAnalysisLimit: getEnvAsInt("ELEVATED_ANALYSIS_LIMIT", 50),

		// 日志文件配置
		LogDir:        getEnv("LOG_DIR", "logs"),
		LogFile:       getEnv("LOG_FILE", "gateway.log"),
		LogMaxSize:    getEnvAsInt("LOG_MAX_SIZE", 100),   // 默认 100MB
		LogMaxBackups: getEnvAsInt("LOG_MAX_BACKUPS", 10), // 默认保留 10 个
		LogMaxAge:     getEnvAsInt("LOG_MAX_AGE", 30),     // 默认保留 30 天
		LogCompress:   getEnv("LOG_COMPRESS", "true") != "false",
		LogToConsole:  getEnv("LOG_TO_CONSOLE", "true") != "false",
	}
}

// IsDevelopment 是否为开发环境
func (c *EnvConfig) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction 是否为生产环境
func (c *EnvConfig) IsProduction() bool {
	return c.Env == "production"
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 获取环境变量并转换为整数
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
