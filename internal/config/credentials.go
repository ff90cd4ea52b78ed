package config

import (
	"fmt"
	"os"
	"strings"
)

// 占位密钥：模板 .env 里的默认值，出现时直接丢弃
const placeholderKey = "your_gemini_api_key_here"

// Gemini API key 固定前缀，用作基本格式校验
const geminiKeyPrefix = "AIza"

// 从环境变量读取的编号密钥上限 (GEMINI_API_KEY_1 .. GEMINI_API_KEY_10)
const maxNumberedKeys = 10

// LoadCredentialsFromEnv 从环境变量收集上游凭据。
// 支持两种形式：GEMINI_API_KEYS（逗号分隔）和 GEMINI_API_KEY_1..10。
// 空白、占位符、格式不符的条目会被丢弃，顺序保持不变。
func LoadCredentialsFromEnv() []string {
	var raw []string

	if list := os.Getenv("GEMINI_API_KEYS"); list != "" {
		raw = append(raw, strings.Split(list, ",")...)
	}

	for i := 1; i <= maxNumberedKeys; i++ {
		raw = append(raw, os.Getenv(fmt.Sprintf("GEMINI_API_KEY_%d", i)))
	}

	return FilterCredentials(raw)
}

// FilterCredentials 过滤无效凭据，保序去重。
func FilterCredentials(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	keys := make([]string, 0, len(raw))
	for _, key := range raw {
		key = strings.TrimSpace(key)
		if key == "" || key == placeholderKey {
			continue
		}
		if !strings.HasPrefix(key, geminiKeyPrefix) {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
