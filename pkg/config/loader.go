package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load merges <dir>/base.yaml with <dir>/<env>.yaml, expands ${VAR}
// placeholders and decodes the result into a T.
func Load[T any](env, dir string) (*T, error) {
	merged, err := LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := Decode(merged, out); err != nil {
		return nil, err
	}
	return out, nil
}

// LoadConfig 加载配置，支持多环境
// env: local, production 等；configDir 默认为 "config"
// 占位符 ${VAR} 先查 secrets.env，再查进程环境变量；都没有时保留原样
func LoadConfig(env string, configDir string) (map[string]any, error) {
	if configDir == "" {
		configDir = "config"
	}

	merged, err := loadYAMLFile(filepath.Join(configDir, "base.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to load base.yaml: %w", err)
	}

	if env != "" && env != "base" {
		envFile := filepath.Join(configDir, env+".yaml")
		if _, err := os.Stat(envFile); err == nil {
			overlay, err := loadYAMLFile(envFile)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s.yaml: %w", env, err)
			}
			merged = mergeMaps(merged, overlay)
		}
	}

	secrets := map[string]string{}
	secretsFile := filepath.Join(configDir, "secrets.env")
	if _, err := os.Stat(secretsFile); err == nil {
		secrets, err = godotenv.Read(secretsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load secrets.env: %w", err)
		}
	}

	return expandPlaceholders(merged, lookup(secrets)), nil
}

// Decode re-encodes the merged map and decodes it into a typed config struct.
func Decode(merged map[string]any, out any) error {
	data, err := yaml.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode merged config: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}
	return nil
}

func loadYAMLFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// mergeMaps 返回新 map，src 覆盖 dst，嵌套 map 递归合并
func mergeMaps(dst, src map[string]any) map[string]any {
	result := make(map[string]any, len(dst))
	for k, v := range dst {
		result[k] = v
	}
	for k, v := range src {
		dstMap, dstOK := result[k].(map[string]any)
		srcMap, srcOK := v.(map[string]any)
		if dstOK && srcOK {
			result[k] = mergeMaps(dstMap, srcMap)
			continue
		}
		result[k] = v
	}
	return result
}

func lookup(secrets map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := secrets[key]; ok {
			return v, true
		}
		return os.LookupEnv(key)
	}
}

func expandPlaceholders(node map[string]any, get func(string) (string, bool)) map[string]any {
	result := make(map[string]any, len(node))
	for k, v := range node {
		switch val := v.(type) {
		case string:
			result[k] = expandString(val, get)
		case map[string]any:
			result[k] = expandPlaceholders(val, get)
		default:
			result[k] = v
		}
	}
	return result
}

// expandString only touches the ${VAR} form; a bare $ is left alone so
// passwords and DSNs survive.
func expandString(s string, get func(string) (string, bool)) string {
	var b strings.Builder
	for {
		start := strings.Index(s, "${")
		if start < 0 {
			b.WriteString(s)
			return b.String()
		}
		end := strings.IndexByte(s[start:], '}')
		if end < 0 {
			b.WriteString(s)
			return b.String()
		}
		end += start

		b.WriteString(s[:start])
		key := s[start+2 : end]
		if v, ok := get(key); ok {
			b.WriteString(v)
		} else {
			b.WriteString(s[start : end+1])
		}
		s = s[end+1:]
	}
}

// GetEnv 获取环境变量，如果未设置则返回默认值
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// GetConfigEnv 获取配置环境（从环境变量 CONFIG_ENV，默认为 local）
func GetConfigEnv() string {
	return GetEnv("CONFIG_ENV", "local")
}
