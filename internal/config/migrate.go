package config

import "fmt"

// CurrentVersion 当前配置格式版本
const CurrentVersion = 1

// Migrate 将旧版配置映射逐版本升级到当前格式。
// 纯函数：不读文件、不改入参，返回升级后的新映射。
func Migrate(settings map[string]interface{}) (map[string]interface{}, error) {
	out := deepCopyMap(settings)

	version := 0
	if raw, ok := out["config_version"]; ok {
		switch v := raw.(type) {
		case int:
			version = v
		case int64:
			version = int(v)
		case float64:
			version = int(v)
		default:
			return nil, fmt.Errorf("invalid config_version type %T", raw)
		}
	}

	if version > CurrentVersion {
		return nil, fmt.Errorf("config_version %d is newer than supported version %d", version, CurrentVersion)
	}

	if version < 1 {
		migrateV0toV1(out)
	}

	out["config_version"] = CurrentVersion
	return out, nil
}

// migrateV0toV1 升级无版本号的旧格式：
//   - prefer_local_providers  -> prefer_local
//   - retry_attempts          -> max_attempts
//   - providers.*.endpoint    -> base_url
//   - providers.*.rate_limit  -> request_limit（窗口默认60秒）
func migrateV0toV1(settings map[string]interface{}) {
	renameKey(settings, "prefer_local_providers", "prefer_local")
	renameKey(settings, "retry_attempts", "max_attempts")

	providersRaw, ok := settings["providers"].(map[string]interface{})
	if !ok {
		return
	}

	for _, raw := range providersRaw {
		pc, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		renameKey(pc, "endpoint", "base_url")
		if renameKey(pc, "rate_limit", "request_limit") {
			if _, exists := pc["throttle_window"]; !exists {
				pc["throttle_window"] = 60
			}
		}
	}
}

// renameKey 将旧键改名为新键，新键已存在时只删除旧键
func renameKey(m map[string]interface{}, from, to string) bool {
	value, ok := m[from]
	if !ok {
		return false
	}
	delete(m, from)
	if _, exists := m[to]; !exists {
		m[to] = value
	}
	return true
}

// deepCopyMap 递归复制嵌套的字符串键映射
func deepCopyMap(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = deepCopyMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
