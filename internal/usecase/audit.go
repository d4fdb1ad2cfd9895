package usecase

import "encoding/json"

// 監査ログ用のJSON文字列
func auditJSON(v map[string]interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
