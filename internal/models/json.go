package models

import (
	"database/sql/driver"
	"encoding/json"
)

// JSON 通用 JSON 字段（网关回调原文等）
type JSON map[string]interface{}

// Value 实现 driver.Valuer 接口
func (j JSON) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan 实现 sql.Scanner 接口
func (j *JSON) Scan(value interface{}) error {
	if value == nil {
		*j = make(JSON)
		return nil
	}
	switch typed := value.(type) {
	case []byte:
		return json.Unmarshal(typed, j)
	case string:
		return json.Unmarshal([]byte(typed), j)
	default:
		return nil
	}
}
