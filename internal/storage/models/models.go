package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// AnalysisRequest 每次分析请求的持久化记录，一个 request_id 对应一行
type AnalysisRequest struct {
	RequestID   string         `gorm:"type:char(36);primaryKey"`
	UserID      string         `gorm:"type:varchar(50);not null;index:idx_ar_user_id"`
	Query       *string        `gorm:"type:text"`
	Status      string         `gorm:"type:varchar(20);not null;index:idx_ar_status"`
	Resultado   datatypes.JSON `gorm:"type:json"` // 结果列表，或整体失败时的 "falha_total"
	FailedFiles datatypes.JSON `gorm:"type:json"`
	Timestamp   time.Time      `gorm:"type:datetime(6);not null;index:idx_ar_timestamp"`
	CreatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt   time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (AnalysisRequest) TableName() string {
	return "analysis_requests"
}

// StringToJSON 将字符串编码为 JSON 字符串值
func StringToJSON(s string) datatypes.JSON {
	b, _ := json.Marshal(s)
	return datatypes.JSON(b)
}
