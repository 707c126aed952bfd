package models

import "time"

// 活动事件类型
const (
	ActivityLinkCreate = "link_create"
	ActivityLinkUpdate = "link_update"
	ActivityLinkDelete = "link_delete"
	ActivityFileUpload = "file_upload"
	ActivityFileDelete = "file_delete"
)

// UserActivity 对应 user_activities 表
// 由 MQ 消费者异步落库，不在请求主流程中写入
type UserActivity struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    uint64    `gorm:"not null;index" json:"user_id"`
	Action    string    `gorm:"type:varchar(32);not null" json:"action"`
	Detail    string    `gorm:"type:varchar(255);not null;default:''" json:"detail"`
	SourceIP  string    `gorm:"type:varchar(64);not null;default:''" json:"source_ip"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 指定 GORM 使用的表名
func (UserActivity) TableName() string {
	return "user_activities"
}
