package models

import "time"

// LinkAccessLog 对应 link_access_logs 表
// 仅追加：每次成功消费写入一条，与 Link.AccessCount 在同一事务内提交
type LinkAccessLog struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	LinkID     uint64    `gorm:"not null;index" json:"link_id"`
	UserID     *uint64   `gorm:"default:null" json:"user_id,omitempty"` // null 表示匿名访问
	SourceIP   string    `gorm:"type:varchar(64);not null;default:''" json:"source_ip"`
	AccessedAt time.Time `gorm:"autoCreateTime" json:"accessed_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (LinkAccessLog) TableName() string {
	return "link_access_logs"
}
