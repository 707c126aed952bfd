package models

import (
	"time"

	"gorm.io/gorm"
)

// File 对应 files 表
type File struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID             string         `gorm:"type:varchar(36);unique;not null" json:"uuid"` // 文件在对象存储中的唯一标识
	UserID           uint64         `gorm:"not null;index" json:"user_id"`
	OriginalFilename string         `gorm:"type:varchar(255);not null" json:"original_filename"`
	CustomFilename   string         `gorm:"type:varchar(255);not null" json:"custom_filename"`
	MimeType         string         `gorm:"type:varchar(128);not null;default:''" json:"mime_type"`
	Size             uint64         `gorm:"type:bigint unsigned;not null;default:0" json:"size"`
	OssBucket        string         `gorm:"type:varchar(64);not null;default:''" json:"-"`
	OssKey           string         `gorm:"type:varchar(255);not null;default:''" json:"-"`
	DownloadCount    uint64         `gorm:"type:bigint unsigned;not null;default:0" json:"download_count"`
	IsActive         bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt        time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`

	// 定义 GORM 关联，方便预加载
	User *User `gorm:"foreignKey:UserID" json:"-"`
}

// TableName 指定 GORM 使用的表名
func (File) TableName() string {
	return "files"
}
