package models

import (
	"time"

	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
)

// 过期策略，三选一的封闭集合
const (
	ExpirationNone     = "none"     // 永不过期
	ExpirationDuration = "duration" // 自创建时刻起的时长（秒）
	ExpirationDate     = "date"     // 绝对时间点（毫秒时间戳）
)

// 访问验证方式
const (
	VerificationNone     = "none"
	VerificationPassword = "password" // 访问口令，存储为 bcrypt 哈希
	VerificationUsername = "username" // 用户名匹配，仅在 selected 范围下合法
)

// 访问范围
const (
	ScopePublic   = "public"   // 任何人可访问
	ScopeUsers    = "users"    // 任意已登录用户
	ScopeSelected = "selected" // 仅 AllowedUsers 列表中的用户
)

// 访问能力，按端点精确匹配，不存在隐式升级
const (
	AccessTypeInfo     = "info"     // 仅查看文件元信息
	AccessTypeView     = "view"     // 允许在线预览
	AccessTypeDownload = "download" // 允许下载
)

// Link 对应 links 表，代表一条指向单个文件的分享链接
type Link struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement" json:"id"`
	LinkID string `gorm:"type:varchar(32);uniqueIndex;not null" json:"link_id"` // 对外公开的随机令牌（128位随机数的hex编码）

	// 自定义名称在同一创建者下唯一
	CustomName  string `gorm:"type:varchar(128);not null;uniqueIndex:uk_owner_name" json:"custom_name"`
	CreatedBy   uint64 `gorm:"not null;index;uniqueIndex:uk_owner_name" json:"created_by"`
	FileID      uint64 `gorm:"not null;index" json:"file_id"`
	Description string `gorm:"type:varchar(512);not null;default:''" json:"description"`

	ExpirationType    string `gorm:"type:varchar(16);not null;default:'none'" json:"expiration_type"`
	ExpirationValue   *int64 `gorm:"default:null" json:"expiration_value,omitempty"` // duration: 秒数；date: 毫秒时间戳
	AccessLimit       *uint32 `gorm:"type:int unsigned;default:null" json:"access_limit,omitempty"`
	VerificationType  string `gorm:"type:varchar(16);not null;default:'none'" json:"verification_type"`
	VerificationValue string `gorm:"type:varchar(255);not null;default:''" json:"-"` // password 模式下为口令的 bcrypt 哈希
	AccessScope       string `gorm:"type:varchar(16);not null;default:'public'" json:"access_scope"`
	AccessType        string `gorm:"type:varchar(16);not null;default:'info'" json:"access_type"`

	IsActive    bool   `gorm:"not null;default:true" json:"is_active"`
	Favorite    bool   `gorm:"not null;default:false" json:"favorite"`
	AccessCount uint32 `gorm:"type:int unsigned;not null;default:0" json:"access_count"`
	Version     uint64 `gorm:"not null;default:0" json:"-"` // 乐观并发版本号，所有变更入口统一走版本校验

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// 定义 GORM 关联，方便预加载
	File         *File  `gorm:"foreignKey:FileID" json:"file,omitempty"`
	AllowedUsers []User `gorm:"many2many:link_allowed_users" json:"allowed_users,omitempty"`
}

// TableName 指定 GORM 使用的表名
func (Link) TableName() string {
	return "links"
}

// ValidateConfig 校验链接配置的跨字段约束
// 创建和更新都必须先通过此校验，保证不一致的配置不可能被持久化
func (l *Link) ValidateConfig() error {
	switch l.ExpirationType {
	case ExpirationNone:
	case ExpirationDuration:
		if l.ExpirationValue == nil || *l.ExpirationValue <= 0 {
			return xerr.ErrLinkConfigInvalid
		}
	case ExpirationDate:
		if l.ExpirationValue == nil || *l.ExpirationValue <= 0 {
			return xerr.ErrLinkConfigInvalid
		}
		// 绝对过期时间必须在未来，已过去的时间点意味着保存即失效
		if !time.UnixMilli(*l.ExpirationValue).After(time.Now()) {
			return xerr.ErrLinkConfigInvalid
		}
	default:
		return xerr.ErrLinkConfigInvalid
	}

	if l.AccessLimit != nil && *l.AccessLimit == 0 {
		return xerr.ErrLinkConfigInvalid
	}

	switch l.AccessScope {
	case ScopePublic, ScopeUsers:
	case ScopeSelected:
		// selected 范围必须给出非空的允许用户集合
		if len(l.AllowedUsers) == 0 {
			return xerr.ErrLinkConfigInvalid
		}
	default:
		return xerr.ErrLinkConfigInvalid
	}

	switch l.VerificationType {
	case VerificationNone, VerificationPassword:
	case VerificationUsername:
		// 用户名验证隐含依赖 selected 范围，显式拒绝不一致组合
		if l.AccessScope != ScopeSelected {
			return xerr.ErrLinkConfigInvalid
		}
	default:
		return xerr.ErrLinkConfigInvalid
	}

	switch l.AccessType {
	case AccessTypeInfo, AccessTypeView, AccessTypeDownload:
	default:
		return xerr.ErrLinkConfigInvalid
	}

	return nil
}

// IsExpired 判断链接在 now 时刻是否已过期
func (l *Link) IsExpired(now time.Time) bool {
	switch l.ExpirationType {
	case ExpirationDuration:
		if l.ExpirationValue == nil {
			return false
		}
		deadline := l.CreatedAt.Add(time.Duration(*l.ExpirationValue) * time.Second)
		return !now.Before(deadline)
	case ExpirationDate:
		if l.ExpirationValue == nil {
			return false
		}
		return !now.Before(time.UnixMilli(*l.ExpirationValue))
	default:
		return false
	}
}

// IsAccessLimitReached 判断访问次数是否已达上限
func (l *Link) IsAccessLimitReached() bool {
	return l.AccessLimit != nil && l.AccessCount >= *l.AccessLimit
}
