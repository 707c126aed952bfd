package link

import (
	"context"
	"strings"
	"time"

	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/logger"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"go.uber.org/zap"
)

// AccessKind 表示一次访问请求的消费方式，与三个公开端点一一对应
type AccessKind string

const (
	AccessInfo     AccessKind = "info"     // 查看链接与文件元信息
	AccessView     AccessKind = "view"     // 在线预览文件内容
	AccessDownload AccessKind = "download" // 下载文件内容
)

// Principal 是可选的已认证访问者身份
type Principal struct {
	ID       uint64
	Username string
}

// Credentials 是访问者随请求出示的凭证（query 参数）
type Credentials struct {
	Password string
	Username string
}

// Grant 是评估通过后的授权结果，只携带本链接对应文件的元信息
type Grant struct {
	Link *models.Link
	File *models.File
}

// AccessEvaluator 对一次链接访问请求做出裁决，并在通过时提交消费
type AccessEvaluator interface {
	Evaluate(ctx context.Context, linkID string, principal *Principal, creds Credentials, kind AccessKind, sourceIP string) (*Grant, error)
}

type accessEvaluator struct {
	linkRepo repositories.LinkRepository
}

var _ AccessEvaluator = (*accessEvaluator)(nil)

// NewAccessEvaluator 创建一个新的 AccessEvaluator 实例
func NewAccessEvaluator(linkRepo repositories.LinkRepository) AccessEvaluator {
	return &accessEvaluator{linkRepo: linkRepo}
}

// Evaluate 按固定顺序执行检查序列，任一检查失败立即短路返回：
//
//	存在且启用 → 未过期 → 次数未达上限 → 能力匹配 → 范围匹配 → 凭证通过
//
// 顺序是对外契约的一部分：存在性与启用检查先于一切能力/凭证检查，
// 避免向探测者泄露链接配置。失败的评估不产生任何状态变更；
// 只有全部通过后，计数递增与日志追加在仓储层作为一个原子单元提交。
func (e *accessEvaluator) Evaluate(ctx context.Context, linkID string, principal *Principal, creds Credentials, kind AccessKind, sourceIP string) (*Grant, error) {
	// 1. 记录必须存在且处于启用状态
	// 不存在、已删除、已停用统一归并为 ErrLinkNotFound
	rec, err := e.linkRepo.FindByLinkID(ctx, linkID)
	if err != nil {
		logger.Error("Evaluate: 查询链接记录失败", zap.String("linkID", linkID), zap.Error(err))
		return nil, xerr.ErrDatabaseError
	}
	if rec == nil || !rec.IsActive {
		return nil, xerr.ErrLinkNotFound
	}
	// 目标文件被删除或停用时，链接随之失效
	if rec.File == nil || !rec.File.IsActive {
		return nil, xerr.ErrLinkNotFound
	}

	// 2. 过期检查
	if rec.IsExpired(time.Now()) {
		return nil, xerr.ErrLinkExpired
	}

	// 3. 次数上限检查（快照判断；真正的防超发由仓储层的条件提交保证）
	if rec.IsAccessLimitReached() {
		return nil, xerr.ErrLinkLimitReached
	}

	// 4. 能力检查，按端点精确匹配：view 链接不隐含 download，反之亦然
	if err := checkCapability(rec.AccessType, kind); err != nil {
		return nil, err
	}

	// 5. 范围检查
	if err := checkScope(rec, principal); err != nil {
		return nil, err
	}

	// 6. 凭证检查
	if err := checkVerification(rec, creds); err != nil {
		return nil, err
	}

	// 7. 提交消费：日志追加与计数递增原子生效
	entry := &models.LinkAccessLog{SourceIP: sourceIP}
	if principal != nil {
		uid := principal.ID
		entry.UserID = &uid
	}
	if err := e.linkRepo.AppendAccessAndIncrement(ctx, rec.ID, entry); err != nil {
		// 记录在评估与提交之间被删除或停用时归并为 NotFound，
		// 被并发请求抢占最后名额时返回 LimitReached
		return nil, err
	}

	logger.Info("Evaluate: 链接访问成功",
		zap.String("linkID", linkID),
		zap.String("kind", string(kind)))
	return &Grant{Link: rec, File: rec.File}, nil
}

func checkCapability(accessType string, kind AccessKind) error {
	switch kind {
	case AccessInfo:
		// 走到这里说明链接有效，元信息总是可见
		return nil
	case AccessView:
		if accessType == models.AccessTypeView || accessType == models.AccessTypeDownload {
			return nil
		}
	case AccessDownload:
		if accessType == models.AccessTypeDownload {
			return nil
		}
	}
	return xerr.ErrLinkCapabilityDenied
}

func checkScope(rec *models.Link, principal *Principal) error {
	switch rec.AccessScope {
	case models.ScopePublic:
		return nil
	case models.ScopeUsers:
		if principal == nil {
			return xerr.ErrLinkLoginRequired
		}
		return nil
	case models.ScopeSelected:
		if principal == nil {
			return xerr.ErrLinkLoginRequired
		}
		for _, u := range rec.AllowedUsers {
			if u.ID == principal.ID {
				return nil
			}
		}
		return xerr.ErrLinkAccessDenied
	default:
		// 写入时已校验，不应出现未知范围
		return xerr.ErrLinkAccessDenied
	}
}

func checkVerification(rec *models.Link, creds Credentials) error {
	switch rec.VerificationType {
	case models.VerificationNone:
		return nil
	case models.VerificationPassword:
		if creds.Password == "" || !utils.CheckPasswordHash(creds.Password, rec.VerificationValue) {
			return xerr.ErrLinkCredentialInvalid
		}
		return nil
	case models.VerificationUsername:
		// 大小写不敏感的包含匹配，保持原有行为；收紧为精确匹配待定
		if creds.Username == "" {
			return xerr.ErrLinkCredentialInvalid
		}
		presented := strings.ToLower(creds.Username)
		for _, u := range rec.AllowedUsers {
			if strings.Contains(strings.ToLower(u.Username), presented) {
				return nil
			}
		}
		return xerr.ErrLinkCredentialInvalid
	default:
		return xerr.ErrLinkCredentialInvalid
	}
}
