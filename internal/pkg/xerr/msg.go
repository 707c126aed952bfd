package xerr

import "errors"

var (
	// 通用错误
	ErrSuccess        = errors.New("操作成功")
	ErrInternalServer = errors.New("服务器内部错误")

	// 客户端请求错误
	ErrInvalidParams     = errors.New("无效的请求参数")
	ErrValidationFailed  = errors.New("参数验证失败")
	ErrFileTooLarge      = errors.New("上传文件过大，超出限制")
	ErrFileNameInvalid   = errors.New("文件名包含非法字符")
	ErrFileStatusInvalid = errors.New("文件状态异常，无法执行操作")
	ErrLinkConfigInvalid = errors.New("分享链接配置不合法")

	// 认证与授权错误
	ErrUnauthorized          = errors.New("用户未授权")
	ErrTokenInvalid          = errors.New("认证 Token 无效或已过期")
	ErrInvalidCredentials    = errors.New("用户名或密码不正确")
	ErrLinkLoginRequired     = errors.New("访问此链接需要登录")
	ErrLinkCredentialInvalid = errors.New("链接访问凭证不正确")

	// 权限错误
	ErrForbidden            = errors.New("禁止访问")
	ErrPermissionDenied     = errors.New("您没有操作此资源的权限")
	ErrLinkAccessDenied     = errors.New("您不在此链接的允许访问列表中")
	ErrLinkCapabilityDenied = errors.New("此链接不允许该访问方式")

	// 资源未找到错误
	// 注意：链接不存在、已停用、已删除统一归并为 ErrLinkNotFound，避免探测枚举
	ErrUserNotFound = errors.New("用户不存在")
	ErrFileNotFound = errors.New("文件不存在")
	ErrLinkNotFound = errors.New("分享链接不存在或已失效")

	// 业务逻辑冲突
	ErrUserAlreadyExists  = errors.New("该用户名已被注册")
	ErrEmailAlreadyExists = errors.New("邮箱已被注册")
	ErrLinkNameTaken      = errors.New("该自定义名称已被占用，请换一个")

	// 链接消费状态
	ErrLinkExpired      = errors.New("分享链接已过期")
	ErrLinkLimitReached = errors.New("分享链接访问次数已达上限")

	// 数据库与外部服务错误
	ErrDatabaseError = errors.New("数据库操作失败")
	ErrStorageError  = errors.New("存储服务操作失败")
	ErrMQError       = errors.New("消息队列操作失败")

	// 乐观并发冲突，仓储层内部重试信号，重试耗尽后转换为 ErrDatabaseError
	ErrConflictRetry = errors.New("记录版本冲突，需要重试")
)
