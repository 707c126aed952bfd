package xerr

// 定义了统一的业务错误码
const (
	SuccessCode = 20000 // 通用成功码

	// --- 客户端请求错误系列 (400xx) ---
	InvalidParamsCode     = 40000 // 无效的请求参数
	ValidationFailedCode  = 40001 // 参数验证失败
	FileTooLargeCode      = 40002 // 文件过大
	FileNameInvalidCode   = 40003 // 文件名无效
	FileStatusInvalidCode = 40004 // 文件状态异常，无法操作
	LinkConfigInvalidCode = 40005 // 分享链接配置不合法（跨字段约束不满足）

	// --- 认证与授权错误系列 (401xx) ---
	UnauthorizedCode          = 40100 // 通用未授权
	TokenInvalidCode          = 40101 // Token 无效或过期
	InvalidCredentialsCode    = 40102 // 用户名或密码错误
	LinkLoginRequiredCode     = 40103 // 访问链接需要登录
	LinkCredentialInvalidCode = 40104 // 链接访问凭证（密码/用户名）不正确

	// --- 权限错误系列 (403xx) ---
	ForbiddenCode          = 40300 // 通用无权限
	PermissionDeniedCode   = 40301 // 权限不足 (细分)
	LinkAccessDeniedCode   = 40302 // 不在链接的允许用户列表中
	LinkCapabilityDeniedCode = 40303 // 链接不允许该访问方式（查看/下载）

	// --- 资源未找到错误系列 (404xx) ---
	NotFoundCode     = 40400 // 通用资源未找到
	UserNotFoundCode = 40401 // 用户不存在
	FileNotFoundCode = 40402 // 文件不存在
	LinkNotFoundCode = 40403 // 分享链接不存在、已停用或已删除

	// --- 业务逻辑冲突系列 (409xx) ---
	UserAlreadyExistsCode  = 40900 // 用户名已存在
	EmailAlreadyExistsCode = 40901 // 邮箱已存在
	LinkNameTakenCode      = 40902 // 链接自定义名称已被占用

	// --- 链接状态系列 (410/429) ---
	LinkExpiredCode      = 41000 // 分享链接已过期
	LinkLimitReachedCode = 42900 // 分享链接访问次数已达上限

	// --- 服务器内部错误系列 (500xx) ---
	InternalServerErrorCode = 50000 // 服务器内部通用错误
	DatabaseErrorCode       = 50001 // 数据库操作失败
	StorageErrorCode        = 50002 // 存储服务操作失败（如MinIO）
	MQErrorCode             = 50003 // 消息队列操作失败
	ConflictRetryCode       = 50004 // 乐观并发冲突（仅内部使用，不应返回给调用方）
)
