package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// NewLinkID 生成分享链接的公开令牌
// 128位随机数的hex编码，共32个字符，创建后不可变
func NewLinkID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand 不可用属于环境故障，无法继续提供服务
		panic(err)
	}
	return hex.EncodeToString(buf)
}
