package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// GenerateDeviceKey 生成一把随机设备密钥（注册时下发给设备代理，只出现一次）。
func GenerateDeviceKey() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate device key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// HashDeviceKey 使用 bcrypt 生成设备密钥哈希。
func HashDeviceKey(key string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash device key: %w", err)
	}
	return string(bytes), nil
}

// CheckDeviceKey 校验设备密钥是否匹配哈希。
func CheckDeviceKey(key, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)) == nil
}
