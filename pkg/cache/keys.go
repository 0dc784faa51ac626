package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// BuildKey строит ключ вида "<namespace>:<hash>" из параметров запроса.
// Параметры сериализуются в JSON, поэтому порядок полей структуры фиксирован,
// а ключи map сортируются encoding/json.
func BuildKey(namespace string, params any) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("build cache key: %w", err)
	}
	return namespace + ":" + ShortHash(data), nil
}

// QuickHash полный sha256 в hex
func QuickHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// ShortHash короткий хеш (16 символов)
func ShortHash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:8])
}
