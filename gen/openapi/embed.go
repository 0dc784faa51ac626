// Package openapi встраивает OpenAPI спецификацию REST API админки.
package openapi

import (
	"embed"
)

//go:embed admin.openapi.json
var content embed.FS

// GetSpec возвращает содержимое OpenAPI спецификации
func GetSpec() ([]byte, error) {
	return content.ReadFile("admin.openapi.json")
}

// MustGetSpec возвращает спецификацию или паникует
func MustGetSpec() []byte {
	data, err := GetSpec()
	if err != nil {
		panic("failed to load OpenAPI spec: " + err.Error())
	}
	return data
}
