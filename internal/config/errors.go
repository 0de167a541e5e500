package config

import "fmt"

// FieldError 提供字段路径与错误原因，便于 CLI 向用户反馈。
type FieldError struct {
	Field  string
	Reason string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// newFieldError 创建包含字段路径与原因的 error，便于 CLI 定位。
func newFieldError(field, reason string) error {
	return FieldError{Field: field, Reason: reason}
}

// siteField 用于拼接 Site 级字段路径，方便输出 Site.Field 形式。
func siteField(field string) string {
	return "Site." + field
}

// listField 拼接数组字段路径，输出 Site.Field[i] 形式。
func listField(field string, index int) string {
	return fmt.Sprintf("Site.%s[%d]", field, index)
}
