package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

// stripCodeFence 去掉模型有时包裹在 JSON 外面的 ``` / ```json 代码块。
// 只有围栏出现在第一个 [ 或 { 之前才剥离，JSON 字符串内部的 ``` 保持原样。
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	if open := strings.IndexAny(s, "[{"); open >= 0 && open < start {
		return s
	}
	body := s[start+3:]
	i := 0
	for i < len(body) && isLetter(body[i]) {
		i++
	}
	body = body[i:]
	if end := strings.LastIndex(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// stringify 将任意 JSON 值转为去除首尾空白的字符串；只有 null 视为空串。
func stringify(raw json.RawMessage) string {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(string(raw))
	}
}

// stringList 把一个字段强制转为字符串数组：缺失或不是数组时返回空数组，非字符串元素被字符串化。
func stringList(raw json.RawMessage) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return out
	}
	for _, item := range items {
		if s := stringify(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
