package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

const sampleDoc = `{"httpRequest":{"latency":"12.5s","requestMethod":"GET","status":200,"a.b":"dotted"},"severity":"INFO","tags":["x"]}`

// TestResolve 覆盖路径解析的各类未找到分支。
func TestResolve(t *testing.T) {
	doc := gjson.Parse(sampleDoc)
	tests := []struct {
		name  string
		path  []string
		want  string
		found bool
	}{
		{"嵌套叶子", []string{"httpRequest", "latency"}, "12.5s", true},
		{"顶层叶子", []string{"severity"}, "INFO", true},
		{"缺失键", []string{"httpRequest", "missingKey"}, "", false},
		{"缺失中间段", []string{"nope", "latency"}, "", false},
		{"中间值非对象", []string{"severity", "x"}, "", false},
		{"叶子为数字", []string{"httpRequest", "status"}, "", false},
		{"叶子为对象", []string{"httpRequest"}, "", false},
		{"叶子为数组", []string{"tags"}, "", false},
		{"数组不按下标访问", []string{"tags", "0"}, "", false},
		{"段内含点按字面匹配", []string{"httpRequest", "a.b"}, "dotted", true},
		{"通配符不生效", []string{"httpRequest", "lat*"}, "", false},
		{"空路径根非字符串", nil, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(doc, tt.path)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestResolveRootString 空路径在根为字符串时返回根。
func TestResolveRootString(t *testing.T) {
	got, ok := Resolve(gjson.Parse(`"plain"`), nil)
	require.True(t, ok)
	assert.Equal(t, "plain", got)
}

// TestResolveEscapedString 叶子字符串经 JSON 反转义。
func TestResolveEscapedString(t *testing.T) {
	got, ok := Resolve(gjson.Parse(`{"m":"a\"bé"}`), []string{"m"})
	require.True(t, ok)
	assert.Equal(t, "a\"bé", got)
}

// TestParseAccessor 点分路径拆分。
func TestParseAccessor(t *testing.T) {
	a := ParseAccessor("latency", "httpRequest.latency", KindDuration)
	assert.Equal(t, []string{"httpRequest", "latency"}, a.Path)
	assert.Equal(t, "httpRequest.latency", a.Dotted())
	assert.Equal(t, KindDuration, a.Kind)

	root := ParseAccessor("raw", "", KindString)
	assert.Empty(t, root.Path)
}

// TestAccessorLookup 解析 + 类型转换。
func TestAccessorLookup(t *testing.T) {
	doc := gjson.Parse(sampleDoc)

	v, ok := ParseAccessor("latency", "httpRequest.latency", KindDuration).Lookup(doc)
	require.True(t, ok)
	assert.True(t, Duration(12.5).Equal(v), "got %v", v)

	// 找到但无法转换 → Missing
	v, ok = ParseAccessor("m", "httpRequest.requestMethod", KindFloat).Lookup(doc)
	require.True(t, ok)
	assert.True(t, v.IsMissing())

	_, ok = ParseAccessor("x", "httpRequest.missingKey", KindString).Lookup(doc)
	assert.False(t, ok)
}
