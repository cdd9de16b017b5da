// Package logrecord 把 NDJSON 行解析为 (键, 字段值) 记录。
package logrecord

import (
	"bufio"
	"bytes"
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/tidwall/gjson"

	"qma/internal/aggregate"
	"qma/pkg/contract"
)

// Extractor 按表定义从文档中取出键与各字段值。构造后只读，可并发共享。
type Extractor struct {
	index  contract.Accessor
	fields []contract.Accessor
}

// NewExtractor 基于表定义构造提取器；字段访问器的 Name 与字段名一致。
func NewExtractor(def *aggregate.Definition) *Extractor {
	fs := def.Fields()
	ex := &Extractor{index: def.Index().Accessor, fields: make([]contract.Accessor, len(fs))}
	for i, f := range fs {
		a := f.Accessor
		a.Name = f.Name
		ex.fields[i] = a
	}
	return ex
}

// Extract 从文档取键并把字段值写入 values（先清空）。
// 键无法解析时返回 ok=false（整条记录丢弃）；未解析的字段不写入 values。
func (ex *Extractor) Extract(doc gjson.Result, values map[string]contract.Value) (string, bool) {
	clear(values)
	key, ok := contract.Resolve(doc, ex.index.Path)
	if !ok {
		return "", false
	}
	for _, a := range ex.fields {
		if v, ok := a.Lookup(doc); ok {
			values[a.Name] = v
		}
	}
	return key, true
}

// Stats 单个输入流的扫描统计。
type Stats struct {
	Lines    int  // 已读取的行（含终止行）
	Records  int  // 交给回调的记录
	Dropped  int  // 键未解析而丢弃的记录
	Halted   bool // 遇到非法 JSON 行而提前结束
	HaltLine int  // 终止行号（1 起；未终止时为 0）
}

// Scan 逐行读取 NDJSON 并把记录交给 fn。
// 约束：
// 1) 非法 JSON 行（含空行）等同 EOF：停止该流，已折叠的结果保留，返回 nil 错误；
// 2) 末尾无换行的最后一行照常处理；
// 3) 仅在行之间检查 ctx；
// 4) values 在回调返回后会被复用，fn 不得持有。
func Scan(ctx context.Context, r io.Reader, ex *Extractor, fn func(key string, values map[string]contract.Value)) (Stats, error) {
	var st Stats
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	values := make(map[string]contract.Value, len(ex.fields))
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		line, rerr := br.ReadBytes('\n')
		if rerr != nil && !errors.Is(rerr, io.EOF) {
			return st, errors.Wrapf(rerr, "read line %d", st.Lines+1)
		}
		if rerr != nil && len(line) == 0 {
			return st, nil
		}
		st.Lines++
		line = bytes.TrimSuffix(line, []byte{'\n'})
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if !gjson.ValidBytes(line) {
			st.Halted = true
			st.HaltLine = st.Lines
			return st, nil
		}
		key, ok := ex.Extract(gjson.ParseBytes(line), values)
		if !ok {
			st.Dropped++
		} else {
			st.Records++
			fn(key, values)
		}
		if rerr != nil {
			return st, nil
		}
	}
}
