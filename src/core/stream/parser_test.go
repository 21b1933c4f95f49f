package stream

import (
	"io"
	"strings"
	"testing"

	"github.com/philhumber/wineApp-sub014/src/core/types"
)

// chunkReader 按固定大小切块返回数据, 模拟网络分块在任意字节处截断
type chunkReader struct {
	data []byte
	pos  int
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if r.pos+n > len(r.data) {
		n = len(r.data) - r.pos
	}
	copy(p, r.data[r.pos:r.pos+n])
	r.pos += n
	return n, nil
}

func TestParserNext(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantKinds []EventKind
		wantData  []string
	}{
		{
			name:      "完整的识别事件流",
			input:     "event: field\ndata: {\"field\":\"wine_name\",\"value\":\"Margaux\"}\n\nevent: result\ndata: {\"wine_name\":\"Margaux\"}\n\nevent: done\ndata: {}\n\n",
			wantKinds: []EventKind{EventField, EventResult, EventDone},
			wantData:  []string{`{"field":"wine_name","value":"Margaux"}`, `{"wine_name":"Margaux"}`, `{}`},
		},
		{
			name:      "done帧允许没有data行",
			input:     "event: done\n\n",
			wantKinds: []EventKind{EventDone},
			wantData:  []string{""},
		},
		{
			name:      "帧之间的多余空行被跳过",
			input:     "\n\nevent: done\ndata: {}\n\n\n",
			wantKinds: []EventKind{EventDone},
			wantData:  []string{`{}`},
		},
		{
			name:      "不符合key:value形状的行被忽略",
			input:     "这不是协议行\nevent: field\n乱入的注释\ndata: {\"field\":\"vintage\",\"value\":\"2015\"}\n\n",
			wantKinds: []EventKind{EventField},
			wantData:  []string{`{"field":"vintage","value":"2015"}`},
		},
		{
			name:      "未知key的行被忽略",
			input:     "event: field\nid: 42\ndata: {\"field\":\"region\",\"value\":\"Bordeaux\"}\n\n",
			wantKinds: []EventKind{EventField},
			wantData:  []string{`{"field":"region","value":"Bordeaux"}`},
		},
		{
			name:      "未知事件类型整帧跳过",
			input:     "event: heartbeat\ndata: {}\n\nevent: done\ndata: {}\n\n",
			wantKinds: []EventKind{EventDone},
			wantData:  []string{`{}`},
		},
		{
			name:      "CRLF行尾",
			input:     "event: field\r\ndata: {\"field\":\"country\",\"value\":\"France\"}\r\n\r\n",
			wantKinds: []EventKind{EventField},
			wantData:  []string{`{"field":"country","value":"France"}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parser := NewParser(strings.NewReader(tt.input), nil)
			for i, wantKind := range tt.wantKinds {
				event, err := parser.Next()
				if err != nil {
					t.Fatalf("第%d个事件解析失败: %v", i+1, err)
				}
				if event.Kind != wantKind {
					t.Errorf("事件%d类型 = %q, want %q", i+1, event.Kind, wantKind)
				}
				if string(event.Data) != tt.wantData[i] {
					t.Errorf("事件%d负载 = %q, want %q", i+1, string(event.Data), tt.wantData[i])
				}
			}
			if _, err := parser.Next(); err != io.EOF {
				t.Errorf("流结束后应返回 io.EOF, got %v", err)
			}
		})
	}
}

func TestParserChunkBoundaries(t *testing.T) {
	// 同一份事件流以不同大小切块, 每种切法都必须产出完全相同的事件序列
	input := "event: field\ndata: {\"field\":\"wine_name\",\"value\":\"Château Margaux\"}\n\nevent: result\ndata: {\"wine_name\":\"Château Margaux\",\"vintage\":\"2015\"}\n\nevent: done\ndata: {}\n\n"

	for _, size := range []int{1, 2, 3, 7, 16, 64, 1024} {
		reader := &chunkReader{data: []byte(input), size: size}
		parser := NewParser(reader, nil)

		var kinds []EventKind
		for {
			event, err := parser.Next()
			if err == io.EOF {
				break
			}
			if err != nil {
				t.Fatalf("块大小=%d 时解析失败: %v", size, err)
			}
			kinds = append(kinds, event.Kind)
		}

		want := []EventKind{EventField, EventResult, EventDone}
		if len(kinds) != len(want) {
			t.Fatalf("块大小=%d 时事件数 = %d, want %d", size, len(kinds), len(want))
		}
		for i := range want {
			if kinds[i] != want[i] {
				t.Errorf("块大小=%d 时事件%d = %q, want %q", size, i+1, kinds[i], want[i])
			}
		}
	}
}

func TestParserErrors(t *testing.T) {
	t.Run("data不是合法JSON返回ParseError", func(t *testing.T) {
		parser := NewParser(strings.NewReader("event: field\ndata: {broken\n\n"), nil)
		_, err := parser.Next()
		if !types.IsParseError(err) {
			t.Fatalf("期望 ParseError, got %v", err)
		}

		// 解析错误后解析器不再可用
		_, err = parser.Next()
		if !types.IsParseError(err) {
			t.Errorf("失败后的再次调用应返回 ParseError, got %v", err)
		}
	})

	t.Run("field帧缺少data负载返回ParseError", func(t *testing.T) {
		parser := NewParser(strings.NewReader("event: field\n\n"), nil)
		if _, err := parser.Next(); !types.IsParseError(err) {
			t.Errorf("期望 ParseError, got %v", err)
		}
	})

	t.Run("帧中途断流返回NetworkError", func(t *testing.T) {
		parser := NewParser(strings.NewReader("event: field\ndata: {\"field\":\"x\""), nil)
		if _, err := parser.Next(); !types.IsNetworkError(err) {
			t.Errorf("期望 NetworkError, got %v", err)
		}
	})

	t.Run("空输入返回EOF", func(t *testing.T) {
		parser := NewParser(strings.NewReader(""), nil)
		if _, err := parser.Next(); err != io.EOF {
			t.Errorf("期望 io.EOF, got %v", err)
		}
	})
}
