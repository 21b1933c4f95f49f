package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/philhumber/wineApp-sub014/src/configs"
	"github.com/philhumber/wineApp-sub014/src/core/identify"
	"github.com/philhumber/wineApp-sub014/src/core/types"
)

// newStreamServer 返回一个以事件流应答 /api/identify 的测试服务
func newStreamServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request, flush func())) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/identify" {
			http.NotFound(w, r)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("测试服务不支持流式写出")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		handler(w, r, flusher.Flush)
	}))
}

func writeFrame(w http.ResponseWriter, kind, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", kind, data)
}

func newTestProvider(t *testing.T, baseURL string) identify.Provider {
	t.Helper()
	provider, err := NewProvider(&configs.IdentifyConfig{Type: "sse", BaseURL: baseURL}, nil)
	if err != nil {
		t.Fatalf("创建提供者失败: %v", err)
	}
	return provider
}

func TestProviderIdentify(t *testing.T) {
	t.Run("完整识别链路", func(t *testing.T) {
		var gotRequestID string
		server := newStreamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
			gotRequestID = r.Header.Get("X-Request-Id")
			writeFrame(w, "field", `{"field":"wine_name","value":"Château Margaux"}`)
			flush()
			writeFrame(w, "field", `{"field":"vintage","value":"2015"}`)
			flush()
			writeFrame(w, "result", `{"wine_name":"Château Margaux","vintage":"2015","confidence":0.92,"action":"confirm"}`)
			writeFrame(w, "done", `{}`)
			flush()
		})
		defer server.Close()

		var fields []string
		store := identify.NewFieldStore()
		provider := newTestProvider(t, server.URL)

		result, err := provider.Identify(context.Background(), identify.Request{
			RequestID: "req-1",
			ImageData: []byte{0xFF, 0xD8, 0x01},
			MimeType:  "image/jpeg",
		}, identify.Callbacks{
			OnField: func(name string, value interface{}) { fields = append(fields, name) },
		}, store)

		if err != nil {
			t.Fatalf("识别失败: %v", err)
		}
		if result.WineName != "Château Margaux" || result.Vintage != "2015" {
			t.Errorf("结果 = %+v", result)
		}
		if gotRequestID != "req-1" {
			t.Errorf("X-Request-Id = %q, want req-1", gotRequestID)
		}
		if len(fields) != 2 || fields[0] != "wine_name" || fields[1] != "vintage" {
			t.Errorf("字段回调 = %v, want [wine_name vintage]", fields)
		}
		if store.Len() != 2 {
			t.Errorf("字段状态表条目 = %d, want 2", store.Len())
		}
	})

	t.Run("服务端错误事件", func(t *testing.T) {
		server := newStreamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
			writeFrame(w, "error", `{"type":"no_match","message":"无法识别该酒标","retryable":false,"supportRef":"ERR-NM-7"}`)
			writeFrame(w, "done", `{}`)
			flush()
		})
		defer server.Close()

		provider := newTestProvider(t, server.URL)
		_, err := provider.Identify(context.Background(), identify.Request{RequestID: "req-2"},
			identify.Callbacks{}, identify.NewFieldStore())

		structured, ok := types.AsStructuredError(err)
		if !ok {
			t.Fatalf("期望 StructuredError, got %v", err)
		}
		if structured.Type != "no_match" || structured.Retryable || structured.SupportRef != "ERR-NM-7" {
			t.Errorf("结构化错误 = %+v", structured)
		}
	})

	t.Run("非200状态返回NetworkError", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		provider := newTestProvider(t, server.URL)
		_, err := provider.Identify(context.Background(), identify.Request{RequestID: "req-3"},
			identify.Callbacks{}, identify.NewFieldStore())
		if !types.IsNetworkError(err) {
			t.Errorf("期望 NetworkError, got %v", err)
		}
	})

	t.Run("流中途取消返回CancellationError", func(t *testing.T) {
		firstField := make(chan struct{})
		server := newStreamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
			writeFrame(w, "field", `{"field":"wine_name","value":"Margaux"}`)
			flush()
			close(firstField)
			// 挂住连接直到客户端取消
			<-r.Context().Done()
		})
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			<-firstField
			cancel()
		}()

		provider := newTestProvider(t, server.URL)
		_, err := provider.Identify(ctx, identify.Request{RequestID: "req-4"},
			identify.Callbacks{}, identify.NewFieldStore())
		if !types.IsCancellationError(err) {
			t.Errorf("期望 CancellationError, got %v", err)
		}
	})

	t.Run("连接建立前取消", func(t *testing.T) {
		server := newStreamServer(t, func(w http.ResponseWriter, r *http.Request, flush func()) {
			time.Sleep(100 * time.Millisecond)
		})
		defer server.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		provider := newTestProvider(t, server.URL)
		_, err := provider.Identify(ctx, identify.Request{RequestID: "req-5"},
			identify.Callbacks{}, identify.NewFieldStore())
		if !types.IsCancellationError(err) {
			t.Errorf("期望 CancellationError, got %v", err)
		}
	})
}

func TestProviderInitialize(t *testing.T) {
	t.Run("缺少服务地址时初始化失败", func(t *testing.T) {
		provider, err := NewProvider(&configs.IdentifyConfig{Type: "sse"}, nil)
		if err != nil {
			t.Fatalf("创建提供者失败: %v", err)
		}
		if err := provider.Initialize(); err == nil {
			t.Error("缺少url时 Initialize 应返回错误")
		}
	})
}
