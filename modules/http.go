// Package modules provides ready-made runtime.Module implementations for
// wiring into a DagSpec. HTTPModule is grounded on
// services/orchestrator/task_executor.go's HTTPTaskExecutor: a pooled
// *http.Client, OTel span per call, and trace-context propagation onto the
// outgoing request.
package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/VledicFranco/constellation-engine-sub007/internal/runtime"
	"github.com/VledicFranco/constellation-engine-sub007/internal/value"
)

const maxResponseBytes = 10 << 20 // 10MB

// HTTPModule calls a fixed URL with the module's "body" input as the JSON
// request payload and exposes the response as a "status" int and "body"
// string output pair.
type HTTPModule struct {
	client *http.Client
	tracer trace.Tracer
	url    string
	method string
}

// NewHTTPModule builds an HTTPModule that issues method requests to url. A
// nil client gets the teacher's pooled default (100 idle conns, 10
// per-host, 90s idle timeout).
func NewHTTPModule(url, method string, client *http.Client) *HTTPModule {
	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	if method == "" {
		method = http.MethodPost
	}
	return &HTTPModule{client: client, tracer: otel.Tracer("constellation-http-module"), url: url, method: method}
}

// Execute implements runtime.Module. inputs["body"], if present, is
// marshaled as the request payload.
func (m *HTTPModule) Execute(ctx context.Context, inputs map[string]value.Value) (map[string]value.Value, error) {
	ctx, span := m.tracer.Start(ctx, "http_module.execute",
		trace.WithAttributes(attribute.String("url", m.url), attribute.String("method", m.method)))
	defer span.End()

	var body io.Reader
	if in, ok := inputs["body"]; ok {
		payload, err := valueToJSON(in)
		if err != nil {
			return nil, fmt.Errorf("http module: marshal body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, m.method, m.url, body)
	if err != nil {
		return nil, fmt.Errorf("http module: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation{req.Header})

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http module: execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("http module: read response: %w", err)
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("http module: status %d: %s", resp.StatusCode, string(respBody))
	}

	return map[string]value.Value{
		"status": value.Int64(int64(resp.StatusCode)),
		"body":   value.Str(string(respBody)),
	}, nil
}

func valueToJSON(v value.Value) ([]byte, error) {
	switch v.Kind {
	case value.KindString:
		return json.Marshal(v.StringVal)
	case value.KindInt:
		return json.Marshal(v.IntVal)
	case value.KindFloat:
		return json.Marshal(v.FloatVal)
	case value.KindBool:
		return json.Marshal(v.BoolVal)
	default:
		return nil, fmt.Errorf("http module: unsupported body value kind %v", v.Kind)
	}
}

type propagation struct{ header http.Header }

func (p propagation) Get(key string) string { return p.header.Get(key) }
func (p propagation) Set(key, val string)   { p.header.Set(key, val) }
func (p propagation) Keys() []string {
	keys := make([]string, 0, len(p.header))
	for k := range p.header {
		keys = append(keys, k)
	}
	return keys
}

var _ runtime.Module = (*HTTPModule)(nil)
