package tracing

import (
	"context"
	"testing"
)

func TestSanitizeEndpoint(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"localhost:4317", "localhost:4317"},
		{"http://collector:4317", "collector:4317"},
		{"https://collector.example.com:443/", "collector.example.com:443"},
		{"collector:4317/", "collector:4317"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := sanitizeEndpoint(tt.in); got != tt.want {
			t.Errorf("sanitizeEndpoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestConfigResolvedDefaults(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	got := Config{Enabled: true, SampleRatio: 7}.resolved()
	if got.ServiceName != "irisenroll" || got.OTLPEndpoint != defaultEndpoint || got.SampleRatio != 1 {
		t.Errorf("resolved() = %+v", got)
	}
}

func TestConfigResolvedFromEnv(t *testing.T) {
	t.Setenv("OTEL_SERVICE_NAME", "enroll-batch")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4317")
	got := Config{SampleRatio: 0.5}.resolved()
	if got.ServiceName != "enroll-batch" || got.OTLPEndpoint != "collector:4317" || got.SampleRatio != 0.5 {
		t.Errorf("resolved() = %+v", got)
	}

	got = Config{ServiceName: "explicit", OTLPEndpoint: "otel:4317"}.resolved()
	if got.ServiceName != "explicit" || got.OTLPEndpoint != "otel:4317" {
		t.Errorf("explicit config overridden by env: %+v", got)
	}
}

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), Config{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	_, span := Tracer("test").Start(context.Background(), "noop")
	span.End()
}
