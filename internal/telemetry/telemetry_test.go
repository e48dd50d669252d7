package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
)

func TestInitializeExportsOnShutdown(t *testing.T) {
	var buf bytes.Buffer
	tel, err := Initialize("herd-test", "v0.0.0", &buf)
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	ctx := context.Background()
	_, span := otel.Tracer("test").Start(ctx, "CreateVM")
	span.End()

	counter, err := otel.Meter("test").Int64Counter("herd.test.count")
	if err != nil {
		t.Fatal(err)
	}
	counter.Add(ctx, 1)

	if err := tel.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}

	out := buf.String()
	for _, want := range []string{"CreateVM", "herd.test.count", "herd-test"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q", want)
		}
	}
}
