package logger

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, env := range []string{"prod", "local", "dev", "docker", "test"} {
		l, err := New(Options{Env: env})
		if err != nil || l == nil {
			t.Errorf("env %s: %v", env, err)
		}
	}

	bad := []Options{
		{Env: "staging"},
		{Env: "local", Level: "loud"},
		{Env: "local", Format: "xml"},
	}
	for _, opts := range bad {
		if _, err := New(opts); err == nil {
			t.Errorf("expected error for %+v", opts)
		}
	}

	l, err := New(Options{Env: "prod", Level: "debug", Format: "console"})
	if err != nil {
		t.Fatal(err)
	}
	if !l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("level override not applied")
	}
	if l, _ := New(Options{Env: "test"}); l.Core().Enabled(zapcore.InfoLevel) {
		t.Error("test env must be quiet below warn")
	}
	if l, _ := New(Options{Env: "prod"}); l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("prod must default to info")
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected nop logger fallback")
	}

	core, logs := observer.New(zapcore.InfoLevel)
	ctx, l := WithRequest(context.Background(), zap.New(core), "req-1")
	if FromContext(ctx) != l {
		t.Fatal("logger not stored in context")
	}
	if RequestID(ctx) != "req-1" || RequestID(context.Background()) != "" {
		t.Fatalf("request id = %q", RequestID(ctx))
	}
	FromContext(ctx).Info("hello")

	entries := logs.All()
	if len(entries) != 1 || entries[0].ContextMap()["request_id"] != "req-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
