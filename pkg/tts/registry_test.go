package tts

import (
	"context"
	"strings"
	"testing"

	"github.com/creastat/voicegen-go/pkg/audio"
	"github.com/creastat/voicegen-go/pkg/logger"
)

type stubClient struct{}

func (stubClient) GenerateAudio(ctx context.Context, text, previousText, nextText string) (*audio.Buffer, error) {
	return nil, nil
}

func (stubClient) EstimateCost(text string) float64 { return 0 }

func stubFactory(ctx context.Context, cfg ClientConfig, log logger.Logger) (Client, error) {
	return stubClient{}, nil
}

func TestRegisterValidation(t *testing.T) {
	if err := Register("", stubFactory); err == nil {
		t.Error("expected error for empty provider name")
	}
	if err := Register("registry-test-nil", nil); err == nil {
		t.Error("expected error for nil factory")
	}

	if err := Register("registry-test-dup", stubFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := Register("registry-test-dup", stubFactory); err == nil {
		t.Error("expected error for duplicate registration")
	}
}

func TestNewDispatchesToFactory(t *testing.T) {
	if err := Register("registry-test-dispatch", stubFactory); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	client, err := New(context.Background(), "registry-test-dispatch", ClientConfig{}, logger.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := client.(stubClient); !ok {
		t.Errorf("expected stub client, got %T", client)
	}

	found := false
	for _, name := range Providers() {
		if name == "registry-test-dispatch" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected provider in listing, got %v", Providers())
	}
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), "registry-test-missing", ClientConfig{}, logger.NewNop())
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if !strings.Contains(err.Error(), "registry-test-missing") {
		t.Errorf("expected provider name in error, got: %v", err)
	}
}

func TestStatsHitRate(t *testing.T) {
	if rate := (Stats{}).HitRatePercent(); rate != 0 {
		t.Errorf("expected zero rate for untouched cache, got %f", rate)
	}
	if rate := (Stats{CacheHits: 2, CacheMisses: 1}).HitRatePercent(); rate != 66.7 {
		t.Errorf("expected 66.7, got %f", rate)
	}
	if rate := (Stats{CacheHits: 3}).HitRatePercent(); rate != 100 {
		t.Errorf("expected 100, got %f", rate)
	}
}
