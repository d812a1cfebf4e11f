package ristretto_test

import (
	"context"
	"testing"
	"time"

	"github.com/Strob0t/CareForge/internal/adapter/ristretto"
	"github.com/Strob0t/CareForge/internal/port/cache/cachetest"
)

func TestCache_Compliance(t *testing.T) {
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	cachetest.RunComplianceTests(t, c, c.Wait)
}

func TestCache_TTLExpiry(t *testing.T) {
	c, err := ristretto.New(1 << 20)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), 50*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	c.Wait()

	time.Sleep(1500 * time.Millisecond)
	if _, found, _ := c.Get(ctx, "short"); found {
		t.Fatal("expected entry to expire")
	}
}
