package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		SetLevel("info")
	})
	return &buf
}

func TestInfow_EmitsKeyValueAttrs(t *testing.T) {
	buf := capture(t)
	SetLevel("info")

	Infow("guided trade opened", "id", int64(7), "market", "KRW-BTC", "qty", decimal.NewFromFloat(0.5))

	out := buf.String()
	assert.Contains(t, out, "guided trade opened")
	assert.Contains(t, out, "id=7")
	assert.Contains(t, out, "market=KRW-BTC")
	assert.Contains(t, out, "qty=0.5")
}

func TestSetLevel_FiltersBelowThreshold(t *testing.T) {
	buf := capture(t)
	SetLevel("warn")

	Infow("tick", "market", "KRW-ETH")
	Warnw("quote stale", "market", "KRW-ETH")

	out := buf.String()
	assert.NotContains(t, out, "tick")
	assert.Contains(t, out, "quote stale")
	assert.Contains(t, out, "market=KRW-ETH")
}

func TestInfof_FormatsMessage(t *testing.T) {
	buf := capture(t)
	SetLevel("info")

	Infof("scheduler %s: started", "board-refresh")

	assert.Contains(t, buf.String(), "scheduler board-refresh: started")
}
