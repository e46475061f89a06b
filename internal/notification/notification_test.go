package notification

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/sos-villages/signalement/internal/shared/types"
)

func TestIntents(t *testing.T) {
	caseID := types.NewID()
	recipients := []Recipient{
		{UserID: types.NewID(), Email: "psy@sos.tn", WhatsAppNumber: "+21620000000"},
		{UserID: types.NewID(), Email: "dir@sos.tn"},
		{UserID: types.NewID()},
	}

	intents := Intents(KindCaseAssigned, caseID, recipients, ChannelEmail, ChannelWhatsApp)

	if len(intents) != 3 {
		t.Fatalf("Expected 3 intents, got %d", len(intents))
	}
	if intents[1].Channel != ChannelWhatsApp || intents[1].To != "whatsapp:+21620000000" {
		t.Errorf("Unexpected whatsapp intent %+v", intents[1])
	}
	if !strings.Contains(intents[0].Body, caseID.String()[:8]) {
		t.Errorf("Expected case reference in body, got %q", intents[0].Body)
	}
}

func TestWhatsAppAddress(t *testing.T) {
	if got := WhatsAppAddress(" +216 "); got != "whatsapp:+216" {
		t.Errorf("Unexpected address %q", got)
	}
	if got := WhatsAppAddress("whatsapp:+216"); got != "whatsapp:+216" {
		t.Errorf("Expected prefix kept once, got %q", got)
	}
}

func TestComposeEveryKind(t *testing.T) {
	kinds := []Kind{KindCaseAssigned, KindCaseDocsReady, KindCaseDirValidated, KindCaseSigned, KindPendingReminder24h}
	seen := map[string]bool{}
	for _, k := range kinds {
		msg := Compose(k, types.NewID())
		if msg.Subject == "" || msg.Body == "" {
			t.Errorf("Empty message for %s", k)
		}
		if seen[msg.Subject] {
			t.Errorf("Duplicate subject for %s", k)
		}
		seen[msg.Subject] = true
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcherDelivers(t *testing.T) {
	email := NewMockProvider()
	d := NewDispatcher(map[Channel]Provider{ChannelEmail: email}, DispatcherConfig{
		Workers:       2,
		BufferSize:    10,
		RetryAttempts: 1,
		SendTimeout:   time.Second,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := d.Start(ctx); err == nil {
		t.Error("Expected error on second start")
	}

	d.Dispatch(
		Intent{Channel: ChannelEmail, To: "a@sos.tn", Subject: "s", Body: "b"},
		Intent{Channel: ChannelEmail, To: "b@sos.tn", Subject: "s", Body: "b"},
	)
	waitFor(t, func() bool { return len(email.Sent()) == 2 })

	if err := d.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}

func TestDispatcherRetriesThenGivesUp(t *testing.T) {
	whatsapp := NewMockProvider()
	whatsapp.SetFailOnSend(true)

	d := NewDispatcher(map[Channel]Provider{ChannelWhatsApp: whatsapp}, DispatcherConfig{
		Workers:       1,
		BufferSize:    10,
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
	}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	d.Dispatch(Intent{Channel: ChannelWhatsApp, To: "whatsapp:+216", Body: "b"})
	waitFor(t, func() bool { return whatsapp.Failures() == 3 })

	time.Sleep(20 * time.Millisecond)
	if got := whatsapp.Failures(); got != 3 {
		t.Errorf("Expected exactly 3 attempts, got %d", got)
	}
	d.Stop()
}

func TestDispatcherUnknownChannel(t *testing.T) {
	d := NewDispatcher(map[Channel]Provider{}, DefaultDispatcherConfig(), zap.NewNop())

	err := d.send(context.Background(), Intent{Channel: ChannelEmail, To: "a@sos.tn"})
	if err == nil {
		t.Error("Expected error without provider")
	}
}

func TestMaskAddress(t *testing.T) {
	tests := map[string]string{
		"amine@sos.tn":   "a***@sos.tn",
		"whatsapp:+2161": "***2161",
		"ab":             "***",
	}
	for in, want := range tests {
		if got := maskAddress(in); got != want {
			t.Errorf("maskAddress(%q) = %q, want %q", in, got, want)
		}
	}
}
