package tgbot

import (
	"context"
	"strings"
	"sync"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/database"
	"github.com/bigredeye/cqa/internal/hostname"
	"github.com/bigredeye/cqa/internal/models"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []tgbotapi.MessageConfig
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{}, nil
}

func newTestBot(t *testing.T, sender *fakeSender) (*Bot, *database.Memory) {
	t.Helper()
	codec := hostname.NewCodec("cqa", 16)
	t.Cleanup(codec.Stop)
	store := database.NewMemory()
	return &Bot{sender: sender, chatID: 42, codec: codec, builds: store, log: zap.NewNop()}, store
}

func failedBuild() *models.Build {
	build := models.NewBuild("v1.repo.owner.cqa", models.Project{Name: "owner/repo"}, "v1")
	step := models.NewStep("docker.build")
	step.Status = models.StepStatusFailed
	build.AddStep(step)
	build.Status = models.BuildStatusFailed
	return build
}

func TestFormatBuild(t *testing.T) {
	text := FormatBuild(failedBuild())
	expected := "owner/repo@v1 is failed\nhttp://v1.repo.owner.cqa/\nstep docker.build failed"
	if text != expected {
		t.Errorf("Unexpected text %q", text)
	}
}

func TestAnnounce(t *testing.T) {
	sender := &fakeSender{}
	bot, _ := newTestBot(t, sender)

	bot.announce(failedBuild())
	if len(sender.sent) != 1 || sender.sent[0].ChatID != 42 {
		t.Fatalf("Unexpected messages %+v", sender.sent)
	}
}

func TestStatusText(t *testing.T) {
	bot, store := newTestBot(t, &fakeSender{})
	ctx := context.Background()

	if text := bot.statusText(ctx, "nope"); text != "Invalid hostname format." {
		t.Errorf("Unexpected text %q", text)
	}
	if text := bot.statusText(ctx, "v1.repo.owner.cqa"); !strings.Contains(text, "never built") {
		t.Errorf("Unexpected text %q", text)
	}

	if err := store.StoreBuild(ctx, failedBuild()); err != nil {
		t.Fatal(err)
	}
	if text := bot.statusText(ctx, "v1.repo.owner.cqa"); !strings.HasPrefix(text, "owner/repo@v1 is failed") {
		t.Errorf("Unexpected text %q", text)
	}
}
