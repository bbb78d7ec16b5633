package tgbot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/bigredeye/cqa/internal/events"
	"github.com/bigredeye/cqa/internal/hostname"
	lf "github.com/bigredeye/cqa/internal/logfield"
	"github.com/bigredeye/cqa/internal/models"
)

type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Decoder interface {
	Decode(hostname string) (hostname.Target, error)
}

type BuildFinder interface {
	FindLastBuild(ctx context.Context, projectName, version string) (*models.Build, error)
}

// Bot announces finished builds to a chat and answers "/status <hostname>".
type Bot struct {
	api    *tgbotapi.BotAPI
	sender Sender
	chatID int64
	codec  Decoder
	builds BuildFinder
	log    *zap.Logger
}

func NewBot(token string, chatID int64, codec Decoder, builds BuildFinder, log *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Bot{
		api:    api,
		sender: api,
		chatID: chatID,
		codec:  codec,
		builds: builds,
		log:    log.Named("tgbot"),
	}, nil
}

func (b *Bot) Attach(bus *events.Bus) {
	bus.Subscribe(events.BuildFinished, func(event events.Event) {
		go b.announce(event.Build)
	})
}

func (b *Bot) announce(build *models.Build) {
	if b.chatID == 0 {
		return
	}
	msg := tgbotapi.NewMessage(b.chatID, FormatBuild(build))
	if _, err := b.sender.Send(msg); err != nil {
		b.log.Error("Failed to announce build", lf.BuildID(build.ID), zap.Error(err))
	}
}

func FormatBuild(build *models.Build) string {
	text := fmt.Sprintf("%s@%s is %s\nhttp://%s/", build.Project.Name, build.Version, build.Status, build.Hostname)
	for _, step := range build.Steps {
		if step.Status == models.StepStatusFailed {
			text += fmt.Sprintf("\nstep %s failed", step.Name)
		}
	}
	return text
}

func (b *Bot) Run(ctx context.Context) {
	b.log.Info("Authorized on account", zap.String("username", b.api.Self.UserName))

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case update := <-updates:
			if err := b.handleUpdate(ctx, update); err != nil {
				b.log.Error("Failed to handle update", zap.Error(err), zap.Int("update_id", update.UpdateID))
			}
		case <-ctx.Done():
			return
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() || update.Message.Command() != "status" {
		return nil
	}
	b.log.Info("Got status request",
		zap.String("user", update.Message.From.UserName),
		zap.String("text", update.Message.Text),
	)

	msg := tgbotapi.NewMessage(update.Message.Chat.ID, b.statusText(ctx, strings.TrimSpace(update.Message.CommandArguments())))
	msg.ReplyToMessageID = update.Message.MessageID

	_, err := b.sender.Send(msg)
	return err
}

func (b *Bot) statusText(ctx context.Context, host string) string {
	if host == "" {
		return "Usage: /status <hostname>"
	}
	target, err := b.codec.Decode(host)
	if err != nil {
		return "Invalid hostname format."
	}
	build, err := b.builds.FindLastBuild(ctx, target.ProjectName(), target.Version)
	if err != nil {
		b.log.Error("Failed to find build", lf.Hostname(host), zap.Error(err))
		return "Failed to find build, try again later"
	}
	if build == nil {
		return fmt.Sprintf("%s@%s was never built", target.ProjectName(), target.Version)
	}
	return FormatBuild(build)
}
