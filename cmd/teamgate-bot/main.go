// teamgate-bot replies to any private message with a freshly signed
// initData string for the sender, for testing the API without a real
// Mini App frontend.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/nbulygin/teamgate/pkg/initdata"
)

func main() {
	_ = godotenv.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	token := os.Getenv("TEAMGATE_BOT_TOKEN")
	if token == "" {
		log.Fatal("TEAMGATE_BOT_TOKEN is required")
	}

	generator := initdata.NewGenerator(token)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := bot.New(token, bot.WithDefaultHandler(replyWithInitData(generator, log)))
	if err != nil {
		log.WithError(err).Fatal("failed to init bot")
	}

	log.Info("bot started, long polling")
	b.Start(ctx)
	log.Info("bot stopped")
}

func replyWithInitData(generator *initdata.Generator, log *logrus.Logger) bot.HandlerFunc {
	return func(ctx context.Context, b *bot.Bot, update *models.Update) {
		if update.Message == nil || update.Message.From == nil {
			return
		}
		from := update.Message.From

		raw, err := generator.Generate(initdata.User{
			ID:        from.ID,
			FirstName: from.FirstName,
			LastName:  from.LastName,
			Username:  from.Username,
		})
		if err != nil {
			log.WithError(err).WithField("telegram_user_id", from.ID).Error("failed to sign init data")
			return
		}

		if _, err := b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: update.Message.Chat.ID,
			Text:   raw,
		}); err != nil {
			log.WithError(err).WithField("chat_id", update.Message.Chat.ID).Error("failed to reply")
			return
		}
		log.WithField("telegram_user_id", from.ID).Info("init data issued")
	}
}
