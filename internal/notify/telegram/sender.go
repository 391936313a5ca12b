// Package telegram delivers quiz notifications to Telegram chats and routes
// inline-keyboard answers back into the quiz service.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"quizblitz-service/internal/domain"
	"quizblitz-service/internal/quiz"
)

// Sender pushes questions and results to every Telegram-sourced player of a
// session. It implements notify.Sender.
type Sender struct {
	bot     *tgbotapi.BotAPI
	service *quiz.Service
	log     *zap.Logger
}

func NewSender(bot *tgbotapi.BotAPI, service *quiz.Service, log *zap.Logger) *Sender {
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{bot: bot, service: service, log: log}
}

// SendQuestion sends the session's current question with an inline keyboard
// of option letters. Delivery is per-chat best effort: one blocked chat must
// not starve the rest.
func (s *Sender) SendQuestion(_ context.Context, session *domain.Session) error {
	question := session.CurrentQuestion()
	if question == nil {
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Question %d/%d\n\n%s\n\n",
		session.CurrentQuestionIndex+1, len(session.Questions), question.Text)
	letters := sortedOptionKeys(question.Options)
	for _, letter := range letters {
		fmt.Fprintf(&b, "%s) %s\n", letter, question.Options[letter])
	}
	fmt.Fprintf(&b, "\n%d seconds!", session.TimerDuration)
	text := b.String()

	var buttons []tgbotapi.InlineKeyboardButton
	for _, letter := range letters {
		buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(
			letter,
			answerCallback(session.QuizCode, session.CurrentQuestionIndex, letter),
		))
	}
	keyboard := tgbotapi.NewInlineKeyboardMarkup(buttons)

	var firstErr error
	for _, chatID := range s.telegramChats(session) {
		msg := tgbotapi.NewMessage(chatID, text)
		msg.ReplyMarkup = keyboard
		if _, err := s.bot.Send(msg); err != nil {
			s.log.Warn("telegram send failed",
				zap.Int64("chatId", chatID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// SendFinished sends the final standings.
func (s *Sender) SendFinished(_ context.Context, session *domain.Session) error {
	players := append([]domain.Player(nil), session.Players...)
	sort.Slice(players, func(i, j int) bool {
		if players[i].Score != players[j].Score {
			return players[i].Score > players[j].Score
		}
		return players[i].Name < players[j].Name
	})

	var b strings.Builder
	b.WriteString("Quiz finished! Final standings:\n\n")
	for rank, p := range players {
		fmt.Fprintf(&b, "%d. %s: %d\n", rank+1, p.Name, p.Score)
	}
	text := b.String()

	var firstErr error
	for _, chatID := range s.telegramChats(session) {
		if _, err := s.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
			s.log.Warn("telegram send failed",
				zap.Int64("chatId", chatID), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// HandleUpdates consumes bot updates until ctx is done: answer callbacks go
// through the same submit path as web players, and "/join CODE" messages
// register the chat as a player.
func (s *Sender) HandleUpdates(ctx context.Context) {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := s.bot.GetUpdatesChan(cfg)
	for {
		select {
		case <-ctx.Done():
			s.bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			switch {
			case update.CallbackQuery != nil:
				s.handleAnswer(ctx, update.CallbackQuery)
			case update.Message != nil:
				s.handleMessage(ctx, update.Message)
			}
		}
	}
}

func (s *Sender) handleAnswer(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	quizCode, questionIndex, answer, ok := parseAnswerCallback(cb.Data)
	if !ok {
		return
	}
	playerID := chatPlayerID(cb.Message.Chat.ID)
	_, err := s.service.SubmitAnswer(ctx, quizCode, playerID, questionIndex, answer, 0)
	ack := "Answer received!"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrAlreadyAnswered):
		ack = "You already answered this question."
	default:
		ack = "Too late for that question."
	}
	if _, err := s.bot.Request(tgbotapi.NewCallback(cb.ID, ack)); err != nil {
		s.log.Debug("callback ack failed", zap.Error(err))
	}
}

func (s *Sender) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	fields := strings.Fields(msg.Text)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "/join") {
		return
	}
	name := strings.TrimSpace(msg.From.FirstName)
	if name == "" {
		name = msg.From.UserName
	}
	player := domain.Player{
		ID:     chatPlayerID(msg.Chat.ID),
		Name:   name,
		Source: domain.SourceTelegram,
	}
	reply := "You're in! Questions will arrive here."
	if _, err := s.service.Join(ctx, fields[1], player); err != nil {
		reply = "Could not join that quiz: " + err.Error()
	}
	if _, err := s.bot.Send(tgbotapi.NewMessage(msg.Chat.ID, reply)); err != nil {
		s.log.Debug("join reply failed", zap.Error(err))
	}
}

func (s *Sender) telegramChats(session *domain.Session) []int64 {
	var chats []int64
	for _, p := range session.Players {
		if p.Source != domain.SourceTelegram {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(p.ID, "tg:"), 10, 64)
		if err != nil {
			continue
		}
		chats = append(chats, id)
	}
	return chats
}

func chatPlayerID(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// answerCallback packs an answer into callback data, "ans|CODE|index|letter".
// Telegram caps callback data at 64 bytes; quiz codes are short so this fits.
func answerCallback(quizCode string, questionIndex int, letter string) string {
	return "ans|" + quizCode + "|" + strconv.Itoa(questionIndex) + "|" + letter
}

func parseAnswerCallback(data string) (quizCode string, questionIndex int, answer string, ok bool) {
	parts := strings.Split(data, "|")
	if len(parts) != 4 || parts[0] != "ans" {
		return "", 0, "", false
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, "", false
	}
	return parts[1], index, parts[3], true
}

func sortedOptionKeys(options map[string]string) []string {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
