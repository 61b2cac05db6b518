// Package telegram dispatches incoming Telegram updates to the ingress
// pipeline (spec §4.1 "Ingress Gateway", §4.2 "Scenario State Machine").
// Built on the teacher's tgbotapi.Update dispatch pattern; the update loop
// itself lives in cmd/bot so both webhook and long-polling modes can share
// this Router.
package telegram

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"imageverify/api/internal/apperr"
	"imageverify/api/internal/idgen"
	"imageverify/api/internal/logging"
	"imageverify/api/internal/middleware"
	"imageverify/api/internal/model"
	"imageverify/api/internal/progress"
	"imageverify/api/internal/queue"
	"imageverify/api/internal/scenario"
	"imageverify/api/internal/ssm"
	"imageverify/api/internal/store"
	"imageverify/api/internal/validate"
)

type Router struct {
	Bot        *tgbotapi.BotAPI
	Log        *zap.Logger
	Users      *store.UserRepo
	SSM        *ssm.Store
	Middleware *middleware.Chain
	Queue      *queue.Queue
	Progress   *progress.Notifier
	Downloader *Downloader

	DailyFreeQuota  int
	QueueDepthLimit int
	MaxUploadBytes  int64
}

func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil && upd.Message.IsCommand() && upd.Message.Command() == "start":
		r.handleStart(ctx, upd.Message)
	case upd.Message != nil && len(upd.Message.Photo) > 0:
		r.handleUpload(ctx, upd.Message)
	case upd.Message != nil && upd.Message.Document != nil:
		r.handleUpload(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		r.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil && isScenarioPick(upd.Message.Text):
		r.handleScenarioPick(ctx, upd.Message)
	}
}

func (r *Router) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if err := r.SSM.Reset(ctx, msg.Chat.ID); err != nil {
		r.Log.Error("ssm reset failed", zap.Error(err))
	}
	if _, err := r.Users.GetOrCreate(ctx, msg.From.ID, msg.From.UserName, r.DailyFreeQuota); err != nil {
		r.Log.Error("user upsert failed", zap.Error(err))
	}
	st, _ := r.SSM.Get(ctx, msg.Chat.ID)
	st.Stage = ssm.StageAwaitingScenario
	if err := r.SSM.Set(ctx, msg.Chat.ID, st); err != nil {
		r.Log.Error("ssm set failed", zap.Error(err))
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, "What's going on? Choose the option that fits best.")
	out.ReplyMarkup = scenarioKeyboard()
	if _, err := r.Bot.Send(out); err != nil {
		r.Log.Error("send scenario prompt failed", zap.Error(err))
	}
}

func isScenarioPick(text string) bool {
	switch scenario.Scenario(text) {
	case scenario.AdultBlackmail, scenario.TeenagerSOS, scenario.General:
		return true
	default:
		return false
	}
}

func scenarioKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(string(scenario.AdultBlackmail))),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(string(scenario.TeenagerSOS))),
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(string(scenario.General))),
	)
}

func (r *Router) handleScenarioPick(ctx context.Context, msg *tgbotapi.Message) {
	st, err := r.SSM.Get(ctx, msg.Chat.ID)
	if err != nil || !st.CanPickScenario() {
		return
	}
	st.Scenario = scenario.Coerce(scenario.Scenario(msg.Text))

	// teenager_sos routes through a distress safety gate before it ever
	// reaches an upload prompt (spec §4.2: SelectingScenario --select
	// (teenager)--> TeenagerStopShown --ready--> TeenagerWaitingForPhoto).
	if st.Scenario == scenario.TeenagerSOS {
		st.Stage = ssm.StageTeenagerStopShown
		if err := r.SSM.Set(ctx, msg.Chat.ID, st); err != nil {
			r.Log.Error("ssm set failed", zap.Error(err))
			return
		}
		out := tgbotapi.NewMessage(msg.Chat.ID,
			"This is not your fault, and you're not alone. Before we look at the photo: a trusted adult or your local child-safety hotline can help right now. Tap below whenever you're ready to continue.")
		out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
		if _, err := r.Bot.Send(out); err != nil {
			r.Log.Error("send teenager stop prompt failed", zap.Error(err))
		}
		ready := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("I'm ready", "ready:")),
		)
		readyMsg := tgbotapi.NewMessage(msg.Chat.ID, "Ready to continue?")
		readyMsg.ReplyMarkup = ready
		if _, err := r.Bot.Send(readyMsg); err != nil {
			r.Log.Error("send ready button failed", zap.Error(err))
		}
		return
	}

	st.Stage = ssm.StageAwaitingUpload
	if err := r.SSM.Set(ctx, msg.Chat.ID, st); err != nil {
		r.Log.Error("ssm set failed", zap.Error(err))
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, "Send the photo you'd like analyzed.")
	out.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := r.Bot.Send(out); err != nil {
		r.Log.Error("send upload prompt failed", zap.Error(err))
	}
}

func (r *Router) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if strings.HasPrefix(cb.Data, "ready:") {
		r.handleReadyCallback(ctx, cb)
		return
	}
	// The router holds no Renderer, so every other callback (the
	// scenario-specific result buttons and "menu:") is only acknowledged
	// here: Renderer.HandleCallback is not invoked, no reply text is sent,
	// and the conversation state is left unchanged.
	ack := tgbotapi.NewCallback(cb.ID, "")
	if _, err := r.Bot.Request(ack); err != nil {
		r.Log.Warn("callback ack failed", zap.Error(err))
	}
}

// handleReadyCallback advances a teenager_sos conversation past the distress
// safety gate (spec §4.2: TeenagerStopShown --ready--> TeenagerWaitingForPhoto).
func (r *Router) handleReadyCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	ack := tgbotapi.NewCallback(cb.ID, "")
	if _, err := r.Bot.Request(ack); err != nil {
		r.Log.Warn("callback ack failed", zap.Error(err))
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	st, err := r.SSM.Get(ctx, chatID)
	if err != nil || !st.CanConfirmReady() {
		return
	}
	st.Stage = ssm.StageAwaitingUpload
	if err := r.SSM.Set(ctx, chatID, st); err != nil {
		r.Log.Error("ssm set failed", zap.Error(err))
		return
	}
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, "Send the photo you'd like analyzed.")); err != nil {
		r.Log.Error("send upload prompt failed", zap.Error(err))
	}
}

func (r *Router) handleUpload(ctx context.Context, msg *tgbotapi.Message) {
	log := r.Log.With(zap.String("user", logging.AnonymizeUserID(msg.From.ID)))

	st, err := r.SSM.Get(ctx, msg.Chat.ID)
	if err != nil {
		log.Error("ssm get failed", zap.Error(err))
		return
	}
	if !st.CanUpload() {
		switch st.Stage {
		case ssm.StageAwaitingScenario:
			// Legacy path (spec §4.2): an upload before any scenario was
			// picked is treated as an implicit general-scenario analysis
			// rather than rejected outright.
			st.Scenario = scenario.General
		default:
			// any --unhandled upload in legacy state--> SelectingScenario
			// with hint (spec §4.2).
			hinted := ssm.State{Stage: ssm.StageAwaitingScenario, Scenario: scenario.General}
			if err := r.SSM.Set(ctx, msg.Chat.ID, hinted); err != nil {
				log.Error("ssm set failed", zap.Error(err))
			}
			out := tgbotapi.NewMessage(msg.Chat.ID, "Let's start over — choose the option that fits best.")
			out.ReplyMarkup = scenarioKeyboard()
			if _, err := r.Bot.Send(out); err != nil {
				log.Error("send scenario hint failed", zap.Error(err))
			}
			return
		}
	}

	user, err := r.Users.GetOrCreate(ctx, msg.From.ID, msg.From.UserName, r.DailyFreeQuota)
	if err != nil {
		log.Error("user upsert failed", zap.Error(err))
		r.reply(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}

	ok, err := r.Users.TryConsumeQuota(ctx, user.UserID, r.DailyFreeQuota)
	if err != nil {
		log.Error("quota check failed", zap.Error(err))
		r.reply(msg.Chat.ID, "Something went wrong, please try again.")
		return
	}
	if !ok {
		r.reply(msg.Chat.ID, apperr.UserMessage(apperr.ErrQuotaExhausted))
		return
	}

	depth, err := r.Queue.Depth(ctx)
	if err == nil && int(depth) >= r.QueueDepthLimit {
		r.Users.RefundQuota(ctx, user.UserID)
		r.reply(msg.Chat.ID, "We're at capacity right now, please try again shortly.")
		return
	}

	fileID, preserveEXIF := pickFileID(msg)
	image, err := r.Downloader.Download(ctx, fileID)
	if err != nil {
		r.Users.RefundQuota(ctx, user.UserID)
		r.reply(msg.Chat.ID, apperr.UserMessage(fmt.Errorf("%w", apperr.ErrStoreTransient)))
		return
	}

	if _, err := validate.Image(image, r.MaxUploadBytes); err != nil {
		r.Users.RefundQuota(ctx, user.UserID)
		r.reply(msg.Chat.ID, apperr.UserMessage(err))
		return
	}

	imageSHA := idgen.ImageSHA256(image)
	if _, err := r.Middleware.Check(ctx, user.UserID, imageSHA, image); err != nil {
		r.Users.RefundQuota(ctx, user.UserID)
		r.reply(msg.Chat.ID, apperr.UserMessage(err))
		return
	}

	progressMsgID, err := r.Progress.Post(msg.Chat.ID, msg.MessageID)
	if err != nil {
		log.Error("progress post failed", zap.Error(err))
	}

	blobKey := idgen.BlobKey(user.UserID, "bin")
	if err := r.Downloader.Upload(ctx, blobKey, image); err != nil {
		r.Users.RefundQuota(ctx, user.UserID)
		r.reply(msg.Chat.ID, apperr.UserMessage(apperr.ErrStoreTransient))
		return
	}

	job := model.Job{
		JobID:           idgen.JobID(),
		UserID:          user.UserID,
		ChatID:          msg.Chat.ID,
		SourceMessageID: msg.MessageID,
		ProgressMsgID:   progressMsgID,
		BlobKey:         blobKey,
		Tier:            user.Tier,
		Scenario:        st.Scenario,
		PreserveEXIF:    preserveEXIF,
		Priority:        priorityFor(user.Tier),
		CreatedAt:       time.Now(),
	}
	if err := r.Queue.Enqueue(ctx, job); err != nil {
		r.Users.RefundQuota(ctx, user.UserID)
		log.Error("enqueue failed", zap.Error(err))
		return
	}

	st.Stage = ssm.StageProcessing
	st.JobID = job.JobID
	if err := r.SSM.Set(ctx, msg.Chat.ID, st); err != nil {
		log.Error("ssm set failed", zap.Error(err))
	}
}

func priorityFor(tier model.Tier) model.Priority {
	if tier == model.TierPro {
		return model.PriorityHigh
	}
	return model.PriorityDefault
}

// pickFileID prefers a Document over the largest Photo size when both
// appear on the same message (Telegram sends documents uncompressed,
// preserving EXIF the way a Photo attachment never does).
func pickFileID(msg *tgbotapi.Message) (fileID string, preserveEXIF bool) {
	if msg.Document != nil {
		return msg.Document.FileID, true
	}
	largest := msg.Photo[len(msg.Photo)-1]
	return largest.FileID, false
}

func (r *Router) reply(chatID int64, text string) {
	if text == "" {
		return
	}
	if _, err := r.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.Log.Error("reply send failed", zap.Error(err))
	}
}
