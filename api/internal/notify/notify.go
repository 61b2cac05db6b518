// Package notify renders the final verdict message and scenario-specific
// follow-up keyboards (spec §4.6 "Notification Renderer"). What goes on the
// keyboard — counter-measures vs. parent-help vs. stop-spread — depends on
// the job's Scenario, never on the verdict alone: a "real" photo in the
// teenager_sos scenario still gets the help keyboard, because the scenario
// describes the user's situation, not the image's authenticity.
package notify

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"imageverify/api/internal/model"
	"imageverify/api/internal/scenario"
)

type Renderer struct {
	bot      *tgbotapi.BotAPI
	geocoder *Geocoder
}

func NewRenderer(bot *tgbotapi.BotAPI) *Renderer {
	return &Renderer{bot: bot, geocoder: NewGeocoder()}
}

// Render posts the final verdict message for a completed analysis, editing
// the existing progress message rather than sending a new one.
func (r *Renderer) Render(ctx context.Context, chatID int64, progressMsgID int, scn scenario.Scenario, result model.FusionResult, signals model.DetectorSignals, analysisID string) error {
	text := r.body(ctx, scn, result, signals, analysisID)
	edit := tgbotapi.NewEditMessageText(chatID, progressMsgID, text)
	edit.ParseMode = tgbotapi.ModeMarkdown
	keyboard := r.keyboard(scn, analysisID)
	edit.ReplyMarkup = &keyboard
	if _, err := r.bot.Send(edit); err != nil {
		return fmt.Errorf("notify: render: %w", err)
	}
	return nil
}

func (r *Renderer) body(ctx context.Context, scn scenario.Scenario, result model.FusionResult, signals model.DetectorSignals, analysisID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s* (%.0f%% confidence)\n\n", humanizeVerdict(result.Verdict), result.Confidence*100)
	fmt.Fprintf(&b, "%s\n\n", result.Reason)
	fmt.Fprintf(&b, "Device: %s\n", humanizeCamera(signals))
	fmt.Fprintf(&b, "Editing software: %s\n", humanizeSoftware(signals))
	fmt.Fprintf(&b, "Captured: %s\n", humanizeCaptureTime(signals))
	if place := r.geocoder.ReverseGeocode(ctx, signals.GPS); place != "" {
		fmt.Fprintf(&b, "Location: %s\n", place)
	}
	fmt.Fprintf(&b, "\nReference: `%s`", analysisID)

	switch scn {
	case scenario.AdultBlackmail:
		b.WriteString("\n\nIf someone is threatening to share this image, you are not alone and it is not your fault.")
	case scenario.TeenagerSOS:
		b.WriteString("\n\nIf this involves a young person, a trusted adult or your local child-safety hotline can help right now.")
	}
	return b.String()
}

// keyboard builds the mandatory per-scenario action keyboard (spec §4.6);
// the button sets are exact, not illustrative — fixture S1 checks for their
// literal presence/absence.
func (r *Renderer) keyboard(scn scenario.Scenario, analysisID string) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{}

	switch scn {
	case scenario.AdultBlackmail:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧾 Get Forensic PDF", "pdf:"+analysisID)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🛡 Counter-measures", "cm:"+analysisID)),
		)
	case scenario.TeenagerSOS:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧾 Get PDF Report", "pdf:"+analysisID)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🧑‍🤝‍🧑 How to tell my parents", "parent:"+analysisID)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🚫 Stop the Spread", "stop:"+analysisID)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ What is sextortion?", "sextortion:"+analysisID)),
		)
	default:
		rows = append(rows,
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("❓ What is AI-generated content?", "aiinfo:"+analysisID)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("🔍 How to spot fake images", "spotfake:"+analysisID)),
			tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("📤 Share Result", "share:"+analysisID)),
		)
	}
	rows = append(rows, tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("⬅️ Back to Main Menu", "menu:")))
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// HandleCallback answers the scenario-specific buttons (spec §4.6 "Callback
// actions") by returning the reply text for a callback's data prefix. A
// PDF request ("pdf:") only returns an acknowledgement text; no request to
// a PDF renderer is built or sent.
func (r *Renderer) HandleCallback(cb *tgbotapi.CallbackQuery) (string, error) {
	data := cb.Data
	ack := tgbotapi.NewCallback(cb.ID, "")
	if _, err := r.bot.Request(ack); err != nil {
		return "", fmt.Errorf("notify: ack callback: %w", err)
	}

	switch {
	case strings.HasPrefix(data, "cm:"):
		return "Counter-measures: document everything, do not engage with the sender, and report the account to the platform. StopNCII.org and the FBI's IC3 can help escalate this.", nil
	case strings.HasPrefix(data, "parent:"):
		return "It can help to show them this exact message and explain what happened calmly — you are not in trouble, and this is not your fault.", nil
	case strings.HasPrefix(data, "stop:"):
		return "Report the image to the platform it was shared on and ask the recipient to delete it. NCMEC's Take It Down service can help remove it from participating platforms.", nil
	case strings.HasPrefix(data, "sextortion:"):
		return "Sextortion is when someone threatens to share real or fake intimate images unless you pay them or send more images. It is a crime, and reporting it is the safest next step.", nil
	case strings.HasPrefix(data, "aiinfo:"):
		return "AI-generated images are produced by models trained on large image datasets; they often leave subtle statistical and metadata traces this analysis looks for.", nil
	case strings.HasPrefix(data, "spotfake:"):
		return "Look for inconsistent lighting/shadows, warped backgrounds or hands, implausible reflections, and metadata that doesn't match the claimed camera.", nil
	case strings.HasPrefix(data, "share:"):
		return "Forward this message, or share the reference number shown above, to let someone else verify the same result.", nil
	case strings.HasPrefix(data, "pdf:"):
		return "A detailed PDF report has been requested and will be delivered separately.", nil
	case strings.HasPrefix(data, "menu:"):
		return "Send /start to begin a new analysis.", nil
	default:
		return "", nil
	}
}
