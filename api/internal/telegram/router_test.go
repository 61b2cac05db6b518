package telegram

import (
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"

	"imageverify/api/internal/model"
)

func TestIsScenarioPick(t *testing.T) {
	assert.True(t, isScenarioPick("adult_blackmail"))
	assert.True(t, isScenarioPick("teenager_sos"))
	assert.True(t, isScenarioPick("general"))
	assert.False(t, isScenarioPick("whatever"))
}

func TestPickFileID_PrefersDocument(t *testing.T) {
	msg := &tgbotapi.Message{
		Document: &tgbotapi.Document{FileID: "doc-1"},
		Photo:    []tgbotapi.PhotoSize{{FileID: "photo-1"}},
	}
	id, preserve := pickFileID(msg)
	assert.Equal(t, "doc-1", id)
	assert.True(t, preserve)
}

func TestPickFileID_FallsBackToLargestPhoto(t *testing.T) {
	msg := &tgbotapi.Message{
		Photo: []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}},
	}
	id, preserve := pickFileID(msg)
	assert.Equal(t, "large", id)
	assert.False(t, preserve)
}

func TestPriorityFor(t *testing.T) {
	assert.Equal(t, model.PriorityHigh, priorityFor(model.TierPro))
	assert.Equal(t, model.PriorityDefault, priorityFor(model.TierFree))
}
