package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Main menu button labels. The message handler matches on these exact strings.
const (
	btnRaids    = "🔥 Ongoing Raids"
	btnSlots    = "🎯 Slots"
	btnPost     = "📤 Post"
	btnInvite   = "📨 Invite Friends"
	btnSupport  = "🎧 Support"
	btnContacts = "📱 Contacts"
	btnProfile  = "👤 Profile"
	btnReview   = "🛠️ Review Posts"
	btnCancel   = "🚫 Cancel"
)

// mainKeyboard is the persistent reply keyboard; admins get an extra review row.
func (b *Bot) mainKeyboard(userID int64) tgbotapi.ReplyKeyboardMarkup {
	rows := [][]tgbotapi.KeyboardButton{
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnRaids)),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSlots),
			tgbotapi.NewKeyboardButton(btnPost),
			tgbotapi.NewKeyboardButton(btnInvite),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnSupport),
			tgbotapi.NewKeyboardButton(btnContacts),
			tgbotapi.NewKeyboardButton(btnProfile),
		),
	}
	if b.admins[userID] {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnReview)))
	}
	keyboard := tgbotapi.NewReplyKeyboard(rows...)
	keyboard.ResizeKeyboard = true
	return keyboard
}

func cancelKeyboard() tgbotapi.ReplyKeyboardMarkup {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
	)
	keyboard.ResizeKeyboard = true
	return keyboard
}
