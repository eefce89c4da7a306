package models

// NotificationPreference is a user's opt-in per channel.
type NotificationPreference struct {
	Email    bool `json:"email"`
	SMS      bool `json:"sms"`
	WhatsApp bool `json:"whatsapp"`
	Push     bool `json:"push"`
}

// DefaultPreference is used when a user never saved preferences: everything on.
func DefaultPreference() NotificationPreference {
	return NotificationPreference{Email: true, SMS: true, WhatsApp: true, Push: true}
}

// Recipient is the contact card of an alert owner.
type Recipient struct {
	UserID         string                  `json:"user_id"`
	FirstName      string                  `json:"first_name"`
	Email          string                  `json:"email,omitempty"`
	Phone          string                  `json:"phone,omitempty"`
	TelegramChatID int64                   `json:"telegram_chat_id,omitempty"`
	Preferences    *NotificationPreference `json:"preferences,omitempty"`
}

// EffectivePreference returns the saved preference or the default.
func (r *Recipient) EffectivePreference() NotificationPreference {
	if r == nil || r.Preferences == nil {
		return DefaultPreference()
	}
	return *r.Preferences
}
