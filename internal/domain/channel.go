package domain

// smartSMSThresholdDays: reminders at least this many days before the due
// date go out as SMS; anything closer, on the due date, or overdue gets a
// call.
const smartSMSThresholdDays = 5

// AssignChannel maps a reminder's temporal offset and the user's policy to a
// delivery channel. Called once at reminder creation; the result is immutable
// afterwards. Unrecognized types fail safe toward voice.
func AssignChannel(reminderType ReminderType, customOffset int, settings ReminderSettings) Channel {
	if !settings.SmartMode {
		if settings.ManualChannel.IsValid() {
			return settings.ManualChannel
		}
		return ChannelVoice
	}

	if !reminderType.IsValid() {
		return ChannelVoice
	}

	offset := reminderType.OffsetDays(customOffset)
	if offset <= -smartSMSThresholdDays {
		return ChannelSMS
	}
	return ChannelVoice
}
