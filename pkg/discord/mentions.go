package discord

import "strings"

// StripMentions removes both mention encodings for the bot's own id
// (plain <@id> and with-nickname <@!id>) and collapses the remaining
// whitespace to single spaces.
func StripMentions(content, botID string) string {
	content = strings.ReplaceAll(content, "<@"+botID+">", "")
	content = strings.ReplaceAll(content, "<@!"+botID+">", "")
	return strings.Join(strings.Fields(content), " ")
}
