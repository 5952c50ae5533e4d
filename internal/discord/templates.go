package discord

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/discordgo"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/speech"
)

// historyPreview caps each turn shown by /history.
const historyPreview = 180

// progressBar renders a visual bar like ████████░░ 78%
func progressBar(value float64, width int) string {
	filled := int(value / 100 * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	empty := width - filled
	return fmt.Sprintf("%s%s %.0f%%", strings.Repeat("█", filled), strings.Repeat("░", empty), value)
}

// HistoryEmbed builds the /history embed: the most recent turns that fit,
// oldest first, and how full the history window is.
func HistoryEmbed(h *chat.History) *discordgo.MessageEmbed {
	turns := h.Turns()

	var lines []string
	size := 0
	for i := len(turns) - 1; i >= 0; i-- {
		line := fmt.Sprintf("%s %s", roleEmoji(turns[i].Role), truncate(turns[i].Text, historyPreview))
		if size+len(line)+1 > 3500 {
			break
		}
		size += len(line) + 1
		lines = append([]string{line}, lines...)
	}

	desc := strings.Join(lines, "\n")
	if desc == "" {
		desc = "Nothing yet. Say something!"
	}

	used := 0.0
	if h.Cap() > 0 {
		used = float64(h.Len()) / float64(h.Cap()) * 100
	}

	return &discordgo.MessageEmbed{
		Title:       "Conversation",
		Description: desc,
		Color:       0x5865F2,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d/%d turns  %s", h.Len(), h.Cap(), progressBar(used, 10)),
		},
		Timestamp: time.Now().Format(time.RFC3339),
	}
}

func TemplateHelp() string {
	return "**Commands**\n\n" +
		"`/clear` — Forget this conversation and attached files\n" +
		"`/tts` — Turn spoken replies on or off and pick a language\n" +
		"`/history` — Show the recent conversation\n" +
		"`/help` — This message\n\n" +
		"Ask me anything, including about government schemes. " +
		fmt.Sprintf("Attach up to %d documents (txt, pdf, docx, csv, json) ", attachment.MaxDocuments) +
		fmt.Sprintf("or %d images and I'll read them with your question. ", attachment.MaxImages) +
		"Send a WAV voice clip and I'll answer what you said."
}

func TemplateSpeech(s session.Speech) string {
	name := s.Language
	if l, ok := speech.LookupLanguage(s.Language); ok {
		name = l.Name
	}
	if !s.Enabled {
		return "\U0001F507 Spoken replies are off."
	}
	return fmt.Sprintf("\U0001F50A Spoken replies are on (%s).", name)
}

// TemplateAttached acknowledges a new attachment set that came without a
// question.
func TemplateAttached(set attachment.Set) string {
	return fmt.Sprintf("\U0001F4CE Got %s. Ask me something about them.", countFiles(set))
}

func TemplateHeard(transcript string) string {
	return fmt.Sprintf("\U0001F3A4 *%s*", transcript)
}

// ErrorReply turns a turn failure into something a user can act on.
func ErrorReply(err error) string {
	switch fault.KindOf(err) {
	case fault.KindValidation:
		return fault.Message(err)
	case fault.KindConfiguration:
		return "I'm not set up properly: " + fault.Message(err)
	case fault.KindTransport:
		return "Something went wrong talking to the AI service... try again in a moment."
	default:
		return "Something went wrong... I'll try again in a moment."
	}
}

// SplitMessage breaks text into chunks of at most limit bytes, preferring
// line breaks, then spaces, and never splitting a UTF-8 sequence.
func SplitMessage(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	var chunks []string
	for len(text) > limit {
		// a break right at the limit still fits
		window := text[:limit+1]
		cut := strings.LastIndex(window, "\n")
		if cut <= 0 {
			cut = strings.LastIndex(window, " ")
		}
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8.RuneStart(text[cut]) {
				cut--
			}
		}
		chunks = append(chunks, strings.TrimSpace(text[:cut]))
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

func countFiles(set attachment.Set) string {
	var parts []string
	if n := len(set.Documents); n > 0 {
		parts = append(parts, plural(n, "document"))
	}
	if n := len(set.Images); n > 0 {
		parts = append(parts, plural(n, "image"))
	}
	return strings.Join(parts, " and ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "…"
}

func roleEmoji(role chat.Role) string {
	if role == chat.RoleUser {
		return "\U0001F464"
	}
	return "\U0001F916"
}
