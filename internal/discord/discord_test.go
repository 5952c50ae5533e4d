package discord

import (
	"errors"
	"strings"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/fault"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/speech"
)

func TestSplitMessage(t *testing.T) {
	assert.Nil(t, SplitMessage("   ", 10))
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	chunks := SplitMessage("line one\nline two\nline three", 18)
	assert.Equal(t, []string{"line one\nline two", "line three"}, chunks)

	chunks = SplitMessage("aaaa bbbb cccc", 9)
	assert.Equal(t, []string{"aaaa bbbb", "cccc"}, chunks)
}

func TestSplitMessage_NoBreaksKeepsRunes(t *testing.T) {
	text := strings.Repeat("न", 10) // 3 bytes each
	chunks := SplitMessage(text, 7)
	require.NotEmpty(t, chunks)
	assert.Equal(t, text, strings.Join(chunks, ""))
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 7)
		assert.True(t, strings.HasPrefix(c, "न"), "chunk %q starts mid-rune", c)
	}
}

func TestSplitMessage_Limit(t *testing.T) {
	text := strings.Repeat("word ", 1000)
	for _, c := range SplitMessage(text, MessageLimit) {
		assert.LessOrEqual(t, len(c), MessageLimit)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, kindAudio, classify("audio/wav", "clip.wav"))
	assert.Equal(t, kindAudio, classify("", "voice.ogg"))
	assert.Equal(t, kindImage, classify("image/png", "a.png"))
	assert.Equal(t, kindImage, classify("", "photo.JPG"))
	assert.Equal(t, kindDocument, classify("application/pdf", "report.pdf"))
	assert.Equal(t, kindDocument, classify("", "notes"))
}

func TestIsWAV(t *testing.T) {
	assert.True(t, isWAV("audio/x-wav", "x"))
	assert.True(t, isWAV("", "clip.WAV"))
	assert.False(t, isWAV("audio/ogg", "voice-message.ogg"))
}

func TestStripMention(t *testing.T) {
	assert.Equal(t, "hello", stripMention("<@42> hello", "42"))
	assert.Equal(t, "hello", stripMention("hello <@!42>", "42"))
	assert.Equal(t, "<@7> hi", stripMention(" <@7> hi ", "42"))
	assert.Equal(t, "hi", stripMention(" hi ", ""))
}

func TestSessionKey(t *testing.T) {
	assert.Equal(t, "c1:u1", sessionKey("c1", "u1"))
	assert.NotEqual(t, sessionKey("c1", "u1"), sessionKey("c1", "u2"))
}

func TestTTSOptions(t *testing.T) {
	opts := []*discordgo.ApplicationCommandInteractionDataOption{
		{Name: "enabled", Type: discordgo.ApplicationCommandOptionBoolean, Value: true},
		{Name: "language", Type: discordgo.ApplicationCommandOptionString, Value: "ta-IN"},
	}
	enabled, lang := ttsOptions(opts)
	assert.True(t, enabled)
	assert.Equal(t, "ta-IN", lang)

	opts[1].Value = "xx-XX"
	_, lang = ttsOptions(opts)
	assert.Empty(t, lang)
}

func TestCommands(t *testing.T) {
	var names []string
	for _, c := range commands() {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"clear", "tts", "history", "help"}, names)
	assert.Len(t, commands()[1].Options[1].Choices, len(speech.Languages))
}

func TestErrorReply(t *testing.T) {
	assert.Equal(t, "Input text cannot be empty",
		ErrorReply(fault.Validation("brain.turn", "Input text cannot be empty")))
	assert.Contains(t, ErrorReply(fault.Transport("brain.claude", errors.New("503"))), "try again")
	assert.Contains(t, ErrorReply(fault.Configuration("brain", "no AI provider configured")), "no AI provider configured")
	assert.Contains(t, ErrorReply(errors.New("boom")), "Something went wrong")
}

func TestHistoryEmbed(t *testing.T) {
	h := chat.NewHistory(4)
	assert.Contains(t, HistoryEmbed(h).Description, "Nothing yet")

	h.Append(
		chat.Turn{Role: chat.RoleUser, Text: "what is PM-KISAN?"},
		chat.Turn{Role: chat.RoleAssistant, Text: "An income support scheme."},
	)
	e := HistoryEmbed(h)
	assert.Equal(t, "\U0001F464 what is PM-KISAN?\n\U0001F916 An income support scheme.", e.Description)
	assert.Contains(t, e.Footer.Text, "2/4 turns")
	assert.Contains(t, e.Footer.Text, "50%")
}

func TestTemplates(t *testing.T) {
	set := attachment.Set{Documents: make([]attachment.Upload, 2), Images: make([]attachment.Upload, 1)}
	assert.Contains(t, TemplateAttached(set), "2 documents and 1 image")

	assert.Contains(t, TemplateSpeech(session.Speech{Enabled: true, Language: "bn-IN"}), "Bengali")
	assert.Contains(t, TemplateSpeech(session.Speech{Language: "bn-IN"}), "off")
	assert.Contains(t, TemplateHelp(), "/tts")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "a b", truncate("a\n  b", 10))
	assert.Equal(t, "नम…", truncate("नमस्ते", 2))
}
