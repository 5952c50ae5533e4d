package discord

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/brain"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/speech"
)

// MaxAudioSize bounds voice clips downloaded for transcription.
const MaxAudioSize = 25 * 1024 * 1024

// Speech is the voice bridge the router uses. It may be unconfigured.
type Speech interface {
	Configured() bool
	SpeechToText(ctx context.Context, audio []byte) (string, error)
	TextToSpeech(ctx context.Context, text, language string) ([]byte, error)
}

// messenger is the part of the bot a message turn talks through.
type messenger interface {
	StripMention(text string) string
	SendMessage(channelID, text string)
	SendAudio(channelID string, audio []byte) error
	Typing(channelID string)
}

// Router dispatches Discord messages and slash commands.
type Router struct {
	bot      *Bot
	out      messenger
	brain    *brain.Brain
	sessions *session.Store
	speech   Speech

	http        *http.Client
	turnTimeout time.Duration
}

// NewRouter creates a router and wires it to the bot.
func NewRouter(bot *Bot, b *brain.Brain, sessions *session.Store, sp Speech) *Router {
	r := &Router{
		bot:         bot,
		out:         bot,
		brain:       b,
		sessions:    sessions,
		speech:      sp,
		http:        &http.Client{Timeout: 30 * time.Second},
		turnTimeout: 3 * time.Minute, // two backend calls plus the knowledge agent
	}
	bot.SetRouter(r)
	return r
}

// HandleInteraction dispatches a slash command interaction.
func (r *Router) HandleInteraction(i *discordgo.InteractionCreate) {
	data := i.ApplicationCommandData()
	sess := r.sessions.Get(sessionKey(i.ChannelID, interactionUserID(i)))

	switch data.Name {
	case "clear":
		sess.Reset()
		r.respondEphemeral(i, "Conversation cleared. Attached files were forgotten too.")

	case "tts":
		enabled, lang := ttsOptions(data.Options)
		if enabled && (r.speech == nil || !r.speech.Configured()) {
			r.respondEphemeral(i, "Voice replies are unavailable: no speech API key is configured.")
			return
		}
		sess.SetSpeech(enabled, lang)
		r.respondEphemeral(i, TemplateSpeech(sess.Speech()))

	case "history":
		r.respondEmbed(i, HistoryEmbed(sess.History))

	case "help":
		r.respondEphemeral(i, TemplateHelp())

	default:
		r.respond(i, "Unknown command.")
	}
}

// HandleMessage runs a conversation turn for a channel message.
func (r *Router) HandleMessage(m *discordgo.MessageCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), r.turnTimeout)
	defer cancel()

	text := r.out.StripMention(m.Content)
	sess := r.sessions.Get(sessionKey(m.ChannelID, m.Author.ID))
	sess.Touch()

	in, err := r.collect(ctx, m.Attachments)
	if err != nil {
		slog.Error("router: attachment download failed", "err", err)
		r.out.SendMessage(m.ChannelID, "I couldn't download your attachment. Please try again.")
		return
	}

	if in.voice != nil && text == "" {
		transcript, ok := r.transcribe(ctx, m.ChannelID, in.voice)
		if !ok {
			return
		}
		text = transcript
	}

	if !in.files.Empty() {
		// Reject bad files up front so they never stick to the session
		if _, err := attachment.Normalize(text, in.files); err != nil {
			r.out.SendMessage(m.ChannelID, ErrorReply(err))
			return
		}
		if sess.ObserveAttachments(in.files) && text == "" {
			r.out.SendMessage(m.ChannelID, TemplateAttached(in.files))
			return
		}
	}
	if text == "" {
		return
	}

	r.out.Typing(m.ChannelID)
	reply, err := r.brain.Submit(ctx, sess, text)
	if err != nil {
		slog.Error("router: turn failed", "session", sess.ID, "err", err)
		r.out.SendMessage(m.ChannelID, ErrorReply(err))
		return
	}
	r.out.SendMessage(m.ChannelID, reply.Text)
	r.speak(ctx, m.ChannelID, sess, reply.Text)
}

func (r *Router) transcribe(ctx context.Context, channelID string, audio []byte) (string, bool) {
	if r.speech == nil || !r.speech.Configured() {
		r.out.SendMessage(channelID, "Voice messages are unavailable: no speech API key is configured.")
		return "", false
	}
	transcript, err := r.speech.SpeechToText(ctx, audio)
	if err != nil {
		slog.Error("router: transcription failed", "err", err)
		r.out.SendMessage(channelID, fmt.Sprintf("I couldn't understand that voice message: %v", err))
		return "", false
	}
	r.out.SendMessage(channelID, TemplateHeard(transcript))
	return transcript, true
}

// speak attaches synthesized audio after the text reply has been sent.
func (r *Router) speak(ctx context.Context, channelID string, sess *session.Session, text string) {
	pref := sess.Speech()
	if !pref.Enabled || r.speech == nil || !r.speech.Configured() {
		return
	}
	audio, err := r.speech.TextToSpeech(ctx, text, pref.Language)
	if err == nil {
		err = r.out.SendAudio(channelID, audio)
	}
	if err != nil {
		slog.Warn("router: speech synthesis failed", "session", sess.ID, "err", err)
		r.out.SendMessage(channelID, fmt.Sprintf("⚠️ I couldn't read that aloud: %v", err))
	}
}

// inbound is what a message carried besides its text.
type inbound struct {
	files attachment.Set
	voice []byte
}

// collect downloads a message's attachments. Oversized files are not
// fetched; their declared size is enough for the normalizer to reject them.
func (r *Router) collect(ctx context.Context, atts []*discordgo.MessageAttachment) (inbound, error) {
	var in inbound
	for _, a := range atts {
		kind := classify(a.ContentType, a.Filename)
		if kind == kindAudio {
			if in.voice != nil || !isWAV(a.ContentType, a.Filename) || a.Size > MaxAudioSize {
				slog.Info("router: skipping audio attachment", "name", a.Filename, "type", a.ContentType)
				continue
			}
			data, err := r.download(ctx, a.URL, MaxAudioSize)
			if err != nil {
				return in, err
			}
			in.voice = data
			continue
		}

		limit := int64(attachment.MaxDocumentSize)
		if kind == kindImage {
			limit = attachment.MaxImageSize
		}
		up := attachment.Upload{Name: a.Filename, MIME: a.ContentType, Size: int64(a.Size)}
		if up.Size <= limit {
			data, err := r.download(ctx, a.URL, limit)
			if err != nil {
				return in, err
			}
			up.Content = bytes.NewReader(data)
		}

		if kind == kindImage {
			in.files.Images = append(in.files.Images, up)
		} else {
			in.files.Documents = append(in.files.Documents, up)
		}
	}
	return in, nil
}

func (r *Router) download(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("download attachment: larger than %d bytes", limit)
	}
	return data, nil
}

// --- Interaction response helpers ---

func (r *Router) respond(i *discordgo.InteractionCreate, content string) {
	r.bot.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
		},
	})
}

func (r *Router) respondEmbed(i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed) {
	r.bot.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{embed},
			Flags:  discordgo.MessageFlagsEphemeral,
		},
	})
}

func (r *Router) respondEphemeral(i *discordgo.InteractionCreate, content string) {
	r.bot.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
}

// --- Classification ---

type fileKind int

const (
	kindDocument fileKind = iota
	kindImage
	kindAudio
)

func classify(contentType, filename string) fileKind {
	ct := strings.ToLower(contentType)
	switch {
	case strings.HasPrefix(ct, "audio/"):
		return kindAudio
	case strings.HasPrefix(ct, "image/"):
		return kindImage
	}
	switch strings.ToLower(path.Ext(filename)) {
	case ".wav", ".mp3", ".ogg", ".m4a":
		return kindAudio
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return kindImage
	}
	return kindDocument
}

func isWAV(contentType, filename string) bool {
	switch strings.ToLower(contentType) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return true
	}
	return strings.EqualFold(path.Ext(filename), ".wav")
}

// sessionKey scopes a conversation to one user in one channel.
func sessionKey(channelID, userID string) string {
	return channelID + ":" + userID
}

func ttsOptions(opts []*discordgo.ApplicationCommandInteractionDataOption) (enabled bool, language string) {
	for _, o := range opts {
		switch o.Name {
		case "enabled":
			enabled = o.BoolValue()
		case "language":
			if l, ok := speech.LookupLanguage(o.StringValue()); ok {
				language = l.Code
			}
		}
	}
	return enabled, language
}

func interactionUserID(i *discordgo.InteractionCreate) string {
	if i.Member != nil {
		return i.Member.User.ID
	}
	if i.User != nil {
		return i.User.ID
	}
	return ""
}
