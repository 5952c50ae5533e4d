package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/brain"
	"github.com/moorebrett0/vernacular/internal/chat"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/tools"
)

// recorder stands in for the bot and keeps every message sent.
type recorder struct {
	mu   sync.Mutex
	sent []string
}

func (r *recorder) StripMention(text string) string {
	return strings.TrimSpace(strings.ReplaceAll(text, "<@bot>", ""))
}

func (r *recorder) SendMessage(channelID, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, text)
}

func (r *recorder) SendAudio(channelID string, audio []byte) error { return nil }

func (r *recorder) Typing(channelID string) {}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.sent...)
}

// echoProvider answers every request with a fixed reply.
type echoProvider struct {
	mu       sync.Mutex
	requests []brain.Request
}

func (p *echoProvider) Name() string { return "echo" }

func (p *echoProvider) Converse(ctx context.Context, req brain.Request) (*brain.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(req.Messages) == 0 {
		return nil, errors.New("no messages")
	}
	return &brain.Response{
		Message:    chat.Message{Role: chat.RoleAssistant, Blocks: []chat.Block{chat.TextBlock("Here is what I found.")}},
		StopReason: chat.StopEndTurn,
	}, nil
}

type routerFixture struct {
	router    *Router
	out       *recorder
	provider  *echoProvider
	sessions  *session.Store
	files     *httptest.Server
	downloads atomic.Int32
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	f := &routerFixture{out: &recorder{}, provider: &echoProvider{}}
	f.files = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.downloads.Add(1)
		w.Write([]byte("scheme notes"))
	}))
	t.Cleanup(f.files.Close)

	f.sessions = session.NewStore(10, "hi-IN")
	f.router = &Router{
		out:         f.out,
		brain:       brain.NewWithProvider(f.provider, tools.New(nil, time.Second), brain.Config{}),
		sessions:    f.sessions,
		http:        f.files.Client(),
		turnTimeout: 5 * time.Second,
	}
	return f
}

func (f *routerFixture) message(content string, atts ...*discordgo.MessageAttachment) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID:   "chan",
		Author:      &discordgo.User{ID: "user"},
		Content:     content,
		Attachments: atts,
	}}
}

func (f *routerFixture) file(name, contentType string, size int) *discordgo.MessageAttachment {
	return &discordgo.MessageAttachment{
		Filename:    name,
		ContentType: contentType,
		Size:        size,
		URL:         f.files.URL + "/" + name,
	}
}

func (f *routerFixture) session() *session.Session {
	return f.sessions.Get(sessionKey("chan", "user"))
}

func TestHandleMessageAttachmentOnlyIsNotSubmitted(t *testing.T) {
	f := newRouterFixture(t)
	notes := f.file("notes.txt", "text/plain", len("scheme notes"))

	f.router.HandleMessage(f.message("<@bot>", notes))
	assert.Empty(t, f.provider.requests)
	require.Len(t, f.out.messages(), 1)
	assert.Contains(t, f.out.messages()[0], "Ask me something")
	assert.Equal(t, 1, f.session().Attachments().Len())

	// the same file again is neither announced nor submitted
	f.router.HandleMessage(f.message("", notes))
	assert.Empty(t, f.provider.requests)
	assert.Len(t, f.out.messages(), 1)

	f.router.HandleMessage(f.message("<@bot> what does this cover?"))
	require.Len(t, f.provider.requests, 1)
	msgs := f.provider.requests[0].Messages
	assert.Equal(t, 1, msgs[len(msgs)-1].Count(chat.KindDocument), "stored file rides along with the prompt")
	assert.Equal(t, "Here is what I found.", f.out.messages()[1])
	assert.Equal(t, 2, f.session().History.Len())
}

func TestHandleMessageRejectsBadFileBeforeStoring(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleMessage(f.message("what is this?", f.file("setup.exe", "application/octet-stream", 12)))
	assert.Empty(t, f.provider.requests)
	assert.Equal(t, []string{"Unsupported document format: exe"}, f.out.messages())
	assert.True(t, f.session().Attachments().Empty())
	assert.Zero(t, f.session().History.Len())
}

func TestHandleMessageOversizeNotDownloaded(t *testing.T) {
	f := newRouterFixture(t)

	f.router.HandleMessage(f.message("summarise", f.file("big.pdf", "application/pdf", attachment.MaxDocumentSize+1)))
	assert.Zero(t, f.downloads.Load())
	assert.Empty(t, f.provider.requests)
	assert.Equal(t, []string{"Document 'big.pdf' exceeds 4.5MB limit."}, f.out.messages())
	assert.True(t, f.session().Attachments().Empty())
}
