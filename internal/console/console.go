package console

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/moorebrett0/vernacular/internal/attachment"
	"github.com/moorebrett0/vernacular/internal/brain"
	"github.com/moorebrett0/vernacular/internal/fault"
	"github.com/moorebrett0/vernacular/internal/session"
	"github.com/moorebrett0/vernacular/internal/speech"
)

// Submitter runs one conversation turn for a session.
type Submitter interface {
	Submit(ctx context.Context, sess *session.Session, prompt string) (*brain.Reply, error)
}

// Speech is the voice bridge used by /voice and spoken replies.
type Speech interface {
	Configured() bool
	SpeechToText(ctx context.Context, audio []byte) (string, error)
	TextToSpeech(ctx context.Context, text, language string) ([]byte, error)
}

// Console is a terminal chat loop over a single session.
type Console struct {
	in       *bufio.Reader
	out      io.Writer
	brain    Submitter
	sess     *session.Session
	speech   Speech // nil when voice is disabled
	audioDir string // where spoken replies are written

	replies int
}

// New creates a console reading commands from in and writing to out.
func New(in io.Reader, out io.Writer, b Submitter, sess *session.Session, sp Speech, audioDir string) *Console {
	if audioDir == "" {
		audioDir = os.TempDir()
	}
	return &Console{
		in:       bufio.NewReader(in),
		out:      out,
		brain:    b,
		sess:     sess,
		speech:   sp,
		audioDir: audioDir,
	}
}

// Run reads lines until /quit, end of input or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	c.println("  type a message, or /help for commands")
	c.println()

	for {
		if ctx.Err() != nil {
			return nil
		}
		c.print("  > ")
		line, err := c.in.ReadString('\n')
		line = strings.TrimSpace(line)
		if line != "" {
			if quit := c.handle(ctx, line); quit {
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.println()
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}
	}
}

// handle processes one input line and reports whether to stop.
func (c *Console) handle(ctx context.Context, line string) bool {
	if !strings.HasPrefix(line, "/") {
		c.ask(ctx, line)
		return false
	}

	cmd, rest, _ := strings.Cut(line, " ")
	args := strings.Fields(rest)

	switch cmd {
	case "/quit", "/exit":
		c.println("  bye.")
		return true
	case "/help":
		c.printHelp()
	case "/clear":
		c.sess.Reset()
		c.println("  conversation cleared.")
	case "/history":
		c.printHistory()
	case "/attach":
		c.attach(args)
	case "/detach":
		c.sess.ClearAttachments()
		c.println("  attachments removed.")
	case "/voice":
		c.voice(ctx, args)
	case "/tts":
		c.tts(args)
	default:
		c.printf("  unknown command %s, try /help\n", cmd)
	}
	return false
}

func (c *Console) ask(ctx context.Context, prompt string) {
	reply, err := c.brain.Submit(ctx, c.sess, prompt)
	if err != nil {
		slog.Debug("console: turn failed", "err", err)
		c.printf("  ! %s\n", errorText(err))
		return
	}
	c.println()
	for _, line := range strings.Split(reply.Text, "\n") {
		c.printf("  %s\n", line)
	}
	c.println()
	c.speak(ctx, reply.Text)
}

func (c *Console) speak(ctx context.Context, text string) {
	pref := c.sess.Speech()
	if !pref.Enabled || c.speech == nil {
		return
	}
	audio, err := c.speech.TextToSpeech(ctx, text, pref.Language)
	if err != nil {
		c.printf("  ! couldn't read that aloud: %v\n", err)
		return
	}
	c.replies++
	path := filepath.Join(c.audioDir, fmt.Sprintf("reply-%d-%d.wav", time.Now().Unix(), c.replies))
	if err := os.WriteFile(path, audio, 0o644); err != nil {
		c.printf("  ! couldn't save audio: %v\n", err)
		return
	}
	c.printf("  \U0001F50A %s\n", path)
}

// attach adds files to the session's current attachments.
func (c *Console) attach(paths []string) {
	if len(paths) == 0 {
		c.println("  usage: /attach <file> [file...]")
		return
	}

	set := c.sess.Attachments()
	set.Documents = append([]attachment.Upload(nil), set.Documents...)
	set.Images = append([]attachment.Upload(nil), set.Images...)
	for _, p := range paths {
		up, image, err := loadUpload(p)
		if err != nil {
			c.printf("  ! %v\n", err)
			return
		}
		if image {
			set.Images = append(set.Images, up)
		} else {
			set.Documents = append(set.Documents, up)
		}
	}

	if _, err := attachment.Normalize("", set); err != nil {
		c.printf("  ! %s\n", errorText(err))
		return
	}
	if c.sess.ObserveAttachments(set) {
		c.printf("  attached: %d document(s), %d image(s). ask away.\n", len(set.Documents), len(set.Images))
	}
}

func (c *Console) voice(ctx context.Context, args []string) {
	if len(args) != 1 {
		c.println("  usage: /voice <clip.wav>")
		return
	}
	if c.speech == nil || !c.speech.Configured() {
		c.println("  ! voice input needs SARVAM_API_KEY")
		return
	}
	audio, err := os.ReadFile(args[0])
	if err != nil {
		c.printf("  ! %v\n", err)
		return
	}
	transcript, err := c.speech.SpeechToText(ctx, audio)
	if err != nil {
		c.printf("  ! couldn't transcribe: %v\n", err)
		return
	}
	c.printf("  \U0001F3A4 %s\n", transcript)
	c.ask(ctx, transcript)
}

func (c *Console) tts(args []string) {
	if len(args) == 0 {
		pref := c.sess.Speech()
		c.printf("  spoken replies: %s (%s)\n", onOff(pref.Enabled), pref.Language)
		return
	}

	var enabled bool
	switch strings.ToLower(args[0]) {
	case "on":
		enabled = true
	case "off":
	default:
		c.println("  usage: /tts on|off [language]")
		return
	}
	if enabled && (c.speech == nil || !c.speech.Configured()) {
		c.println("  ! spoken replies need SARVAM_API_KEY")
		return
	}

	lang := ""
	if len(args) > 1 {
		l, ok := speech.LookupLanguage(strings.Join(args[1:], " "))
		if !ok {
			c.printf("  ! unknown language %q, try one of: %s\n", args[1], languageCodes())
			return
		}
		lang = l.Code
	}
	c.sess.SetSpeech(enabled, lang)
	pref := c.sess.Speech()
	c.printf("  spoken replies: %s (%s)\n", onOff(pref.Enabled), pref.Language)
}

func (c *Console) printHistory() {
	turns := c.sess.History.Turns()
	if len(turns) == 0 {
		c.println("  nothing yet.")
		return
	}
	for _, t := range turns {
		c.printf("  [%s] %s\n", t.Role, t.Text)
	}
}

func (c *Console) printHelp() {
	c.println("  /attach <file>...   offer documents or images with your next questions")
	c.println("  /detach             drop attached files")
	c.println("  /voice <clip.wav>   ask with a voice clip")
	c.println("  /tts on|off [lang]  speak replies (e.g. /tts on ta-IN)")
	c.println("  /history            show the conversation")
	c.println("  /clear              start over")
	c.println("  /quit               leave")
}

// loadUpload reads a local file into an upload. Image extensions become
// images; anything else is offered as a document.
func loadUpload(path string) (attachment.Upload, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return attachment.Upload{}, false, err
	}
	name := filepath.Base(path)
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

	up := attachment.Upload{
		Name:    name,
		Size:    int64(len(data)),
		Content: bytes.NewReader(data),
	}
	switch ext {
	case "png", "jpg", "jpeg", "gif", "webp", "bmp":
		up.MIME = "image/" + ext
		return up, true, nil
	}
	return up, false, nil
}

func errorText(err error) string {
	switch fault.KindOf(err) {
	case fault.KindValidation, fault.KindConfiguration:
		return fault.Message(err)
	default:
		return err.Error()
	}
}

func languageCodes() string {
	codes := make([]string, len(speech.Languages))
	for i, l := range speech.Languages {
		codes[i] = l.Code
	}
	return strings.Join(codes, ", ")
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *Console) print(s string)                 { fmt.Fprint(c.out, s) }
func (c *Console) printf(format string, a ...any) { fmt.Fprintf(c.out, format, a...) }
func (c *Console) println(a ...any)               { fmt.Fprintln(c.out, a...) }
