package discord

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"runway-bot/bot"
)

const (
	interactionPing               = 1
	interactionApplicationCommand = 2

	responsePong                   = 1
	responseChannelMessage         = 4
	responseDeferredChannelMessage = 5

	headerSignature          = "X-Signature-Ed25519"
	headerSignatureTimestamp = "X-Signature-Timestamp"

	maxInteractionBody            = 1 << 20
	defaultDeferredCommandTimeout = 5 * time.Minute
)

// CommandRunner executes a parsed command and returns the reply text.
type CommandRunner interface {
	Handle(ctx context.Context, cmd bot.Command) string
}

// ResponseEditor edits the reply to a deferred interaction.
type ResponseEditor interface {
	EditOriginalResponse(ctx context.Context, appID, interactionToken, content string) error
}

// Interaction is the subset of an incoming interaction the bot reads.
type Interaction struct {
	ID        string          `json:"id"`
	Type      int             `json:"type"`
	Token     string          `json:"token"`
	ChannelID string          `json:"channel_id"`
	Data      InteractionData `json:"data"`
}

// InteractionData carries the invoked command.
type InteractionData struct {
	Name    string              `json:"name"`
	Options []InteractionOption `json:"options"`
}

// InteractionOption is one supplied command parameter.
type InteractionOption struct {
	Name  string          `json:"name"`
	Type  int             `json:"type"`
	Value json.RawMessage `json:"value"`
}

type interactionResponse struct {
	Type int                      `json:"type"`
	Data *interactionResponseData `json:"data,omitempty"`
}

type interactionResponseData struct {
	Content string `json:"content"`
}

// Verify reports whether signatureHex is a valid Ed25519 signature of
// timestamp followed by body.
func Verify(publicKey ed25519.PublicKey, signatureHex, timestamp string, body []byte) bool {
	sig, err := hex.DecodeString(signatureHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	if len(publicKey) != ed25519.PublicKeySize {
		return false
	}
	msg := make([]byte, 0, len(timestamp)+len(body))
	msg = append(msg, timestamp...)
	msg = append(msg, body...)
	return ed25519.Verify(publicKey, msg, sig)
}

// ParsePublicKey decodes a hex-encoded application public key.
func ParsePublicKey(hexKey string) (ed25519.PublicKey, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	if len(key) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(key))
	}
	return ed25519.PublicKey(key), nil
}

// InteractionHandler serves the interactions endpoint.
type InteractionHandler struct {
	publicKey ed25519.PublicKey
	commands  CommandRunner

	editor          ResponseEditor
	appID           string
	deferredTimeout time.Duration
	wg              sync.WaitGroup
}

// HandlerOption configures an InteractionHandler.
type HandlerOption func(*InteractionHandler)

// WithDeferredResponses acknowledges commands immediately and edits the reply
// once the command finishes, for commands that outlast Discord's response
// window.
func WithDeferredResponses(editor ResponseEditor, appID string) HandlerOption {
	return func(h *InteractionHandler) {
		h.editor = editor
		h.appID = appID
	}
}

// NewInteractionHandler creates a handler that verifies requests against
// publicKey before running commands.
func NewInteractionHandler(publicKey ed25519.PublicKey, commands CommandRunner, opts ...HandlerOption) *InteractionHandler {
	h := &InteractionHandler{
		publicKey:       publicKey,
		commands:        commands,
		deferredTimeout: defaultDeferredCommandTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP implements http.Handler.
func (h *InteractionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxInteractionBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	if !Verify(h.publicKey, r.Header.Get(headerSignature), r.Header.Get(headerSignatureTimestamp), body) {
		slog.Warn("rejected interaction with invalid signature", "remote", r.RemoteAddr)
		http.Error(w, "invalid request signature", http.StatusUnauthorized)
		return
	}

	var in Interaction
	if err := json.Unmarshal(body, &in); err != nil {
		http.Error(w, "invalid interaction", http.StatusBadRequest)
		return
	}

	switch in.Type {
	case interactionPing:
		writeJSON(w, interactionResponse{Type: responsePong})
	case interactionApplicationCommand:
		h.handleCommand(w, r, &in)
	default:
		http.Error(w, "unsupported interaction type", http.StatusBadRequest)
	}
}

func (h *InteractionHandler) handleCommand(w http.ResponseWriter, r *http.Request, in *Interaction) {
	cmd, err := commandFromInteraction(in)
	if err != nil {
		slog.Warn("bad command options", "command", in.Data.Name, "error", err)
		cmd = bot.Command{Name: in.Data.Name, Season: -1}
	}

	slog.Info("received command", "command", cmd.Name, "season", cmd.Season, "channel_id", in.ChannelID)

	if h.editor == nil {
		reply := h.commands.Handle(r.Context(), cmd)
		writeJSON(w, interactionResponse{
			Type: responseChannelMessage,
			Data: &interactionResponseData{Content: reply},
		})
		return
	}

	writeJSON(w, interactionResponse{Type: responseDeferredChannelMessage})

	token := in.Token
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), h.deferredTimeout)
		defer cancel()

		reply := h.commands.Handle(ctx, cmd)
		if err := h.editor.EditOriginalResponse(ctx, h.appID, token, reply); err != nil {
			slog.Warn("failed to edit deferred response", "command", cmd.Name, "error", err)
		}
	}()
}

// Wait blocks until deferred commands have finished.
func (h *InteractionHandler) Wait() {
	h.wg.Wait()
}

func commandFromInteraction(in *Interaction) (bot.Command, error) {
	cmd := bot.Command{Name: in.Data.Name}
	for _, opt := range in.Data.Options {
		if opt.Name != "season" {
			continue
		}
		var season int
		if err := json.Unmarshal(opt.Value, &season); err != nil {
			return cmd, fmt.Errorf("parse season: %w", err)
		}
		if season < 1 {
			return cmd, fmt.Errorf("season must be positive, got %d", season)
		}
		cmd.Season = season
	}
	return cmd, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
