package discord

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runway-bot/bot"
)

type recordingRunner struct {
	mu    sync.Mutex
	cmds  []bot.Command
	reply string
}

func (r *recordingRunner) Handle(ctx context.Context, cmd bot.Command) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return r.reply
}

type recordingEditor struct {
	mu      sync.Mutex
	appID   string
	token   string
	content string
}

func (e *recordingEditor) EditOriginalResponse(ctx context.Context, appID, token, content string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appID, e.token, e.content = appID, token, content
	return nil
}

func signedRequest(t *testing.T, priv ed25519.PrivateKey, body string) *http.Request {
	t.Helper()
	ts := "1700000000"
	sig := ed25519.Sign(priv, []byte(ts+body))

	req := httptest.NewRequest(http.MethodPost, "/interactions", bytes.NewBufferString(body))
	req.Header.Set("X-Signature-Ed25519", hex.EncodeToString(sig))
	req.Header.Set("X-Signature-Timestamp", ts)
	return req
}

func newKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return pub, priv
}

func TestVerify(t *testing.T) {
	pub, priv := newKeys(t)
	body := []byte(`{"type":1}`)
	sig := hex.EncodeToString(ed25519.Sign(priv, append([]byte("123"), body...)))

	assert.True(t, Verify(pub, sig, "123", body))
	assert.False(t, Verify(pub, sig, "124", body), "timestamp is part of the message")
	assert.False(t, Verify(pub, sig, "123", []byte(`{"type":2}`)))
	assert.False(t, Verify(pub, "zz", "123", body))
	assert.False(t, Verify(pub, "", "123", body))
	assert.False(t, Verify(nil, sig, "123", body))
}

func TestParsePublicKey(t *testing.T) {
	pub, _ := newKeys(t)

	key, err := ParsePublicKey(hex.EncodeToString(pub))
	require.NoError(t, err)
	assert.Equal(t, pub, key)

	_, err = ParsePublicKey("abcd")
	assert.Error(t, err)

	_, err = ParsePublicKey("not hex")
	assert.Error(t, err)
}

func TestInteractionRejectsBadSignature(t *testing.T) {
	pub, _ := newKeys(t)
	_, otherPriv := newKeys(t)
	runner := &recordingRunner{}
	h := NewInteractionHandler(pub, runner)

	body := `{"type":2,"data":{"name":"get_runway_images"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, otherPriv, body))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, runner.cmds, "no command should run for an unsigned request")
}

func TestInteractionRejectsGet(t *testing.T) {
	pub, _ := newKeys(t)
	h := NewInteractionHandler(pub, &recordingRunner{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/interactions", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInteractionPing(t *testing.T) {
	pub, priv := newKeys(t)
	h := NewInteractionHandler(pub, &recordingRunner{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, `{"type":1}`))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":1}`, rec.Body.String())
}

func TestInteractionCommand(t *testing.T) {
	pub, priv := newKeys(t)
	runner := &recordingRunner{reply: "No new runway images for Season 16."}
	h := NewInteractionHandler(pub, runner)

	body := `{"type":2,"token":"tok","channel_id":"c1","data":{"name":"get_runway_images","options":[{"name":"season","type":4,"value":16}]}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, body))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"type":4,"data":{"content":"No new runway images for Season 16."}}`, rec.Body.String())
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, bot.Command{Name: "get_runway_images", Season: 16}, runner.cmds[0])
}

func TestInteractionCommandWithoutSeason(t *testing.T) {
	pub, priv := newKeys(t)
	runner := &recordingRunner{reply: "ok"}
	h := NewInteractionHandler(pub, runner)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, `{"type":2,"data":{"name":"get_runway_images"}}`))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, runner.cmds, 1)
	assert.Equal(t, 0, runner.cmds[0].Season)
}

func TestInteractionCommandBadSeason(t *testing.T) {
	pub, priv := newKeys(t)
	runner := &recordingRunner{reply: "Usage"}
	h := NewInteractionHandler(pub, runner)

	body := `{"type":2,"data":{"name":"get_runway_images","options":[{"name":"season","type":4,"value":"x"}]}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, body))

	require.Len(t, runner.cmds, 1)
	assert.Equal(t, -1, runner.cmds[0].Season)
}

func TestInteractionDeferred(t *testing.T) {
	pub, priv := newKeys(t)
	runner := &recordingRunner{reply: "Posted 2 new images for Season 17 (grouped by runway theme)."}
	editor := &recordingEditor{}
	h := NewInteractionHandler(pub, runner, WithDeferredResponses(editor, "app-1"))

	body := `{"type":2,"token":"tok-9","data":{"name":"get_runway_images"}}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, body))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 5, resp["type"])

	h.Wait()

	editor.mu.Lock()
	defer editor.mu.Unlock()
	assert.Equal(t, "app-1", editor.appID)
	assert.Equal(t, "tok-9", editor.token)
	assert.Equal(t, runner.reply, editor.content)
}

func TestInteractionUnsupportedType(t *testing.T) {
	pub, priv := newKeys(t)
	h := NewInteractionHandler(pub, &recordingRunner{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, priv, `{"type":3}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
