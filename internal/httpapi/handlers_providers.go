package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/Luccama700/ai-labs/internal/secret"
)

type testConnectionRequest struct {
	KeyID string `json:"key_id"`
}

func (d Dependencies) handleTestConnection(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	adapter, ok := d.Registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown provider: "+name)
		return
	}
	var req testConnectionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	key, baseURL, ok := d.resolveKey(w, r, req.KeyID, uid)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, adapter.TestConnection(r.Context(), key, baseURL))
}

func (d Dependencies) handleListModels(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	adapter, found := d.Registry.Get(name)
	if !found {
		writeError(w, http.StatusNotFound, "unknown provider: "+name)
		return
	}

	// Without a key the static allow-list is all we can offer.
	keyID := r.URL.Query().Get("key_id")
	if keyID == "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"models":  adapter.SupportedModels(),
			"default": adapter.DefaultModel(),
		})
		return
	}
	key, baseURL, ok := d.resolveKey(w, r, keyID, uid)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"models":  adapter.FetchAvailableModels(r.Context(), key, baseURL),
		"default": adapter.DefaultModel(),
	})
}

// resolveKey loads an active credential and decrypts it. The plaintext is
// handed straight to the adapter call and never logged.
func (d Dependencies) resolveKey(w http.ResponseWriter, r *http.Request, keyID, uid string) (key, baseURL string, ok bool) {
	creds, err := d.Store.GetActiveCredentials(r.Context(), []string{keyID}, uid)
	if err != nil {
		d.Logger.Error("credential lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load key")
		return "", "", false
	}
	cred, found := creds[keyID]
	if !found {
		writeError(w, http.StatusNotFound, "API key not found or inactive")
		return "", "", false
	}
	plain, err := d.Codec.Decrypt(secret.Payload{
		Ciphertext: cred.Ciphertext,
		IV:         cred.IV,
		AuthTag:    cred.AuthTag,
	})
	if err != nil {
		d.Logger.Error("credential decryption failed", "credential_id", cred.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to decrypt key")
		return "", "", false
	}
	return plain, cred.BaseURL, true
}
