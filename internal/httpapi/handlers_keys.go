package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Luccama700/ai-labs/internal/secret"
	"github.com/Luccama700/ai-labs/internal/store"
)

type createKeyRequest struct {
	Provider string `json:"provider"`
	Label    string `json:"label"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

func (d Dependencies) handleCreateKey(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req createKeyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Provider == "" || req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "provider and api_key are required")
		return
	}
	if _, ok := d.Registry.Get(req.Provider); !ok {
		writeError(w, http.StatusBadRequest, "unknown provider: "+req.Provider)
		return
	}

	payload, err := d.Codec.Encrypt(req.APIKey)
	if err != nil {
		d.Logger.Error("key encryption failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store key")
		return
	}
	cred := store.Credential{
		ID:         uuid.NewString(),
		UserID:     uid,
		Provider:   req.Provider,
		Label:      req.Label,
		Ciphertext: payload.Ciphertext,
		IV:         payload.IV,
		AuthTag:    payload.AuthTag,
		LastFour:   secret.LastFour(req.APIKey),
		BaseURL:    req.BaseURL,
		IsActive:   true,
		CreatedAt:  time.Now().UTC(),
	}
	if err := d.Store.InsertCredential(r.Context(), cred); err != nil {
		d.Logger.Error("credential insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store key")
		return
	}
	d.Logger.Info("credential stored", "credential_id", cred.ID, "provider", cred.Provider)
	writeJSON(w, http.StatusCreated, cred)
}

func (d Dependencies) handleListKeys(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	creds, err := d.Store.ListCredentials(r.Context(), uid)
	if err != nil {
		d.Logger.Error("list credentials failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	if creds == nil {
		creds = []store.Credential{}
	}
	writeJSON(w, http.StatusOK, creds)
}

func (d Dependencies) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	if err := d.Store.DeactivateCredential(r.Context(), id, uid); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "key not found")
			return
		}
		d.Logger.Error("credential deactivation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete key")
		return
	}
	d.Logger.Info("credential deactivated", "credential_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
