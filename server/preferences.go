package server

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"slipguard/settings"
	"slipguard/validation"
)

type favoriteResponse struct {
	Token    string `json:"token"`
	Favorite bool   `json:"favorite"`
}

func (s *Server) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Settings())
}

// PatchSettings applies a partial settings document keyed by setting name.
func (s *Server) PatchSettings(w http.ResponseWriter, r *http.Request) {
	var fields map[string]json.RawMessage
	if !decodeJSON(w, r, &fields) {
		return
	}
	updated, err := s.settings.UpdateSettings(fields)
	switch {
	case errors.Is(err, settings.ErrUnknownSetting), errors.Is(err, settings.ErrInvalidSetting):
		writeError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		writeError(w, http.StatusBadRequest, "invalid setting value: "+err.Error())
	default:
		writeJSON(w, http.StatusOK, updated)
	}
}

func (s *Server) ResetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.settings.Reset())
}

func (s *Server) ListFavorites(w http.ResponseWriter, r *http.Request) {
	favorites := s.favorites.List()
	out := make([]string, len(favorites))
	for i, token := range favorites {
		out[i] = token.Hex()
	}
	writeJSON(w, http.StatusOK, out)
}

// ToggleFavorite flips the starred state of {address}.
func (s *Server) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "address")
	if result := validation.ValidateAddress(raw); !result.IsValid {
		writeJSON(w, http.StatusBadRequest, result)
		return
	}
	token := common.HexToAddress(raw)
	favorite, err := s.favorites.Toggle(token)
	if err != nil {
		s.logger.Warn("failed to save favorites", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save favorites")
		return
	}
	writeJSON(w, http.StatusOK, favoriteResponse{Token: token.Hex(), Favorite: favorite})
}

func (s *Server) GetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]settings.Theme{"theme": settings.LoadTheme(s.preferences)})
}

func (s *Server) PutTheme(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Theme settings.Theme `json:"theme"`
	}
	if !decodeJSON(w, r, &body) {
		return
	}
	if !body.Theme.Valid() {
		writeError(w, http.StatusBadRequest, "unknown theme")
		return
	}
	if err := settings.SaveTheme(s.preferences, body.Theme); err != nil {
		s.logger.Warn("failed to save theme", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to save theme")
		return
	}
	writeJSON(w, http.StatusOK, map[string]settings.Theme{"theme": body.Theme})
}
