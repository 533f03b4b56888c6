package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/username/stocktax/src/config"
	"github.com/username/stocktax/src/logger"
	"github.com/username/stocktax/src/security"
	"github.com/username/stocktax/src/utils"
)

// AuthHandler exchanges the configured operator API key for a short-lived
// bearer token.
type AuthHandler struct {
	authService *security.AuthService
}

func NewAuthHandler(authService *security.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

type tokenRequest struct {
	APIKey string `json:"api_key"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.APIKey == "" {
		utils.SendJSONError(w, "request body must be JSON with an 'api_key' field", http.StatusBadRequest)
		return
	}

	if config.Cfg.APIKeyHash == "" {
		logger.L.Error("Token requested but API_KEY_HASH is not configured")
		utils.SendJSONError(w, "token issuance is not configured", http.StatusServiceUnavailable)
		return
	}

	if err := h.authService.CompareHashAndAPIKey(config.Cfg.APIKeyHash, req.APIKey); err != nil {
		logger.L.Warn("Rejected token request with invalid API key", "remoteAddr", r.RemoteAddr)
		utils.SendJSONError(w, "invalid API key", http.StatusUnauthorized)
		return
	}

	token, err := h.authService.GenerateToken("operator")
	if err != nil {
		logger.L.Error("Failed to generate access token", "error", err)
		utils.SendJSONError(w, "failed to generate token", http.StatusInternalServerError)
		return
	}

	utils.SendJSON(w, tokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(config.Cfg.AccessTokenExpiry.Seconds()),
	}, http.StatusOK)
}
