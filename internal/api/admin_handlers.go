package api

import (
	"net/http"
	"time"

	"github.com/example/ec-checkout/internal/auth"
	"go.uber.org/zap"
)

// AdminHandlers exchanges the admin key for an access token
type AdminHandlers struct {
	jwtService *auth.JWTService
	keyHash    string
	logger     *zap.Logger
}

func NewAdminHandlers(jwtService *auth.JWTService, keyHash string, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		jwtService: jwtService,
		keyHash:    keyHash,
		logger:     logger.Named("admin"),
	}
}

// IssueToken checks the presented key and returns a token, also set as the
// access_token cookie.
func (h *AdminHandlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := decodeJSON(r, &req); err != nil || req.Key == "" {
		respondJSONError(w, "auth", "missing-fields", "key is required", http.StatusUnprocessableEntity)
		return
	}

	if !auth.CheckAdminKey(req.Key, h.keyHash) {
		h.logger.Warn("admin key rejected", zap.String("remote_addr", r.RemoteAddr))
		apiErr, _ := classifyError(auth.ErrInvalidKey)
		respondJSONError(w, "auth", apiErr.code, apiErr.name, apiErr.status)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateAccessToken("admin", auth.RoleAdmin)
	if err != nil {
		h.logger.Error("failed to sign token", zap.Error(err))
		respondJSONError(w, "auth", "internal-error", "An unexpected error occurred", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "access_token",
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteStrictMode,
	})

	respondJSON(w, http.StatusOK, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt.UTC().Format(time.RFC3339),
	})
}
