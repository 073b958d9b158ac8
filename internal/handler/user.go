package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/chirp/chirp/internal/handler/dto"
	"github.com/chirp/chirp/internal/middleware"
	"github.com/chirp/chirp/internal/service"
)

// UserHandler handles HTTP requests for user operations.
type UserHandler struct {
	svc    *service.UserService
	logger *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(svc *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:    svc,
		logger: logger,
	}
}

// Register handles POST /api/v1/users.
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if err := middleware.ValidateEmail(req.Email); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
		return
	}

	user, created, err := h.svc.RegisterUser(r.Context(), req.Email)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	// Re-registering an existing email returns the existing account.
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.logger.Info("user_registered", "user_id", user.ID)
	}

	writeJSON(w, status, dto.ToUserResponse(user))
}

// Me handles GET /api/v1/users/me.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	authCtx := getAuthContext(r.Context())
	if authCtx == nil {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	user, err := h.svc.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// Get handles GET /api/v1/users/{id}.
// Users may read their own account; admins may read anyone's.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	authCtx := getAuthContext(r.Context())
	if authCtx == nil {
		h.writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		return
	}

	if id != authCtx.UserID && !authCtx.ActorIsAdmin {
		// 404 rather than 403, to not confirm the account exists
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

// handleServiceError maps user service errors to HTTP responses.
func (h *UserHandler) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		h.writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrInvalidEmail):
		h.writeError(w, http.StatusBadRequest, "INVALID_EMAIL", "Invalid email address")
	case errors.Is(err, service.ErrForbidden):
		h.writeError(w, http.StatusForbidden, "FORBIDDEN", "You are not allowed to perform this action")
	default:
		h.logger.Error("internal_error", "error", err)
		h.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// writeError writes an error response.
func (h *UserHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{
		Error: message,
		Code:  code,
	})
}
