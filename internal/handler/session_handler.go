package handler

import (
	"net/http"

	"seafood-storefront/internal/model"
	"seafood-storefront/internal/session"
)

type SessionHandler struct {
	session *session.Manager
}

func NewSessionHandler(session *session.Manager) *SessionHandler {
	return &SessionHandler{session: session}
}

type sessionView struct {
	Authenticated bool        `json:"authenticated"`
	User          *model.User `json:"user,omitempty"`
}

type messageView struct {
	Message string `json:"message"`
}

func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, ok := h.session.User(r.Context())
	if !ok {
		writeSuccess(w, http.StatusOK, sessionView{})
		return
	}
	writeSuccess(w, http.StatusOK, sessionView{Authenticated: true, User: &user})
}

func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.session.Login(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, sessionView{Authenticated: true, User: &user})
}

func (h *SessionHandler) Register(w http.ResponseWriter, r *http.Request) {
	var payload model.RegisterRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.session.Register(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	_, signedIn := h.session.User(r.Context())
	writeSuccess(w, http.StatusCreated, sessionView{Authenticated: signedIn, User: &user})
}

func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.session.Logout(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, sessionView{})
}

func (h *SessionHandler) LogoutAll(w http.ResponseWriter, r *http.Request) {
	if err := h.session.LogoutAll(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, sessionView{})
}

func (h *SessionHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ForgotPasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.session.ForgotPassword(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, messageView{Message: msg})
}

func (h *SessionHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.session.ResetPassword(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, messageView{Message: msg})
}

func (h *SessionHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ChangePasswordRequest
	if err := decodeJSON(r, &payload); err != nil {
		writeError(w, err)
		return
	}

	msg, err := h.session.ChangePassword(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, messageView{Message: msg})
}
