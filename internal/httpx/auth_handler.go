package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cravier/sweetshop/internal/auth"
	"github.com/cravier/sweetshop/internal/users"
)

type AuthHandler struct {
	Auth *auth.Service
}

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResp struct {
	User  userResp `json:"user"`
	Token string   `json:"token"`
}

type userResp struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

func (h *AuthHandler) Register(r *chi.Mux) {
	r.Post("/api/auth/register", h.register)
	r.Post("/api/auth/login", h.login)
}

func (h *AuthHandler) register(w http.ResponseWriter, r *http.Request) {
	var req registerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sess, err := h.Auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrMissingFields):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrEmailTaken):
			writeError(w, http.StatusBadRequest, "user already exists")
		default:
			writeError(w, http.StatusInternalServerError, "registration failed")
		}
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResp(sess))
}

func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req loginReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	sess, err := h.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrBadCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResp(sess))
}

func toSessionResp(s *auth.Session) sessionResp {
	return sessionResp{User: toUserResp(s.User), Token: s.Token}
}

func toUserResp(u *users.User) userResp {
	return userResp{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
}
