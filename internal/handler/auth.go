package handler

import (
    "errors"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"

    "github.com/iliyamo/showbook/internal/auth"
    "github.com/iliyamo/showbook/internal/model"
    "github.com/iliyamo/showbook/internal/repository"
    "github.com/iliyamo/showbook/internal/utils"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
    Users      repository.UserRepository
    Authn      *auth.Authenticator
    BcryptCost int
    Log        *zap.Logger
    Now        func() time.Time
}

func NewAuthHandler(users repository.UserRepository, a *auth.Authenticator, bcryptCost int, log *zap.Logger) *AuthHandler {
    return &AuthHandler{Users: users, Authn: a, BcryptCost: bcryptCost, Log: log, Now: time.Now}
}

type registerReq struct {
    Email    string `json:"email" validate:"required,email,max=255"`
    Password string `json:"password" validate:"required,min=6,max=72"`
    Username string `json:"username" validate:"required,max=100"`
    Admin    bool   `json:"admin"`
}

type loginReq struct {
    Email    string `json:"email"`
    Password string `json:"password"`
}

type loginResp struct {
    Message   string    `json:"message"`
    Token     string    `json:"token"`
    ExpiresAt time.Time `json:"expires_at"`
    ExpiresIn int       `json:"expires_in"` // seconds
    User      userView  `json:"user"`
}

type userView struct {
    ID        uint64    `json:"id"`
    Email     string    `json:"email"`
    Username  string    `json:"username"`
    Role      string    `json:"role"`
    LastLogin time.Time `json:"lastlogin"`
}

// Register handles POST /register.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return badRequest(c, "invalid body")
    }
    req.Email = strings.ToLower(strings.TrimSpace(req.Email))
    req.Username = strings.TrimSpace(req.Username)
    if err := utils.Validate(req); err != nil {
        return respond(c, h.Log, err)
    }
    hash, err := auth.HashPassword(req.Password, h.BcryptCost)
    if err != nil {
        return respond(c, h.Log, err)
    }
    role := model.RoleUser
    if req.Admin {
        role = model.RoleAdmin
    }
    now := h.Now().UTC()
    u := &model.User{Email: req.Email, PasswordHash: hash, Name: req.Username, Role: role, CreatedAt: now, LastLogin: now}
    if err := h.Users.Create(c.Request().Context(), u); err != nil {
        return respond(c, h.Log, err)
    }
    h.Log.Info("user registered", zap.Uint64("user_id", u.ID), zap.String("role", role))
    return c.JSON(http.StatusCreated, echo.Map{"message": "success", "user": viewOf(u)})
}

// Login handles POST /login/:role.  Credentials come from HTTP Basic auth
// (username is the email) or a JSON body.  The account must hold the role
// named in the path.
func (h *AuthHandler) Login(c echo.Context) error {
    role := c.Param("role")
    if !auth.ValidRole(role) {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown role"})
    }
    email, password, ok := c.Request().BasicAuth()
    if !ok {
        var req loginReq
        if err := c.Bind(&req); err != nil {
            return badRequest(c, "invalid body")
        }
        email, password = req.Email, req.Password
    }
    email = strings.ToLower(strings.TrimSpace(email))
    if email == "" || password == "" {
        return badRequest(c, "email and password required")
    }

    ctx := c.Request().Context()
    u, err := h.Users.GetByEmail(ctx, email)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
        }
        return respond(c, h.Log, err)
    }
    if !auth.VerifyPassword(u.PasswordHash, password) {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
    }
    if u.Role != role {
        return c.JSON(http.StatusForbidden, echo.Map{"error": "requires " + role})
    }

    now := h.Now().UTC()
    // the token carries the previous login time; last_login moves to now
    tok, err := h.Authn.Issue(u.Email, u.Name, u.Role, u.LastLogin, now)
    if err != nil {
        return respond(c, h.Log, err)
    }
    if err := h.Users.TouchLastLogin(ctx, u.ID, now); err != nil {
        return respond(c, h.Log, err)
    }
    u.LastLogin = now
    return c.JSON(http.StatusOK, loginResp{Message: "success", Token: tok.Raw, ExpiresAt: tok.ExpiresAt,
        ExpiresIn: int(h.Authn.TTL() / time.Second), User: viewOf(u)})
}

func viewOf(u *model.User) userView {
    return userView{ID: u.ID, Email: u.Email, Username: u.Name, Role: u.Role, LastLogin: u.LastLogin}
}
