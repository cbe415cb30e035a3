// Package handlers maps the REST surface onto the auth, expense and admin
// services. Handlers decode and validate input, call one service method and
// render the result through respond.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/hongminglow/expense-be/internal/apperr"
	"github.com/hongminglow/expense-be/internal/http/respond"
	"github.com/hongminglow/expense-be/internal/middleware"
	"github.com/hongminglow/expense-be/internal/models"
	"github.com/hongminglow/expense-be/internal/storage"
)

// APIPrefix is the mount point of every versioned route.
const APIPrefix = "/api/v1"

const (
	maxBodyBytes = 1 << 20
	defaultLimit = 20
	maxLimit     = 100
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report fields by their JSON names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Guards are the middleware a route can opt into.
type Guards struct {
	Auth      middleware.Authenticator
	RateLimit func(http.Handler) http.Handler
	Debug     bool
}

// protected requires a valid access token and, when roles are given, one of
// those roles.
func (g Guards) protected(h http.HandlerFunc, roles ...models.RoleName) http.Handler {
	var next http.Handler = h
	if len(roles) > 0 {
		next = middleware.RestrictTo(g.Debug, roles...)(next)
	}
	return middleware.Protect(g.Auth, g.Debug)(next)
}

// limited applies the credential-endpoint rate limit when one is configured.
func (g Guards) limited(h http.HandlerFunc) http.Handler {
	if g.RateLimit == nil {
		return h
	}
	return g.RateLimit(h)
}

func (g Guards) fail(w http.ResponseWriter, r *http.Request, err error) {
	respond.Failure(w, r, err, g.Debug)
}

// decode reads a JSON body into dst and runs its validate tags. An empty body
// decodes as an empty object so that required-field checks stay with the
// services.
func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.New(apperr.KindValidation, http.StatusRequestEntityTooLarge, "Request body is too large.")
		}
		return apperr.Validation("Invalid JSON payload.").WithCause(err)
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return err
	}
	f := fields[0]
	var msg string
	switch f.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required.", f.Field())
	case "email":
		msg = fmt.Sprintf("%s must be a valid email address.", f.Field())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters.", f.Field(), f.Param())
	case "oneof":
		msg = fmt.Sprintf("%s must be one of: %s.", f.Field(), strings.ReplaceAll(f.Param(), " ", ", "))
	case "gt":
		msg = fmt.Sprintf("%s must be greater than %s.", f.Field(), f.Param())
	default:
		msg = fmt.Sprintf("%s is invalid.", f.Field())
	}
	return apperr.Validation(msg).WithCause(err)
}

// pathID parses the {id} wildcard as a positive integer.
func pathID(r *http.Request) (int64, error) {
	return positiveID(r.PathValue("id"), "id")
}

func positiveID(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation(fmt.Sprintf("Invalid %s.", name))
	}
	return id, nil
}

// pageParams reads page and limit from the query string.
func pageParams(r *http.Request) (storage.Page, int, error) {
	page, limit := 1, defaultLimit
	q := r.URL.Query()
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return storage.Page{}, 0, apperr.Validation("page must be a positive integer.")
		}
		page = n
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return storage.Page{}, 0, apperr.Validation("limit must be a positive integer.")
		}
		limit = min(n, maxLimit)
	}
	if page > math.MaxInt/limit {
		return storage.Page{}, 0, apperr.Validation("page is out of range.")
	}
	return storage.Page{Limit: limit, Offset: (page - 1) * limit}, page, nil
}

// currentUser returns the user resolved by the access guard.
func currentUser(r *http.Request) (models.User, error) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		return models.User{}, errors.New("handlers: route is missing the access guard")
	}
	return user, nil
}

// CookieConfig controls the refresh token cookie.
type CookieConfig struct {
	SameSite http.SameSite
	Secure   bool
}

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"

func (c CookieConfig) set(w http.ResponseWriter, token string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    token,
		Path:     APIPrefix,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func (c CookieConfig) clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     RefreshCookieName,
		Value:    "",
		Path:     APIPrefix,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	})
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
