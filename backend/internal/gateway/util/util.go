package util

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5/middleware"

	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/telemetry"
)

// Response is the single envelope every route returns
type Response struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Data    interface{}         `json:"data,omitempty"`
	Errors  []shared.FieldError `json:"errors,omitempty"`
}

var (
	reporterMu sync.RWMutex
	reporter   telemetry.Reporter
)

// SetReporter installs the sink for unclassified (500) errors
func SetReporter(r telemetry.Reporter) {
	reporterMu.Lock()
	defer reporterMu.Unlock()
	reporter = r
}

func currentReporter() telemetry.Reporter {
	reporterMu.RLock()
	defer reporterMu.RUnlock()
	return reporter
}

// WriteJSON writes a success envelope around data
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	write(w, status, Response{Success: true, Data: data})
}

// WriteMessage writes a success envelope with a message and optional data
func WriteMessage(w http.ResponseWriter, status int, message string, data interface{}) {
	write(w, status, Response{Success: true, Message: message, Data: data})
}

// WriteJSONError writes a failure envelope
func WriteJSONError(w http.ResponseWriter, status int, message string, fields ...shared.FieldError) {
	log.Printf("HTTP Error %d: %s", status, message)
	write(w, status, Response{Success: false, Message: message, Errors: fields})
}

func write(w http.ResponseWriter, status int, response Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error writing JSON response: %v", err)
	}
}

// StatusFor maps a domain error kind to its HTTP status
func StatusFor(kind shared.Kind) int {
	switch kind {
	case shared.KindValidation, shared.KindConflict, shared.KindDeadlinePassed, shared.KindAttemptLimitExceeded:
		return http.StatusBadRequest
	case shared.KindUnauthorized:
		return http.StatusUnauthorized
	case shared.KindForbidden:
		return http.StatusForbidden
	case shared.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// HandleError translates domain errors to HTTP responses. Internal errors
// get a generic message; their cause is logged and reported.
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var domainErr *shared.Error
	if !errors.As(err, &domainErr) || domainErr.Kind == shared.KindInternal {
		requestID := middleware.GetReqID(r.Context())
		log.Printf("ERROR: %s %s [%s]: %v", r.Method, r.URL.Path, requestID, err)
		if rep := currentReporter(); rep != nil {
			rep.Report(err, map[string]interface{}{
				"method":     r.Method,
				"path":       r.URL.Path,
				"request_id": requestID,
			})
		}
		WriteJSONError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	WriteJSONError(w, StatusFor(domainErr.Kind), domainErr.Message, domainErr.Fields...)
}

// DecodeJSON reads a JSON request body into v
func DecodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return shared.NewError(shared.KindValidation, "Request body is empty")
		}
		return shared.Wrap(shared.KindValidation, "Invalid request payload", err)
	}
	return nil
}

// QueryInt reads an integer query parameter, returning fallback when absent
func QueryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, shared.ValidationFailed("Validation failed", shared.FieldError{
			Field:   key,
			Message: key + " must be an integer",
		})
	}
	return value, nil
}

// ExtractToken extracts the token from the Authorization header (Bearer <token>)
func ExtractToken(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errors.New("authorization header missing")
	}

	// Expect header: "Bearer <token>"
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return "", errors.New("invalid authorization header format")
	}

	return parts[1], nil
}

// RequestContext collects the caller metadata recorded in audit entries.
// RealIP middleware has already rewritten RemoteAddr when proxied.
func RequestContext(r *http.Request) shared.RequestContext {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return shared.RequestContext{IPAddress: ip, UserAgent: r.UserAgent()}
}

// ============================================================================
// Authenticated user in context
// ============================================================================

type userContextKey struct{}
type tokenContextKey struct{}

// WithUser stores the authenticated user and their token in ctx
func WithUser(ctx context.Context, user *shared.User, token string) context.Context {
	ctx = context.WithValue(ctx, userContextKey{}, user)
	return context.WithValue(ctx, tokenContextKey{}, token)
}

// CurrentUser returns the authenticated user placed by the auth middleware
func CurrentUser(r *http.Request) (shared.User, bool) {
	user, ok := r.Context().Value(userContextKey{}).(*shared.User)
	if !ok || user == nil {
		return shared.User{}, false
	}
	return *user, true
}

// CurrentToken returns the bearer token of the authenticated request
func CurrentToken(r *http.Request) string {
	token, _ := r.Context().Value(tokenContextKey{}).(string)
	return token
}
