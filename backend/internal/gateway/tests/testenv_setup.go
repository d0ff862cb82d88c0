package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lms_backend/backend/internal/gateway"
	"lms_backend/backend/internal/shared"
	"lms_backend/backend/internal/storage/boltstore"
	"lms_backend/backend/internal/testkit"
)

// TestEnv holds all the running components for the test
type TestEnv struct {
	Router   http.Handler
	Services *gateway.Services
	Store    *boltstore.Store
	Mailer   *testkit.Mailer
}

// Envelope is the decoded response body of every route
type Envelope struct {
	Success bool                `json:"success"`
	Message string              `json:"message"`
	Data    json.RawMessage     `json:"data"`
	Errors  []shared.FieldError `json:"errors"`
}

// setupGatewayTestEnv wires the full stack on an embedded store
func setupGatewayTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	store := testkit.OpenStore(t)
	mail := testkit.NewMailer()

	cfg := &shared.Config{
		ServiceName: "lms-test",
		Environment: "test",
		Security:    shared.SecurityConfig{JWTSecret: "test-secret", JWTExpirationHours: 1, BCryptCost: 4},
		CORS: shared.CORSConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		},
		Lifecycle: shared.LifecycleConfig{
			SubmissionsLatePolicy: shared.LatePolicyStrict,
			AssignmentsLatePolicy: shared.LatePolicyAssignment,
			EventBufferSize:       64,
			EventWorkers:          1,
			PublishTimeout:        time.Second,
		},
	}

	services := gateway.NewServices(gateway.Dependencies{Store: store, Config: cfg, Mailer: mail})
	t.Cleanup(services.Close)

	return &TestEnv{
		Router:   gateway.SetupRoutes(services),
		Services: services,
		Store:    store,
		Mailer:   mail,
	}
}

// do sends a JSON request through the router and decodes the envelope
func (env *TestEnv) do(t *testing.T, method, path, token string, body interface{}) (*httptest.ResponseRecorder, Envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(jsonBody)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	env.Router.ServeHTTP(rr, req)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &envelope), "body: %s", rr.Body.String())
	return rr, envelope
}

// login logs an existing user in and returns the token
func (env *TestEnv) login(t *testing.T, email string) string {
	t.Helper()

	rr, envelope := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"identifier": email,
		"password":   testkit.DefaultPassword,
	})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

// seedAndLogin creates a user with the role and returns their token
func (env *TestEnv) seedAndLogin(t *testing.T, id, role string) (shared.User, string) {
	t.Helper()
	user := testkit.SeedUser(t, env.Store, id, role)
	return user, env.login(t, user.Email)
}

// decode unmarshals the envelope data into v
func decode(t *testing.T, envelope Envelope, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(envelope.Data, v))
}
