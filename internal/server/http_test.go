package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/coffersTech/redlogic/internal/controller"
	"github.com/coffersTech/redlogic/internal/engine"
	"github.com/coffersTech/redlogic/internal/pkg/security"
	"github.com/coffersTech/redlogic/internal/redcap"
)

func newTestServer(t *testing.T, withKeys bool) (*APIServer, string) {
	t.Helper()
	eng := engine.New(engine.Options{Logger: zaptest.NewLogger(t)})

	var keys *controller.Store
	var secret string
	if withKeys {
		sealer, err := security.NewSealer(bytes.Repeat([]byte{3}, 32))
		require.NoError(t, err)
		keys = controller.NewStore(filepath.Join(t.TempDir(), "keys.sealed"), sealer)
		keys.Cost = bcrypt.MinCost
		secret, _, err = keys.AddKey("test")
		require.NoError(t, err)
	}
	return NewAPIServer(eng, keys, zaptest.NewLogger(t)), secret
}

func do(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestFilterParse(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	w := do(t, h, "POST", "/api/filter/parse", `{"logic":"[race(2)] = '1'"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var res struct {
		Column    string `json:"column"`
		Where     string `json:"where"`
		Canonical string `json:"canonical"`
		Condition struct {
			Operator string `json:"operator"`
		} `json:"condition"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "race___2", res.Column)
	assert.Equal(t, "=", res.Condition.Operator)
	assert.Contains(t, res.Where, "race___2")
	assert.Equal(t, "[race(2)] = '1'", res.Canonical)

	w = do(t, h, "POST", "/api/filter/parse", `{"logic":"[a] ** 2"}`, "")
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	var eb errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &eb))
	assert.Equal(t, "not a comparison", eb.Code)
	require.NotNil(t, eb.Offset)
	assert.Equal(t, 4, *eb.Offset)

	w = do(t, h, "POST", "/api/filter/parse", `[{"logic":"[a] = 1"},{"logic":"[a] = 1 or [b] = 2"}]`, "")
	require.Equal(t, http.StatusOK, w.Code)
	var batch []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	require.Len(t, batch, 2)
	assert.Equal(t, "a", batch[0]["column"])
	assert.Contains(t, batch[1]["error"], "not supported")

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/filter/parse", `{`, "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/filter/parse", `{}`, "").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, "GET", "/api/filter/parse", "", "").Code)
}

func TestMetric(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	w := do(t, h, "POST", "/api/metric", `{"spec":"RATIO(patients, studies)"}`, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var m struct {
		Action string `json:"action"`
		SQL    string `json:"sql"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "RATIO", m.Action)
	assert.Contains(t, m.SQL, "AS ratio")

	w = do(t, h, "POST", "/api/metric", `{"action":"distinct","first":"studies"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	assert.Equal(t, "SELECT COUNT(DISTINCT study_uid) FROM studies", m.SQL)

	w = do(t, h, "POST", "/api/metric", `{"action":"SUM","first":"patients","second":"studies"}`, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "only allowed with RATIO")

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/api/metric", `{}`, "").Code)
}

func TestBodyTooLarge(t *testing.T) {
	s, _ := newTestServer(t, false)
	h := s.Handler()

	big := `{"spec":"` + strings.Repeat("x", maxBody) + `"}`
	w := do(t, h, "POST", "/api/metric", big, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, h, "POST", "/api/filter/parse", `"`+strings.Repeat("a", maxBody)+`"`, "")
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = do(t, h, "POST", "/api/metric", `{"spec":`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRuleSetsAndStats(t *testing.T) {
	s, _ := newTestServer(t, false)
	s.engine.SetDictionary(redcap.NewDictionary(map[string][]string{"demo": {"age", "adult"}}))
	h := s.Handler()

	body := "rules:\n  - condition: \"[age] >= 18\"\n    changes:\n      - {field: adult, old: '', new: 1}\n"
	require.Equal(t, http.StatusCreated, do(t, h, "PUT", "/api/rulesets/adults", body, "").Code)

	bad := "rules:\n  - condition: \"[weight] > 1\"\n"
	assert.Equal(t, http.StatusUnprocessableEntity, do(t, h, "PUT", "/api/rulesets/weights", bad, "").Code)

	w := do(t, h, "GET", "/api/rulesets", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"adults"`)

	require.Equal(t, http.StatusOK, do(t, h, "GET", "/api/rulesets/adults", "", "").Code)

	do(t, h, "POST", "/api/filter/parse", `{"logic":"[age] > 1"}`, "")
	w = do(t, h, "GET", "/api/stats", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var stats struct {
		ConditionsParsed int64 `json:"conditions_parsed"`
		RuleSets         int   `json:"rule_sets"`
		DictionaryFields int   `json:"dictionary_fields"`
		Requests         int64 `json:"requests"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats.ConditionsParsed)
	assert.Equal(t, 1, stats.RuleSets)
	assert.Equal(t, 2, stats.DictionaryFields)
	assert.EqualValues(t, 6, stats.Requests)
}

func TestAuth(t *testing.T) {
	s, secret := newTestServer(t, true)
	h := s.Handler()

	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/api/health", "", "").Code)

	w := do(t, h, "GET", "/api/stats", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEmpty(t, w.Header().Get("WWW-Authenticate"))

	assert.Equal(t, http.StatusUnauthorized, do(t, h, "GET", "/api/stats", "", "rlk_wrong0000000000").Code)
	assert.Equal(t, http.StatusOK, do(t, h, "GET", "/api/stats", "", secret).Code)

	var seen string
	authed := s.AuthMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = KeyName(r.Context())
	}))
	do(t, authed, "GET", "/x", "", secret)
	assert.Equal(t, "test", seen)
}

func TestRequestIDPassthrough(t *testing.T) {
	s, _ := newTestServer(t, false)
	req := httptest.NewRequest("GET", "/api/health", nil)
	req.Header.Set("X-Request-ID", "abc")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func TestServeShutdown(t *testing.T) {
	defer goleak.VerifyNone(t)

	s, _ := newTestServer(t, false)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- s.Serve(ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	client.CloseIdleConnections()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	require.NoError(t, <-done)
}
