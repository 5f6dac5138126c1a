package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhumanklv/yandex-academy-task/config"
	"github.com/zhumanklv/yandex-academy-task/lock"
	"github.com/zhumanklv/yandex-academy-task/model"
	"github.com/zhumanklv/yandex-academy-task/storage"
	"github.com/zhumanklv/yandex-academy-task/validation"
)

func testClock() time.Time {
	return time.Date(2019, time.August, 1, 12, 0, 0, 0, time.UTC)
}

type fakeStore struct {
	imports map[int64][]model.Citizen
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{imports: map[int64][]model.Citizen{}}
}

func (s *fakeStore) CreateImport(_ context.Context, citizens []model.Citizen) (int64, error) {
	s.nextID++
	s.imports[s.nextID] = append([]model.Citizen(nil), citizens...)
	return s.nextID, nil
}

func (s *fakeStore) Citizens(_ context.Context, importID int64) ([]model.Citizen, error) {
	citizens, ok := s.imports[importID]
	if !ok {
		return nil, storage.ErrImportNotFound
	}

	sorted := append([]model.Citizen(nil), citizens...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CitizenID < sorted[j].CitizenID })
	return sorted, nil
}

func (s *fakeStore) PatchCitizen(_ context.Context, importID, citizenID int64, patch model.CitizenPatch) (model.Citizen, error) {
	citizens, ok := s.imports[importID]
	if !ok {
		return model.Citizen{}, storage.ErrCitizenNotFound
	}

	idx := -1
	for i, c := range citizens {
		if c.CitizenID == citizenID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return model.Citizen{}, storage.ErrCitizenNotFound
	}

	if patch.Relatives != nil {
		added, removed := model.RelativesDiff(citizens[idx].Relatives, *patch.Relatives)
		for _, relID := range added {
			if relID == citizenID {
				continue
			}
			relIdx := -1
			for i, c := range citizens {
				if c.CitizenID == relID {
					relIdx = i
					break
				}
			}
			if relIdx < 0 {
				return model.Citizen{}, storage.ErrUnknownRelative
			}
			citizens[relIdx].Relatives = append(citizens[relIdx].Relatives, citizenID)
		}
		for _, relID := range removed {
			for i, c := range citizens {
				if c.CitizenID != relID {
					continue
				}
				kept := citizens[i].Relatives[:0]
				for _, id := range citizens[i].Relatives {
					if id != citizenID {
						kept = append(kept, id)
					}
				}
				citizens[i].Relatives = kept
			}
		}
	}

	patch.Apply(&citizens[idx])
	return citizens[idx], nil
}

type fakeLock struct {
	contended bool
	acquired  []string
	released  []string
}

func (l *fakeLock) Acquire(_ context.Context, key string) error {
	if l.contended {
		return lock.ErrTimeout
	}
	l.acquired = append(l.acquired, key)
	return nil
}

func (l *fakeLock) Release(_ context.Context, key string) error {
	l.released = append(l.released, key)
	return nil
}

type fakeCache struct {
	entries     map[string]interface{}
	invalidated []int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]interface{}{}}
}

func (c *fakeCache) key(kind string, importID int64) string {
	return fmt.Sprintf("%s:%d", kind, importID)
}

func (c *fakeCache) Get(_ context.Context, kind string, importID int64, out interface{}) (bool, error) {
	entry, ok := c.entries[c.key(kind, importID)]
	if !ok {
		return false, nil
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return false, err
	}
	return true, json.Unmarshal(raw, out)
}

func (c *fakeCache) Put(_ context.Context, kind string, importID int64, payload interface{}) error {
	c.entries[c.key(kind, importID)] = payload
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, importID int64) error {
	c.invalidated = append(c.invalidated, importID)
	for key := range c.entries {
		if strings.HasSuffix(key, fmt.Sprintf(":%d", importID)) {
			delete(c.entries, key)
		}
	}
	return nil
}

type testEnv struct {
	router *chi.Mux
	store  *fakeStore
	lock   *fakeLock
	cache  *fakeCache
}

func setUpRouter(t *testing.T) *testEnv {
	env := &testEnv{
		store: newFakeStore(),
		lock:  &fakeLock{},
		cache: newFakeCache(),
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)

	routing := Routing{
		ServerName:   "citizend-test",
		ParentRouter: router,
		AppConfig:    config.ApplicationConfiguration{},
		Store:        env.store,
		Lock:         env.lock,
		Cache:        env.cache,
		Validator:    validation.NewWithClock(testClock),
		Now:          testClock,
	}

	router.Route("/", func(r chi.Router) {
		require.NoError(t, routing.SetupFunctionalRoutes(r))
	})

	env.router = router
	return env
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body == "" {
		reader = bytes.NewReader(nil)
	} else {
		reader = bytes.NewReader([]byte(body))
	}

	req := httptest.NewRequest(method, url, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

const twoCitizenImport = `{
	"citizens": [
		{
			"citizen_id": 1,
			"town": "Moskva",
			"street": "Lva Tolstogo",
			"building": "16k7str5",
			"apartment": 7,
			"name": "Ivanov Ivan Ivanovich",
			"birth_date": "26.12.1986",
			"gender": "male",
			"relatives": [2]
		},
		{
			"citizen_id": 2,
			"town": "Moskva",
			"street": "Lva Tolstogo",
			"building": "16k7str5",
			"apartment": 7,
			"name": "Ivanova Maria Leonidovna",
			"birth_date": "17.04.1997",
			"gender": "female",
			"relatives": [1]
		}
	]
}`

func Test_importAndListCitizens(t *testing.T) {
	env := setUpRouter(t)

	rec := env.do(t, "POST", "/imports", twoCitizenImport)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"data":{"import_id":1}}`, rec.Body.String())

	rec = env.do(t, "GET", "/imports/1/citizens", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var response struct {
		Data []model.Citizen `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Data, 2)
	assert.Equal(t, int64(1), response.Data[0].CitizenID)
	assert.Contains(t, rec.Body.String(), `"birth_date":"26.12.1986"`)
}

func Test_importRejections(t *testing.T) {
	env := setUpRouter(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		statusCode  int
	}{
		{name: "no body", body: "", statusCode: 400},
		{name: "not mutual", body: strings.Replace(twoCitizenImport, `"relatives": [1]`, `"relatives": []`, 1), statusCode: 400},
		{name: "unknown field", body: `{"citizens":[],"extra":true}`, statusCode: 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "POST", "/imports", tt.body)
			assert.Equal(t, tt.statusCode, rec.Code)
			assert.Contains(t, rec.Body.String(), "message")
		})
	}
}

func Test_importRequiresJsonContentType(t *testing.T) {
	env := setUpRouter(t)

	req := httptest.NewRequest("POST", "/imports", strings.NewReader(twoCitizenImport))
	req.Header.Set("Content-Type", "text/plain")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Content-Type")
}

func Test_citizensNotFound(t *testing.T) {
	env := setUpRouter(t)

	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/imports/99/citizens", "").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/imports/abc/citizens", "").Code)
}

func Test_patchCitizen(t *testing.T) {
	env := setUpRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/imports", twoCitizenImport).Code)

	rec := env.do(t, "PATCH", "/imports/1/citizens/1", `{"town":"Keln","relatives":[]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data model.Citizen `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, "Keln", response.Data.Town)
	assert.Empty(t, response.Data.Relatives)

	// reciprocal link must be gone from citizen 2
	citizens, err := env.store.Citizens(context.Background(), 1)
	require.NoError(t, err)
	assert.Empty(t, citizens[1].Relatives)

	// lock taken and released, cache invalidated
	assert.Equal(t, []string{"1"}, env.lock.acquired)
	assert.Equal(t, []string{"1"}, env.lock.released)
	assert.Equal(t, []int64{1}, env.cache.invalidated)
}

func Test_patchRejections(t *testing.T) {
	env := setUpRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/imports", twoCitizenImport).Code)

	tests := []struct {
		name       string
		url        string
		body       string
		statusCode int
	}{
		{name: "empty patch", url: "/imports/1/citizens/1", body: `{}`, statusCode: 400},
		{name: "citizen_id immutable", url: "/imports/1/citizens/1", body: `{"citizen_id":5}`, statusCode: 400},
		{name: "unknown citizen", url: "/imports/1/citizens/42", body: `{"town":"Keln"}`, statusCode: 404},
		{name: "unknown import", url: "/imports/9/citizens/1", body: `{"town":"Keln"}`, statusCode: 404},
		{name: "unknown relative", url: "/imports/1/citizens/1", body: `{"relatives":[42]}`, statusCode: 400},
		{name: "non-numeric citizen id", url: "/imports/1/citizens/x", body: `{"town":"Keln"}`, statusCode: 404},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, "PATCH", tt.url, tt.body)
			assert.Equal(t, tt.statusCode, rec.Code)
		})
	}
}

func Test_patchLockTimeout(t *testing.T) {
	env := setUpRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/imports", twoCitizenImport).Code)

	env.lock.contended = true
	rec := env.do(t, "PATCH", "/imports/1/citizens/1", `{"town":"Keln"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func Test_birthdays(t *testing.T) {
	env := setUpRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/imports", twoCitizenImport).Code)

	rec := env.do(t, "GET", "/imports/1/citizens/birthdays", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var response struct {
		Data map[string][]map[string]int64 `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Len(t, response.Data, 12)
	assert.Equal(t, []map[string]int64{{"citizen_id": 1, "presents": 1}}, response.Data["4"])
	assert.Equal(t, []map[string]int64{{"citizen_id": 2, "presents": 1}}, response.Data["12"])

	// second read is served from cache without touching the lock again
	locksBefore := len(env.lock.acquired)
	rec = env.do(t, "GET", "/imports/1/citizens/birthdays", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, env.lock.acquired, locksBefore)
}

func Test_birthdaysUnknownImport(t *testing.T) {
	env := setUpRouter(t)
	assert.Equal(t, http.StatusNotFound, env.do(t, "GET", "/imports/7/citizens/birthdays", "").Code)
}

func Test_percentileAge(t *testing.T) {
	env := setUpRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/imports", twoCitizenImport).Code)

	rec := env.do(t, "GET", "/imports/1/towns/stat/percentile/age", "")
	require.Equal(t, http.StatusOK, rec.Code)

	// ages on 01.08.2019: 32 and 22
	assert.JSONEq(t, `{"data":[{"town":"Moskva","p50":27,"p75":29.5,"p99":31.9}]}`, rec.Body.String())

	// cached for the next read
	assert.Contains(t, env.cache.entries, "percentile_age:1")
}

func Test_prettyPrinting(t *testing.T) {
	env := setUpRouter(t)
	require.Equal(t, http.StatusCreated, env.do(t, "POST", "/imports", twoCitizenImport).Code)

	rec := env.do(t, "GET", "/imports/1/citizens?pretty=true", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "\n  ")
}
