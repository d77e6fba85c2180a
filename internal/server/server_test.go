package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lextransition/internal/index"
	"lextransition/internal/mapping"
	"lextransition/internal/models"
	"lextransition/internal/resolver"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeAnswerer struct {
	question string
	doc      resolver.Document
}

func (f *fakeAnswerer) Ask(ctx context.Context, question string) models.Answer {
	f.question = question
	return models.Answer{Question: question, Text: "BNS 103 replaces IPC 302. [1]", Status: models.StatusDone}
}

func (f *fakeAnswerer) AnalyzeDocument(ctx context.Context, doc resolver.Document, question string) models.Answer {
	f.doc = doc
	f.question = question
	return models.Answer{Question: question, Status: models.StatusFallback, Reason: models.ReasonUngrounded}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestRouter(t *testing.T) (*gin.Engine, *fakeAnswerer, *index.Index) {
	t.Helper()
	table, err := mapping.Default()
	require.NoError(t, err)

	sec := models.NewSectionID(models.BNS, "103", "")
	b := index.NewBuilder()
	require.NoError(t, b.Add(models.Chunk{
		ID:         "bns-103",
		Text:       "Whoever commits murder shall be punished with death.",
		Embedding:  []float64{1, 0},
		Provenance: models.Provenance{Act: models.BNS.Title(), Section: &sec, Page: 31},
	}))
	idx := index.New()
	idx.Publish(b.BuildVersion("v1"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "lextransition_test_total", Help: "test"}))

	fa := &fakeAnswerer{}
	return NewRouter(Deps{Answerer: fa, Table: table, Index: idx, Gatherer: reg}), fa, idx
}

func do(t *testing.T, r http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestHealth(t *testing.T) {
	r, _, _ := newTestRouter(t)
	w, _ := do(t, r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "v1", body["snapshot"])
	assert.EqualValues(t, 1, body["chunks"])
}

func TestRequestIDHeader(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, _ := do(t, r, http.MethodGet, "/health", "")
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "6f1c2a52-5d0e-4b8e-9a43-1f0d7c3e2b19")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "6f1c2a52-5d0e-4b8e-9a43-1f0d7c3e2b19", w.Header().Get(RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	r, _, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lextransition_test_total")
}

func TestAsk(t *testing.T) {
	r, fa, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/ask", `{"question":"  What replaced IPC 302?  "}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "What replaced IPC 302?", fa.question)

	var ans models.Answer
	require.NoError(t, json.Unmarshal(env.Data, &ans))
	assert.Equal(t, models.StatusDone, ans.Status)
	assert.Contains(t, string(env.Data), `"grounding_status":"DONE"`)
}

func TestAskRejectsBadInput(t *testing.T) {
	r, _, _ := newTestRouter(t)

	for _, body := range []string{`{}`, `not json`, `{"question":"   "}`} {
		w, env := do(t, r, http.MethodPost, "/api/ask", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.False(t, env.Success)
		assert.Equal(t, "INVALID_REQUEST", env.Error.Code)
	}
}

func TestAnalyzeDocument(t *testing.T) {
	r, fa, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/documents/analyze",
		`{"text":"FIR under s. 302","char_confidence":[1,1,1,0.4],"question":"What applies?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)
	assert.Equal(t, "FIR under s. 302", fa.doc.Text)
	assert.Equal(t, []float64{1, 1, 1, 0.4}, fa.doc.CharConfidence)
	assert.Contains(t, string(env.Data), `"grounding_status":"FALLBACK"`)
}

func TestAnalyzeDocumentValidatesConfidence(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/documents/analyze", `{"text":"ab","char_confidence":[1,1,1]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DOCUMENT", env.Error.Code)

	w, env = do(t, r, http.MethodPost, "/api/documents/analyze", `{"text":"ab","char_confidence":[1.5]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DOCUMENT", env.Error.Code)
}

func TestResolve(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodPost, "/api/resolve", `{"text":"Accused under Section 302 IPC and Section 41A CrPC."}`)
	require.Equal(t, http.StatusOK, w.Code)

	var data struct {
		References []models.Reference `json:"references"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.References, 2)
	assert.Equal(t, "IPC:302", data.References[0].Section.Key())
	assert.Equal(t, "CrPC:41A", data.References[1].Section.Key())

	_, env = do(t, r, http.MethodPost, "/api/resolve", `{"text":"no citations here"}`)
	assert.JSONEq(t, `{"references":[]}`, string(env.Data))
}

func TestGetMapping(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/mappings/ipc/302", "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Mapping   models.MappingEntry `json:"mapping"`
		Summary   string              `json:"summary"`
		Citations []models.Citation   `json:"citations"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.Len(t, data.Mapping.New, 1)
	assert.Equal(t, "BNS:103", data.Mapping.New[0].Key())
	assert.Contains(t, data.Summary, "BNS 103")
	require.Len(t, data.Citations, 1)
	assert.Equal(t, "mapping:IPC:302", data.Citations[0].ChunkID)

	// subsections fall back to their parent section
	w, _ = do(t, r, http.MethodGet, "/api/mappings/IPC/302(1)", "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetMappingErrors(t *testing.T) {
	r, _, _ := newTestRouter(t)

	tests := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/mappings/IPC/abc", http.StatusBadRequest, "INVALID_SECTION"},
		{"/api/mappings/IPC/998", http.StatusNotFound, "NOT_FOUND"},
		{"/api/mappings/XYZ/302", http.StatusBadRequest, "INVALID_SECTION"},
		{"/api/mappings/BNS/103", http.StatusBadRequest, "INVALID_SECTION"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w, env := do(t, r, http.MethodGet, tt.path, "")
			assert.Equal(t, tt.status, w.Code)
			assert.False(t, env.Success)
			assert.Equal(t, tt.code, env.Error.Code)
			if tt.status == http.StatusNotFound {
				assert.Equal(t, "no mapping for IPC 998: not found", env.Error.Message)
			}
		})
	}
}

func TestPredecessors(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w, env := do(t, r, http.MethodGet, "/api/sections/BNS/103/predecessors", "")
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Predecessors []models.SectionID    `json:"predecessors"`
		Mappings     []models.MappingEntry `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &data))
	require.NotEmpty(t, data.Predecessors)
	assert.Equal(t, "IPC:302", data.Predecessors[0].Key())
	assert.Len(t, data.Mappings, len(data.Predecessors))

	_, env = do(t, r, http.MethodGet, "/api/sections/BNS/999/predecessors", "")
	assert.Contains(t, string(env.Data), `"predecessors":[]`)

	w, env = do(t, r, http.MethodGet, "/api/sections/IPC/302/predecessors", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_SECTION", env.Error.Code)
}

func TestListMappingsAndCategories(t *testing.T) {
	r, _, _ := newTestRouter(t)

	_, env := do(t, r, http.MethodGet, "/api/mappings", "")
	var all struct {
		Count    int                   `json:"count"`
		Mappings []models.MappingEntry `json:"mappings"`
		Metadata struct {
			Version string `json:"version"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &all))
	assert.Equal(t, len(all.Mappings), all.Count)
	assert.Equal(t, "2024.07", all.Metadata.Version)

	_, env = do(t, r, http.MethodGet, "/api/mappings?category=Hurt", "")
	var hurt struct {
		Mappings []models.MappingEntry `json:"mappings"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &hurt))
	require.NotEmpty(t, hurt.Mappings)
	assert.Less(t, len(hurt.Mappings), all.Count)
	for _, e := range hurt.Mappings {
		assert.Equal(t, "hurt", e.Category)
	}

	_, env = do(t, r, http.MethodGet, "/api/mappings?category=nothing", "")
	assert.Contains(t, string(env.Data), `"mappings":[]`)

	_, env = do(t, r, http.MethodGet, "/api/categories", "")
	var cats struct {
		Categories []struct {
			Name  string `json:"name"`
			Count int    `json:"count"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &cats))
	total := 0
	for _, c := range cats.Categories {
		assert.Positive(t, c.Count)
		total += c.Count
	}
	assert.LessOrEqual(t, total, all.Count)
}

func TestIndexStats(t *testing.T) {
	r, _, _ := newTestRouter(t)

	_, env := do(t, r, http.MethodGet, "/api/index/stats", "")
	var stats index.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, "v1", stats.Version)
	assert.Equal(t, 1, stats.Chunks)
	assert.Equal(t, 2, stats.Dimensions)
}
