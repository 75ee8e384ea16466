package weaviate

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
)

type staticEmbedder struct {
	vec []float32
	err error
}

func (e *staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return e.vec, e.err
}

// fakeWeaviate keeps objects in memory and answers the REST calls the store makes.
// GraphQL requests are delegated to graphql, which receives the raw query.
type fakeWeaviate struct {
	t       *testing.T
	mu      sync.Mutex
	objects map[string]map[string]interface{}
	queries []string
	graphql func(query string) interface{}

	batchErrors map[string]string

	// getBarrier > 0 holds each object read until that many reads arrived or a timeout passed.
	getBarrier int
	arrived    int
}

func newFakeWeaviate(t *testing.T) *fakeWeaviate {
	return &fakeWeaviate{t: t, objects: map[string]map[string]interface{}{}}
}

func (f *fakeWeaviate) start() *weaviate.Client {
	ts := httptest.NewServer(http.HandlerFunc(f.serve))
	f.t.Cleanup(ts.Close)
	client, err := weaviate.NewClient(weaviate.Config{Host: ts.Listener.Addr().String(), Scheme: "http"})
	require.NoError(f.t, err)
	return client
}

func (f *fakeWeaviate) serve(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/v1/meta":
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"version": "1.19.0"}`))

	case r.URL.Path == "/v1/batch/objects" && r.Method == http.MethodPost:
		var body struct {
			Objects []map[string]interface{} `json:"objects"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		resp := make([]map[string]interface{}, 0, len(body.Objects))
		f.mu.Lock()
		for _, o := range body.Objects {
			id, _ := o["id"].(string)
			item := map[string]interface{}{"id": id, "class": o["class"], "result": map[string]interface{}{}}
			if msg, ok := f.batchErrors[id]; ok {
				item["result"] = map[string]interface{}{"errors": map[string]interface{}{"error": []interface{}{map[string]interface{}{"message": msg}}}}
			} else {
				props, _ := o["properties"].(map[string]interface{})
				f.objects[id] = props
			}
			resp = append(resp, item)
		}
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)

	case r.URL.Path == "/v1/graphql":
		var body struct {
			Query string `json:"query"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.queries = append(f.queries, body.Query)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(f.graphql(body.Query))

	case strings.HasPrefix(r.URL.Path, "/v1/objects/"):
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/v1/objects/"), "/")
		id := parts[len(parts)-1]
		switch r.Method {
		case http.MethodGet:
			f.waitBarrier()
			f.mu.Lock()
			props, ok := f.objects[id]
			snapshot := map[string]interface{}{}
			for k, v := range props {
				snapshot[k] = v
			}
			f.mu.Unlock()
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
			json.NewEncoder(w).Encode(map[string]interface{}{"class": "JournalChunk", "id": id, "properties": snapshot})
		case http.MethodPatch:
			raw, _ := io.ReadAll(r.Body)
			var body struct {
				Properties map[string]interface{} `json:"properties"`
			}
			json.Unmarshal(raw, &body)
			f.mu.Lock()
			if _, ok := f.objects[id]; !ok {
				f.mu.Unlock()
				w.WriteHeader(http.StatusNotFound)
				return
			}
			for k, v := range body.Properties {
				f.objects[id][k] = v
			}
			f.mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}

	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeWeaviate) waitBarrier() {
	f.mu.Lock()
	f.arrived++
	barrier := f.getBarrier
	f.mu.Unlock()
	if barrier == 0 {
		return
	}
	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		f.mu.Lock()
		n := f.arrived
		f.mu.Unlock()
		if n >= barrier {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (f *fakeWeaviate) usage(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, _ := f.objects[id]["usageCount"].(float64)
	return int(v)
}

// getResponse wraps rows as a GraphQL Get payload for the JournalChunk class.
func getResponse(rows ...map[string]interface{}) map[string]interface{} {
	list := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		list = append(list, r)
	}
	return map[string]interface{}{"data": map[string]interface{}{"Get": map[string]interface{}{"JournalChunk": list}}}
}
