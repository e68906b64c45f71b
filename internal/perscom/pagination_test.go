package perscom

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pagedHandler serves lastPage pages of perPage records whose ids encode
// their page and position.
func pagedHandler(lastPage, perPage int, failPages map[int]bool, calls *atomic.Int32) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		if failPages[page] {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		items := make([]map[string]int, 0, perPage)
		for i := 0; i < perPage; i++ {
			items = append(items, map[string]int{"id": page*100 + i})
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": items,
			"meta": map[string]int{"current_page": page, "last_page": lastPage},
		})
	}
}

func ids(t *testing.T, items []json.RawMessage) []int {
	t.Helper()
	out := make([]int, 0, len(items))
	for _, raw := range items {
		var v struct {
			ID int `json:"id"`
		}
		require.NoError(t, json.Unmarshal(raw, &v))
		out = append(out, v.ID)
	}
	return out
}

func TestFetchPaginated_ReturnsAllPagesInOrder(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, pagedHandler(3, 4, nil, &calls))

	items, err := env.client.FetchPaginated(context.Background(), "/users")
	require.NoError(t, err)

	assert.Equal(t, []int{100, 101, 102, 103, 200, 201, 202, 203, 300, 301, 302, 303}, ids(t, items))
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchPaginated_DropsFailedLaterPage(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, pagedHandler(3, 2, map[int]bool{2: true}, &calls))

	items, err := env.client.FetchPaginated(context.Background(), "/users")
	require.NoError(t, err)

	assert.Equal(t, []int{100, 101, 300, 301}, ids(t, items))
	// page 2 is retried within the budget before being dropped
	assert.EqualValues(t, 1+3+1, calls.Load())
}

func TestFetchPaginated_FirstPageFailureIsReturned(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, pagedHandler(3, 2, map[int]bool{1: true}, &calls))

	items, err := env.client.FetchPaginated(context.Background(), "/users")
	require.Error(t, err)
	assert.Nil(t, items)
	assert.EqualValues(t, 3, calls.Load())
}

func TestFetchPaginated_MissingMetaIsSinglePage(t *testing.T) {
	var calls atomic.Int32
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"data":[{"id":1},{"id":2}]}`))
	}))

	items, err := env.client.FetchPaginated(context.Background(), "/ranks")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, ids(t, items))
	assert.EqualValues(t, 1, calls.Load())
}

func TestFetchPaginated_ClampsOversizedLastPage(t *testing.T) {
	var (
		calls atomic.Int32
		mu    sync.Mutex
		seen  []int
	)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		mu.Lock()
		seen = append(seen, page)
		mu.Unlock()
		fmt.Fprintf(w, `{"data":[{"id":%d}],"meta":{"last_page":4000000000000}}`, page)
	}))
	env.client.maxPages = 3

	items, err := env.client.FetchPaginated(context.Background(), "/ranks")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(t, items))
	assert.EqualValues(t, 3, calls.Load())
	assert.ElementsMatch(t, []int{1, 2, 3}, seen)
}

func TestParsePage_LastPageBounds(t *testing.T) {
	cases := map[string]int{
		`{"data":[],"meta":{"last_page":4000000000000}}`: math.MaxInt32,
		`{"data":[],"meta":{"last_page":-7}}`:            1,
		`{"data":[],"meta":{"last_page":0}}`:             1,
		`{"data":[],"meta":{"last_page":12}}`:            12,
		`{"data":[]}`:                                    1,
	}
	for body, want := range cases {
		_, got := parsePage([]byte(body))
		assert.Equal(t, want, got, body)
	}
}

func TestFetchPaginated_SendsIncludes(t *testing.T) {
	var (
		mu       sync.Mutex
		includes []string
	)
	env := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		includes = append(includes, r.URL.Query().Get("include"))
		mu.Unlock()
		page := r.URL.Query().Get("page")
		fmt.Fprintf(w, `{"data":[{"id":%s}],"meta":{"last_page":2}}`, page)
	}))

	items, err := env.client.FetchPaginated(context.Background(), "/users", "rank", "unit")
	require.NoError(t, err)
	assert.Len(t, items, 2)
	assert.Equal(t, []string{"rank,unit", "rank,unit"}, includes)
}

func TestPageEndpoint(t *testing.T) {
	assert.Equal(t, "/users?page=1", pageEndpoint("/users", 1, nil))
	assert.Equal(t, "/users?include=rank%2Cunit&page=4", pageEndpoint("/users", 4, []string{"rank", "unit"}))
	assert.Equal(t, "/users?page=2&sort=name", pageEndpoint("/users?sort=name&page=9", 2, nil))
}
