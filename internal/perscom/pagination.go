package perscom

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/iliyamo/milsim-portal/internal/metrics"
)

// FetchPaginated walks a listing endpoint to its last page and returns every
// record in page order. Related resources named in includes are joined via
// the include query parameter.
//
// Page 1 is fetched first to learn meta.last_page; the remaining pages are
// fetched in parallel. A failing later page is logged and contributes no
// records, so the result may be partial. Only a page 1 failure is returned.
// A last_page above the client's page cap is clamped to the cap.
func (c *Client) FetchPaginated(ctx context.Context, endpoint string, includes ...string) ([]json.RawMessage, error) {
	first, err := c.Fetch(ctx, pageEndpoint(endpoint, 1, includes), RequestOptions{})
	if err != nil {
		return nil, err
	}
	items, lastPage := parsePage(first)
	if lastPage <= 1 {
		return items, nil
	}
	if lastPage > c.maxPages {
		c.logger.Warn("last_page exceeds page cap, truncating listing",
			zap.String("endpoint", endpoint),
			zap.Int("last_page", lastPage),
			zap.Int("max_pages", c.maxPages),
		)
		lastPage = c.maxPages
	}

	pages := make([][]json.RawMessage, lastPage)
	pages[0] = items

	var g errgroup.Group
	g.SetLimit(c.pageConcurrency)
	for page := 2; page <= lastPage; page++ {
		g.Go(func() error {
			body, err := c.Fetch(ctx, pageEndpoint(endpoint, page, includes), RequestOptions{})
			if err != nil {
				metrics.RecordPageFailure()
				c.logger.Warn("dropping failed page",
					zap.String("endpoint", endpoint),
					zap.Int("page", page),
					zap.Int("last_page", lastPage),
					zap.Error(err),
				)
				return nil
			}
			pages[page-1], _ = parsePage(body)
			return nil
		})
	}
	_ = g.Wait()

	total := 0
	for _, p := range pages {
		total += len(p)
	}
	out := make([]json.RawMessage, 0, total)
	for _, p := range pages {
		out = append(out, p...)
	}
	return out, nil
}

// parsePage reads the {data: [...], meta: {last_page}} envelope. A missing
// last_page means the listing has a single page.
func parsePage(body []byte) ([]json.RawMessage, int) {
	res := gjson.ParseBytes(body)
	var items []json.RawMessage
	if data := res.Get("data"); data.IsArray() {
		data.ForEach(func(_, v gjson.Result) bool {
			items = append(items, json.RawMessage(v.Raw))
			return true
		})
	}
	lastPage := 1
	if lp := res.Get("meta.last_page"); lp.Exists() {
		lastPage = int(min(max(lp.Int(), 1), math.MaxInt32))
	}
	return items, lastPage
}

// pageEndpoint adds page and include to endpoint, keeping any query it
// already carries.
func pageEndpoint(endpoint string, page int, includes []string) string {
	path, rawQuery, _ := strings.Cut(endpoint, "?")
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		q = url.Values{}
	}
	q.Set("page", strconv.Itoa(page))
	if len(includes) > 0 {
		q.Set("include", strings.Join(includes, ","))
	}
	return path + "?" + q.Encode()
}
