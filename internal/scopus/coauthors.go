package scopus

import (
	"context"
	"net/url"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/agenthands/snowball/internal/core/model"
)

const coauthorSearchPath = "/content/search/author"

// CoauthorFetcher lists the coauthors of one author as (author, coauthor)
// pairs.
type CoauthorFetcher struct {
	Client *Client
}

func NewCoauthorFetcher(c *Client) *CoauthorFetcher {
	return &CoauthorFetcher{Client: c}
}

// Fetch pages through the coauthor search until totalResults entries have
// been seen. An unknown author yields no pairs.
func (f *CoauthorFetcher) Fetch(ctx context.Context, sid string) ([]model.CoauthorPair, error) {
	var pairs []model.CoauthorPair
	seen := make(map[string]struct{})
	count := f.Client.opts.PageSize

	for start := 0; ; start += count {
		q := url.Values{}
		q.Set("co-author", sid)
		q.Set("start", strconv.Itoa(start))
		q.Set("count", strconv.Itoa(count))

		body, found, err := f.Client.get(ctx, "coauthors", coauthorSearchPath, q)
		if err != nil {
			return nil, err
		}
		if !found {
			return pairs, nil
		}

		res := gjson.GetBytes(body, "search-results")
		total := res.Get("opensearch:totalResults").Int()
		entries := res.Get("entry").Array()
		for _, e := range entries {
			id := trimAuthorID(e.Get("dc:identifier").String())
			if id == "" || id == sid {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			pairs = append(pairs, model.CoauthorPair{sid, id})
		}

		if len(entries) == 0 || int64(start+count) >= total {
			break
		}
	}

	f.Client.opts.Logger.Debug("fetched coauthors", zap.String("sid", sid), zap.Int("coauthors", len(pairs)))
	return pairs, nil
}
