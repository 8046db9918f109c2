package scopus

import (
	"context"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/agenthands/snowball/internal/core/model"
)

const authorRetrievalPath = "/content/author/author_id/"

// MetadataFetcher retrieves the enhanced profile of one author.
type MetadataFetcher struct {
	Client *Client
}

func NewMetadataFetcher(c *Client) *MetadataFetcher {
	return &MetadataFetcher{Client: c}
}

// Fetch returns at most one record. An unknown author yields none.
func (f *MetadataFetcher) Fetch(ctx context.Context, sid string) ([]model.AuthorMetadata, error) {
	q := url.Values{}
	q.Set("view", "ENHANCED")
	body, found, err := f.Client.get(ctx, "metadata", authorRetrievalPath+url.PathEscape(sid), q)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	r := gjson.GetBytes(body, "author-retrieval-response")
	if r.IsArray() {
		r = r.Get("0")
	}
	if !r.Exists() {
		return nil, nil
	}
	return []model.AuthorMetadata{parseProfile(r, sid)}, nil
}

func parseProfile(r gjson.Result, sid string) model.AuthorMetadata {
	m := model.AuthorMetadata{
		SID:     trimAuthorID(r.Get("coredata.dc:identifier").String()),
		Surname: r.Get("author-profile.preferred-name.surname").String(),
		Given:   r.Get("author-profile.preferred-name.given-name").String(),
		Docs:    int(r.Get("coredata.document-count").Int()),
		Areas:   []string{},
	}
	if m.SID == "" {
		m.SID = sid
	}

	for _, area := range oneOrMany(r.Get("subject-areas.subject-area")) {
		if name := area.Get("$").String(); name != "" {
			m.Areas = append(m.Areas, name)
		}
	}

	affs := oneOrMany(r.Get("author-profile.affiliation-current.affiliation"))
	if len(affs) > 0 {
		doc := affs[0].Get("ip-doc")
		m.Affiliation = doc.Get("afdispname").String()
		if m.Affiliation == "" {
			m.Affiliation = doc.Get("preferred-name.$").String()
		}
		m.Country = doc.Get("address.country").String()
	}
	return m
}

// oneOrMany normalises a field that the API returns as a single object when
// there is one value and as an array otherwise.
func oneOrMany(r gjson.Result) []gjson.Result {
	switch {
	case !r.Exists():
		return nil
	case r.IsArray():
		return r.Array()
	default:
		return []gjson.Result{r}
	}
}
