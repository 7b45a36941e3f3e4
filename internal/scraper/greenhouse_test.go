package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"jobwatch/aggregator-service/internal/model"
	"jobwatch/aggregator-service/internal/scraper"
)

const boardJSON = `{
  "jobs": [
    {
      "id": 101,
      "title": "Quant Developer",
      "absolute_url": "https://boards.greenhouse.io/acme/jobs/101",
      "content": "<p>Build trading systems</p>",
      "updated_at": "2026-08-01T12:00:00Z",
      "location": {"name": "Hong Kong"},
      "metadata": [{"name": "Employment Type", "value": "Full-time"}]
    },
    {
      "id": 102,
      "title": "Trading Engineer",
      "absolute_url": "https://boards.greenhouse.io/acme/jobs/102",
      "location": {"name": "London"}
    },
    {
      "id": 103,
      "title": "Platform Engineer",
      "absolute_url": "",
      "location": null
    }
  ]
}`

func acmeCompany() model.Company {
	return model.Company{ID: 1, Name: "Acme", Platform: "greenhouse", PlatformToken: "acme"}
}

func stubbed(t *testing.T, handler http.HandlerFunc) *scraper.GreenhouseScraper {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := scraper.NewGreenhouseScraper("")
	g.BaseURL = srv.URL
	return g
}

func TestGreenhouseFetch_ParsesBoard(t *testing.T) {
	g := stubbed(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/acme/jobs", r.URL.Path)
		w.Write([]byte(boardJSON))
	})

	postings, err := g.Fetch(context.Background(), acmeCompany())
	require.NoError(t, err)
	require.Len(t, postings, 3)

	first := postings[0]
	require.Equal(t, "Quant Developer", first.Title)
	require.Equal(t, "https://boards.greenhouse.io/acme/jobs/101", first.URL)
	require.Equal(t, "Hong Kong", first.Location)
	require.Equal(t, "Full-time", first.JobType)
	require.NotNil(t, first.PostedDate)

	require.Nil(t, postings[1].PostedDate, "missing updated_at stays nil")
	require.Equal(t, "Remote", postings[2].Location, "null location defaults to Remote")
	require.Equal(t, "https://boards.greenhouse.io/acme/jobs/103", postings[2].URL,
		"missing absolute_url is reconstructed from the board token")
}

func TestGreenhouseFetch_LocationFilter(t *testing.T) {
	g := stubbed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(boardJSON))
	})
	g.LocationFilter = "hong kong"

	postings, err := g.Fetch(context.Background(), acmeCompany())
	require.NoError(t, err)
	require.Len(t, postings, 1)
	require.Equal(t, "Quant Developer", postings[0].Title)
}

func TestGreenhouseFetch_ServerErrorIsTransient(t *testing.T) {
	g := stubbed(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	})

	_, err := g.Fetch(context.Background(), acmeCompany())
	require.Error(t, err)
	require.Equal(t, scraper.KindTransient, scraper.Kind(err))
}

func TestGreenhouseFetch_NotFoundIsParseError(t *testing.T) {
	g := stubbed(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such board", http.StatusNotFound)
	})

	_, err := g.Fetch(context.Background(), acmeCompany())
	require.Error(t, err)
	require.Equal(t, scraper.KindParse, scraper.Kind(err))
}

func TestGreenhouseFetch_MalformedJSONIsParseError(t *testing.T) {
	g := stubbed(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	})

	_, err := g.Fetch(context.Background(), acmeCompany())
	require.Error(t, err)
	require.Equal(t, scraper.KindParse, scraper.Kind(err))
}

func TestGreenhouseFetch_MissingTokenIsParseError(t *testing.T) {
	g := scraper.NewGreenhouseScraper("")
	company := acmeCompany()
	company.PlatformToken = ""

	_, err := g.Fetch(context.Background(), company)
	require.Error(t, err)
	require.Equal(t, scraper.KindParse, scraper.Kind(err))
}
