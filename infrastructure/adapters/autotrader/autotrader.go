// Package autotrader implements a scrape-kind adapter: it fetches a
// search results page over plain HTTP and walks the resulting DOM with
// golang.org/x/net/html, since the upstream has no public API. Scrape
// adapters are inherently fragile against markup changes, so this source
// is disabled by default and runs behind a breaker configured with a
// lower failure threshold than the API adapters.
package autotrader

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/httpx"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
)

const sourceTag = "autotrader"

// Adapter implements domain.SourceAdapter by scraping search result pages.
type Adapter struct {
	client  *httpx.Client
	limiter *ratelimit.Limiter
	cb      *breaker.Registry
}

// New builds an autotrader adapter. Callers should configure the breaker
// for (autotrader, search) with a lower FailureThreshold than API
// sources, since markup drift surfaces as parse failures rather than
// clean HTTP errors.
func New(baseURL string, limiter *ratelimit.Limiter, cb *breaker.Registry) *Adapter {
	return &Adapter{
		client:  httpx.New(baseURL, 15*time.Second),
		limiter: limiter,
		cb:      cb,
	}
}

func (a *Adapter) Tag() string             { return sourceTag }
func (a *Adapter) Kind() domain.SourceKind { return domain.SourceKindScrape }

// Search fetches one results page and scrapes listing cards out of it.
func (a *Adapter) Search(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, domain.SourceMeta, error) {
	if _, err := a.limiter.Acquire(ctx, sourceTag, "search", 10*time.Second); err != nil {
		return nil, domain.SourceMeta{}, ratelimit.AsAdapterError(sourceTag, "search", err)
	}

	var cards []listingCard
	err := a.cb.Call(ctx, sourceTag, "search", func(ctx context.Context) error {
		path := buildSearchPath(query, filters, page)
		resp, rerr := a.client.Get(ctx, sourceTag, "search", path, map[string]string{
			"User-Agent": "Mozilla/5.0 (compatible; aggregator-bot/1.0)",
		})
		if rerr != nil {
			return rerr
		}
		var perr error
		cards, perr = parseListingCards(resp.Body)
		if perr != nil {
			return domain.NewAdapterError(sourceTag, "search", domain.ErrKindTransient, perr)
		}
		return nil
	})
	if err != nil {
		return nil, domain.SourceMeta{}, err
	}

	now := time.Now()
	out := make([]domain.Listing, 0, len(cards))
	for _, c := range cards {
		out = append(out, c.toListing(now))
	}
	return out, domain.SourceMeta{TotalClaimed: len(out)}, nil
}

// GetDetails is unsupported: the scrape adapter only extracts the fields
// visible on search result cards, which is enough for ranking but not a
// full detail page fetch.
func (a *Adapter) GetDetails(ctx context.Context, sourceListingID string) (*domain.Listing, error) {
	return nil, domain.NewAdapterError(sourceTag, "get_details", domain.ErrKindNotFound, domain.ErrNotFound)
}

func (a *Adapter) Health(ctx context.Context) (domain.Health, error) {
	status := a.cb.Status(sourceTag, "search")
	switch status.State {
	case breaker.StateOpen:
		return domain.Health{State: domain.HealthUnhealthy, Message: "circuit open"}, nil
	case breaker.StateHalfOpen:
		return domain.Health{State: domain.HealthDegraded, Message: "circuit half-open"}, nil
	default:
		return domain.Health{State: domain.HealthHealthy}, nil
	}
}

func buildSearchPath(query string, f domain.FilterSet, page int) string {
	var b strings.Builder
	b.WriteString("/cars-for-sale/all-cars")
	b.WriteString("?searchRadius=0")
	if query != "" {
		b.WriteString("&searchText=")
		b.WriteString(query)
	}
	if f.Make != "" {
		b.WriteString("&makeCode=")
		b.WriteString(strings.ToUpper(f.Make))
	}
	b.WriteString("&firstRecord=")
	b.WriteString(strconv.Itoa((page - 1) * 25))
	return b.String()
}

type listingCard struct {
	title    string
	priceRaw string
	mileage  string
	url      string
	vin      string
}

func (c listingCard) toListing(now time.Time) domain.Listing {
	sourceID := c.vin
	if sourceID == "" {
		sourceID = c.url
	}
	return domain.Listing{
		ID:          domain.StableID(sourceTag, sourceID),
		Source:      sourceTag,
		SourceID:    sourceID,
		IngestedVia: string(domain.SourceKindScrape),
		VIN:         c.vin,
		Title:       c.title,
		Price:       parsePrice(c.priceRaw),
		Mileage:     parseMileage(c.mileage),
		ListingURL:  c.url,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastSeenAt:  now,
		Active:      true,
	}
}

func parsePrice(raw string) domain.PriceMinorUnits {
	digits := digitsOnly(raw)
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return domain.PriceMinorUnits(n * 100)
}

func parseMileage(raw string) int {
	digits := digitsOnly(raw)
	if digits == "" {
		return 0
	}
	n, _ := strconv.Atoi(digits)
	return n
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// parseListingCards walks the DOM looking for result card containers and
// pulls title, price, mileage, VIN and href out of each one's attributes
// and text content.
func parseListingCards(body []byte) ([]listingCard, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}

	var cards []listingCard
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && hasClass(n, "result-card") {
			cards = append(cards, extractCard(n))
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(doc)
	return cards, nil
}

func hasClass(n *html.Node, class string) bool {
	for _, attr := range n.Attr {
		if attr.Key == "class" && strings.Contains(attr.Val, class) {
			return true
		}
	}
	return false
}

func extractCard(n *html.Node) listingCard {
	var c listingCard
	for _, attr := range n.Attr {
		switch attr.Key {
		case "data-vin":
			c.vin = attr.Val
		case "data-price":
			c.priceRaw = attr.Val
		case "data-mileage":
			c.mileage = attr.Val
		case "href":
			c.url = attr.Val
		}
	}

	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == "a" {
			for _, attr := range node.Attr {
				if attr.Key == "href" && c.url == "" {
					c.url = attr.Val
				}
			}
		}
		if node.Type == html.ElementNode && hasClass(node, "title") {
			c.title = textContent(node)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return c
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}
