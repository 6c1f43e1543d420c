// Package feed implements a feed-kind adapter over RSS 2.0 dealer
// inventory feeds, parsed with the standard library's encoding/xml (a
// document whose root element is not <rss>, such as Atom, is not
// parsed), plus an optional live-update subscription channel over
// gorilla/websocket for feed sources that push incremental updates
// instead of requiring a full re-poll.
package feed

import (
	"context"
	"encoding/xml"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/thetangstr/vehiclesearch/domain"
	"github.com/thetangstr/vehiclesearch/infrastructure/adapters/httpx"
	"github.com/thetangstr/vehiclesearch/infrastructure/breaker"
	"github.com/thetangstr/vehiclesearch/infrastructure/ratelimit"
)

const sourceTag = "classifieds_feed"

// rssFeed is the minimal RSS 2.0 shape dealer inventory feeds use.
type rssFeed struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Price       string `xml:"price"`
	Mileage     string `xml:"mileage"`
	Make        string `xml:"make"`
	Model       string `xml:"model"`
	Year        string `xml:"year"`
	VIN         string `xml:"vin"`
}

// Adapter implements domain.SourceAdapter over a dealer's RSS feed URL.
type Adapter struct {
	feedURL string
	client  *httpx.Client
	limiter *ratelimit.Limiter
	cb      *breaker.Registry
}

// New builds a feed adapter against one dealer feed endpoint.
func New(feedURL string, limiter *ratelimit.Limiter, cb *breaker.Registry) *Adapter {
	return &Adapter{
		feedURL: feedURL,
		client:  httpx.New(feedURL, 15*time.Second),
		limiter: limiter,
		cb:      cb,
	}
}

func (a *Adapter) Tag() string             { return sourceTag }
func (a *Adapter) Kind() domain.SourceKind { return domain.SourceKindFeed }

// Search fetches and parses the full feed, then filters client-side
// since RSS feeds have no query language of their own.
func (a *Adapter) Search(ctx context.Context, query string, filters domain.FilterSet, page, perPage int) ([]domain.Listing, domain.SourceMeta, error) {
	if _, err := a.limiter.Acquire(ctx, sourceTag, "search", 10*time.Second); err != nil {
		return nil, domain.SourceMeta{}, ratelimit.AsAdapterError(sourceTag, "search", err)
	}

	var parsed rssFeed
	err := a.cb.Call(ctx, sourceTag, "search", func(ctx context.Context) error {
		resp, rerr := a.client.Get(ctx, sourceTag, "search", "", nil)
		if rerr != nil {
			return rerr
		}
		if uerr := xml.Unmarshal(resp.Body, &parsed); uerr != nil {
			return domain.NewAdapterError(sourceTag, "search", domain.ErrKindTransient, uerr)
		}
		return nil
	})
	if err != nil {
		return nil, domain.SourceMeta{}, err
	}

	now := time.Now()
	all := make([]domain.Listing, 0, len(parsed.Channel.Items))
	for _, item := range parsed.Channel.Items {
		all = append(all, convertItem(item, now))
	}
	matched := applyFilters(all, filters)

	start := (page - 1) * perPage
	if start >= len(matched) {
		return nil, domain.SourceMeta{TotalClaimed: len(matched)}, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], domain.SourceMeta{TotalClaimed: len(matched)}, nil
}

func applyFilters(listings []domain.Listing, f domain.FilterSet) []domain.Listing {
	out := make([]domain.Listing, 0, len(listings))
	for _, l := range listings {
		if f.Make != "" && !strings.EqualFold(l.Make, f.Make) {
			continue
		}
		if f.YearMin > 0 && l.Year < f.YearMin {
			continue
		}
		if f.YearMax > 0 && l.Year > f.YearMax {
			continue
		}
		if f.PriceMax > 0 && l.Price > f.PriceMax {
			continue
		}
		out = append(out, l)
	}
	return out
}

func convertItem(item rssItem, now time.Time) domain.Listing {
	sourceID := item.GUID
	if sourceID == "" {
		sourceID = item.Link
	}
	year, _ := strconv.Atoi(item.Year)
	priceFloat, _ := strconv.ParseFloat(item.Price, 64)
	mileage, _ := strconv.Atoi(item.Mileage)

	return domain.Listing{
		ID:          domain.StableID(sourceTag, sourceID),
		Source:      sourceTag,
		SourceID:    sourceID,
		IngestedVia: string(domain.SourceKindFeed),
		VIN:         item.VIN,
		Title:       item.Title,
		Make:        item.Make,
		Model:       item.Model,
		Year:        year,
		Price:       domain.PriceMinorUnits(priceFloat * 100),
		Mileage:     mileage,
		ListingURL:  item.Link,
		Description: item.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
		LastSeenAt:  now,
		Active:      true,
	}
}

// GetDetails re-fetches the whole feed and scans it for a matching GUID,
// since RSS feeds expose no per-item lookup endpoint.
func (a *Adapter) GetDetails(ctx context.Context, sourceListingID string) (*domain.Listing, error) {
	listings, _, err := a.Search(ctx, "", domain.FilterSet{}, 1, 1<<20)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].SourceID == sourceListingID {
			return &listings[i], nil
		}
	}
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

// UpdateSubscriber receives incremental listing updates pushed over a
// websocket connection, for feed sources that support live push instead
// of (or in addition to) full re-polling.
type UpdateSubscriber struct {
	conn *websocket.Conn
}

// DialUpdates opens a websocket connection to wsURL for live feed
// push updates.
func DialUpdates(ctx context.Context, wsURL string) (*UpdateSubscriber, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, domain.NewAdapterError(sourceTag, "subscribe", domain.ErrKindTransient, err)
	}
	return &UpdateSubscriber{conn: conn}, nil
}

// Next blocks for the next pushed update and parses it as a single RSS item.
func (s *UpdateSubscriber) Next() (domain.Listing, error) {
	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return domain.Listing{}, domain.NewAdapterError(sourceTag, "subscribe", domain.ErrKindTransient, err)
	}
	var item rssItem
	if err := xml.Unmarshal(raw, &item); err != nil {
		return domain.Listing{}, domain.NewAdapterError(sourceTag, "subscribe", domain.ErrKindValidation, err)
	}
	return convertItem(item, time.Now()), nil
}

// Close shuts down the websocket connection.
func (s *UpdateSubscriber) Close() error {
	return s.conn.Close()
}
