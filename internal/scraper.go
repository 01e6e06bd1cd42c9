package internal

import "context"

// ResponseCache stores raw upstream bodies keyed by URL. Get reports a hit only
// for entries that have not expired yet.
type ResponseCache interface {
	Get(ctx context.Context, url string) (string, bool)
	Put(ctx context.Context, url, body string, typ CacheType) error
}

// TicketingSource fetches raw ticketing-detail pages.
type TicketingSource interface {
	FetchTicketingDetail(ctx context.Context, url string) (string, error)
}
