// Package webclient declares the WebClient capability: the HTTP-level
// contract CardsFarmer uses to scrape badge pages and per-game card pages.
// Pages come back as navigable HTML trees rather than pre-extracted data so
// CheckPage can apply the best-effort, node-by-node parsing rules spec.md §4.2
// describes.
package webclient

import (
	"context"

	"golang.org/x/net/html"
)

// Client is the capability contract CardsFarmer drives.
type Client interface {
	// GetBadgePage fetches badge page N (1-indexed) of the logged-in user's
	// inventory, returning its parsed document tree.
	GetBadgePage(ctx context.Context, page int) (*html.Node, error)
	// GetCardPage fetches the per-game card-drop page for appID, returning
	// its parsed document tree.
	GetCardPage(ctx context.Context, appID uint32) (*html.Node, error)
}
