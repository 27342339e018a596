package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"net/url"
	"slices"
)

// PageSize is the largest page the GitHub API serves.
const PageSize = 100

// ListOptions configures a paginated listing.
type ListOptions struct {
	Options
	// Reverse yields newest items first by starting at the last page and
	// walking rel="prev" links, reversing each page.
	Reverse bool
}

// List yields every item of a paginated listing. Pages are fetched lazily:
// a consumer that stops early causes no further requests. A failing page is
// yielded as (nil, err) and ends the sequence. Each call starts at page 1.
func (c *Client) List(ctx context.Context, rawURL string, opts ListOptions) iter.Seq2[json.RawMessage, error] {
	return func(yield func(json.RawMessage, error) bool) {
		firstURL, err := firstPageURL(rawURL)
		if err != nil {
			yield(nil, err)
			return
		}

		first, items, err := c.page(ctx, firstURL, opts.Options)
		if err != nil {
			yield(nil, err)
			return
		}

		if !opts.Reverse {
			if !yieldAll(items, false, yield) {
				return
			}
			for next := FindRelLink(first.Headers["link"], "next"); next != ""; {
				page, items, err := c.page(ctx, next, opts.Options)
				if err != nil {
					yield(nil, err)
					return
				}
				if !yieldAll(items, false, yield) {
					return
				}
				next = FindRelLink(page.Headers["link"], "next")
			}
			return
		}

		last := FindRelLink(first.Headers["link"], "last")
		if last == "" {
			yieldAll(items, true, yield)
			return
		}
		for prev := last; prev != ""; {
			page, items, err := c.page(ctx, prev, opts.Options)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yieldAll(items, true, yield) {
				return
			}
			prev = FindRelLink(page.Headers["link"], "prev")
		}
	}
}

func (c *Client) page(ctx context.Context, pageURL string, opts Options) (*Response, []json.RawMessage, error) {
	resp, err := c.Request(ctx, pageURL, opts)
	if err != nil {
		return nil, nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(resp.Body, &items); err != nil {
		return nil, nil, fmt.Errorf("decode page %s: %w", pageURL, err)
	}
	return resp, items, nil
}

func yieldAll(items []json.RawMessage, reverse bool, yield func(json.RawMessage, error) bool) bool {
	if reverse {
		items = slices.Clone(items)
		slices.Reverse(items)
	}
	for _, item := range items {
		if !yield(item, nil) {
			return false
		}
	}
	return true
}

func firstPageURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	q := u.Query()
	q.Set("per_page", fmt.Sprint(PageSize))
	q.Set("page", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
