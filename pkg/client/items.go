package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/camlf/academic-hub/pkg/cache"
	"github.com/camlf/academic-hub/pkg/table"
)

// Data view queries whose resolved items make up the columns of a source.
const (
	QueryValues  = "Asset_value"
	QueryDigital = "Asset_digital"
)

// DataItem is one resolved stream of a data view query.
type DataItem struct {
	ID       string         `json:"Id"`
	Name     string         `json:"Name"`
	TypeID   string         `json:"TypeId"`
	Metadata map[string]any `json:"Metadata"`
}

type itemsResponse struct {
	Items []DataItem `json:"Items"`
}

// ResolvedDataItems returns the streams a data view query resolves to.
// Responses are cached when the client has a cache.
func (c *Client) ResolvedDataItems(ctx context.Context, namespace, dataViewID, queryID string) ([]DataItem, error) {
	load := func(ctx context.Context) ([]byte, error) {
		u := c.base.JoinPath(namespace, "dataviews", dataViewID, "Resolved", "DataItems", queryID)
		u.RawQuery = url.Values{"count": {"1000"}, "cache": {"refresh"}}.Encode()

		resp, err := c.do(ctx, u, "items")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		return io.ReadAll(resp.Body)
	}

	var data []byte
	var err error
	if c.cache != nil {
		key := cache.CacheKey{Namespace: namespace, DataViewID: dataViewID, QueryID: queryID}
		data, err = c.cache.Fetch(ctx, key, c.config.ItemsCacheTTL, load)
	} else {
		data, err = load(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve %s items of %s: %w", queryID, dataViewID, err)
	}

	var items itemsResponse
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s items of %s: %w", queryID, dataViewID, err)
	}
	return items.Items, nil
}

// ColumnCount returns the number of columns a data view produces: its value
// and digital items plus the Timestamp. It implements query.ColumnCounter.
func (c *Client) ColumnCount(ctx context.Context, namespace, dataViewID string) (int, error) {
	values, err := c.ResolvedDataItems(ctx, namespace, dataViewID, QueryValues)
	if err != nil {
		return 0, err
	}
	digital, err := c.ResolvedDataItems(ctx, namespace, dataViewID, QueryDigital)
	if err != nil {
		return 0, err
	}
	return len(values) + len(digital) + 1, nil
}

// decodeRecords reads a stored page of JSON records.
func decodeRecords(resp *http.Response) (*table.Table, error) {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return table.DecodeRecords(data)
}
