package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/bili-qml-team/bvote/internal/model"
)

// CatalogItem is the metadata the catalog knows about a video.
type CatalogItem struct {
	Title string
	Owner string
	Cover string
}

// Catalog looks up item metadata from an external service.
type Catalog interface {
	Lookup(ctx context.Context, bvid string) (CatalogItem, error)
}

// BiliCatalog resolves metadata from the Bilibili web API.
type BiliCatalog struct {
	client *resty.Client
}

func NewBiliCatalog(baseURL string) *BiliCatalog {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(3 * time.Second).
		SetHeader("User-Agent", "bvote/1.0")
	return &BiliCatalog{client: client}
}

func (c *BiliCatalog) Lookup(ctx context.Context, bvid string) (CatalogItem, error) {
	var out struct {
		Code int    `json:"code"`
		Msg  string `json:"message"`
		Data struct {
			Title string `json:"title"`
			Pic   string `json:"pic"`
			Owner struct {
				Name string `json:"name"`
			} `json:"owner"`
		} `json:"data"`
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("bvid", bvid).
		SetResult(&out).
		Get("/x/web-interface/view")
	if err != nil {
		return CatalogItem{}, err
	}
	if resp.IsError() {
		return CatalogItem{}, fmt.Errorf("catalog status %d for %s", resp.StatusCode(), bvid)
	}
	if out.Code != 0 {
		return CatalogItem{}, fmt.Errorf("catalog code %d for %s: %s", out.Code, bvid, out.Msg)
	}

	return CatalogItem{
		Title: out.Data.Title,
		Owner: out.Data.Owner.Name,
		Cover: out.Data.Pic,
	}, nil
}

// EnrichService decorates ranked entries with catalog metadata after ranking.
// Strictly best-effort: a failed lookup leaves that entry's metadata empty
// and never fails the response.
type EnrichService struct {
	catalog Catalog
}

func NewEnrichService(catalog Catalog) *EnrichService {
	return &EnrichService{catalog: catalog}
}

func (e *EnrichService) Enrich(ctx context.Context, entries []model.BoardEntry) []model.BoardEntry {
	if e == nil || e.catalog == nil {
		return entries
	}
	for i := range entries {
		item, err := e.catalog.Lookup(ctx, entries[i].BVID)
		if err != nil {
			log.Printf("enrich: catalog lookup for %s failed, serving placeholder: %v", entries[i].BVID, err)
			continue
		}
		entries[i].Title = item.Title
		entries[i].Owner = item.Owner
		entries[i].Cover = item.Cover
	}
	return entries
}
