// Package index keeps a Redis workspace of analyzed pages so stored runs can
// be searched by term without reloading them from DefraDB.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/redis/go-redis/v9"

	"github.com/jackzampolin/rfptriage/internal/pipeline"
	"github.com/jackzampolin/rfptriage/internal/triage"
	"github.com/jackzampolin/rfptriage/internal/types"
)

const (
	DefaultPrefix = "rfptriage:"
	DefaultTTL    = 7 * 24 * time.Hour

	minTermLen  = 3
	snippetLen  = 200
	searchLimit = 50
)

// Config configures an Index.
type Config struct {
	Client *redis.Client
	Prefix string
	// TTL applies to every key written for a run. Zero uses DefaultTTL.
	TTL    time.Duration
	Logger *slog.Logger
}

// Index writes pages into Redis hashes with a term set per word.
//
// Keys, relative to Prefix:
//
//	runs                       sorted set of run IDs scored by index time
//	run:{id}:pages             sorted set of page numbers scored by relevance
//	run:{id}:page:{n}          hash of page fields
//	run:{id}:term:{word}       set of page numbers containing word
//	run:{id}:category:{name}   set of page numbers in category
type Index struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

var _ pipeline.Indexer = (*Index)(nil)

// New creates an Index.
func New(cfg Config) *Index {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Index{client: cfg.Client, prefix: cfg.Prefix, ttl: cfg.TTL, logger: cfg.Logger}
}

// Ping checks the Redis connection.
func (x *Index) Ping(ctx context.Context) error {
	return x.client.Ping(ctx).Err()
}

// Hit is one search result.
type Hit struct {
	PageNumber     int            `json:"page_num"`
	Category       types.Category `json:"category"`
	Relevance      int            `json:"relevance"`
	VisionAnalyzed bool           `json:"vision_analyzed"`
	Snippet        string         `json:"snippet"`
}

// Index replaces the workspace for runID with pages.
func (x *Index) Index(ctx context.Context, runID string, pages []types.AnalyzedPage) error {
	if runID == "" {
		return fmt.Errorf("index: empty run id")
	}
	if err := x.Remove(ctx, runID); err != nil {
		return err
	}

	pipe := x.client.TxPipeline()
	keys := []string{x.key("run", runID, "pages")}
	for _, p := range pages {
		num := strconv.Itoa(p.PageNumber)
		pageKey := x.key("run", runID, "page", num)
		pipe.HSet(ctx, pageKey, map[string]any{
			"page_num":        p.PageNumber,
			"category":        string(p.Category),
			"relevance":       p.Relevance,
			"vision_analyzed": strconv.FormatBool(p.VisionAnalyzed),
			"content":         p.Content,
		})
		pipe.ZAdd(ctx, keys[0], redis.Z{Score: float64(p.Relevance), Member: num})
		keys = append(keys, pageKey)

		catKey := x.key("run", runID, "category", string(p.Category))
		pipe.SAdd(ctx, catKey, num)
		keys = append(keys, catKey)

		for _, term := range Terms(pageText(p)) {
			termKey := x.key("run", runID, "term", term)
			pipe.SAdd(ctx, termKey, num)
			keys = append(keys, termKey)
		}
	}

	keysKey := x.key("run", runID, "keys")
	pipe.SAdd(ctx, keysKey, toAny(keys)...)
	keys = append(keys, keysKey)
	for _, k := range dedupe(keys) {
		pipe.Expire(ctx, k, x.ttl)
	}
	pipe.ZAdd(ctx, x.key("runs"), redis.Z{Score: float64(time.Now().Unix()), Member: runID})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index run %s: %w", runID, err)
	}
	x.logger.Debug("run indexed", "run_id", runID, "pages", len(pages), "keys", len(keys))
	return nil
}

// Remove deletes every key written for runID.
func (x *Index) Remove(ctx context.Context, runID string) error {
	keysKey := x.key("run", runID, "keys")
	keys, err := x.client.SMembers(ctx, keysKey).Result()
	if err != nil {
		return fmt.Errorf("list keys for run %s: %w", runID, err)
	}
	pipe := x.client.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, keysKey)
	pipe.ZRem(ctx, x.key("runs"), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove run %s: %w", runID, err)
	}
	return nil
}

// Runs returns indexed run IDs, most recently indexed first.
func (x *Index) Runs(ctx context.Context) ([]string, error) {
	ids, err := x.client.ZRevRange(ctx, x.key("runs"), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list indexed runs: %w", err)
	}
	return ids, nil
}

// SearchOptions narrows a search.
type SearchOptions struct {
	Category types.Category
	Limit    int
}

// Search returns pages of runID containing every term of query, ordered by
// relevance then page number. An empty query lists the run's pages.
func (x *Index) Search(ctx context.Context, runID, query string, opts SearchOptions) ([]Hit, error) {
	if opts.Limit <= 0 {
		opts.Limit = searchLimit
	}

	var sets []string
	for _, term := range Terms(query) {
		sets = append(sets, x.key("run", runID, "term", term))
	}
	if opts.Category != "" {
		sets = append(sets, x.key("run", runID, "category", string(opts.Category)))
	}

	var (
		nums []string
		err  error
	)
	if len(sets) == 0 {
		nums, err = x.client.ZRevRange(ctx, x.key("run", runID, "pages"), 0, -1).Result()
	} else {
		nums, err = x.client.SInter(ctx, sets...).Result()
	}
	if err != nil {
		return nil, fmt.Errorf("search run %s: %w", runID, err)
	}
	if len(nums) == 0 {
		return []Hit{}, nil
	}

	pipe := x.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(nums))
	for i, n := range nums {
		cmds[i] = pipe.HGetAll(ctx, x.key("run", runID, "page", n))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("load pages for run %s: %w", runID, err)
	}

	hits := make([]Hit, 0, len(cmds))
	for _, cmd := range cmds {
		h := cmd.Val()
		if len(h) == 0 {
			continue
		}
		num, _ := strconv.Atoi(h["page_num"])
		rel, _ := strconv.Atoi(h["relevance"])
		hits = append(hits, Hit{
			PageNumber:     num,
			Category:       types.Category(h["category"]),
			Relevance:      rel,
			VisionAnalyzed: h["vision_analyzed"] == "true",
			Snippet:        triage.Snippet(h["content"], snippetLen),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Relevance != hits[j].Relevance {
			return hits[i].Relevance > hits[j].Relevance
		}
		return hits[i].PageNumber < hits[j].PageNumber
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// Terms splits text into distinct normalized words of at least three
// characters, in first-seen order.
func Terms(text string) []string {
	words := strings.FieldsFunc(triage.Normalize(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool, len(words))
	var out []string
	for _, w := range words {
		if len([]rune(w)) < minTermLen || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func pageText(p types.AnalyzedPage) string {
	if len(p.Tables) == 0 {
		return p.Content
	}
	return p.Content + "\n" + strings.Join(p.Tables, "\n")
}

func (x *Index) key(parts ...string) string {
	return x.prefix + strings.Join(parts, ":")
}

func dedupe(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := keys[:0:0]
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
