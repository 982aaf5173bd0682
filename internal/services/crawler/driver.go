package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// frontierEntry is one URL awaiting fetch, with its BFS depth.
type frontierEntry struct {
	url   string
	depth int
}

// Driver performs the bounded breadth-first traversal for one run. Fetches
// are sequential within a run; parallelism lives at the worker-pool level,
// across runs.
type Driver struct {
	crawls interfaces.CrawlStorage
	runs   interfaces.RunStorage
	config *common.CrawlerConfig
	logger arbor.ILogger
}

// NewDriver creates a BFS driver
func NewDriver(crawls interfaces.CrawlStorage, runs interfaces.RunStorage, config *common.CrawlerConfig, logger arbor.ILogger) *Driver {
	return &Driver{
		crawls: crawls,
		runs:   runs,
		config: config,
		logger: logger,
	}
}

// Crawl traverses the project's site under the run's settings snapshot.
// Cancellation is observed by polling the persisted run status every
// CancelCheckEvery iterations and is not an error. A returned error means
// the run should fail.
func (d *Driver) Crawl(ctx context.Context, run *models.CrawlRun, project *models.Project) error {
	settings := run.SettingsSnapshot
	ignoreParams := settings.IgnoreParamSet()

	startURL, err := Normalize(project.StartURL, ignoreParams)
	if err != nil {
		return fmt.Errorf("invalid start url %q: %w", project.StartURL, err)
	}

	fetcher := NewFetcher(d.config.RequestTimeoutDuration(), d.config.RedirectCap, settings.UserAgent, d.logger)

	var robots *RobotsCache
	if settings.RespectRobots {
		robots = NewRobotsCache(d.config.RequestTimeoutDuration(), settings.UserAgent, d.logger)
	}

	var limiter *rate.Limiter
	if settings.ThrottleMs > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(settings.ThrottleMs)*time.Millisecond), 1)
	}

	visited := make(map[string]struct{})
	var frontier []frontierEntry

	// Admission: a URL enters visited and the frontier at most once, and
	// only while the maxPages budget holds.
	admit := func(normalized string, depth int) {
		if len(visited) >= settings.MaxPages {
			return
		}
		if _, seen := visited[normalized]; seen {
			return
		}
		if robots != nil && !robots.Allowed(ctx, normalized) {
			d.logger.Debug().
				Str("url", normalized).
				Msg("Skipping URL disallowed by robots.txt")
			return
		}
		visited[normalized] = struct{}{}
		frontier = append(frontier, frontierEntry{url: normalized, depth: depth})
	}

	admit(startURL, 0)

	cancelCheckEvery := d.config.CancelCheckEvery
	if cancelCheckEvery <= 0 {
		cancelCheckEvery = 20
	}

	iteration := 0
	for len(frontier) > 0 {
		iteration++
		if iteration%cancelCheckEvery == 0 {
			status, err := d.runs.GetRunStatus(ctx, run.ID)
			if err != nil {
				return fmt.Errorf("failed to poll run status: %w", err)
			}
			if status == models.RunStatusCanceled {
				d.logger.Info().
					Str("run_id", run.ID).
					Int("pages", iteration-1).
					Msg("Run canceled, stopping traversal")
				return nil
			}
		}

		entry := frontier[0]
		frontier = frontier[1:]

		if entry.depth > settings.MaxDepth {
			continue
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
		}

		result := fetcher.Fetch(ctx, entry.url)

		page := &models.Page{
			ID:              common.NewPageID(),
			CrawlRunID:      run.ID,
			URL:             entry.url,
			NormalizedURL:   entry.url,
			StatusCode:      result.StatusCode,
			ContentType:     result.ContentType,
			Title:           result.Title,
			MetaDescription: result.MetaDescription,
			H1Count:         result.H1Count,
			Canonical:       result.Canonical,
			RobotsMeta:      result.RobotsMeta,
			WordCount:       result.WordCount,
			RedirectChain:   result.RedirectChain,
			FetchError:      result.Error,
			DiscoveredAt:    time.Now(),
		}

		if result.Doc != nil {
			hash, signature, sigErr := ComputeSignature(result.Doc)
			if sigErr != nil {
				d.logger.Warn().
					Err(sigErr).
					Str("url", entry.url).
					Msg("Failed to compute template signature")
			} else {
				page.TemplateSignatureHash = hash
				page.TemplateSignature = signature
			}
		}

		issues := EvaluateRules(result)
		for i := range issues {
			issues[i].ID = common.NewIssueID()
			issues[i].CrawlRunID = run.ID
			pageID := page.ID
			issues[i].PageID = &pageID
		}

		// Page and its issues commit as one unit; a failure here drops this
		// page but the crawl goes on.
		if err := d.crawls.PersistPageResult(ctx, page, issues); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			d.logger.Error().
				Err(err).
				Str("url", entry.url).
				Msg("Failed to persist page")
			continue
		}

		links := d.collectLinks(run.ID, page, result, project, settings, ignoreParams, admit, entry.depth)
		if err := d.crawls.PersistLinks(ctx, links); err != nil {
			d.logger.Error().
				Err(err).
				Str("url", entry.url).
				Msg("Failed to persist links")
		}
	}

	d.logger.Info().
		Str("run_id", run.ID).
		Int("pages", len(visited)).
		Msg("Traversal complete")
	return nil
}

// collectLinks builds the link rows for a page's anchors and admits
// internal, unvisited targets to the frontier at depth+1. External links
// are recorded but never enqueued.
func (d *Driver) collectLinks(runID string, page *models.Page, result *PageResult, project *models.Project, settings models.CrawlSettings, ignoreParams map[string]struct{}, admit func(string, int), depth int) []models.Link {
	links := make([]models.Link, 0, len(result.Links))

	for _, href := range result.Links {
		fromID := page.ID
		link := models.Link{
			ID:         common.NewLinkID(),
			CrawlRunID: runID,
			FromPageID: &fromID,
			ToURL:      href,
			LinkType:   models.LinkTypeExternal,
		}

		// Resolve against the fetched URL, not the admitted one; redirects
		// may have moved the document.
		normalized, err := ResolveAndNormalize(href, result.URL, ignoreParams)
		if err == nil {
			link.ToNormalizedURL = normalized
			if IsInternal(normalized, project.Domain, settings.IncludeSubdomains) {
				link.LinkType = models.LinkTypeInternal
				if depth+1 <= settings.MaxDepth {
					admit(normalized, depth+1)
				}
			}
		}

		links = append(links, link)
	}
	return links
}
