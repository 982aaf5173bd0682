package crawler

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

const (
	topErrorPagesLimit   = 10
	topIssueTypesLimit   = 10
	duplicateTitleSample = 5
)

// PostProcessor runs after the BFS loop: it resolves broken links against
// the crawled pages, emits cross-page issues, clusters templates, and
// computes the run's totals.
type PostProcessor struct {
	crawls interfaces.CrawlStorage
	runs   interfaces.RunStorage
	logger arbor.ILogger
}

// NewPostProcessor creates a post-processor
func NewPostProcessor(crawls interfaces.CrawlStorage, runs interfaces.RunStorage, logger arbor.ILogger) *PostProcessor {
	return &PostProcessor{
		crawls: crawls,
		runs:   runs,
		logger: logger,
	}
}

// Run executes all post-processing stages and persists the resulting
// totals on the run.
func (p *PostProcessor) Run(ctx context.Context, runID string) (models.CrawlTotals, error) {
	totals := models.NewCrawlTotals()

	pages, err := p.crawls.ListPages(ctx, runID)
	if err != nil {
		return totals, fmt.Errorf("failed to load pages: %w", err)
	}
	links, err := p.crawls.ListLinks(ctx, runID)
	if err != nil {
		return totals, fmt.Errorf("failed to load links: %w", err)
	}

	// statusByURL maps normalized URL to the status the crawl observed.
	// Targets that were never fetched have no entry and stay unresolved.
	statusByURL := make(map[string]int, len(pages))
	for _, page := range pages {
		if page.StatusCode != nil {
			statusByURL[page.NormalizedURL] = *page.StatusCode
		}
	}

	broken, inlinkCounts := p.resolveBrokenLinks(ctx, runID, links, statusByURL)

	if err := p.emitDuplicateTitles(ctx, runID, pages); err != nil {
		return totals, err
	}
	if err := p.clusterTemplates(ctx, runID, pages); err != nil {
		return totals, err
	}

	p.fillLinkTotals(&totals, links, broken)
	p.fillPageTotals(&totals, pages, inlinkCounts)
	if err := p.fillIssueTotals(ctx, runID, &totals); err != nil {
		return totals, err
	}

	if err := p.runs.SetRunTotals(ctx, runID, totals); err != nil {
		return totals, fmt.Errorf("failed to persist totals: %w", err)
	}
	return totals, nil
}

// resolveBrokenLinks marks internal links whose crawled target returned a
// status of 400 or higher. Returns the set of broken link IDs and the
// per-target in-link counts of broken internal edges.
func (p *PostProcessor) resolveBrokenLinks(ctx context.Context, runID string, links []*models.Link, statusByURL map[string]int) (map[string]int, map[string]int) {
	broken := make(map[string]int)
	inlinkCounts := make(map[string]int)

	var targets []interfaces.LinkTarget
	for _, link := range links {
		if link.LinkType != models.LinkTypeInternal || link.ToNormalizedURL == "" {
			continue
		}
		status, fetched := statusByURL[link.ToNormalizedURL]
		if !fetched || status < 400 {
			continue
		}
		broken[link.ID] = status
		inlinkCounts[link.ToNormalizedURL]++
		targets = append(targets, interfaces.LinkTarget{LinkID: link.ID, StatusCode: status})
	}

	if len(targets) > 0 {
		if err := p.crawls.MarkLinksBroken(ctx, runID, targets); err != nil {
			p.logger.Error().Err(err).Str("run_id", runID).Msg("Failed to mark broken links")
		}
	}
	return broken, inlinkCounts
}

// emitDuplicateTitles groups pages by case-folded title and writes a
// DUPLICATE_TITLE issue for every member of a group of two or more.
func (p *PostProcessor) emitDuplicateTitles(ctx context.Context, runID string, pages []*models.Page) error {
	groups := make(map[string][]*models.Page)
	for _, page := range pages {
		key := strings.ToLower(strings.TrimSpace(page.Title))
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], page)
	}

	var issues []models.Issue
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}

		urls := make([]string, 0, duplicateTitleSample)
		for _, page := range group {
			if len(urls) >= duplicateTitleSample {
				break
			}
			urls = append(urls, page.NormalizedURL)
		}

		for _, page := range group {
			pageID := page.ID
			issues = append(issues, models.Issue{
				ID:             common.NewIssueID(),
				CrawlRunID:     runID,
				PageID:         &pageID,
				Type:           RuleDuplicateTitle,
				Severity:       models.SeverityMedium,
				Title:          "Duplicate page title",
				Description:    "Multiple pages in this crawl share the same title.",
				Recommendation: "Give each page a unique, descriptive title.",
				Evidence: map[string]interface{}{
					"title": group[0].Title,
					"count": len(group),
					"urls":  urls,
				},
			})
		}
	}

	if len(issues) == 0 {
		return nil
	}
	if err := p.crawls.InsertIssues(ctx, issues); err != nil {
		return fmt.Errorf("failed to insert duplicate title issues: %w", err)
	}
	return nil
}

// clusterTemplates upserts one Template per distinct signature hash and
// back-fills templateId on the member pages.
func (p *PostProcessor) clusterTemplates(ctx context.Context, runID string, pages []*models.Page) error {
	clusters := make(map[string][]*models.Page)
	for _, page := range pages {
		if page.TemplateSignatureHash == "" {
			continue
		}
		clusters[page.TemplateSignatureHash] = append(clusters[page.TemplateSignatureHash], page)
	}

	hashes := make([]string, 0, len(clusters))
	for hash := range clusters {
		hashes = append(hashes, hash)
	}
	sort.Strings(hashes)

	for _, hash := range hashes {
		group := clusters[hash]
		sample := group[0]

		tmpl := &models.Template{
			ID:            common.NewTemplateID(),
			CrawlRunID:    runID,
			SignatureHash: hash,
			SamplePageID:  sample.ID,
			PageCount:     len(group),
		}
		if sample.TemplateSignature != nil {
			tmpl.Signature = *sample.TemplateSignature
		}

		templateID, err := p.crawls.UpsertTemplate(ctx, tmpl)
		if err != nil {
			return fmt.Errorf("failed to upsert template: %w", err)
		}
		if err := p.crawls.AssignPageTemplates(ctx, runID, hash, templateID); err != nil {
			return fmt.Errorf("failed to assign page templates: %w", err)
		}
	}
	return nil
}

func (p *PostProcessor) fillLinkTotals(totals *models.CrawlTotals, links []*models.Link, broken map[string]int) {
	totals.LinksCount = len(links)
	for _, link := range links {
		switch link.LinkType {
		case models.LinkTypeInternal:
			totals.InternalLinksCount++
		case models.LinkTypeExternal:
			totals.ExternalLinksCount++
		}
		if _, isBroken := broken[link.ID]; isBroken {
			totals.BrokenInternalLinksCount++
		}
	}
}

func (p *PostProcessor) fillPageTotals(totals *models.CrawlTotals, pages []*models.Page, inlinkCounts map[string]int) {
	totals.PagesCount = len(pages)

	// Pages without a response count under "0" so the distribution always
	// sums to pagesCount.
	for _, page := range pages {
		status := 0
		if page.StatusCode != nil {
			status = *page.StatusCode
		}
		totals.StatusCodeDistribution[strconv.Itoa(status)]++
	}

	errorPages := make([]models.TopErrorPage, 0)
	for _, page := range pages {
		if page.StatusCode == nil || *page.StatusCode < 400 {
			continue
		}
		errorPages = append(errorPages, models.TopErrorPage{
			URL:        page.NormalizedURL,
			StatusCode: *page.StatusCode,
			Count:      inlinkCounts[page.NormalizedURL],
		})
	}
	sort.Slice(errorPages, func(i, j int) bool {
		if errorPages[i].Count != errorPages[j].Count {
			return errorPages[i].Count > errorPages[j].Count
		}
		return errorPages[i].URL < errorPages[j].URL
	})
	if len(errorPages) > topErrorPagesLimit {
		errorPages = errorPages[:topErrorPagesLimit]
	}
	totals.TopErrorPages = errorPages
}

func (p *PostProcessor) fillIssueTotals(ctx context.Context, runID string, totals *models.CrawlTotals) error {
	issues, err := p.crawls.ListIssues(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to load issues: %w", err)
	}

	totals.IssueCountTotal = len(issues)
	for _, issue := range issues {
		totals.IssueCountByType[issue.Type]++
		totals.IssueCountBySeverity[string(issue.Severity)]++
	}

	types := make([]models.TopIssueType, 0, len(totals.IssueCountByType))
	for issueType, count := range totals.IssueCountByType {
		types = append(types, models.TopIssueType{Type: issueType, Count: count})
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Count != types[j].Count {
			return types[i].Count > types[j].Count
		}
		return types[i].Type < types[j].Type
	})
	if len(types) > topIssueTypesLimit {
		types = types[:topIssueTypesLimit]
	}
	totals.TopIssueTypes = types
	return nil
}
