package crawler

import (
	"strings"

	"github.com/hydrafrog/hydrafrog/internal/models"
)

// Rule identifiers. Types are stable strings; dashboards key on them.
const (
	RuleStatus4xx5xx           = "STATUS_4XX_5XX"
	RuleStatus3xxRedirect      = "STATUS_3XX_REDIRECT"
	RuleRedirectChainLong      = "REDIRECT_CHAIN_LONG"
	RuleMissingTitle           = "MISSING_TITLE"
	RuleTitleTooLong           = "TITLE_TOO_LONG"
	RuleTitleTooShort          = "TITLE_TOO_SHORT"
	RuleMissingMetaDescription = "MISSING_META_DESCRIPTION"
	RuleH1Missing              = "H1_MISSING"
	RuleH1Multiple             = "H1_MULTIPLE"
	RuleCanonicalMissing       = "CANONICAL_MISSING"
	RuleRobotsNoindex          = "ROBOTS_NOINDEX"
	RuleThinContent            = "THIN_CONTENT"
	RuleImagesMissingAlt       = "IMAGES_MISSING_ALT"
	RuleFetchError             = "FETCH_ERROR"
	RuleDuplicateTitle         = "DUPLICATE_TITLE"
)

const (
	titleMaxLen      = 60
	titleMinLen      = 10
	thinContentWords = 150
	longRedirectLen  = 3
)

// EvaluateRules runs every per-page rule against a fetch result and returns
// the issue drafts that fired. Drafts carry type, severity, texts, and
// evidence; the caller stamps IDs and ownership. Rules are independent:
// every applicable rule fires.
func EvaluateRules(result *PageResult) []models.Issue {
	var issues []models.Issue

	add := func(ruleType string, severity models.IssueSeverity, title, description, recommendation string, evidence map[string]interface{}) {
		issues = append(issues, models.Issue{
			Type:           ruleType,
			Severity:       severity,
			Title:          title,
			Description:    description,
			Recommendation: recommendation,
			Evidence:       evidence,
		})
	}

	if result.Error != "" && result.StatusCode == nil {
		add(RuleFetchError, models.SeverityHigh,
			"Page could not be fetched",
			"The request failed before a response was received.",
			"Check DNS, TLS configuration, and server availability for this URL.",
			map[string]interface{}{"url": result.URL, "error": result.Error})
		return issues
	}

	if result.StatusCode != nil {
		status := *result.StatusCode
		if status >= 400 {
			add(RuleStatus4xx5xx, models.SeverityCritical,
				"Page returns an error status",
				"The page responded with a 4xx or 5xx status code.",
				"Fix the page or remove links pointing to it.",
				map[string]interface{}{"statusCode": status, "url": result.URL})
		}
		if status >= 300 && status < 400 {
			add(RuleStatus3xxRedirect, models.SeverityMedium,
				"Page is a redirect",
				"The URL resolves with a 3xx redirect status.",
				"Link directly to the redirect target instead.",
				map[string]interface{}{"statusCode": status, "url": result.URL})
		}
	}

	if len(result.RedirectChain) >= longRedirectLen {
		add(RuleRedirectChainLong, models.SeverityHigh,
			"Long redirect chain",
			"Reaching the page required three or more redirects.",
			"Point links at the final URL to cut the chain.",
			map[string]interface{}{"chainLength": len(result.RedirectChain), "url": result.URL})
	}

	// Content rules only apply once a document was actually parsed.
	if result.Doc == nil {
		return issues
	}

	title := strings.TrimSpace(result.Title)
	switch {
	case title == "":
		add(RuleMissingTitle, models.SeverityHigh,
			"Missing page title",
			"The page has no <title> element or it is empty.",
			"Add a unique, descriptive title of 10-60 characters.",
			map[string]interface{}{"url": result.URL})
	case len(title) > titleMaxLen:
		add(RuleTitleTooLong, models.SeverityLow,
			"Page title too long",
			"Titles over 60 characters are truncated in search results.",
			"Shorten the title to at most 60 characters.",
			map[string]interface{}{"title": title, "length": len(title)})
	case len(title) < titleMinLen:
		add(RuleTitleTooShort, models.SeverityLow,
			"Page title too short",
			"Titles under 10 characters carry little ranking signal.",
			"Expand the title to describe the page content.",
			map[string]interface{}{"title": title, "length": len(title)})
	}

	if strings.TrimSpace(result.MetaDescription) == "" {
		add(RuleMissingMetaDescription, models.SeverityMedium,
			"Missing meta description",
			"The page has no meta description.",
			"Add a meta description of roughly 50-160 characters.",
			map[string]interface{}{"url": result.URL})
	}

	if result.H1Count == 0 {
		add(RuleH1Missing, models.SeverityHigh,
			"Missing H1 heading",
			"The page has no <h1> element.",
			"Add exactly one <h1> describing the page topic.",
			map[string]interface{}{"url": result.URL})
	} else if result.H1Count > 1 {
		add(RuleH1Multiple, models.SeverityLow,
			"Multiple H1 headings",
			"The page has more than one <h1> element.",
			"Keep a single <h1> and demote the rest to <h2>.",
			map[string]interface{}{"h1Count": result.H1Count})
	}

	if strings.TrimSpace(result.Canonical) == "" {
		add(RuleCanonicalMissing, models.SeverityLow,
			"Missing canonical link",
			"The page declares no rel=canonical URL.",
			"Add a canonical link to guard against duplicate-content dilution.",
			map[string]interface{}{"url": result.URL})
	}

	if strings.Contains(strings.ToLower(result.RobotsMeta), "noindex") {
		add(RuleRobotsNoindex, models.SeverityMedium,
			"Page excluded from indexing",
			"The robots meta tag contains a noindex directive.",
			"Remove noindex if this page should appear in search results.",
			map[string]interface{}{"robotsMeta": result.RobotsMeta})
	}

	if result.WordCount != nil && *result.WordCount < thinContentWords {
		add(RuleThinContent, models.SeverityLow,
			"Thin content",
			"The page has fewer than 150 words of visible text.",
			"Expand the page content or consolidate it with a related page.",
			map[string]interface{}{"wordCount": *result.WordCount})
	}

	if result.ImagesMissingAlt > 0 {
		add(RuleImagesMissingAlt, models.SeverityLow,
			"Images missing alt text",
			"One or more images have no alt attribute.",
			"Add descriptive alt text to every content image.",
			map[string]interface{}{"imagesMissingAlt": result.ImagesMissingAlt})
	}

	return issues
}
