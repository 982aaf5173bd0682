package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

// writeBatchSize bounds bulk inserts and updates of child rows.
const writeBatchSize = 100

// CrawlStorage implements the narrow persistence seam the BFS driver and
// post-processor write through. Every operation is scoped to one run.
type CrawlStorage struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

// NewCrawlStorage creates a new crawl storage instance
func NewCrawlStorage(db *SQLiteDB, logger arbor.ILogger) interfaces.CrawlStorage {
	return &CrawlStorage{db: db, logger: logger}
}

// WipeRunChildren deletes all child rows of the run. Runs before the first
// fetch of a job execution so at-least-once delivery stays idempotent.
func (s *CrawlStorage) WipeRunChildren(ctx context.Context, runID string) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Issues and links first; they reference pages.
	for _, table := range []string{"issues", "links", "pages", "templates"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE crawl_run_id = ?", table), runID); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", table, err)
		}
	}
	return tx.Commit()
}

// PersistPageResult writes a page and its issues atomically. On a
// (crawl_run_id, normalized_url) collision the insert is a no-op and the
// issues are dropped with it: first writer wins.
func (s *CrawlStorage) PersistPageResult(ctx context.Context, page *models.Page, issues []models.Issue) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	redirectJSON, err := page.RedirectChainJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize redirect chain: %w", err)
	}

	var signatureJSON sql.NullString
	if page.TemplateSignature != nil {
		data, err := json.Marshal(page.TemplateSignature)
		if err != nil {
			return fmt.Errorf("failed to serialize template signature: %w", err)
		}
		signatureJSON = sql.NullString{String: string(data), Valid: true}
	}

	if page.DiscoveredAt.IsZero() {
		page.DiscoveredAt = time.Now()
	}

	query := `
		INSERT INTO pages (
			id, crawl_run_id, url, normalized_url, status_code, content_type,
			title, meta_description, h1_count, canonical, robots_meta, word_count,
			redirect_chain_json, template_signature_hash, template_signature_json,
			template_id, fetch_error, discovered_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(crawl_run_id, normalized_url) DO NOTHING
	`
	result, err := tx.ExecContext(ctx, query,
		page.ID, page.CrawlRunID, page.URL, page.NormalizedURL,
		nullableInt(page.StatusCode), nullableString(page.ContentType),
		nullableString(page.Title), nullableString(page.MetaDescription),
		page.H1Count, nullableString(page.Canonical), nullableString(page.RobotsMeta),
		nullableInt(page.WordCount), redirectJSON,
		nullableString(page.TemplateSignatureHash), signatureJSON,
		nullableString(page.TemplateID), nullableString(page.FetchError),
		page.DiscoveredAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert page: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Normalized URL collision; the first writer's row stands.
		return tx.Commit()
	}

	if err := insertIssuesTx(ctx, tx, issues); err != nil {
		return err
	}
	return tx.Commit()
}

// PersistLinks inserts links unconditionally, in bounded batches.
func (s *CrawlStorage) PersistLinks(ctx context.Context, links []models.Link) error {
	if len(links) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO links (id, crawl_run_id, from_page_id, to_url, to_normalized_url, link_type, is_broken, status_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare link insert: %w", err)
	}
	defer stmt.Close()

	for i := range links {
		link := &links[i]
		var fromPageID sql.NullString
		if link.FromPageID != nil {
			fromPageID = sql.NullString{String: *link.FromPageID, Valid: true}
		}
		_, err := stmt.ExecContext(ctx,
			link.ID, link.CrawlRunID, fromPageID, link.ToURL,
			nullableString(link.ToNormalizedURL), string(link.LinkType),
			boolToInt(link.IsBroken), nullableInt(link.StatusCode))
		if err != nil {
			return fmt.Errorf("failed to insert link: %w", err)
		}
	}
	return tx.Commit()
}

// InsertIssues bulk-inserts issues (used for global issues in
// post-processing; per-page issues ride the page transaction).
func (s *CrawlStorage) InsertIssues(ctx context.Context, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertIssuesTx(ctx, tx, issues); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkLinksBroken sets is_broken and the resolved target status on the
// given links, committing in bounded batches.
func (s *CrawlStorage) MarkLinksBroken(ctx context.Context, runID string, targets []interfaces.LinkTarget) error {
	for start := 0; start < len(targets); start += writeBatchSize {
		end := start + writeBatchSize
		if end > len(targets) {
			end = len(targets)
		}
		if err := s.markLinksBrokenBatch(ctx, runID, targets[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *CrawlStorage) markLinksBrokenBatch(ctx context.Context, runID string, targets []interfaces.LinkTarget) error {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		UPDATE links SET is_broken = 1, status_code = ? WHERE id = ? AND crawl_run_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare link update: %w", err)
	}
	defer stmt.Close()

	for _, target := range targets {
		if _, err := stmt.ExecContext(ctx, target.StatusCode, target.LinkID, runID); err != nil {
			return fmt.Errorf("failed to mark link broken: %w", err)
		}
	}
	return tx.Commit()
}

// ListPages returns the run's pages in discovery order.
func (s *CrawlStorage) ListPages(ctx context.Context, runID string) ([]*models.Page, error) {
	query := `
		SELECT id, crawl_run_id, url, normalized_url, status_code, content_type,
			title, meta_description, h1_count, canonical, robots_meta, word_count,
			redirect_chain_json, template_signature_hash, template_signature_json,
			template_id, fetch_error, discovered_at
		FROM pages WHERE crawl_run_id = ? ORDER BY discovered_at ASC, rowid ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*models.Page
	for rows.Next() {
		page, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

// ListLinks returns the run's links in insertion order.
func (s *CrawlStorage) ListLinks(ctx context.Context, runID string) ([]*models.Link, error) {
	query := `
		SELECT id, crawl_run_id, from_page_id, to_url, to_normalized_url, link_type, is_broken, status_code
		FROM links WHERE crawl_run_id = ? ORDER BY rowid ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}
	defer rows.Close()

	var links []*models.Link
	for rows.Next() {
		var (
			link       models.Link
			fromPageID sql.NullString
			toNorm     sql.NullString
			linkType   string
			isBroken   int
			statusCode sql.NullInt64
		)
		err := rows.Scan(&link.ID, &link.CrawlRunID, &fromPageID, &link.ToURL,
			&toNorm, &linkType, &isBroken, &statusCode)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		if fromPageID.Valid {
			v := fromPageID.String
			link.FromPageID = &v
		}
		link.ToNormalizedURL = toNorm.String
		link.LinkType = models.LinkType(linkType)
		link.IsBroken = isBroken != 0
		if statusCode.Valid {
			v := int(statusCode.Int64)
			link.StatusCode = &v
		}
		links = append(links, &link)
	}
	return links, rows.Err()
}

// ListIssues returns the run's issues in insertion order.
func (s *CrawlStorage) ListIssues(ctx context.Context, runID string) ([]*models.Issue, error) {
	query := `
		SELECT id, crawl_run_id, page_id, type, severity, title, description, recommendation, evidence_json
		FROM issues WHERE crawl_run_id = ? ORDER BY rowid ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []*models.Issue
	for rows.Next() {
		var (
			issue        models.Issue
			pageID       sql.NullString
			severity     string
			evidenceJSON string
		)
		err := rows.Scan(&issue.ID, &issue.CrawlRunID, &pageID, &issue.Type,
			&severity, &issue.Title, &issue.Description, &issue.Recommendation, &evidenceJSON)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		if pageID.Valid {
			v := pageID.String
			issue.PageID = &v
		}
		issue.Severity = models.IssueSeverity(severity)
		if evidenceJSON != "" && evidenceJSON != "{}" {
			if err := json.Unmarshal([]byte(evidenceJSON), &issue.Evidence); err != nil {
				return nil, fmt.Errorf("failed to parse issue evidence: %w", err)
			}
		}
		issues = append(issues, &issue)
	}
	return issues, rows.Err()
}

// UpsertTemplate writes a template cluster keyed on
// (crawl_run_id, signature_hash), updating the page count on conflict, and
// returns the stored row's ID.
func (s *CrawlStorage) UpsertTemplate(ctx context.Context, tmpl *models.Template) (string, error) {
	signatureJSON, err := json.Marshal(tmpl.Signature)
	if err != nil {
		return "", fmt.Errorf("failed to serialize template signature: %w", err)
	}

	query := `
		INSERT INTO templates (id, crawl_run_id, signature_hash, signature_json, sample_page_id, page_count)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(crawl_run_id, signature_hash) DO UPDATE SET
			page_count = excluded.page_count,
			sample_page_id = excluded.sample_page_id
	`
	_, err = s.db.DB().ExecContext(ctx, query,
		tmpl.ID, tmpl.CrawlRunID, tmpl.SignatureHash, string(signatureJSON),
		nullableString(tmpl.SamplePageID), tmpl.PageCount)
	if err != nil {
		return "", fmt.Errorf("failed to upsert template: %w", err)
	}

	var id string
	err = s.db.DB().QueryRowContext(ctx,
		`SELECT id FROM templates WHERE crawl_run_id = ? AND signature_hash = ?`,
		tmpl.CrawlRunID, tmpl.SignatureHash).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to read template id: %w", err)
	}
	return id, nil
}

// AssignPageTemplates back-fills template_id on every page of the run whose
// signature hash matches.
func (s *CrawlStorage) AssignPageTemplates(ctx context.Context, runID, signatureHash, templateID string) error {
	_, err := s.db.DB().ExecContext(ctx,
		`UPDATE pages SET template_id = ? WHERE crawl_run_id = ? AND template_signature_hash = ?`,
		templateID, runID, signatureHash)
	if err != nil {
		return fmt.Errorf("failed to assign page templates: %w", err)
	}
	return nil
}

// ListTemplates returns the run's template clusters in insertion order.
func (s *CrawlStorage) ListTemplates(ctx context.Context, runID string) ([]*models.Template, error) {
	query := `
		SELECT id, crawl_run_id, signature_hash, signature_json, sample_page_id, page_count
		FROM templates WHERE crawl_run_id = ? ORDER BY rowid ASC
	`
	rows, err := s.db.DB().QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		var (
			tmpl          models.Template
			signatureJSON string
			samplePageID  sql.NullString
		)
		err := rows.Scan(&tmpl.ID, &tmpl.CrawlRunID, &tmpl.SignatureHash,
			&signatureJSON, &samplePageID, &tmpl.PageCount)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}
		if signatureJSON != "" {
			if err := json.Unmarshal([]byte(signatureJSON), &tmpl.Signature); err != nil {
				return nil, fmt.Errorf("failed to parse template signature: %w", err)
			}
		}
		tmpl.SamplePageID = samplePageID.String
		templates = append(templates, &tmpl)
	}
	return templates, rows.Err()
}

func insertIssuesTx(ctx context.Context, tx *sql.Tx, issues []models.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO issues (id, crawl_run_id, page_id, type, severity, title, description, recommendation, evidence_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare issue insert: %w", err)
	}
	defer stmt.Close()

	for i := range issues {
		issue := &issues[i]
		evidenceJSON, err := issue.EvidenceJSON()
		if err != nil {
			return fmt.Errorf("failed to serialize issue evidence: %w", err)
		}
		var pageID sql.NullString
		if issue.PageID != nil {
			pageID = sql.NullString{String: *issue.PageID, Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			issue.ID, issue.CrawlRunID, pageID, issue.Type, string(issue.Severity),
			issue.Title, issue.Description, issue.Recommendation, evidenceJSON)
		if err != nil {
			return fmt.Errorf("failed to insert issue: %w", err)
		}
	}
	return nil
}

func scanPage(row rowScanner) (*models.Page, error) {
	var (
		page          models.Page
		statusCode    sql.NullInt64
		contentType   sql.NullString
		title         sql.NullString
		metaDesc      sql.NullString
		canonical     sql.NullString
		robotsMeta    sql.NullString
		wordCount     sql.NullInt64
		redirectJSON  string
		signatureHash sql.NullString
		signatureJSON sql.NullString
		templateID    sql.NullString
		fetchError    sql.NullString
		discoveredAt  int64
	)
	err := row.Scan(&page.ID, &page.CrawlRunID, &page.URL, &page.NormalizedURL,
		&statusCode, &contentType, &title, &metaDesc, &page.H1Count,
		&canonical, &robotsMeta, &wordCount, &redirectJSON,
		&signatureHash, &signatureJSON, &templateID, &fetchError, &discoveredAt)
	if err != nil {
		return nil, fmt.Errorf("failed to scan page: %w", err)
	}

	if statusCode.Valid {
		v := int(statusCode.Int64)
		page.StatusCode = &v
	}
	page.ContentType = contentType.String
	page.Title = title.String
	page.MetaDescription = metaDesc.String
	page.Canonical = canonical.String
	page.RobotsMeta = robotsMeta.String
	if wordCount.Valid {
		v := int(wordCount.Int64)
		page.WordCount = &v
	}
	if redirectJSON != "" && redirectJSON != "[]" {
		if err := json.Unmarshal([]byte(redirectJSON), &page.RedirectChain); err != nil {
			return nil, fmt.Errorf("failed to parse redirect chain: %w", err)
		}
	}
	page.TemplateSignatureHash = signatureHash.String
	if signatureJSON.Valid && signatureJSON.String != "" {
		var sig models.TemplateSignature
		if err := json.Unmarshal([]byte(signatureJSON.String), &sig); err != nil {
			return nil, fmt.Errorf("failed to parse template signature: %w", err)
		}
		page.TemplateSignature = &sig
	}
	page.TemplateID = templateID.String
	page.FetchError = fetchError.String
	page.DiscoveredAt = time.Unix(discoveredAt, 0)
	return &page, nil
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
