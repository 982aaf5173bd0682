package sqlite

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/hydrafrog/hydrafrog/internal/common"
	"github.com/hydrafrog/hydrafrog/internal/interfaces"
	"github.com/hydrafrog/hydrafrog/internal/models"
)

func setupTestStorage(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.SQLiteConfig{
		Path:          t.TempDir() + "/test.db",
		WALMode:       true,
		CacheSizeMB:   10,
		BusyTimeoutMS: 5000,
	})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func createTestProject(t *testing.T, storage interfaces.StorageManager) *models.Project {
	t.Helper()
	project := &models.Project{
		ID:       common.NewProjectID(),
		Name:     "Test Project",
		StartURL: "https://example.test/",
		Domain:   "example.test",
		Settings: models.DefaultCrawlSettings(),
	}
	require.NoError(t, storage.Projects().SaveProject(context.Background(), project))
	return project
}

func createTestRun(t *testing.T, storage interfaces.StorageManager, projectID string) *models.CrawlRun {
	t.Helper()
	run := &models.CrawlRun{
		ID:               common.NewRunID(),
		ProjectID:        projectID,
		Status:           models.RunStatusQueued,
		SettingsSnapshot: models.DefaultCrawlSettings(),
		Totals:           models.NewCrawlTotals(),
	}
	require.NoError(t, storage.Runs().CreateRun(context.Background(), run))
	return run
}

func testPage(runID, normalizedURL string) *models.Page {
	status := 200
	return &models.Page{
		ID:            common.NewPageID(),
		CrawlRunID:    runID,
		URL:           normalizedURL,
		NormalizedURL: normalizedURL,
		StatusCode:    &status,
		Title:         "Test Page",
	}
}

func TestProjectStorage_SaveAndGet(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	project := createTestProject(t, storage)

	loaded, err := storage.Projects().GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Name, loaded.Name)
	assert.Equal(t, project.StartURL, loaded.StartURL)
	assert.Equal(t, project.Domain, loaded.Domain)
	assert.Equal(t, project.Settings.MaxPages, loaded.Settings.MaxPages)
	assert.False(t, loaded.CreatedAt.IsZero())

	// Save again is an upsert.
	project.Name = "Renamed"
	project.Schedule = "0 3 * * *"
	require.NoError(t, storage.Projects().SaveProject(ctx, project))

	loaded, err = storage.Projects().GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", loaded.Name)
	assert.Equal(t, "0 3 * * *", loaded.Schedule)
}

func TestProjectStorage_GetMissing(t *testing.T) {
	storage := setupTestStorage(t)
	_, err := storage.Projects().GetProject(context.Background(), "proj_missing")
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)
}

func TestProjectStorage_ListAndDelete(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	first := createTestProject(t, storage)
	second := createTestProject(t, storage)

	projects, err := storage.Projects().ListProjects(ctx)
	require.NoError(t, err)
	assert.Len(t, projects, 2)

	require.NoError(t, storage.Projects().DeleteProject(ctx, first.ID))
	_, err = storage.Projects().GetProject(ctx, first.ID)
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)

	_, err = storage.Projects().GetProject(ctx, second.ID)
	assert.NoError(t, err)

	err = storage.Projects().DeleteProject(ctx, first.ID)
	assert.ErrorIs(t, err, interfaces.ErrProjectNotFound)
}

func TestProjectStorage_SettingsRoundTripPreservesZeros(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()

	settings := models.DefaultCrawlSettings()
	settings.MaxPages = 0
	settings.ThrottleMs = 0

	project := &models.Project{
		ID:       common.NewProjectID(),
		Name:     "Zeros",
		StartURL: "https://example.test/",
		Domain:   "example.test",
		Settings: settings,
	}
	require.NoError(t, storage.Projects().SaveProject(ctx, project))

	loaded, err := storage.Projects().GetProject(ctx, project.ID)
	require.NoError(t, err)
	// Explicit zeros are meaningful and must survive the round trip.
	assert.Equal(t, 0, loaded.Settings.MaxPages)
	assert.Equal(t, 0, loaded.Settings.ThrottleMs)
	assert.Equal(t, models.DefaultMaxDepth, loaded.Settings.MaxDepth)
}

func TestRunStorage_SingleActiveRunPerProject(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)

	run := createTestRun(t, storage, project.ID)

	second := &models.CrawlRun{
		ID:               common.NewRunID(),
		ProjectID:        project.ID,
		Status:           models.RunStatusQueued,
		SettingsSnapshot: models.DefaultCrawlSettings(),
		Totals:           models.NewCrawlTotals(),
	}
	assert.ErrorIs(t, storage.Runs().CreateRun(ctx, second), interfaces.ErrRunActive)

	// Still blocked while the first run is RUNNING.
	require.NoError(t, storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusRunning))
	assert.ErrorIs(t, storage.Runs().CreateRun(ctx, second), interfaces.ErrRunActive)

	// A terminal first run frees the slot.
	require.NoError(t, storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusDone))
	assert.NoError(t, storage.Runs().CreateRun(ctx, second))
}

func TestRunStorage_TransitionLifecycle(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	// QUEUED cannot jump straight to DONE.
	err := storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusDone)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)

	require.NoError(t, storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusRunning))
	loaded, err := storage.Runs().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusRunning, loaded.Status)
	assert.NotNil(t, loaded.StartedAt)
	assert.Nil(t, loaded.FinishedAt)

	// Same-status transitions are idempotent no-ops.
	assert.NoError(t, storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusRunning))

	require.NoError(t, storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusDone))
	loaded, err = storage.Runs().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusDone, loaded.Status)
	assert.NotNil(t, loaded.FinishedAt)

	// Terminal states are sinks.
	err = storage.Runs().TransitionRun(ctx, run.ID, models.RunStatusCanceled)
	assert.ErrorIs(t, err, interfaces.ErrInvalidTransition)
}

func TestRunStorage_TransitionMissingRun(t *testing.T) {
	storage := setupTestStorage(t)
	err := storage.Runs().TransitionRun(context.Background(), "run_missing", models.RunStatusRunning)
	assert.ErrorIs(t, err, interfaces.ErrRunNotFound)
}

func TestRunStorage_SetRunTotals(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	totals := models.NewCrawlTotals()
	totals.PagesCount = 7
	totals.StatusCodeDistribution["200"] = 6
	totals.StatusCodeDistribution["404"] = 1
	totals.LastErrorMessage = ""
	require.NoError(t, storage.Runs().SetRunTotals(ctx, run.ID, totals))

	loaded, err := storage.Runs().GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Totals.PagesCount)
	assert.Equal(t, map[string]int{"200": 6, "404": 1}, loaded.Totals.StatusCodeDistribution)

	err = storage.Runs().SetRunTotals(ctx, "run_missing", totals)
	assert.ErrorIs(t, err, interfaces.ErrRunNotFound)
}

func TestRunStorage_ListRunsByProject(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)

	first := createTestRun(t, storage, project.ID)
	require.NoError(t, storage.Runs().TransitionRun(ctx, first.ID, models.RunStatusCanceled))
	second := createTestRun(t, storage, project.ID)

	runs, err := storage.Runs().ListRunsByProject(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	ids := []string{runs[0].ID, runs[1].ID}
	assert.Contains(t, ids, first.ID)
	assert.Contains(t, ids, second.ID)
}

func TestCrawlStorage_PageCollisionFirstWriterWins(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	first := testPage(run.ID, "https://example.test/dup")
	firstIssue := models.Issue{
		ID: common.NewIssueID(), CrawlRunID: run.ID, PageID: &first.ID,
		Type: "MISSING_TITLE", Severity: models.SeverityMedium,
		Title: "t", Description: "d", Recommendation: "r",
	}
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, first, []models.Issue{firstIssue}))

	second := testPage(run.ID, "https://example.test/dup")
	second.Title = "Loser"
	secondIssue := firstIssue
	secondIssue.ID = common.NewIssueID()
	secondIssue.PageID = &second.ID
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, second, []models.Issue{secondIssue}))

	pages, err := storage.Crawls().ListPages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, first.ID, pages[0].ID)
	assert.Equal(t, "Test Page", pages[0].Title)

	// The colliding writer's issues are dropped with its page.
	issues, err := storage.Crawls().ListIssues(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, firstIssue.ID, issues[0].ID)
}

func TestCrawlStorage_MarkLinksBroken(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	page := testPage(run.ID, "https://example.test/")
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, page, nil))

	links := make([]models.Link, 0, 3)
	for i := 0; i < 3; i++ {
		fromID := page.ID
		links = append(links, models.Link{
			ID:              common.NewLinkID(),
			CrawlRunID:      run.ID,
			FromPageID:      &fromID,
			ToURL:           fmt.Sprintf("/p%d", i),
			ToNormalizedURL: fmt.Sprintf("https://example.test/p%d", i),
			LinkType:        models.LinkTypeInternal,
		})
	}
	require.NoError(t, storage.Crawls().PersistLinks(ctx, links))

	require.NoError(t, storage.Crawls().MarkLinksBroken(ctx, run.ID, []interfaces.LinkTarget{
		{LinkID: links[1].ID, StatusCode: 404},
	}))

	loaded, err := storage.Crawls().ListLinks(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	for _, link := range loaded {
		if link.ID == links[1].ID {
			assert.True(t, link.IsBroken)
			require.NotNil(t, link.StatusCode)
			assert.Equal(t, 404, *link.StatusCode)
		} else {
			assert.False(t, link.IsBroken)
			assert.Nil(t, link.StatusCode)
		}
	}
}

func TestCrawlStorage_UpsertTemplateKeepsID(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	tmpl := &models.Template{
		ID:            common.NewTemplateID(),
		CrawlRunID:    run.ID,
		SignatureHash: "abc123",
		SamplePageID:  "page_1",
		PageCount:     2,
	}
	firstID, err := storage.Crawls().UpsertTemplate(ctx, tmpl)
	require.NoError(t, err)
	assert.Equal(t, tmpl.ID, firstID)

	// Re-upserting the same hash updates the count but keeps the row's ID.
	again := &models.Template{
		ID:            common.NewTemplateID(),
		CrawlRunID:    run.ID,
		SignatureHash: "abc123",
		SamplePageID:  "page_2",
		PageCount:     5,
	}
	secondID, err := storage.Crawls().UpsertTemplate(ctx, again)
	require.NoError(t, err)
	assert.Equal(t, firstID, secondID)

	templates, err := storage.Crawls().ListTemplates(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, 5, templates[0].PageCount)
	assert.Equal(t, "page_2", templates[0].SamplePageID)
}

func TestCrawlStorage_AssignPageTemplates(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	matching := testPage(run.ID, "https://example.test/a")
	matching.TemplateSignatureHash = "hash_a"
	other := testPage(run.ID, "https://example.test/b")
	other.TemplateSignatureHash = "hash_b"
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, matching, nil))
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, other, nil))

	require.NoError(t, storage.Crawls().AssignPageTemplates(ctx, run.ID, "hash_a", "tmpl_x"))

	pages, err := storage.Crawls().ListPages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	for _, page := range pages {
		if page.ID == matching.ID {
			assert.Equal(t, "tmpl_x", page.TemplateID)
		} else {
			assert.Empty(t, page.TemplateID)
		}
	}
}

func TestCrawlStorage_WipeRunChildren(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	page := testPage(run.ID, "https://example.test/")
	issue := models.Issue{
		ID: common.NewIssueID(), CrawlRunID: run.ID, PageID: &page.ID,
		Type: "MISSING_TITLE", Severity: models.SeverityMedium,
		Title: "t", Description: "d", Recommendation: "r",
	}
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, page, []models.Issue{issue}))

	fromID := page.ID
	require.NoError(t, storage.Crawls().PersistLinks(ctx, []models.Link{{
		ID: common.NewLinkID(), CrawlRunID: run.ID, FromPageID: &fromID,
		ToURL: "/x", LinkType: models.LinkTypeInternal,
	}}))
	_, err := storage.Crawls().UpsertTemplate(ctx, &models.Template{
		ID: common.NewTemplateID(), CrawlRunID: run.ID, SignatureHash: "h", PageCount: 1,
	})
	require.NoError(t, err)

	require.NoError(t, storage.Crawls().WipeRunChildren(ctx, run.ID))

	pages, err := storage.Crawls().ListPages(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)
	links, err := storage.Crawls().ListLinks(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, links)
	issues, err := storage.Crawls().ListIssues(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, issues)
	templates, err := storage.Crawls().ListTemplates(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, templates)

	// The run itself survives the wipe.
	_, err = storage.Runs().GetRun(ctx, run.ID)
	assert.NoError(t, err)
}

func TestRunStorage_DeleteRunCascades(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	page := testPage(run.ID, "https://example.test/")
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, page, nil))

	require.NoError(t, storage.Runs().DeleteRun(ctx, run.ID))

	_, err := storage.Runs().GetRun(ctx, run.ID)
	assert.ErrorIs(t, err, interfaces.ErrRunNotFound)

	pages, err := storage.Crawls().ListPages(ctx, run.ID)
	require.NoError(t, err)
	assert.Empty(t, pages)

	err = storage.Runs().DeleteRun(ctx, run.ID)
	assert.ErrorIs(t, err, interfaces.ErrRunNotFound)
}

func TestCrawlStorage_PagePersistsNilAndSetFields(t *testing.T) {
	storage := setupTestStorage(t)
	ctx := context.Background()
	project := createTestProject(t, storage)
	run := createTestRun(t, storage, project.ID)

	page := &models.Page{
		ID:            common.NewPageID(),
		CrawlRunID:    run.ID,
		URL:           "https://example.test/dead",
		NormalizedURL: "https://example.test/dead",
		FetchError:    "dial tcp: connection refused",
		RedirectChain: []models.RedirectHop{{URL: "https://example.test/old", StatusCode: 301}},
	}
	require.NoError(t, storage.Crawls().PersistPageResult(ctx, page, nil))

	pages, err := storage.Crawls().ListPages(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	loaded := pages[0]
	assert.Nil(t, loaded.StatusCode)
	assert.Nil(t, loaded.WordCount)
	assert.Equal(t, "dial tcp: connection refused", loaded.FetchError)
	require.Len(t, loaded.RedirectChain, 1)
	assert.Equal(t, 301, loaded.RedirectChain[0].StatusCode)
}
