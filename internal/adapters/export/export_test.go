package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"
	"testing"
	"time"

	"territorycore/internal/aggregate"
	"territorycore/internal/blob"
	"territorycore/internal/engine"
	"territorycore/internal/infra/persistence/memory"
	"territorycore/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var exportNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

type emptySource struct{}

func (emptySource) Territories() *engine.Topic[[]aggregate.TerritoryView] {
	return engine.NewTopic[[]aggregate.TerritoryView]()
}
func (emptySource) Keys() *engine.Topic[[]aggregate.KeyView] {
	return engine.NewTopic[[]aggregate.KeyView]()
}
func (emptySource) Recent() *engine.Topic[[]aggregate.RecentTerritory] {
	return engine.NewTopic[[]aggregate.RecentTerritory]()
}
func (emptySource) RecentPhone() *engine.Topic[[]aggregate.RecentPhoneTerritory] {
	return engine.NewTopic[[]aggregate.RecentPhoneTerritory]()
}
func (emptySource) PhoneTerritories() *engine.Topic[[]aggregate.PhoneTerritoryView] {
	return engine.NewTopic[[]aggregate.PhoneTerritoryView]()
}
func (emptySource) Recalls() *engine.Topic[[]aggregate.RecallView] {
	return engine.NewTopic[[]aggregate.RecallView]()
}

func startedEngine(t *testing.T) *engine.Engine {
	t.Helper()
	store := memory.NewStore(nil)
	store.SetNowFunc(func() time.Time { return exportNow })
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateTerritory(domain.Territory{Base: domain.Base{ID: "t2"}, Number: 2, Description: "Hialeah, Norte"}); err != nil {
			return err
		}
		if _, err := tx.CreateTerritory(domain.Territory{Base: domain.Base{ID: "t1"}, Number: 1, Description: "Centro"}); err != nil {
			return err
		}
		if _, err := tx.CreateAddress(domain.Address{Base: domain.Base{ID: "a1"}, TerritoryID: "t1", Address: "Calle 8"}); err != nil {
			return err
		}
		if _, err := tx.CreateHouse(domain.House{Base: domain.Base{ID: "h1"}, AddressID: "a1", Number: "12"}); err != nil {
			return err
		}
		_, err := tx.CreateVisit(domain.Visit{Base: domain.Base{ID: "v1"}, HouseID: "h1", Date: exportNow.Add(-time.Hour).UnixMilli(), UserName: "Ana"})
		return err
	})
	require.NoError(t, err)
	e := engine.New(store, engine.Config{Now: func() time.Time { return exportNow }, Logger: zap.NewNop()})
	e.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, e.Stop(ctx))
	})
	require.Eventually(t, func() bool {
		_, ok := e.Recent().Latest()
		_, tok := e.Territories().Latest()
		return ok && tok
	}, 2*time.Second, 10*time.Millisecond)
	return e
}

func TestParseFormatAndReport(t *testing.T) {
	f, err := ParseFormat(" CSV ")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)
	_, err = ParseFormat("xlsx")
	assert.ErrorIs(t, err, ErrUnknownFormat)

	r, err := ParseReport("Recent-Phone")
	require.NoError(t, err)
	assert.Equal(t, ReportRecentPhone, r)
	_, err = ParseReport("visits")
	assert.ErrorIs(t, err, ErrUnknownReport)
}

func TestRenderNotReady(t *testing.T) {
	for _, report := range Reports {
		_, err := Render(emptySource{}, report, FormatJSON)
		assert.ErrorIs(t, err, ErrNotReady, report)
	}
}

func TestRenderTerritoriesCSV(t *testing.T) {
	e := startedEngine(t)
	out, err := Render(e, ReportTerritories, FormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", out.ContentType)
	assert.Equal(t, 2, out.Rows)

	records, err := csv.NewReader(strings.NewReader(string(out.Payload))).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"id", "number", "description", "addresses", "houses", "access"}, records[0])
	assert.Equal(t, []string{"t1", "1", "Centro", "1", "1", "user"}, records[1])
	assert.Equal(t, "Hialeah, Norte", records[2][2])
}

func TestRenderRecentJSON(t *testing.T) {
	e := startedEngine(t)
	out, err := Render(e, ReportRecent, FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, "application/json", out.ContentType)

	var recent []aggregate.RecentTerritory
	require.NoError(t, json.Unmarshal(out.Payload, &recent))
	require.Len(t, recent, 1)
	assert.Equal(t, "t1", recent[0].Territory.ID)
	assert.Equal(t, "Ana", recent[0].LastVisit.Visit.UserName)

	csvOut, err := Render(e, ReportRecent, FormatCSV)
	require.NoError(t, err)
	assert.Contains(t, string(csvOut.Payload), "2024-06-15T11:00:00Z")
}

func newWorker(t *testing.T, src Source, store blob.Store) *Worker {
	t.Helper()
	w := NewWorker(src, store, Options{Prefix: "exports", Now: func() time.Time { return exportNow }})
	w.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		require.NoError(t, w.Stop(ctx))
	})
	return w
}

func TestWorkerStoresArtifacts(t *testing.T) {
	e := startedEngine(t)
	store := blob.NewMemory()
	w := newWorker(t, e, store)
	ctx := context.Background()

	queued, err := w.Enqueue(ctx, Input{Report: ReportTerritories, Formats: []Format{FormatCSV, FormatCSV, FormatJSON}, RequestedBy: "u1"})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, queued.Status)
	assert.Equal(t, []Format{FormatCSV, FormatJSON}, queued.Formats)

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	done, err := w.Wait(waitCtx, queued.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSucceeded, done.Status, done.Error)
	require.Len(t, done.Artifacts, 2)
	assert.NotNil(t, done.CompletedAt)

	csvArtifact := done.Artifacts[0]
	assert.Equal(t, "exports/territories/"+queued.ID+".csv", csvArtifact.Key)
	assert.Equal(t, 2, csvArtifact.Rows)
	assert.True(t, strings.HasPrefix(csvArtifact.URL, "memory://"))

	info, rc, err := store.Get(ctx, csvArtifact.Key)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "text/csv", info.ContentType)
	assert.Equal(t, queued.ID, info.Metadata["export_id"])
	assert.True(t, strings.HasPrefix(string(body), "id,number,description"))
}

func TestWorkerRecordsFailures(t *testing.T) {
	w := newWorker(t, emptySource{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	queued, err := w.Enqueue(ctx, Input{Report: ReportKeys})
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatJSON, FormatCSV}, queued.Formats)

	done, err := w.Wait(ctx, queued.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, ErrNotReady.Error())
	assert.True(t, done.Done())
}

func TestWorkerEnqueueValidation(t *testing.T) {
	w := NewWorker(emptySource{}, nil, Options{QueueSize: 1})
	ctx := context.Background()
	_, err := w.Enqueue(ctx, Input{Report: "visits"})
	assert.ErrorIs(t, err, ErrUnknownReport)
	_, err = w.Enqueue(ctx, Input{Report: ReportKeys, Formats: []Format{"pdf"}})
	assert.ErrorIs(t, err, ErrUnknownFormat)

	_, err = w.Enqueue(ctx, Input{Report: ReportKeys})
	require.NoError(t, err)
	_, err = w.Enqueue(ctx, Input{Report: ReportKeys})
	assert.ErrorIs(t, err, ErrQueueFull)

	_, ok := w.Get("missing")
	assert.False(t, ok)
	_, err = w.Wait(ctx, "missing")
	assert.Error(t, err)
	require.NoError(t, w.Stop(ctx))
}
