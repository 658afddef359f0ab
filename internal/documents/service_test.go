package documents

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suratdinas/backend/internal/numbering"
	"github.com/suratdinas/backend/internal/serviceerror"
	"github.com/suratdinas/backend/internal/storage"
	"github.com/suratdinas/backend/internal/tester"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

var (
	wib       = time.FixedZone("WIB", 7*60*60)
	admin     = numbering.Caller{UserID: "admin-1", IsAdmin: true}
	staffA    = numbering.Caller{UserID: "staff-a", DepartmentID: "dept-a"}
	staffB    = numbering.Caller{UserID: "staff-b", DepartmentID: "dept-b"}
	startTime = time.Date(2025, time.March, 10, 2, 0, 0, 0, time.UTC) // 09:00 WIB
)

type fixture struct {
	db        *gorm.DB
	clock     *tester.MovableClock
	uploadDir string
	letters   *Service
	memos     *Service
	logs      *observer.ObservedLogs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := tester.OpenSQLite(t, &numbering.Counter{}, &Document{})
	clock := tester.NewMovableClock(startTime)
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	store, err := storage.NewLocal(storage.LocalConfig{Dir: uploadDir, Clock: clock.Now})
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	logger := zap.New(core)
	allocator := numbering.NewAllocator()
	policy := numbering.Policy{EditWindow: 20 * 24 * time.Hour, Location: wib}
	ids := &tester.StaticIDs{Prefix: "doc"}

	build := func(kind Kind) *Service {
		service, err := NewService(ServiceConfig{
			Database:   db,
			Kind:       kind,
			Allocator:  allocator,
			Policy:     policy,
			Store:      store,
			Clock:      clock.Now,
			IDProvider: ids,
			Logger:     logger,
		})
		require.NoError(t, err)
		return service
	}

	return &fixture{
		db:        db,
		clock:     clock,
		uploadDir: uploadDir,
		letters:   build(KindLetter),
		memos:     build(KindMemo),
		logs:      logs,
	}
}

func text(value string) *string {
	return &value
}

func validContent(subject string) Content {
	return Content{
		Subject:          text(subject),
		To:               text("Kepala Dinas"),
		ClassificationID: text("000.1"),
		LevelID:          text("1"),
	}
}

func reload(t *testing.T, db *gorm.DB, id string) Document {
	t.Helper()
	var document Document
	require.NoError(t, db.Where("id = ?", id).Take(&document).Error)
	return document
}

func TestCreateNumbersEachKindIndependently(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("Undangan")})
	require.NoError(t, err)
	second, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("Pemberitahuan")})
	require.NoError(t, err)
	memo, err := f.memos.Create(ctx, staffB, CreateInput{Content: validContent("Nota")})
	require.NoError(t, err)

	require.Equal(t, int64(1), first.Number)
	require.Equal(t, int64(2), second.Number)
	require.Equal(t, int64(1), memo.Number)

	require.True(t, first.Reserved)
	require.Equal(t, numbering.StateReserved, first.State)
	require.NotNil(t, first.LastReserved)
	require.Equal(t, "dept-a", *first.DepartmentID)
	require.Equal(t, "staff-a", *first.UserID)
	require.Equal(t, 0, *first.AttachmentCount)

	next, err := f.letters.PeekNextNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), next)
}

func TestCreateRequiresClassificationAndLevel(t *testing.T) {
	f := newFixture(t)
	_, err := f.letters.Create(context.Background(), staffA, CreateInput{Content: Content{Subject: text("x")}})
	require.Equal(t, serviceerror.KindValidation, serviceerror.KindOf(err))

	var count int64
	require.NoError(t, f.db.Model(&Document{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateClampsAttachmentCountAndHonoursAdminDepartment(t *testing.T) {
	f := newFixture(t)
	content := validContent("Laporan")
	negative := -4
	content.AttachmentCount = &negative
	content.DepartmentID = text("dept-b")

	byStaff, err := f.letters.Create(context.Background(), staffA, CreateInput{Content: content})
	require.NoError(t, err)
	require.Equal(t, 0, *byStaff.AttachmentCount)
	require.Equal(t, "dept-a", *byStaff.DepartmentID)

	byAdmin, err := f.letters.Create(context.Background(), admin, CreateInput{Content: content})
	require.NoError(t, err)
	require.Equal(t, "dept-b", *byAdmin.DepartmentID)
}

func TestCreateSparesAllocatesContiguousBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("first")})
	require.NoError(t, err)

	day := time.Date(2025, time.March, 12, 0, 0, 0, 0, wib)
	spares, err := f.letters.CreateSpares(ctx, admin, SpareInput{Date: day, Count: 4, DepartmentID: "dept-a"})
	require.NoError(t, err)
	require.Len(t, spares, 4)
	for index, spare := range spares {
		require.Equal(t, int64(index+2), spare.Number)
		require.Equal(t, numbering.StateSpare, spare.State)
		require.False(t, spare.Reserved)
		require.Nil(t, spare.Subject)
		require.Nil(t, spare.LastReserved)
		require.True(t, spare.Date.Equal(time.Date(2025, time.March, 12, 23, 59, 0, 0, wib)))
	}

	after, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("after")})
	require.NoError(t, err)
	require.Equal(t, int64(6), after.Number)
}

func TestCreateSparesIsAdminOnly(t *testing.T) {
	f := newFixture(t)
	_, err := f.letters.CreateSpares(context.Background(), staffA, SpareInput{Date: startTime, Count: 1})
	require.Equal(t, serviceerror.KindPermission, serviceerror.KindOf(err))

	_, err = f.letters.CreateSpares(context.Background(), admin, SpareInput{Date: startTime, Count: 0})
	require.Equal(t, serviceerror.KindValidation, serviceerror.KindOf(err))
}

func TestCreateSparesRefusesYesterdayOnceTodayIsNumbered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	yesterday := time.Date(2025, time.March, 9, 0, 0, 0, 0, wib)

	spares, err := f.letters.CreateSpares(ctx, admin, SpareInput{Date: yesterday, Count: 2})
	require.NoError(t, err)
	require.Len(t, spares, 2)

	_, err = f.letters.Create(ctx, staffA, CreateInput{Content: validContent("today")})
	require.NoError(t, err)

	_, err = f.letters.CreateSpares(ctx, admin, SpareInput{Date: yesterday, Count: 1})
	require.Equal(t, serviceerror.KindValidation, serviceerror.KindOf(err))
	serviceErr, ok := serviceerror.As(err)
	require.True(t, ok)
	require.Equal(t, "today_already_numbered", serviceErr.Reason())

	// A memo dated today does not block letters, and vice versa.
	_, err = f.memos.CreateSpares(ctx, admin, SpareInput{Date: yesterday, Count: 1})
	require.NoError(t, err)
}

func TestUpdateWithinEditWindowKeepsOwnership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("draft")})
	require.NoError(t, err)

	f.clock.Advance(20 * 24 * time.Hour)
	colleague := numbering.Caller{UserID: "staff-a2", DepartmentID: "dept-a"}
	updated, err := f.letters.Update(ctx, colleague, created.ID, UpdateInput{Content: Content{Subject: text("final")}})
	require.NoError(t, err)

	require.Equal(t, "final", *updated.Subject)
	require.Equal(t, "Kepala Dinas", *updated.Recipient)
	require.Equal(t, "staff-a", *updated.UserID)
	require.Equal(t, "staff-a2", *updated.UpdateUserID)
	require.True(t, created.LastReserved.Equal(*updated.LastReserved))
	require.Equal(t, created.Number, updated.Number)
}

func TestUpdatePastEditWindowChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("draft")})
	require.NoError(t, err)

	f.clock.Advance(20*24*time.Hour + time.Second)
	_, err = f.letters.Update(ctx, admin, created.ID, UpdateInput{Content: Content{Subject: text("late")}})
	require.Equal(t, serviceerror.KindPermission, serviceerror.KindOf(err))

	stored := reload(t, f.db, created.ID)
	require.Equal(t, "draft", *stored.Subject)
	require.Equal(t, "staff-a", *stored.UpdateUserID)
}

func TestUpdateClaimsSpareSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spares, err := f.letters.CreateSpares(ctx, admin, SpareInput{Date: startTime, Count: 1})
	require.NoError(t, err)

	_, err = f.letters.Update(ctx, staffB, spares[0].ID, UpdateInput{Content: Content{Subject: text("no classification")}})
	require.Equal(t, serviceerror.KindValidation, serviceerror.KindOf(err))

	f.clock.Advance(time.Hour)
	claimed, err := f.letters.Update(ctx, staffB, spares[0].ID, UpdateInput{Content: validContent("claimed")})
	require.NoError(t, err)

	require.Equal(t, numbering.StateReserved, claimed.State)
	require.True(t, claimed.Reserved)
	require.Equal(t, "staff-b", *claimed.UserID)
	require.Equal(t, "dept-b", *claimed.DepartmentID)
	require.True(t, claimed.LastReserved.Equal(startTime.Add(time.Hour)))
	require.Equal(t, spares[0].Number, claimed.Number)
}

func TestAdminClaimMayChooseDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spares, err := f.memos.CreateSpares(ctx, admin, SpareInput{Date: startTime, Count: 1})
	require.NoError(t, err)

	content := validContent("for dept b")
	content.DepartmentID = text("dept-b")
	claimed, err := f.memos.Update(ctx, admin, spares[0].ID, UpdateInput{Content: content})
	require.NoError(t, err)
	require.Equal(t, "dept-b", *claimed.DepartmentID)
	require.Equal(t, "admin-1", *claimed.UserID)
}

func TestUpdateRejectsOtherDepartment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("mine")})
	require.NoError(t, err)
	_, err = f.letters.Update(ctx, staffB, created.ID, UpdateInput{Content: Content{Subject: text("yours")}})
	require.Equal(t, serviceerror.KindPermission, serviceerror.KindOf(err))

	_, err = f.letters.Update(ctx, staffA, "missing", UpdateInput{})
	require.Equal(t, serviceerror.KindNotFound, serviceerror.KindOf(err))

	// A memo id is not reachable through the letter service.
	memo, err := f.memos.Create(ctx, staffA, CreateInput{Content: validContent("memo")})
	require.NoError(t, err)
	_, err = f.letters.Get(ctx, staffA, memo.ID)
	require.Equal(t, serviceerror.KindNotFound, serviceerror.KindOf(err))
}

func TestReleaseKeepsNumberAndClearsContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.letters.Create(ctx, staffA, CreateInput{
		Content:    validContent("to release"),
		Attachment: &Attachment{Name: "scan.pdf", Content: strings.NewReader("pdf")},
	})
	require.NoError(t, err)
	require.True(t, first.HasAttachment())
	storedPath := filepath.Join(f.uploadDir, *first.FilePath)
	_, err = os.Stat(storedPath)
	require.NoError(t, err)

	released, err := f.letters.Release(ctx, staffA, first.ID)
	require.NoError(t, err)
	require.Equal(t, numbering.StateReleased, released.State)

	stored := reload(t, f.db, first.ID)
	require.False(t, stored.Reserved)
	require.Equal(t, first.Number, stored.Number)
	require.Nil(t, stored.Subject)
	require.Nil(t, stored.Recipient)
	require.Nil(t, stored.ClassificationID)
	require.Nil(t, stored.UserID)
	require.Nil(t, stored.DepartmentID)
	require.Nil(t, stored.LastReserved)
	require.Nil(t, stored.FilePath)

	_, err = os.Stat(storedPath)
	require.True(t, os.IsNotExist(err))

	next, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("new")})
	require.NoError(t, err)
	require.Equal(t, first.Number+1, next.Number)

	_, err = f.letters.Release(ctx, staffA, first.ID)
	require.Equal(t, serviceerror.KindConflict, serviceerror.KindOf(err))
}

func TestReleasedSlotCanBeClaimedAgain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("old")})
	require.NoError(t, err)
	_, err = f.letters.Release(ctx, staffA, created.ID)
	require.NoError(t, err)

	f.clock.Advance(30 * 24 * time.Hour)
	claimed, err := f.letters.Update(ctx, staffB, created.ID, UpdateInput{Content: validContent("reused")})
	require.NoError(t, err)
	require.Equal(t, created.Number, claimed.Number)
	require.Equal(t, "dept-b", *claimed.DepartmentID)
}

func TestUpdateReplacesAttachment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.memos.Create(ctx, staffA, CreateInput{
		Content:    validContent("with file"),
		Attachment: &Attachment{Name: "v1.pdf", Content: strings.NewReader("one")},
	})
	require.NoError(t, err)
	oldPath := filepath.Join(f.uploadDir, *created.FilePath)

	f.clock.Advance(time.Second)
	updated, err := f.memos.Update(ctx, staffA, created.ID, UpdateInput{
		Attachment: &Attachment{Name: "v2.pdf", Content: strings.NewReader("two")},
	})
	require.NoError(t, err)
	require.Equal(t, "v2.pdf", *updated.Filename)
	require.NotEqual(t, *created.FilePath, *updated.FilePath)

	_, err = os.Stat(oldPath)
	require.True(t, os.IsNotExist(err))

	download, err := f.memos.OpenAttachment(ctx, staffA, created.ID)
	require.NoError(t, err)
	defer download.Content.Close()
	body, err := io.ReadAll(download.Content)
	require.NoError(t, err)
	require.Equal(t, "two", string(body))
	require.Equal(t, "v2.pdf", download.Filename)
}

func TestOpenAttachmentWithoutFile(t *testing.T) {
	f := newFixture(t)
	created, err := f.letters.Create(context.Background(), staffA, CreateInput{Content: validContent("plain")})
	require.NoError(t, err)
	_, err = f.letters.OpenAttachment(context.Background(), staffA, created.ID)
	require.Equal(t, serviceerror.KindNotFound, serviceerror.KindOf(err))
}

func TestReleaseToleratesMissingFile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	created, err := f.letters.Create(ctx, staffA, CreateInput{
		Content:    validContent("file vanishes"),
		Attachment: &Attachment{Name: "a.txt", Content: strings.NewReader("a")},
	})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(f.uploadDir, *created.FilePath)))

	_, err = f.letters.Release(ctx, staffA, created.ID)
	require.NoError(t, err)
}

func TestDestroyAndTruncate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var created []Document
	for index := 0; index < 3; index++ {
		document, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("bulk")})
		require.NoError(t, err)
		created = append(created, document)
	}
	memo, err := f.memos.Create(ctx, staffA, CreateInput{Content: validContent("memo")})
	require.NoError(t, err)

	require.Equal(t, serviceerror.KindPermission, serviceerror.KindOf(f.letters.Destroy(ctx, staffA, created[0].ID)))
	require.NoError(t, f.letters.Destroy(ctx, admin, created[0].ID))
	require.Equal(t, serviceerror.KindNotFound, serviceerror.KindOf(f.letters.Destroy(ctx, admin, created[0].ID)))

	_, err = f.letters.Truncate(ctx, staffA)
	require.Equal(t, serviceerror.KindPermission, serviceerror.KindOf(err))

	removed, err := f.letters.Truncate(ctx, admin)
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	restarted, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("again")})
	require.NoError(t, err)
	require.Equal(t, int64(1), restarted.Number)

	stillThere, err := f.memos.Get(ctx, staffA, memo.ID)
	require.NoError(t, err)
	require.Equal(t, int64(1), stillThere.Number)
	nextMemo, err := f.memos.PeekNextNumber(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), nextMemo)
}

func TestListScopesAndFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("Rapat Koordinasi")})
	require.NoError(t, err)
	_, err = f.letters.Create(ctx, staffB, CreateInput{Content: validContent("Undangan Rapat")})
	require.NoError(t, err)
	_, err = f.letters.CreateSpares(ctx, admin, SpareInput{Date: startTime, Count: 2})
	require.NoError(t, err)

	all, err := f.letters.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	require.Equal(t, int64(1), all[0].Number)

	own, err := f.letters.List(ctx, staffA, ListFilter{})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, "Rapat Koordinasi", *own[0].Subject)

	unreserved := false
	claimable, err := f.letters.List(ctx, staffA, ListFilter{Reserved: &unreserved})
	require.NoError(t, err)
	require.Len(t, claimable, 2)
	for _, document := range claimable {
		require.Equal(t, numbering.StateSpare, document.State)
	}

	matching, err := f.letters.List(ctx, admin, ListFilter{Subject: "RAPAT", Descending: true})
	require.NoError(t, err)
	require.Len(t, matching, 2)
	require.Equal(t, int64(2), matching[0].Number)

	recipient, err := f.letters.List(ctx, admin, ListFilter{To: "kepala"})
	require.NoError(t, err)
	require.Len(t, recipient, 2)

	end := startTime.Add(-time.Hour)
	none, err := f.letters.List(ctx, admin, ListFilter{End: &end})
	require.NoError(t, err)
	require.Empty(t, none)

	f.clock.Advance(3 * 24 * time.Hour)
	recent, err := f.letters.List(ctx, admin, ListFilter{RecentDays: 1})
	require.NoError(t, err)
	require.Empty(t, recent)
}

func TestConcurrentCreatesNeverShareANumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const workers = 12
	numbers := make(chan int64, workers)
	var group sync.WaitGroup
	for worker := 0; worker < workers; worker++ {
		group.Add(1)
		go func() {
			defer group.Done()
			document, err := f.letters.Create(ctx, staffA, CreateInput{Content: validContent("race")})
			if err != nil {
				t.Errorf("create failed: %v", err)
				return
			}
			numbers <- document.Number
		}()
	}
	group.Wait()
	close(numbers)

	seen := map[int64]bool{}
	for number := range numbers {
		require.False(t, seen[number], "number %d assigned twice", number)
		seen[number] = true
	}
	require.Len(t, seen, workers)
}
