package incoming

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/suratdinas/backend/internal/serviceerror"
)

func dispositionFor(letterID string, date time.Time) DispositionInput {
	return DispositionInput{
		LetterInID: letterID,
		Date:       &date,
		Recipients: []string{"Kabid Pendapatan", " Sekretaris "},
		Content:    text("Mohon ditindaklanjuti"),
	}
}

func TestCreateDispositionNumbersAndFlagsLetter(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
	require.NoError(t, err)
	second, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
	require.NoError(t, err)

	peek, err := f.service.PeekNextDisposition(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), peek)

	one, err := f.service.CreateDisposition(ctx, clerk, dispositionFor(first.ID, startTime))
	require.NoError(t, err)
	require.Equal(t, int64(1), one.Number)
	require.Equal(t, []string{"Kabid Pendapatan", "Sekretaris"}, one.Recipients)
	require.Equal(t, "clerk-1", *one.UserID)

	two, err := f.service.CreateDisposition(ctx, clerk, dispositionFor(second.ID, startTime))
	require.NoError(t, err)
	require.Equal(t, int64(2), two.Number)

	letter, err := f.service.GetLetter(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, letter.Disposed)

	stored, err := f.service.GetDisposition(ctx, one.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"Kabid Pendapatan", "Sekretaris"}, stored.Recipients)
}

func TestSecondDispositionForLetterConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	letter, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
	require.NoError(t, err)
	original, err := f.service.CreateDisposition(ctx, clerk, dispositionFor(letter.ID, startTime))
	require.NoError(t, err)

	again := dispositionFor(letter.ID, startTime.Add(time.Hour))
	again.Content = text("Instruksi lain")
	_, err = f.service.CreateDisposition(ctx, admin, again)
	require.Equal(t, serviceerror.KindConflict, serviceerror.KindOf(err))
	serviceErr, ok := serviceerror.As(err)
	require.True(t, ok)
	require.Equal(t, "letter_already_disposed", serviceErr.Reason())

	stored, err := f.service.GetDisposition(ctx, original.ID)
	require.NoError(t, err)
	require.Equal(t, "Mohon ditindaklanjuti", stored.Content)
	require.Equal(t, original.Number, stored.Number)
	require.Equal(t, int64(1), countRows(t, f.db, &Disposition{}))

	next, err := f.service.PeekNextDisposition(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), next)
}

func TestExplicitDispositionNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	letters := make([]LetterIn, 3)
	for index := range letters {
		letter, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
		require.NoError(t, err)
		letters[index] = letter
	}

	manual := dispositionFor(letters[0].ID, startTime)
	manual.Number = number(7)
	created, err := f.service.CreateDisposition(ctx, clerk, manual)
	require.NoError(t, err)
	require.Equal(t, int64(7), created.Number)

	taken := dispositionFor(letters[1].ID, startTime)
	taken.Number = number(7)
	_, err = f.service.CreateDisposition(ctx, clerk, taken)
	require.Equal(t, serviceerror.KindConflict, serviceerror.KindOf(err))
	serviceErr, ok := serviceerror.As(err)
	require.True(t, ok)
	require.Equal(t, "number_exists", serviceErr.Reason())

	automatic, err := f.service.CreateDisposition(ctx, clerk, dispositionFor(letters[1].ID, startTime))
	require.NoError(t, err)
	require.Equal(t, int64(8), automatic.Number)

	letter, err := f.service.GetLetter(ctx, letters[2].ID)
	require.NoError(t, err)
	require.False(t, letter.Disposed)
}

func TestCreateDispositionValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	letter, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func(*DispositionInput)
		kind   serviceerror.Kind
	}{
		{name: "missing letter", mutate: func(in *DispositionInput) { in.LetterInID = "" }, kind: serviceerror.KindValidation},
		{name: "unknown letter", mutate: func(in *DispositionInput) { in.LetterInID = "nope" }, kind: serviceerror.KindNotFound},
		{name: "missing date", mutate: func(in *DispositionInput) { in.Date = nil }, kind: serviceerror.KindValidation},
		{name: "no recipients", mutate: func(in *DispositionInput) { in.Recipients = []string{" "} }, kind: serviceerror.KindValidation},
		{name: "missing content", mutate: func(in *DispositionInput) { in.Content = nil }, kind: serviceerror.KindValidation},
		{name: "content too long", mutate: func(in *DispositionInput) { in.Content = text(strings.Repeat("a", MaxDispositionContent+1)) }, kind: serviceerror.KindValidation},
		{name: "non positive number", mutate: func(in *DispositionInput) { in.Number = number(-1) }, kind: serviceerror.KindValidation},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			input := dispositionFor(letter.ID, startTime)
			testCase.mutate(&input)
			_, err := f.service.CreateDisposition(ctx, clerk, input)
			require.Equal(t, testCase.kind, serviceerror.KindOf(err))
		})
	}

	require.Zero(t, countRows(t, f.db, &Disposition{}))
	withLimit := dispositionFor(letter.ID, startTime)
	withLimit.Content = text(strings.Repeat("é", MaxDispositionContent))
	_, err = f.service.CreateDisposition(ctx, clerk, withLimit)
	require.NoError(t, err)
}

func TestUpdateAndDeleteDisposition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
	require.NoError(t, err)
	second, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
	require.NoError(t, err)
	one, err := f.service.CreateDisposition(ctx, clerk, dispositionFor(first.ID, startTime))
	require.NoError(t, err)
	two, err := f.service.CreateDisposition(ctx, clerk, dispositionFor(second.ID, startTime))
	require.NoError(t, err)

	_, err = f.service.UpdateDisposition(ctx, admin, two.ID, DispositionInput{Number: number(one.Number)})
	require.Equal(t, serviceerror.KindConflict, serviceerror.KindOf(err))

	updated, err := f.service.UpdateDisposition(ctx, admin, two.ID, DispositionInput{
		Number:     number(20),
		Recipients: []string{"Kasubag Umum"},
		LetterInID: first.ID,
	})
	require.NoError(t, err)
	require.Equal(t, int64(20), updated.Number)
	require.Equal(t, []string{"Kasubag Umum"}, updated.Recipients)
	require.Equal(t, "Mohon ditindaklanjuti", updated.Content)
	require.Equal(t, second.ID, updated.LetterInID)
	require.Equal(t, "admin-1", *updated.UpdateUserID)

	next, err := f.service.PeekNextDisposition(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(21), next)

	_, err = f.service.UpdateDisposition(ctx, admin, two.ID, DispositionInput{Content: text(" ")})
	require.Equal(t, serviceerror.KindValidation, serviceerror.KindOf(err))

	deleted, err := f.service.DeleteDisposition(ctx, one.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, deleted.LetterInID)

	letter, err := f.service.GetLetter(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, letter.Disposed)

	status, err := f.service.LetterStatus(ctx, first.ID)
	require.NoError(t, err)
	require.False(t, status.Disposed)
	require.Nil(t, status.Disposition)

	status, err = f.service.LetterStatus(ctx, second.ID)
	require.NoError(t, err)
	require.True(t, status.Disposed)
	require.Equal(t, int64(20), status.Disposition.Number)

	_, err = f.service.DeleteDisposition(ctx, one.ID)
	require.Equal(t, serviceerror.KindNotFound, serviceerror.KindOf(err))
}

func TestListDispositionsPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for index := 0; index < 5; index++ {
		letter, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
		require.NoError(t, err)
		_, err = f.service.CreateDisposition(ctx, clerk, dispositionFor(letter.ID, startTime))
		require.NoError(t, err)
		f.clock.Advance(time.Minute)
	}

	page, err := f.service.ListDispositions(ctx, DispositionFilter{Page: 2, Limit: 2})
	require.NoError(t, err)
	require.Equal(t, int64(5), page.Total)
	require.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	require.Equal(t, int64(3), page.Items[0].Number)
	require.Equal(t, int64(2), page.Items[1].Number)

	lastYear, err := f.service.ListDispositions(ctx, DispositionFilter{Year: 2024})
	require.NoError(t, err)
	require.Zero(t, lastYear.Total)
	require.Empty(t, lastYear.Items)
	require.Equal(t, defaultPageLimit, lastYear.Limit)
}

func TestDispositionStats(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Today, earlier this month, earlier this year and last year.
	dates := []time.Time{
		startTime,
		startTime.AddDate(0, 0, -3),
		startTime.AddDate(0, -2, 0),
		time.Date(2024, time.December, 20, 3, 0, 0, 0, time.UTC),
	}
	for _, date := range dates {
		letter, err := f.service.CreateLetter(ctx, clerk, LetterInput{})
		require.NoError(t, err)
		_, err = f.service.CreateDisposition(ctx, clerk, dispositionFor(letter.ID, date))
		require.NoError(t, err)
	}

	stats, err := f.service.Stats(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, DispositionStats{Year: 2025, Total: 4, Yearly: 3, Monthly: 2, Today: 1}, stats)

	previous, err := f.service.Stats(ctx, 2024)
	require.NoError(t, err)
	require.Equal(t, int64(1), previous.Yearly)
	require.Equal(t, int64(4), previous.Total)
}
