package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"habitpulse/internal/types"
)

// statusScan fills one scanFollowUpStatus destination list from a fixture.
func statusScan(s *types.FollowUpStatus) func(dest ...any) error {
	return func(dest ...any) error {
		*dest[0].(*string) = string(s.Owner.Type)
		*dest[1].(*string) = s.Owner.ID
		*dest[2].(*string) = s.HabitID
		*dest[3].(*time.Time) = s.Date
		*dest[4].(**time.Time) = s.ReminderSentAt
		*dest[5].(**time.Time) = s.FollowUpSentAt
		*dest[6].(*bool) = s.Skipped
		*dest[7].(**time.Time) = s.RemindLaterAt
		*dest[8].(*time.Time) = s.UpdatedAt
		return nil
	}
}

func statusFixture() *types.FollowUpStatus {
	sent := time.Date(2026, 3, 2, 0, 5, 0, 0, time.UTC)
	return &types.FollowUpStatus{
		Owner:          types.Owner{Type: types.OwnerTypeUser, ID: "user-1"},
		HabitID:        "h1",
		Date:           time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		ReminderSentAt: &sent,
	}
}

func TestFollowUpStatusRepository_Get_Success(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	fixture := statusFixture()
	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanFn: statusScan(fixture)})

	status, err := repo.Get(context.Background(), fixture.Owner, "h1", fixture.Date)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, "h1", status.HabitID)
	assert.NotNil(t, status.ReminderSentAt)
	assert.False(t, status.Skipped)
}

func TestFollowUpStatusRepository_Get_AbsentRowIsNotAnError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	status, err := repo.Get(context.Background(), types.Owner{Type: types.OwnerTypeUser, ID: "user-1"}, "h1", time.Now())
	require.NoError(t, err)
	assert.Nil(t, status)
}

func TestFollowUpStatusRepository_Get_TruncatesDateArgument(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	var captured []any
	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]any) }).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	midday := time.Date(2026, 3, 2, 14, 45, 9, 0, time.UTC)
	_, err := repo.Get(context.Background(), types.Owner{Type: types.OwnerTypeUser, ID: "user-1"}, "h1", midday)
	require.NoError(t, err)

	require.Len(t, captured, 4)
	assert.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), captured[3])
}

func TestFollowUpStatusRepository_Upsert_PassesPatchFields(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	fixture := statusFixture()
	var captured []any
	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]any) }).
		Return(&mockRow{scanFn: statusScan(fixture)})

	sent := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	status, err := repo.Upsert(context.Background(), fixture.Owner, "h1", fixture.Date, types.FollowUpStatusPatch{
		ReminderSentAt: &sent,
	})
	require.NoError(t, err)
	require.NotNil(t, status)

	require.Len(t, captured, 10)
	assert.Equal(t, "user", captured[0])
	assert.Equal(t, &sent, captured[4], "reminder_sent_at")
	assert.Nil(t, captured[5], "follow_up_sent_at untouched")
	assert.Equal(t, false, captured[6], "skipped insert default")
	assert.Equal(t, false, captured[9], "clear flag off")
}

func TestFollowUpStatusRepository_Upsert_ClearRemindLaterNullsMarker(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	fixture := statusFixture()
	var captured []any
	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Run(func(args mock.Arguments) { captured = args.Get(2).([]any) }).
		Return(&mockRow{scanFn: statusScan(fixture)})

	// Even with a marker in the patch, the clear flag wins.
	later := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	_, err := repo.Upsert(context.Background(), fixture.Owner, "h1", fixture.Date, types.FollowUpStatusPatch{
		RemindLaterAt:    &later,
		ClearRemindLater: true,
	})
	require.NoError(t, err)

	require.Len(t, captured, 10)
	assert.Nil(t, captured[7], "remind_later_at value suppressed")
	assert.Equal(t, true, captured[9], "clear flag on")
}

func TestFollowUpStatusRepository_Upsert_DBError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	dbtx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: errors.New("connection reset by peer")})

	_, err := repo.Upsert(context.Background(), types.Owner{Type: types.OwnerTypeUser, ID: "user-1"}, "h1", time.Now(), types.FollowUpStatusPatch{})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestFollowUpStatusRepository_FollowUpCandidates_Success(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	fixtures := []*types.FollowUpStatus{statusFixture(), statusFixture()}
	fixtures[1].HabitID = "h2"

	rows := &mockRows{
		count: len(fixtures),
		scanFn: func(i int, dest ...any) error {
			return statusScan(fixtures[i])(dest...)
		},
	}
	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	statuses, err := repo.FollowUpCandidates(context.Background(), time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, "h2", statuses[1].HabitID)
}

func TestFollowUpStatusRepository_RemindLaterDue_QueryError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.RemindLaterDue(context.Background(), time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestFollowUpStatusRepository_RemindLaterDue_IterationError(t *testing.T) {
	dbtx := new(mockDBTX)
	repo := NewFollowUpStatusRepository(dbtx)

	rows := &mockRows{count: 0, scanFn: func(int, ...any) error { return nil }, errVal: errors.New("server closed the connection")}
	dbtx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).Return(rows, nil)

	_, err := repo.RemindLaterDue(context.Background(), time.Now())
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
