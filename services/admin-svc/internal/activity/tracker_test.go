package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reviewhub/pkg/apperror"
	"reviewhub/pkg/config"
	"reviewhub/services/admin-svc/internal/repository"
)

type MockActivityRepository struct {
	mock.Mock
}

func (m *MockActivityRepository) InsertActivity(ctx context.Context, a *repository.Activity) error {
	return m.Called(ctx, a).Error(0)
}

func (m *MockActivityRepository) InsertPageView(ctx context.Context, pv *repository.PageView) error {
	return m.Called(ctx, pv).Error(0)
}

func (m *MockActivityRepository) CreateSession(ctx context.Context, s *repository.Session) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockActivityRepository) EndSession(ctx context.Context, id uuid.UUID, endedAt time.Time, bounced bool) (*repository.Session, error) {
	args := m.Called(ctx, id, endedAt, bounced)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.Session), args.Error(1)
}

func (m *MockActivityRepository) InsertErrorLog(ctx context.Context, e *repository.ErrorLog) error {
	return m.Called(ctx, e).Error(0)
}

type recordingSink struct {
	mu     sync.Mutex
	errors []repository.ErrorLog
}

func (s *recordingSink) RecordError(e repository.ErrorLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, e)
}

var testNow = time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)

func newTracker(t *testing.T, sink ErrorSink) (*Tracker, *MockActivityRepository) {
	repo := new(MockActivityRepository)
	tr := NewTracker(repo, config.ActivityConfig{BufferSize: 16, WriteTimeout: time.Second}, sink)
	tr.now = func() time.Time { return testNow }
	t.Cleanup(func() { _ = tr.Close() })
	return tr, repo
}

func TestTrackActivity(t *testing.T) {
	tr, repo := newTracker(t, nil)
	userID := uuid.New()
	repo.On("InsertActivity", mock.Anything, mock.MatchedBy(func(a *repository.Activity) bool {
		return a.Action == "review.create" && *a.UserID == userID && a.ID != uuid.Nil && a.CreatedAt.Equal(testNow)
	})).Return(nil).Once()

	err := tr.TrackActivity(context.Background(), repository.Activity{UserID: &userID, Action: " review.create "})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	repo.AssertExpectations(t)
}

func TestTrackActivity_RequestContextCancelled(t *testing.T) {
	tr, repo := newTracker(t, nil)
	repo.On("InsertActivity", mock.MatchedBy(func(ctx context.Context) bool {
		return ctx.Err() == nil
	}), mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, tr.TrackActivity(ctx, repository.Activity{Action: "login"}))
	cancel()

	require.NoError(t, tr.Close())
	repo.AssertExpectations(t)
}

func TestTrackActivity_Validation(t *testing.T) {
	tr, repo := newTracker(t, nil)

	err := tr.TrackActivity(context.Background(), repository.Activity{Action: "  "})
	assert.Equal(t, 400, apperror.HTTPStatus(err))

	require.NoError(t, tr.Close())
	repo.AssertNotCalled(t, "InsertActivity", mock.Anything, mock.Anything)
}

func TestTrackPageView_FailureIsNotReturned(t *testing.T) {
	tr, repo := newTracker(t, nil)
	repo.On("InsertPageView", mock.Anything, mock.MatchedBy(func(pv *repository.PageView) bool {
		return pv.Path == "/companies" && pv.Duration == 0
	})).Return(errors.New("connection reset")).Once()

	err := tr.TrackPageView(context.Background(), repository.PageView{Path: "/companies", Duration: -3})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	repo.AssertExpectations(t)
}

func TestTrackPageView_Validation(t *testing.T) {
	tr, _ := newTracker(t, nil)

	err := tr.TrackPageView(context.Background(), repository.PageView{})
	assert.Equal(t, 400, apperror.HTTPStatus(err))
}

func TestTracker_WritesSynchronouslyAfterClose(t *testing.T) {
	tr, repo := newTracker(t, nil)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	repo.On("InsertActivity", mock.Anything, mock.Anything).Return(nil).Once()
	require.NoError(t, tr.TrackActivity(context.Background(), repository.Activity{Action: "logout"}))

	repo.AssertExpectations(t)
}

func TestTracker_DrainsOnClose(t *testing.T) {
	tr, repo := newTracker(t, nil)
	repo.On("InsertPageView", mock.Anything, mock.Anything).Return(nil).Times(50)

	for range 50 {
		require.NoError(t, tr.TrackPageView(context.Background(), repository.PageView{Path: "/"}))
	}

	require.NoError(t, tr.Close())
	repo.AssertExpectations(t)
}

func TestLogError(t *testing.T) {
	sink := &recordingSink{}
	tr, repo := newTracker(t, sink)
	repo.On("InsertErrorLog", mock.Anything, mock.MatchedBy(func(e *repository.ErrorLog) bool {
		return e.Level == "error" && e.Message == "upstream timeout" && e.StatusCode == 504
	})).Return(nil).Once()

	err := tr.LogError(context.Background(), repository.ErrorLog{Message: "upstream timeout", Path: "/api/search", StatusCode: 504})
	require.NoError(t, err)

	require.NoError(t, tr.Close())
	repo.AssertExpectations(t)

	require.Len(t, sink.errors, 1)
	assert.Equal(t, "upstream timeout", sink.errors[0].Message)
	assert.Equal(t, testNow, sink.errors[0].CreatedAt)
}

func TestLogError_Validation(t *testing.T) {
	sink := &recordingSink{}
	tr, _ := newTracker(t, sink)

	err := tr.LogError(context.Background(), repository.ErrorLog{})
	assert.Equal(t, 400, apperror.HTTPStatus(err))
	assert.Empty(t, sink.errors)
}

func TestStartSession(t *testing.T) {
	tr, repo := newTracker(t, nil)
	userID := uuid.New()
	repo.On("CreateSession", mock.Anything, mock.AnythingOfType("*repository.Session")).Return(nil).Once()

	s, err := tr.StartSession(context.Background(), &userID, "Mozilla/5.0", "10.0.0.1")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, s.ID)
	assert.Equal(t, testNow, s.StartedAt)
	assert.Equal(t, &userID, s.UserID)
	assert.Equal(t, "10.0.0.1", s.IPAddress)
	repo.AssertExpectations(t)
}

func TestStartSession_Error(t *testing.T) {
	tr, repo := newTracker(t, nil)
	repo.On("CreateSession", mock.Anything, mock.Anything).Return(errors.New("db down")).Once()

	_, err := tr.StartSession(context.Background(), nil, "", "")
	assert.True(t, apperror.Is(err, apperror.CodeInternal))
}

func TestEndSession(t *testing.T) {
	id := uuid.New()
	duration := 330
	ended := testNow

	tests := []struct {
		name    string
		session *repository.Session
		repoErr error
		code    apperror.ErrorCode
	}{
		{
			name:    "closed",
			session: &repository.Session{ID: id, StartedAt: testNow.Add(-330 * time.Second), EndedAt: &ended, Duration: &duration, Bounced: true},
		},
		{name: "unknown session", repoErr: repository.ErrNotFound, code: apperror.CodeNotFound},
		{name: "already ended", repoErr: repository.ErrSessionEnded, code: apperror.CodeSessionClosed},
		{name: "database error", repoErr: errors.New("deadlock"), code: apperror.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, repo := newTracker(t, nil)
			if tt.session != nil {
				repo.On("EndSession", mock.Anything, id, testNow, true).Return(tt.session, nil).Once()
			} else {
				repo.On("EndSession", mock.Anything, id, testNow, true).Return(nil, tt.repoErr).Once()
			}

			s, err := tr.EndSession(context.Background(), id, true)
			if tt.code != "" {
				assert.True(t, apperror.Is(err, tt.code))
				assert.Nil(t, s)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, 330, *s.Duration)
			assert.True(t, s.Bounced)
		})
	}
}
