// package testing contains shared testing utilities
package testing

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rozentia/tubextend/internal/models"
	"github.com/rozentia/tubextend/internal/shared"
)

// MockVideoSource is a configurable test double for [services.VideoSource].
// Unset hooks return empty results.
type MockVideoSource struct {
	SourceName       string
	ChannelVideosFn  func(ctx context.Context, channelID string) ([]models.Video, error)
	PlaylistVideosFn func(ctx context.Context, playlistID string) ([]models.Video, error)
	ChannelInfoFn    func(ctx context.Context, channelID string) (*models.Channel, error)

	ChannelCalls  int
	PlaylistCalls int
	InfoCalls     int
}

func (m *MockVideoSource) FetchChannelVideos(ctx context.Context, channelID string) ([]models.Video, error) {
	m.ChannelCalls++
	if m.ChannelVideosFn != nil {
		return m.ChannelVideosFn(ctx, channelID)
	}
	return []models.Video{}, nil
}

func (m *MockVideoSource) FetchPlaylistVideos(ctx context.Context, playlistID string) ([]models.Video, error) {
	m.PlaylistCalls++
	if m.PlaylistVideosFn != nil {
		return m.PlaylistVideosFn(ctx, playlistID)
	}
	return []models.Video{}, nil
}

func (m *MockVideoSource) FetchChannelInfo(ctx context.Context, channelID string) (*models.Channel, error) {
	m.InfoCalls++
	if m.ChannelInfoFn != nil {
		return m.ChannelInfoFn(ctx, channelID)
	}
	return nil, nil
}

func (m *MockVideoSource) Name() string {
	if m.SourceName == "" {
		return "mock"
	}
	return m.SourceName
}

// MockCredentialStore is a test double for [services.CredentialStore].
type MockCredentialStore struct {
	Token       string
	StoredToken string
	StoredAt    time.Time
}

func (m *MockCredentialStore) RefreshToken(userID string) (string, error) {
	return m.Token, nil
}

func (m *MockCredentialStore) StoreToken(userID, refreshToken string, expiresAt time.Time) error {
	m.StoredToken = refreshToken
	m.StoredAt = expiresAt
	return nil
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// MustOpenDatabase opens an in-memory database with migrations applied and
// closes it when the test finishes.
func MustOpenDatabase(t *testing.T) *sql.DB {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return db
}

// AssertErrorIs fails the test unless err matches target.
func AssertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("Expected error %v, got %v", target, err)
	}
}

// TimePtr returns a pointer to t for optional timestamp fields.
func TimePtr(t time.Time) *time.Time {
	return &t
}

// StrPtr returns a pointer to s for optional string fields.
func StrPtr(s string) *string {
	return &s
}
