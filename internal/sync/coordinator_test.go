package sync

import (
	"context"
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inkdraft/internal/document/model"
	"inkdraft/internal/google"
	"inkdraft/internal/user"
	"inkdraft/pkg/apperr"
)

type fakeTokens struct {
	pair     user.TokenPair
	setCalls int
}

func (f *fakeTokens) Tokens(ctx context.Context, userID int64) (user.TokenPair, error) {
	return f.pair, nil
}

func (f *fakeTokens) SetTokens(ctx context.Context, userID int64, accessToken, refreshToken string) error {
	f.pair = user.TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}
	f.setCalls++
	return nil
}

type fakeDocStore struct {
	docs   map[int64]model.Document
	nextID int64
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: make(map[int64]model.Document), nextID: 1}
}

func (f *fakeDocStore) Create(ctx context.Context, ownerID int64, title string, content []byte) (model.Document, error) {
	doc := model.Document{
		ID:           f.nextID,
		OwnerID:      ownerID,
		Title:        title,
		Content:      append([]byte(nil), content...),
		LastModified: time.Now(),
	}
	f.docs[doc.ID] = doc
	f.nextID++
	return doc, nil
}

func (f *fakeDocStore) Update(ctx context.Context, id int64, title string, content []byte) (model.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return model.Document{}, apperr.New(apperr.NotFound, "document not found")
	}
	doc.Title = title
	doc.Content = append([]byte(nil), content...)
	doc.LastModified = time.Now()
	f.docs[id] = doc
	return doc, nil
}

func (f *fakeDocStore) SetMirror(ctx context.Context, id int64, googleDocID string, syncedAt time.Time) error {
	doc := f.docs[id]
	doc.GoogleDocID = googleDocID
	doc.LastSyncedAt = &syncedAt
	f.docs[id] = doc
	return nil
}

func (f *fakeDocStore) MarkSynced(ctx context.Context, id int64, syncedAt time.Time) error {
	doc := f.docs[id]
	doc.LastSyncedAt = &syncedAt
	f.docs[id] = doc
	return nil
}

func (f *fakeDocStore) List(ctx context.Context, ownerID int64, page, limit int) ([]model.Document, int, error) {
	var all []model.Document
	for _, d := range f.docs {
		if d.OwnerID == ownerID {
			all = append(all, d)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].LastModified.After(all[j].LastModified) })
	total := len(all)
	start := (page - 1) * limit
	if start > total {
		start = total
	}
	end := start + limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

type fakeDocsClient struct {
	validToken   string
	refreshedTo  string
	refreshErr   error
	files        []google.File
	listErr      error
	createID     string
	createErr    error
	replaceErr   error
	lastToken    string
	replaceCalls int
	replaceText  string
}

func (f *fakeDocsClient) checkToken(token string) error {
	f.lastToken = token
	if token != f.validToken {
		return apperr.New(apperr.ExternalAuth, "invalid credential")
	}
	return nil
}

func (f *fakeDocsClient) UserInfo(ctx context.Context, token string) (google.Identity, error) {
	if err := f.checkToken(token); err != nil {
		return google.Identity{}, err
	}
	return google.Identity{ID: "g-1", Email: "u@example.com"}, nil
}

func (f *fakeDocsClient) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if f.refreshErr != nil {
		return "", f.refreshErr
	}
	return f.refreshedTo, nil
}

func (f *fakeDocsClient) ListDocuments(ctx context.Context, token string) ([]google.File, error) {
	if err := f.checkToken(token); err != nil {
		return nil, err
	}
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeDocsClient) CreateDocument(ctx context.Context, token, title string) (string, error) {
	if err := f.checkToken(token); err != nil {
		return "", err
	}
	if f.createErr != nil {
		return "", f.createErr
	}
	return f.createID, nil
}

func (f *fakeDocsClient) ReplaceContent(ctx context.Context, token, documentID, text string) error {
	if err := f.checkToken(token); err != nil {
		return err
	}
	f.replaceCalls++
	f.replaceText = text
	return f.replaceErr
}

func TestEnsureFreshCredentialProbeOK(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{validToken: "fresh"}
	coord := NewCoordinator(tokens, newFakeDocStore(), client)

	token, err := coord.EnsureFreshCredential(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)
	assert.Zero(t, tokens.setCalls, "No refresh should happen while the probe succeeds")
}

func TestEnsureFreshCredentialRefreshesOnce(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "expired", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{validToken: "fresh", refreshedTo: "fresh"}
	coord := NewCoordinator(tokens, newFakeDocStore(), client)

	token, err := coord.EnsureFreshCredential(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "fresh", token)

	// The new access token is persisted and the original refresh token is
	// preserved.
	assert.Equal(t, 1, tokens.setCalls)
	assert.Equal(t, "fresh", tokens.pair.AccessToken)
	assert.Equal(t, "refresh-1", tokens.pair.RefreshToken)
}

func TestEnsureFreshCredentialRefreshFailure(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "expired", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{
		validToken: "fresh",
		refreshErr: apperr.New(apperr.ExternalAuth, "grant revoked"),
	}
	coord := NewCoordinator(tokens, newFakeDocStore(), client)

	_, err := coord.EnsureFreshCredential(context.Background(), 1)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ExternalAuth))
	assert.Zero(t, tokens.setCalls, "A failed refresh must not overwrite the stored pair")
}

func TestSaveMirroredRefreshFailureLeavesMirrorStale(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	store := newFakeDocStore()
	client := &fakeDocsClient{validToken: "fresh", createID: "gdoc-1"}
	coord := NewCoordinator(tokens, store, client)

	doc, err := coord.CreateMirrored(context.Background(), 1, "Draft", json.RawMessage(`{"ops":[{"insert":"hi"}]}`), true)
	require.NoError(t, err)
	require.True(t, doc.Mirrored())
	pushesAfterCreate := client.replaceCalls

	// Credential expires and the refresh grant is revoked.
	client.validToken = "rotated-away"
	client.refreshErr = apperr.New(apperr.ExternalAuth, "grant revoked")

	updated, mirrored, err := coord.SaveMirrored(context.Background(), doc, "Draft", json.RawMessage(`{"ops":[{"insert":"hi there"}]}`))
	require.NoError(t, err, "Local save must win even when the credential cannot be refreshed")
	assert.False(t, mirrored)
	assert.JSONEq(t, `{"ops":[{"insert":"hi there"}]}`, string(updated.Content))
	assert.Equal(t, pushesAfterCreate, client.replaceCalls, "No external push should happen without a credential")
}

func TestCreateMirroredUsesRefreshedToken(t *testing.T) {
	// Probe fails, refresh succeeds; the external create in the same request
	// must run with the new access token.
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "expired", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{validToken: "fresh", refreshedTo: "fresh", createID: "gdoc-1"}
	store := newFakeDocStore()
	coord := NewCoordinator(tokens, store, client)

	content := json.RawMessage(`{"ops":[{"insert":"hello"}]}`)
	doc, err := coord.CreateMirrored(context.Background(), 1, "Draft", content, true)
	require.NoError(t, err)
	assert.Equal(t, "gdoc-1", doc.GoogleDocID)
	assert.Equal(t, "fresh", client.lastToken)
	assert.Equal(t, "hello", client.replaceText)
	require.NotNil(t, doc.LastSyncedAt)
}

func TestCreateMirroredExternalFailureKeepsLocal(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{
		validToken: "fresh",
		createErr:  apperr.New(apperr.ExternalUnavailable, "docs api down"),
	}
	store := newFakeDocStore()
	coord := NewCoordinator(tokens, store, client)

	doc, err := coord.CreateMirrored(context.Background(), 1, "Draft", json.RawMessage(`{"ops":[]}`), true)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ExternalUnavailable))

	// The local document persisted and is usable, just without a mirror.
	assert.NotZero(t, doc.ID)
	assert.Empty(t, doc.GoogleDocID)
	stored := store.docs[doc.ID]
	assert.Equal(t, "Draft", stored.Title)
	assert.Empty(t, stored.GoogleDocID)

	// A save on the same id still updates local content.
	updated, mirrored, err := coord.SaveMirrored(context.Background(), stored, "Draft", json.RawMessage(`{"ops":[{"insert":"x"}]}`))
	require.NoError(t, err)
	assert.True(t, mirrored, "A local-only document is trivially in sync")
	assert.JSONEq(t, `{"ops":[{"insert":"x"}]}`, string(updated.Content))
}

func TestCreateLocalOnlySkipsExternal(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "expired", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{validToken: "fresh", refreshErr: apperr.New(apperr.ExternalAuth, "down")}
	coord := NewCoordinator(tokens, newFakeDocStore(), client)

	doc, err := coord.CreateMirrored(context.Background(), 1, "Notes", json.RawMessage(`{"ops":[]}`), false)
	require.NoError(t, err)
	assert.NotZero(t, doc.ID)
	assert.Empty(t, client.lastToken, "No external call should be made without a mirror request")
}

func TestSaveMirroredSwallowsExternalFailure(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{
		validToken: "fresh",
		replaceErr: apperr.New(apperr.ExternalUnavailable, "docs api down"),
	}
	store := newFakeDocStore()
	coord := NewCoordinator(tokens, store, client)

	doc, err := coord.CreateMirrored(context.Background(), 1, "Draft", json.RawMessage(`{"ops":[]}`), false)
	require.NoError(t, err)
	require.NoError(t, store.SetMirror(context.Background(), doc.ID, "gdoc-9", time.Now()))
	doc = store.docs[doc.ID]

	updated, mirrored, err := coord.SaveMirrored(context.Background(), doc, "Draft", json.RawMessage(`{"ops":[{"insert":"hello world"}]}`))
	require.NoError(t, err, "Local write wins even when the mirror push fails")
	assert.False(t, mirrored)
	assert.JSONEq(t, `{"ops":[{"insert":"hello world"}]}`, string(updated.Content))
	assert.Equal(t, 1, client.replaceCalls)
}

func TestListMergedNeverDeduplicates(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{
		validToken: "fresh",
		files:      []google.File{{ID: "g1", Name: "Draft"}, {ID: "g2", Name: "Notes"}},
	}
	store := newFakeDocStore()
	coord := NewCoordinator(tokens, store, client)

	// A local document whose title matches an external one must still
	// appear on both sides of the union.
	_, err := store.Create(context.Background(), 1, "Draft", []byte(`{"ops":[]}`))
	require.NoError(t, err)

	merged, err := coord.ListMerged(context.Background(), 1, 1, 10)
	require.NoError(t, err)
	assert.Len(t, merged.Google, 2)
	assert.Len(t, merged.Local.Items, 1)
	assert.Equal(t, "Draft", merged.Google[0].Name)
	assert.Equal(t, "Draft", merged.Local.Items[0].Title)
}

func TestListMergedSurfacesExternalFailure(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{
		validToken: "fresh",
		listErr:    apperr.New(apperr.ExternalUnavailable, "drive down"),
	}
	coord := NewCoordinator(tokens, newFakeDocStore(), client)

	_, err := coord.ListMerged(context.Background(), 1, 1, 10)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.ExternalUnavailable))
}

func TestListMergedPagination(t *testing.T) {
	tokens := &fakeTokens{pair: user.TokenPair{AccessToken: "fresh", RefreshToken: "refresh-1"}}
	client := &fakeDocsClient{validToken: "fresh"}
	store := newFakeDocStore()
	coord := NewCoordinator(tokens, store, client)

	const total = 7
	for i := 0; i < total; i++ {
		_, err := store.Create(context.Background(), 1, "Doc", []byte(`{"ops":[]}`))
		require.NoError(t, err)
	}

	cases := []struct {
		page, limit, wantItems, wantPages int
	}{
		{1, 3, 3, 3},
		{2, 3, 3, 3},
		{3, 3, 1, 3},
		{4, 3, 0, 3},
		{1, 7, 7, 1},
		{1, 10, 7, 1},
	}
	for _, tc := range cases {
		merged, err := coord.ListMerged(context.Background(), 1, tc.page, tc.limit)
		require.NoError(t, err)
		assert.Len(t, merged.Local.Items, tc.wantItems, "page=%d limit=%d", tc.page, tc.limit)
		assert.Equal(t, total, merged.Local.Total)
		assert.Equal(t, tc.wantPages, merged.Local.TotalPages, "page=%d limit=%d", tc.page, tc.limit)
	}
}
