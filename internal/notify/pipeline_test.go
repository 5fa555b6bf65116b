package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prtrack/internal/cache"
	"prtrack/internal/resolve"
	"prtrack/internal/types"
)

// fakePRStore implements PRStore over a fixed map.
type fakePRStore struct {
	prs map[string]*types.PurchaseRequest
}

func (f *fakePRStore) GetByID(_ context.Context, id string) (*types.PurchaseRequest, error) {
	if pr, ok := f.prs[id]; ok {
		return pr, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundPurchaseRequest, "purchase request not found", nil)
}

// userStoreStub implements resolve.UserStore over a fixed map keyed by
// lowercase email.
type userStoreStub struct {
	users map[string]*types.User
}

func (s *userStoreStub) FindByEmail(_ context.Context, email string) (*types.User, error) {
	if u, ok := s.users[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "no user", nil)
}

func (s *userStoreStub) FindByAlias(ctx context.Context, email string, _ int) (*types.User, error) {
	return s.FindByEmail(ctx, email)
}

// memLog is an in-memory NotificationLog enforcing the same uniqueness
// constraint as the Postgres table.
type memLog struct {
	mu      sync.Mutex
	entries map[string]*types.NotificationLogEntry
	nextID  int
}

func newMemLog() *memLog {
	return &memLog{entries: make(map[string]*types.NotificationLogEntry)}
}

func (m *memLog) InsertPendingIfNotExists(_ context.Context, prID, transitionKey string, recipients []string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := prID + "|" + transitionKey
	if existing, ok := m.entries[key]; ok {
		return existing.ID, false, nil
	}
	m.nextID++
	entry := &types.NotificationLogEntry{
		ID:            fmt.Sprintf("entry-%d", m.nextID),
		PRID:          prID,
		TransitionKey: transitionKey,
		Recipients:    recipients,
		Status:        types.NotificationPending,
	}
	m.entries[key] = entry
	return entry.ID, true, nil
}

func (m *memLog) Get(_ context.Context, prID, transitionKey string) (*types.NotificationLogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[prID+"|"+transitionKey]; ok {
		return e, nil
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundNotification, "entry not found", nil)
}

func (m *memLog) RetryFailed(_ context.Context, prID, transitionKey string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[prID+"|"+transitionKey]
	if !ok || e.Status != types.NotificationFailed {
		return "", false, nil
	}
	e.Status = types.NotificationPending
	e.FailureReason = ""
	return e.ID, true, nil
}

func (m *memLog) HasEntry(_ context.Context, prID, transitionKey string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[prID+"|"+transitionKey]
	return ok, nil
}

func (m *memLog) MarkSent(_ context.Context, id string, recipients []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = types.NotificationSent
			e.Recipients = recipients
			return nil
		}
	}
	return types.NewAppError(types.ErrCodeNotFoundNotification, "entry not found", nil)
}

func (m *memLog) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			e.Status = types.NotificationFailed
			e.FailureReason = reason
			return nil
		}
	}
	return types.NewAppError(types.ErrCodeNotFoundNotification, "entry not found", nil)
}

func (m *memLog) sentEntries() []*types.NotificationLogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*types.NotificationLogEntry
	for _, e := range m.entries {
		if e.Status == types.NotificationSent {
			out = append(out, e)
		}
	}
	return out
}

// flakyProvider fails sends to configured recipients and records successes.
type flakyProvider struct {
	mu      sync.Mutex
	failFor map[string]bool
	failAll bool
	sent    []types.SendInput
}

func (p *flakyProvider) Send(_ context.Context, input types.SendInput) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failAll || p.failFor[strings.ToLower(input.To)] {
		return "", types.NewAppError(types.ErrCodeUpstreamMailProvider, "provider unavailable", nil)
	}
	p.sent = append(p.sent, input)
	return fmt.Sprintf("msg-%d", len(p.sent)), nil
}

func (p *flakyProvider) sentInputs() []types.SendInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.SendInput, len(p.sent))
	copy(out, p.sent)
	return out
}

type pipelineFixture struct {
	notifier *Notifier
	log      *memLog
	provider *flakyProvider
}

func newPipeline(t *testing.T, pr *types.PurchaseRequest, users map[string]*types.User, provider *flakyProvider) *pipelineFixture {
	t.Helper()
	logger := &testLogger{}

	identity := resolve.NewIdentityResolver(
		&userStoreStub{users: users},
		nil,
		cache.NewMemoryCache(),
		resolve.IdentityResolverOptions{TTL: time.Hour, ScanWindow: 100},
		logger,
	)
	refdata := resolve.NewRefDataResolver(&staticRefStore{}, cache.NewMemoryCache(), time.Hour, nil, logger)

	renderer, err := NewRenderer(logger)
	require.NoError(t, err)

	log := newMemLog()
	fix := &pipelineFixture{log: log, provider: provider}
	fix.notifier = NewNotifier(NotifierDeps{
		PRs:           &fakePRStore{prs: map[string]*types.PurchaseRequest{pr.ID: pr}},
		Contexts:      NewContextBuilder(identity, refdata, "https://pr.example.com"),
		Renderer:      renderer,
		PostProcessor: NewPostProcessor(refdata, logger),
		Guard:         NewGuard(log, logger),
		Dispatcher: NewDispatcher(
			provider,
			types.SenderIdentity{Name: "PR Tracker", Address: "no-reply@prtrack.example.com"},
			5*time.Second,
			NopMetrics{},
			logger,
		),
		Log:                log,
		ProcurementAddress: procurement,
		Metrics:            NopMetrics{},
		Logger:             logger,
	})
	return fix
}

func pendingApprovalTrigger(prID string) types.TriggerRequest {
	return types.TriggerRequest{
		Notification: types.TriggerNotification{
			PRID:           prID,
			PRNumber:       "PR-2025-001",
			OrganizationID: "org-1",
			OldStatus:      string(types.StatusSubmitted),
			NewStatus:      string(types.StatusPendingApproval),
			RequestorEmail: "jopi@example.com",
			ApproverEmail:  "approver@example.com",
		},
	}
}

func TestProcess_EndToEndPendingApproval(t *testing.T) {
	pr := testPR()
	pr.RequestorName = ""
	users := map[string]*types.User{
		"approver@example.com": {Email: "approver@example.com", Name: "Alice Approver"},
	}
	provider := &flakyProvider{}
	fix := newPipeline(t, pr, users, provider)

	result, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Delivered)
	assert.Empty(t, result.Failed)

	sent := fix.provider.sentInputs()
	require.Len(t, sent, 1)
	assert.Equal(t, "approver@example.com", sent[0].To)
	assert.Contains(t, sent[0].Cc, "jopi@example.com")
	assert.Contains(t, sent[0].Subject, "PR-2025-001")
	assert.Contains(t, sent[0].BodyHTML, "Jopi", "the requestor name derives from the email local part")
	assert.NotContains(t, sent[0].BodyHTML, "Unknown")

	entries := fix.log.sentEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, "SUBMITTED->PENDING_APPROVAL", entries[0].TransitionKey)
}

func TestProcess_DuplicateIsSilentNoop(t *testing.T) {
	pr := testPR()
	provider := &flakyProvider{}
	fix := newPipeline(t, pr, nil, provider)

	first, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.NoError(t, err)

	assert.True(t, second.Success)
	assert.True(t, second.Duplicate)
	assert.Zero(t, second.Delivered)

	assert.Len(t, fix.provider.sentInputs(), 1, "the duplicate trigger must not send")
	assert.Len(t, fix.log.sentEntries(), 1, "exactly one sent entry per transition")
}

func TestProcess_MissingPRRejected(t *testing.T) {
	pr := testPR()
	fix := newPipeline(t, pr, nil, &flakyProvider{})

	_, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger("no-such-pr"))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundPurchaseRequest, appErr.Code)
}

func TestProcess_NoRecipientsRejected(t *testing.T) {
	pr := testPR()
	pr.ApproverEmail = ""
	fix := newPipeline(t, pr, nil, &flakyProvider{})

	req := pendingApprovalTrigger(pr.ID)
	req.Notification.ApproverEmail = ""

	_, err := fix.notifier.Process(context.Background(), req)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationNoRecipients, appErr.Code)

	has, hasErr := fix.log.HasEntry(context.Background(), pr.ID, "SUBMITTED->PENDING_APPROVAL")
	require.NoError(t, hasErr)
	assert.False(t, has, "a rejected trigger must not claim the transition")
}

func TestProcess_InvalidTransitionRejected(t *testing.T) {
	pr := testPR()
	fix := newPipeline(t, pr, nil, &flakyProvider{})

	req := pendingApprovalTrigger(pr.ID)
	req.Notification.NewStatus = "SHIPPED"

	_, err := fix.notifier.Process(context.Background(), req)
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationInvalidStatus, appErr.Code)
}

func TestProcess_PartialDelivery(t *testing.T) {
	pr := testPR()
	provider := &flakyProvider{failFor: map[string]bool{procurement: true}}
	fix := newPipeline(t, pr, nil, provider)

	req := pendingApprovalTrigger(pr.ID)
	req.Notification.OldStatus = string(types.StatusPendingApproval)
	req.Notification.NewStatus = string(types.StatusRejected)

	result, err := fix.notifier.Process(context.Background(), req)
	require.NoError(t, err, "partial delivery is a partial success, not a failure")

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Delivered)
	assert.Equal(t, []string{procurement}, result.Failed)

	entries := fix.log.sentEntries()
	require.Len(t, entries, 1)
	assert.Equal(t, []string{"jopi@example.com"}, entries[0].Recipients,
		"the sent entry records only the delivered subset")
}

func TestProcess_TotalDeliveryFailure(t *testing.T) {
	pr := testPR()
	provider := &flakyProvider{failAll: true}
	fix := newPipeline(t, pr, nil, provider)

	result, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamMailProvider, appErr.Code)
	require.NotNil(t, result)
	assert.Equal(t, []string{"approver@example.com"}, result.Failed)

	assert.Empty(t, fix.log.sentEntries())
}

func TestGuard_AlreadyNotified(t *testing.T) {
	log := newMemLog()
	guard := NewGuard(log, &testLogger{})
	ctx := context.Background()

	notified, err := guard.AlreadyNotified(ctx, "pr-123", "SUBMITTED->PENDING_APPROVAL")
	require.NoError(t, err)
	assert.False(t, notified)

	_, won, err := guard.Claim(ctx, "pr-123", "SUBMITTED->PENDING_APPROVAL", []string{"a@example.com"})
	require.NoError(t, err)
	require.True(t, won)

	notified, err = guard.AlreadyNotified(ctx, "pr-123", "SUBMITTED->PENDING_APPROVAL")
	require.NoError(t, err)
	assert.True(t, notified, "any entry counts, regardless of status")
}

func TestRetry_ReDeliversAfterTotalFailure(t *testing.T) {
	pr := testPR()
	provider := &flakyProvider{failAll: true}
	fix := newPipeline(t, pr, nil, provider)

	_, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.Error(t, err)

	provider.mu.Lock()
	provider.failAll = false
	provider.mu.Unlock()

	result, err := fix.notifier.Retry(context.Background(), pendingApprovalTrigger(pr.ID))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Delivered)
	assert.Len(t, fix.log.sentEntries(), 1)
}

func TestRetry_SentEntryIsNotRetryable(t *testing.T) {
	pr := testPR()
	fix := newPipeline(t, pr, nil, &flakyProvider{})

	_, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.NoError(t, err)

	_, err = fix.notifier.Retry(context.Background(), pendingApprovalTrigger(pr.ID))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictDuplicateNotification, appErr.Code)
	assert.Len(t, fix.provider.sentInputs(), 1, "a retry of a sent entry must not send again")
}

func TestRetry_NeverAttemptedIsNotFound(t *testing.T) {
	pr := testPR()
	fix := newPipeline(t, pr, nil, &flakyProvider{})

	_, err := fix.notifier.Retry(context.Background(), pendingApprovalTrigger(pr.ID))
	require.Error(t, err)

	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundNotification, appErr.Code)
}

func TestStatus_ReturnsDeliveryRecord(t *testing.T) {
	pr := testPR()
	fix := newPipeline(t, pr, nil, &flakyProvider{})

	_, err := fix.notifier.Process(context.Background(), pendingApprovalTrigger(pr.ID))
	require.NoError(t, err)

	entry, err := fix.notifier.Status(context.Background(), pr.ID, "SUBMITTED->PENDING_APPROVAL")
	require.NoError(t, err)
	assert.Equal(t, types.NotificationSent, entry.Status)
	assert.Equal(t, []string{"approver@example.com"}, entry.Recipients)
}

func TestProcess_ProvidedBodySkipsRenderer(t *testing.T) {
	pr := testPR()
	provider := &flakyProvider{}
	fix := newPipeline(t, pr, nil, provider)

	req := pendingApprovalTrigger(pr.ID)
	req.EmailBody = &types.TriggerEmailBody{
		Subject: "Custom subject for {{PR_NUMBER}}",
		HTML:    "<p>Hello {{REQUESTOR_NAME}}</p><td>Unknown</td>",
	}

	_, err := fix.notifier.Process(context.Background(), req)
	require.NoError(t, err)

	sent := fix.provider.sentInputs()
	require.Len(t, sent, 1)
	assert.Equal(t, "Custom subject for PR-2025-001", sent[0].Subject)
	assert.Contains(t, sent[0].BodyHTML, "Hello Jopi")
	assert.NotContains(t, sent[0].BodyHTML, "Unknown", "provided bodies still pass through the post-processor")
}
