package link

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLinkRepo 内存版链接仓储，提交逻辑与数据库实现保持同一守卫语义
type fakeLinkRepo struct {
	mu      sync.Mutex
	nextID  uint64
	links   map[uint64]*models.Link
	byToken map[string]uint64
	logs    []models.LinkAccessLog
}

var _ repositories.LinkRepository = (*fakeLinkRepo)(nil)

func newFakeLinkRepo() *fakeLinkRepo {
	return &fakeLinkRepo{
		nextID:  1,
		links:   make(map[uint64]*models.Link),
		byToken: make(map[string]uint64),
	}
}

func (r *fakeLinkRepo) add(l *models.Link) *models.Link {
	r.mu.Lock()
	defer r.mu.Unlock()
	l.ID = r.nextID
	r.nextID++
	if l.LinkID == "" {
		l.LinkID = utils.NewLinkID()
	}
	r.links[l.ID] = l
	r.byToken[l.LinkID] = l.ID
	return l
}

func (r *fakeLinkRepo) snapshot(l *models.Link) *models.Link {
	cp := *l
	return &cp
}

func (r *fakeLinkRepo) Create(l *models.Link) error {
	r.add(l)
	return nil
}

func (r *fakeLinkRepo) FindByLinkID(ctx context.Context, linkID string) (*models.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byToken[linkID]
	if !ok {
		return nil, nil
	}
	return r.snapshot(r.links[id]), nil
}

func (r *fakeLinkRepo) FindByID(id uint64) (*models.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return nil, nil
	}
	return r.snapshot(l), nil
}

func (r *fakeLinkRepo) FindByOwnerAndName(ownerID uint64, customName string) (*models.Link, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.links {
		if l.CreatedBy == ownerID && l.CustomName == customName {
			return r.snapshot(l), nil
		}
	}
	return nil, nil
}

func (r *fakeLinkRepo) FindAllByUser(userID uint64, q repositories.LinkListQuery) ([]models.Link, int64, error) {
	return nil, 0, nil
}

func (r *fakeLinkRepo) FindRecentByUser(userID uint64, limit int) ([]models.Link, error) {
	return nil, nil
}

func (r *fakeLinkRepo) FindAll(q repositories.LinkListQuery) ([]models.Link, int64, error) {
	return nil, 0, nil
}

func (r *fakeLinkRepo) Update(l *models.Link) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.links[l.ID]
	if !ok || current.Version != l.Version {
		return xerr.ErrConflictRetry
	}
	cp := *l
	cp.Version++
	r.links[l.ID] = &cp
	return nil
}

func (r *fakeLinkRepo) SetActive(id uint64, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return xerr.ErrLinkNotFound
	}
	l.IsActive = active
	l.Version++
	return nil
}

func (r *fakeLinkRepo) SetFavorite(id uint64, favorite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return xerr.ErrLinkNotFound
	}
	l.Favorite = favorite
	l.Version++
	return nil
}

func (r *fakeLinkRepo) Delete(id uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	if !ok {
		return xerr.ErrLinkNotFound
	}
	delete(r.byToken, l.LinkID)
	delete(r.links, id)
	return nil
}

func (r *fakeLinkRepo) AppendAccessAndIncrement(ctx context.Context, linkID uint64, entry *models.LinkAccessLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[linkID]
	if !ok || !l.IsActive {
		return xerr.ErrLinkNotFound
	}
	if l.IsAccessLimitReached() {
		return xerr.ErrLinkLimitReached
	}
	l.AccessCount++
	l.Version++
	entry.LinkID = linkID
	entry.AccessedAt = time.Now()
	r.logs = append(r.logs, *entry)
	return nil
}

func (r *fakeLinkRepo) FindAccessLogs(linkID uint64, page, pageSize int) ([]models.LinkAccessLog, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.LinkAccessLog
	for _, entry := range r.logs {
		if entry.LinkID == linkID {
			out = append(out, entry)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeLinkRepo) FindAllAccessLogs(linkID uint64) ([]models.LinkAccessLog, error) {
	logs, _, err := r.FindAccessLogs(linkID, 1, 0)
	return logs, err
}

func (r *fakeLinkRepo) stateOf(t *testing.T, id uint64) *models.Link {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.links[id]
	require.True(t, ok)
	return r.snapshot(l)
}

func activeFile() *models.File {
	return &models.File{
		ID:               1,
		UserID:           1,
		OriginalFilename: "report.pdf",
		CustomFilename:   "report.pdf",
		MimeType:         "application/pdf",
		Size:             1024,
		IsActive:         true,
	}
}

// newTestLink 一条默认可匿名访问的 download 链接
func newTestLink(mutate func(*models.Link)) *models.Link {
	l := &models.Link{
		LinkID:           utils.NewLinkID(),
		CustomName:       "测试链接",
		CreatedBy:        1,
		FileID:           1,
		ExpirationType:   models.ExpirationNone,
		VerificationType: models.VerificationNone,
		AccessScope:      models.ScopePublic,
		AccessType:       models.AccessTypeDownload,
		IsActive:         true,
		CreatedAt:        time.Now().Add(-time.Hour),
		File:             activeFile(),
	}
	if mutate != nil {
		mutate(l)
	}
	return l
}

func setupEvaluator(mutate func(*models.Link)) (*fakeLinkRepo, AccessEvaluator, *models.Link) {
	repo := newFakeLinkRepo()
	l := repo.add(newTestLink(mutate))
	return repo, NewAccessEvaluator(repo), l
}

func TestEvaluateUnknownLink(t *testing.T) {
	repo := newFakeLinkRepo()
	ev := NewAccessEvaluator(repo)

	_, err := ev.Evaluate(context.Background(), "deadbeefdeadbeefdeadbeefdeadbeef", nil, Credentials{}, AccessInfo, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkNotFound)
}

func TestEvaluateInactiveLinkLooksLikeMissing(t *testing.T) {
	repo, ev, l := setupEvaluator(func(l *models.Link) {
		l.IsActive = false
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkNotFound)
	assert.Zero(t, repo.stateOf(t, l.ID).AccessCount)
}

func TestEvaluateDeletedFileCollapsesToNotFound(t *testing.T) {
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.File.IsActive = false
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessInfo, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkNotFound)
}

func TestEvaluateExpiredByDuration(t *testing.T) {
	seconds := int64(1800) // 创建于一小时前，30 分钟时效
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.ExpirationType = models.ExpirationDuration
		l.ExpirationValue = &seconds
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkExpired)
}

func TestEvaluateExpiredByDate(t *testing.T) {
	past := time.Now().Add(-time.Minute).UnixMilli()
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.ExpirationType = models.ExpirationDate
		l.ExpirationValue = &past
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkExpired)
}

func TestEvaluateNotYetExpired(t *testing.T) {
	future := time.Now().Add(time.Hour).UnixMilli()
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.ExpirationType = models.ExpirationDate
		l.ExpirationValue = &future
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.NoError(t, err)
}

func TestEvaluateLimitReached(t *testing.T) {
	limit := uint32(3)
	repo, ev, l := setupEvaluator(func(l *models.Link) {
		l.AccessLimit = &limit
		l.AccessCount = 3
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkLimitReached)
	assert.Equal(t, uint32(3), repo.stateOf(t, l.ID).AccessCount)
}

func TestEvaluateCapabilityExactMatch(t *testing.T) {
	cases := []struct {
		accessType string
		kind       AccessKind
		allowed    bool
	}{
		{models.AccessTypeInfo, AccessInfo, true},
		{models.AccessTypeInfo, AccessView, false},
		{models.AccessTypeInfo, AccessDownload, false},
		{models.AccessTypeView, AccessInfo, true},
		{models.AccessTypeView, AccessView, true},
		{models.AccessTypeView, AccessDownload, false},
		{models.AccessTypeDownload, AccessInfo, true},
		{models.AccessTypeDownload, AccessView, true},
		{models.AccessTypeDownload, AccessDownload, true},
	}

	for _, tc := range cases {
		_, ev, l := setupEvaluator(func(l *models.Link) {
			l.AccessType = tc.accessType
		})
		_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, tc.kind, "1.2.3.4")
		if tc.allowed {
			assert.NoError(t, err, "accessType=%s kind=%s", tc.accessType, tc.kind)
		} else {
			assert.ErrorIs(t, err, xerr.ErrLinkCapabilityDenied, "accessType=%s kind=%s", tc.accessType, tc.kind)
		}
	}
}

func TestEvaluateScopeUsersRequiresLogin(t *testing.T) {
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.AccessScope = models.ScopeUsers
	})

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkLoginRequired)

	_, err = ev.Evaluate(context.Background(), l.LinkID, &Principal{ID: 42, Username: "bob"}, Credentials{}, AccessDownload, "1.2.3.4")
	assert.NoError(t, err)
}

func TestEvaluateScopeSelected(t *testing.T) {
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.AccessScope = models.ScopeSelected
		l.AllowedUsers = []models.User{{ID: 7, Username: "alice"}}
	})

	// 匿名要求先登录
	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkLoginRequired)

	// 已登录但不在允许列表
	_, err = ev.Evaluate(context.Background(), l.LinkID, &Principal{ID: 8, Username: "mallory"}, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkAccessDenied)

	// 允许列表中的用户
	_, err = ev.Evaluate(context.Background(), l.LinkID, &Principal{ID: 7, Username: "alice"}, Credentials{}, AccessDownload, "1.2.3.4")
	assert.NoError(t, err)
}

func TestEvaluatePasswordVerification(t *testing.T) {
	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)

	repo, ev, l := setupEvaluator(func(l *models.Link) {
		l.VerificationType = models.VerificationPassword
		l.VerificationValue = hash
	})

	_, err = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkCredentialInvalid)

	_, err = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{Password: "wrong"}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkCredentialInvalid)

	// 被拒绝的尝试不产生任何状态变更
	assert.Zero(t, repo.stateOf(t, l.ID).AccessCount)
	assert.Empty(t, repo.logs)

	_, err = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{Password: "s3cret"}, AccessDownload, "1.2.3.4")
	assert.NoError(t, err)
	assert.Equal(t, uint32(1), repo.stateOf(t, l.ID).AccessCount)
}

func TestEvaluateUsernameVerification(t *testing.T) {
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.AccessScope = models.ScopeSelected
		l.VerificationType = models.VerificationUsername
		l.AllowedUsers = []models.User{{ID: 7, Username: "Alice_Wang"}}
	})
	principal := &Principal{ID: 7, Username: "Alice_Wang"}

	// 大小写不敏感的包含匹配
	_, err := ev.Evaluate(context.Background(), l.LinkID, principal, Credentials{Username: "alice"}, AccessDownload, "1.2.3.4")
	assert.NoError(t, err)

	_, err = ev.Evaluate(context.Background(), l.LinkID, principal, Credentials{Username: "bob"}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkCredentialInvalid)

	_, err = ev.Evaluate(context.Background(), l.LinkID, principal, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkCredentialInvalid)
}

// 检查顺序是契约：过期优先于能力，能力优先于凭证
func TestEvaluateCheckOrdering(t *testing.T) {
	past := time.Now().Add(-time.Minute).UnixMilli()
	hash, err := utils.HashPassword("s3cret")
	require.NoError(t, err)

	// 已过期 + 凭证错误 → 报告过期
	_, ev, l := setupEvaluator(func(l *models.Link) {
		l.ExpirationType = models.ExpirationDate
		l.ExpirationValue = &past
		l.VerificationType = models.VerificationPassword
		l.VerificationValue = hash
	})
	_, err = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{Password: "wrong"}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkExpired)

	// 能力不匹配 + 凭证错误 → 报告能力拒绝
	_, ev, l = setupEvaluator(func(l *models.Link) {
		l.AccessType = models.AccessTypeView
		l.VerificationType = models.VerificationPassword
		l.VerificationValue = hash
	})
	_, err = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{Password: "wrong"}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkCapabilityDenied)

	// 已停用 + 已过期 → 归并为不存在
	_, ev, l = setupEvaluator(func(l *models.Link) {
		l.IsActive = false
		l.ExpirationType = models.ExpirationDate
		l.ExpirationValue = &past
	})
	_, err = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkNotFound)
}

func TestEvaluateCommitRecordsLogEntry(t *testing.T) {
	repo, ev, l := setupEvaluator(nil)

	grant, err := ev.Evaluate(context.Background(), l.LinkID, &Principal{ID: 9, Username: "carol"}, Credentials{}, AccessDownload, "203.0.113.7")
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, l.LinkID, grant.Link.LinkID)
	assert.Equal(t, "report.pdf", grant.File.CustomFilename)

	state := repo.stateOf(t, l.ID)
	assert.Equal(t, uint32(1), state.AccessCount)
	require.Len(t, repo.logs, 1)
	entry := repo.logs[0]
	assert.Equal(t, l.ID, entry.LinkID)
	require.NotNil(t, entry.UserID)
	assert.Equal(t, uint64(9), *entry.UserID)
	assert.Equal(t, "203.0.113.7", entry.SourceIP)
}

func TestEvaluateAnonymousCommit(t *testing.T) {
	repo, ev, l := setupEvaluator(nil)

	_, err := ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessInfo, "198.51.100.2")
	require.NoError(t, err)
	require.Len(t, repo.logs, 1)
	assert.Nil(t, repo.logs[0].UserID)
}

// 并发访问不能把计数推过上限：N 个并发请求、上限 M < N，
// 恰好 M 个成功，日志条数与计数一致
func TestEvaluateConcurrentLimitNeverOvershoots(t *testing.T) {
	const workers = 20
	limit := uint32(5)
	repo, ev, l := setupEvaluator(func(l *models.Link) {
		l.AccessLimit = &limit
	})

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ev.Evaluate(context.Background(), l.LinkID, nil, Credentials{}, AccessDownload, "1.2.3.4")
		}(i)
	}
	wg.Wait()

	granted, limited := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			granted++
		case xerr.Is(err, xerr.ErrLinkLimitReached):
			limited++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 5, granted)
	assert.Equal(t, 15, limited)
	assert.Equal(t, uint32(5), repo.stateOf(t, l.ID).AccessCount)
	assert.Len(t, repo.logs, 5)
}
