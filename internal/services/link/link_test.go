package link

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/pkg/utils"
	"github.com/qiyihan/go-linkhub/internal/pkg/xerr"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFileRepo struct {
	files map[uint64]*models.File
}

var _ repositories.FileRepository = (*fakeFileRepo)(nil)

func (r *fakeFileRepo) Create(f *models.File) error { r.files[f.ID] = f; return nil }
func (r *fakeFileRepo) FindByID(ctx context.Context, id uint64) (*models.File, error) {
	f, ok := r.files[id]
	if !ok {
		return nil, nil
	}
	return f, nil
}
func (r *fakeFileRepo) FindAllByUser(userID uint64, page, pageSize int) ([]models.File, int64, error) {
	return nil, 0, nil
}
func (r *fakeFileRepo) Update(f *models.File) error           { return nil }
func (r *fakeFileRepo) Delete(id uint64) error                { delete(r.files, id); return nil }
func (r *fakeFileRepo) IncrementDownloadCount(id uint64) error { return nil }

type fakeUserRepo struct {
	users map[uint64]models.User
}

var _ repositories.UserRepository = (*fakeUserRepo)(nil)

func (r *fakeUserRepo) CreateUser(u *models.User) error { return nil }
func (r *fakeUserRepo) GetUserByUsername(username string) (*models.User, error) {
	return nil, nil
}
func (r *fakeUserRepo) GetUserByEmail(email string) (*models.User, error) { return nil, nil }
func (r *fakeUserRepo) GetUserByID(id uint64) (*models.User, error)       { return nil, nil }
func (r *fakeUserRepo) GetUsersByIDs(ids []uint64) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := r.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}
func (r *fakeUserRepo) ListUsers(page, pageSize int, search string) ([]models.User, int64, error) {
	return nil, 0, nil
}
func (r *fakeUserRepo) UpdateUser(u *models.User) error { return nil }

func setupLinkService() (LinkService, *fakeLinkRepo) {
	linkRepo := newFakeLinkRepo()
	fileRepo := &fakeFileRepo{files: map[uint64]*models.File{
		1: activeFile(),
	}}
	userRepo := &fakeUserRepo{users: map[uint64]models.User{
		7: {ID: 7, Username: "alice"},
	}}
	return NewLinkService(linkRepo, fileRepo, userRepo, nil, nil), linkRepo
}

func TestCreateLinkDefaults(t *testing.T) {
	svc, _ := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:     1,
		CustomName: "季度报告",
	}, "1.2.3.4")
	require.NoError(t, err)

	assert.Len(t, created.LinkID, 32)
	assert.Equal(t, models.ExpirationNone, created.ExpirationType)
	assert.Equal(t, models.VerificationNone, created.VerificationType)
	assert.Equal(t, models.ScopePublic, created.AccessScope)
	assert.Equal(t, models.AccessTypeInfo, created.AccessType)
	assert.True(t, created.IsActive)
	assert.Zero(t, created.AccessCount)
}

func TestCreateLinkMissingFile(t *testing.T) {
	svc, _ := setupLinkService()

	_, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:     99,
		CustomName: "不存在的文件",
	}, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrFileNotFound)
}

func TestCreateLinkRejectsInvalidConfig(t *testing.T) {
	svc, _ := setupLinkService()

	// username 验证要求 selected 范围
	_, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:            1,
		CustomName:        "非法组合",
		VerificationType:  models.VerificationUsername,
		VerificationValue: "alice",
	}, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkConfigInvalid)

	// password 验证必须提供口令
	_, err = svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:           1,
		CustomName:       "缺口令",
		VerificationType: models.VerificationPassword,
	}, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkConfigInvalid)

	// selected 范围引用了不存在的用户
	_, err = svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:         1,
		CustomName:     "幽灵用户",
		AccessScope:    models.ScopeSelected,
		AllowedUserIDs: []uint64{7, 404},
	}, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkConfigInvalid)
}

func TestCreateLinkStoresPasswordAsHash(t *testing.T) {
	svc, _ := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:            1,
		CustomName:        "带口令",
		VerificationType:  models.VerificationPassword,
		VerificationValue: "s3cret",
	}, "1.2.3.4")
	require.NoError(t, err)

	assert.NotEqual(t, "s3cret", created.VerificationValue)
	assert.True(t, utils.CheckPasswordHash("s3cret", created.VerificationValue))
}

func TestCreateLinkDuplicateName(t *testing.T) {
	svc, _ := setupLinkService()

	_, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{FileID: 1, CustomName: "重名"}, "1.2.3.4")
	require.NoError(t, err)

	_, err = svc.CreateLink(context.Background(), 1, &CreateLinkRequest{FileID: 1, CustomName: "重名"}, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrLinkNameTaken)

	// 不同创建者可以使用相同名称
	_, err = svc.CreateLink(context.Background(), 2, &CreateLinkRequest{FileID: 1, CustomName: "重名"}, "1.2.3.4")
	assert.NoError(t, err)
}

func TestUpdateLinkOwnership(t *testing.T) {
	svc, _ := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{FileID: 1, CustomName: "属主校验"}, "1.2.3.4")
	require.NoError(t, err)

	desc := "改描述"
	// 非属主不可更新
	_, err = svc.UpdateLink(context.Background(), 2, models.RoleUser, created.ID, &UpdateLinkRequest{Description: &desc}, "1.2.3.4")
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	// 超级管理员可以
	updated, err := svc.UpdateLink(context.Background(), 2, models.RoleSuperuser, created.ID, &UpdateLinkRequest{Description: &desc}, "1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "改描述", updated.Description)
}

func TestUpdateLinkKeepsExistingPasswordHash(t *testing.T) {
	svc, _ := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{
		FileID:            1,
		CustomName:        "改配置",
		VerificationType:  models.VerificationPassword,
		VerificationValue: "s3cret",
	}, "1.2.3.4")
	require.NoError(t, err)

	// 只改描述，不动口令
	desc := "新描述"
	updated, err := svc.UpdateLink(context.Background(), 1, models.RoleUser, created.ID, &UpdateLinkRequest{Description: &desc}, "1.2.3.4")
	require.NoError(t, err)
	assert.True(t, utils.CheckPasswordHash("s3cret", updated.VerificationValue))
}

func TestDeleteLinkRemovesRecordKeepsLogs(t *testing.T) {
	svc, repo := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{FileID: 1, CustomName: "待删除"}, "1.2.3.4")
	require.NoError(t, err)

	// 模拟一次已发生的访问
	require.NoError(t, repo.AppendAccessAndIncrement(context.Background(), created.ID, &models.LinkAccessLog{SourceIP: "1.2.3.4"}))

	require.NoError(t, svc.DeleteLink(context.Background(), 1, models.RoleUser, created.ID, "1.2.3.4"))

	gone, err := repo.FindByID(created.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
	// 访问日志保留
	assert.Len(t, repo.logs, 1)
}

func TestToggleActiveFlips(t *testing.T) {
	svc, _ := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{FileID: 1, CustomName: "开关"}, "1.2.3.4")
	require.NoError(t, err)
	require.True(t, created.IsActive)

	toggled, err := svc.ToggleActive(context.Background(), 1, models.RoleUser, created.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsActive)

	toggled, err = svc.ToggleActive(context.Background(), 1, models.RoleUser, created.ID)
	require.NoError(t, err)
	assert.True(t, toggled.IsActive)
}

func TestExportAccessLogsGzipCSV(t *testing.T) {
	svc, repo := setupLinkService()

	created, err := svc.CreateLink(context.Background(), 1, &CreateLinkRequest{FileID: 1, CustomName: "导出"}, "1.2.3.4")
	require.NoError(t, err)

	uid := uint64(9)
	require.NoError(t, repo.AppendAccessAndIncrement(context.Background(), created.ID, &models.LinkAccessLog{UserID: &uid, SourceIP: "203.0.113.7"}))

	var buf bytes.Buffer
	require.NoError(t, svc.ExportAccessLogs(context.Background(), 1, models.RoleUser, created.ID, &buf))

	gzr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	rows, err := csv.NewReader(gzr).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 2) // 表头 + 1 条记录
	assert.Equal(t, []string{"link_id", "user_id", "username", "source_ip", "accessed_at"}, rows[0])
	assert.Equal(t, "9", rows[1][1])
	assert.Equal(t, "203.0.113.7", rows[1][3])
}
