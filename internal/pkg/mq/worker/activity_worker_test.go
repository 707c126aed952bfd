package worker

import (
	"encoding/json"
	"testing"

	"github.com/qiyihan/go-linkhub/internal/models"
	"github.com/qiyihan/go-linkhub/internal/repositories"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeActivityRepo struct {
	created []models.UserActivity
}

var _ repositories.ActivityRepository = (*fakeActivityRepo)(nil)

func (r *fakeActivityRepo) Create(activity *models.UserActivity) error {
	r.created = append(r.created, *activity)
	return nil
}

func (r *fakeActivityRepo) FindAllByUser(userID uint64, page, pageSize int) ([]models.UserActivity, int64, error) {
	return nil, 0, nil
}

func TestHandleActivityEventPersistsRecord(t *testing.T) {
	repo := &fakeActivityRepo{}
	w := NewActivityWorker(nil, repo)

	body, err := json.Marshal(ActivityEvent{
		UserID:   7,
		Action:   models.ActivityLinkCreate,
		Detail:   "创建分享链接 季度报告",
		SourceIP: "203.0.113.7",
	})
	require.NoError(t, err)

	w.handleActivityEvent(amqp.Delivery{Body: body})

	require.Len(t, repo.created, 1)
	assert.Equal(t, uint64(7), repo.created[0].UserID)
	assert.Equal(t, models.ActivityLinkCreate, repo.created[0].Action)
	assert.Equal(t, "203.0.113.7", repo.created[0].SourceIP)
}

func TestHandleActivityEventDropsMalformedPayload(t *testing.T) {
	repo := &fakeActivityRepo{}
	w := NewActivityWorker(nil, repo)

	w.handleActivityEvent(amqp.Delivery{Body: []byte("not-json")})

	assert.Empty(t, repo.created)
}
