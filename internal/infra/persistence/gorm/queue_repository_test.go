package gorm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

type queueFixture struct {
	rooms  *GormRoomRepository
	queues *GormQueueRepository
}

func newQueueFixture(t *testing.T) *queueFixture {
	t.Helper()
	store := newTestStore(t)
	f := &queueFixture{
		rooms:  NewGormRoomRepository(store),
		queues: NewGormQueueRepository(store),
	}
	require.NoError(t, f.rooms.CreateRoom(context.Background(), "ABCDE", "prof1"))
	return f
}

func TestQueueCreateAndList(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.CreateQueue(ctx, "ABCDE", "office_hours"))
	names, err := f.queues.ListQueues(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, []string{domain.DefaultQueue, "office_hours"}, names)
}

func TestQueueRecreateResetsMembers(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", ""))

	// 同名重建清空队列
	require.NoError(t, f.queues.CreateQueue(ctx, "ABCDE", domain.DefaultQueue))
	members, err := f.queues.ListMembers(ctx, "ABCDE", domain.DefaultQueue)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestQueueMemberOrderAndDuplicates(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", "lab 2"))
	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu2", ""))
	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu3", ""))

	err := f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", "")
	assert.ErrorIs(t, err, repository.ErrDuplicateEntry)

	members, err := f.queues.ListMembers(ctx, "ABCDE", domain.DefaultQueue)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, "stu1", members[0].Username)
	assert.Equal(t, "lab 2", members[0].Note)
	assert.Equal(t, "stu2", members[1].Username)
	assert.Equal(t, "stu3", members[2].Username)

	// 中间的人离开后顺序保持
	require.NoError(t, f.queues.RemoveMember(ctx, "ABCDE", domain.DefaultQueue, "stu2"))
	members, err = f.queues.ListMembers(ctx, "ABCDE", domain.DefaultQueue)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "stu1", members[0].Username)
	assert.Equal(t, "stu3", members[1].Username)
}

func TestQueueAddMemberToMissingQueue(t *testing.T) {
	f := newQueueFixture(t)
	err := f.queues.AddMember(context.Background(), "ABCDE", "missing", "stu1", "")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQueueRename(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", ""))
	require.NoError(t, f.queues.RenameQueue(ctx, "ABCDE", domain.DefaultQueue, "helpq"))

	names, err := f.queues.ListQueues(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Equal(t, []string{"helpq"}, names)

	// 成员跟着队列走
	members, err := f.queues.ListMembers(ctx, "ABCDE", "helpq")
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "stu1", members[0].Username)

	err = f.queues.RenameQueue(ctx, "ABCDE", "missing", "other")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, f.queues.CreateQueue(ctx, "ABCDE", "second"))
	err = f.queues.RenameQueue(ctx, "ABCDE", "second", "helpq")
	assert.ErrorIs(t, err, repository.ErrAlreadyExists)
}

func TestQueueClearAndDelete(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", ""))
	require.NoError(t, f.queues.ClearQueue(ctx, "ABCDE", domain.DefaultQueue))

	members, err := f.queues.ListMembers(ctx, "ABCDE", domain.DefaultQueue)
	require.NoError(t, err)
	assert.Empty(t, members)
	names, err := f.queues.ListQueues(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Contains(t, names, domain.DefaultQueue)

	require.NoError(t, f.queues.DeleteQueue(ctx, "ABCDE", domain.DefaultQueue))
	names, err = f.queues.ListQueues(ctx, "ABCDE")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestQueueToggleMark(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", ""))

	require.NoError(t, f.queues.ToggleMark(ctx, "ABCDE", domain.DefaultQueue, "stu1"))
	members, err := f.queues.ListMembers(ctx, "ABCDE", domain.DefaultQueue)
	require.NoError(t, err)
	assert.True(t, members[0].Marked)

	require.NoError(t, f.queues.ToggleMark(ctx, "ABCDE", domain.DefaultQueue, "stu1"))
	members, err = f.queues.ListMembers(ctx, "ABCDE", domain.DefaultQueue)
	require.NoError(t, err)
	assert.False(t, members[0].Marked)

	err = f.queues.ToggleMark(ctx, "ABCDE", domain.DefaultQueue, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestQueueListAll(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.CreateQueue(ctx, "ABCDE", "empty_q"))
	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", ""))

	all, err := f.queues.ListAll(ctx, "ABCDE")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Len(t, all[domain.DefaultQueue], 1)
	// 空队列也出现在结果里，值是空切片而不是 nil
	assert.NotNil(t, all["empty_q"])
	assert.Empty(t, all["empty_q"])
}

func TestQueueIsMember(t *testing.T) {
	f := newQueueFixture(t)
	ctx := context.Background()

	require.NoError(t, f.queues.AddMember(ctx, "ABCDE", domain.DefaultQueue, "stu1", ""))
	ok, err := f.queues.IsMember(ctx, "ABCDE", domain.DefaultQueue, "stu1")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = f.queues.IsMember(ctx, "ABCDE", domain.DefaultQueue, "stu2")
	require.NoError(t, err)
	assert.False(t, ok)
}
