package notify

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/norandomtechie/queup/internal/domain"
	"github.com/norandomtechie/queup/internal/repository"
)

// stubSource 用一个普通文件充当房间存储文件。
type stubSource struct {
	path string
	gone atomic.Bool
}

func (s *stubSource) Snapshot(ctx context.Context, room, user string) (domain.RoomSnapshot, error) {
	if s.gone.Load() {
		return domain.RoomSnapshot{}, repository.ErrNotFound
	}
	return domain.RoomSnapshot{
		Queues:  map[string][]domain.QueueMember{},
		IsOwner: user == "prof1",
	}, nil
}

func (s *stubSource) ArtifactPath(room string) string {
	return s.path
}

func newStubSource(t *testing.T) *stubSource {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ABCDE.db")
	require.NoError(t, os.WriteFile(path, []byte("seed"), 0o644))
	return &stubSource{path: path}
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)
	return log
}

func recvSnapshot(t *testing.T, sub *Subscription) domain.RoomSnapshot {
	t.Helper()
	select {
	case snap, ok := <-sub.Snapshots:
		require.True(t, ok, "snapshot stream closed unexpectedly")
		return snap
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for snapshot")
		return domain.RoomSnapshot{}
	}
}

func TestSubscribeDeliversInitialSnapshot(t *testing.T) {
	source := newStubSource(t)
	n := NewNotifier(source, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := n.Subscribe(ctx, "ABCDE", "prof1")
	require.NoError(t, err)

	snap := recvSnapshot(t, sub)
	assert.True(t, snap.IsOwner)
}

func TestSubscribeMissingRoom(t *testing.T) {
	source := newStubSource(t)
	source.gone.Store(true)
	n := NewNotifier(source, time.Hour, testLogger())

	_, err := n.Subscribe(context.Background(), "ABCDE", "stu1")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestModificationTriggersPush(t *testing.T) {
	source := newStubSource(t)
	n := NewNotifier(source, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := n.Subscribe(ctx, "ABCDE", "stu1")
	require.NoError(t, err)
	recvSnapshot(t, sub) // 初始快照

	require.NoError(t, os.WriteFile(source.path, []byte("changed"), 0o644))
	recvSnapshot(t, sub) // 变更触发的推送
}

func TestIdleTimeoutPushes(t *testing.T) {
	source := newStubSource(t)
	n := NewNotifier(source, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := n.Subscribe(ctx, "ABCDE", "stu1")
	require.NoError(t, err)
	recvSnapshot(t, sub)

	// 没有任何文件变更，超时兜底照样推送
	recvSnapshot(t, sub)
	recvSnapshot(t, sub)
}

func TestArtifactRemovalEndsSubscription(t *testing.T) {
	source := newStubSource(t)
	n := NewNotifier(source, time.Hour, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := n.Subscribe(ctx, "ABCDE", "stu1")
	require.NoError(t, err)
	recvSnapshot(t, sub)

	source.gone.Store(true)
	require.NoError(t, os.Remove(source.path))

	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription did not end after artifact removal")
		}
	}
}

func TestContextCancelEndsSubscription(t *testing.T) {
	source := newStubSource(t)
	n := NewNotifier(source, 50*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := n.Subscribe(ctx, "ABCDE", "stu1")
	require.NoError(t, err)
	recvSnapshot(t, sub)

	cancel()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-sub.Snapshots:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription did not end after context cancel")
		}
	}
}
