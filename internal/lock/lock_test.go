package lock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFileLock(t *testing.T) {
	l1 := New("mysql/localhost/3306/test_app_1")
	ok, err := l1.TryLock()
	if err != nil || !ok {
		t.Fatalf("first lock failed")
	}
	defer func() { _ = l1.Unlock() }()

	l2 := New("mysql/localhost/3306/test_app_1")
	ok, err = l2.TryLock()
	if err != nil {
		t.Fatalf("second lock error: %v", err)
	}
	if ok {
		t.Fatalf("lock should be held by first holder")
	}

	other := New("mysql/localhost/3306/test_app_2")
	ok, err = other.TryLock()
	if err != nil || !ok {
		t.Fatalf("different target must not be blocked")
	}
	_ = other.Unlock()
}

func TestAcquireTimesOut(t *testing.T) {
	l1 := New("postgres/db/5432/reports_1")
	if ok, err := l1.TryLock(); err != nil || !ok {
		t.Fatalf("first lock failed")
	}
	defer func() { _ = l1.Unlock() }()

	l2 := New("postgres/db/5432/reports_1")
	start := time.Now()
	ok, err := l2.Acquire(context.Background(), 300*time.Millisecond)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if ok {
		t.Fatalf("lock should still be held")
	}
	if time.Since(start) < 250*time.Millisecond {
		t.Fatalf("acquire returned before wait elapsed")
	}
}

func TestAcquireCanceled(t *testing.T) {
	l1 := New("mysql/db/3306/app_db_3")
	if ok, err := l1.TryLock(); err != nil || !ok {
		t.Fatalf("first lock failed")
	}
	defer func() { _ = l1.Unlock() }()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(150*time.Millisecond, cancel)

	l2 := New("mysql/db/3306/app_db_3")
	ok, err := l2.Acquire(ctx, 10*time.Second)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got ok=%v err=%v", ok, err)
	}
	if ok {
		t.Fatalf("lock must not be acquired")
	}

	ok, err = l2.Acquire(ctx, 0)
	if !errors.Is(err, context.Canceled) || ok {
		t.Fatalf("canceled context must not try the lock: ok=%v err=%v", ok, err)
	}
}
