package ingest

import (
	"sync"
	"time"
)

// FetchResult はHTTPステータスコードに基づくフェッチ結果の分類。
type FetchResult int

const (
	// FetchResultOK はフェッチ成功（200）。
	FetchResultOK FetchResult = iota
	// FetchResultStop はプロセス再起動までフェッチを停止するステータス（404/410/401/403）。
	FetchResultStop
	// FetchResultBackoff はバックオフが必要なステータス（429/5xx）。
	FetchResultBackoff
	// FetchResultUnknown は未知のステータスコード。
	FetchResultUnknown
)

const (
	// initialBackoff は指数バックオフの初回遅延。
	initialBackoff = 30 * time.Minute
	// maxBackoff は指数バックオフの最大遅延。
	maxBackoff = 12 * time.Hour
)

// ClassifyHTTPStatus はHTTPステータスコードをフェッチ結果に分類する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode == 200:
		return FetchResultOK
	case statusCode == 404 || statusCode == 410:
		return FetchResultStop
	case statusCode == 401 || statusCode == 403:
		return FetchResultStop
	case statusCode == 429:
		return FetchResultBackoff
	case statusCode >= 500:
		return FetchResultBackoff
	default:
		return FetchResultUnknown
	}
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回30分、2倍ずつ増加、最大12時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for range consecutiveErrors {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}

// sourceState は取り込み元ごとのフェッチ状態。
type sourceState struct {
	stopped           bool
	consecutiveErrors int
	nextFetchAt       time.Time
	reason            string
}

// BackoffTracker は取り込み元URLごとの停止・バックオフ状態をメモリ上で管理する。
// 状態はプロセス再起動で失われる。
type BackoffTracker struct {
	mu     sync.Mutex
	states map[string]*sourceState
	now    func() time.Time
}

// NewBackoffTracker はBackoffTrackerを生成する。
func NewBackoffTracker() *BackoffTracker {
	return &BackoffTracker{
		states: make(map[string]*sourceState),
		now:    time.Now,
	}
}

// Due は取り込み元が現在フェッチ可能かを返す。
func (b *BackoffTracker) Due(source string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.states[source]
	if !ok {
		return true
	}
	if st.stopped {
		return false
	}
	return !b.now().Before(st.nextFetchAt)
}

// Stop は取り込み元のフェッチを再起動まで停止する。
func (b *BackoffTracker) Stop(source, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(source)
	st.stopped = true
	st.reason = reason
}

// Backoff は連続エラー回数をインクリメントし、次回フェッチ可能時刻を遅らせる。
// 適用した遅延を返す。
func (b *BackoffTracker) Backoff(source, reason string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := b.state(source)
	delay := CalculateBackoff(st.consecutiveErrors)
	st.consecutiveErrors++
	st.reason = reason
	st.nextFetchAt = b.now().Add(delay)
	return delay
}

// Success は取り込み元の状態をリセットする。
func (b *BackoffTracker) Success(source string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.states, source)
}

// ConsecutiveErrors は取り込み元の連続エラー回数を返す。
func (b *BackoffTracker) ConsecutiveErrors(source string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if st, ok := b.states[source]; ok {
		return st.consecutiveErrors
	}
	return 0
}

func (b *BackoffTracker) state(source string) *sourceState {
	st, ok := b.states[source]
	if !ok {
		st = &sourceState{}
		b.states[source] = st
	}
	return st
}
