package session

import (
	"log/slog"
	"sync"
	"time"
)

// HolderFactory はブラウザセッションIDに対応するHolderを生成する。
type HolderFactory func(sessionID string) *Holder

// Manager はブラウザセッションIDとHolderの対応を管理する。
// Holderは初回アクセス時に生成し、一定時間アクセスのないものは破棄する。
// 破棄してもトークンはTokenStoreに残るため、次回アクセス時に復元される。
type Manager struct {
	factory     HolderFactory
	idleTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	holders map[string]*managedHolder

	stopCh   chan struct{}
	stopOnce sync.Once
}

type managedHolder struct {
	holder     *Holder
	lastAccess time.Time
}

// NewManager はManagerを生成し、アイドル状態のHolderを破棄するゴルーチンを起動する。
func NewManager(factory HolderFactory, idleTimeout time.Duration, logger *slog.Logger) *Manager {
	m := &Manager{
		factory:     factory,
		idleTimeout: idleTimeout,
		logger:      logger,
		now:         time.Now,
		holders:     make(map[string]*managedHolder),
		stopCh:      make(chan struct{}),
	}

	go m.cleanupLoop()

	return m
}

// Get はセッションIDのHolderを返す。存在しない場合は生成する。
func (m *Manager) Get(sessionID string) *Holder {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mh, ok := m.holders[sessionID]; ok {
		mh.lastAccess = m.now()
		return mh.holder
	}

	h := m.factory(sessionID)
	m.holders[sessionID] = &managedHolder{holder: h, lastAccess: m.now()}
	return h
}

// Remove はセッションIDのHolderを破棄する。
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	mh, ok := m.holders[sessionID]
	delete(m.holders, sessionID)
	m.mu.Unlock()

	if ok {
		mh.holder.Close()
	}
}

// Len は管理中のHolder数を返す。テストおよびメトリクス用。
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.holders)
}

// Close はクリーンアップを停止し、すべてのHolderを破棄する。
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})

	m.mu.Lock()
	holders := m.holders
	m.holders = make(map[string]*managedHolder)
	m.mu.Unlock()

	for _, mh := range holders {
		mh.holder.Close()
	}
}

func (m *Manager) cleanupLoop() {
	interval := m.idleTimeout / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictIdle()
		case <-m.stopCh:
			return
		}
	}
}

// evictIdle は最終アクセスからidleTimeoutを超えたHolderを破棄する。
func (m *Manager) evictIdle() {
	now := m.now()
	var idle []*Holder

	m.mu.Lock()
	for id, mh := range m.holders {
		if now.Sub(mh.lastAccess) > m.idleTimeout {
			idle = append(idle, mh.holder)
			delete(m.holders, id)
		}
	}
	m.mu.Unlock()

	for _, h := range idle {
		h.Close()
	}
	if len(idle) > 0 {
		m.logger.Debug("アイドル状態のセッションを破棄しました", slog.Int("count", len(idle)))
	}
}
