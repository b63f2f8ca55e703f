package reducer

import "sync"

// videoLocks hands out one mutex per video id so events for the same video
// apply serially while different videos reduce in parallel.
type videoLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newVideoLocks() *videoLocks {
	return &videoLocks{
		locks: make(map[string]*sync.Mutex),
	}
}

func (vl *videoLocks) lock(videoID string) *sync.Mutex {
	vl.mu.Lock()
	m, ok := vl.locks[videoID]
	if !ok {
		m = &sync.Mutex{}
		vl.locks[videoID] = m
	}
	vl.mu.Unlock()

	m.Lock()
	return m
}
