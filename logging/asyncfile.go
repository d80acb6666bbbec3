package logging

import (
	"fmt"
	"os"
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// AsyncFile provides non-blocking file writing capabilities
type AsyncFile struct {
	file    *os.File
	path    string
	log     log.Logger
	queue   chan []byte
	wg      sync.WaitGroup
	mu      sync.Mutex
	stopped bool
}

// NewAsyncFile creates (or truncates) path and starts the background writer. Write
// failures are reported to logger, or the root logger when nil.
func NewAsyncFile(path string, logger log.Logger) (*AsyncFile, error) {
	if logger == nil {
		logger = log.Root()
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file %s: %w", path, err)
	}

	af := &AsyncFile{
		file:  file,
		path:  path,
		log:   logger,
		queue: make(chan []byte, 100),
	}
	af.wg.Add(1)
	go af.processQueue()
	return af, nil
}

// Write queues a copy of data
func (af *AsyncFile) Write(data []byte) (int, error) {
	af.mu.Lock()
	defer af.mu.Unlock()

	if af.stopped {
		return 0, fmt.Errorf("async file is closed")
	}
	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	af.queue <- dataCopy
	return len(data), nil
}

func (af *AsyncFile) processQueue() {
	defer af.wg.Done()
	for data := range af.queue {
		if _, err := af.file.Write(data); err != nil {
			af.log.Error("Error writing to file", "file", af.path, "err", err)
		}
	}
}

// Close drains pending writes and closes the file
func (af *AsyncFile) Close() error {
	af.mu.Lock()
	if !af.stopped {
		af.stopped = true
		close(af.queue)
	}
	af.mu.Unlock()

	af.wg.Wait()
	return af.file.Close()
}
