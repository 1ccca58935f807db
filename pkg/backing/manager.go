package backing

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/quarryfs/quarry/internal/logger"
)

const (
	// DefaultReaders is the default reader-pool worker count.
	DefaultReaders = 4

	// DefaultQueueSize is the default reader-pool queue capacity.
	DefaultQueueSize = 256

	objectsDir = "objects"
)

// Config configures a backing store Manager.
type Config struct {
	// Root is the cache directory. Backing files live under
	// <root>/objects/<aa>/<id>.
	Root string

	// BlockSize is the cache block size in bytes.
	BlockSize int64

	// Readers is the number of reader-pool workers (default 4).
	Readers int

	// QueueSize bounds the reader-pool queue (default 256).
	QueueSize int

	// MaxOpen caps the open-file table; 0 means unlimited.
	MaxOpen int
}

// readRequest is one block fill queued for the reader pool.
type readRequest struct {
	dev   Device
	block *Block
	off   int64
}

// Manager owns the cache directory, the table of open backing files
// and the shared reader pool that fills backing blocks asynchronously.
type Manager struct {
	root      string
	blockSize int64
	maxOpen   int
	seekData  bool

	bufPool sync.Pool
	reads   chan readRequest
	stop    chan struct{}
	wg      sync.WaitGroup

	mu     sync.Mutex
	files  map[string]*File
	closed bool
}

// New prepares the cache directory and starts the reader pool.
func New(cfg Config) (*Manager, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("backing: root directory not set")
	}
	if cfg.BlockSize <= 0 {
		return nil, fmt.Errorf("backing: invalid block size %d", cfg.BlockSize)
	}
	if cfg.Readers <= 0 {
		cfg.Readers = DefaultReaders
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	if err := os.MkdirAll(filepath.Join(cfg.Root, objectsDir), 0700); err != nil {
		return nil, fmt.Errorf("backing: create cache root: %w", err)
	}

	m := &Manager{
		root:      cfg.Root,
		blockSize: cfg.BlockSize,
		maxOpen:   cfg.MaxOpen,
		seekData:  probeSeekData(cfg.Root),
		reads:     make(chan readRequest, cfg.QueueSize),
		stop:      make(chan struct{}),
		files:     make(map[string]*File),
	}
	m.bufPool.New = func() any {
		return make([]byte, cfg.BlockSize)
	}

	if !m.seekData {
		logger.Warn("cache filesystem lacks SEEK_DATA; every lookup will miss",
			logger.KeyRoot, cfg.Root)
	}

	m.wg.Add(cfg.Readers)
	for i := 0; i < cfg.Readers; i++ {
		go m.reader()
	}

	logger.Info("backing store ready",
		logger.KeyRoot, cfg.Root,
		logger.KeyBlockSize, cfg.BlockSize,
		logger.KeyWorkers, cfg.Readers)
	return m, nil
}

// BlockSize returns the cache block size.
func (m *Manager) BlockSize() int64 { return m.blockSize }

// Open returns a handle on the backing file for id, creating the file
// on first use. Handles are shared and reference counted: a second Open
// of the same id returns the same *File, and the file closes when the
// last handle does.
func (m *Manager) Open(id string) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if f, ok := m.files[id]; ok {
		f.refs++
		return f, nil
	}
	if m.maxOpen > 0 && len(m.files) >= m.maxOpen {
		return nil, ErrTooManyFiles
	}

	path := m.filePath(id)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("backing: create object dir: %w", err)
	}
	osf, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("backing: open %s: %w", path, err)
	}
	dev, err := newFileDevice(osf, m.seekData)
	if err != nil {
		osf.Close()
		return nil, err
	}

	f := m.newFile(id, path, dev)
	m.files[id] = f
	return f, nil
}

// OpenDevice registers a handle over an externally supplied Device.
// The device is read through the manager's reader pool like any file.
// If id is already open the existing handle is returned and dev is
// ignored.
func (m *Manager) OpenDevice(id string, dev Device) (*File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrManagerClosed
	}
	if f, ok := m.files[id]; ok {
		f.refs++
		return f, nil
	}
	if m.maxOpen > 0 && len(m.files) >= m.maxOpen {
		return nil, ErrTooManyFiles
	}

	f := m.newFile(id, "", dev)
	m.files[id] = f
	return f, nil
}

func (m *Manager) newFile(id, path string, dev Device) *File {
	f := &File{
		id:   id,
		path: path,
		mgr:  m,
		dev:  dev,
		refs: 1,
	}
	f.blocks = newBlocks(m, dev)
	return f
}

// Remove deletes the backing file for id from disk. The file must not
// be open.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if _, ok := m.files[id]; ok {
		m.mu.Unlock()
		return ErrFileBusy
	}
	path := m.filePath(id)
	m.mu.Unlock()

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("backing: remove %s: %w", path, err)
	}
	return nil
}

// filePath fans object files out over two-character subdirectories to
// keep directory sizes reasonable.
func (m *Manager) filePath(id string) string {
	sub := id
	if len(sub) > 2 {
		sub = sub[:2]
	}
	return filepath.Join(m.root, objectsDir, sub, id)
}

// submitRead queues a fill for the reader pool, blocking while the
// queue is full.
func (m *Manager) submitRead(req readRequest) error {
	select {
	case <-m.stop:
		return ErrManagerClosed
	default:
	}

	select {
	case m.reads <- req:
		return nil
	case <-m.stop:
		return ErrManagerClosed
	}
}

// reader is one reader-pool worker.
func (m *Manager) reader() {
	defer m.wg.Done()
	for {
		select {
		case req := <-m.reads:
			m.processRead(req)
		case <-m.stop:
			return
		}
	}
}

// processRead fills the block's buffer from the device and completes
// the block, waking its waiters. A short read against the sparse tail
// of a file yields zeros for the remainder.
func (m *Manager) processRead(req readRequest) {
	b := req.block
	buf := b.Data()

	n, err := req.dev.ReadAt(buf, req.off)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		err = nil
	}
	if err == nil {
		// Pooled buffers are dirty; zero whatever the read did not cover.
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
	}

	if err != nil {
		logger.Debug("backing read failed",
			logger.KeyBlock, b.Index(),
			logger.KeyOffset, req.off,
			logger.KeyError, err.Error())
	}

	b.finish(err)
	b.Put()
}

// Stats describes the manager's current footprint.
type Stats struct {
	OpenFiles  int  `json:"open_files"`
	QueueDepth int  `json:"queue_depth"`
	SeekData   bool `json:"seek_data"`
}

// Stats returns current open-file and queue counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	open := len(m.files)
	m.mu.Unlock()

	return Stats{
		OpenFiles:  open,
		QueueDepth: len(m.reads),
		SeekData:   m.seekData,
	}
}

// getBuf takes a block-sized buffer from the pool.
func (m *Manager) getBuf() []byte {
	return m.bufPool.Get().([]byte)
}

// putBuf returns a buffer to the pool.
func (m *Manager) putBuf(buf []byte) {
	if int64(len(buf)) == m.blockSize {
		m.bufPool.Put(buf) //nolint:staticcheck
	}
}

// Close stops the reader pool, fails any queued fills and closes every
// open file. Blocks whose fills were dropped complete with
// ErrManagerClosed so their waiters do not hang.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stop)
	m.wg.Wait()
	m.drainReads()

	m.mu.Lock()
	files := make([]*File, 0, len(m.files))
	for id, f := range m.files {
		delete(m.files, id)
		files = append(files, f)
	}
	m.mu.Unlock()

	var firstErr error
	for _, f := range files {
		f.blocks.close()
		if err := f.dev.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	logger.Info("backing store closed", logger.KeyRoot, m.root)
	return firstErr
}

// drainReads fails fills that were queued but never picked up, so
// their waiters do not hang.
func (m *Manager) drainReads() {
	for {
		select {
		case req := <-m.reads:
			req.block.finish(ErrManagerClosed)
			req.block.Put()
		default:
			return
		}
	}
}
