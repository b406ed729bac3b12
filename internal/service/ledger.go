package service

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agentvault/sessiongate/internal/model"
	"github.com/agentvault/sessiongate/internal/pkg/logger"
	"github.com/google/uuid"
)

// LedgerService records call outcomes asynchronously: to the repo when one
// is configured, to a daily jsonl file, and to an in-memory ring that backs
// List when the repo is down.
type LedgerService struct {
	ch     chan *model.Operation
	file   *os.File
	buffer *opBuffer
	repo   LedgerRepo
	done   chan struct{}
	once   sync.Once

	mu     sync.RWMutex
	closed bool
}

type LedgerRepo interface {
	Insert(ctx context.Context, op *model.Operation) error
	List(ctx context.Context, limit int, action string) ([]*model.Operation, error)
}

func NewLedgerService(logDir string, bufferSize int, repo LedgerRepo) (*LedgerService, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, err
	}

	filename := filepath.Join(logDir, "operations-"+time.Now().Format("2006-01-02")+".jsonl")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	if bufferSize <= 0 {
		bufferSize = 1000
	}
	svc := &LedgerService{
		ch:     make(chan *model.Operation, bufferSize),
		file:   f,
		buffer: newOpBuffer(bufferSize),
		repo:   repo,
		done:   make(chan struct{}),
	}
	go svc.process()

	return svc, nil
}

// Record never blocks the caller; a full queue drops the entry from the
// repo and file but keeps it in the ring. After Close only the ring is
// updated.
func (s *LedgerService) Record(op *model.Operation) {
	if op.ID == "" {
		op.ID = newOperationID()
	}
	s.buffer.Add(op)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		logger.Warn("ledger closed, operation kept in memory only", "operation_id", op.ID, "action", op.Action)
		return
	}
	select {
	case s.ch <- op:
	default:
		logger.Warn("ledger queue full, dropping operation", "operation_id", op.ID, "action", op.Action)
	}
}

func (s *LedgerService) List(ctx context.Context, limit int, action string) ([]*model.Operation, error) {
	if s.repo != nil {
		ops, err := s.repo.List(ctx, limit, action)
		if err == nil {
			return ops, nil
		}
		logger.Warn("ledger repo list failed, serving from memory", "error", err)
	}
	return s.buffer.List(limit, action), nil
}

func (s *LedgerService) process() {
	defer close(s.done)
	encoder := json.NewEncoder(s.file)
	for op := range s.ch {
		if s.repo != nil {
			if err := s.repo.Insert(context.Background(), op); err != nil {
				logger.Error("failed to write operation to repo", "operation_id", op.ID, "error", err)
			}
		}
		if err := encoder.Encode(op); err != nil {
			logger.Error("failed to write operation to file", "operation_id", op.ID, "error", err)
		}
	}
}

// Close drains queued operations and closes the file.
func (s *LedgerService) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
		<-s.done
		s.file.Close()
	})
}

func newOperationID() string {
	return uuid.NewString()
}

type opBuffer struct {
	mu        sync.Mutex
	maxSize   int
	records   []*model.Operation
	nextIndex int
}

func newOpBuffer(maxSize int) *opBuffer {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &opBuffer{
		maxSize: maxSize,
		records: make([]*model.Operation, 0, maxSize),
	}
}

func (b *opBuffer) Add(op *model.Operation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.records) < b.maxSize {
		b.records = append(b.records, op)
		return
	}
	b.records[b.nextIndex] = op
	b.nextIndex = (b.nextIndex + 1) % b.maxSize
}

// List returns newest first.
func (b *opBuffer) List(limit int, action string) []*model.Operation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if limit <= 0 || limit > b.maxSize {
		limit = b.maxSize
	}
	results := make([]*model.Operation, 0, limit)
	total := len(b.records)
	for i := 0; i < total; i++ {
		idx := (b.nextIndex + total - 1 - i) % total
		op := b.records[idx]
		if op == nil {
			continue
		}
		if action != "" && op.Action != action {
			continue
		}
		results = append(results, op)
		if len(results) >= limit {
			break
		}
	}
	return results
}
