package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists the full task set. Save replaces the previous state
// wholesale; the queue assumes a single writer.
type Store interface {
	Load() ([]Task, error)
	Save(tasks []Task) error
}

// FileStore keeps tasks as one JSON object per line. Writes go to a
// temp file in the same directory followed by a rename, so a crash can
// never leave a partially written log behind.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() ([]Task, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open queue file: %w", err)
	}
	defer f.Close()

	var tasks []Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(text), &task); err != nil {
			return nil, fmt.Errorf("parse queue file line %d: %w", line, err)
		}
		tasks = append(tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read queue file: %w", err)
	}
	return tasks, nil
}

func (s *FileStore) Save(tasks []Task) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("create queue directory: %w", err)
	}

	tmp := s.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, task := range tasks {
		data, err := json.Marshal(task)
		if err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("encode task %s: %w", task.ID, err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("write temp queue file: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("flush temp queue file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp queue file: %w", err)
	}

	if err := os.Rename(tmp, s.Path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}

// MemStore is an in-memory Store for tests and ephemeral queues.
type MemStore struct {
	tasks []Task
}

func (s *MemStore) Load() ([]Task, error) {
	out := make([]Task, len(s.tasks))
	copy(out, s.tasks)
	return out, nil
}

func (s *MemStore) Save(tasks []Task) error {
	s.tasks = make([]Task, len(tasks))
	copy(s.tasks, tasks)
	return nil
}
