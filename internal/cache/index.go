package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
)

// indexStore 保存 filename → Entry 的内存映射，并以整体快照形式持久化。
// 所有变更都必须经由 indexStore，并在批次结束后调用 save。
type indexStore struct {
	dir     *directory
	entries map[string]Entry
}

func newIndexStore(dir *directory) *indexStore {
	return &indexStore{dir: dir, entries: make(map[string]Entry)}
}

// load 解析快照文件。文件缺失时返回 fs.ErrNotExist，无法解析时返回 ErrIndexCorrupt。
// 文件名非法的单条记录会被跳过并通过 skipped 返回，其余条目照常加载。
func (s *indexStore) load() (skipped []string, err error) {
	data, err := os.ReadFile(s.dir.join(IndexFileName))
	if err != nil {
		return nil, err
	}

	var records []Entry
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexCorrupt, err)
	}

	entries := make(map[string]Entry, len(records))
	for _, rec := range records {
		if rec.Filename == "" || rec.Filename != SanitizeName(rec.Filename) || isReserved(rec.Filename) {
			skipped = append(skipped, rec.Filename)
			continue
		}
		entries[rec.Filename] = rec
	}
	s.entries = entries
	return skipped, nil
}

// save 将全部条目按文件名排序后整体覆盖写入快照。
func (s *indexStore) save() error {
	data, err := json.MarshalIndent(s.sorted(), "", "  ")
	if err != nil {
		return fmt.Errorf("serialize index: %w", err)
	}
	if err := s.dir.replace(IndexFileName, data); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

func (s *indexStore) get(name string) (Entry, bool) {
	e, ok := s.entries[name]
	return e, ok
}

func (s *indexStore) put(e Entry) {
	s.entries[e.Filename] = e
}

func (s *indexStore) delete(name string) {
	delete(s.entries, name)
}

// replaceAll 用新的条目集合整体替换内存索引。
func (s *indexStore) replaceAll(entries map[string]Entry) {
	s.entries = entries
}

func (s *indexStore) len() int {
	return len(s.entries)
}

func (s *indexStore) totalBytes() int64 {
	var total int64
	for _, e := range s.entries {
		total += e.Bytes
	}
	return total
}

// sorted 返回按文件名升序排列的条目副本。
func (s *indexStore) sorted() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		return strings.Compare(a.Filename, b.Filename)
	})
	return out
}

// isMissing 区分“快照不存在”与其他读取错误，便于日志输出。
func isMissing(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
