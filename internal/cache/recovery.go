package cache

import (
	"time"
)

// recoveryScanner 通过扫描目录重建或校准索引，是异常退出后唯一的修复路径。
type recoveryScanner struct {
	dir   *directory
	index *indexStore
}

func recoveredEntry(name string, size int64, now time.Time) Entry {
	return Entry{
		Filename:  name,
		ExpiresAt: now.Add(DefaultTTL),
		Bytes:     size,
		MIME:      DefaultMIME,
		Meta:      map[string]any{MetaRecovered: true},
	}
}

// rebuild 丢弃内存索引，按目录中现有的数据文件合成条目并立即持久化。
func (r *recoveryScanner) rebuild(now time.Time) (int, error) {
	files, err := r.dir.dataFiles()
	if err != nil {
		return 0, err
	}

	entries := make(map[string]Entry, len(files))
	for name, size := range files {
		entries[name] = recoveredEntry(name, size, now)
	}
	r.index.replaceAll(entries)

	if err := r.index.save(); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// reconcileResult 汇总一次校准的变更，供日志输出。
type reconcileResult struct {
	Dropped int
	Resized int
	Adopted int
}

func (r reconcileResult) changed() bool {
	return r.Dropped+r.Resized+r.Adopted > 0
}

// reconcile 在快照成功加载后与磁盘对齐：移除文件已消失的条目、刷新大小、
// 收编未被跟踪的数据文件。已有条目的 ExpiresAt 保持不变。
func (r *recoveryScanner) reconcile(now time.Time) (reconcileResult, error) {
	var result reconcileResult

	files, err := r.dir.dataFiles()
	if err != nil {
		return result, err
	}

	for _, e := range r.index.sorted() {
		size, ok := files[e.Filename]
		if !ok {
			r.index.delete(e.Filename)
			result.Dropped++
			continue
		}
		if size != e.Bytes {
			e.Bytes = size
			r.index.put(e)
			result.Resized++
		}
	}

	for name, size := range files {
		if _, ok := r.index.get(name); ok {
			continue
		}
		r.index.put(recoveredEntry(name, size, now))
		result.Adopted++
	}

	if result.changed() {
		if err := r.index.save(); err != nil {
			return result, err
		}
	}
	return result, nil
}
