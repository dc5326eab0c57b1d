package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// directory 是缓存根目录的物理存储层，只负责文件读写，不感知索引。
type directory struct {
	root string
}

// newDirectory 以 root 为根目录构建存储层，必要时创建目录。
func newDirectory(root string) (*directory, error) {
	if root == "" {
		return nil, errors.New("cache root required")
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	return &directory{root: abs}, nil
}

// SanitizeName 将 [A-Za-z0-9._-] 之外的字符逐个替换为 '_'。
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// resolve 清洗文件名并返回 (清洗后的名称, 绝对路径)。
func (d *directory) resolve(name string) (string, string, error) {
	clean := SanitizeName(name)
	if clean == "" || clean == "." || clean == ".." {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if isReserved(clean) {
		return "", "", fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return clean, filepath.Join(d.root, clean), nil
}

func (d *directory) join(name string) string {
	return filepath.Join(d.root, name)
}

// size 返回文件大小；文件不存在时返回 (0, false, nil)。
func (d *directory) size(path string) (int64, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, false, nil
		}
		return 0, false, err
	}
	if !info.Mode().IsRegular() {
		return 0, false, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), true, nil
}

// overwrite 截断写入并强制落盘。
func (d *directory) overwrite(path string, data []byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}
	return writeAndClose(f, data)
}

// appendTo 以追加模式写入并强制落盘，返回写入后的文件大小。
func (d *directory) appendTo(path string, data []byte) (int64, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return 0, err
	}
	return writeAndClose(f, data)
}

func writeAndClose(f *os.File, data []byte) (int64, error) {
	if _, err := f.Write(data); err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return 0, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return 0, err
	}
	if err := f.Close(); err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// replace 通过临时文件 + fsync + rename 原子替换控制文件，失败时清理临时文件。
func (d *directory) replace(name string, data []byte) error {
	tempFile, err := os.CreateTemp(d.root, tempPrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	if err == nil {
		err = tempFile.Sync()
	}
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, d.join(name)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

// sweepTemp 删除 replace 在 rename 前崩溃遗留的临时文件，只应在没有并发写入时调用。
func (d *directory) sweepTemp() (int, error) {
	items, err := os.ReadDir(d.root)
	if err != nil {
		return 0, fmt.Errorf("list cache root: %w", err)
	}
	removed := 0
	for _, item := range items {
		if !item.Type().IsRegular() || !strings.HasPrefix(item.Name(), tempPrefix) {
			continue
		}
		if err := d.remove(d.join(item.Name())); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// remove 删除文件，文件已不存在视为成功。
func (d *directory) remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// dataFiles 列出根目录下所有常规数据文件（不含控制文件与临时文件）及其大小。
func (d *directory) dataFiles() (map[string]int64, error) {
	items, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("list cache root: %w", err)
	}

	files := make(map[string]int64, len(items))
	for _, item := range items {
		if !item.Type().IsRegular() || isReserved(item.Name()) {
			continue
		}
		info, err := item.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", item.Name(), err)
		}
		files[item.Name()] = info.Size()
	}
	return files, nil
}

func isReserved(name string) bool {
	return strings.HasPrefix(name, reservedPrefix)
}
