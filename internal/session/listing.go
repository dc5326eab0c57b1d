package session

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gaslog/gaslog/internal/cache"
)

// FileSummary 是提供给列表消费者的会话文件元数据。Session 表示文件名遵循会话命名约定。
type FileSummary struct {
	Name      string    `json:"name"`
	Bytes     int64     `json:"bytes"`
	Records   int       `json:"records"`
	ModTime   time.Time `json:"mod_time"`
	ExpiresAt time.Time `json:"expires_at"`
	MIME      string    `json:"mime"`
	Recovered bool      `json:"recovered"`
	Session   bool      `json:"session"`
}

// Lister 是列表所需的只读缓存能力。
type Lister interface {
	ListActive() []cache.Handle
}

// Summarize 读取文件统计行数：换行符数量减去表头一行，最少为 0。
func Summarize(h cache.Handle) (FileSummary, error) {
	f, err := os.Open(h.Path)
	if err != nil {
		return FileSummary{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return FileSummary{}, err
	}
	lines, err := countLines(f)
	if err != nil {
		return FileSummary{}, fmt.Errorf("count records in %s: %w", h.Filename, err)
	}

	return FileSummary{
		Name:      h.Filename,
		Bytes:     info.Size(),
		Records:   max(lines-1, 0),
		ModTime:   info.ModTime().UTC(),
		ExpiresAt: h.ExpiresAt,
		MIME:      h.MIME,
		Recovered: h.Recovered(),
		Session:   IsSessionFile(h.Filename),
	}, nil
}

// Summaries 汇总所有有效文件。在列出与读取之间被删除的文件会被跳过。
func Summaries(l Lister) ([]FileSummary, error) {
	handles := l.ListActive()
	out := make([]FileSummary, 0, len(handles))
	for _, h := range handles {
		summary, err := Summarize(h)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, err
		}
		out = append(out, summary)
	}
	return out, nil
}

func countLines(r io.Reader) (int, error) {
	buf := make([]byte, 32*1024)
	count := 0
	for {
		n, err := r.Read(buf)
		count += bytes.Count(buf[:n], []byte{'\n'})
		if err != nil {
			if errors.Is(err, io.EOF) {
				return count, nil
			}
			return count, err
		}
	}
}

// Preview 返回文件的前 limit 行（包括表头），limit <= 0 时返回全部。
func Preview(path string, limit int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
		if limit > 0 && len(lines) >= limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
